// Package crypto is an AES-128/CMAC façade: the AESCipher/CMAC interfaces
// below plus a default software implementation wrapping the standard
// library's crypto/aes and jacobsa/crypto's CMAC. The node package uses it
// only for session-key derivation, and calls the default NewAES
// constructor directly; MIC computation and FRMPayload encryption go
// through the root lorawan package, which uses crypto/aes and
// jacobsa/crypto's CMAC itself. A host has no hook to substitute another
// implementation.
package crypto

import (
	stdaes "crypto/aes"
	"hash"

	"github.com/jacobsa/crypto/cmac"
	"github.com/pkg/errors"
)

// AESCipher performs single-block AES-128 ECB encryption, the only AES mode
// the stack needs: MIC computation and payload encryption are both built on
// top of it (CTR-like keystream generation, CMAC).
type AESCipher interface {
	// Encrypt encrypts exactly one 16 byte block in place semantics: out
	// must be 16 bytes and receives the ciphertext for in.
	Encrypt(out, in []byte) error
}

// CMAC is a single CMAC computation in progress. Update may be called any
// number of times before Finalize; a CMAC value must not be reused after
// Finalize.
type CMAC interface {
	Update(data []byte) error
	// Finalize returns the 16 byte CMAC digest. Callers truncate it to the
	// 4 byte MIC themselves.
	Finalize() ([]byte, error)
}

// NewAES constructs the default software AES-128 ECB cipher for key.
func NewAES(key [16]byte) (AESCipher, error) {
	block, err := stdaes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "crypto: new aes cipher")
	}
	return &aesCipher{block: block}, nil
}

type aesCipher struct {
	block interface {
		Encrypt(dst, src []byte)
		BlockSize() int
	}
}

func (c *aesCipher) Encrypt(out, in []byte) error {
	if len(in) != 16 || len(out) != 16 {
		return errors.New("crypto: aes block must be 16 bytes")
	}
	c.block.Encrypt(out, in)
	return nil
}

// NewCMAC constructs the default software CMAC computation for key.
func NewCMAC(key [16]byte) (CMAC, error) {
	h, err := cmac.New(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "crypto: new cmac")
	}
	return &softCMAC{hash: h}, nil
}

type softCMAC struct {
	hash hash.Hash
}

func (c *softCMAC) Update(data []byte) error {
	if _, err := c.hash.Write(data); err != nil {
		return errors.Wrap(err, "crypto: cmac update")
	}
	return nil
}

func (c *softCMAC) Finalize() ([]byte, error) {
	return c.hash.Sum(nil), nil
}

// MIC truncates a CMAC digest to the 4 byte LoRaWAN MIC.
func MIC(key [16]byte, data []byte) ([4]byte, error) {
	var mic [4]byte

	h, err := NewCMAC(key)
	if err != nil {
		return mic, err
	}
	if err := h.Update(data); err != nil {
		return mic, err
	}
	digest, err := h.Finalize()
	if err != nil {
		return mic, err
	}
	if len(digest) < 4 {
		return mic, errors.New("crypto: cmac digest shorter than 4 bytes")
	}
	copy(mic[:], digest[:4])
	return mic, nil
}
