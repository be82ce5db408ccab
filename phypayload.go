//go:generate stringer -type=MType
//go:generate stringer -type=Major

package lorawan

import (
	"crypto/aes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/jacobsa/crypto/cmac"
)

// MType represents the message type.
type MType byte

// MarshalText implements encoding.TextMarshaler.
func (m MType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Supported message types (MType).
const (
	JoinRequest MType = iota
	JoinAccept
	UnconfirmedDataUp
	UnconfirmedDataDown
	ConfirmedDataUp
	ConfirmedDataDown
	rfu
	Proprietary
)

// Major defines the major version of the frame format.
type Major byte

// Supported major versions.
const (
	LoRaWANR1 Major = 0
)

// MarshalText implements encoding.TextMarshaler.
func (m Major) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// AES128Key represents a 128 bit AES key (AppKey, NwkSKey or AppSKey).
type AES128Key [16]byte

// String implements fmt.Stringer.
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k AES128Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *AES128Key) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(k) {
		return fmt.Errorf("lorawan: exactly %d bytes are expected", len(k))
	}
	copy(k[:], b)
	return nil
}

// MarshalBinary encodes the key to a slice of bytes, little endian.
func (k AES128Key) MarshalBinary() ([]byte, error) {
	b := make([]byte, len(k))
	for i, v := range k {
		b[len(k)-i-1] = v
	}
	return b, nil
}

// UnmarshalBinary decodes the key from a slice of bytes, little endian.
func (k *AES128Key) UnmarshalBinary(data []byte) error {
	if len(data) != len(k) {
		return fmt.Errorf("lorawan: %d bytes of data are expected", len(k))
	}
	for i, v := range data {
		k[len(k)-i-1] = v
	}
	return nil
}

// MIC represents the message integrity code.
type MIC [4]byte

// String implements fmt.Stringer.
func (m MIC) String() string {
	return hex.EncodeToString(m[:])
}

// MarshalText implements encoding.TextMarshaler.
func (m MIC) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// MHDR represents the MAC header.
type MHDR struct {
	MType MType `json:"mType"`
	Major Major `json:"major"`
}

// MarshalBinary marshals the object in binary form.
func (h MHDR) MarshalBinary() ([]byte, error) {
	return []byte{byte(h.Major) ^ (byte(h.MType) << 5)}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (h *MHDR) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	h.Major = Major(data[0] & 3)
	h.MType = MType((data[0] & 224) >> 5)
	return nil
}

// PHYPayload represents the physical payload: the full frame that goes
// over the air, minus PHY-layer framing (preamble, sync word, CRC).
type PHYPayload struct {
	MHDR       MHDR    `json:"mhdr"`
	MACPayload Payload `json:"macPayload"`
	MIC        MIC     `json:"mic"`
}

// SetUplinkDataMIC calculates and sets the MIC field of an uplink data
// frame. fCnt is the full 32 bit uplink frame counter.
func (p *PHYPayload) SetUplinkDataMIC(nwkSKey AES128Key, fCnt uint32) error {
	mic, err := p.calculateDataMIC(nwkSKey, 0, fCnt)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateDownlinkDataMIC validates the MIC of a downlink data frame. fCnt
// must already have been reconstructed to the full 32 bit value.
func (p PHYPayload) ValidateDownlinkDataMIC(nwkSKey AES128Key, fCnt uint32) (bool, error) {
	mic, err := p.calculateDataMIC(nwkSKey, 1, fCnt)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

// SetUplinkJoinMIC calculates and sets the MIC field of a join-request.
func (p *PHYPayload) SetUplinkJoinMIC(appKey AES128Key) error {
	mic, err := p.calculateJoinMIC(appKey)
	if err != nil {
		return err
	}
	p.MIC = mic
	return nil
}

// ValidateDownlinkJoinMIC validates the MIC of a (decrypted) join-accept.
func (p PHYPayload) ValidateDownlinkJoinMIC(appKey AES128Key) (bool, error) {
	mic, err := p.calculateJoinMIC(appKey)
	if err != nil {
		return false, err
	}
	return p.MIC == mic, nil
}

// EncryptJoinAcceptPayload encrypts the join-accept payload with AppKey.
// Must be called after SetUplinkJoinMIC, since the MIC is part of the
// ciphertext.
// This is only used on the network side; kept for symmetry with
// DecryptJoinAcceptPayload and for tests.
func (p *PHYPayload) EncryptJoinAcceptPayload(appKey AES128Key) error {
	if _, ok := p.MACPayload.(*JoinAcceptPayload); !ok {
		return errors.New("lorawan: MACPayload value must be of type *JoinAcceptPayload")
	}

	pt, err := p.MACPayload.MarshalBinary()
	if err != nil {
		return err
	}
	pt = append(pt, p.MIC[:]...)
	if len(pt)%16 != 0 {
		return errors.New("lorawan: plaintext must be a multiple of 16 bytes")
	}

	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		return err
	}
	ct := make([]byte, len(pt))
	for i := 0; i < len(ct)/16; i++ {
		o := i * 16
		block.Decrypt(ct[o:o+16], pt[o:o+16])
	}

	p.MACPayload = &DataPayload{Bytes: ct[0 : len(ct)-4]}
	copy(p.MIC[:], ct[len(ct)-4:])
	return nil
}

// DecryptJoinAcceptPayload decrypts a received join-accept with AppKey. The
// join-accept is "encrypted" by the network using AES decrypt, so the
// device recovers it by running AES encrypt over each block - the same
// mirrored construction the reference stack uses.
func (p *PHYPayload) DecryptJoinAcceptPayload(appKey AES128Key) error {
	dp, ok := p.MACPayload.(*DataPayload)
	if !ok {
		return errors.New("lorawan: MACPayload must be of type *DataPayload")
	}

	ct := append(append([]byte(nil), dp.Bytes...), p.MIC[:]...)
	if len(ct)%16 != 0 {
		return errors.New("lorawan: ciphertext must be a multiple of 16 bytes")
	}

	block, err := aes.NewCipher(appKey[:])
	if err != nil {
		return err
	}
	pt := make([]byte, len(ct))
	for i := 0; i < len(pt)/16; i++ {
		o := i * 16
		block.Encrypt(pt[o:o+16], ct[o:o+16])
	}

	p.MACPayload = &JoinAcceptPayload{}
	copy(p.MIC[:], pt[len(pt)-4:])
	return p.MACPayload.UnmarshalBinary(pt[0 : len(pt)-4])
}

// EncryptFRMPayload encrypts (or decrypts - the transform is its own
// inverse) the FRMPayload in place with the given session key. fCnt must be
// the full 32 bit frame counter matching the direction of this frame, not
// the 16 bit wire value in FHDR.FCnt.
func (p *PHYPayload) EncryptFRMPayload(key AES128Key, fCnt uint32) error {
	macPL, ok := p.MACPayload.(*MACPayload)
	if !ok {
		return errors.New("lorawan: MACPayload must be of type *MACPayload")
	}
	if len(macPL.FRMPayload) == 0 {
		return nil
	}

	data, err := EncryptFRMPayload(key, p.isUplink(), macPL.FHDR.DevAddr, fCnt, macPL.FRMPayload)
	if err != nil {
		return err
	}
	macPL.FRMPayload = data
	return nil
}

// MarshalBinary marshals the object in binary form.
func (p PHYPayload) MarshalBinary() ([]byte, error) {
	if p.MACPayload == nil {
		return nil, errors.New("lorawan: MACPayload should not be nil")
	}

	out, err := p.MHDR.MarshalBinary()
	if err != nil {
		return nil, err
	}

	b, err := p.MACPayload.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)
	out = append(out, p.MIC[:]...)
	return out, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *PHYPayload) UnmarshalBinary(data []byte) error {
	if len(data) < 5 {
		return errors.New("lorawan: at least 5 bytes needed to decode PHYPayload")
	}

	if err := p.MHDR.UnmarshalBinary(data[0:1]); err != nil {
		return err
	}

	switch p.MHDR.MType {
	case JoinRequest:
		p.MACPayload = &JoinRequestPayload{}
	case JoinAccept:
		p.MACPayload = &DataPayload{}
	default:
		p.MACPayload = &MACPayload{}
	}

	if err := p.MACPayload.UnmarshalBinary(data[1 : len(data)-4]); err != nil {
		return err
	}

	copy(p.MIC[:], data[len(data)-4:])
	return nil
}

// MarshalText encodes the PHYPayload into base64.
func (p PHYPayload) MarshalText() ([]byte, error) {
	b, err := p.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(b)), nil
}

// UnmarshalText decodes the PHYPayload from base64.
func (p *PHYPayload) UnmarshalText(text []byte) error {
	b, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	return p.UnmarshalBinary(b)
}

// isUplink returns whether the frame is device-to-network.
func (p PHYPayload) isUplink() bool {
	switch p.MHDR.MType {
	case JoinRequest, UnconfirmedDataUp, ConfirmedDataUp:
		return true
	default:
		return false
	}
}

func (p PHYPayload) calculateJoinMIC(key AES128Key) (MIC, error) {
	var mic MIC
	if p.MACPayload == nil {
		return mic, errors.New("lorawan: MACPayload must not be nil")
	}

	var micBytes []byte
	b, err := p.MHDR.MarshalBinary()
	if err != nil {
		return mic, err
	}
	micBytes = append(micBytes, b...)

	b, err = p.MACPayload.MarshalBinary()
	if err != nil {
		return mic, err
	}
	micBytes = append(micBytes, b...)

	return cmacTruncated4(key, micBytes)
}

// calculateDataMIC computes the MIC of a data frame. dir is 0 for uplink,
// 1 for downlink. fCnt is the full 32 bit frame counter (uplink or
// downlink, matching dir).
func (p PHYPayload) calculateDataMIC(key AES128Key, dir uint8, fCnt uint32) (MIC, error) {
	var mic MIC
	macPL, ok := p.MACPayload.(*MACPayload)
	if !ok {
		return mic, errors.New("lorawan: MACPayload field must be of type *MACPayload")
	}

	var msg []byte
	b, err := p.MHDR.MarshalBinary()
	if err != nil {
		return mic, err
	}
	msg = append(msg, b...)

	b, err = macPL.MarshalBinary()
	if err != nil {
		return mic, err
	}
	msg = append(msg, b...)

	b0 := make([]byte, 16)
	b0[0] = 0x49
	b0[5] = dir

	devAddr, err := macPL.FHDR.DevAddr.MarshalBinary()
	if err != nil {
		return mic, err
	}
	copy(b0[6:10], devAddr)
	binary.LittleEndian.PutUint32(b0[10:14], fCnt)
	b0[15] = byte(len(msg))

	return cmacTruncated4(key, append(b0, msg...))
}

func cmacTruncated4(key AES128Key, data []byte) (MIC, error) {
	var mic MIC

	hash, err := cmac.New(key[:])
	if err != nil {
		return mic, err
	}
	if _, err := hash.Write(data); err != nil {
		return mic, err
	}

	sum := hash.Sum(nil)
	if len(sum) < 4 {
		return mic, errors.New("lorawan: the hash returned less than 4 bytes")
	}
	copy(mic[:], sum[0:4])
	return mic, nil
}

// EncryptFRMPayload encrypts (or decrypts) FRMPayload bytes using the
// CTR-like keystream construction from the LoRaWAN spec: AES-ECB(key, Ai)
// XORed block by block with the data, where Ai only differs from A0 in its
// final byte (the block counter). The transform is its own inverse.
func EncryptFRMPayload(key AES128Key, uplink bool, devAddr DevAddr, fCnt uint32, data []byte) ([]byte, error) {
	pLen := len(data)
	padded := data
	if pLen%16 != 0 {
		padded = append(append([]byte(nil), data...), make([]byte, 16-(pLen%16))...)
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}

	a := make([]byte, 16)
	a[0] = 0x01
	if !uplink {
		a[5] = 0x01
	}
	devB, err := devAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	copy(a[6:10], devB)
	binary.LittleEndian.PutUint32(a[10:14], fCnt)

	out := append([]byte(nil), padded...)
	s := make([]byte, 16)
	for i := 0; i < len(out)/16; i++ {
		a[15] = byte(i + 1)
		block.Encrypt(s, a)
		for j := 0; j < 16; j++ {
			out[i*16+j] ^= s[j]
		}
	}

	return out[0:pLen], nil
}
