package lorawan

import (
	"encoding/hex"
	"fmt"
)

// NetID identifies the network the device has joined. The node only needs
// to carry it through session-key derivation after a Join-Accept; it never
// inspects the type/operator-ID sub-fields network servers use for
// addressing, so this type stays intentionally thin.
type NetID [3]byte

// String implements fmt.Stringer.
func (n NetID) String() string {
	return hex.EncodeToString(n[:])
}

// MarshalText implements encoding.TextMarshaler.
func (n NetID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NetID) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(n) {
		return fmt.Errorf("lorawan: exactly %d bytes are expected", len(n))
	}
	copy(n[:], b)
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler. NetID is carried
// little-endian on the wire, like DevAddr.
func (n NetID) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(n))
	for i, v := range n {
		out[len(n)-1-i] = v
	}
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (n *NetID) UnmarshalBinary(data []byte) error {
	if len(data) != len(n) {
		return fmt.Errorf("lorawan: %d bytes of data are expected", len(n))
	}
	for i, v := range data {
		n[len(n)-1-i] = v
	}
	return nil
}
