package lorawan

import (
	"encoding/hex"
	"fmt"
)

// EUI64 represents the AppEUI / DevEUI identifiers used during OTAA join.
type EUI64 [8]byte

// String implements fmt.Stringer.
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// MarshalText implements encoding.TextMarshaler.
func (e EUI64) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EUI64) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != len(e) {
		return fmt.Errorf("lorawan: exactly %d bytes are expected", len(e))
	}
	copy(e[:], b)
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler. EUI64 is carried
// little-endian on the wire.
func (e EUI64) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(e))
	for i, v := range e {
		out[len(e)-1-i] = v
	}
	return out, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (e *EUI64) UnmarshalBinary(data []byte) error {
	if len(data) != len(e) {
		return fmt.Errorf("lorawan: %d bytes of data are expected", len(e))
	}
	for i, v := range data {
		e[len(e)-1-i] = v
	}
	return nil
}

// DevNonce is the 16-bit random value a device picks for each Join-Request.
type DevNonce uint16

// MarshalBinary implements encoding.BinaryMarshaler.
func (d DevNonce) MarshalBinary() ([]byte, error) {
	return []byte{byte(d), byte(d >> 8)}, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (d *DevNonce) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return fmt.Errorf("lorawan: 2 bytes of data are expected")
	}
	*d = DevNonce(uint16(data[0]) | uint16(data[1])<<8)
	return nil
}
