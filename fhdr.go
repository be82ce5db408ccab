package lorawan

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// DevAddr represents the 32-bit device address assigned at join time (or
// configured directly for ABP). It is carried little-endian on the wire.
type DevAddr [4]byte

// String implements fmt.Stringer.
func (a DevAddr) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalBinary encodes the address little-endian, as it appears on the wire.
func (a DevAddr) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(a))
	for i, v := range a {
		out[len(a)-1-i] = v
	}
	return out, nil
}

// UnmarshalBinary decodes a little-endian wire address.
func (a *DevAddr) UnmarshalBinary(data []byte) error {
	if len(data) != len(a) {
		return errors.New("lorawan: 4 bytes of data are expected")
	}
	for i, v := range data {
		a[len(a)-1-i] = v
	}
	return nil
}

// FCtrl represents the frame control field.
type FCtrl byte

// NewFCtrl returns a new FCtrl. Note that for fOptsLen only the first
// four bits are used (and thus the max. allowed number is 15).
func NewFCtrl(adr, adrAckReq, ack, fPending bool, fOptsLen uint8) (FCtrl, error) {
	var fc FCtrl
	if fOptsLen > 15 {
		return fc, errors.New("lorawan: the max. fOptsLen is 15")
	}

	if adr {
		fc = fc ^ (1 << 7)
	}
	if adrAckReq {
		fc = fc ^ (1 << 6)
	}
	if ack {
		fc = fc ^ (1 << 5)
	}
	if fPending {
		fc = fc ^ (1 << 4)
	}

	return fc ^ FCtrl(fOptsLen), nil
}

// ADR returns if the adaptive data rate control bit is set.
func (c FCtrl) ADR() bool {
	return c&(1<<7) > 0
}

// ADRACKReq returns if the acknowledgment request bit is set.
func (c FCtrl) ADRACKReq() bool {
	return c&(1<<6) > 0
}

// ACK returns if the acknowledgment bit is set.
func (c FCtrl) ACK() bool {
	return c&(1<<5) > 0
}

// FPending returns if the network has more data pending to be sent. Only
// meaningful on downlink frames.
func (c FCtrl) FPending() bool {
	return c&(1<<4) > 0
}

// FOptsLen returns how many FOpts bytes the FHDR carries.
func (c FCtrl) FOptsLen() uint8 {
	const mask = uint8(1<<3) ^ (1 << 2) ^ (1 << 1) ^ (1 << 0)
	return uint8(c) & mask
}

// FHDR represents the frame header. FOpts carries piggy-backed MAC command
// bytes (CID + payload, back to back) in plaintext in both directions;
// unlike the FRMPayload, it is never encrypted.
type FHDR struct {
	DevAddr DevAddr
	FCtrl   FCtrl
	FCnt    uint16
	FOpts   []byte // max. number of allowed bytes is 15
}

// MarshalBinary encodes the frame header.
func (h FHDR) MarshalBinary() ([]byte, error) {
	if len(h.FOpts) > 15 {
		return nil, errors.New("lorawan: max. number of FOpts bytes is 15")
	}

	devAddr, err := h.DevAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 7+len(h.FOpts))
	out = append(out, devAddr...)
	out = append(out, byte(h.FCtrl))

	fCnt := make([]byte, 2)
	binary.LittleEndian.PutUint16(fCnt, h.FCnt)
	out = append(out, fCnt...)
	out = append(out, h.FOpts...)

	return out, nil
}

// UnmarshalBinary decodes the frame header.
func (h *FHDR) UnmarshalBinary(data []byte) error {
	if len(data) < 7 {
		return errors.New("lorawan: at least 7 bytes are expected")
	}

	if err := h.DevAddr.UnmarshalBinary(data[0:4]); err != nil {
		return err
	}
	h.FCtrl = FCtrl(data[4])
	h.FCnt = binary.LittleEndian.Uint16(data[5:7])

	fOptsLen := int(h.FCtrl.FOptsLen())
	if len(data) < 7+fOptsLen {
		return errors.New("lorawan: FOptsLen does not match the number of remaining bytes")
	}
	h.FOpts = make([]byte, fOptsLen)
	copy(h.FOpts, data[7:7+fOptsLen])

	return nil
}
