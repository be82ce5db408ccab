package lorawan

import "errors"

// MACPayload represents the payload carried by unconfirmed/confirmed data
// frames: a frame header, an optional application port and an opaque
// FRMPayload. FRMPayload is opaque on purpose: whether it holds plaintext,
// ciphertext or encoded MAC commands (FPort=0) is a decision for the caller,
// not the wire codec.
type MACPayload struct {
	FHDR       FHDR
	FPort      *uint8
	FRMPayload []byte
}

// Clone returns a copy of the payload.
func (p MACPayload) Clone() Payload {
	clone := p
	if p.FPort != nil {
		port := *p.FPort
		clone.FPort = &port
	}
	clone.FRMPayload = append([]byte(nil), p.FRMPayload...)
	clone.FHDR.FOpts = append([]byte(nil), p.FHDR.FOpts...)
	return &clone
}

// MarshalBinary marshals the object in binary form.
func (p MACPayload) MarshalBinary() ([]byte, error) {
	if p.FPort == nil && len(p.FRMPayload) > 0 {
		return nil, errors.New("lorawan: FPort must be set when FRMPayload is not empty")
	}

	out, err := p.FHDR.MarshalBinary()
	if err != nil {
		return nil, err
	}

	if p.FPort != nil {
		out = append(out, *p.FPort)
		out = append(out, p.FRMPayload...)
	}

	return out, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *MACPayload) UnmarshalBinary(data []byte) error {
	if len(data) < 7 {
		return errors.New("lorawan: at least 7 bytes are expected")
	}

	fOptsLen := int(FCtrl(data[4]).FOptsLen())
	hdrLen := 7 + fOptsLen
	if len(data) < hdrLen {
		return errors.New("lorawan: not enough bytes for FHDR")
	}
	if err := p.FHDR.UnmarshalBinary(data[0:hdrLen]); err != nil {
		return err
	}

	rest := data[hdrLen:]
	if len(rest) == 0 {
		p.FPort = nil
		p.FRMPayload = nil
		return nil
	}

	port := rest[0]
	p.FPort = &port
	p.FRMPayload = append([]byte(nil), rest[1:]...)
	return nil
}
