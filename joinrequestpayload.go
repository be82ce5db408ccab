package lorawan

import "errors"

// JoinRequestPayload is the MACPayload of an OTAA join-request.
type JoinRequestPayload struct {
	AppEUI   EUI64
	DevEUI   EUI64
	DevNonce DevNonce
}

// Clone returns a copy of the payload.
func (p JoinRequestPayload) Clone() Payload {
	return &p
}

// MarshalBinary marshals the object in binary form.
func (p JoinRequestPayload) MarshalBinary() ([]byte, error) {
	var out []byte

	b, err := p.AppEUI.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevEUI.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	b, err = p.DevNonce.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, b...)

	return out, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *JoinRequestPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 18 {
		return errors.New("lorawan: 18 bytes of data are expected")
	}

	if err := p.AppEUI.UnmarshalBinary(data[0:8]); err != nil {
		return err
	}
	if err := p.DevEUI.UnmarshalBinary(data[8:16]); err != nil {
		return err
	}
	return p.DevNonce.UnmarshalBinary(data[16:18])
}
