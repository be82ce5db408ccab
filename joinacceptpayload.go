package lorawan

import "errors"

// DLSettings carries the RX1 data-rate offset and RX2 data-rate the network
// wants the device to use, as delivered in a join-accept.
type DLSettings struct {
	RX1DROffset uint8 // 3 bits
	RX2DataRate uint8 // 4 bits
}

// MarshalBinary marshals the object in binary form.
func (s DLSettings) MarshalBinary() ([]byte, error) {
	var b byte
	b |= (s.RX1DROffset & 0x07) << 4
	b |= s.RX2DataRate & 0x0F
	return []byte{b}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (s *DLSettings) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	s.RX1DROffset = (data[0] >> 4) & 0x07
	s.RX2DataRate = data[0] & 0x0F
	return nil
}

// CFList is the type-0 channel-frequency list optionally carried by a
// join-accept: five additional 125kHz channel frequencies, each a 24-bit
// unsigned value in units of 100Hz, plus a trailing type byte. Interpreting
// the frequencies (which channel indices they fill) is region-specific and
// is left to the band package.
type CFList [16]byte

// MarshalBinary marshals the object in binary form.
func (l CFList) MarshalBinary() ([]byte, error) {
	out := make([]byte, 16)
	copy(out, l[:])
	return out, nil
}

// UnmarshalBinary decodes the object from binary form.
func (l *CFList) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return errors.New("lorawan: 16 bytes of data are expected")
	}
	copy(l[:], data)
	return nil
}

// JoinAcceptPayload is the (decrypted) MACPayload of a join-accept.
type JoinAcceptPayload struct {
	AppNonce   [3]byte
	NetID      NetID
	DevAddr    DevAddr
	DLSettings DLSettings
	RXDelay    uint8
	CFList     *CFList // nil when the join-accept carries no channel list
}

// Clone returns a copy of the payload.
func (p JoinAcceptPayload) Clone() Payload {
	if p.CFList != nil {
		cf := *p.CFList
		p.CFList = &cf
	}
	return &p
}

// MarshalBinary marshals the object in binary form.
func (p JoinAcceptPayload) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 28)

	// AppNonce, 24 bit, little endian
	out = append(out, p.AppNonce[0], p.AppNonce[1], p.AppNonce[2])

	netID, err := p.NetID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, netID...)

	devAddr, err := p.DevAddr.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, devAddr...)

	dlSettings, err := p.DLSettings.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out = append(out, dlSettings...)

	out = append(out, p.RXDelay)

	if p.CFList != nil {
		cfList, err := p.CFList.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, cfList...)
	}

	return out, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *JoinAcceptPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 12 && len(data) != 28 {
		return errors.New("lorawan: 12 or 28 bytes of data are expected")
	}

	copy(p.AppNonce[:], data[0:3])

	if err := p.NetID.UnmarshalBinary(data[3:6]); err != nil {
		return err
	}
	if err := p.DevAddr.UnmarshalBinary(data[6:10]); err != nil {
		return err
	}
	if err := p.DLSettings.UnmarshalBinary(data[10:11]); err != nil {
		return err
	}
	p.RXDelay = data[11]

	if len(data) == 28 {
		var cf CFList
		if err := cf.UnmarshalBinary(data[12:28]); err != nil {
			return err
		}
		p.CFList = &cf
	} else {
		p.CFList = nil
	}

	return nil
}
