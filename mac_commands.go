//go:generate stringer -type=CID

package lorawan

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// CID defines the MAC command identifier.
type CID byte

// MarshalText implements encoding.TextMarshaler.
func (c CID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// MAC commands used by a Class-A 1.0.x device. Each *Req / *Ans pair shares
// the same CID; which struct applies depends on the direction. CIDs 0x01,
// 0x0B-0x0C and 0x0E-0x13 (reset, rekey, Class B/C, rejoin) are not in this
// set - they belong to LoRaWAN revisions and device classes this stack does
// not implement.
const (
	LinkCheckReq     CID = 0x02
	LinkCheckAns     CID = 0x02
	LinkADRReq       CID = 0x03
	LinkADRAns       CID = 0x03
	DutyCycleReq     CID = 0x04
	DutyCycleAns     CID = 0x04
	RXParamSetupReq  CID = 0x05
	RXParamSetupAns  CID = 0x05
	DevStatusReq     CID = 0x06
	DevStatusAns     CID = 0x06
	NewChannelReq    CID = 0x07
	NewChannelAns    CID = 0x07
	RXTimingSetupReq CID = 0x08
	RXTimingSetupAns CID = 0x08
	TXParamSetupReq  CID = 0x09
	TXParamSetupAns  CID = 0x09
	DLChannelReq     CID = 0x0A
	DLChannelAns     CID = 0x0A
	DeviceTimeReq    CID = 0x0D
	DeviceTimeAns    CID = 0x0D
)

// macPayloadInfo contains the info about a MAC payload.
type macPayloadInfo struct {
	size    int
	payload func() MACCommandPayload
}

// macPayloadRegistry contains the info for uplink and downlink MAC payloads
// in the format map[uplink]map[CID]. Commands without a payload (DevStatusReq,
// DutyCycleAns, RXTimingSetupAns) are not included.
var macPayloadRegistry = map[bool]map[CID]macPayloadInfo{
	false: {
		LinkCheckAns:    {2, func() MACCommandPayload { return &LinkCheckAnsPayload{} }},
		LinkADRReq:      {4, func() MACCommandPayload { return &LinkADRReqPayload{} }},
		DutyCycleReq:    {1, func() MACCommandPayload { return &DutyCycleReqPayload{} }},
		RXParamSetupReq: {4, func() MACCommandPayload { return &RXParamSetupReqPayload{} }},
		NewChannelReq:   {5, func() MACCommandPayload { return &NewChannelReqPayload{} }},
		TXParamSetupReq: {1, func() MACCommandPayload { return &TXParamSetupReqPayload{} }},
		DLChannelReq:    {4, func() MACCommandPayload { return &DLChannelReqPayload{} }},
		DeviceTimeAns:   {5, func() MACCommandPayload { return &DeviceTimeAnsPayload{} }},
	},
	true: {
		LinkADRAns:      {1, func() MACCommandPayload { return &LinkADRAnsPayload{} }},
		RXParamSetupAns: {1, func() MACCommandPayload { return &RXParamSetupAnsPayload{} }},
		DevStatusAns:    {2, func() MACCommandPayload { return &DevStatusAnsPayload{} }},
		NewChannelAns:   {1, func() MACCommandPayload { return &NewChannelAnsPayload{} }},
	},
}

// GetMACPayloadAndSize returns a new MACCommandPayload instance and its size.
func GetMACPayloadAndSize(uplink bool, c CID) (MACCommandPayload, int, error) {
	v, ok := macPayloadRegistry[uplink][c]
	if !ok {
		return nil, 0, fmt.Errorf("lorawan: payload unknown for uplink=%v and CID=%v", uplink, c)
	}
	return v.payload(), v.size, nil
}

// MACCommandPayload is the interface that every MACCommand payload must
// implement.
type MACCommandPayload interface {
	MarshalBinary() (data []byte, err error)
	UnmarshalBinary(data []byte) error
}

// MACCommand represents a MAC command with optional payload.
type MACCommand struct {
	CID     CID               `json:"cid"`
	Payload MACCommandPayload `json:"payload"`
}

// MarshalBinary marshals the object in binary form.
func (m MACCommand) MarshalBinary() ([]byte, error) {
	b := []byte{byte(m.CID)}
	if m.Payload != nil {
		p, err := m.Payload.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = append(b, p...)
	}
	return b, nil
}

// UnmarshalBinary decodes the object from binary form.
func (m *MACCommand) UnmarshalBinary(uplink bool, data []byte) error {
	if len(data) == 0 {
		return errors.New("lorawan: at least 1 byte of data is expected")
	}

	m.CID = CID(data[0])

	if len(data) > 1 {
		p, _, err := GetMACPayloadAndSize(uplink, m.CID)
		if err != nil {
			return err
		}
		m.Payload = p
		if err := m.Payload.UnmarshalBinary(data[1:]); err != nil {
			return err
		}
	}
	return nil
}

// LinkCheckAnsPayload represents the LinkCheckAns payload.
type LinkCheckAnsPayload struct {
	Margin uint8 `json:"margin"`
	GwCnt  uint8 `json:"gwCnt"`
}

// MarshalBinary marshals the object in binary form.
func (p LinkCheckAnsPayload) MarshalBinary() ([]byte, error) {
	return []byte{p.Margin, p.GwCnt}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *LinkCheckAnsPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return errors.New("lorawan: 2 bytes of data are expected")
	}
	p.Margin = data[0]
	p.GwCnt = data[1]
	return nil
}

// ChMask encodes the channels usable for uplink access. 0 = channel 1,
// 15 = channel 16.
type ChMask [16]bool

// MarshalBinary marshals the object in binary form.
func (m ChMask) MarshalBinary() ([]byte, error) {
	b := make([]byte, 2)
	for i := uint8(0); i < 16; i++ {
		if m[i] {
			b[i/8] ^= 1 << (i % 8)
		}
	}
	return b, nil
}

// UnmarshalBinary decodes the object from binary form.
func (m *ChMask) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return errors.New("lorawan: 2 bytes of data are expected")
	}
	for i, b := range data {
		for j := uint8(0); j < 8; j++ {
			if b&(1<<j) > 0 {
				m[uint8(i)*8+j] = true
			}
		}
	}
	return nil
}

// Uint16 packs the mask into the uint16 wire layout the node package's ADR
// engine works with (bit 0 = channel 1).
func (m ChMask) Uint16() uint16 {
	var v uint16
	for i := uint8(0); i < 16; i++ {
		if m[i] {
			v |= 1 << i
		}
	}
	return v
}

// Redundancy represents the redundancy field of LinkADRReq.
type Redundancy struct {
	ChMaskCntl uint8 `json:"chMaskCntl"`
	NbRep      uint8 `json:"nbRep"`
}

// MarshalBinary marshals the object in binary form.
func (r Redundancy) MarshalBinary() ([]byte, error) {
	if r.NbRep > 15 {
		return nil, errors.New("lorawan: max value of NbRep is 15")
	}
	if r.ChMaskCntl > 7 {
		return nil, errors.New("lorawan: max value of ChMaskCntl is 7")
	}
	return []byte{r.NbRep ^ (r.ChMaskCntl << 4)}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (r *Redundancy) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	r.NbRep = data[0] & 0x0F
	r.ChMaskCntl = (data[0] >> 4) & 0x07
	return nil
}

// LinkADRReqPayload represents the LinkADRReq payload.
type LinkADRReqPayload struct {
	DataRate   uint8      `json:"dataRate"`
	TXPower    uint8      `json:"txPower"`
	ChMask     ChMask     `json:"chMask"`
	Redundancy Redundancy `json:"redundancy"`
}

// MarshalBinary marshals the object in binary form.
func (p LinkADRReqPayload) MarshalBinary() ([]byte, error) {
	if p.DataRate > 15 {
		return nil, errors.New("lorawan: the max value of DataRate is 15")
	}
	if p.TXPower > 15 {
		return nil, errors.New("lorawan: the max value of TXPower is 15")
	}

	cm, err := p.ChMask.MarshalBinary()
	if err != nil {
		return nil, err
	}
	r, err := p.Redundancy.MarshalBinary()
	if err != nil {
		return nil, err
	}

	b := []byte{p.TXPower ^ (p.DataRate << 4)}
	b = append(b, cm...)
	b = append(b, r...)
	return b, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *LinkADRReqPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return errors.New("lorawan: 4 bytes of data are expected")
	}
	p.DataRate = (data[0] >> 4) & 0x0F
	p.TXPower = data[0] & 0x0F

	if err := p.ChMask.UnmarshalBinary(data[1:3]); err != nil {
		return err
	}
	return p.Redundancy.UnmarshalBinary(data[3:4])
}

// LinkADRAnsPayload represents the LinkADRAns payload.
type LinkADRAnsPayload struct {
	ChannelMaskACK bool `json:"channelMaskAck"`
	DataRateACK    bool `json:"dataRateAck"`
	PowerACK       bool `json:"powerAck"`
}

// MarshalBinary marshals the object in binary form.
func (p LinkADRAnsPayload) MarshalBinary() ([]byte, error) {
	var b byte
	if p.ChannelMaskACK {
		b ^= 1 << 0
	}
	if p.DataRateACK {
		b ^= 1 << 1
	}
	if p.PowerACK {
		b ^= 1 << 2
	}
	return []byte{b}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *LinkADRAnsPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	p.ChannelMaskACK = data[0]&(1<<0) > 0
	p.DataRateACK = data[0]&(1<<1) > 0
	p.PowerACK = data[0]&(1<<2) > 0
	return nil
}

// DutyCycleReqPayload represents the DutyCycleReq payload.
type DutyCycleReqPayload struct {
	MaxDCycle uint8 `json:"maxDCycle"`
}

// MarshalBinary marshals the object in binary form.
func (p DutyCycleReqPayload) MarshalBinary() ([]byte, error) {
	if p.MaxDCycle > 15 && p.MaxDCycle < 255 {
		return nil, errors.New("lorawan: only a MaxDCycle value of 0-15 and 255 is allowed")
	}
	return []byte{p.MaxDCycle}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *DutyCycleReqPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	p.MaxDCycle = data[0]
	return nil
}

// RXParamSetupReqPayload represents the RXParamSetupReq payload.
type RXParamSetupReqPayload struct {
	Frequency  uint32     `json:"frequency"`
	DLSettings DLSettings `json:"dlSettings"`
}

// MarshalBinary marshals the object in binary form.
func (p RXParamSetupReqPayload) MarshalBinary() ([]byte, error) {
	if p.Frequency/100 >= 16777216 {
		return nil, errors.New("lorawan: max value of Frequency is 2^24-1")
	}
	if p.Frequency%100 != 0 {
		return nil, errors.New("lorawan: Frequency must be a multiple of 100")
	}

	s, err := p.DLSettings.MarshalBinary()
	if err != nil {
		return nil, err
	}

	b := make([]byte, 5)
	b[0] = s[0]
	binary.LittleEndian.PutUint32(b[1:5], p.Frequency/100)
	return b[0:4], nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *RXParamSetupReqPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return errors.New("lorawan: 4 bytes of data are expected")
	}
	if err := p.DLSettings.UnmarshalBinary(data[0:1]); err != nil {
		return err
	}
	b := append(append([]byte(nil), data...), 0)
	p.Frequency = binary.LittleEndian.Uint32(b[1:5]) * 100
	return nil
}

// RXParamSetupAnsPayload represents the RXParamSetupAns payload.
type RXParamSetupAnsPayload struct {
	ChannelACK     bool `json:"channelAck"`
	RX2DataRateACK bool `json:"rx2DataRateAck"`
	RX1DROffsetACK bool `json:"rx1DROffsetAck"`
}

// MarshalBinary marshals the object in binary form.
func (p RXParamSetupAnsPayload) MarshalBinary() ([]byte, error) {
	var b byte
	if p.ChannelACK {
		b ^= 1 << 0
	}
	if p.RX2DataRateACK {
		b ^= 1 << 1
	}
	if p.RX1DROffsetACK {
		b ^= 1 << 2
	}
	return []byte{b}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *RXParamSetupAnsPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	p.ChannelACK = data[0]&(1<<0) > 0
	p.RX2DataRateACK = data[0]&(1<<1) > 0
	p.RX1DROffsetACK = data[0]&(1<<2) > 0
	return nil
}

// DevStatusAnsPayload represents the DevStatusAns payload.
type DevStatusAnsPayload struct {
	Battery uint8 `json:"battery"`
	Margin  int8  `json:"margin"`
}

// MarshalBinary marshals the object in binary form.
func (p DevStatusAnsPayload) MarshalBinary() ([]byte, error) {
	if p.Margin < -32 {
		return nil, errors.New("lorawan: min value of Margin is -32")
	}
	if p.Margin > 31 {
		return nil, errors.New("lorawan: max value of Margin is 31")
	}

	b := []byte{p.Battery}
	if p.Margin < 0 {
		b = append(b, uint8(64+p.Margin))
	} else {
		b = append(b, uint8(p.Margin))
	}
	return b, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *DevStatusAnsPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 2 {
		return errors.New("lorawan: 2 bytes of data are expected")
	}
	p.Battery = data[0]
	if data[1] > 31 {
		p.Margin = int8(data[1]) - 64
	} else {
		p.Margin = int8(data[1])
	}
	return nil
}

// NewChannelReqPayload represents the NewChannelReq payload.
type NewChannelReqPayload struct {
	ChIndex uint8  `json:"chIndex"`
	Freq    uint32 `json:"freq"`
	MaxDR   uint8  `json:"maxDR"`
	MinDR   uint8  `json:"minDR"`
}

// MarshalBinary marshals the object in binary form.
func (p NewChannelReqPayload) MarshalBinary() ([]byte, error) {
	if p.Freq/100 >= 16777216 {
		return nil, errors.New("lorawan: max value of Freq is 2^24-1")
	}
	if p.Freq%100 != 0 {
		return nil, errors.New("lorawan: Freq must be a multiple of 100")
	}
	if p.MaxDR > 15 || p.MinDR > 15 {
		return nil, errors.New("lorawan: max value of MinDR/MaxDR is 15")
	}

	b := make([]byte, 5)
	binary.LittleEndian.PutUint32(b[1:5], p.Freq/100)
	b[0] = p.ChIndex
	b[4] = p.MinDR ^ (p.MaxDR << 4)
	return b, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *NewChannelReqPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 5 {
		return errors.New("lorawan: 5 bytes of data are expected")
	}
	p.ChIndex = data[0]
	p.MinDR = data[4] & 0x0F
	p.MaxDR = (data[4] >> 4) & 0x0F

	b := append([]byte(nil), data...)
	b[4] = 0
	p.Freq = binary.LittleEndian.Uint32(b[1:5]) * 100
	return nil
}

// NewChannelAnsPayload represents the NewChannelAns payload.
type NewChannelAnsPayload struct {
	ChannelFrequencyOK bool `json:"channelFrequencyOK"`
	DataRateRangeOK    bool `json:"dataRateRangeOK"`
}

// MarshalBinary marshals the object in binary form.
func (p NewChannelAnsPayload) MarshalBinary() ([]byte, error) {
	var b byte
	if p.ChannelFrequencyOK {
		b ^= 1 << 0
	}
	if p.DataRateRangeOK {
		b ^= 1 << 1
	}
	return []byte{b}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *NewChannelAnsPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	p.ChannelFrequencyOK = data[0]&(1<<0) > 0
	p.DataRateRangeOK = data[0]&(1<<1) > 0
	return nil
}

// RXTimingSetupReqPayload represents the RXTimingSetupReq payload.
type RXTimingSetupReqPayload struct {
	Delay uint8 `json:"delay"` // 0 and 1 both mean 1s, 2=2s, ... 15=15s
}

// MarshalBinary marshals the object in binary form.
func (p RXTimingSetupReqPayload) MarshalBinary() ([]byte, error) {
	if p.Delay > 15 {
		return nil, errors.New("lorawan: the max value of Delay is 15")
	}
	return []byte{p.Delay}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *RXTimingSetupReqPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	p.Delay = data[0]
	return nil
}

// TXParamSetupReqPayload represents the TXParamSetupReq payload. The node
// stack does not act on it (EIRP-limited regions are out of scope) but
// still needs its size to skip the command correctly.
type TXParamSetupReqPayload struct {
	Raw byte
}

// MarshalBinary marshals the object in binary form.
func (p TXParamSetupReqPayload) MarshalBinary() ([]byte, error) {
	return []byte{p.Raw}, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *TXParamSetupReqPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 1 {
		return errors.New("lorawan: 1 byte of data is expected")
	}
	p.Raw = data[0]
	return nil
}

// DLChannelReqPayload represents the DLChannelReq payload. Like
// TXParamSetupReqPayload, the node stack only needs this to skip the
// command with the right size; additional downlink channels are out of
// scope.
type DLChannelReqPayload struct {
	ChIndex uint8  `json:"chIndex"`
	Freq    uint32 `json:"freq"`
}

// MarshalBinary marshals the object in binary form.
func (p DLChannelReqPayload) MarshalBinary() ([]byte, error) {
	if p.Freq/100 >= 16777216 {
		return nil, errors.New("lorawan: max value of Freq is 2^24-1")
	}
	b := make([]byte, 5)
	b[0] = p.ChIndex
	binary.LittleEndian.PutUint32(b[1:5], p.Freq/100)
	return b[0:4], nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *DLChannelReqPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return errors.New("lorawan: 4 bytes of data are expected")
	}
	p.ChIndex = data[0]
	b := append(append([]byte(nil), data[1:]...), 0)
	p.Freq = binary.LittleEndian.Uint32(b) * 100
	return nil
}

// DeviceTimeAnsPayload represents the DeviceTimeAns payload: seconds since
// the GPS epoch plus a fractional-second byte in 1/256s units.
type DeviceTimeAnsPayload struct {
	SecondsSinceGPSEpoch uint32 `json:"secondsSinceGPSEpoch"`
	FracSecond           uint8  `json:"fracSecond"`
}

// MarshalBinary marshals the object in binary form.
func (p DeviceTimeAnsPayload) MarshalBinary() ([]byte, error) {
	b := make([]byte, 5)
	binary.LittleEndian.PutUint32(b[0:4], p.SecondsSinceGPSEpoch)
	b[4] = p.FracSecond
	return b, nil
}

// UnmarshalBinary decodes the object from binary form.
func (p *DeviceTimeAnsPayload) UnmarshalBinary(data []byte) error {
	if len(data) != 5 {
		return errors.New("lorawan: 5 bytes of data are expected")
	}
	p.SecondsSinceGPSEpoch = binary.LittleEndian.Uint32(data[0:4])
	p.FracSecond = data[4]
	return nil
}
