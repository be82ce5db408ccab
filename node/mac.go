package node

import (
	lorawan "github.com/airframe-iot/lorawan-node"
	"github.com/airframe-iot/lorawan-node/gps"
)

// downlinkCommandSizes gives the payload size of every CID a Class-A 1.0.x
// device accepts downlink. lorawan.GetMACPayloadAndSize omits the
// zero-payload commands (DevStatusReq), so the dispatcher keeps its own
// table instead of leaning on the codec registry.
var downlinkCommandSizes = map[lorawan.CID]int{
	lorawan.LinkCheckAns:     2,
	lorawan.LinkADRReq:       4,
	lorawan.DutyCycleReq:     1,
	lorawan.RXParamSetupReq:  4,
	lorawan.DevStatusReq:     0,
	lorawan.NewChannelReq:    5,
	lorawan.RXTimingSetupReq: 1,
	lorawan.TXParamSetupReq:  1,
	lorawan.DLChannelReq:     4,
	lorawan.DeviceTimeAns:    5,
}

// handleDownlinkMACCommands walks a back-to-back CID+payload byte stream -
// either FOpts or a decrypted FPort=0 FRMPayload - and dispatches each
// command in turn. Parsing stops at the first unknown command or the first
// command whose declared size does not fit the bytes remaining: that
// command and everything after it are skipped, while the commands before
// it have already been applied.
func (s *Stack) handleDownlinkMACCommands(data []byte) {
	for len(data) > 0 {
		cid := lorawan.CID(data[0])
		data = data[1:]

		size, known := downlinkCommandSizes[cid]
		if !known {
			logger.WithField("cid", cid).Debug("node: unknown mac command, abandoning batch")
			return
		}
		if len(data) < size {
			logger.WithField("cid", cid).Debug("node: truncated mac command, abandoning batch")
			return
		}

		payload := data[:size]
		data = data[size:]

		s.handleMACCommand(cid, payload)
	}
}

func (s *Stack) handleMACCommand(cid lorawan.CID, payload []byte) {
	switch cid {
	case lorawan.LinkCheckAns:
		s.handleLinkCheckAns(payload)
	case lorawan.LinkADRReq:
		s.handleLinkADRReq(payload)
	case lorawan.DutyCycleReq:
		s.mq.enqueue(byte(lorawan.DutyCycleAns), nil)
	case lorawan.RXParamSetupReq:
		s.handleRXParamSetupReq(payload)
	case lorawan.DevStatusReq:
		s.handleDevStatusReq()
	case lorawan.NewChannelReq:
		s.handleNewChannelReq(payload)
	case lorawan.RXTimingSetupReq:
		s.handleRXTimingSetupReq(payload)
	case lorawan.TXParamSetupReq, lorawan.DLChannelReq:
		// Neither EIRP-limited regions nor extra downlink channels are
		// implemented; the command is accepted silently, no answer queued.
	case lorawan.DeviceTimeAns:
		s.handleDeviceTimeAns(payload)
	}
}

func (s *Stack) handleLinkCheckAns(payload []byte) {
	var ans lorawan.LinkCheckAnsPayload
	if err := ans.UnmarshalBinary(payload); err != nil {
		return
	}
	if s.onLinkCheck != nil {
		s.onLinkCheck(ans.Margin, ans.GwCnt)
	}
}

// handleLinkADRReq validates the three independently-acked fields (data
// rate, TX power, channel mask) and commits them only if all three check
// out - a partial commit would leave the device and network disagreeing
// about which parameters took effect.
func (s *Stack) handleLinkADRReq(payload []byte) {
	var req lorawan.LinkADRReqPayload
	if err := req.UnmarshalBinary(payload); err != nil {
		logger.WithError(err).Debug("node: malformed linkadrreq")
		return
	}

	chMaskCntl := req.Redundancy.ChMaskCntl & 0x07
	mask := req.ChMask.Uint16()

	drOK := s.validDataRate(req.DataRate)
	powerOK := s.validTXPower(req.TXPower)
	chMaskOK := s.region.HandleADRChannelMask(mask, chMaskCntl, true, s.channels)

	if drOK && powerOK && chMaskOK {
		s.sess.DR = req.DataRate
		s.txPowerIndex = req.TXPower
		s.adr.setNbTrans(req.Redundancy.NbRep)
		s.region.HandleADRChannelMask(mask, chMaskCntl, false, s.channels)
	}

	s.mq.enqueue(byte(lorawan.LinkADRAns), marshalOrEmpty(lorawan.LinkADRAnsPayload{
		ChannelMaskACK: chMaskOK,
		DataRateACK:    drOK,
		PowerACK:       powerOK,
	}))
}

func (s *Stack) handleRXParamSetupReq(payload []byte) {
	var req lorawan.RXParamSetupReqPayload
	if err := req.UnmarshalBinary(payload); err != nil {
		return
	}

	dr2OK := s.validDataRate(req.DLSettings.RX2DataRate)
	freqOK := req.Frequency >= 860000000 && req.Frequency <= 870000000

	if dr2OK && freqOK {
		s.rx2Freq = req.Frequency
		s.rx2DR = req.DLSettings.RX2DataRate
		s.rx1DROffset = req.DLSettings.RX1DROffset
	}

	s.mq.enqueue(byte(lorawan.RXParamSetupAns), marshalOrEmpty(lorawan.RXParamSetupAnsPayload{
		ChannelACK:     freqOK,
		RX2DataRateACK: dr2OK,
		RX1DROffsetACK: true, // masked to 3 bits on decode, always in range
	}))
}

func (s *Stack) handleDevStatusReq() {
	battery := uint8(255) // unmeasured, per the LoRaWAN battery-level convention
	if s.batteryFn != nil {
		battery = s.batteryFn()
	}

	margin := int8(s.lastSNR)
	switch {
	case margin < -32:
		margin = -32
	case margin > 31:
		margin = 31
	}

	s.mq.enqueue(byte(lorawan.DevStatusAns), marshalOrEmpty(lorawan.DevStatusAnsPayload{
		Battery: battery,
		Margin:  margin,
	}))
}

func (s *Stack) handleNewChannelReq(payload []byte) {
	var req lorawan.NewChannelReqPayload
	if err := req.UnmarshalBinary(payload); err != nil {
		return
	}

	freqOK := req.Freq >= 860000000 && req.Freq <= 870000000
	drRangeOK := req.MinDR == 0 && req.MaxDR == 5

	if freqOK && drRangeOK {
		if err := s.channels.Set(int(req.ChIndex), req.Freq); err != nil {
			freqOK = false
		}
	}

	s.mq.enqueue(byte(lorawan.NewChannelAns), marshalOrEmpty(lorawan.NewChannelAnsPayload{
		ChannelFrequencyOK: freqOK,
		DataRateRangeOK:    drRangeOK,
	}))
}

func (s *Stack) handleRXTimingSetupReq(payload []byte) {
	var req lorawan.RXTimingSetupReqPayload
	if err := req.UnmarshalBinary(payload); err != nil {
		return
	}

	delay := req.Delay
	if delay == 0 {
		delay = 1
	}
	s.rx1Delay = delay

	s.mq.enqueue(byte(lorawan.RXTimingSetupAns), nil)
}

func (s *Stack) handleDeviceTimeAns(payload []byte) {
	var ans lorawan.DeviceTimeAnsPayload
	if err := ans.UnmarshalBinary(payload); err != nil {
		return
	}
	if s.onDeviceTime != nil {
		s.onDeviceTime(gps.ToUnix(ans.SecondsSinceGPSEpoch))
	}
}

func (s *Stack) validDataRate(dr uint8) bool {
	_, err := s.region.DataRate(int(dr))
	return err == nil
}

func (s *Stack) validTXPower(p uint8) bool {
	return p <= 7
}

func marshalOrEmpty(p interface {
	MarshalBinary() ([]byte, error)
}) []byte {
	b, err := p.MarshalBinary()
	if err != nil {
		return nil
	}
	return b
}
