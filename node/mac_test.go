package node

import (
	"testing"

	lorawan "github.com/airframe-iot/lorawan-node"
	"github.com/airframe-iot/lorawan-node/band"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestStack() *Stack {
	s := &Stack{
		region: band.EU868(),
		adr:    newADREngine(),
		mq:     &macQueue{},
	}
	s.channels = newChannelTable(newRNG(7))
	rx2Freq, rx2DR := s.region.Init(s.channels)
	s.rx2Freq = rx2Freq
	s.rx2DR = rx2DR
	return s
}

// TestHandleDownlinkMACCommandsBatch drives the full nine-command FOpts
// batch described for the downlink MAC batch scenario and checks both the
// RX parameter side-effects and the exact, order-preserved answer bytes
// queued for the next uplink.
func TestHandleDownlinkMACCommandsBatch(t *testing.T) {
	Convey("Given a stack with the default EU868 channel plan", t, func() {
		s := newTestStack()
		s.lastSNR = -10 // biased DevStatusAns margin byte 0x36

		fOpts := []byte{
			byte(lorawan.LinkADRReq), 0x31, 0x07, 0x00, 0x01,
			byte(lorawan.DutyCycleReq), 0x00,
			byte(lorawan.RXParamSetupReq), 0x12, 0x40, 0x72, 0x84,
			byte(lorawan.DevStatusReq),
			byte(lorawan.NewChannelReq), 0x03, 0x40, 0x72, 0x84, 0x50,
			byte(lorawan.NewChannelReq), 0x04, 0x40, 0x72, 0x84, 0x41,
			byte(lorawan.RXTimingSetupReq), 0x00,
			byte(lorawan.TXParamSetupReq), 0x00,
			byte(lorawan.DLChannelReq), 0x00, 0x40, 0x72, 0x84,
		}

		Convey("When the batch is handled", func() {
			s.handleDownlinkMACCommands(fOpts)

			Convey("Then RXParamSetupReq's fields took effect", func() {
				So(s.rx1DROffset, ShouldEqual, uint8(1))
				So(s.rx2Freq, ShouldEqual, uint32(868000000))
				So(s.rx2DR, ShouldEqual, uint8(2))
			})

			Convey("Then RXTimingSetupReq's delay took effect", func() {
				So(s.rx1Delay, ShouldEqual, uint8(1))
			})

			Convey("Then the queued answers are emitted in FOpts order, one per request that defines one", func() {
				buf := make([]byte, macQueueSize)
				n := s.mq.drain(buf)
				So(buf[:n], ShouldResemble, []byte{
					byte(lorawan.LinkADRAns), 0x07,
					byte(lorawan.DutyCycleAns),
					byte(lorawan.RXParamSetupAns), 0x07,
					byte(lorawan.DevStatusAns), 255, 0x36,
					byte(lorawan.NewChannelAns), 0x03,
					byte(lorawan.NewChannelAns), 0x01,
					byte(lorawan.RXTimingSetupAns),
				})
			})
		})
	})
}

// TestHandleDownlinkMACCommandsTruncatedBatchAbandoned checks that parsing
// stops at a command whose declared payload size does not fit in what
// remains: the commands before it keep their effect, and nothing of the
// truncated command is applied.
func TestHandleDownlinkMACCommandsTruncatedBatchAbandoned(t *testing.T) {
	Convey("Given a batch whose second command is truncated", t, func() {
		s := newTestStack()

		fOpts := []byte{
			byte(lorawan.DutyCycleReq), 0x00,
			byte(lorawan.RXParamSetupReq), 0x12, 0x40, // only 2 of 4 payload bytes
		}

		Convey("When the batch is handled", func() {
			s.handleDownlinkMACCommands(fOpts)

			Convey("Then the first command still ran but nothing from the truncated one did", func() {
				buf := make([]byte, macQueueSize)
				n := s.mq.drain(buf)
				So(buf[:n], ShouldResemble, []byte{byte(lorawan.DutyCycleAns)})
				So(s.rx2Freq, ShouldEqual, uint32(868100000)) // EU868 Init default, RXParamSetupReq never applied
			})
		})
	})
}

// TestHandleLinkADRReqAccept is the LinkADRReq accept scenario: every
// independently-acked field is valid, so all three ack bits are set and
// the request is committed.
func TestHandleLinkADRReqAccept(t *testing.T) {
	Convey("Given a stack whose default channels cover the requested mask", t, func() {
		s := newTestStack()

		payload := []byte{0x21, 0x03, 0x00, 0x03}

		Convey("When a LinkADRReq(dr_txpow=0x21, ch_mask=0x0003, redundancy=0x03) is handled", func() {
			s.handleLinkADRReq(payload)

			Convey("Then the answer acks all three fields and the parameters are applied", func() {
				buf := make([]byte, macQueueSize)
				n := s.mq.drain(buf)
				So(buf[:n], ShouldResemble, []byte{byte(lorawan.LinkADRAns), 0x07})
				So(s.sess.DR, ShouldEqual, uint8(2))
				So(s.txPowerIndex, ShouldEqual, uint8(1))
				So(s.adr.nbTrans, ShouldEqual, uint8(3))
			})
		})
	})
}

// TestHandleLinkADRReqRejectsInvalidChannelMask checks that a channel-mask
// referencing a non-existent channel NAKs the whole request and commits
// nothing, even though DR and TXPower alone would have been valid.
func TestHandleLinkADRReqRejectsInvalidChannelMask(t *testing.T) {
	Convey("Given a stack whose channel 15 is never configured", t, func() {
		s := newTestStack()
		originalDR := s.sess.DR

		payload := []byte{0x21, 0x00, 0x80, 0x00} // ch_mask bit 15 set, chMaskCntl 0

		Convey("When the LinkADRReq is handled", func() {
			s.handleLinkADRReq(payload)

			Convey("Then the channel mask ack is false and nothing is committed", func() {
				buf := make([]byte, macQueueSize)
				n := s.mq.drain(buf)
				So(buf[:n], ShouldResemble, []byte{byte(lorawan.LinkADRAns), 0x06})
				So(s.sess.DR, ShouldEqual, originalDR)
			})
		})
	})
}
