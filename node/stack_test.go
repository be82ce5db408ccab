package node

import (
	"testing"

	lorawan "github.com/airframe-iot/lorawan-node"
	"github.com/airframe-iot/lorawan-node/band"
	"github.com/airframe-iot/lorawan-node/radio"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeRadio is a minimal radio.Radio double: it records the last
// transmitted frame and hands back a canned received packet, driven
// entirely by the test calling its recorded event handler - there is no
// real transceiver or timing behind it.
type fakeRadio struct {
	handler   radio.EventHandler
	randVal   uint32
	lastTX    []byte
	lastSetup []radio.PacketParams
	rxPacket  radio.Packet
	rxErr     error
}

func (f *fakeRadio) Init() error                               { return nil }
func (f *fakeRadio) Sleep() error                              { return nil }
func (f *fakeRadio) SetFrequency(hz uint32) error               { return nil }
func (f *fakeRadio) SetPower(dBm int) error                     { return nil }
func (f *fakeRadio) SetPublicNetwork(public bool) error         { return nil }
func (f *fakeRadio) TX(data []byte) error                       { f.lastTX = data; return nil }
func (f *fakeRadio) RX(maxLen, symTimeout, msTimeout int) error  { return nil }
func (f *fakeRadio) ReadPacket() (radio.Packet, error)           { return f.rxPacket, f.rxErr }
func (f *fakeRadio) Rand() (uint32, error)                       { return f.randVal, nil }
func (f *fakeRadio) SetEventHandler(h radio.EventHandler)        { f.handler = h }
func (f *fakeRadio) TCXOWarmupMillis() int                       { return 0 }

func (f *fakeRadio) Setup(p radio.PacketParams) error {
	f.lastSetup = append(f.lastSetup, p)
	return nil
}

// fakeHAL records armed/cancelled timers without ever firing them; tests
// drive TimerCallback directly instead of waiting on real timers.
type fakeHAL struct {
	started []radio.TimerID
	stopped []radio.TimerID
}

func (h *fakeHAL) StartTimer(id radio.TimerID, ms int) error {
	h.started = append(h.started, id)
	return nil
}

func (h *fakeHAL) StopTimer(id radio.TimerID) error {
	h.stopped = append(h.stopped, id)
	return nil
}

func TestJoinHappyPath(t *testing.T) {
	Convey("Given a fresh stack with OTAA keys and a PRNG seed that draws DevNonce 0x4567", t, func() {
		r := &fakeRadio{randVal: 20141}
		hal := &fakeHAL{}

		s, err := NewStack(r, hal, band.EU868())
		So(err, ShouldBeNil)

		appKey := lorawan.AES128Key(repeatKey(4, 5, 6, 7))
		s.SetOTAAKeys(
			lorawan.EUI64{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88},
			lorawan.EUI64{0, 1, 2, 3, 4, 5, 6, 7},
			appKey,
		)

		var result Result
		callbacks := 0
		err = s.Join(func(res Result) {
			result = res
			callbacks++
		})
		So(err, ShouldBeNil)
		So(s.state, ShouldEqual, StateTx)

		Convey("When the radio reports TX done and then delivers a matching join-accept in RX1", func() {
			r.handler(radio.EventTxDone)
			So(s.state, ShouldEqual, StateRx1)
			So(len(hal.started), ShouldEqual, 2)

			ja := &lorawan.JoinAcceptPayload{
				AppNonce:   [3]byte{0x01, 0x02, 0x03},
				NetID:      lorawan.NetID{0x01, 0x02, 0x03},
				DevAddr:    lorawan.DevAddr{0x01, 0x02, 0x03, 0x04},
				DLSettings: lorawan.DLSettings{RX1DROffset: 0, RX2DataRate: 0},
				RXDelay:    1,
			}
			phy := lorawan.PHYPayload{
				MHDR:       lorawan.MHDR{MType: lorawan.JoinAccept, Major: lorawan.LoRaWANR1},
				MACPayload: ja,
			}
			So(phy.SetUplinkJoinMIC(appKey), ShouldBeNil)
			So(phy.EncryptJoinAcceptPayload(appKey), ShouldBeNil)
			data, err := phy.MarshalBinary()
			So(err, ShouldBeNil)

			r.rxPacket = radio.Packet{Data: data, SNR: 5}
			r.handler(radio.EventRxDone)

			Convey("Then the callback fires exactly once reporting success and the stack is joined", func() {
				So(callbacks, ShouldEqual, 1)
				So(result.Err, ShouldBeNil)
				So(result.Joined, ShouldBeTrue)
				So(s.IsJoined(), ShouldBeTrue)
				So(s.state, ShouldEqual, StateIdle)
				So(hal.stopped, ShouldContain, radio.TimerRX2)
			})
		})
	})
}

func TestJoinRejectedOnBothWindowsTimingOut(t *testing.T) {
	Convey("Given a stack mid-join", t, func() {
		r := &fakeRadio{randVal: 20141}
		hal := &fakeHAL{}
		s, err := NewStack(r, hal, band.EU868())
		So(err, ShouldBeNil)
		s.SetOTAAKeys(lorawan.EUI64{1}, lorawan.EUI64{2}, lorawan.AES128Key{})

		var result Result
		So(s.Join(func(res Result) { result = res }), ShouldBeNil)
		r.handler(radio.EventTxDone)

		Convey("When RX1 times out and then RX2 times out", func() {
			r.handler(radio.EventRxTimeout)
			So(s.state, ShouldEqual, StateRx2)
			r.handler(radio.EventRxTimeout)

			Convey("Then the callback reports a timeout and the stack returns to idle", func() {
				So(result.Err, ShouldEqual, ErrRXTimeout)
				So(s.state, ShouldEqual, StateIdle)
			})
		})
	})
}

func TestTransmitUsesCRCOnAndNonInvertedIQ(t *testing.T) {
	Convey("Given a fresh stack sending a join-request", t, func() {
		r := &fakeRadio{randVal: 1}
		hal := &fakeHAL{}
		s, err := NewStack(r, hal, band.EU868())
		So(err, ShouldBeNil)
		s.SetOTAAKeys(lorawan.EUI64{1}, lorawan.EUI64{2}, lorawan.AES128Key{})

		So(s.Join(func(Result) {}), ShouldBeNil)

		Convey("Then the TX packet params enable CRC and leave IQ non-inverted", func() {
			So(len(r.lastSetup), ShouldEqual, 1)
			So(r.lastSetup[0].CRCOn, ShouldBeTrue)
			So(r.lastSetup[0].InvertIQ, ShouldBeFalse)
		})
	})
}

func TestOpenWindowUsesInvertedIQForBothRXWindows(t *testing.T) {
	Convey("Given a stack mid-join that has transmitted", t, func() {
		r := &fakeRadio{randVal: 1}
		hal := &fakeHAL{}
		s, err := NewStack(r, hal, band.EU868())
		So(err, ShouldBeNil)
		s.SetOTAAKeys(lorawan.EUI64{1}, lorawan.EUI64{2}, lorawan.AES128Key{})
		So(s.Join(func(Result) {}), ShouldBeNil)
		r.handler(radio.EventTxDone)

		Convey("When the RX1 timer fires and opens the window", func() {
			s.TimerCallback(radio.TimerRX1)

			Convey("Then RX1 is set up with CRC-on and inverted IQ", func() {
				So(len(r.lastSetup), ShouldEqual, 2)
				So(r.lastSetup[1].CRCOn, ShouldBeTrue)
				So(r.lastSetup[1].InvertIQ, ShouldBeTrue)
			})

			Convey("When RX1 times out and the RX2 timer fires and opens the window", func() {
				r.handler(radio.EventRxTimeout)
				s.TimerCallback(radio.TimerRX2)

				Convey("Then RX2 is also set up with CRC-on and inverted IQ", func() {
					So(len(r.lastSetup), ShouldEqual, 3)
					So(r.lastSetup[2].CRCOn, ShouldBeTrue)
					So(r.lastSetup[2].InvertIQ, ShouldBeTrue)
				})
			})
		})
	})
}

func TestSetRX2RejectsFrequencyOutsideBand(t *testing.T) {
	Convey("Given a fresh EU868 stack", t, func() {
		r := &fakeRadio{randVal: 1}
		hal := &fakeHAL{}
		s, err := NewStack(r, hal, band.EU868())
		So(err, ShouldBeNil)

		Convey("When SetRX2 is given a frequency below the 860-870MHz band", func() {
			err := s.SetRX2(859000000, 0)

			Convey("Then it is rejected with ErrFrequency and RX2 is left unchanged", func() {
				So(err, ShouldEqual, ErrFrequency)
				So(s.rx2Freq, ShouldEqual, uint32(868100000))
			})
		})

		Convey("When SetRX2 is given a frequency above the band", func() {
			err := s.SetRX2(871000000, 0)

			Convey("Then it is rejected with ErrFrequency", func() {
				So(err, ShouldEqual, ErrFrequency)
			})
		})

		Convey("When SetRX2 is given a valid in-band frequency", func() {
			err := s.SetRX2(869525000, 3)

			Convey("Then it is accepted", func() {
				So(err, ShouldBeNil)
				So(s.rx2Freq, ShouldEqual, uint32(869525000))
				So(s.rx2DR, ShouldEqual, uint8(3))
			})
		})
	})
}

func TestGetMaxPayloadSizeSubtractsPendingMACQueue(t *testing.T) {
	Convey("Given a joined stack with MAC answers queued", t, func() {
		r := &fakeRadio{randVal: 1}
		hal := &fakeHAL{}
		s, err := NewStack(r, hal, band.EU868())
		So(err, ShouldBeNil)
		So(s.SetSession(1, [16]byte{}, [16]byte{}, 0), ShouldBeNil)

		full, err := s.region.MaxPayloadSize(0)
		So(err, ShouldBeNil)

		s.mq.enqueue(0x03, nil)

		Convey("Then GetMaxPayloadSize reports the DR maximum minus the queued bytes", func() {
			got, err := s.GetMaxPayloadSize()
			So(err, ShouldBeNil)
			So(got, ShouldEqual, full-1)
		})
	})
}

func TestSendFrameRejectsEmptyPayloadWithEmptyQueue(t *testing.T) {
	Convey("Given a joined, idle stack with nothing queued", t, func() {
		r := &fakeRadio{randVal: 1}
		hal := &fakeHAL{}
		s, err := NewStack(r, hal, band.EU868())
		So(err, ShouldBeNil)
		So(s.SetSession(1, [16]byte{}, [16]byte{}, 0), ShouldBeNil)

		Convey("When SendFrame is called with an empty payload", func() {
			err := s.SendFrame(1, nil, false, nil)

			Convey("Then it is rejected with ErrMsgLen", func() {
				So(err, ShouldEqual, ErrMsgLen)
			})
		})

		Convey("When the MAC queue has a pending answer and the payload is still empty", func() {
			s.mq.enqueue(0x03, nil)
			err := s.SendFrame(1, nil, false, func(Result) {})

			Convey("Then it is allowed through, since the queued MAC answer alone is worth sending", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}

func TestRx1DataRateFormula(t *testing.T) {
	Convey("Given every DR/offset combination the region supports", t, func() {
		s := &Stack{}
		for dr := uint8(0); dr <= 5; dr++ {
			for offset := uint8(0); offset <= 5; offset++ {
				s.sess.DR = dr
				s.rx1DROffset = offset
				got := s.rx1DataRate()

				want := int(dr) - int(offset)
				if want < 0 {
					want = 0
				}
				So(got, ShouldEqual, want)
			}
		}
	})
}
