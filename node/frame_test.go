package node

import (
	"testing"

	lorawan "github.com/airframe-iot/lorawan-node"
	"github.com/airframe-iot/lorawan-node/band"
	. "github.com/smartystreets/goconvey/convey"
)

func repeatKey(b0, b1, b2, b3 byte) [16]byte {
	var k [16]byte
	for i := 0; i < 16; i += 4 {
		k[i], k[i+1], k[i+2], k[i+3] = b0, b1, b2, b3
	}
	return k
}

func TestBuildUplinkFrameMIC(t *testing.T) {
	Convey("Given a joined session with a known DevAddr, FCntUp and session keys", t, func() {
		s := &Stack{
			mq:  &macQueue{},
			adr: newADREngine(),
			sess: session{
				Joined:  true,
				DevAddr: 0x01020304,
				FCntUp:  2,
				NwkSKey: repeatKey(0x00, 0x01, 0x02, 0x03),
				AppSKey: repeatKey(0x04, 0x05, 0x06, 0x07),
			},
		}

		Convey("When an unconfirmed uplink on FPort 4 carrying {0,1,2,3} is built", func() {
			frame, err := s.buildUplinkFrame(4, []byte{0, 1, 2, 3}, false)
			So(err, ShouldBeNil)

			Convey("Then the trailing MIC and the preceding encrypted payload match the known-answer frame", func() {
				So(frame[len(frame)-4:], ShouldResemble, []byte{0xbf, 0x26, 0x16, 0x0a})
				So(frame[len(frame)-8:len(frame)-4], ShouldResemble, []byte{0xb8, 0x66, 0x87, 0x5b})
			})

			Convey("Then FCntUp has advanced by exactly one", func() {
				So(s.sess.FCntUp, ShouldEqual, uint32(3))
			})
		})
	})
}

func TestBuildUplinkFrameFCntMonotonic(t *testing.T) {
	Convey("Given a joined session", t, func() {
		s := &Stack{
			mq:  &macQueue{},
			adr: newADREngine(),
			sess: session{
				Joined:  true,
				DevAddr: 0x01020304,
				FCntUp:  41,
				NwkSKey: repeatKey(0, 1, 2, 3),
				AppSKey: repeatKey(4, 5, 6, 7),
			},
		}

		Convey("When ten uplinks are built back to back", func() {
			for i := 0; i < 10; i++ {
				before := s.sess.FCntUp
				frame, err := s.buildUplinkFrame(1, []byte{byte(i)}, false)
				So(err, ShouldBeNil)
				So(s.sess.FCntUp, ShouldEqual, before+1)

				fCntLow := uint16(frame[6]) | uint16(frame[7])<<8
				So(fCntLow, ShouldEqual, uint16(before))
			}
		})
	})
}

func TestBuildJoinRequest(t *testing.T) {
	Convey("Given OTAA identities and a PRNG seed that draws DevNonce 0x4567", t, func() {
		s := &Stack{
			rnd:    newRNG(57384),
			appEUI: lorawan.EUI64{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88},
			devEUI: lorawan.EUI64{0, 1, 2, 3, 4, 5, 6, 7},
			appKey: lorawan.AES128Key(repeatKey(4, 5, 6, 7)),
		}

		Convey("When a join-request is built", func() {
			frame, devNonce, err := s.buildJoinRequest()
			So(err, ShouldBeNil)
			So(devNonce, ShouldEqual, lorawan.DevNonce(0x4567))

			Convey("Then the wire bytes are MHDR, AppEUI, DevEUI, DevNonce and a 4 byte MIC", func() {
				So(len(frame), ShouldEqual, 1+8+8+2+4)
				So(frame[0], ShouldEqual, byte(0x00))
				So(frame[1:9], ShouldResemble, []byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11})
				So(frame[9:17], ShouldResemble, []byte{7, 6, 5, 4, 3, 2, 1, 0})
				So(frame[17:19], ShouldResemble, []byte{0x67, 0x45})
			})
		})
	})
}

func TestJoinAcceptRoundTrip(t *testing.T) {
	Convey("Given a stack waiting on a join-accept for a known DevNonce", t, func() {
		appKey := lorawan.AES128Key(repeatKey(4, 5, 6, 7))
		s := &Stack{
			region: band.EU868(),
			adr:    newADREngine(),
			appKey: appKey,
		}
		s.channels = newChannelTable(newRNG(1))
		s.region.Init(s.channels)

		devNonce := lorawan.DevNonce(0x4567)

		ja := &lorawan.JoinAcceptPayload{
			AppNonce: [3]byte{0x01, 0x02, 0x03},
			NetID:    lorawan.NetID{0x01, 0x02, 0x03},
			DevAddr:  lorawan.DevAddr{0x01, 0x02, 0x03, 0x04},
			DLSettings: lorawan.DLSettings{
				RX1DROffset: 1,
				RX2DataRate: 3,
			},
			RXDelay: 2,
		}

		phy := lorawan.PHYPayload{
			MHDR:       lorawan.MHDR{MType: lorawan.JoinAccept, Major: lorawan.LoRaWANR1},
			MACPayload: ja,
		}

		Convey("When it is signed, encrypted and fed back to parseJoinAccept", func() {
			So(phy.SetUplinkJoinMIC(appKey), ShouldBeNil)
			So(phy.EncryptJoinAcceptPayload(appKey), ShouldBeNil)

			data, err := phy.MarshalBinary()
			So(err, ShouldBeNil)

			So(s.IsJoined(), ShouldBeFalse)
			err = s.parseJoinAccept(data, devNonce)
			So(err, ShouldBeNil)

			Convey("Then the stack holds a fresh, joined session with the derived keys and RX parameters", func() {
				So(s.IsJoined(), ShouldBeTrue)
				So(s.sess.DevAddr, ShouldEqual, uint32(0x01020304))
				So(s.sess.FCntUp, ShouldEqual, uint32(0))
				So(s.sess.FCntDown, ShouldEqual, uint32(0))
				So(s.rx1DROffset, ShouldEqual, uint8(1))
				So(s.rx2DR, ShouldEqual, uint8(3))
				So(s.rx1Delay, ShouldEqual, uint8(2))
			})
		})
	})
}

func TestParseDownlinkDataFrameReplayRejected(t *testing.T) {
	Convey("Given a session whose FCntDown is already 5", t, func() {
		s := &Stack{
			adr: newADREngine(),
			mq:  &macQueue{},
			sess: session{
				Joined:   true,
				DevAddr:  0x01020304,
				FCntDown: 5,
				NwkSKey:  repeatKey(0, 1, 2, 3),
				AppSKey:  repeatKey(4, 5, 6, 7),
			},
		}

		fctrl, err := lorawan.NewFCtrl(false, false, false, false, 0)
		So(err, ShouldBeNil)

		phy := lorawan.PHYPayload{
			MHDR: lorawan.MHDR{MType: lorawan.UnconfirmedDataDown, Major: lorawan.LoRaWANR1},
			MACPayload: &lorawan.MACPayload{
				FHDR: lorawan.FHDR{
					DevAddr: devAddrFromUint32(s.sess.DevAddr),
					FCtrl:   fctrl,
					FCnt:    5,
				},
			},
		}
		data, err := phy.MarshalBinary()
		So(err, ShouldBeNil)

		Convey("When a downlink carrying the same low16 FCnt arrives", func() {
			_, _, _, err := s.parseDownlinkDataFrame(data)

			Convey("Then it is rejected as a replay and FCntDown is unchanged", func() {
				So(err, ShouldEqual, ErrFCnt)
				So(s.sess.FCntDown, ShouldEqual, uint32(5))
			})
		})
	})
}

func TestReconstructFCntDown(t *testing.T) {
	Convey("Given reconstructFCntDown", t, func() {
		Convey("A zero previous counter trusts the wire value verbatim", func() {
			So(reconstructFCntDown(0, 0x1234), ShouldEqual, uint32(0x1234))
		})
		Convey("A matching low16 is a replay", func() {
			So(reconstructFCntDown(10, 10), ShouldEqual, uint32(10))
		})
		Convey("A larger low16 advances linearly", func() {
			So(reconstructFCntDown(10, 15), ShouldEqual, uint32(15))
		})
		Convey("A smaller low16 wraps the high half forward by one", func() {
			So(reconstructFCntDown(0x1FFFE, 0x0002), ShouldEqual, uint32(0x20002))
		})
	})
}
