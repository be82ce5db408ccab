package node

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// TestADREngineDownTier is the ADR down-tier scenario: a silent network
// eventually forces the data rate down by one step and raises
// ADR_ACK_REQ, and a single accepted downlink clears it again.
func TestADREngineDownTier(t *testing.T) {
	Convey("Given ADR enabled with ack_limit=2, ack_delay=2, starting at DR5", t, func() {
		a := newADREngine()
		a.Enable(true)
		a.SetupAck(2, 2)
		dr := uint8(5)

		Convey("When 5 uplinks are built without any downlink", func() {
			for i := 0; i < 5; i++ {
				dr = a.OnUplinkBuilt(dr)
			}

			Convey("Then the data rate has dropped one tier and ADR_ACK_REQ is clear", func() {
				So(dr, ShouldEqual, uint8(4))
				So(a.ADRAckReq(dr), ShouldBeFalse)
			})

			Convey("When 2 more uplinks are built", func() {
				for i := 0; i < 2; i++ {
					dr = a.OnUplinkBuilt(dr)
				}

				Convey("Then ADR_ACK_REQ is now set", func() {
					So(dr, ShouldEqual, uint8(4))
					So(a.ADRAckReq(dr), ShouldBeTrue)
				})

				Convey("Then a single accepted downlink clears it", func() {
					a.OnDownlinkAccepted()
					So(a.ADRAckReq(dr), ShouldBeFalse)
				})
			})
		})
	})
}

func TestADREngineDisabledNeverDownTiers(t *testing.T) {
	Convey("Given ADR disabled", t, func() {
		a := newADREngine()
		a.SetupAck(2, 2)
		dr := uint8(5)

		Convey("When many uplinks are built", func() {
			for i := 0; i < 50; i++ {
				dr = a.OnUplinkBuilt(dr)
			}

			Convey("Then the data rate never moves and ADR_ACK_REQ is never requested", func() {
				So(dr, ShouldEqual, uint8(5))
				So(a.ADRAckReq(dr), ShouldBeFalse)
			})
		})
	})
}
