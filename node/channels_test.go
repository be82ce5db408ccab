package node

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// TestChannelTablePickNeverReturnsDisabled is the universal invariant: for
// any seed and channel configuration, Pick either reports no channel or
// returns the frequency of an enabled one.
func TestChannelTablePickNeverReturnsDisabled(t *testing.T) {
	Convey("Given a channel table with a mix of enabled and disabled slots", t, func() {
		for seed := uint32(1); seed <= 200; seed++ {
			c := newChannelTable(newRNG(seed))
			c.Set(0, 868100000)
			c.Set(1, 868300000)
			c.Set(2, 868500000)
			c.Set(5, 867100000)
			c.Enable(1, false)
			c.Enable(5, false)

			for i := 0; i < 50; i++ {
				freq, ok := c.Pick()
				if ok {
					So(freq, ShouldBeIn, []uint32{868100000, 868500000})
				}
			}
		}
	})

	Convey("Given a channel table with nothing enabled", t, func() {
		c := newChannelTable(newRNG(3))
		_, ok := c.Pick()
		So(ok, ShouldBeFalse)
	})
}

func TestChannelTableEnableShrinksMaxCount(t *testing.T) {
	Convey("Given three enabled channels", t, func() {
		c := newChannelTable(newRNG(1))
		c.Set(0, 868100000)
		c.Set(1, 868300000)
		c.Set(2, 868500000)
		So(c.maxCount, ShouldEqual, uint8(3))

		Convey("When the highest enabled channel is disabled", func() {
			c.Enable(2, false)

			Convey("Then maxCount shrinks to the next still-enabled index", func() {
				So(c.maxCount, ShouldEqual, uint8(2))
				So(c.Exists(2), ShouldBeFalse)
			})
		})
	})
}
