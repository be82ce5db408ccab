package node

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSessionSaveRestoreRoundTrip(t *testing.T) {
	Convey("Given a populated session", t, func() {
		s := session{
			Joined:      true,
			AckRequired: true,
			DR:          3,
			DevAddr:     0x01020304,
			FCntUp:      17,
			FCntDown:    42,
			NwkSKey:     repeatKey(0, 1, 2, 3),
			AppSKey:     repeatKey(4, 5, 6, 7),
		}

		Convey("When it is saved and restored", func() {
			buf := make([]byte, sessionBlobSize)
			n, err := s.save(buf)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, sessionBlobSize)

			var restored session
			So(restored.restore(buf), ShouldBeNil)

			Convey("Then the restored session equals the original", func() {
				So(restored, ShouldResemble, s)
			})
		})

		Convey("When any single byte of the saved blob is corrupted, restore rejects it", func() {
			buf := make([]byte, sessionBlobSize)
			_, err := s.save(buf)
			So(err, ShouldBeNil)

			for i := range buf {
				corrupt := append([]byte(nil), buf...)
				corrupt[i] ^= 0xFF

				var restored session
				So(restored.restore(corrupt), ShouldNotBeNil)
			}
		})
	})
}

func TestSessionRestoreRejectsWrongSize(t *testing.T) {
	Convey("Given a blob of the wrong length", t, func() {
		var restored session
		err := restored.restore(make([]byte, sessionBlobSize-1))
		So(err, ShouldNotBeNil)
	})
}
