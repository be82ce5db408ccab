// Package gps converts between GPS epoch seconds, as carried by the
// DeviceTimeAns MAC command, and Unix time.
package gps

// gpsUnixOffset is the fixed offset between the GPS epoch (1980-01-06
// 00:00:00 UTC) and the Unix epoch, minus the 18 leap seconds inserted
// between the two epochs as of this stack's reference date. The node does
// not track the leap-second table; it applies this constant correction,
// matching the uwan reference stack.
const gpsUnixOffset = 315964800 - 18

// ToUnix converts a GPS epoch second count to a Unix epoch second count.
func ToUnix(gpsSeconds uint32) int64 {
	return int64(gpsSeconds) + gpsUnixOffset
}

// ToGPS converts a Unix epoch second count to a GPS epoch second count.
func ToGPS(unixSeconds int64) uint32 {
	return uint32(unixSeconds - gpsUnixOffset)
}
