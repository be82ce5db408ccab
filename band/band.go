// Package band provides the per-region plugin the node stack consults for
// data-rate/payload-size tables and for the two behaviors that differ by
// region: applying a join-accept's CFList and validating/applying an ADR
// channel-mask command.
package band

import (
	lorawan "github.com/airframe-iot/lorawan-node"
)

// DataRate describes one data-rate table entry. Only LoRa modulation is
// modeled - FSK and DR6+ (250kHz) are out of scope for this stack.
type DataRate struct {
	SpreadFactor int
	Bandwidth    int // kHz
}

// ChannelSink is the subset of the node channel table a Region mutates when
// applying a join-accept CFList or a LinkADRReq channel mask. It is
// implemented by the node package's channel table; band never imports node,
// this interface is the seam between the two.
type ChannelSink interface {
	// Set configures the frequency of channel index and enables it.
	Set(index int, frequency uint32) error
	// Enable enables or disables an already-configured channel index.
	Enable(index int, enabled bool) error
	// EnableAll enables every channel index currently holding a frequency.
	EnableAll()
	// Exists reports whether index currently holds a usable (enabled)
	// frequency.
	Exists(index int) bool
}

// Region is the interface a concrete regional plugin implements.
type Region interface {
	// Name returns the region's short name, e.g. "EU868".
	Name() string

	// Init configures the sink with this region's default channels and
	// returns the RX2 frequency/data-rate the device should start with.
	Init(sink ChannelSink) (rx2Frequency uint32, rx2DataRate uint8)

	// DataRate returns the SF/BW for data-rate index dr.
	DataRate(dr int) (DataRate, error)

	// MaxPayloadSize returns the maximum application payload size (N, i.e.
	// excluding FOpts/FPort overhead) for data-rate index dr.
	MaxPayloadSize(dr int) (int, error)

	// HandleCFList applies the optional channel-frequency list carried by a
	// join-accept to sink. A zero frequency at a slot disables that channel;
	// any other value configures and enables it.
	HandleCFList(cfList lorawan.CFList, sink ChannelSink) error

	// HandleADRChannelMask validates (dryRun=true) or applies (dryRun=false)
	// a LinkADRReq channel-mask/ChMaskCntl pair against sink. Returns false
	// when the combination is invalid or refers to a channel that does not
	// exist, in which case the ADR engine must NAK the whole request.
	HandleADRChannelMask(mask uint16, chMaskCntl uint8, dryRun bool, sink ChannelSink) bool
}

// handleChMaskCntl0 validates or applies a plain 16-bit channel mask against
// channel indices 0-15, shared by every region's common path.
func handleChMaskCntl0(mask uint16, dryRun bool, sink ChannelSink) bool {
	for i := 0; i < 16; i++ {
		enabled := mask&(1<<uint(i)) != 0
		if !enabled {
			continue
		}
		if !sink.Exists(i) {
			return false
		}
	}

	if dryRun {
		return true
	}

	for i := 0; i < 16; i++ {
		enabled := mask&(1<<uint(i)) != 0
		if err := sink.Enable(i, enabled); err != nil {
			return false
		}
	}
	return true
}
