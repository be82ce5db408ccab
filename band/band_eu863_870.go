package band

import (
	"fmt"

	lorawan "github.com/airframe-iot/lorawan-node"
)

type eu868Region struct{}

// EU868 returns the Region plugin for the European 863-870MHz ISM band.
func EU868() Region {
	return eu868Region{}
}

func (eu868Region) Name() string {
	return "EU868"
}

var eu868DataRates = map[int]DataRate{
	0: {SpreadFactor: 12, Bandwidth: 125},
	1: {SpreadFactor: 11, Bandwidth: 125},
	2: {SpreadFactor: 10, Bandwidth: 125},
	3: {SpreadFactor: 9, Bandwidth: 125},
	4: {SpreadFactor: 8, Bandwidth: 125},
	5: {SpreadFactor: 7, Bandwidth: 125},
}

// eu868MaxPayloadSize is the non-repeater-compatible N value (application payload
// size, FOpts/FPort excluded) per data rate.
var eu868MaxPayloadSize = map[int]int{
	0: 51,
	1: 51,
	2: 51,
	3: 115,
	4: 222,
	5: 222,
}

func (eu868Region) Init(sink ChannelSink) (uint32, uint8) {
	sink.Set(0, 868100000)
	sink.Set(1, 868300000)
	sink.Set(2, 868500000)
	sink.EnableAll()
	return 868100000, 0
}

func (eu868Region) DataRate(dr int) (DataRate, error) {
	d, ok := eu868DataRates[dr]
	if !ok {
		return DataRate{}, fmt.Errorf("band: EU868 has no data-rate %d", dr)
	}
	return d, nil
}

func (eu868Region) MaxPayloadSize(dr int) (int, error) {
	n, ok := eu868MaxPayloadSize[dr]
	if !ok {
		return 0, fmt.Errorf("band: EU868 has no data-rate %d", dr)
	}
	return n, nil
}

// HandleCFList fills channel indices 3-7 from the five frequencies carried
// by a type-0 CFList. A zero-valued slot disables that channel instead of
// configuring a frequency.
func (eu868Region) HandleCFList(cfList lorawan.CFList, sink ChannelSink) error {
	if cfList[15] != 0 {
		return fmt.Errorf("band: EU868 CFList type %d unsupported", cfList[15])
	}
	for i := 0; i < 5; i++ {
		b := cfList[i*3 : i*3+3]
		freq := (uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16) * 100
		if freq == 0 {
			if err := sink.Enable(3+i, false); err != nil {
				return err
			}
			continue
		}
		if err := sink.Set(3+i, freq); err != nil {
			return err
		}
	}
	return nil
}

// HandleADRChannelMask implements EU868's two valid ChMaskCntl values: 0
// (plain 16-bit mask over channels 0-15) and 6 (enable all channels,
// ignoring mask). Any other value is invalid for this region.
func (eu868Region) HandleADRChannelMask(mask uint16, chMaskCntl uint8, dryRun bool, sink ChannelSink) bool {
	switch chMaskCntl {
	case 0:
		return handleChMaskCntl0(mask, dryRun, sink)
	case 6:
		if !dryRun {
			sink.EnableAll()
		}
		return true
	default:
		return false
	}
}
