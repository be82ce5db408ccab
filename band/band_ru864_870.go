package band

import (
	"fmt"

	lorawan "github.com/airframe-iot/lorawan-node"
)

type ru864Region struct{}

// RU864 returns the Region plugin for the Russian 864-870MHz ISM band.
func RU864() Region {
	return ru864Region{}
}

func (ru864Region) Name() string {
	return "RU864"
}

var ru864DataRates = map[int]DataRate{
	0: {SpreadFactor: 12, Bandwidth: 125},
	1: {SpreadFactor: 11, Bandwidth: 125},
	2: {SpreadFactor: 10, Bandwidth: 125},
	3: {SpreadFactor: 9, Bandwidth: 125},
	4: {SpreadFactor: 8, Bandwidth: 125},
	5: {SpreadFactor: 7, Bandwidth: 125},
}

var ru864MaxPayloadSize = map[int]int{
	0: 51,
	1: 51,
	2: 51,
	3: 115,
	4: 222,
	5: 222,
}

func (ru864Region) Init(sink ChannelSink) (uint32, uint8) {
	sink.Set(0, 868900000)
	sink.Set(1, 869100000)
	sink.EnableAll()
	return 869100000, 0
}

func (ru864Region) DataRate(dr int) (DataRate, error) {
	d, ok := ru864DataRates[dr]
	if !ok {
		return DataRate{}, fmt.Errorf("band: RU864 has no data-rate %d", dr)
	}
	return d, nil
}

func (ru864Region) MaxPayloadSize(dr int) (int, error) {
	n, ok := ru864MaxPayloadSize[dr]
	if !ok {
		return 0, fmt.Errorf("band: RU864 has no data-rate %d", dr)
	}
	return n, nil
}

// HandleCFList fills channel indices 2-6 from the five frequencies carried
// by a type-0 CFList. A zero-valued slot disables that channel instead of
// configuring a frequency.
func (ru864Region) HandleCFList(cfList lorawan.CFList, sink ChannelSink) error {
	if cfList[15] != 0 {
		return fmt.Errorf("band: RU864 CFList type %d unsupported", cfList[15])
	}
	for i := 0; i < 5; i++ {
		b := cfList[i*3 : i*3+3]
		freq := (uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16) * 100
		if freq == 0 {
			if err := sink.Enable(2+i, false); err != nil {
				return err
			}
			continue
		}
		if err := sink.Set(2+i, freq); err != nil {
			return err
		}
	}
	return nil
}

// HandleADRChannelMask implements RU864's two valid ChMaskCntl values: 0
// (plain 16-bit mask over channels 0-15) and 6 (enable all channels,
// ignoring mask).
func (ru864Region) HandleADRChannelMask(mask uint16, chMaskCntl uint8, dryRun bool, sink ChannelSink) bool {
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
