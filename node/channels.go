package node

import "github.com/pkg/errors"

// maxChannels is the fixed channel-table size LoRaWAN 1.0.x channel
// indices and masks are built around.
const maxChannels = 16

// channelTable is the enabled-set of uplink frequencies (C3). Index 0..15
// maps to an enabled bit plus a frequency in Hz. It implements
// band.ChannelSink so a Region plugin can configure it directly.
type channelTable struct {
	freq     [maxChannels]uint32
	enabled  [maxChannels]bool
	maxCount uint8 // one past the highest currently enabled index
	rand     *rng
}

func newChannelTable(rand *rng) *channelTable {
	return &channelTable{rand: rand}
}

// Set configures the frequency of channel index and enables it.
func (c *channelTable) Set(index int, frequency uint32) error {
	if index < 0 || index >= maxChannels {
		return errors.Wrap(ErrChannel, "node: channel index out of range")
	}
	c.freq[index] = frequency
	return c.Enable(index, true)
}

// Enable toggles the enabled bit for index. Disabling the current highest
// enabled index shrinks maxCount to the largest index still enabled.
func (c *channelTable) Enable(index int, enable bool) error {
	if index < 0 || index >= maxChannels {
		return errors.Wrap(ErrChannel, "node: channel index out of range")
	}

	if enable {
		if uint8(index+1) > c.maxCount {
			c.maxCount = uint8(index + 1)
		}
		c.enabled[index] = true
		return nil
	}

	c.enabled[index] = false
	if int(c.maxCount) == index+1 {
		for i := index; i >= 0; i-- {
			if c.enabled[i] {
				c.maxCount = uint8(i + 1)
				return nil
			}
		}
		c.maxCount = 0
	}
	return nil
}

// EnableAll enables every channel index that currently holds a frequency.
func (c *channelTable) EnableAll() {
	for i := 0; i < maxChannels; i++ {
		if c.freq[i] != 0 {
			c.Enable(i, true)
		}
	}
}

// Exists reports whether index is currently enabled.
func (c *channelTable) Exists(index int) bool {
	if index < 0 || index >= maxChannels {
		return false
	}
	return c.enabled[index]
}

// Pick draws a uniform random start in [0, maxCount), scans forward
// wrapping, and returns the first enabled frequency encountered. It
// returns (0, false) when no channel is enabled.
func (c *channelTable) Pick() (uint32, bool) {
	if c.maxCount == 0 {
		return 0, false
	}

	start := uint8(c.rand.below(uint32(c.maxCount)))
	ch := start
	for {
		if c.enabled[ch] {
			return c.freq[ch], true
		}
		ch = (ch + 1) % c.maxCount
		if ch == start {
			return 0, false
		}
	}
}
