package node

import "github.com/airframe-iot/lorawan-node/radio"

// State is the stack's RX-window state machine (C9). It never spans more
// than one exchange at a time: a device is either idle, transmitting, or
// listening in one of its two receive windows.
type State int

const (
	StateNotInit State = iota
	StateIdle
	StateTx
	StateRx1
	StateRx2
)

const (
	joinRX1DelayMs = 5000
	joinRX2DelayMs = 6000

	rxWindowSymbolTimeout = 8
	rxWindowMsTimeout     = 3000
)

// rxDelays returns the RX1/RX2 window delays in milliseconds, corrected
// for the radio's TCXO warm-up time. Join-accept windows use the fixed
// 5s/6s delays; data frame windows use the negotiated rx1Delay (and
// rx1Delay+1s for RX2).
func (s *Stack) rxDelays() (rx1ms, rx2ms int) {
	if s.pendingJoin {
		rx1ms, rx2ms = joinRX1DelayMs, joinRX2DelayMs
	} else {
		rx1ms = int(s.rx1Delay) * 1000
		if rx1ms == 0 {
			rx1ms = 1000
		}
		rx2ms = rx1ms + 1000
	}

	warmup := s.radio.TCXOWarmupMillis()
	rx1ms -= warmup
	rx2ms -= warmup
	if rx1ms < 0 {
		rx1ms = 0
	}
	if rx2ms < 0 {
		rx2ms = 0
	}
	return
}

// rx1DataRate returns the data rate the RX1 window listens at: the
// uplink's data rate, shifted down by rx1DROffset, floored at DR0.
func (s *Stack) rx1DataRate() int {
	dr := int(s.sess.DR) - int(s.rx1DROffset)
	if dr < 0 {
		dr = 0
	}
	return dr
}

// handleTxDone arms both RX window timers after a completed transmission
// and moves the state machine into Rx1.
func (s *Stack) handleTxDone() {
	rx1ms, rx2ms := s.rxDelays()
	s.state = StateRx1
	s.hal.StartTimer(radio.TimerRX1, rx1ms)
	s.hal.StartTimer(radio.TimerRX2, rx2ms)
}

// TimerCallback drives the RX1/RX2 timers the stack armed through
// StackHAL. It opens the corresponding receive window, unless the state
// machine has already moved past it (e.g. a stale RX2 timer after RX1
// already closed the exchange).
func (s *Stack) TimerCallback(id radio.TimerID) {
	switch id {
	case radio.TimerRX1:
		if s.state != StateRx1 {
			return
		}
		s.openWindow(s.lastTxFrequency, s.rx1DataRate())

	case radio.TimerRX2:
		if s.state != StateRx1 && s.state != StateRx2 {
			return
		}
		s.state = StateRx2
		s.openWindow(s.rx2Freq, int(s.rx2DR))
	}
}

// openWindow tunes the radio and opens a receive window at freq/dr. Any
// failure to arm the radio ends the exchange immediately rather than
// leaving the state machine waiting on an event that will never arrive.
func (s *Stack) openWindow(freq uint32, dr int) {
	rate, err := s.region.DataRate(dr)
	if err != nil {
		s.state = StateIdle
		s.finishExchange(nil, err)
		return
	}
	if err := s.radio.SetFrequency(freq); err != nil {
		s.state = StateIdle
		s.finishExchange(nil, err)
		return
	}
	if err := s.radio.Setup(radio.PacketParams{
		SpreadingFactor: rate.SpreadFactor,
		Bandwidth:       rate.Bandwidth,
		CodingRate:      5,
		PreambleLength:  8,
		CRCOn:           true,
		InvertIQ:        true,
	}); err != nil {
		s.state = StateIdle
		s.finishExchange(nil, err)
		return
	}

	maxPayload, _ := s.region.MaxPayloadSize(dr)
	if err := s.radio.RX(maxPayload+13, rxWindowSymbolTimeout, rxWindowMsTimeout); err != nil {
		s.state = StateIdle
		s.finishExchange(nil, err)
	}
}

// HandleRadioEvent is the callback a Radio driver invokes from its IRQ
// handler. It moves the state machine from Tx to Rx1, from Rx1 to Rx2 on
// an RX1 timeout, and back to Idle when a window closes. TimerCallback
// also moves Rx1 to Rx2 when the RX2 timer fires.
func (s *Stack) HandleRadioEvent(evt radio.Event) {
	switch s.state {
	case StateTx:
		if evt&radio.EventTxDone != 0 {
			s.handleTxDone()
		}

	case StateRx1:
		switch {
		case evt&(radio.EventRxDone|radio.EventCRCError) != 0:
			// A demodulated (even if corrupt) frame in RX1 is treated as
			// the end of the exchange: falling through to RX2 on a CRC
			// failure risks colliding with a second, unrelated downlink
			// and desyncing the device from the gateway's timing.
			s.closeWindow(evt, true)
		case evt&radio.EventRxTimeout != 0:
			s.state = StateRx2
		}

	case StateRx2:
		if evt&(radio.EventRxDone|radio.EventCRCError|radio.EventRxTimeout) != 0 {
			s.closeWindow(evt, false)
		}
	}
}

// closeWindow ends the current receive window, cancelling the RX2 timer
// when the exchange closed out of RX1, and resolves the pending
// join/send operation exactly once.
func (s *Stack) closeWindow(evt radio.Event, cancelRX2 bool) {
	if cancelRX2 {
		s.hal.StopTimer(radio.TimerRX2)
	}
	s.state = StateIdle

	if evt&radio.EventRxTimeout != 0 {
		s.finishExchange(nil, ErrRXTimeout)
		return
	}
	if evt&radio.EventCRCError != 0 {
		s.finishExchange(nil, ErrRXCRC)
		return
	}

	pkt, err := s.radio.ReadPacket()
	if err != nil {
		s.finishExchange(nil, err)
		return
	}
	s.lastSNR = pkt.SNR
	s.finishExchange(pkt.Data, nil)
}
