// Package radio declares the external collaborators the node stack drives:
// the radio transceiver and the host's timer/downlink-delivery HAL. Both
// are interfaces so the stack stays decoupled from any concrete driver,
// mirroring the sx126x command/IRQ-mask layout found in the wider LoRa
// driver ecosystem.
package radio

// Event is the bitmask a Radio reports asynchronously through its event
// handler. Values follow the sx126x IRQ-mask convention (bit per event,
// ORable) rather than a single enum, since a driver may report more than
// one event for the same IRQ poll.
type Event uint8

const (
	EventTxDone    Event = 1 << 0
	EventRxDone    Event = 1 << 1
	EventRxTimeout Event = 1 << 2
	EventCRCError  Event = 1 << 3
)

// PacketParams configures one TX or RX operation. Coding rate is fixed at
// 4/5 for every uplink per the data-rate table; Bandwidth is in kHz.
type PacketParams struct {
	SpreadingFactor int
	Bandwidth       int
	CodingRate      int
	PreambleLength  int
	CRCOn           bool
	InvertIQ        bool
	ImplicitHeader  bool
}

// Packet is a received radio frame together with its link-quality metadata.
type Packet struct {
	Data []byte
	RSSI int
	SNR  float32
}

// EventHandler receives the event bitmask reported by a Radio's IRQ line.
type EventHandler func(evt Event)

// Radio is the transceiver driver contract. PublicNetwork selects between
// the 0x34/0x44 public and 0x14/0x24 private LoRaWAN sync words.
type Radio interface {
	Init() error
	Sleep() error
	SetFrequency(hz uint32) error
	SetPower(dBm int) error
	Setup(params PacketParams) error
	SetPublicNetwork(public bool) error

	TX(data []byte) error
	RX(maxLen int, symbolTimeout, msTimeout int) error
	ReadPacket() (Packet, error)

	Rand() (uint32, error)
	SetEventHandler(h EventHandler)

	// TCXOWarmupMillis optionally reports the oscillator warm-up delay a
	// caller should subtract when arming an RX window timer. Drivers
	// without a TCXO return 0.
	TCXOWarmupMillis() int
}

// TimerID identifies one of the node stack's one-shot timers.
type TimerID int

const (
	TimerRX1 TimerID = iota
	TimerRX2
)

// StackHAL is the host-supplied timer service the RX-window state machine
// schedules against. The node package never starts goroutines or sleeps
// itself; it only arms/cancels these timers and is driven back via the
// TimerCallback method of the stack that node.NewStack returns.
type StackHAL interface {
	StartTimer(id TimerID, ms int) error
	StopTimer(id TimerID) error
}
