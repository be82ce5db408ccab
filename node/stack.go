// Package node implements a LoRaWAN 1.0.x Class-A end-device MAC stack:
// join (OTAA) and ABP session setup, uplink/downlink frame codec, the
// RX1/RX2 receive-window state machine, the MAC command engine and ADR.
// It depends only on the radio.Radio/radio.StackHAL interfaces and a
// band.Region plugin, never on a concrete driver.
package node

import (
	"github.com/pkg/errors"

	lorawan "github.com/airframe-iot/lorawan-node"
	"github.com/airframe-iot/lorawan-node/band"
	"github.com/airframe-iot/lorawan-node/radio"
)

// SessionBlobSize is the exact size of the buffer SaveSession needs and
// RestoreSession expects.
const SessionBlobSize = sessionBlobSize

// txPowerTableDBm maps the 0-7 TX power index the façade exposes to the
// dBm values the radio is actually told to use.
var txPowerTableDBm = [8]int8{0, 2, 4, 6, 8, 10, 12, 14}

// Result is delivered to the callback passed to Join or SendFrame exactly
// once per call, whether the exchange succeeded, timed out, or failed
// verification.
type Result struct {
	Err       error
	Joined    bool
	Confirmed bool
	FPort     uint8
	Payload   []byte
}

// Stack is one LoRaWAN Class-A end device. It is not safe for concurrent
// use: the host serializes calls the same way it serializes radio IRQs
// and timer callbacks into HandleRadioEvent/TimerCallback.
type Stack struct {
	radio radio.Radio
	hal   radio.StackHAL

	region   band.Region
	channels *channelTable
	rnd      *rng
	adr      *adrEngine
	mq       *macQueue

	sess  session
	state State

	appEUI lorawan.EUI64
	devEUI lorawan.EUI64
	appKey lorawan.AES128Key

	rx1Delay     uint8
	rx1DROffset  uint8
	rx2Freq      uint32
	rx2DR        uint8
	txPowerIndex uint8
	maxEIRP      int8

	lastSNR         float32
	lastTxFrequency uint32

	pendingJoin     bool
	pendingDevNonce lorawan.DevNonce
	pendingCallback func(Result)

	batteryFn    func() uint8
	onDeviceTime func(unixSeconds int64)
	onLinkCheck  func(margin, gwCnt uint8)
}

// NewStack wires a radio driver, timer HAL and region plugin into an idle,
// unjoined stack. It seeds the PRNG from the radio's own random source and
// applies the region's default channel plan and RX2 parameters.
func NewStack(r radio.Radio, hal radio.StackHAL, region band.Region) (*Stack, error) {
	seed, err := r.Rand()
	if err != nil {
		return nil, errors.Wrap(err, "node: seed prng from radio")
	}

	s := &Stack{
		radio:    r,
		hal:      hal,
		region:   region,
		rnd:      newRNG(seed),
		adr:      newADREngine(),
		mq:       &macQueue{},
		state:    StateIdle,
		rx1Delay: 1,
	}
	s.channels = newChannelTable(s.rnd)

	if err := r.Init(); err != nil {
		return nil, errors.Wrap(err, "node: init radio")
	}
	if err := r.SetPublicNetwork(true); err != nil {
		return nil, errors.Wrap(err, "node: set public network")
	}
	r.SetEventHandler(s.HandleRadioEvent)

	rx2Freq, rx2DR := region.Init(s.channels)
	s.rx2Freq = rx2Freq
	s.rx2DR = rx2DR

	return s, nil
}

// SetOTAAKeys configures the identifiers and root key Join uses. It must
// be called before the first Join.
func (s *Stack) SetOTAAKeys(appEUI, devEUI lorawan.EUI64, appKey lorawan.AES128Key) {
	s.appEUI = appEUI
	s.devEUI = devEUI
	s.appKey = appKey
}

// SetSession installs an ABP session directly, skipping the join exchange.
func (s *Stack) SetSession(devAddr uint32, nwkSKey, appSKey [16]byte, dr uint8) error {
	if s.state != StateIdle {
		return ErrState
	}

	s.sess = session{
		Joined:  true,
		DR:      dr,
		DevAddr: devAddr,
		NwkSKey: nwkSKey,
		AppSKey: appSKey,
	}
	s.adr.ackCount = 0
	return nil
}

// SaveSession serializes the current session into dst, which must be at
// least SessionBlobSize bytes.
func (s *Stack) SaveSession(dst []byte) (int, error) {
	return s.sess.save(dst)
}

// RestoreSession loads a previously saved session blob, replacing the
// current session only if the blob validates.
func (s *Stack) RestoreSession(data []byte) error {
	var sess session
	if err := sess.restore(data); err != nil {
		return err
	}
	s.sess = sess
	return nil
}

// IsJoined reports whether the stack currently holds a valid session,
// from either a completed Join or SetSession/RestoreSession.
func (s *Stack) IsJoined() bool {
	return s.sess.Joined
}

// Join transmits a join-request on a randomly chosen enabled channel and
// arms the RX1/RX2 windows for the join-accept. cb is invoked exactly
// once, from a radio event or timer callback, with the outcome.
func (s *Stack) Join(cb func(Result)) error {
	if s.state != StateIdle {
		return ErrState
	}

	freq, ok := s.channels.Pick()
	if !ok {
		return ErrChannel
	}

	frame, devNonce, err := s.buildJoinRequest()
	if err != nil {
		return err
	}

	if err := s.transmit(freq, int(s.sess.DR), frame); err != nil {
		return err
	}

	s.lastTxFrequency = freq
	s.pendingJoin = true
	s.pendingDevNonce = devNonce
	s.pendingCallback = cb
	s.state = StateTx
	return nil
}

// SendFrame transmits an uplink data frame (confirmed or not) carrying
// payload on fPort, together with any MAC answers queued from a previous
// downlink, and arms the RX1/RX2 windows. cb is invoked exactly once.
func (s *Stack) SendFrame(fPort uint8, payload []byte, confirm bool, cb func(Result)) error {
	if s.state != StateIdle {
		return ErrState
	}
	if !s.sess.Joined {
		return ErrState
	}

	maxSize, err := s.region.MaxPayloadSize(int(s.sess.DR))
	if err != nil {
		return ErrDataRate
	}
	pending := s.mq.pendingSize()
	maxSize -= pending
	if maxSize < 0 {
		maxSize = 0
	}
	if len(payload) > maxSize {
		return ErrMsgLen
	}
	if len(payload) == 0 && pending == 0 {
		return ErrMsgLen
	}

	freq, ok := s.channels.Pick()
	if !ok {
		return ErrChannel
	}

	s.sess.DR = s.adr.OnUplinkBuilt(s.sess.DR)

	frame, err := s.buildUplinkFrame(fPort, payload, confirm)
	if err != nil {
		return err
	}

	if err := s.transmit(freq, int(s.sess.DR), frame); err != nil {
		return err
	}

	s.lastTxFrequency = freq
	s.pendingJoin = false
	s.pendingCallback = cb
	s.state = StateTx
	return nil
}

// transmit tunes the radio to freq/dr and sends frame. Uplinks are sent
// with CRC-on and non-inverted IQ, matching the downlink's inverted IQ on
// the gateway side.
func (s *Stack) transmit(freq uint32, dr int, frame []byte) error {
	rate, err := s.region.DataRate(dr)
	if err != nil {
		return ErrDataRate
	}
	if err := s.radio.SetFrequency(freq); err != nil {
		return err
	}
	if err := s.radio.SetPower(int(txPowerTableDBm[s.txPowerIndex])); err != nil {
		return err
	}
	if err := s.radio.Setup(radio.PacketParams{
		SpreadingFactor: rate.SpreadFactor,
		Bandwidth:       rate.Bandwidth,
		CodingRate:      5,
		PreambleLength:  8,
		CRCOn:           true,
	}); err != nil {
		return err
	}
	return s.radio.TX(frame)
}

// finishExchange resolves the pending Join or SendFrame call exactly
// once, whichever of the two is outstanding, and returns the state
// machine to idle bookkeeping (the caller has already set s.state).
func (s *Stack) finishExchange(data []byte, werr error) {
	pendingJoin := s.pendingJoin
	devNonce := s.pendingDevNonce
	cb := s.pendingCallback

	s.pendingCallback = nil
	s.pendingJoin = false

	if werr != nil {
		if cb != nil {
			cb(Result{Err: werr})
		}
		return
	}

	if pendingJoin {
		err := s.parseJoinAccept(data, devNonce)
		if cb != nil {
			cb(Result{Err: err, Joined: err == nil})
		}
		return
	}

	mtype, fPort, plaintext, err := s.parseDownlinkDataFrame(data)
	if cb != nil {
		cb(Result{
			Err:       err,
			Confirmed: mtype == lorawan.ConfirmedDataDown,
			FPort:     fPort,
			Payload:   plaintext,
		})
	}
}

// GetMaxPayloadSize returns the maximum FRMPayload size at the current
// data rate, minus whatever MAC-answer bytes are already queued for the
// next uplink.
func (s *Stack) GetMaxPayloadSize() (int, error) {
	maxSize, err := s.region.MaxPayloadSize(int(s.sess.DR))
	if err != nil {
		return 0, err
	}
	maxSize -= s.mq.pendingSize()
	if maxSize < 0 {
		maxSize = 0
	}
	return maxSize, nil
}

// SetDR overrides the current data rate.
func (s *Stack) SetDR(dr uint8) error {
	if !s.validDataRate(dr) {
		return ErrDataRate
	}
	s.sess.DR = dr
	return nil
}

// SetTXPower selects a TX power by table index (0-7, mapping to 0-14dBm
// in 2dB steps).
func (s *Stack) SetTXPower(index uint8) error {
	if int(index) >= len(txPowerTableDBm) {
		return ErrDataRate
	}
	s.txPowerIndex = index
	return nil
}

// SetMaxEIRP records the device's maximum EIRP rating in dBm.
func (s *Stack) SetMaxEIRP(dBm int8) {
	s.maxEIRP = dBm
}

// SetNbTrans overrides the number of redundant transmissions per uplink.
func (s *Stack) SetNbTrans(n uint8) {
	s.adr.setNbTrans(n)
}

// SetADR enables or disables adaptive data rate.
func (s *Stack) SetADR(enable bool) {
	s.adr.Enable(enable)
}

// SetRX1Delay overrides the RX1 window delay, in seconds (0 is treated as
// 1, matching RXTimingSetupReq's wire encoding).
func (s *Stack) SetRX1Delay(seconds uint8) {
	if seconds == 0 {
		seconds = 1
	}
	s.rx1Delay = seconds
}

// SetRX1DROffset overrides the RX1 data-rate offset (0-7).
func (s *Stack) SetRX1DROffset(offset uint8) error {
	if offset > 7 {
		return ErrDataRate
	}
	s.rx1DROffset = offset
	return nil
}

// SetRX2 overrides the RX2 frequency and data rate.
func (s *Stack) SetRX2(freq uint32, dr uint8) error {
	if !s.validDataRate(dr) {
		return ErrDataRate
	}
	if freq < 860000000 || freq > 870000000 {
		return ErrFrequency
	}
	s.rx2Freq = freq
	s.rx2DR = dr
	return nil
}

// SetBatteryLevelFunc installs the callback DevStatusAns reads the
// battery level from. Without one, the device reports level 255
// (unmeasured).
func (s *Stack) SetBatteryLevelFunc(fn func() uint8) {
	s.batteryFn = fn
}

// SetLinkCheckHandler installs the callback invoked when a LinkCheckAns
// arrives.
func (s *Stack) SetLinkCheckHandler(fn func(margin, gwCnt uint8)) {
	s.onLinkCheck = fn
}

// SetDeviceTimeHandler installs the callback invoked with the Unix
// timestamp carried by a DeviceTimeAns.
func (s *Stack) SetDeviceTimeHandler(fn func(unixSeconds int64)) {
	s.onDeviceTime = fn
}
