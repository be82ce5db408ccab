package node

import (
	"github.com/pkg/errors"

	lorawan "github.com/airframe-iot/lorawan-node"
	ncrypto "github.com/airframe-iot/lorawan-node/crypto"
)

func devAddrFromUint32(v uint32) lorawan.DevAddr {
	return lorawan.DevAddr{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func uint32FromDevAddr(a lorawan.DevAddr) uint32 {
	return uint32(a[0])<<24 | uint32(a[1])<<16 | uint32(a[2])<<8 | uint32(a[3])
}

// buildUplinkFrame assembles an uplink data frame (§4.8.1): FPort/FRMPayload
// are only appended when payload is non-empty, so a frame carrying only
// piggy-backed MAC answers has neither. It drains the MAC queue into FOpts,
// encrypts the payload, computes the MIC, and increments FCntUp.
func (s *Stack) buildUplinkFrame(fPort uint8, payload []byte, confirm bool) ([]byte, error) {
	mtype := lorawan.UnconfirmedDataUp
	if confirm {
		mtype = lorawan.ConfirmedDataUp
	}

	fOpts := make([]byte, s.mq.pendingSize())
	s.mq.drain(fOpts)

	ack := s.sess.AckRequired
	fctrl, err := lorawan.NewFCtrl(s.adr.enabled, s.adr.ADRAckReq(s.sess.DR), ack, false, uint8(len(fOpts)))
	if err != nil {
		return nil, errors.Wrap(err, "node: build fctrl")
	}
	if ack {
		s.sess.AckRequired = false
	}

	fhdr := lorawan.FHDR{
		DevAddr: devAddrFromUint32(s.sess.DevAddr),
		FCtrl:   fctrl,
		FCnt:    uint16(s.sess.FCntUp),
		FOpts:   fOpts,
	}

	macPL := &lorawan.MACPayload{FHDR: fhdr}

	if len(payload) > 0 {
		p := fPort
		macPL.FPort = &p

		key := lorawan.AES128Key(s.sess.AppSKey)
		if fPort == 0 {
			key = lorawan.AES128Key(s.sess.NwkSKey)
		}

		enc, err := lorawan.EncryptFRMPayload(key, true, fhdr.DevAddr, s.sess.FCntUp, payload)
		if err != nil {
			return nil, errors.Wrap(err, "node: encrypt frm payload")
		}
		macPL.FRMPayload = enc
	}

	phy := lorawan.PHYPayload{
		MHDR:       lorawan.MHDR{MType: mtype, Major: lorawan.LoRaWANR1},
		MACPayload: macPL,
	}
	if err := phy.SetUplinkDataMIC(lorawan.AES128Key(s.sess.NwkSKey), s.sess.FCntUp); err != nil {
		return nil, errors.Wrap(err, "node: set uplink mic")
	}

	b, err := phy.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "node: marshal uplink frame")
	}

	s.sess.FCntUp++
	return b, nil
}

// buildJoinRequest assembles a join-request (§4.8.2), drawing a fresh
// DevNonce from the PRNG.
func (s *Stack) buildJoinRequest() ([]byte, lorawan.DevNonce, error) {
	devNonce := lorawan.DevNonce(uint16(s.rnd.below(65536)))

	phy := lorawan.PHYPayload{
		MHDR: lorawan.MHDR{MType: lorawan.JoinRequest, Major: lorawan.LoRaWANR1},
		MACPayload: &lorawan.JoinRequestPayload{
			AppEUI:   s.appEUI,
			DevEUI:   s.devEUI,
			DevNonce: devNonce,
		},
	}

	if err := phy.SetUplinkJoinMIC(s.appKey); err != nil {
		return nil, 0, errors.Wrap(err, "node: set join-request mic")
	}

	b, err := phy.MarshalBinary()
	if err != nil {
		return nil, 0, errors.Wrap(err, "node: marshal join-request")
	}
	return b, devNonce, nil
}

// parseJoinAccept parses, decrypts and verifies a join-accept (§4.8.6),
// derives the session keys, applies DLSettings/RXDelay/CFList, and commits
// the new session on success.
func (s *Stack) parseJoinAccept(data []byte, devNonce lorawan.DevNonce) error {
	if len(data) != 17 && len(data) != 33 {
		return errors.Wrap(ErrMsgLen, "node: join-accept has the wrong length")
	}

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(data); err != nil {
		return errors.Wrap(ErrMsgMHDR, "node: malformed join-accept")
	}
	if phy.MHDR.MType != lorawan.JoinAccept {
		return errors.Wrap(ErrMsgMHDR, "node: unexpected mtype for join-accept")
	}

	if err := phy.DecryptJoinAcceptPayload(s.appKey); err != nil {
		return errors.Wrap(ErrMsgMHDR, "node: decrypt join-accept")
	}

	ok, err := phy.ValidateDownlinkJoinMIC(s.appKey)
	if err != nil {
		return errors.Wrap(err, "node: validate join-accept mic")
	}
	if !ok {
		return ErrMsgMIC
	}

	ja, ok := phy.MACPayload.(*lorawan.JoinAcceptPayload)
	if !ok {
		return errors.Wrap(ErrMsgMHDR, "node: join-accept payload has the wrong type")
	}

	if ja.CFList != nil {
		if err := s.region.HandleCFList(*ja.CFList, s.channels); err != nil {
			logger.WithError(err).Warn("node: join-accept CFList rejected")
		}
	}

	s.rx1DROffset = ja.DLSettings.RX1DROffset
	s.rx2DR = ja.DLSettings.RX2DataRate

	delay := ja.RXDelay & 0x0F
	if delay == 0 {
		delay = 1
	}
	s.rx1Delay = delay

	nwkSKey, appSKey, err := deriveSessionKeys(s.appKey, ja.AppNonce, ja.NetID, devNonce)
	if err != nil {
		return errors.Wrap(err, "node: derive session keys")
	}

	s.sess = session{
		Joined:   true,
		DR:       s.sess.DR,
		DevAddr:  uint32FromDevAddr(ja.DevAddr),
		FCntUp:   0,
		FCntDown: 0,
		NwkSKey:  nwkSKey,
		AppSKey:  appSKey,
	}
	s.adr.ackCount = 0

	return nil
}

// deriveSessionKeys computes NwkSKey/AppSKey from the join-accept's
// AppNonce/NetID and the DevNonce the device sent, per §4.8.6:
//
//	pad(T) = T | AppNonce(LE,3) | NetID(LE,3) | DevNonce(LE,2) | 0x00x7
func deriveSessionKeys(appKey lorawan.AES128Key, appNonce [3]byte, netID lorawan.NetID, devNonce lorawan.DevNonce) (nwkSKey, appSKey [16]byte, err error) {
	pad := func(t byte) ([16]byte, error) {
		var b [16]byte
		b[0] = t
		copy(b[1:4], appNonce[:])

		nid, err := netID.MarshalBinary()
		if err != nil {
			return b, err
		}
		copy(b[4:7], nid)

		dn, err := devNonce.MarshalBinary()
		if err != nil {
			return b, err
		}
		copy(b[7:9], dn)

		return b, nil
	}

	cipher, err := ncrypto.NewAES([16]byte(appKey))
	if err != nil {
		return nwkSKey, appSKey, err
	}

	nb, err := pad(0x01)
	if err != nil {
		return nwkSKey, appSKey, err
	}
	if err := cipher.Encrypt(nwkSKey[:], nb[:]); err != nil {
		return nwkSKey, appSKey, err
	}

	ab, err := pad(0x02)
	if err != nil {
		return nwkSKey, appSKey, err
	}
	if err := cipher.Encrypt(appSKey[:], ab[:]); err != nil {
		return nwkSKey, appSKey, err
	}

	return nwkSKey, appSKey, nil
}

// parseDownlinkDataFrame parses and verifies a received data frame
// (§4.8.5). The downlink counter is only committed after MIC verification
// succeeds, so a forged frame can never advance it.
func (s *Stack) parseDownlinkDataFrame(data []byte) (mtype lorawan.MType, fPort uint8, plaintext []byte, err error) {
	if len(data) < 12 {
		return 0, 0, nil, errors.Wrap(ErrMsgLen, "node: downlink shorter than minimum frame size")
	}

	var phy lorawan.PHYPayload
	if err := phy.UnmarshalBinary(data); err != nil {
		return 0, 0, nil, errors.Wrap(ErrMsgMHDR, "node: malformed downlink frame")
	}
	if phy.MHDR.Major != lorawan.LoRaWANR1 {
		return 0, 0, nil, errors.Wrap(ErrMsgMHDR, "node: unsupported major version")
	}
	if phy.MHDR.MType != lorawan.UnconfirmedDataDown && phy.MHDR.MType != lorawan.ConfirmedDataDown {
		return 0, 0, nil, errors.Wrap(ErrMsgMHDR, "node: unexpected mtype for a downlink data frame")
	}

	macPL, ok := phy.MACPayload.(*lorawan.MACPayload)
	if !ok {
		return 0, 0, nil, errors.Wrap(ErrMsgMHDR, "node: downlink payload has the wrong type")
	}

	if uint32FromDevAddr(macPL.FHDR.DevAddr) != s.sess.DevAddr {
		return 0, 0, nil, ErrDevAddr
	}

	if len(macPL.FHDR.FOpts) > 0 && macPL.FPort != nil && *macPL.FPort == 0 {
		return 0, 0, nil, errors.Wrap(ErrMsgFHDR, "node: fopts and port-0 payload coexist")
	}

	newFCnt := reconstructFCntDown(s.sess.FCntDown, macPL.FHDR.FCnt)
	if s.sess.FCntDown != 0 && newFCnt == s.sess.FCntDown {
		return 0, 0, nil, ErrFCnt
	}

	valid, err := phy.ValidateDownlinkDataMIC(lorawan.AES128Key(s.sess.NwkSKey), newFCnt)
	if err != nil {
		return 0, 0, nil, errors.Wrap(err, "node: validate downlink mic")
	}
	if !valid {
		return 0, 0, nil, ErrMsgMIC
	}

	s.sess.FCntDown = newFCnt

	var plain []byte
	if len(macPL.FRMPayload) > 0 {
		key := lorawan.AES128Key(s.sess.AppSKey)
		if macPL.FPort != nil && *macPL.FPort == 0 {
			key = lorawan.AES128Key(s.sess.NwkSKey)
		}
		plain, err = lorawan.EncryptFRMPayload(key, false, macPL.FHDR.DevAddr, newFCnt, macPL.FRMPayload)
		if err != nil {
			return 0, 0, nil, errors.Wrap(err, "node: decrypt frm payload")
		}
	}

	if len(macPL.FHDR.FOpts) > 0 {
		s.handleDownlinkMACCommands(macPL.FHDR.FOpts)
	} else if macPL.FPort != nil && *macPL.FPort == 0 {
		s.handleDownlinkMACCommands(plain)
	}

	if phy.MHDR.MType == lorawan.ConfirmedDataDown {
		s.sess.AckRequired = true
	}
	s.adr.OnDownlinkAccepted()

	var port uint8
	if macPL.FPort != nil {
		port = *macPL.FPort
	}
	if macPL.FPort != nil && *macPL.FPort != 0 {
		return phy.MHDR.MType, port, plain, nil
	}
	return phy.MHDR.MType, port, nil, nil
}

// reconstructFCntDown rebuilds the full 32 bit downlink counter from the
// 16 bit wire value, per §4.8.5.
func reconstructFCntDown(prev uint32, wireLow uint16) uint32 {
	if prev == 0 {
		return uint32(wireLow)
	}

	lowPrev := uint16(prev)
	delta := int32(wireLow) - int32(lowPrev)

	if delta == 0 {
		return prev
	}
	if delta > 0 {
		return prev + uint32(delta)
	}
	return (prev &^ 0xFFFF) + 0x10000 + uint32(wireLow)
}
