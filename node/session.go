package node

import "github.com/pkg/errors"

// sessionBlobVersion is the persisted blob format version. Bump it, and
// reject old versions in restore, whenever the layout changes.
const sessionBlobVersion = 1

// sessionBlobSize is the total size of a saved session blob: version(1) +
// size(2) + isJoined(1) + ackRequired(1) + dr(1) + devAddr(4) +
// fCntUp(4) + fCntDown(4) + nwkSKey(16) + appSKey(16) + reserved(2) +
// checksum(1).
const sessionBlobSize = 53

// session is the persistent device/session state (C7). Keys are immutable
// for the lifetime of one session; counters are monotonic non-decreasing
// per direction; Joined implies DevAddr and both keys are meaningful.
type session struct {
	Joined      bool
	AckRequired bool
	DR          uint8
	DevAddr     uint32
	FCntUp      uint32
	FCntDown    uint32
	NwkSKey     [16]byte
	AppSKey     [16]byte
}

func le32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// save writes the session blob to dst, which must be at least
// sessionBlobSize bytes, and returns the number of bytes written.
func (s *session) save(dst []byte) (int, error) {
	if len(dst) < sessionBlobSize {
		return 0, errors.New("node: destination too small for session blob")
	}

	b := dst[:sessionBlobSize]
	b[0] = sessionBlobVersion
	b[1] = byte(sessionBlobSize)
	b[2] = byte(sessionBlobSize >> 8)

	if s.Joined {
		b[3] = 1
	}
	if s.AckRequired {
		b[4] = 1
	}
	b[5] = s.DR

	le32(b[6:10], s.DevAddr)
	le32(b[10:14], s.FCntUp)
	le32(b[14:18], s.FCntDown)
	copy(b[18:34], s.NwkSKey[:])
	copy(b[34:50], s.AppSKey[:])
	b[50], b[51] = 0, 0 // reserved

	b[52] = checksum(b[:52])

	return sessionBlobSize, nil
}

// restore parses a previously saved session blob. It rejects blobs of the
// wrong version, wrong declared size, or a failing checksum, without
// mutating s on failure.
func (s *session) restore(data []byte) error {
	if len(data) != sessionBlobSize {
		return errors.New("node: session blob has the wrong size")
	}
	if data[0] != sessionBlobVersion {
		return errors.New("node: session blob has an unsupported version")
	}
	declared := uint16(data[1]) | uint16(data[2])<<8
	if declared != sessionBlobSize {
		return errors.New("node: session blob declares the wrong size")
	}
	if checksum(data[:52]) != data[52] {
		return errors.New("node: session blob failed checksum")
	}

	s.Joined = data[3] != 0
	s.AckRequired = data[4] != 0
	s.DR = data[5]
	s.DevAddr = getLE32(data[6:10])
	s.FCntUp = getLE32(data[10:14])
	s.FCntDown = getLE32(data[14:18])
	copy(s.NwkSKey[:], data[18:34])
	copy(s.AppSKey[:], data[34:50])

	return nil
}
