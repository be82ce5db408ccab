package node

import "github.com/pkg/errors"

// Error kinds the façade and frame codec report to the application. These
// are flat sentinels compared with errors.Is, mirroring the C source's
// enum uwan_errs return codes translated into idiomatic Go - not a
// pkg/errors wrapped chain, since the kind itself carries no call-site
// context worth preserving across the boundary.
var (
	ErrState     = errors.New("node: operation not legal in current state")
	ErrDataRate  = errors.New("node: invalid data-rate index")
	ErrChannel   = errors.New("node: no enabled channel to transmit on, or bad channel index")
	ErrFrequency = errors.New("node: frequency outside the region band")
	ErrRXTimeout = errors.New("node: both receive windows closed without a valid frame")
	ErrRXCRC     = errors.New("node: radio reported crc failure on received frame")
	ErrMsgLen    = errors.New("node: payload too long, or frame too short to be valid")
	ErrMsgMHDR   = errors.New("node: unsupported or malformed mhdr")
	ErrMsgMIC    = errors.New("node: integrity check failed")
	ErrMsgFHDR   = errors.New("node: fopts and port-0 payload coexist")
	ErrDevAddr   = errors.New("node: downlink addressed to a different device")
	ErrFCnt      = errors.New("node: downlink counter replay")
)
