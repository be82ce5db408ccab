package node

import log "github.com/sirupsen/logrus"

// logger is the package-level structured logger, overridable by a host
// application that wants its own logrus instance (shared output, hooks).
// Nothing on the hot uplink-assembly path logs, to keep a battery-powered
// node's log volume bounded; MAC command parsing logs at Debug and a
// rejected join-accept CFList at Warn.
var logger = log.StandardLogger()

// SetLogger installs l as the logger used by this package.
func SetLogger(l *log.Logger) {
	if l != nil {
		logger = l
	}
}
