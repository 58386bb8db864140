package homa

import "github.com/skycoin/skycoin/src/util/logging"

// log is the package-level logger, matching the teacher's convention in
// pkg/transport, pkg/routing, and pkg/snet
// (log = logging.MustGetLogger("<pkg>")). Every file in the package logs
// through this one logger; no separate logger is allocated per
// ScheduledMessage/OutgoingMessage, since those are created and destroyed
// far too often for that to be cheap.
var log = logging.MustGetLogger("homa")
