package homa

import "errors"

// Sentinel errors returned by the public API. Grounded on the
// ErrNotServing/ErrConnAlreadyExists convention in the teacher's
// pkg/transport/managed_transport.go: exported, comparable values rather
// than opaque wrapped strings, so callers can use errors.Is.
var (
	// ErrSessionAborted is returned by Session.SendRequest once the
	// session's Abort method has been called.
	ErrSessionAborted = errors.New("homa: session aborted")

	// ErrProtocolViolation is returned internally when a packet's header
	// cannot be parsed or has an inconsistent opcode/direction; such
	// packets are logged at WARN and dropped, never surfaced to a
	// notifier.
	ErrProtocolViolation = errors.New("homa: protocol violation")

	// ErrUnknownRpc names the case of a non-DATA/ALL_DATA packet that
	// references an RpcId the receiver has no record of. The transport
	// does not return it: such GRANT, BUSY and ABORT packets are dropped,
	// and such a RESEND is answered with a RESTART.
	ErrUnknownRpc = errors.New("homa: unknown rpc")

	// ErrResourceExhaustion names the failure to allocate a message
	// accumulator buffer for an inbound message. No code path in this
	// package returns it or passes it (or FailureResourceExhaustion) to a
	// notifier.
	ErrResourceExhaustion = errors.New("homa: resource exhaustion")

	// ErrRpcTimeout is surfaced to a notifier when the peer has been
	// silent for TimeoutIntervals consecutive timer ticks.
	ErrRpcTimeout = errors.New("homa: rpc timed out")
)

// FailureKind classifies why an RpcNotifier was completed with failure
// rather than success. See spec.md section 7.
type FailureKind int

// Failure kinds. PeerAbort and Restart are internal recovery events, not
// user-visible errors per spec.md section 7, so they are not represented
// here; only failures that reach a caller's notifier are enumerated.
const (
	// FailureTimeout: no packets from the peer for TimeoutIntervals
	// ticks.
	FailureTimeout FailureKind = iota
	// FailureResourceExhaustion: could not allocate an accumulator
	// buffer.
	FailureResourceExhaustion
	// FailureSessionAborted: the session was aborted while the RPC was in
	// flight. (SendRequest on an already-aborted session returns
	// ErrSessionAborted and does not call the notifier.)
	FailureSessionAborted
)

func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "TIMEOUT"
	case FailureResourceExhaustion:
		return "RESOURCE_EXHAUSTION"
	case FailureSessionAborted:
		return "SESSION_ABORTED"
	default:
		return "UNKNOWN"
	}
}
