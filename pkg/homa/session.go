package homa

// Session is the client-side handle grouping RPCs to one remote address
// (spec.md section 3). A Session may outlive the individual RPCs sent
// through it and is only invalidated by Abort.
type Session struct {
	transport     *Transport
	remoteAddress Address
	locator       string
	aborted       bool
}

// SendRequest enqueues a ClientRpc for request and returns its RpcId. The
// notifier's Done or Failed method fires once when the RPC completes or
// fails: from within a future Transport.Poll call, or from Session.Abort
// for the RPCs it fails. Session.CancelRequest does not call the notifier.
//
// This diverges from the original C++ signature (which fills a
// caller-owned response Buffer in place) in favor of the Go idiom of
// handing the response bytes to the notifier: Go slices do not have a
// convenient "output parameter filled by the callee much later" idiom, and
// threading a shared buffer through the accumulator/notifier boundary would
// reintroduce exactly the ownership hazard spec.md section 9 asks the
// OutgoingMessage back-pointer to avoid.
func (s *Session) SendRequest(request []byte, notifier RpcNotifier) (RpcId, error) {
	if s.aborted {
		return RpcId{}, ErrSessionAborted
	}
	return s.transport.sendRequest(s, request, notifier)
}

// CancelRequest removes the ClientRpc associated with notifier from the
// transport, sends ABORT to the server, and releases its buffers.
// Idempotent: cancelling twice, or cancelling a notifier with no matching
// RPC, is a no-op.
func (s *Session) CancelRequest(notifier RpcNotifier) {
	s.transport.cancelRequest(notifier)
}

// Abort marks every RPC on this session as failed and prevents further
// SendRequest calls from succeeding.
func (s *Session) Abort() {
	s.transport.abortSession(s)
}

// GetRpcInfo returns a diagnostic summary of this session's outstanding
// RPCs.
func (s *Session) GetRpcInfo() string {
	return s.transport.rpcInfoForSession(s)
}
