package homa

// RpcNotifier is the single user-visible completion channel for a
// ClientRpc, per spec.md section 7. For an RPC that completes, fails, or
// has its session aborted, exactly one of Done or Failed is called, once.
// An RPC removed by Session.CancelRequest gets neither call.
//
// Session.CancelRequest identifies the ClientRpc to remove by comparing
// RpcNotifier values with ==, so implementations must be safe to compare:
// a pointer type, or a struct with no func/slice/map fields. NewFuncNotifier
// returns a pointer for exactly this reason.
type RpcNotifier interface {
	// Done is called with the complete response buffer when the RPC
	// succeeds.
	Done(response []byte)

	// Failed is called when the RPC cannot complete. err is non-nil and
	// carries additional context beyond kind.
	Failed(kind FailureKind, err error)
}

// notifierFunc adapts two plain functions to RpcNotifier, useful for tests
// and for the simple echo client in cmd/homaecho.
type notifierFunc struct {
	done   func(response []byte)
	failed func(kind FailureKind, err error)
}

// NewFuncNotifier builds an RpcNotifier from two callbacks. The returned
// value is a pointer so that CancelRequest's == comparison identifies it
// by identity rather than panicking on its unexported func fields.
func NewFuncNotifier(done func(response []byte), failed func(kind FailureKind, err error)) RpcNotifier {
	return &notifierFunc{done: done, failed: failed}
}

func (n *notifierFunc) Done(response []byte)              { n.done(response) }
func (n *notifierFunc) Failed(kind FailureKind, err error) { n.failed(kind, err) }
