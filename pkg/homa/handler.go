package homa

import "hash/fnv"

// Handler is invoked once per fully-received incoming request, with a
// respond callback that finalizes the ServerRpc's response. Handlers run
// on their own goroutine so that application logic never blocks Poll;
// respond is safe to call from that goroutine at any later time, including
// after Poll has moved on to other work.
type Handler func(request []byte, respond func(response []byte))

// SetHandler installs the application's request handler. Must be called
// before the first Poll.
func (t *Transport) SetHandler(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// dispatchRequest hands a fully-reassembled request to the installed
// Handler, if any, on a new goroutine.
func (t *Transport) dispatchRequest(rpc *ServerRpc) {
	if t.handler == nil {
		return
	}
	request := rpc.Accumulator.Buffer()
	rpcID := rpc.RpcId
	go t.handler(request, func(response []byte) {
		t.completeResponse(rpcID, response)
	})
}

// completeResponse is the respond callback's landing point: it fills in
// the ServerRpc's OutgoingMessage now that the application has produced a
// response, making it eligible for transmission.
func (t *Transport) completeResponse(rpcID RpcId, response []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rpc, ok := t.incomingRpcs[rpcID]
	if !ok || rpc.Cancelled {
		return
	}
	unscheduled := t.unscheduledBytesFor(uint32(len(response)))
	rpc.Response.Buffer = response
	rpc.Response.UnscheduledBytes = unscheduled
	rpc.Response.TransmitLimit = unscheduled
	rpc.SendingResponse = true
	t.outgoingResponses.PushBack(rpc)
	t.maintainTopOutgoing(rpc.Response)
}

// addressHash reduces an Address to a uint64 used to group scheduled
// messages by sender for tryToSchedule's same-sender check and
// promoteBestInactive's distinct-sender preference (spec.md section 4.4).
func addressHash(addr Address) uint64 {
	h := fnv.New64a()
	h.Write([]byte(addr.String()))
	return h.Sum64()
}
