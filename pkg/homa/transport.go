package homa

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Transport is the single-instance core of the protocol (spec.md section
// 3). All of its state is touched only while mu is held; Poll holds mu for
// its entire tick, and the handful of Session methods that may be called
// from other goroutines (SendRequest, CancelRequest, Abort) take mu just
// long enough to enqueue or mutate a map entry, never across a blocking
// call, matching spec.md section 5's "no internal locks are held across
// suspension points" rule.
type Transport struct {
	driver Driver
	config Config
	clock  Clock

	clientID                 uint64
	nextClientSequenceNumber uint64
	nextServerSequenceNumber uint64

	mu sync.Mutex

	sessions map[string]*Session

	outgoingRpcs      map[RpcId]*ClientRpc
	outgoingRequests  outgoingRequestList
	incomingRpcs      map[RpcId]*ServerRpc
	outgoingResponses outgoingResponseList
	serverTimers      serverTimerList

	activeMessages   schedList
	inactiveMessages schedList
	topOutgoing      *topOutgoingList

	transmitDataSlowPath bool

	handler Handler

	traceStore TimeTraceStore

	lastTimerTime Cycles

	stats TransportStats
}

// TransportStats is a snapshot of the diagnostic counters exposed via
// pkg/homa/debug's GET /stats endpoint (spec.md section 4.8's
// **[EXPANSION]**): running totals of protocol events, grounded on the
// teacher pack's own resend/ack counters in
// vendor/github.com/skycoin/net/conn/udp.go.
type TransportStats struct {
	GrantsSent  uint64
	ResendsSent uint64
	Timeouts    uint64
	AbortsSent  uint64
	AbortsRecvd uint64
}

// Stats returns a snapshot of the transport's running diagnostic counters.
func (t *Transport) Stats() TransportStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// NewTransport constructs a Transport bound to driver, using config
// (typically DefaultConfig(driver.HighestAvailablePriority())) as given.
// clock is stored on the Transport; timeouts and scheduling read the time
// only from the now argument of Poll.
func NewTransport(driver Driver, config Config, clock Clock, clientID uint64) *Transport {
	t := &Transport{
		driver:            driver,
		config:            config,
		clock:             clock,
		clientID:          clientID,
		sessions:          make(map[string]*Session),
		outgoingRpcs:      make(map[RpcId]*ClientRpc),
		incomingRpcs:      make(map[RpcId]*ServerRpc),
		topOutgoing:       newTopOutgoingList(int(config.MaxGrantedMessages)),
		traceStore:        NewMemoryTimeTraceStore(),
	}
	return t
}

// SetTimeTraceStore overrides the default in-memory LOG_TIME_TRACE sink,
// e.g. with a bbolt-backed store for durability across restarts.
func (t *Transport) SetTimeTraceStore(store TimeTraceStore) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traceStore = store
}

// GetServiceLocator returns the driver's locator string, identifying this
// transport instance to peers.
func (t *Transport) GetServiceLocator() string {
	return t.driver.ServiceLocator()
}

// RegisterMemory forwards to the driver, allowing later zero-copy sends of
// buffers carved out of base.
func (t *Transport) RegisterMemory(base []byte) error {
	return t.driver.RegisterMemory(base)
}

// GetSession returns (creating if necessary) the Session used to send RPCs
// to the peer identified by locator.
func (t *Transport) GetSession(locator string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[locator]; ok && !s.aborted {
		return s, nil
	}
	addr, err := t.driver.ResolveAddress(locator)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving locator %q", locator)
	}
	s := &Session{transport: t, remoteAddress: addr, locator: locator}
	t.sessions[locator] = s
	return s, nil
}

// sendRequest builds and registers a ClientRpc for request, deferring the
// first transmit attempt to the next Poll.
func (t *Transport) sendRequest(session *Session, request []byte, notifier RpcNotifier) (RpcId, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextClientSequenceNumber++
	rpcID := RpcId{ClientID: t.clientID, Sequence: t.nextClientSequenceNumber}

	unscheduled := t.unscheduledBytesFor(uint32(len(request)))
	rpc := newClientRpc(session, rpcID, request, notifier, unscheduled)
	t.outgoingRpcs[rpcID] = rpc
	t.outgoingRequests.PushBack(rpc)
	return rpcID, nil
}

// unscheduledBytesFor returns min(RoundTripBytes, messageLength): the
// number of leading bytes of a new outbound message sent without waiting
// for a GRANT (spec.md section 4.5).
func (t *Transport) unscheduledBytesFor(messageLength uint32) uint32 {
	if messageLength < t.config.RoundTripBytes {
		return messageLength
	}
	return t.config.RoundTripBytes
}

// cancelRequest looks up the ClientRpc bound to notifier, tells the server
// to abandon it, and removes it (spec.md section 5).
func (t *Transport) cancelRequest(notifier RpcNotifier) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, rpc := range t.outgoingRpcs {
		if rpc.Notifier == notifier {
			hdr := AbortHeader{Common: CommonHeader{Opcode: OpAbort, RpcId: id, Flags: FlagFromClient}}
			t.sendControlPacket(rpc.Request.Recipient, hdr.Encode(nil), 0)
			t.stats.AbortsSent++
			t.deleteClientRpcLocked(id, rpc)
			return
		}
	}
}

// abortSession fails every outstanding ClientRpc on session and marks it
// unusable for further SendRequest calls.
func (t *Transport) abortSession(session *Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	session.aborted = true
	for id, rpc := range t.outgoingRpcs {
		if rpc.Session == session {
			rpc.Notifier.Failed(FailureSessionAborted, ErrSessionAborted)
			t.deleteClientRpcLocked(id, rpc)
		}
	}
	delete(t.sessions, session.locator)
}

// deleteClientRpcLocked removes rpc from every list/map it may belong to.
// Per spec.md's Open Question #3, an RPC's request message must also be
// unlinked from topOutgoing (setting transmitDataSlowPath so the next
// tryToTransmitData call selects by a full scan rather than trusting the
// top-K list).
func (t *Transport) deleteClientRpcLocked(id RpcId, rpc *ClientRpc) {
	delete(t.outgoingRpcs, id)
	if rpc.linkPrev != nil || rpc.linkNext != nil || t.outgoingRequests.head == rpc {
		t.outgoingRequests.Remove(rpc)
	}
	if rpc.Request.TopChoice {
		t.topOutgoing.remove(rpc.Request)
		t.transmitDataSlowPath = true
	}
	if rpc.ScheduledMsg != nil {
		t.unlinkScheduledMessage(rpc.ScheduledMsg)
	}
}

// deleteServerRpcLocked mirrors deleteClientRpcLocked for the server side.
func (t *Transport) deleteServerRpcLocked(rpc *ServerRpc) {
	delete(t.incomingRpcs, rpc.RpcId)
	if rpc.timerPrev != nil || rpc.timerNext != nil || t.serverTimers.head == rpc {
		t.serverTimers.Remove(rpc)
	}
	if rpc.respPrev != nil || rpc.respNext != nil || t.outgoingResponses.head == rpc {
		t.outgoingResponses.Remove(rpc)
	}
	if rpc.Response.TopChoice {
		t.topOutgoing.remove(rpc.Response)
		t.transmitDataSlowPath = true
	}
	if rpc.ScheduledMsg != nil {
		t.unlinkScheduledMessage(rpc.ScheduledMsg)
	}
}

func (t *Transport) unlinkScheduledMessage(m *ScheduledMessage) {
	switch m.State {
	case SchedActive:
		t.activeMessages.Remove(m)
	case SchedInactive:
		t.inactiveMessages.Remove(m)
	}
}

// Poll drives one iteration of the transport: it drains newly arrived
// packets, transmits at most one DATA packet, and, at most once per
// TimerInterval, runs loss-recovery checks. Callers are expected to invoke
// Poll frequently and regularly from a single dispatch goroutine (spec.md
// section 5).
func (t *Transport) Poll(now Cycles) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	received, err := t.driver.Receive()
	if err != nil {
		return errors.Wrap(err, "driver receive")
	}
	for _, pkt := range received {
		if err := t.handlePacket(now, pkt); err != nil {
			log.Warningf("dropping malformed packet from %s: %v", pkt.Address, err)
		}
	}

	t.tryToTransmitData(now)

	if now-t.lastTimerTime >= t.config.TimerInterval {
		t.lastTimerTime = now
		t.checkTimeouts(now)
	}
	return nil
}

// RpcInfo is one row of Transport.RpcInfo's structured diagnostic dump.
type RpcInfo struct {
	RpcId           RpcId  `json:"rpc_id"`
	Direction       string `json:"direction"` // "client" (this side sent the request) or "server" (this side received it)
	Peer            string `json:"peer"`
	TransmitOffset  uint32 `json:"transmit_offset"`
	TotalLength     uint32 `json:"total_length"`
	SilentIntervals uint32 `json:"silent_intervals"`
}

func (i RpcInfo) String() string {
	return fmt.Sprintf("%s %s <-> %s: sent=%d/%d silent=%d",
		i.Direction, i.RpcId, i.Peer, i.TransmitOffset, i.TotalLength, i.SilentIntervals)
}

// RpcInfo returns a structured diagnostic dump of every RPC currently
// tracked by the transport, backing pkg/homa/debug's GET /rpcs endpoint.
func (t *Transport) RpcInfo() []RpcInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := make([]RpcInfo, 0, len(t.outgoingRpcs)+len(t.incomingRpcs))
	for id, rpc := range t.outgoingRpcs {
		infos = append(infos, RpcInfo{
			RpcId:           id,
			Direction:       "client",
			Peer:            rpc.Request.Recipient.String(),
			TransmitOffset:  rpc.Request.TransmitOffset,
			TotalLength:     rpc.Request.TotalLength(),
			SilentIntervals: rpc.SilentIntervals,
		})
	}
	for id, rpc := range t.incomingRpcs {
		infos = append(infos, RpcInfo{
			RpcId:           id,
			Direction:       "server",
			Peer:            rpc.ClientAddress.String(),
			TransmitOffset:  rpc.Response.TransmitOffset,
			TotalLength:     rpc.Response.TotalLength(),
			SilentIntervals: rpc.SilentIntervals,
		})
	}
	return infos
}

// rpcInfoForSession filters RpcInfo down to a single session's RPCs,
// formatted as a string for parity with spec.md section 6's
// Session.getRpcInfo() → string signature.
func (t *Transport) rpcInfoForSession(session *Session) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var b strings.Builder
	for id, rpc := range t.outgoingRpcs {
		if rpc.Session != session {
			continue
		}
		fmt.Fprintf(&b, "%s -> %s: sent=%d/%d\n", id, rpc.Request.Recipient, rpc.Request.TransmitOffset, rpc.Request.TotalLength())
	}
	return b.String()
}
