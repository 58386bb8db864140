package homa

// ServerRpc holds server-side state for an inbound RPC (spec.md section 3).
// Created on the first received packet of a new request; dismissed only
// after the entire response has been handed to the driver.
type ServerRpc struct {
	Sequence      uint64 // server-assigned, distinct from RpcId.Sequence
	RpcId         RpcId
	ClientAddress Address

	Accumulator *MessageAccumulator // non-nil once a multi-packet request starts arriving
	Response    *OutgoingMessage
	ScheduledMsg *ScheduledMessage

	SilentIntervals uint32
	RequestComplete bool
	SendingResponse bool
	Cancelled       bool

	// linkPrev/linkNext implement serverTimerList membership.
	timerPrev, timerNext *ServerRpc
	// respPrev/respNext implement outgoingResponses membership.
	respPrev, respNext *ServerRpc
}

// newServerRpc constructs a ServerRpc and its embedded (as yet empty)
// response message.
func newServerRpc(sequence uint64, rpcId RpcId, clientAddress Address) *ServerRpc {
	s := &ServerRpc{
		Sequence:      sequence,
		RpcId:         rpcId,
		ClientAddress: clientAddress,
	}
	s.Response = NewOutgoingMessage(nil, clientAddress, rpcId, FromServer, 0)
	s.Response.SetServerOwner(s)
	return s
}

// serverTimerList holds ServerRpcs the timer must monitor (spec.md
// section 3): a subset of incomingRpcs, excluding RPCs currently being
// executed by a worker.
type serverTimerList struct {
	head, tail *ServerRpc
	length     int
}

func (l *serverTimerList) Len() int { return l.length }

func (l *serverTimerList) PushBack(s *ServerRpc) {
	s.timerPrev, s.timerNext = l.tail, nil
	if l.tail != nil {
		l.tail.timerNext = s
	} else {
		l.head = s
	}
	l.tail = s
	l.length++
}

func (l *serverTimerList) Remove(s *ServerRpc) {
	if s.timerPrev != nil {
		s.timerPrev.timerNext = s.timerNext
	} else {
		l.head = s.timerNext
	}
	if s.timerNext != nil {
		s.timerNext.timerPrev = s.timerPrev
	} else {
		l.tail = s.timerPrev
	}
	s.timerPrev, s.timerNext = nil, nil
	l.length--
}

func (l *serverTimerList) ForEach(f func(*ServerRpc)) {
	for cur := l.head; cur != nil; {
		next := cur.timerNext
		f(cur)
		cur = next
	}
}

// outgoingResponseList holds ServerRpcs with a partially-transmitted
// response (spec.md section 3).
type outgoingResponseList struct {
	head, tail *ServerRpc
	length     int
}

func (l *outgoingResponseList) Len() int { return l.length }

func (l *outgoingResponseList) PushBack(s *ServerRpc) {
	s.respPrev, s.respNext = l.tail, nil
	if l.tail != nil {
		l.tail.respNext = s
	} else {
		l.head = s
	}
	l.tail = s
	l.length++
}

func (l *outgoingResponseList) Remove(s *ServerRpc) {
	if s.respPrev != nil {
		s.respPrev.respNext = s.respNext
	} else {
		l.head = s.respNext
	}
	if s.respNext != nil {
		s.respNext.respPrev = s.respPrev
	} else {
		l.tail = s.respPrev
	}
	s.respPrev, s.respNext = nil, nil
	l.length--
}

func (l *outgoingResponseList) ForEach(f func(*ServerRpc)) {
	for cur := l.head; cur != nil; {
		next := cur.respNext
		f(cur)
		cur = next
	}
}
