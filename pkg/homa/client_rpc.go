package homa

// ClientRpc tracks one outgoing RPC through to completion (spec.md
// section 3). Created by Session.SendRequest, destroyed on completion,
// cancellation, or abort.
type ClientRpc struct {
	Session *Session
	RpcId   RpcId

	Request  *OutgoingMessage
	Response []byte // set once the reply is fully received

	Notifier RpcNotifier

	SilentIntervals uint32
	TransmitPending bool

	Accumulator    *MessageAccumulator // non-nil once a multi-packet response starts arriving
	ScheduledMsg   *ScheduledMessage   // non-nil once the response requires scheduling

	// linkPrev/linkNext implement outgoingRequests membership.
	linkPrev, linkNext *ClientRpc
}

// newClientRpc constructs a ClientRpc and its embedded request message.
// The caller is responsible for inserting it into the transport's maps.
func newClientRpc(session *Session, rpcId RpcId, request []byte, notifier RpcNotifier, unscheduledBytes uint32) *ClientRpc {
	c := &ClientRpc{
		Session:         session,
		RpcId:           rpcId,
		Notifier:        notifier,
		TransmitPending: true,
	}
	c.Request = NewOutgoingMessage(request, session.remoteAddress, rpcId, FromClient, unscheduledBytes)
	c.Request.SetClientOwner(c)
	return c
}

// outgoingRequestList holds ClientRpcs whose request has not yet been
// fully transmitted for the first time (spec.md section 3).
type outgoingRequestList struct {
	head, tail *ClientRpc
	length     int
}

func (l *outgoingRequestList) Len() int { return l.length }

func (l *outgoingRequestList) PushBack(c *ClientRpc) {
	c.linkPrev, c.linkNext = l.tail, nil
	if l.tail != nil {
		l.tail.linkNext = c
	} else {
		l.head = c
	}
	l.tail = c
	l.length++
}

func (l *outgoingRequestList) Remove(c *ClientRpc) {
	if c.linkPrev != nil {
		c.linkPrev.linkNext = c.linkNext
	} else if l.head == c {
		l.head = c.linkNext
	}
	if c.linkNext != nil {
		c.linkNext.linkPrev = c.linkPrev
	} else if l.tail == c {
		l.tail = c.linkPrev
	}
	c.linkPrev, c.linkNext = nil, nil
	l.length--
}

func (l *outgoingRequestList) ForEach(f func(*ClientRpc)) {
	for cur := l.head; cur != nil; {
		next := cur.linkNext
		f(cur)
		cur = next
	}
}
