package homa

// outgoingOwnerKind tags which of ClientRpc/ServerRpc owns an
// OutgoingMessage. spec.md section 9: "model as a tagged variant
// (ClientOwned|ServerOwned) rather than two nullable pointers" — the tag
// makes the intended discriminant explicit even though Go still needs two
// fields to hold the (mutually exclusive) back-references.
type outgoingOwnerKind uint8

const (
	ownedByClient outgoingOwnerKind = iota
	ownedByServer
)

// OutgoingMessage is the per-outbound-message transmit state, shared by a
// ClientRpc's request and a ServerRpc's response (spec.md section 3).
type OutgoingMessage struct {
	Buffer    []byte
	Recipient Address
	RpcId     RpcId
	WhoFrom   WhoFrom

	ownerKind outgoingOwnerKind
	client    *ClientRpc
	server    *ServerRpc

	TransmitOffset   uint32
	TransmitLimit    uint32
	TransmitPriority int
	UnscheduledBytes uint32
	LastTransmitTime Cycles
	TopChoice        bool

	// linkPrev/linkNext implement topOutgoingMessages membership; see
	// scheduled_message.go's schedList for the rationale of embedding
	// the link directly rather than via an arena index.
	linkPrev, linkNext *OutgoingMessage
}

// NewOutgoingMessage constructs an OutgoingMessage with TransmitLimit
// initialized to min(unscheduledBytes, len(buffer)), per spec.md section 3's
// invariant.
func NewOutgoingMessage(buffer []byte, recipient Address, rpcId RpcId, whoFrom WhoFrom, unscheduledBytes uint32) *OutgoingMessage {
	limit := unscheduledBytes
	if uint32(len(buffer)) < limit {
		limit = uint32(len(buffer))
	}
	return &OutgoingMessage{
		Buffer:           buffer,
		Recipient:        recipient,
		RpcId:            rpcId,
		WhoFrom:          whoFrom,
		UnscheduledBytes: unscheduledBytes,
		TransmitLimit:    limit,
	}
}

// TotalLength is the full message size.
func (m *OutgoingMessage) TotalLength() uint32 { return uint32(len(m.Buffer)) }

// BytesRemaining is TotalLength minus TransmitOffset.
func (m *OutgoingMessage) BytesRemaining() uint32 { return m.TotalLength() - m.TransmitOffset }

// Ready reports whether m has bytes it is currently permitted to send.
func (m *OutgoingMessage) Ready() bool { return m.TransmitOffset < m.TransmitLimit }

// SetClientOwner binds m to a ClientRpc's request.
func (m *OutgoingMessage) SetClientOwner(c *ClientRpc) { m.ownerKind = ownedByClient; m.client = c }

// SetServerOwner binds m to a ServerRpc's response.
func (m *OutgoingMessage) SetServerOwner(s *ServerRpc) { m.ownerKind = ownedByServer; m.server = s }

// ClientOwner returns the owning ClientRpc, or nil if m is server-owned.
func (m *OutgoingMessage) ClientOwner() *ClientRpc {
	if m.ownerKind == ownedByClient {
		return m.client
	}
	return nil
}

// ServerOwner returns the owning ServerRpc, or nil if m is client-owned.
func (m *OutgoingMessage) ServerOwner() *ServerRpc {
	if m.ownerKind == ownedByServer {
		return m.server
	}
	return nil
}

// topOutgoingList is the sender's bounded fast-path list of the K
// OutgoingMessages with the fewest BytesRemaining (spec.md sections 3, 4.3,
// 9), kept sorted ascending by BytesRemaining.
type topOutgoingList struct {
	head, tail *OutgoingMessage
	length     int
	capacity   int
}

func newTopOutgoingList(capacity int) *topOutgoingList {
	return &topOutgoingList{capacity: capacity}
}

func (l *topOutgoingList) Len() int { return l.length }

func (l *topOutgoingList) Front() *OutgoingMessage { return l.head }

func (l *topOutgoingList) Back() *OutgoingMessage { return l.tail }

func (l *topOutgoingList) insertSorted(m *OutgoingMessage) {
	if l.head == nil {
		m.linkPrev, m.linkNext = nil, nil
		l.head, l.tail = m, m
		l.length++
		return
	}
	cur := l.head
	for cur != nil && cur.BytesRemaining() <= m.BytesRemaining() {
		cur = cur.linkNext
	}
	if cur == nil {
		m.linkPrev, m.linkNext = l.tail, nil
		l.tail.linkNext = m
		l.tail = m
	} else {
		m.linkNext = cur
		m.linkPrev = cur.linkPrev
		if cur.linkPrev != nil {
			cur.linkPrev.linkNext = m
		} else {
			l.head = m
		}
		cur.linkPrev = m
	}
	l.length++
}

func (l *topOutgoingList) remove(m *OutgoingMessage) {
	if m.linkPrev != nil {
		m.linkPrev.linkNext = m.linkNext
	} else {
		l.head = m.linkNext
	}
	if m.linkNext != nil {
		m.linkNext.linkPrev = m.linkPrev
	} else {
		l.tail = m.linkPrev
	}
	m.linkPrev, m.linkNext = nil, nil
	l.length--
	m.TopChoice = false
}

// Maintain inserts candidate in priority order if it is not already a
// member, evicting the worst (tail) entry when the list exceeds capacity.
// Returns true if capacity was exceeded and an entry was evicted, meaning
// the caller must set transmitDataSlowPath (spec.md section 4.3).
func (l *topOutgoingList) Maintain(candidate *OutgoingMessage) (evicted bool) {
	if candidate.TopChoice {
		// Already a member: its BytesRemaining only decreases while
		// transmitting, so re-sort it forward like schedList.MoveForward.
		for candidate.linkPrev != nil && candidate.linkPrev.BytesRemaining() > candidate.BytesRemaining() {
			l.swapWithPrev(candidate)
		}
		return false
	}
	candidate.TopChoice = true
	l.insertSorted(candidate)
	if l.length > l.capacity {
		worst := l.tail
		l.remove(worst)
		return true
	}
	return false
}

func (l *topOutgoingList) swapWithPrev(m *OutgoingMessage) {
	p := m.linkPrev
	pp := p.linkPrev
	nn := m.linkNext

	p.linkPrev = m
	p.linkNext = nn
	m.linkPrev = pp
	m.linkNext = p

	if pp != nil {
		pp.linkNext = m
	} else {
		l.head = m
	}
	if nn != nil {
		nn.linkPrev = p
	} else {
		l.tail = p
	}
}

func (l *topOutgoingList) ForEach(f func(*OutgoingMessage)) {
	for cur := l.head; cur != nil; cur = cur.linkNext {
		f(cur)
	}
}
