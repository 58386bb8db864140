package homa

// WhoFrom identifies which side of an RPC a ScheduledMessage or
// OutgoingMessage belongs to, replacing the C++ original's
// FROM_CLIENT/FROM_SERVER flag reuse with a small dedicated type (spec.md
// section 9: "model as a tagged variant rather than two nullable
// pointers").
type WhoFrom uint8

const (
	FromClient WhoFrom = iota
	FromServer
)

func (w WhoFrom) flag() uint8 {
	if w == FromClient {
		return FlagFromClient
	}
	return 0
}

// SchedState is the lifecycle state of a ScheduledMessage, per spec.md
// section 3.
type SchedState int

const (
	SchedNew SchedState = iota
	SchedActive
	SchedInactive
	SchedFullyGranted
)

func (s SchedState) String() string {
	switch s {
	case SchedNew:
		return "NEW"
	case SchedActive:
		return "ACTIVE"
	case SchedInactive:
		return "INACTIVE"
	case SchedFullyGranted:
		return "FULLY_GRANTED"
	default:
		return "UNKNOWN"
	}
}

// ScheduledMessage holds per-inbound-message scheduling state used by the
// grant engine (spec.md section 3). One exists per inbound message whose
// TotalLength exceeds its unscheduled allowance.
type ScheduledMessage struct {
	RpcId          RpcId
	Accumulator    *MessageAccumulator
	SenderAddress  Address
	SenderHash     uint64
	TotalLength    uint32
	GrantOffset    uint32
	GrantPriority  int
	State          SchedState
	WhoFrom        WhoFrom

	// linkPrev/linkNext implement O(1) membership in exactly one of the
	// scheduler's active/inactive lists at a time, the Go rendition of
	// the original's IntrusiveListHook (spec.md section 9): a plain
	// doubly-linked pointer pair on the struct itself rather than an
	// index into a separate arena, since Go's GC removes the
	// dangling-pointer hazard that motivated the arena indirection in
	// C++.
	linkPrev, linkNext *ScheduledMessage
}

// BytesRemaining is TotalLength minus the number of bytes reassembled so
// far.
func (m *ScheduledMessage) BytesRemaining() uint32 {
	return m.TotalLength - m.Accumulator.Size()
}

// CompareTo orders ScheduledMessages by SRPT: smaller BytesRemaining wins.
// Ties break on RpcId to give a deterministic total order (spec.md section
// 9, Open Question #1). Returns <0 if m is "better" (should be granted
// first) than other, 0 if equal, >0 otherwise.
func (m *ScheduledMessage) CompareTo(other *ScheduledMessage) int {
	mr, or := m.BytesRemaining(), other.BytesRemaining()
	switch {
	case mr < or:
		return -1
	case mr > or:
		return 1
	case m.RpcId.Less(other.RpcId):
		return -1
	case other.RpcId.Less(m.RpcId):
		return 1
	default:
		return 0
	}
}

// schedList is a sorted (by ScheduledMessage.CompareTo, ascending) doubly
// linked list using each message's linkPrev/linkNext fields. A given
// ScheduledMessage may only be linked into one schedList at a time.
type schedList struct {
	head, tail *ScheduledMessage
	length     int
}

func (l *schedList) Len() int { return l.length }

func (l *schedList) Front() *ScheduledMessage { return l.head }

func (l *schedList) Back() *ScheduledMessage { return l.tail }

// InsertSorted inserts m in ascending CompareTo order.
func (l *schedList) InsertSorted(m *ScheduledMessage) {
	if l.head == nil {
		m.linkPrev, m.linkNext = nil, nil
		l.head, l.tail = m, m
		l.length++
		return
	}
	cur := l.head
	for cur != nil && cur.CompareTo(m) <= 0 {
		cur = cur.linkNext
	}
	if cur == nil {
		// append at tail
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

// PushBackUnsorted appends m without regard to order; used for
// inactiveMessages, which spec.md section 3 does not require to be sorted.
func (l *schedList) PushBackUnsorted(m *ScheduledMessage) {
	m.linkPrev, m.linkNext = l.tail, nil
	if l.tail != nil {
		l.tail.linkNext = m
	} else {
		l.head = m
	}
	l.tail = m
	l.length++
}

// Remove unlinks m from l. m must currently be linked into l.
func (l *schedList) Remove(m *ScheduledMessage) {
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
}

// MoveForward re-sorts m towards the head after its BytesRemaining has
// decreased (spec.md section 4.4's adjustSchedulingPrecedence: "m's
// bytesRemaining only decreases, so movement is forward toward the head").
func (l *schedList) MoveForward(m *ScheduledMessage) {
	for m.linkPrev != nil && m.linkPrev.CompareTo(m) > 0 {
		l.swapWithPrev(m)
	}
}

func (l *schedList) swapWithPrev(m *ScheduledMessage) {
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

// ForEach calls f for every message in l, head to tail. f must not mutate
// l.
func (l *schedList) ForEach(f func(*ScheduledMessage)) {
	for cur := l.head; cur != nil; cur = cur.linkNext {
		f(cur)
	}
}

// Find returns the first message satisfying pred, or nil.
func (l *schedList) Find(pred func(*ScheduledMessage) bool) *ScheduledMessage {
	for cur := l.head; cur != nil; cur = cur.linkNext {
		if pred(cur) {
			return cur
		}
	}
	return nil
}

// Best returns the message with the smallest BytesRemaining (by
// CompareTo), or nil if l is empty. Used to pick the best inactive
// candidate with a distinct SenderHash in replaceActiveMessage.
func (l *schedList) Best(exclude func(*ScheduledMessage) bool) *ScheduledMessage {
	var best *ScheduledMessage
	for cur := l.head; cur != nil; cur = cur.linkNext {
		if exclude != nil && exclude(cur) {
			continue
		}
		if best == nil || cur.CompareTo(best) < 0 {
			best = cur
		}
	}
	return best
}
