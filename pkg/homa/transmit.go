package homa

import "github.com/pkg/errors"

// maintainTopOutgoing keeps the sender's top-K fast-path list current for
// m, per spec.md sections 4.3 and 9. It must be called whenever m becomes
// ready, whenever its BytesRemaining shrinks, or when m is created.
//
// Messages at or below Config.SmallMessageThreshold skip the top-K
// machinery entirely: the bookkeeping to keep them sorted costs more than
// the SRPT ordering saves for a handful of packets, so they are instead
// picked up by the plain full scan (spec.md section 6's SmallMessageThreshold).
func (t *Transport) maintainTopOutgoing(m *OutgoingMessage) {
	if !m.Ready() {
		return
	}
	if m.TotalLength() <= t.config.SmallMessageThreshold {
		t.transmitDataSlowPath = true
		return
	}
	if t.topOutgoing.Maintain(m) {
		t.transmitDataSlowPath = true
	}
}

// tryToTransmitData sends at most one data packet per call: the packet
// belonging to whichever ready OutgoingMessage currently has the fewest
// bytes remaining (SRPT), using the bounded top-K list unless
// transmitDataSlowPath forces a full scan (spec.md section 4.3).
func (t *Transport) tryToTransmitData(now Cycles) {
	var best *OutgoingMessage
	if t.transmitDataSlowPath {
		best = t.selectSlowPath()
		t.transmitDataSlowPath = false
	} else {
		best = t.selectFromTop()
		if best == nil && t.topOutgoing.Len() < int(t.config.MaxGrantedMessages) {
			// The fast-path list is under capacity and holds nothing ready;
			// a slow-path scan may still find newly-eligible messages that
			// were never inserted (e.g. one waiting on its first grant).
			best = t.selectSlowPath()
		}
	}
	if best == nil {
		return
	}
	if err := t.sendNextPacket(now, best); err != nil {
		log.Warningf("send to %s failed: %v", best.Recipient, err)
	}
}

func (t *Transport) selectFromTop() *OutgoingMessage {
	var best *OutgoingMessage
	t.topOutgoing.ForEach(func(m *OutgoingMessage) {
		if !m.Ready() {
			return
		}
		if best == nil || m.BytesRemaining() < best.BytesRemaining() {
			best = m
		}
	})
	return best
}

func (t *Transport) selectSlowPath() *OutgoingMessage {
	var best *OutgoingMessage
	consider := func(m *OutgoingMessage) {
		if !m.Ready() {
			return
		}
		if best == nil || m.BytesRemaining() < best.BytesRemaining() {
			best = m
		}
	}
	for _, rpc := range t.outgoingRpcs {
		consider(rpc.Request)
	}
	for _, rpc := range t.incomingRpcs {
		consider(rpc.Response)
	}
	return best
}

// transmitPriorityFor returns the priority band a packet at byte offset
// should carry: the unscheduled band derived from total message length
// while offset is within UnscheduledBytes, otherwise the scheduled
// priority most recently granted for m's message (spec.md section 4.5), or
// the highest scheduled priority before any GRANT has arrived.
func (t *Transport) transmitPriorityFor(m *OutgoingMessage, offset uint32) int {
	if offset < m.UnscheduledBytes {
		return t.config.unschedPriorityFor(m.TotalLength())
	}
	if m.TransmitLimit > m.UnscheduledBytes {
		// grantArrive raised the limit and recorded the GRANT's priority.
		return m.TransmitPriority
	}
	return t.config.highestSchedPriority()
}

func (t *Transport) scheduledMessageFor(m *OutgoingMessage) *ScheduledMessage {
	if c := m.ClientOwner(); c != nil {
		return c.ScheduledMsg
	}
	if s := m.ServerOwner(); s != nil {
		return s.ScheduledMsg
	}
	return nil
}

// sendNextPacket transmits the next unsent slice of m: a single ALL_DATA
// packet if the whole message fits in one MTU and this is the first byte,
// otherwise a DATA packet no larger than driver.MaxDataPerPacket().
func (t *Transport) sendNextPacket(now Cycles, m *OutgoingMessage) error {
	mtu := uint32(t.driver.MaxDataPerPacket())

	if m.TransmitOffset == 0 && m.TotalLength() <= mtu {
		hdr := AllDataHeader{
			Common:        CommonHeader{Opcode: OpAllData, RpcId: m.RpcId, Flags: m.WhoFrom.flag()},
			MessageLength: uint16(m.TotalLength()),
		}
		packet := append(hdr.Encode(nil), m.Buffer...)
		priority := t.transmitPriorityFor(m, 0)
		if err := t.driver.Send(m.Recipient, packet, priority); err != nil {
			return errors.Wrap(err, "send ALL_DATA")
		}
		m.TransmitOffset = m.TotalLength()
		m.LastTransmitTime = now
		t.onFullyTransmitted(m)
		return nil
	}

	length := m.TransmitLimit - m.TransmitOffset
	if length > mtu {
		length = mtu
	}
	priority := t.transmitPriorityFor(m, m.TransmitOffset)
	hdr := DataHeader{
		Common:           CommonHeader{Opcode: OpData, RpcId: m.RpcId, Flags: m.WhoFrom.flag()},
		TotalLength:      m.TotalLength(),
		Offset:           m.TransmitOffset,
		UnscheduledBytes: m.UnscheduledBytes,
	}
	packet := append(hdr.Encode(nil), m.Buffer[m.TransmitOffset:m.TransmitOffset+length]...)
	if err := t.driver.Send(m.Recipient, packet, priority); err != nil {
		return errors.Wrap(err, "send DATA")
	}
	m.TransmitOffset += length
	m.LastTransmitTime = now

	if m.TransmitOffset == m.TotalLength() {
		t.onFullyTransmitted(m)
	} else {
		t.maintainTopOutgoing(m)
	}
	return nil
}

// onFullyTransmitted runs the bookkeeping that fires once an
// OutgoingMessage has sent its last byte: unlinking it from the
// first-transmission lists, marking client requests no longer pending, and
// dismissing the ServerRpc whose response this was.
func (t *Transport) onFullyTransmitted(m *OutgoingMessage) {
	if m.TopChoice {
		t.topOutgoing.remove(m)
	}
	if c := m.ClientOwner(); c != nil {
		c.TransmitPending = false
		if c.linkPrev != nil || c.linkNext != nil || t.outgoingRequests.head == c {
			t.outgoingRequests.Remove(c)
		}
	}
	if s := m.ServerOwner(); s != nil {
		s.SendingResponse = false
		if s.respPrev != nil || s.respNext != nil || t.outgoingResponses.head == s {
			t.outgoingResponses.Remove(s)
		}
		t.deleteServerRpcLocked(s)
	}
}

// sendControlPacket is the shared send path for GRANT/RESEND/BUSY/ABORT/
// LOG_TIME_TRACE, none of which carry message payload.
func (t *Transport) sendControlPacket(recipient Address, packet []byte, priority int) {
	if err := t.driver.Send(recipient, packet, priority); err != nil {
		log.Warningf("control packet to %s failed: %v", recipient, err)
	}
}
