package homa

// activateMessage promotes m into the active list, assigning it a rank
// (and thus a grant priority) among the other active messages.
func (t *Transport) activateMessage(m *ScheduledMessage) {
	if m.State == SchedInactive {
		t.inactiveMessages.Remove(m)
	}
	m.State = SchedActive
	t.activeMessages.InsertSorted(m)
	t.reassignActivePriorities()
}

// reassignActivePriorities spreads the scheduled priority bands
// [0, highestSchedPriority] across the currently active messages by SRPT
// rank: the message with the fewest bytes remaining gets the highest
// scheduled priority, per spec.md section 4.5.
func (t *Transport) reassignActivePriorities() {
	highest := t.config.highestSchedPriority()
	rank := 0
	t.activeMessages.ForEach(func(m *ScheduledMessage) {
		prio := highest - rank
		if prio < 0 {
			prio = 0
		}
		m.GrantPriority = prio
		rank++
	})
}

// replaceActiveMessage evicts oldMsg from the active set in favor of
// newMsg, which must currently be either new or inactive. Used when a
// newly-arrived or newly-improved message outranks the worst active
// message under the overcommitment degree limit (spec.md section 4.4).
func (t *Transport) replaceActiveMessage(oldMsg, newMsg *ScheduledMessage) {
	t.activeMessages.Remove(oldMsg)
	oldMsg.State = SchedInactive
	t.inactiveMessages.PushBackUnsorted(oldMsg)
	t.activateMessage(newMsg)
}

// tryToSchedule updates m's active/inactive membership after its arrival,
// creation, or a shrink in BytesRemaining, then issues a GRANT if m is
// active and its window has room to advance (spec.md section 4.4).
func (t *Transport) tryToSchedule(now Cycles, m *ScheduledMessage) {
	switch m.State {
	case SchedNew:
		if sibling := t.activeMessages.Find(func(a *ScheduledMessage) bool { return a.SenderHash == m.SenderHash }); sibling != nil {
			if sibling.CompareTo(m) < 0 {
				m.State = SchedInactive
				t.inactiveMessages.PushBackUnsorted(m)
			} else {
				t.replaceActiveMessage(sibling, m)
			}
		} else if t.activeMessages.Len() < int(t.config.MaxGrantedMessages) {
			t.activateMessage(m)
		} else if worst := t.activeMessages.Back(); worst != nil && m.CompareTo(worst) < 0 {
			t.replaceActiveMessage(worst, m)
		} else {
			m.State = SchedInactive
			t.inactiveMessages.PushBackUnsorted(m)
		}
	case SchedActive:
		t.adjustSchedulingPrecedence(m)
	case SchedInactive:
		if worst := t.activeMessages.Back(); worst == nil || m.CompareTo(worst) < 0 {
			if t.activeMessages.Len() < int(t.config.MaxGrantedMessages) {
				t.activateMessage(m)
			} else if worst != nil {
				t.replaceActiveMessage(worst, m)
			}
		}
	case SchedFullyGranted:
		return
	}
	if m.State == SchedActive {
		t.sendGrant(m)
	}
}

// adjustSchedulingPrecedence re-sorts m within activeMessages after its
// BytesRemaining shrinks; since BytesRemaining only decreases, m can only
// move toward the head (spec.md section 4.4, section 9).
func (t *Transport) adjustSchedulingPrecedence(m *ScheduledMessage) {
	before := m.linkPrev
	t.activeMessages.MoveForward(m)
	if m.linkPrev != before {
		t.reassignActivePriorities()
	}
}

// sendGrant advances m's GrantOffset by one GrantIncrement past whatever
// has already been granted, and emits a GRANT packet if that advances the
// offset (spec.md section 4.4: newGrantOffset = min(totalLength,
// grantOffset + grantIncrement); the grantIncrement-equals-RoundTripBytes
// default resolves Open Question #2).
func (t *Transport) sendGrant(m *ScheduledMessage) {
	target := m.GrantOffset + t.config.GrantIncrement
	if target > m.TotalLength {
		target = m.TotalLength
	}
	if target <= m.GrantOffset {
		return
	}
	m.GrantOffset = target

	hdr := GrantHeader{
		Common:   CommonHeader{Opcode: OpGrant, RpcId: m.RpcId, Flags: oppositeFlag(m.WhoFrom)},
		Offset:   target,
		Priority: uint8(m.GrantPriority),
	}
	t.sendControlPacket(m.SenderAddress, hdr.Encode(nil), t.config.highestSchedPriority())
	t.stats.GrantsSent++

	if target == m.TotalLength {
		m.State = SchedFullyGranted
		t.activeMessages.Remove(m)
		t.promoteBestInactive()
	}
}

// promoteBestInactive activates the best-ranked inactive message, if any,
// to fill a vacancy left by a message finishing or being deleted. Prefers
// a message from a distinct sender to spread grants across peers.
func (t *Transport) promoteBestInactive() {
	if t.activeMessages.Len() >= int(t.config.MaxGrantedMessages) {
		return
	}
	activeSenders := make(map[uint64]bool)
	t.activeMessages.ForEach(func(m *ScheduledMessage) { activeSenders[m.SenderHash] = true })

	best := t.inactiveMessages.Best(func(m *ScheduledMessage) bool { return activeSenders[m.SenderHash] })
	if best == nil {
		best = t.inactiveMessages.Best(nil)
	}
	if best != nil {
		t.activateMessage(best)
		t.sendGrant(best)
	}
}

// oppositeFlag returns the FROM_CLIENT flag for a control packet replying
// to a message that came FromServer, and vice versa: GRANT/RESEND always
// travel in the direction opposite the data they govern.
func oppositeFlag(dataFrom WhoFrom) uint8 {
	if dataFrom == FromServer {
		return FlagFromClient
	}
	return 0
}
