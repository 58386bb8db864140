package homa

// checkTimeouts runs once per TimerInterval: it ages every RPC's silence
// counter, pings ones that have gone quiet for PingIntervals ticks with a
// RESEND, and gives up on ones silent for TimeoutIntervals ticks (spec.md
// section 4.6). It is only ever called from within Poll, with t.mu held.
func (t *Transport) checkTimeouts(now Cycles) {
	for id, rpc := range t.outgoingRpcs {
		rpc.SilentIntervals++
		switch {
		case rpc.SilentIntervals >= t.config.TimeoutIntervals:
			t.stats.Timeouts++
			rpc.Notifier.Failed(FailureTimeout, ErrRpcTimeout)
			t.deleteClientRpcLocked(id, rpc)
		case rpc.SilentIntervals >= t.config.PingIntervals:
			t.pingClientRpc(rpc)
		}
	}

	var timedOut []*ServerRpc
	t.serverTimers.ForEach(func(rpc *ServerRpc) {
		rpc.SilentIntervals++
		switch {
		case rpc.SilentIntervals >= t.config.TimeoutIntervals:
			timedOut = append(timedOut, rpc)
		case rpc.SilentIntervals >= t.config.PingIntervals:
			t.pingServerRpc(rpc)
		}
	})
	for _, rpc := range timedOut {
		t.stats.Timeouts++
		log.Debugf("abandoning server rpc %s after %d silent intervals", rpc.RpcId, rpc.SilentIntervals)
		t.deleteServerRpcLocked(rpc)
	}
}

// pingClientRpc asks the server to resend either the missing tail of the
// response (if bytes have already arrived) or, with nothing received yet,
// its first ResendLimit bytes.
func (t *Transport) pingClientRpc(rpc *ClientRpc) {
	offset, length := t.resendRangeFor(rpc.Accumulator, rpc.ScheduledMsg)
	hdr := ResendHeader{
		Common:   CommonHeader{Opcode: OpResend, RpcId: rpc.RpcId, Flags: FlagFromClient},
		Offset:   offset,
		Length:   length,
		Priority: uint8(t.config.highestSchedPriority()),
	}
	t.sendControlPacket(rpc.Request.Recipient, hdr.Encode(nil), t.config.highestSchedPriority())
	t.stats.ResendsSent++
}

// pingServerRpc asks the client to resend the missing tail of the request.
func (t *Transport) pingServerRpc(rpc *ServerRpc) {
	offset, length := t.resendRangeFor(rpc.Accumulator, rpc.ScheduledMsg)
	hdr := ResendHeader{
		Common:   CommonHeader{Opcode: OpResend, RpcId: rpc.RpcId, Flags: 0},
		Offset:   offset,
		Length:   length,
		Priority: uint8(t.config.highestSchedPriority()),
	}
	t.sendControlPacket(rpc.ClientAddress, hdr.Encode(nil), t.config.highestSchedPriority())
	t.stats.ResendsSent++
}

// resendRangeFor picks the byte range to request: the gap right after
// whatever has already been reassembled, bounded above by whatever has
// already been granted (so as never to ask for bytes the sender isn't yet
// allowed to send) and capped at ResendLimit bytes (spec.md section 4.2's
// RetransmitRange). With nothing received and no grant issued yet, falls
// back to asking for the first ResendLimit bytes from byte zero.
func (t *Transport) resendRangeFor(acc *MessageAccumulator, sched *ScheduledMessage) (offset, length uint32) {
	if acc == nil {
		return 0, t.config.ResendLimit
	}
	grantOffset := acc.TotalLength
	if sched != nil && sched.GrantOffset > 0 {
		grantOffset = sched.GrantOffset
	}
	return acc.RetransmitRange(grantOffset, t.config.ResendLimit)
}
