package homa

// handlePacket demultiplexes a single received packet to the appropriate
// engine (spec.md section 4.7). It is only ever called from within Poll,
// with t.mu already held.
func (t *Transport) handlePacket(now Cycles, pkt Received) error {
	switch pkt.Opcode {
	case OpAllData:
		hdr, _, err := DecodeAllDataHeader(pkt.Header)
		if err != nil {
			return err
		}
		return t.dataPacketArrive(now, hdr.Common, 0, uint32(hdr.MessageLength), 0, pkt.Address, pkt.Payload, pkt.Steal)

	case OpData:
		hdr, _, err := DecodeDataHeader(pkt.Header)
		if err != nil {
			return err
		}
		return t.dataPacketArrive(now, hdr.Common, hdr.Offset, hdr.TotalLength, hdr.UnscheduledBytes, pkt.Address, pkt.Payload, pkt.Steal)

	case OpGrant:
		hdr, _, err := DecodeGrantHeader(pkt.Header)
		if err != nil {
			return err
		}
		t.grantArrive(hdr)
		return nil

	case OpResend:
		hdr, _, err := DecodeResendHeader(pkt.Header)
		if err != nil {
			return err
		}
		t.resendArrive(pkt.Address, hdr)
		return nil

	case OpBusy:
		common, _, err := DecodeCommonHeader(pkt.Header)
		if err != nil {
			return err
		}
		t.busyArrive(common)
		return nil

	case OpAbort:
		common, _, err := DecodeCommonHeader(pkt.Header)
		if err != nil {
			return err
		}
		t.abortArrive(common)
		return nil

	case OpLogTimeTrace:
		common, _, err := DecodeCommonHeader(pkt.Header)
		if err != nil {
			return err
		}
		t.traceStore.Append(common.RpcId, pkt.Address.String(), pkt.Payload)
		return nil

	default:
		return ErrProtocolViolation
	}
}

// dataPacketArrive folds a DATA or ALL_DATA fragment into the target
// message's accumulator, creating a ServerRpc on the first fragment of a
// new request, and drives the scheduler when the message needs grants
// (spec.md sections 4.2, 4.4).
func (t *Transport) dataPacketArrive(now Cycles, common CommonHeader, offset, totalLength, unscheduledBytes uint32, from Address, payload []byte, steal func() []byte) error {
	if common.Flags&FlagRestart != 0 {
		return t.restartArrive(common)
	}

	if common.FromClient() {
		rpc, ok := t.incomingRpcs[common.RpcId]
		if !ok {
			t.nextServerSequenceNumber++
			rpc = newServerRpc(t.nextServerSequenceNumber, common.RpcId, from)
			t.incomingRpcs[common.RpcId] = rpc
			t.serverTimers.PushBack(rpc)
		}
		rpc.SilentIntervals = 0
		if rpc.Accumulator == nil {
			rpc.Accumulator = NewMessageAccumulator(totalLength, t.config.MessageZeroCopyThreshold)
		}
		added := rpc.Accumulator.AddPacket(offset, payload, steal)

		if added && !rpc.RequestComplete && rpc.Accumulator.Complete() {
			// The message is already whole (an ALL_DATA delivery always
			// lands here, per spec.md section 4.7's "construct final buffer
			// directly, mark complete in one step, no scheduler
			// involvement"; a scheduled message only ever finishes here
			// once its ScheduledMsg has already reached FULLY_GRANTED). No
			// grant bookkeeping is needed for a message that has nothing
			// left to receive.
			rpc.RequestComplete = true
			t.dispatchRequest(rpc)
			return nil
		}

		if totalLength > unscheduledBytes {
			if rpc.ScheduledMsg == nil {
				rpc.ScheduledMsg = &ScheduledMessage{
					RpcId:         common.RpcId,
					Accumulator:   rpc.Accumulator,
					SenderAddress: from,
					SenderHash:    addressHash(from),
					TotalLength:   totalLength,
					GrantOffset:   unscheduledBytes,
					WhoFrom:       FromClient,
				}
				t.tryToSchedule(now, rpc.ScheduledMsg)
			} else if added {
				t.tryToSchedule(now, rpc.ScheduledMsg)
			}
		}
		return nil
	}

	rpc, ok := t.outgoingRpcs[common.RpcId]
	if !ok {
		// No record of this RPC: it was already completed, cancelled, or
		// belongs to a prior transport instance. Silently drop, matching
		// spec.md section 4.7's guidance that unmatched response traffic
		// is not itself evidence of a protocol violation.
		return nil
	}
	rpc.SilentIntervals = 0
	if rpc.Accumulator == nil {
		rpc.Accumulator = NewMessageAccumulator(totalLength, t.config.MessageZeroCopyThreshold)
	}
	added := rpc.Accumulator.AddPacket(offset, payload, steal)

	if added && rpc.Accumulator.Complete() {
		rpc.Response = rpc.Accumulator.Buffer()
		rpc.Notifier.Done(rpc.Response)
		t.deleteClientRpcLocked(common.RpcId, rpc)
		return nil
	}

	if totalLength > unscheduledBytes {
		if rpc.ScheduledMsg == nil {
			rpc.ScheduledMsg = &ScheduledMessage{
				RpcId:         common.RpcId,
				Accumulator:   rpc.Accumulator,
				SenderAddress: from,
				SenderHash:    addressHash(from),
				TotalLength:   totalLength,
				GrantOffset:   unscheduledBytes,
				WhoFrom:       FromServer,
			}
			t.tryToSchedule(now, rpc.ScheduledMsg)
		} else if added {
			t.tryToSchedule(now, rpc.ScheduledMsg)
		}
	}
	return nil
}

// restartArrive handles a DATA packet flagged RESTART: the peer has no
// record of this RPC (it likely crashed and lost state), so whichever
// OutgoingMessage this side owns for the RpcId must be retransmitted from
// byte zero (spec.md section 4.6).
func (t *Transport) restartArrive(common CommonHeader) error {
	if common.FromClient() {
		if rpc, ok := t.incomingRpcs[common.RpcId]; ok {
			t.resetOutgoingMessage(rpc.Response)
		}
		return nil
	}
	if rpc, ok := t.outgoingRpcs[common.RpcId]; ok {
		t.resetOutgoingMessage(rpc.Request)
	}
	return nil
}

// resetOutgoingMessage rewinds m to its pre-transmission state.
func (t *Transport) resetOutgoingMessage(m *OutgoingMessage) {
	m.TransmitOffset = 0
	m.TransmitLimit = m.UnscheduledBytes
	if m.TotalLength() < m.TransmitLimit {
		m.TransmitLimit = m.TotalLength()
	}
	t.transmitDataSlowPath = true
	t.maintainTopOutgoing(m)
}

// grantArrive raises the transmit window of whichever OutgoingMessage the
// grant targets (spec.md section 4.4): a grant sent by the client governs
// the server's response, and vice versa.
func (t *Transport) grantArrive(hdr GrantHeader) {
	var target *OutgoingMessage
	if hdr.Common.FromClient() {
		if rpc, ok := t.incomingRpcs[hdr.Common.RpcId]; ok {
			target = rpc.Response
		}
	} else {
		if rpc, ok := t.outgoingRpcs[hdr.Common.RpcId]; ok {
			target = rpc.Request
		}
	}
	if target == nil {
		return
	}
	if hdr.Offset > target.TotalLength() {
		target.TransmitLimit = target.TotalLength()
	} else if hdr.Offset > target.TransmitLimit {
		target.TransmitLimit = hdr.Offset
	}
	target.TransmitPriority = int(hdr.Priority)
	t.maintainTopOutgoing(target)
}

// resendArrive retransmits the requested byte range, or, if the RPC is
// unknown, tells the peer to restart the message from scratch (spec.md
// section 4.6).
func (t *Transport) resendArrive(from Address, hdr ResendHeader) {
	var target *OutgoingMessage
	if hdr.Common.FromClient() {
		if rpc, ok := t.incomingRpcs[hdr.Common.RpcId]; ok {
			target = rpc.Response
		}
	} else {
		if rpc, ok := t.outgoingRpcs[hdr.Common.RpcId]; ok {
			target = rpc.Request
		}
	}
	if target == nil {
		t.sendRestart(from, hdr.Common)
		return
	}
	t.retransmitRange(target, hdr.Offset, hdr.Length, hdr.Priority)
}

// retransmitRange resends [offset, offset+length) of m, split across as
// many DATA packets as the driver's MTU requires, each flagged
// RETRANSMISSION.
func (t *Transport) retransmitRange(m *OutgoingMessage, offset, length uint32, priority uint8) {
	mtu := uint32(t.driver.MaxDataPerPacket())
	end := offset + length
	if end > uint32(len(m.Buffer)) {
		end = uint32(len(m.Buffer))
	}
	for offset < end {
		chunk := end - offset
		if chunk > mtu {
			chunk = mtu
		}
		hdr := DataHeader{
			Common: CommonHeader{
				Opcode: OpData,
				RpcId:  m.RpcId,
				Flags:  m.WhoFrom.flag() | FlagRetransmitted,
			},
			TotalLength:      m.TotalLength(),
			Offset:           offset,
			UnscheduledBytes: m.UnscheduledBytes,
		}
		packet := append(hdr.Encode(nil), m.Buffer[offset:offset+chunk]...)
		t.sendControlPacket(m.Recipient, packet, int(priority))
		offset += chunk
	}
}

// sendRestart tells to that this side has no record of the RPC. common is
// the header of the RESEND that surfaced the gap: since a RESEND always
// travels opposite the message it references (spec.md section 4.1's
// FROM_CLIENT convention), the restart we send back must invert it again
// so restartArrive resolves it to the message the recipient can actually
// act on (its own Request if we're telling a client, its own Response if
// we're telling a server).
func (t *Transport) sendRestart(to Address, common CommonHeader) {
	flags := FlagRestart
	if !common.FromClient() {
		flags |= FlagFromClient
	}
	hdr := DataHeader{
		Common: CommonHeader{
			Opcode: OpData,
			RpcId:  common.RpcId,
			Flags:  flags,
		},
	}
	t.sendControlPacket(to, hdr.Encode(nil), 0)
}

// busyArrive resets the client's silence counter for an RPC the server has
// confirmed is still being worked on (spec.md section 4.6).
func (t *Transport) busyArrive(common CommonHeader) {
	if rpc, ok := t.outgoingRpcs[common.RpcId]; ok {
		rpc.SilentIntervals = 0
	}
}

// abortArrive discards server-side state for an RPC the client has
// cancelled.
func (t *Transport) abortArrive(common CommonHeader) {
	t.stats.AbortsRecvd++
	if rpc, ok := t.incomingRpcs[common.RpcId]; ok {
		rpc.Cancelled = true
		t.deleteServerRpcLocked(rpc)
	}
}
