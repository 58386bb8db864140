package homa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchedulerTestTransport(highest int) (*Transport, *fakeDriver) {
	driver := newFakeDriver("server", 1400, highest)
	config := DefaultConfig(highest)
	transport := NewTransport(driver, config, fixedClock(0), 1)
	return transport, driver
}

func newIncomingScheduled(transport *Transport, seq uint64, totalLength uint32) *ScheduledMessage {
	m := &ScheduledMessage{
		RpcId:         RpcId{ClientID: 99, Sequence: seq},
		Accumulator:   NewMessageAccumulator(totalLength, transport.config.MessageZeroCopyThreshold),
		SenderAddress: fakeAddr("client"),
		SenderHash:    99,
		TotalLength:   totalLength,
		WhoFrom:       FromClient,
	}
	return m
}

func TestTryToScheduleActivatesUnderOvercommitmentLimit(t *testing.T) {
	transport, driver := newSchedulerTestTransport(7)
	m := newIncomingScheduled(transport, 1, 100000)

	transport.tryToSchedule(0, m)

	assert.Equal(t, SchedActive, m.State)
	assert.Equal(t, 1, transport.activeMessages.Len())
	grants := driver.packetsWithOpcode(OpGrant)
	require.Len(t, grants, 1)
}

func TestTryToScheduleReplacesWorstActiveWhenBetter(t *testing.T) {
	transport, _ := newSchedulerTestTransport(7)
	transport.config.MaxGrantedMessages = 1

	worse := newIncomingScheduled(transport, 1, 200000)
	transport.tryToSchedule(0, worse)
	require.Equal(t, SchedActive, worse.State)

	better := newIncomingScheduled(transport, 2, 20000)
	transport.tryToSchedule(0, better)

	assert.Equal(t, SchedActive, better.State)
	assert.Equal(t, SchedInactive, worse.State)
	assert.Equal(t, 1, transport.activeMessages.Len())
	assert.Same(t, better, transport.activeMessages.Front())
}

func TestTryToScheduleParksWorseMessageInactive(t *testing.T) {
	transport, _ := newSchedulerTestTransport(7)
	transport.config.MaxGrantedMessages = 1

	better := newIncomingScheduled(transport, 1, 20000)
	transport.tryToSchedule(0, better)

	worse := newIncomingScheduled(transport, 2, 200000)
	transport.tryToSchedule(0, worse)

	assert.Equal(t, SchedInactive, worse.State)
	assert.Equal(t, 1, transport.activeMessages.Len())
	assert.Equal(t, 1, transport.inactiveMessages.Len())
}

func TestSendGrantAdvancesOffsetAndStopsAtTotalLength(t *testing.T) {
	transport, driver := newSchedulerTestTransport(7)
	transport.config.GrantIncrement = 5000
	m := newIncomingScheduled(transport, 1, 6000)
	m.State = SchedActive
	transport.activeMessages.InsertSorted(m)

	transport.sendGrant(m)
	assert.Equal(t, uint32(5000), m.GrantOffset)
	assert.Equal(t, SchedActive, m.State)

	transport.sendGrant(m)
	assert.Equal(t, uint32(6000), m.GrantOffset, "grant offset clamps to TotalLength")
	assert.Equal(t, SchedFullyGranted, m.State)
	assert.Equal(t, 0, transport.activeMessages.Len())

	grants := driver.packetsWithOpcode(OpGrant)
	assert.Len(t, grants, 2)
}

func TestSendGrantNoOpWhenNoProgress(t *testing.T) {
	transport, driver := newSchedulerTestTransport(7)
	m := newIncomingScheduled(transport, 1, 1000)
	m.GrantOffset = 1000
	m.State = SchedActive
	transport.activeMessages.InsertSorted(m)

	transport.sendGrant(m)
	assert.Empty(t, driver.packetsWithOpcode(OpGrant))
}

func TestPromoteBestInactivePrefersDistinctSender(t *testing.T) {
	transport, _ := newSchedulerTestTransport(7)
	transport.config.MaxGrantedMessages = 1

	active := newIncomingScheduled(transport, 1, 50000)
	active.SenderHash = 1
	transport.tryToSchedule(0, active)

	sameSender := newIncomingScheduled(transport, 2, 20000)
	sameSender.SenderHash = 1
	sameSender.State = SchedInactive
	transport.inactiveMessages.PushBackUnsorted(sameSender)

	otherSender := newIncomingScheduled(transport, 3, 20000)
	otherSender.SenderHash = 2
	otherSender.State = SchedInactive
	transport.inactiveMessages.PushBackUnsorted(otherSender)

	// Open a second slot while sender 1 keeps the first, and let promotion
	// pick.
	transport.config.MaxGrantedMessages = 2
	transport.promoteBestInactive()

	assert.Same(t, otherSender, transport.activeMessages.Front())
}

func TestTryToScheduleDedupsSameSenderUnderCapacity(t *testing.T) {
	transport, _ := newSchedulerTestTransport(7)
	transport.config.MaxGrantedMessages = 4

	first := newIncomingScheduled(transport, 1, 20000)
	first.SenderHash = 42
	transport.tryToSchedule(0, first)
	require.Equal(t, SchedActive, first.State)

	worseSibling := newIncomingScheduled(transport, 2, 50000)
	worseSibling.SenderHash = 42
	transport.tryToSchedule(0, worseSibling)

	assert.Equal(t, SchedInactive, worseSibling.State, "a worse message from an already-active sender is parked, not activated")
	assert.Equal(t, 1, transport.activeMessages.Len(), "capacity allows a second active message, but same-sender dedup forbids it")
	assert.Same(t, first, transport.activeMessages.Front())
}

func TestTryToScheduleReplacesSameSenderSiblingWhenBetter(t *testing.T) {
	transport, _ := newSchedulerTestTransport(7)
	transport.config.MaxGrantedMessages = 4

	worseFirst := newIncomingScheduled(transport, 1, 50000)
	worseFirst.SenderHash = 42
	transport.tryToSchedule(0, worseFirst)
	require.Equal(t, SchedActive, worseFirst.State)

	betterSibling := newIncomingScheduled(transport, 2, 20000)
	betterSibling.SenderHash = 42
	transport.tryToSchedule(0, betterSibling)

	assert.Equal(t, SchedActive, betterSibling.State)
	assert.Equal(t, SchedInactive, worseFirst.State)
	assert.Equal(t, 1, transport.activeMessages.Len(), "same-sender replacement must not grow activeMessages beyond one entry per sender")
	assert.Same(t, betterSibling, transport.activeMessages.Front())
}

func TestReassignActivePrioritiesRanksBySRPT(t *testing.T) {
	transport, _ := newSchedulerTestTransport(7)
	transport.config.MaxGrantedMessages = 3

	small := newIncomingScheduled(transport, 1, 100)
	medium := newIncomingScheduled(transport, 2, 5000)
	large := newIncomingScheduled(transport, 3, 50000)

	transport.activateMessage(large)
	transport.activateMessage(medium)
	transport.activateMessage(small)

	assert.Greater(t, small.GrantPriority, medium.GrantPriority)
	assert.Greater(t, medium.GrantPriority, large.GrantPriority)
}
