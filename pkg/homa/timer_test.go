package homa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTimerTestTransport() (*Transport, *fakeDriver) {
	driver := newFakeDriver("client", 1400, 7)
	config := DefaultConfig(7)
	config.PingIntervals = 2
	config.TimeoutIntervals = 4
	transport := NewTransport(driver, config, fixedClock(0), 1)
	return transport, driver
}

func TestCheckTimeoutsPingsAfterPingIntervals(t *testing.T) {
	transport, driver := newTimerTestTransport()
	session, err := transport.GetSession("server")
	require.NoError(t, err)

	_, err = session.SendRequest([]byte("hi"), NewFuncNotifier(func([]byte) {}, func(FailureKind, error) {}))
	require.NoError(t, err)

	transport.checkTimeouts(0)
	assert.Empty(t, driver.packetsWithOpcode(OpResend), "first silent interval is below PingIntervals")

	transport.checkTimeouts(0)
	resends := driver.packetsWithOpcode(OpResend)
	assert.Len(t, resends, 1, "second silent interval reaches PingIntervals")
}

func TestCheckTimeoutsFailsRpcAfterTimeoutIntervals(t *testing.T) {
	transport, _ := newTimerTestTransport()
	session, err := transport.GetSession("server")
	require.NoError(t, err)

	var failed bool
	var kind FailureKind
	notifier := NewFuncNotifier(
		func([]byte) {},
		func(k FailureKind, err error) { failed = true; kind = k },
	)
	_, err = session.SendRequest([]byte("hi"), notifier)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		transport.checkTimeouts(0)
	}

	assert.True(t, failed)
	assert.Equal(t, FailureTimeout, kind)
	assert.Empty(t, transport.outgoingRpcs, "timed-out rpc must be removed from outgoingRpcs")
}

func TestCheckTimeoutsAbandonsServerRpcAfterTimeoutIntervals(t *testing.T) {
	transport, _ := newTimerTestTransport()
	rpc := newServerRpc(1, RpcId{ClientID: 9, Sequence: 1}, fakeAddr("client"))
	transport.incomingRpcs[rpc.RpcId] = rpc
	transport.serverTimers.PushBack(rpc)

	for i := 0; i < 4; i++ {
		transport.checkTimeouts(0)
	}

	assert.Empty(t, transport.incomingRpcs)
	assert.Equal(t, 0, transport.serverTimers.Len())
}

func TestResendRangeForUsesGrantOffsetWhenScheduled(t *testing.T) {
	transport, _ := newTimerTestTransport()
	acc := NewMessageAccumulator(100000, transport.config.MessageZeroCopyThreshold)
	acc.AddPacket(0, make([]byte, 20000), nil)
	sched := &ScheduledMessage{GrantOffset: 30000}

	offset, length := transport.resendRangeFor(acc, sched)
	assert.Equal(t, uint32(20000), offset)
	assert.Equal(t, uint32(10000), length)
}

func TestResendRangeForFallsBackToTotalLengthWithoutGrant(t *testing.T) {
	transport, _ := newTimerTestTransport()
	acc := NewMessageAccumulator(5000, transport.config.MessageZeroCopyThreshold)
	acc.AddPacket(0, make([]byte, 1000), nil)

	offset, length := transport.resendRangeFor(acc, nil)
	assert.Equal(t, uint32(1000), offset)
	assert.Equal(t, uint32(4000), length)
}

func TestResendRangeForNilAccumulatorAsksFromZero(t *testing.T) {
	transport, _ := newTimerTestTransport()
	offset, length := transport.resendRangeFor(nil, nil)
	assert.Equal(t, uint32(0), offset)
	assert.Equal(t, transport.config.ResendLimit, length)
}
