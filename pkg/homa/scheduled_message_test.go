package homa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestScheduledMessage(clientID, seq uint64, totalLength, received uint32) *ScheduledMessage {
	acc := NewMessageAccumulator(totalLength, 1<<20)
	if received > 0 {
		acc.AddPacket(0, make([]byte, received), nil)
	}
	return &ScheduledMessage{
		RpcId:       RpcId{ClientID: clientID, Sequence: seq},
		Accumulator: acc,
		TotalLength: totalLength,
	}
}

func TestSchedListInsertSortedOrder(t *testing.T) {
	var l schedList
	small := newTestScheduledMessage(1, 1, 100, 90) // 10 remaining
	medium := newTestScheduledMessage(1, 2, 100, 50) // 50 remaining
	large := newTestScheduledMessage(1, 3, 100, 0)   // 100 remaining

	l.InsertSorted(medium)
	l.InsertSorted(large)
	l.InsertSorted(small)

	assert.Same(t, small, l.Front())
	assert.Same(t, large, l.Back())
	assert.Equal(t, 3, l.Len())
}

func TestSchedListMoveForward(t *testing.T) {
	var l schedList
	a := newTestScheduledMessage(1, 1, 100, 0)  // 100 remaining
	b := newTestScheduledMessage(1, 2, 100, 0)  // 100 remaining
	l.InsertSorted(a)
	l.InsertSorted(b)
	assert.Same(t, a, l.Front(), "ties break on RpcId, lower client sequence first")

	// b receives more data, now has fewer bytes remaining than a.
	b.Accumulator.AddPacket(0, make([]byte, 80), nil)
	l.MoveForward(b)

	assert.Same(t, b, l.Front())
	assert.Same(t, a, l.Back())
}

func TestSchedListRemove(t *testing.T) {
	var l schedList
	a := newTestScheduledMessage(1, 1, 100, 0)
	b := newTestScheduledMessage(1, 2, 100, 0)
	l.InsertSorted(a)
	l.InsertSorted(b)

	l.Remove(a)
	assert.Equal(t, 1, l.Len())
	assert.Same(t, b, l.Front())
	assert.Same(t, b, l.Back())
}

func TestTopOutgoingListEviction(t *testing.T) {
	l := newTopOutgoingList(2)
	msgs := make([]*OutgoingMessage, 3)
	for i := range msgs {
		buf := make([]byte, 100-i*10)
		msgs[i] = NewOutgoingMessage(buf, nil, RpcId{ClientID: 1, Sequence: uint64(i)}, FromClient, uint32(len(buf)))
	}

	evicted := l.Maintain(msgs[0])
	assert.False(t, evicted)
	evicted = l.Maintain(msgs[1])
	assert.False(t, evicted)
	evicted = l.Maintain(msgs[2])
	assert.True(t, evicted, "third, smallest-remaining message should evict the worst entry")
	assert.Equal(t, 2, l.Len())
}
