package homa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAccumulatorInOrder(t *testing.T) {
	acc := NewMessageAccumulator(10, 1000)
	assert.False(t, acc.Complete())

	added := acc.AddPacket(0, []byte("hello"), nil)
	assert.True(t, added)
	assert.Equal(t, uint32(5), acc.Size())

	added = acc.AddPacket(5, []byte("world"), nil)
	assert.True(t, added)
	require.True(t, acc.Complete())
	assert.Equal(t, "helloworld", string(acc.Buffer()))
}

func TestMessageAccumulatorOutOfOrder(t *testing.T) {
	acc := NewMessageAccumulator(10, 1000)

	added := acc.AddPacket(5, []byte("world"), nil)
	assert.False(t, added)
	assert.Equal(t, uint32(0), acc.Size())

	added = acc.AddPacket(0, []byte("hello"), nil)
	assert.True(t, added)
	require.True(t, acc.Complete())
	assert.Equal(t, "helloworld", string(acc.Buffer()))
}

func TestMessageAccumulatorDuplicate(t *testing.T) {
	acc := NewMessageAccumulator(10, 1000)
	require.True(t, acc.AddPacket(0, []byte("hello"), nil))
	assert.False(t, acc.AddPacket(0, []byte("hello"), nil))
	assert.Equal(t, uint32(5), acc.Size())
}

func TestMessageAccumulatorZeroCopySteal(t *testing.T) {
	acc := NewMessageAccumulator(5, 5)
	stolen := []byte("hello")
	called := false
	acc.AddPacket(0, stolen, func() []byte {
		called = true
		return stolen
	})
	assert.True(t, called)
	assert.Equal(t, "hello", string(acc.Buffer()))
}

func TestMessageAccumulatorZeroCopyThresholdExceeded(t *testing.T) {
	acc := NewMessageAccumulator(5, 2)
	called := false
	acc.AddPacket(0, []byte("hello"), func() []byte {
		called = true
		return []byte("hello")
	})
	assert.False(t, called, "payload above zeroCopyThreshold should be copied, not stolen")
}

func TestRetransmitRange(t *testing.T) {
	acc := NewMessageAccumulator(100, 1000)
	acc.AddPacket(0, make([]byte, 20), nil)

	offset, length := acc.RetransmitRange(50, 10)
	assert.Equal(t, uint32(20), offset)
	assert.Equal(t, uint32(10), length)

	offset, length = acc.RetransmitRange(25, 10)
	assert.Equal(t, uint32(20), offset)
	assert.Equal(t, uint32(5), length)

	offset, length = acc.RetransmitRange(20, 10)
	assert.Equal(t, uint32(0), length)
}
