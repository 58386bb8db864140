package homa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPriorityBandsDisjoint(t *testing.T) {
	c := DefaultConfig(7)
	assert.LessOrEqual(t, c.highestSchedPriority(), c.lowestUnschedPrio()-1)
	assert.Equal(t, 7, c.HighestAvailablePriority)
}

func TestUnschedPriorityForSmallMessage(t *testing.T) {
	c := DefaultConfig(7)
	prio := c.unschedPriorityFor(1)
	assert.Equal(t, c.HighestAvailablePriority, prio, "smallest bracket gets the top priority")
}

func TestUnschedPriorityForLargeMessage(t *testing.T) {
	c := DefaultConfig(7)
	prio := c.unschedPriorityFor(1 << 20)
	assert.GreaterOrEqual(t, prio, c.lowestUnschedPrio())
	assert.LessOrEqual(t, prio, c.HighestAvailablePriority)
}

func TestRpcIdOrdering(t *testing.T) {
	a := RpcId{ClientID: 1, Sequence: 5}
	b := RpcId{ClientID: 1, Sequence: 6}
	c := RpcId{ClientID: 2, Sequence: 0}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
	assert.Equal(t, "1.5", a.String())
}
