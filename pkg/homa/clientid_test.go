package homa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClientIDIsNonZeroAndVaries(t *testing.T) {
	a := NewClientID()
	b := NewClientID()
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)
}
