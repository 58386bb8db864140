package homa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommonHeaderRoundTrip(t *testing.T) {
	h := CommonHeader{Opcode: OpData, RpcId: RpcId{ClientID: 42, Sequence: 7}, Flags: FlagFromClient}
	buf := h.Encode(nil)
	assert.Len(t, buf, CommonHeaderSize)

	got, rest, err := DecodeCommonHeader(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, h, got)
	assert.True(t, got.FromClient())
}

func TestDataHeaderRoundTrip(t *testing.T) {
	h := DataHeader{
		Common:           CommonHeader{Opcode: OpData, RpcId: RpcId{ClientID: 1, Sequence: 2}},
		TotalLength:      5000,
		Offset:           1400,
		UnscheduledBytes: 10000,
	}
	buf := h.Encode(nil)
	got, rest, err := DecodeDataHeader(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, h, got)
}

func TestGrantHeaderRoundTrip(t *testing.T) {
	h := GrantHeader{Common: CommonHeader{Opcode: OpGrant, RpcId: RpcId{ClientID: 3, Sequence: 4}}, Offset: 20000, Priority: 5}
	buf := h.Encode(nil)
	got, rest, err := DecodeGrantHeader(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, h, got)
}

func TestResendHeaderRoundTrip(t *testing.T) {
	h := ResendHeader{
		Common:   CommonHeader{Opcode: OpResend, RpcId: RpcId{ClientID: 9, Sequence: 1}},
		Offset:   100,
		Length:   200,
		Priority: 2,
	}
	buf := h.Encode(nil)
	got, rest, err := DecodeResendHeader(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, h, got)
}

func TestDecodeCommonHeaderTruncated(t *testing.T) {
	_, _, err := DecodeCommonHeader([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestAllDataHeaderRoundTrip(t *testing.T) {
	h := AllDataHeader{Common: CommonHeader{Opcode: OpAllData, RpcId: RpcId{ClientID: 1, Sequence: 1}}, MessageLength: 42}
	buf := h.Encode(nil)
	payload := append(buf, []byte("hi")...)

	got, rest, err := DecodeAllDataHeader(payload)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(rest))
	assert.Equal(t, h, got)
}
