package homa_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycoin/homatransport/internal/testhelpers"
	"github.com/skycoin/homatransport/pkg/homa"
	"github.com/skycoin/homatransport/pkg/homa/simnet"
)

func newPair(t *testing.T, latency time.Duration, loss float64, mtu int) (*homa.Transport, *homa.Transport, func(now homa.Cycles) error) {
	t.Helper()
	net := simnet.NewNetwork(latency, 0, loss)
	serverDriver := net.NewDriver("server", mtu, 8, 1e9)
	clientDriver := net.NewDriver("client", mtu, 8, 1e9)

	server := homa.NewTransport(serverDriver, homa.DefaultConfig(serverDriver.HighestAvailablePriority()), fakeClock, 0)
	client := homa.NewTransport(clientDriver, homa.DefaultConfig(clientDriver.HighestAvailablePriority()), fakeClock, 1)

	poll := func(now homa.Cycles) error {
		if err := server.Poll(now); err != nil {
			return err
		}
		return client.Poll(now)
	}
	return server, client, poll
}

var clockTick homa.Cycles

func fakeClock() homa.Cycles { return clockTick }

// driveUntil runs poll in a background goroutine, up to maxTicks, pushing
// the first error it hits (or a "never completed" sentinel) onto errCh so
// the caller can block on testhelpers.WithinTimeout without holding up the
// simulated clock loop. simnet delivers packets after real (wall-clock)
// latency, so each 100000-cycle tick also sleeps 100µs: simulated time
// never runs ahead of real time and past the transport's timeouts before
// any packet has arrived.
func driveUntil(poll func(homa.Cycles) error, maxTicks homa.Cycles, errCh chan<- error, timeoutMsg string) {
	go func() {
		for i := homa.Cycles(0); i < maxTicks; i++ {
			clockTick = i * 100000
			if err := poll(clockTick); err != nil {
				errCh <- err
				return
			}
			time.Sleep(100 * time.Microsecond)
		}
		select {
		case errCh <- fmt.Errorf(timeoutMsg):
		default:
		}
	}()
}

func TestEchoSmallMessage(t *testing.T) {
	server, client, poll := newPair(t, time.Millisecond, 0, 1400)

	server.SetHandler(func(request []byte, respond func([]byte)) {
		reply := make([]byte, len(request))
		copy(reply, request)
		respond(reply)
	})

	session, sessErr := client.GetSession("server")

	request := []byte("hello, homa")
	var response []byte
	errCh := make(chan error, 1)
	notifier := homa.NewFuncNotifier(
		func(r []byte) {
			response = r
			errCh <- nil
		},
		func(kind homa.FailureKind, err error) { errCh <- err },
	)
	_, sendErr := session.SendRequest(request, notifier)
	testhelpers.NoErrorN(t, sessErr, sendErr)

	driveUntil(poll, 10000, errCh, "rpc never completed")

	require.NoError(t, testhelpers.WithinTimeout(errCh))
	assert.Equal(t, request, response)
}

func TestEchoLargeMessageRequiresGrants(t *testing.T) {
	server, client, poll := newPair(t, time.Millisecond, 0, 1400)

	server.SetHandler(func(request []byte, respond func([]byte)) {
		reply := make([]byte, len(request))
		copy(reply, request)
		respond(reply)
	})

	session, sessErr := client.GetSession("server")

	request := make([]byte, 50000)
	for i := range request {
		request[i] = byte(i)
	}

	errCh := make(chan error, 1)
	notifier := homa.NewFuncNotifier(
		func(r []byte) {
			if len(r) != len(request) {
				errCh <- assertLenErr(len(r), len(request))
				return
			}
			errCh <- nil
		},
		func(kind homa.FailureKind, err error) { errCh <- err },
	)
	_, sendErr := session.SendRequest(request, notifier)
	testhelpers.NoErrorN(t, sessErr, sendErr)

	driveUntil(poll, 20000, errCh, "large rpc never completed")

	require.NoError(t, testhelpers.WithinTimeout(errCh))
}

func assertLenErr(got, want int) error {
	return fmt.Errorf("response length %d, want %d", got, want)
}
