package zrtp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback wires two Sessions' send/recv so that messages sent by one
// arrive on the other's recv channel, modeling the socket pair
// NegotiateZRTP sets up over a real transport.Socket.
func loopback() (sendA func([]byte) error, recvA chan []byte, sendB func([]byte) error, recvB chan []byte) {
	recvA = make(chan []byte, 32)
	recvB = make(chan []byte, 32)
	sendA = func(buf []byte) error {
		cp := append([]byte(nil), buf...)
		recvB <- cp
		return nil
	}
	sendB = func(buf []byte) error {
		cp := append([]byte(nil), buf...)
		recvA <- cp
		return nil
	}
	return
}

func TestNegotiateCompletesBothSides(t *testing.T) {
	sendA, recvA, sendB, recvB := loopback()

	a, err := NewSession(sendA, recvA)
	require.NoError(t, err)
	b, err := NewSession(sendB, recvB)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); errA = a.Negotiate(true) }()
	go func() { defer wg.Done(); errB = b.Negotiate(false) }()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("negotiation did not complete in time")
	}

	require.NoError(t, errA)
	require.NoError(t, errB)

	assert.NotEmpty(t, a.SAS)
	assert.Equal(t, a.SAS, b.SAS)
	assert.Equal(t, a.Keys.SRTPKeyInitiator, b.Keys.SRTPKeyInitiator)
}

func TestNegotiateTimesOutWithNoPeer(t *testing.T) {
	recv := make(chan []byte)
	s, err := NewSession(func([]byte) error { return nil }, recv)
	require.NoError(t, err)

	// Exercise only the Hello phase's timeout path directly; with no
	// peer, Negotiate would fail in this same phase and return its
	// error.
	err = s.runHello()
	require.ErrorIs(t, err, ErrTimeout)
}
