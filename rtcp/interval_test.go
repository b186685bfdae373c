package rtcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRtcpIntervalEnforcesMinimum(t *testing.T) {
	// A large bandwidth and a small member count give a computed
	// interval far below the RFC 3550 A.7 5-second floor, which must
	// clamp it.
	ti, td := rtcpInterval(2, 0, 1e6, 128, false, false)
	assert.GreaterOrEqual(t, float64(td)/1e9, rtcpMinimumTime)
	assert.Greater(t, ti, int64(0))
}

func TestRtcpIntervalInitialIsShorter(t *testing.T) {
	tiInitial, tdInitial := rtcpInterval(2, 0, 100, 128, false, true)
	_, tdSteady := rtcpInterval(2, 0, 100, 128, false, false)
	assert.Less(t, tdInitial, tdSteady)
	assert.Greater(t, tiInitial, int64(0))
}

func TestRtcpIntervalShrinksWithMoreBandwidth(t *testing.T) {
	_, tdLow := rtcpInterval(1000, 0, 1000, 128, false, false)
	_, tdHigh := rtcpInterval(1000, 0, 100000, 128, false, false)
	assert.Greater(t, tdLow, tdHigh, "more available bandwidth should shorten the deterministic interval")
}

func TestRtcpIntervalSenderShareWhenWeSent(t *testing.T) {
	// With weSent true and senders under the 25% fraction, the interval
	// computation should use the sender bandwidth share rather than
	// dividing the whole bandwidth among all members.
	_, tdSender := rtcpInterval(1000, 1, 50, 128, true, false)
	_, tdReceiver := rtcpInterval(1000, 1, 50, 128, false, false)
	assert.NotEqual(t, tdSender, tdReceiver)
}
