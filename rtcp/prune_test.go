package rtcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneDemotesStaleSender(t *testing.T) {
	r := New("test@example.com")
	now := time.Now().UnixNano()

	r.remote[1] = &Participant{SSRC: 1, isSender: true, stats: statistics{
		lastPacketTime:     now - int64(3*time.Second),
		lastRtcpPacketTime: now,
	}}
	r.senders = 1
	r.members = 1

	r.prune(now, int64(time.Second)) // 2*td == 2s, staleness is 3s

	p, ok := r.remote[1]
	require.True(t, ok, "member is still present, only demoted")
	assert.False(t, p.isSender)
	assert.Equal(t, float64(0), r.senders)
}

func TestPruneKeepsRecentSender(t *testing.T) {
	r := New("test@example.com")
	now := time.Now().UnixNano()

	r.remote[1] = &Participant{SSRC: 1, isSender: true, stats: statistics{
		lastPacketTime:     now - int64(500*time.Millisecond),
		lastRtcpPacketTime: now,
	}}
	r.senders = 1
	r.members = 1

	r.prune(now, int64(time.Second)) // 2*td == 2s, staleness is only 0.5s

	p, ok := r.remote[1]
	require.True(t, ok)
	assert.True(t, p.isSender)
	assert.Equal(t, float64(1), r.senders)
}

func TestPruneRemovesStaleMember(t *testing.T) {
	r := New("test@example.com")
	now := time.Now().UnixNano()

	r.remote[1] = &Participant{SSRC: 1, stats: statistics{
		lastRtcpPacketTime: now - int64(30*time.Second),
	}}
	r.members = 2

	r.prune(now, int64(time.Second)) // 5*T_min == 25s, staleness is 30s

	_, ok := r.remote[1]
	assert.False(t, ok)
	assert.Equal(t, float64(1), r.members)
}

func TestPruneKeepsActiveMember(t *testing.T) {
	r := New("test@example.com")
	now := time.Now().UnixNano()

	r.remote[1] = &Participant{SSRC: 1, stats: statistics{
		lastRtcpPacketTime: now - int64(time.Second),
	}}
	r.members = 2

	r.prune(now, int64(time.Second))

	_, ok := r.remote[1]
	assert.True(t, ok)
	assert.Equal(t, float64(2), r.members)
}

func TestPruneFloorsMemberCountAtOne(t *testing.T) {
	r := New("test@example.com")
	now := time.Now().UnixNano()

	r.remote[1] = &Participant{SSRC: 1, stats: statistics{
		lastRtcpPacketTime: now - int64(time.Hour),
	}}
	r.members = 1

	r.prune(now, int64(time.Second))

	_, ok := r.remote[1]
	assert.False(t, ok, "the participant itself is still removed")
	assert.Equal(t, float64(1), r.members, "the floor guard only protects the counter, not table entries")
}
