package payload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragmentingRoundTrip(t *testing.T) {
	frame := make([]byte, 10)
	frame[0] = 0x65 // arbitrary F|NRI|Type header octet
	for i := 1; i < len(frame); i++ {
		frame[i] = byte(i)
	}

	f := NewFragmenting(time.Second, 4)
	frags, err := f.Fragment(frame, 5)
	require.NoError(t, err)
	require.Greater(t, len(frags), 1)

	var result []byte
	var done bool
	for seq, frag := range frags {
		result, done, err = f.Reassemble(uint16(seq), 1000, frag.Payload, frag.Final)
		require.NoError(t, err)
	}
	assert.True(t, done)
	assert.Equal(t, frame, result)
}

func TestReassembleReordersFragmentsBySequenceNumber(t *testing.T) {
	frame := make([]byte, 21)
	frame[0] = 0x65
	for i := 1; i < len(frame); i++ {
		frame[i] = byte(i)
	}

	f := NewFragmenting(time.Second, 4)
	frags, err := f.Fragment(frame, 4)
	require.NoError(t, err)
	require.Len(t, frags, 10)

	seqs := make([]uint16, len(frags))
	for i := range frags {
		seqs[i] = uint16(i)
	}
	// Swap the 3rd and 5th fragments' delivery order. Their sequence
	// numbers travel with them, so reassembly must still land them in
	// the positions their sequence numbers dictate, not call order.
	frags[2], frags[4] = frags[4], frags[2]
	seqs[2], seqs[4] = seqs[4], seqs[2]

	var result []byte
	var done bool
	for i, frag := range frags {
		result, done, err = f.Reassemble(seqs[i], 1000, frag.Payload, frag.Final)
		require.NoError(t, err)
	}
	assert.True(t, done)
	assert.Equal(t, frame, result)
}

func TestFragmentingPassesThroughSmallFrames(t *testing.T) {
	f := NewFragmenting(time.Second, 4)
	frags, err := f.Fragment([]byte("small"), 64)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.True(t, frags[0].Final)

	got, done, err := f.Reassemble(0, 1, frags[0].Payload, true)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, []byte("small"), got)
}

func TestReassembleEvictsStaleEntries(t *testing.T) {
	f := NewFragmenting(time.Millisecond, 4)
	frame := make([]byte, 10)
	frame[0] = 0x65
	frags, err := f.Fragment(frame, 5)
	require.NoError(t, err)

	// Only feed the start fragment, then let it go stale.
	_, done, err := f.Reassemble(0, 2000, frags[0].Payload, false)
	require.NoError(t, err)
	assert.False(t, done)

	time.Sleep(5 * time.Millisecond)

	// A fresh frame at a different timestamp should trigger eviction of
	// the stale entry without error.
	_, _, err = f.Reassemble(0, 2001, frags[0].Payload, false)
	require.NoError(t, err)

	f.mu.Lock()
	_, stillPending := f.pending[2000]
	f.mu.Unlock()
	assert.False(t, stillPending)
}
