package rtppkt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	p := &Packet{
		Header: Header{
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: 4242,
			Timestamp:      90000,
			SSRC:           0xdeadbeef,
		},
		Payload: []byte("hello rtp"),
	}

	buf, err := p.Build()
	require.NoError(t, err)

	got, err := Parse(buf)
	require.NoError(t, err)

	assert.Equal(t, p.Marker, got.Marker)
	assert.Equal(t, p.PayloadType, got.PayloadType)
	assert.Equal(t, p.SequenceNumber, got.SequenceNumber)
	assert.Equal(t, p.Timestamp, got.Timestamp)
	assert.Equal(t, p.SSRC, got.SSRC)
	assert.Equal(t, p.Payload, got.Payload)
}

func TestBuildRejectsTooManyCSRC(t *testing.T) {
	p := &Packet{Header: Header{CSRC: make([]uint32, MaxCSRC+1)}}
	_, err := p.Build()
	assert.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte{0x00, 0x01})
	assert.Error(t, err)
}
