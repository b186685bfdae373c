package rtcp

import (
	"testing"
	"time"

	pionrtcp "github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSenderReportCarriesAttachedReports(t *testing.T) {
	rr := []pionrtcp.ReceptionReport{{SSRC: 99}}
	sr := buildSenderReport(42, 1_700_000_000*1_000_000_000, 10, 2000, rr)

	assert.Equal(t, uint32(42), sr.SSRC)
	assert.Equal(t, uint32(10), sr.PacketCount)
	assert.Equal(t, uint32(2000), sr.OctetCount)
	require.Len(t, sr.Reports, 1)
	assert.Equal(t, uint32(99), sr.Reports[0].SSRC)
}

func TestBuildReceiverReportHasNoPacketCounters(t *testing.T) {
	rr := buildReceiverReport(7, nil)
	assert.Equal(t, uint32(7), rr.SSRC)
	assert.Empty(t, rr.Reports)
}

func TestBuildSourceDescriptionCarriesCNAME(t *testing.T) {
	sdes := buildSourceDescription(5, "alice@example.com")
	require.Len(t, sdes.Chunks, 1)
	assert.Equal(t, uint32(5), sdes.Chunks[0].Source)
	require.Len(t, sdes.Chunks[0].Items, 1)
	assert.Equal(t, pionrtcp.SDESCNAME, sdes.Chunks[0].Items[0].Type)
	assert.Equal(t, "alice@example.com", sdes.Chunks[0].Items[0].Text)
}

func TestBuildGoodbyeCarriesReason(t *testing.T) {
	bye := buildGoodbye(3, "session ended")
	assert.Equal(t, []uint32{3}, bye.Sources)
	assert.Equal(t, "session ended", bye.Reason)
}

func TestBuildReceptionReportFromParticipant(t *testing.T) {
	p := newTestParticipant()
	p.recordReceptionData(1, 0, 10, time.Now())
	p.recordReceptionData(2, 10, 10, time.Now())

	block := buildReceptionReport(p)
	assert.Equal(t, p.SSRC, block.SSRC)
}
