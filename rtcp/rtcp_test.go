package rtcp

import (
	"net"
	"sync"
	"testing"
	"time"

	pionrtcp "github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stm-space/uvgRTP/transport"
)

// fakeSocket is an in-memory transport.Socket standing in for a real UDP
// pair so RTCP's scheduler and readLoop can be exercised deterministically.
type fakeSocket struct {
	mu       sync.Mutex
	ctrlSent [][]byte

	dataCh chan transport.Packet
	ctrlCh chan transport.Packet
	zrtpCh chan transport.Packet
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		dataCh: make(chan transport.Packet, 8),
		ctrlCh: make(chan transport.Packet, 8),
		zrtpCh: make(chan transport.Packet, 8),
	}
}

func (f *fakeSocket) SendData(buf []byte, _ *net.UDPAddr) error { return nil }

func (f *fakeSocket) SendCtrl(buf []byte, _ *net.UDPAddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctrlSent = append(f.ctrlSent, append([]byte(nil), buf...))
	return nil
}

func (f *fakeSocket) sentCtrl() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.ctrlSent...)
}

func (f *fakeSocket) DataChan() <-chan transport.Packet { return f.dataCh }
func (f *fakeSocket) CtrlChan() <-chan transport.Packet { return f.ctrlCh }
func (f *fakeSocket) ZRTPChan() <-chan transport.Packet { return f.zrtpCh }
func (f *fakeSocket) LocalDataAddr() *net.UDPAddr        { return &net.UDPAddr{} }
func (f *fakeSocket) LocalCtrlAddr() *net.UDPAddr        { return &net.UDPAddr{} }
func (f *fakeSocket) Close() error                       { return nil }

func TestAddAndRemoveLocalSource(t *testing.T) {
	r := New("test@example.com")
	r.AddLocalSource(LocalSource{SSRC: 1})
	r.mu.RLock()
	_, ok := r.local[1]
	r.mu.RUnlock()
	require.True(t, ok)

	r.RemoveLocalSource(1)
	r.mu.RLock()
	_, ok = r.local[1]
	r.mu.RUnlock()
	assert.False(t, ok)
}

func TestRecordDataPacketCreatesParticipant(t *testing.T) {
	r := New("test@example.com")
	r.RecordDataPacket(55, 0, 1, 1000, 160, nil)
	r.mu.RLock()
	_, ok := r.remote[55]
	r.mu.RUnlock()
	assert.True(t, ok)
}

func TestStopSendsGoodbyeForEveryLocalSource(t *testing.T) {
	r := New("test@example.com")
	sock := newFakeSocket()
	remote := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 6000}

	r.AddLocalSource(LocalSource{
		SSRC:         1,
		Stats:        func() (uint32, uint32) { return 0, 0 },
		RTPTimestamp: func() uint32 { return 0 },
	})
	r.Start(sock, remote, 0, 64000)
	r.Stop("done")

	sent := sock.sentCtrl()
	require.NotEmpty(t, sent)

	packets, err := pionrtcp.Unmarshal(sent[len(sent)-1])
	require.NoError(t, err)
	require.Len(t, packets, 1)
	bye, ok := packets[0].(*pionrtcp.Goodbye)
	require.True(t, ok)
	assert.Equal(t, []uint32{1}, bye.Sources)
	assert.Equal(t, "done", bye.Reason)
}

func TestHandleGoodbyeRemovesParticipantAndShrinksMembership(t *testing.T) {
	r := New("test@example.com")
	r.members = 3
	r.pmembers = 3
	r.tn = time.Now().Add(10 * time.Second).UnixNano()
	r.remote[9] = &Participant{SSRC: 9, stats: newStatistics()}

	r.handleGoodbye(&pionrtcp.Goodbye{Sources: []uint32{9}})

	r.mu.RLock()
	_, stillPresent := r.remote[9]
	members := r.members
	pmembers := r.pmembers
	r.mu.RUnlock()

	assert.False(t, stillPresent)
	assert.Equal(t, float64(2), members)
	assert.Equal(t, float64(2), pmembers)
}

func TestHandleGoodbyeRescalesTn(t *testing.T) {
	r := New("test@example.com")
	r.members = 4
	r.pmembers = 4
	now := time.Now().UnixNano()
	// tn is 8 seconds out; after one of four members leaves, reverse
	// reconsideration should scale that remaining wait down.
	r.tn = now + int64(8*time.Second)
	r.remote[1] = &Participant{SSRC: 1, stats: newStatistics()}

	r.handleGoodbye(&pionrtcp.Goodbye{Sources: []uint32{1}})

	assert.Less(t, r.tn, now+int64(8*time.Second))
}

func TestHandleSenderReportCreatesParticipantAndIncrementsMembers(t *testing.T) {
	r := New("test@example.com")
	initialMembers := r.members

	r.handleSenderReport(&pionrtcp.SenderReport{SSRC: 77, PacketCount: 5, OctetCount: 500}, nil)

	r.mu.RLock()
	p, ok := r.remote[77]
	members := r.members
	r.mu.RUnlock()

	require.True(t, ok)
	assert.Equal(t, uint32(5), p.stats.senderPktCnt)
	assert.Equal(t, initialMembers+1, members)
}

func TestHandleSourceDescriptionUpdatesCNAME(t *testing.T) {
	r := New("test@example.com")
	r.remote[3] = &Participant{SSRC: 3, stats: newStatistics()}

	r.handleSourceDescription(&pionrtcp.SourceDescription{
		Chunks: []pionrtcp.SourceDescriptionChunk{
			{
				Source: 3,
				Items: []pionrtcp.SourceDescriptionItem{
					{Type: pionrtcp.SDESCNAME, Text: "bob@example.com"},
				},
			},
		},
	})

	assert.Equal(t, "bob@example.com", r.remote[3].stats.senderCNAME)
}

func TestSendReportIncludesSenderReportWhenPacketsSent(t *testing.T) {
	r := New("room@example.com")
	sock := newFakeSocket()
	r.socket = sock
	r.remoteAddr = &net.UDPAddr{}
	r.avgRtcpSize = 128
	r.local[10] = &LocalSource{
		SSRC:         10,
		Stats:        func() (uint32, uint32) { return 42, 4096 },
		RTPTimestamp: func() uint32 { return 90000 },
	}

	r.sendReport(time.Now().UnixNano())

	sent := sock.sentCtrl()
	require.Len(t, sent, 1)
	packets, err := pionrtcp.Unmarshal(sent[0])
	require.NoError(t, err)

	var sawSR bool
	for _, pkt := range packets {
		if sr, ok := pkt.(*pionrtcp.SenderReport); ok {
			sawSR = true
			assert.Equal(t, uint32(42), sr.PacketCount)
			assert.Equal(t, uint32(90000), sr.RTPTime)
		}
	}
	assert.True(t, sawSR, "expected a SenderReport in the compound")
}
