package uvgrtp

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/stm-space/uvgRTP/payload"
	"github.com/stm-space/uvgRTP/receiver"
	"github.com/stm-space/uvgRTP/rtcp"
	"github.com/stm-space/uvgRTP/rtppkt"
	"github.com/stm-space/uvgRTP/sender"
	"github.com/stm-space/uvgRTP/transport"
	"github.com/stm-space/uvgRTP/zrtp"
)

// MediaStream is one RTP/RTCP flow to a single remote peer, binding a
// local SSRC to a transport.Socket, a sender.Sender, a receiver.Receiver
// and an rtcp.RTCP component. It plays the role
// original_source/src/media_stream.cc plays in the original: the object
// an application creates, pushes frames into and pulls frames out of.
type MediaStream struct {
	mu      sync.RWMutex
	session *Session
	cfg     Config

	ssrc        uint32
	payloadType uint8
	clockRate   uint32
	startTime   time.Time

	socket   transport.Socket
	sender   *sender.Sender
	receiver *receiver.Receiver
	rtcp     *rtcp.RTCP

	remoteAddr *net.UDPAddr

	zrtp *zrtp.Session

	stopped bool
}

// NewStream opens a MediaStream bound to localPort (RTP; localPort+1 is
// RTCP), sending to remoteAddr, carrying payloadType at clockRateHz.
// NewStream runs cfg.Validate() itself and returns its error, the same
// range check the original's configure_ctx performs before accepting a
// flag.
func (s *Session) NewStream(localIP net.IP, localPort int, remoteAddr *net.UDPAddr, payloadType uint8, clockRateHz uint32, cfg Config) (*MediaStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	socket, err := transport.ListenUDP(localIP, localPort, cfg.ReuseAddr)
	if err != nil {
		return nil, fmt.Errorf("uvgrtp: %w", err)
	}

	ssrc := s.reserveSsrc()

	var formatter payload.Formatter
	if cfg.UseFragmenting {
		formatter = payload.NewFragmenting(cfg.ReassemblyTimeout, cfg.MaxQueuedFrames)
	} else {
		formatter = payload.Opaque{}
	}

	ms := &MediaStream{
		session:     s,
		cfg:         cfg,
		ssrc:        ssrc,
		payloadType: payloadType,
		clockRate:   clockRateHz,
		startTime:   time.Now(),
		socket:      socket,
		remoteAddr:  remoteAddr,
	}

	ms.sender = sender.New(ssrc, payloadType, cfg.MTU, cfg.MaxQueuedFrames, socket, formatter, remoteAddr, randomUint16())

	newFormatter := func() payload.Formatter {
		if cfg.UseFragmenting {
			return payload.NewFragmenting(cfg.ReassemblyTimeout, cfg.MaxQueuedFrames)
		}
		return payload.Opaque{}
	}
	ms.receiver = receiver.New(socket, newFormatter, cfg.ReorderWindow, cfg.MaxQueuedFrames, cfg.StrictSequenceCheck)

	if cfg.EnableRTCP {
		ms.rtcp = rtcp.New(s.CNAME())
		ms.rtcp.AddLocalSource(rtcp.LocalSource{
			SSRC:         ssrc,
			PayloadType:  payloadType,
			Stats:        ms.senderStats,
			RTPTimestamp: ms.currentRTPTimestamp,
		})
		ms.sender.OnPacketSent = func(uint32) { ms.rtcp.NotePacketSent(ssrc) }
		ms.receiver.OnPacket = ms.handleInboundPacket
		ms.rtcp.Start(socket, remoteAddr, cfg.RTCPBandwidthFraction, estimatePayloadBitrate(clockRateHz))
	}

	s.registerStream(ssrc, ms)
	return ms, nil
}

// SSRC returns this stream's local synchronization source identifier.
func (ms *MediaStream) SSRC() uint32 { return ms.ssrc }

// NegotiateZRTP runs the RFC 6189 key-agreement handshake over this
// stream's RTP port, multiplexed from ordinary RTP traffic by
// transport.Socket's magic-cookie demux. It returns ErrNotReady unless
// Config.EnableSRTP is set. It blocks until the exchange completes,
// fails, or times out. Unlike the original's unimplemented
// media_stream::init(zrtp&), the handshake runs to completion here, but
// the derived keys stay on the zrtp.Session: no SRTP cipher context is
// built from them and media is sent unencrypted.
func (ms *MediaStream) NegotiateZRTP(preferInitiator bool) error {
	if !ms.cfg.EnableSRTP {
		return ErrNotReady
	}

	// Each message travels behind a 12-octet RFC 6189 §5.1.2 header
	// (0x10 preamble, "ZRTP" cookie at bytes 4-7) so that the peer's
	// socket routes it to ZRTPChan rather than to the RTP path.
	send := func(buf []byte) error {
		pkt := make([]byte, 12, 12+len(buf))
		pkt[0] = 0x10
		copy(pkt[4:8], "ZRTP")
		return ms.socket.SendData(append(pkt, buf...), ms.remoteAddr)
	}
	recv := make(chan []byte, 16)
	go func() {
		defer close(recv)
		for pkt := range ms.socket.ZRTPChan() {
			if len(pkt.Data) > 12 {
				recv <- pkt.Data[12:]
			}
		}
	}()

	session, err := zrtp.NewSession(send, recv)
	if err != nil {
		return fmt.Errorf("uvgrtp: %w", err)
	}
	if err := session.Negotiate(preferInitiator); err != nil {
		return fmt.Errorf("uvgrtp: %w: %w", ErrAuthFailure, err)
	}

	ms.mu.Lock()
	ms.zrtp = session
	ms.mu.Unlock()
	return nil
}

// ZRTPShortAuthString returns the rendered Short Authentication String
// from a completed ZRTP negotiation, or "" if none has run yet.
func (ms *MediaStream) ZRTPShortAuthString() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.zrtp == nil {
		return ""
	}
	return ms.zrtp.SAS
}

// PushFrame enqueues frame for transmission at the current RTP
// timestamp, fragmenting it if needed, matching
// media_stream.cc's push_frame.
func (ms *MediaStream) PushFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrInvalidValue
	}
	if !ms.cfg.UseFragmenting && len(frame) > ms.cfg.MTU {
		return ErrPayloadTooBig
	}
	return ms.sender.Push(frame, ms.currentRTPTimestamp())
}

// PullFrame blocks until a reassembled frame arrives or the stream is
// stopped, matching media_stream.cc's pull_frame. It is mutually
// exclusive with InstallReceiveHook: once a hook is installed, PullFrame
// never returns a frame.
func (ms *MediaStream) PullFrame() ([]byte, bool) {
	f, ok := ms.receiver.PullFrame()
	if !ok {
		return nil, false
	}
	return f.Payload, true
}

// InstallReceiveHook registers hook to be called for every reassembled
// frame instead of queuing it for PullFrame.
func (ms *MediaStream) InstallReceiveHook(hook func(payload []byte)) error {
	if hook == nil {
		return ErrInvalidValue
	}
	ms.receiver.InstallReceiveHook(func(f receiver.Frame) { hook(f.Payload) })
	return nil
}

// InstallDeallocationHook registers fn to be called once per pushed
// frame, after its last fragment has left the socket, matching
// install_dealloc_hook's contract for a push_frame call that
// transferred ownership of its buffer to this stream.
func (ms *MediaStream) InstallDeallocationHook(fn func([]byte)) error {
	if fn == nil {
		return ErrInvalidValue
	}
	ms.sender.SetOnFrameSent(fn)
	return nil
}

// ConfigureCtx updates a mutable subset of the stream's configuration
// after creation, matching configure_ctx(flag, value)'s range-checked
// assignment. Only the fields safe to change post-start are accepted;
// MTU and fragmentation mode require a new stream, matching the
// original's lack of a resize path for those.
func (ms *MediaStream) ConfigureCtx(bandwidthFraction float64, reorderWindow int) error {
	if bandwidthFraction < 0 || bandwidthFraction > 1 || reorderWindow < 0 {
		return ErrInvalidValue
	}
	ms.mu.Lock()
	ms.cfg.RTCPBandwidthFraction = bandwidthFraction
	ms.cfg.ReorderWindow = reorderWindow
	ms.mu.Unlock()
	return nil
}

// Stop tears down the stream: RTCP sends a BYE, the sender and receiver
// worker goroutines are stopped, and the underlying socket is closed.
// Matches GoRTP's SsrcStreamCloseForIndex followed by transport closure.
func (ms *MediaStream) Stop() error {
	ms.mu.Lock()
	if ms.stopped {
		ms.mu.Unlock()
		return nil
	}
	ms.stopped = true
	ms.mu.Unlock()

	if ms.rtcp != nil {
		ms.rtcp.Stop("stream closed")
	}
	ms.sender.Close()
	ms.receiver.Close()
	if err := ms.socket.Close(); err != nil {
		return fmt.Errorf("uvgrtp: %w", err)
	}

	ms.session.unregisterStream(ms.ssrc)
	return nil
}

// currentRTPTimestamp derives "now" in the stream's RTP clock domain
// from the stream's start time: the timestamp is zero at NewStream and
// advances at clockRate. No random initial offset is added.
func (ms *MediaStream) currentRTPTimestamp() uint32 {
	elapsed := time.Since(ms.startTime)
	return uint32(elapsed.Seconds() * float64(ms.clockRate))
}

func (ms *MediaStream) senderStats() (packetCount, octetCount uint32) {
	st := ms.sender.Stats()
	return st.PacketCount, st.OctetCount
}

// handleInboundPacket feeds RFC 3550 Appendix A.1/A.8 statistics for the
// owning RTCP component from every structurally valid inbound RTP
// packet, the same hand-off media_stream gives rtcp in the original.
func (ms *MediaStream) handleInboundPacket(pkt *rtppkt.Packet) {
	if ms.rtcp == nil {
		return
	}
	ms.rtcp.RecordDataPacket(pkt.SSRC, pkt.PayloadType, pkt.SequenceNumber, pkt.Timestamp, len(pkt.Payload), ms.remoteAddr)
}

// estimatePayloadBitrate gives RTCP a starting bandwidth guess before
// any packets have actually been sent, modeled on RFC 3551's informal
// "5% of a 64kbit/s connection" default and scaled very roughly by
// clock rate to avoid starving high-rate media of RTCP bandwidth.
func estimatePayloadBitrate(clockRateHz uint32) float64 {
	if clockRateHz <= 8000 {
		return 64000
	}
	return float64(clockRateHz) * 8
}
