// Package sender implements the MediaStream's outbound half: a
// single-producer/single-consumer frame queue feeding one dedicated send
// worker goroutine, grounded on GoRTP's Session.WriteData (sender-state
// bookkeeping: sentPktCnt, sentOctCnt, the sender/weSent transition) and
// original_source/src/media_stream.cc's push_frame entry point.
package sender

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/stm-space/uvgRTP/payload"
	"github.com/stm-space/uvgRTP/rtppkt"
	"github.com/stm-space/uvgRTP/transport"
)

// Stats are the counters RTCP needs to build sender reports (RFC 3550
// §6.4.1): the cumulative packet and octet counts.
type Stats struct {
	PacketCount uint32
	OctetCount  uint32
}

type queuedFrame struct {
	payload   []byte
	timestamp uint32
}

// Sender owns one output SSRC's sequence number, frame queue, and send
// worker.
type Sender struct {
	SSRC        uint32
	PayloadType uint8
	MTU         int

	socket    transport.Socket
	formatter payload.Formatter
	remote    *net.UDPAddr

	seq uint32 // stored as uint32 for atomic ops, wraps at 16 bits

	pktCount uint32
	octCount uint32

	// OnPacketSent is invoked from the send worker after every RTP
	// packet is written, the hook MediaStream uses to tell its RTCP
	// component this SSRC became (or remains) a sender, the way GoRTP's
	// WriteData pushes rtcpIncrementSender the first time a stream sends.
	OnPacketSent func(ssrc uint32)

	hookMu      sync.Mutex
	onFrameSent func(frame []byte)

	queue  chan queuedFrame
	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	log       *logrus.Entry
}

// New creates a Sender for ssrc whose sequence numbers start at
// startSeq, chosen by the caller (MediaStream passes a random value,
// per RFC 3550 §5.1). The Sender keeps no timestamp state: each frame's
// RTP timestamp is passed to Push.
func New(ssrc uint32, payloadType uint8, mtu, queueDepth int, socket transport.Socket, formatter payload.Formatter, remote *net.UDPAddr, startSeq uint16) *Sender {
	s := &Sender{
		SSRC:        ssrc,
		PayloadType: payloadType,
		MTU:         mtu,
		socket:      socket,
		formatter:   formatter,
		remote:      remote,
		seq:         uint32(startSeq),
		queue:       make(chan queuedFrame, queueDepth),
		stopCh:      make(chan struct{}),
		log:         logrus.WithFields(logrus.Fields{"component": "sender", "ssrc": ssrc}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Push enqueues a frame for transmission at the given RTP timestamp. It
// returns an error if the queue is full rather than blocking the caller,
// the bounded-memory discipline spec's resource model requires.
func (s *Sender) Push(frame []byte, timestamp uint32) error {
	select {
	case s.queue <- queuedFrame{payload: frame, timestamp: timestamp}:
		return nil
	default:
		return fmt.Errorf("sender: queue full, dropping frame")
	}
}

// SetOnFrameSent installs fn to be called once per pushed frame, after
// its last fragment has left the socket, matching
// install_dealloc_hook's contract for a push_frame call that transfers
// ownership of its buffer: the caller may reuse or free frame as soon
// as fn returns.
func (s *Sender) SetOnFrameSent(fn func(frame []byte)) {
	s.hookMu.Lock()
	s.onFrameSent = fn
	s.hookMu.Unlock()
}

// Stats returns a snapshot of the packet/octet counters.
func (s *Sender) Stats() Stats {
	return Stats{
		PacketCount: atomic.LoadUint32(&s.pktCount),
		OctetCount:  atomic.LoadUint32(&s.octCount),
	}
}

// Close stops the send worker, draining nothing further from the queue.
func (s *Sender) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Sender) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case f := <-s.queue:
			if err := s.sendFrame(f); err != nil {
				s.log.WithError(err).Warn("failed to send frame")
			}
		}
	}
}

func (s *Sender) sendFrame(f queuedFrame) error {
	frags, err := s.formatter.Fragment(f.payload, s.MTU)
	if err != nil {
		return err
	}

	for _, frag := range frags {
		seq := uint16(atomic.AddUint32(&s.seq, 1) - 1)
		pkt := &rtppkt.Packet{
			Header: rtppkt.Header{
				Marker:         frag.Final,
				PayloadType:    s.PayloadType,
				SequenceNumber: seq,
				Timestamp:      f.timestamp,
				SSRC:           s.SSRC,
			},
			Payload: frag.Payload,
		}
		buf, err := pkt.Build()
		if err != nil {
			return err
		}
		if err := s.socket.SendData(buf, s.remote); err != nil {
			return err
		}

		atomic.AddUint32(&s.pktCount, 1)
		atomic.AddUint32(&s.octCount, uint32(len(frag.Payload)))
		if s.OnPacketSent != nil {
			s.OnPacketSent(s.SSRC)
		}
	}

	s.hookMu.Lock()
	onFrameSent := s.onFrameSent
	s.hookMu.Unlock()
	if onFrameSent != nil {
		onFrameSent(f.payload)
	}
	return nil
}
