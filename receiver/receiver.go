// Package receiver implements the MediaStream's inbound half: a recv
// loop over a transport.Socket, per-sender reassembly via a
// payload.Formatter, and delivery either through an installed hook or a
// pull queue. Grounded on GoRTP's transportUDP.go readDataPacket loop
// shape and the sequence-validity probation idea in
// wernerd-GoRTP__stream.go's recordReceptionData (RFC 3550 Appendix A.1),
// reimplemented here purely as a reorder/duplicate filter ahead of
// reassembly; full jitter/loss statistics for RTCP reports live in the
// rtcp package, which tracks them per remote participant rather than per
// MediaStream.
package receiver

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/stm-space/uvgRTP/payload"
	"github.com/stm-space/uvgRTP/rtppkt"
	"github.com/stm-space/uvgRTP/transport"
)

const (
	maxDropout  = 3000 // RFC 3550 Appendix A.1
	maxMisorder = 100
)

// Frame is a fully reassembled, ready-to-deliver application frame.
type Frame struct {
	SSRC      uint32
	Timestamp uint32
	Payload   []byte
}

// senderState is the minimal per-remote-SSRC bookkeeping the receiver
// needs to decide whether an arriving packet is in-window, independent
// of the fuller RTCP statistics the rtcp package maintains for the same
// SSRC.
type senderState struct {
	haveSeq bool
	maxSeq  uint16
	fmt     payload.Formatter
}

// Receiver demultiplexes inbound RTP packets by SSRC and reassembles
// frames.
type Receiver struct {
	socket              transport.Socket
	newFormatter        func() payload.Formatter
	reorderWindow       int
	strictSequenceCheck bool

	mu      sync.Mutex
	senders map[uint32]*senderState

	hook func(Frame)

	pullQueue chan Frame

	// OnPacket, if set, is invoked for every structurally valid packet
	// before reassembly so the RTCP component can update its per-source
	// statistics (RFC 3550 Appendix A.1/A.8), matching how uvgRTP's rtcp
	// class is fed by the media_stream's receive path.
	OnPacket func(pkt *rtppkt.Packet)

	stopCh chan struct{}
	wg     sync.WaitGroup
	log    *logrus.Entry
}

// New creates a Receiver reading from socket. newFormatter constructs a
// fresh payload.Formatter for each newly seen SSRC, since reassembly
// state (Fragmenting's pending map) must not be shared across senders.
func New(socket transport.Socket, newFormatter func() payload.Formatter, reorderWindow, pullQueueDepth int, strictSequenceCheck bool) *Receiver {
	r := &Receiver{
		socket:              socket,
		newFormatter:        newFormatter,
		reorderWindow:       reorderWindow,
		strictSequenceCheck: strictSequenceCheck,
		senders:             make(map[uint32]*senderState),
		pullQueue:           make(chan Frame, pullQueueDepth),
		stopCh:              make(chan struct{}),
		log:                 logrus.WithField("component", "receiver"),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// InstallReceiveHook registers a callback invoked for every reassembled
// frame, matching original_source/src/media_stream.cc's
// install_receive_hook. Installing a hook disables the pull queue.
func (r *Receiver) InstallReceiveHook(hook func(Frame)) {
	r.mu.Lock()
	r.hook = hook
	r.mu.Unlock()
}

// PullFrame blocks until a reassembled frame is available or the
// Receiver is closed, in which case ok is false.
func (r *Receiver) PullFrame() (Frame, bool) {
	f, ok := <-r.pullQueue
	return f, ok
}

// Close stops the recv loop.
func (r *Receiver) Close() {
	close(r.stopCh)
	r.wg.Wait()
	close(r.pullQueue)
}

func (r *Receiver) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case pkt, ok := <-r.socket.DataChan():
			if !ok {
				return
			}
			r.handleDatagram(pkt.Data)
		}
	}
}

func (r *Receiver) handleDatagram(buf []byte) {
	pkt, err := rtppkt.Parse(buf)
	if err != nil {
		r.log.WithError(err).Debug("dropping unparseable RTP packet")
		return
	}

	r.mu.Lock()
	st, ok := r.senders[pkt.SSRC]
	if !ok {
		st = &senderState{fmt: r.newFormatter()}
		r.senders[pkt.SSRC] = st
	}
	inWindow := r.checkSequence(st, pkt.SequenceNumber)
	r.mu.Unlock()

	if !inWindow {
		r.log.WithFields(logrus.Fields{"ssrc": pkt.SSRC, "seq": pkt.SequenceNumber}).
			Debug("dropping out-of-window RTP packet")
		return
	}

	if r.OnPacket != nil {
		r.OnPacket(pkt)
	}

	frame, done, err := st.fmt.Reassemble(pkt.SequenceNumber, pkt.Timestamp, pkt.Payload, pkt.Marker)
	if err != nil {
		r.log.WithError(err).Debug("reassembly failed")
		return
	}
	if !done {
		return
	}

	out := Frame{SSRC: pkt.SSRC, Timestamp: pkt.Timestamp, Payload: frame}

	r.mu.Lock()
	hook := r.hook
	r.mu.Unlock()

	if hook != nil {
		hook(out)
		return
	}

	select {
	case r.pullQueue <- out:
	default:
		r.log.Debug("pull queue full, dropping frame")
	}
}

// checkSequence is a simplified version of RFC 3550 Appendix A.1's
// validity check: a forward step under maxDropout advances maxSeq, a
// duplicate is dropped, and any other packet is accepted (without
// advancing maxSeq) only if it lies at most reorderWindow behind
// maxSeq, or whenever reorderWindow is 0 or less. Loss/jitter
// accounting is left to the rtcp package.
func (r *Receiver) checkSequence(st *senderState, seq uint16) bool {
	if !st.haveSeq {
		st.haveSeq = true
		st.maxSeq = seq
		return true
	}

	step := seq - st.maxSeq
	if r.strictSequenceCheck {
		// Strict mode rejects anything but a clean advance outright,
		// instead of tolerating misorder within reorderWindow.
		if step == 0 || step >= maxDropout {
			return false
		}
		st.maxSeq = seq
		return true
	}

	switch {
	case step == 0:
		return false // duplicate
	case step < maxDropout:
		st.maxSeq = seq
		return true
	case int(step) <= 65536-maxMisorder:
		// A large jump either way: accepted without advancing maxSeq
		// only if it is within reorderWindow behind maxSeq.
		return uint16(65536-int(step)) <= uint16(r.reorderWindow) || r.reorderWindow <= 0
	default:
		// Small negative step: accepted if within the reorder window.
		return 65536-int(step) <= r.reorderWindow || r.reorderWindow <= 0
	}
}
