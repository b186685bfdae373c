// Package rtcp implements the RTCP component of a MediaStream: the
// self-rescheduling report-transmission timer, sender/receiver report
// construction, participant membership tracking, and BYE
// reverse-reconsideration, all per RFC 3550 §6. SSRC collisions
// (RFC 3550 §8.2) are not detected or resolved.
//
// The scheduling state — tp, tn, pmembers, members, senders,
// rtcpBandwidth, weSent, avgRtcpSize, initial, active — uses the exact
// names original_source/src/rtcp.hh declares for the same fields.
// The scheduler loop's shape (ticker plus a control channel, membership
// timeout derived from multiples of the deterministic interval) is
// ported from wernerd-GoRTP__sessionlocal.go's rtcpService, re-expressed
// over github.com/pion/rtcp packet types instead of GoRTP's own
// byte-buffer RTCP codec.
package rtcp

import (
	"net"
	"sync"
	"time"

	pionrtcp "github.com/pion/rtcp"
	"github.com/sirupsen/logrus"

	"github.com/stm-space/uvgRTP/transport"
)

// LocalSource is one SSRC this MediaStream sends RTP as. RTCP polls it
// for sender-report fields rather than owning packet/timestamp state
// itself, the same separation GoRTP keeps between Session and
// SsrcStream.
type LocalSource struct {
	SSRC        uint32
	PayloadType uint8
	// Stats returns the cumulative packet and octet counts sent so far.
	Stats func() (packetCount, octetCount uint32)
	// RTPTimestamp returns the RTP timestamp corresponding to "now",
	// used to fill the sender report's RTP timestamp field.
	RTPTimestamp func() uint32
}

// RTCP runs the scheduled-report timer and processes inbound RTCP
// compounds for one MediaStream.
type RTCP struct {
	cname string

	mu     sync.RWMutex
	local  map[uint32]*LocalSource
	remote map[uint32]*Participant

	socket     transport.Socket
	remoteAddr *net.UDPAddr

	tp, tn        int64
	pmembers      float64
	members       float64
	senders       float64
	rtcpBandwidth float64
	weSent        bool
	avgRtcpSize   float64
	initial       bool
	active        bool

	stopCh chan struct{}
	wg     sync.WaitGroup
	log    *logrus.Entry
}

// New creates an RTCP component whose reports carry cname as their
// SDES CNAME.
func New(cname string) *RTCP {
	return &RTCP{
		cname:  cname,
		local:  make(map[uint32]*LocalSource),
		remote: make(map[uint32]*Participant),
		log:    logrus.WithField("component", "rtcp"),
	}
}

// AddLocalSource registers ls so it participates in sender reports.
func (r *RTCP) AddLocalSource(ls LocalSource) {
	r.mu.Lock()
	r.local[ls.SSRC] = &ls
	r.mu.Unlock()
}

// RemoveLocalSource stops reporting on ssrc.
func (r *RTCP) RemoveLocalSource(ssrc uint32) {
	r.mu.Lock()
	delete(r.local, ssrc)
	r.mu.Unlock()
}

// NotePacketSent marks that a local source transmitted RTP data by
// setting weSent, matching GoRTP's WriteData setting rs.weSent = true.
// ssrc is not used.
func (r *RTCP) NotePacketSent(ssrc uint32) {
	r.mu.Lock()
	r.weSent = true
	r.mu.Unlock()
}

// RecordDataPacket feeds one inbound RTP packet's sequence number,
// timestamp and payload size into the remote participant's RFC 3550
// Appendix A.1/A.8 statistics, creating the participant if this is the
// first packet seen from ssrc.
func (r *RTCP) RecordDataPacket(ssrc uint32, payloadType uint8, seq uint16, timestamp uint32, payloadLen int, from *net.UDPAddr) {
	r.mu.Lock()
	p, ok := r.remote[ssrc]
	if !ok {
		p = &Participant{SSRC: ssrc, Addr: from, PayloadType: payloadType, stats: newStatistics()}
		r.remote[ssrc] = p
		r.members++
	}
	p.PayloadType = payloadType
	wasSender := p.isSender
	r.mu.Unlock()

	if p.recordReceptionData(seq, timestamp, payloadLen, time.Now()) && !wasSender {
		r.mu.Lock()
		if p.isSender {
			r.senders++
		}
		r.mu.Unlock()
	}
}

// Start binds the component to socket/remoteAddr and launches the
// report-transmission timer and the inbound-compound reader, mirroring
// GoRTP's StartSession computing the initial interval before spawning
// rtcpService. The RTCP bandwidth is estimatedPayloadBitrate scaled by
// bandwidthFraction; a fraction of 0 or less selects 5%.
func (r *RTCP) Start(socket transport.Socket, remoteAddr *net.UDPAddr, bandwidthFraction float64, estimatedPayloadBitrate float64) {
	r.mu.Lock()
	r.socket = socket
	r.remoteAddr = remoteAddr

	if bandwidthFraction <= 0 {
		bandwidthFraction = 0.05
	}
	r.rtcpBandwidth = estimatedPayloadBitrate * bandwidthFraction
	if r.rtcpBandwidth <= 0 {
		r.rtcpBandwidth = 64000.0 / 20.0
	}
	r.avgRtcpSize = 128 // rough initial guess, refined after the first report
	r.pmembers = 1
	r.members = 1
	r.initial = true
	r.active = true
	r.stopCh = make(chan struct{})

	ti, td := rtcpInterval(1, 0, r.rtcpBandwidth, r.avgRtcpSize, false, true)
	r.tn = time.Now().UnixNano() + ti
	r.mu.Unlock()

	r.wg.Add(2)
	go r.scheduler(ti, td)
	go r.readLoop()
}

// Stop sends a BYE for every local source and halts the timer, matching
// GoRTP's CloseSession / SsrcStreamCloseForIndex sequence.
func (r *RTCP) Stop(reason string) {
	r.mu.RLock()
	active := r.active
	sources := make([]uint32, 0, len(r.local))
	for ssrc := range r.local {
		sources = append(sources, ssrc)
	}
	r.mu.RUnlock()

	if !active {
		return
	}

	for _, ssrc := range sources {
		r.sendGoodbye(ssrc, reason)
	}

	r.mu.Lock()
	r.active = false
	ch := r.stopCh
	r.mu.Unlock()

	close(ch)
	r.wg.Wait()
}

func (r *RTCP) sendGoodbye(ssrc uint32, reason string) {
	bye := buildGoodbye(ssrc, reason)
	buf, err := bye.Marshal()
	if err != nil {
		r.log.WithError(err).Warn("failed to marshal BYE")
		return
	}
	if err := r.socket.SendCtrl(buf, r.remoteAddr); err != nil {
		r.log.WithError(err).Warn("failed to send BYE")
	}
}

// scheduler is the self-rescheduling report timer, ported in shape from
// wernerd-GoRTP__sessionlocal.go's rtcpService.
func (r *RTCP) scheduler(_, _ int64) {
	defer r.wg.Done()

	granularity := 250 * time.Millisecond
	ticker := time.NewTicker(granularity)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			now := time.Now().UnixNano()

			r.mu.RLock()
			tn := r.tn
			r.mu.RUnlock()
			if now < tn {
				continue
			}

			r.sendReport(now)

			r.mu.Lock()
			members := int(r.members)
			senders := int(r.senders)
			bw := r.rtcpBandwidth
			size := r.avgRtcpSize
			weSent := r.weSent
			r.weSent = false
			r.initial = false
			newTi, newTd := rtcpInterval(members, senders, bw, size, weSent, false)
			r.tn = now + newTi
			r.mu.Unlock()

			r.prune(now, newTd)
		}
	}
}

// sendReport builds and transmits one compound RTCP packet: an SR for
// every sending local source (or an RR using the first local source as
// proxy if none are sending), the receiver reports owed to remote
// participants, and one SDES chunk per local source — the same
// structure as wernerd-GoRTP__sessionlocal.go's buildRtcpPkt.
func (r *RTCP) sendReport(now int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.socket == nil || len(r.local) == 0 {
		return
	}

	rrs := make([]pionrtcp.ReceptionReport, 0, len(r.remote))
	for _, p := range r.remote {
		rrs = append(rrs, buildReceptionReport(p))
	}

	var compound []pionrtcp.Packet
	first := true
	for ssrc, ls := range r.local {
		pktCount, octCount := uint32(0), uint32(0)
		if ls.Stats != nil {
			pktCount, octCount = ls.Stats()
		}
		if pktCount == 0 && !first {
			compound = append(compound, buildSourceDescription(ssrc, r.cname))
			continue
		}

		var rtpTS uint32
		if ls.RTPTimestamp != nil {
			rtpTS = ls.RTPTimestamp()
		}

		var reportsForThisSSRC []pionrtcp.ReceptionReport
		if first {
			reportsForThisSSRC = rrs
			first = false
		}

		if pktCount > 0 {
			sr := buildSenderReport(ssrc, now, pktCount, octCount, reportsForThisSSRC)
			sr.RTPTime = rtpTS
			compound = append(compound, sr)
		} else {
			compound = append(compound, buildReceiverReport(ssrc, reportsForThisSSRC))
		}
		compound = append(compound, buildSourceDescription(ssrc, r.cname))
	}

	buf, err := pionrtcp.Marshal(compound)
	if err != nil {
		r.log.WithError(err).Warn("failed to marshal RTCP compound")
		return
	}
	if err := r.socket.SendCtrl(buf, r.remoteAddr); err != nil {
		r.log.WithError(err).Warn("failed to send RTCP compound")
		return
	}

	size := float64(len(buf) + 20 + 8) // + UDP/IP overhead, per RFC 3550 A.7
	r.avgRtcpSize = (1.0/16.0)*size + (15.0/16.0)*r.avgRtcpSize
}

// readLoop consumes inbound RTCP compounds from the socket's control
// channel, mirroring GoRTP's readCtrlPacket feeding Session.OnRecvCtrl.
func (r *RTCP) readLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case pkt, ok := <-r.socket.CtrlChan():
			if !ok {
				return
			}
			r.handleCompound(pkt.Data, pkt.From)
		}
	}
}

func (r *RTCP) handleCompound(buf []byte, from *net.UDPAddr) {
	packets, err := pionrtcp.Unmarshal(buf)
	if err != nil {
		r.log.WithError(err).Debug("dropping unparseable RTCP compound")
		return
	}

	for _, pkt := range packets {
		switch p := pkt.(type) {
		case *pionrtcp.SenderReport:
			r.handleSenderReport(p, from)
		case *pionrtcp.ReceiverReport:
			r.handleReceiverReport(p)
		case *pionrtcp.SourceDescription:
			r.handleSourceDescription(p)
		case *pionrtcp.Goodbye:
			r.handleGoodbye(p)
		}
	}

	r.mu.Lock()
	size := float64(len(buf) + 20 + 8)
	r.avgRtcpSize = (1.0/16.0)*size + (15.0/16.0)*r.avgRtcpSize
	r.mu.Unlock()
}

func (r *RTCP) handleSenderReport(sr *pionrtcp.SenderReport, from *net.UDPAddr) {
	r.mu.Lock()
	p, ok := r.remote[sr.SSRC]
	if !ok {
		p = &Participant{SSRC: sr.SSRC, Addr: from, stats: newStatistics()}
		r.remote[sr.SSRC] = p
		r.members++
	}
	p.stats.lastRtcpPacketTime = time.Now().UnixNano()
	p.stats.lastRtcpSrTime = p.stats.lastRtcpPacketTime
	p.stats.ntpTime = fromNTP(uint32(sr.NTPTime>>32), uint32(sr.NTPTime))
	p.stats.rtpTimestamp = sr.RTPTime
	p.stats.senderPktCnt = sr.PacketCount
	p.stats.senderOctCnt = sr.OctetCount
	r.mu.Unlock()

	// RR blocks inside an SR that mention one of our own local sources
	// are currently not folded back into local state; uvgRTP-Go treats
	// outgoing quality metrics as observational only.
	_ = sr.Reports
}

func (r *RTCP) handleReceiverReport(rr *pionrtcp.ReceiverReport) {
	r.mu.Lock()
	p, ok := r.remote[rr.SSRC]
	if !ok {
		p = &Participant{SSRC: rr.SSRC, stats: newStatistics()}
		r.remote[rr.SSRC] = p
		r.members++
	}
	p.stats.lastRtcpPacketTime = time.Now().UnixNano()
	r.mu.Unlock()
}

func (r *RTCP) handleSourceDescription(sd *pionrtcp.SourceDescription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, chunk := range sd.Chunks {
		p, ok := r.remote[chunk.Source]
		if !ok {
			continue
		}
		for _, item := range chunk.Items {
			if item.Type == pionrtcp.SDESCNAME {
				p.stats.senderCNAME = item.Text
			}
		}
	}
}

// prune implements the timeout rules of RFC 3550 chapters 6.3.5 and
// 6.3.8: a participant that sent RTP data but has gone quiet for 2*td
// (td recomputed at this purge, per chapter 6.3.5) is demoted back to a
// non-sender; a participant that has gone quiet on RTCP entirely for
// 5*T_min is dropped from the membership table outright.
func (r *RTCP) prune(now, td int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	senderTimeout := 2 * td
	memberTimeout := int64(5 * rtcpMinimumTime * float64(time.Second))

	for ssrc, p := range r.remote {
		if p.isSender && p.stats.lastPacketTime != 0 && now-p.stats.lastPacketTime > senderTimeout {
			p.isSender = false
			if r.senders > 0 {
				r.senders--
			}
		}

		lastHeard := p.stats.lastRtcpPacketTime
		if lastHeard == 0 {
			lastHeard = p.stats.lastPacketTime
		}
		if lastHeard != 0 && now-lastHeard > memberTimeout {
			delete(r.remote, ssrc)
			if r.members > 1 {
				r.members--
			}
		}
	}
}

// handleGoodbye implements RFC 3550 §6.3.4's reverse reconsideration:
// on receiving a BYE, scale the time to the next scheduled report by
// members/pmembers so the group converges quickly on the new, smaller
// membership instead of waiting out an interval sized for the old one.
func (r *RTCP) handleGoodbye(bye *pionrtcp.Goodbye) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ssrc := range bye.Sources {
		if _, ok := r.remote[ssrc]; ok {
			delete(r.remote, ssrc)
			if r.members > 1 {
				r.members--
			}
		}
	}

	if r.pmembers > 0 {
		tc := float64(time.Now().UnixNano())
		tn := tc + (r.members/r.pmembers)*(float64(r.tn)-tc)
		r.tn = int64(tn)
	}
	r.pmembers = r.members
}
