package rtcp

import (
	"github.com/pion/rtcp"
)

// buildSenderReport builds the RFC 3550 §6.4.1 sender report for one
// local source plus, if rrs is non-empty, the receiver reports this
// session owes its remote participants — mirroring
// wernerd-GoRTP__sessionlocal.go's buildRtcpPkt, which attaches the
// first batch of receiver reports to whichever output stream is
// currently a sender.
func buildSenderReport(ssrc uint32, sentTime int64, pktCount, octCount uint32, rrs []rtcp.ReceptionReport) *rtcp.SenderReport {
	sec, frac := toNTP(sentTime)
	return &rtcp.SenderReport{
		SSRC:        ssrc,
		NTPTime:     (uint64(sec) << 32) | uint64(frac),
		RTPTime:     0, // filled by caller, which knows the stream's RTP clock
		PacketCount: pktCount,
		OctetCount:  octCount,
		Reports:     rrs,
	}
}

// buildReceiverReport builds an RR when no local source is currently
// sending, matching buildRtcpPkt's "RR" branch.
func buildReceiverReport(ssrc uint32, rrs []rtcp.ReceptionReport) *rtcp.ReceiverReport {
	return &rtcp.ReceiverReport{
		SSRC:    ssrc,
		Reports: rrs,
	}
}

// buildReceptionReport turns one Participant's accumulated statistics
// into a pion/rtcp ReceptionReport block, matching
// wernerd-GoRTP__stream.go's makeRecvReport.
func buildReceptionReport(p *Participant) rtcp.ReceptionReport {
	lost, fracLost, extMaxSeq, jitter, lsr, dlsr := p.receptionReport()
	return rtcp.ReceptionReport{
		SSRC:               p.SSRC,
		FractionLost:       fracLost,
		TotalLost:          lost,
		LastSequenceNumber: extMaxSeq,
		Jitter:             jitter,
		LastSenderReport:   lsr,
		Delay:              dlsr,
	}
}

// buildSourceDescription builds the one-chunk SDES packet GoRTP's
// addSdes attaches after every SR/RR: a single CNAME item, CSRC
// contribution not supported (matching the teacher's own limitation).
func buildSourceDescription(ssrc uint32, cname string) *rtcp.SourceDescription {
	return &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{
			{
				Source: ssrc,
				Items: []rtcp.SourceDescriptionItem{
					{Type: rtcp.SDESCNAME, Text: cname},
				},
			},
		},
	}
}

// buildGoodbye builds a BYE packet for ssrc, matching
// wernerd-GoRTP__sessionlocal.go's buildRtcpByePkt.
func buildGoodbye(ssrc uint32, reason string) *rtcp.Goodbye {
	return &rtcp.Goodbye{
		Sources: []uint32{ssrc},
		Reason:  reason,
	}
}
