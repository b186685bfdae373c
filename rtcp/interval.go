package rtcp

import "crypto/rand"

// The following constants are taken from RFC 3550, chapters 6.3.1 and
// A.7, ported unchanged from wernerd-GoRTP__sessionlocal.go's
// rtcpInterval.
const (
	rtcpMinimumTime    = 5.0
	rtcpSenderFraction = 0.25
	rtcpRecvFraction   = 1.0 - rtcpSenderFraction
	compensation       = 2.71828 - 1.5
)

// rtcpInterval computes the next RTCP transmission interval per RFC
// 3550 Appendix A.7: ti is the randomized interval to actually wait,
// td is the deterministic (non-randomized) interval used for the
// membership/sender timeout multiples in chapters 6.3.5 and 6.3.8.
func rtcpInterval(members, senders int, rtcpBw, avgSize float64, weSent, initial bool) (ti, td int64) {
	rtcpMinTime := rtcpMinimumTime
	if initial {
		rtcpMinTime /= 2
	}

	// Dedicate a fraction of the RTCP bandwidth to senders unless the
	// number of senders is large enough that their share is more than
	// that fraction.
	n := members
	if senders <= int(float64(members)*rtcpSenderFraction) {
		if weSent {
			rtcpBw *= rtcpSenderFraction
			n = senders
		} else {
			rtcpBw *= rtcpRecvFraction
			n -= senders
		}
	}

	// The effective number of sites times the average packet size is
	// the total number of octets sent when each site sends a report.
	// Dividing this by the effective bandwidth gives the time interval
	// over which those packets must be sent to meet the bandwidth
	// target, with a minimum enforced. In that interval we send one
	// report, so this time is also our average time between reports.
	t := avgSize * float64(n) / rtcpBw
	if t < rtcpMinTime {
		t = rtcpMinTime
	}
	td = int64(t * 1e9) // deterministic interval, see chap 6.3.1, 6.3.5

	var randBuf [2]byte
	rand.Read(randBuf[:])
	randNo := uint16(randBuf[0]) | uint16(randBuf[1])<<8
	randFloat := float64(randNo)/65536.0 + 0.5

	t *= randFloat
	t /= compensation
	ti = int64(t * 1e9)
	return
}
