package rtcp

import (
	"net"
	"time"
)

// RFC 3550 Appendix A.1 sequence validity constants, ported from
// wernerd-GoRTP__stream.go.
const (
	maxDropout    = 3000
	minSequential = 2
	maxMisorder   = 100
	seqNumMod     = 1 << 16
)

// clockRates gives the well-known IANA clock rates (RFC 3551) needed for
// RFC 3550 Appendix A.8's jitter computation, condensed from
// wernerd-GoRTP__payload.go's PayloadFormatMap down to the clock rate
// column. Dynamic payload types (96-127) have no entry here; callers
// fall back to defaultClockRate.
var clockRates = map[uint8]uint32{
	0: 8000, 3: 8000, 4: 8000, 5: 8000, 6: 16000, 7: 8000, 8: 8000,
	9: 8000, 10: 44100, 11: 44100, 12: 8000, 13: 8000, 14: 90000,
	15: 8000, 16: 11025, 17: 22050, 18: 8000, 25: 90000, 26: 90000,
	28: 90000, 31: 90000, 32: 90000, 33: 90000, 34: 90000,
}

const defaultClockRate = 90000

func clockRateFor(pt uint8) uint32 {
	if rate, ok := clockRates[pt]; ok {
		return rate
	}
	return defaultClockRate
}

// statistics is a remote participant's RFC 3550 Appendix A.1/A.8
// bookkeeping, ported field-for-field from
// wernerd-GoRTP__stream.go's ctrlStatistics.
type statistics struct {
	lastPacketTime     int64
	lastRtcpPacketTime int64
	lastRtcpSrTime     int64

	packetCount uint32
	octetCount  uint32

	maxSeqNum    uint16
	baseSeqNum   uint16
	badSeqNum    uint32
	probation    int
	seqNumAccum  uint32
	expectedPrior uint32
	receivedPrior uint32

	lastPacketTransitTime uint32
	jitter                uint32

	senderCNAME string
	ntpTime      int64
	rtpTimestamp uint32
	senderPktCnt uint32
	senderOctCnt uint32
}

func newStatistics() statistics {
	return statistics{
		badSeqNum: seqNumMod + 1,
		probation: minSequential,
	}
}

// Participant is one remote SSRC this RTCP component has heard from,
// tracked the way original_source/src/rtcp.hh tracks a participant plus
// its statistics block.
type Participant struct {
	SSRC        uint32
	Addr        *net.UDPAddr
	PayloadType uint8

	isSender bool
	stats    statistics
}

// recordReceptionData validates seq against RFC 3550 Appendix A.1's
// probation algorithm and, if valid, updates the packet/octet counters
// and the Appendix A.8 jitter estimate. Ported from
// wernerd-GoRTP__stream.go's recordReceptionData.
func (p *Participant) recordReceptionData(seq uint16, timestamp uint32, payloadLen int, recvTime time.Time) bool {
	now := recvTime.UnixNano()
	st := &p.stats

	valid := true
	if st.probation != 0 {
		if seq == st.maxSeqNum+1 {
			st.probation--
			if st.probation == 0 {
				st.seqNumAccum = 0
			} else {
				valid = false
			}
		} else {
			st.probation = minSequential - 1
			valid = false
		}
		st.maxSeqNum = seq
	} else {
		step := seq - st.maxSeqNum
		switch {
		case step < maxDropout:
			if seq < st.maxSeqNum {
				st.seqNumAccum += seqNumMod
			}
			st.maxSeqNum = seq
		case int(step) <= seqNumMod-maxMisorder:
			if uint32(seq) == st.badSeqNum {
				st.maxSeqNum = seq
				st.baseSeqNum = seq
				st.seqNumAccum = 0
				st.badSeqNum = seqNumMod + 1
			} else {
				st.badSeqNum = uint32(seq+1) & (seqNumMod - 1)
				if st.packetCount > 0 {
					valid = false
				} else {
					st.maxSeqNum = seq
				}
			}
		default:
			// duplicate or reordered packet within tolerance; ignore
		}
	}

	if !valid {
		return false
	}

	if st.packetCount == 0 {
		st.baseSeqNum = seq
	}
	st.packetCount++
	st.octetCount += uint32(payloadLen)
	st.lastPacketTime = now
	p.isSender = true

	clockRate := clockRateFor(p.PayloadType)
	arrival := uint32(now / 1e6 * int64(clockRate/1e3))
	transit := arrival - timestamp
	if st.lastPacketTransitTime != 0 {
		delta := int32(transit - st.lastPacketTransitTime)
		if delta < 0 {
			delta = -delta
		}
		st.jitter += uint32(delta) - ((st.jitter + 8) >> 4)
	}
	st.lastPacketTransitTime = transit

	return true
}

// receptionReport builds the RFC 3550 §6.4.1 receiver report fields for
// this participant, ported from wernerd-GoRTP__stream.go's
// makeRecvReport.
func (p *Participant) receptionReport() (lost uint32, fracLost uint8, extMaxSeq, jitter, lsr, dlsr uint32) {
	st := &p.stats

	extMaxSeq = st.seqNumAccum + uint32(st.maxSeqNum)
	expected := extMaxSeq - uint32(st.baseSeqNum) + 1
	if st.packetCount > 0 {
		lost = expected - st.packetCount
	}

	expectedDelta := expected - st.expectedPrior
	st.expectedPrior = expected
	receivedDelta := st.packetCount - st.receivedPrior
	st.receivedPrior = st.packetCount
	lostDelta := expectedDelta - receivedDelta

	if expectedDelta != 0 && int32(lostDelta) > 0 {
		fracLost = byte((lostDelta << 8) / expectedDelta)
	}

	if st.lastRtcpSrTime != 0 {
		sec, frac := toNTP(st.lastRtcpSrTime)
		ntp := (uint64(sec) << 32) | uint64(frac)
		lsr = uint32(ntp >> 16)

		sec, frac = toNTP(time.Now().UnixNano() - st.lastRtcpSrTime)
		ntp = (uint64(sec) << 32) | uint64(frac)
		dlsr = uint32(ntp >> 16)
	}

	jitter = st.jitter >> 4
	return
}
