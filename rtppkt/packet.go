// Package rtppkt frames and parses RTP packets (RFC 3550 §5). It wraps
// github.com/pion/rtp's header codec with two checks pion/rtp leaves to
// the caller: Parse rejects a version other than 2, and Build rejects
// more than MaxCSRC CSRC identifiers. Payload size is not checked here.
package rtppkt

import (
	"fmt"

	"github.com/pion/rtp"
)

// MaxCSRC is the largest CSRC count RFC 3550's fixed header can carry
// (4 bits).
const MaxCSRC = 15

// Header mirrors the fields of an RTP fixed header (RFC 3550 §5.1) that a
// caller is expected to set explicitly; SSRC-stream bookkeeping
// (sequence number, timestamp advance) lives in the sender package, not
// here, so this type stays a thin, stateless wire model.
type Header struct {
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
}

// Packet is a parsed or to-be-built RTP packet.
type Packet struct {
	Header
	Payload []byte
}

// Build marshals p into its RFC 3550 §5.1 wire form.
func (p *Packet) Build() ([]byte, error) {
	if len(p.CSRC) > MaxCSRC {
		return nil, fmt.Errorf("rtppkt: %d CSRC identifiers exceeds the 4-bit CC field", len(p.CSRC))
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         p.Marker,
			PayloadType:    p.PayloadType,
			SequenceNumber: p.SequenceNumber,
			Timestamp:      p.Timestamp,
			SSRC:           p.SSRC,
			CSRC:           p.CSRC,
		},
		Payload: p.Payload,
	}
	return pkt.Marshal()
}

// Parse decodes buf into a Packet, rejecting anything that is not a
// version-2 RTP packet.
func Parse(buf []byte) (*Packet, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("rtppkt: %w", err)
	}
	if pkt.Version != 2 {
		return nil, fmt.Errorf("rtppkt: unsupported RTP version %d", pkt.Version)
	}

	return &Packet{
		Header: Header{
			Marker:         pkt.Marker,
			PayloadType:    pkt.PayloadType,
			SequenceNumber: pkt.SequenceNumber,
			Timestamp:      pkt.Timestamp,
			SSRC:           pkt.SSRC,
			CSRC:           pkt.CSRC,
		},
		Payload: pkt.Payload,
	}, nil
}
