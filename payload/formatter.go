// Package payload implements the packet framer's payload formatters:
// Opaque, which hands a frame to the wire unchanged, and Fragmenting,
// which splits frames too large for the path MTU using an RFC
// 6184-style FU-A fragmentation header and reassembles them on receive.
//
// Grounded on opd-ai-toxcore/av/video/rtp.go's VP8 fragmenting
// packetizer/depacketizer, adapted from its VP8 descriptor bits to the
// generic F/NRI/Type + S/E/R/Type FU-A header shape.
package payload

import "fmt"

// Fragment is one RTP-payload-sized slice produced by a Formatter. Final
// is set on the last fragment of a frame, the bit a Sender uses to set
// the RTP marker bit (RFC 3550 §5.1).
type Fragment struct {
	Payload []byte
	Final   bool
}

// Formatter turns an application frame into one or more RTP payloads and
// reverses the process on receive.
type Formatter interface {
	// Fragment splits frame into wire-ready fragments no larger than mtu.
	// It returns a single, unmodified fragment if frame already fits.
	Fragment(frame []byte, mtu int) ([]Fragment, error)

	// Reassemble folds one received RTP payload into the frame
	// identified by timestamp, keyed by its wire sequence number so
	// fragments delivered out of order still land in the right place.
	// It returns the completed frame and true once every fragment
	// between the start and end markers has arrived.
	Reassemble(seq uint16, timestamp uint32, payload []byte, marker bool) ([]byte, bool, error)
}

// ErrFrameTooBig is returned by Opaque.Fragment when a frame exceeds mtu
// and the formatter has no way to split it further.
var ErrFrameTooBig = fmt.Errorf("payload: frame exceeds MTU and fragmentation is disabled")
