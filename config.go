package uvgrtp

import "time"

// Config holds the tunables an application may set on a MediaStream before
// it is started. It replaces uvgRTP's configure_ctx(flag, value) calls with
// a typed, validated struct in the manner GoRTP exposes its own Session
// fields (MaxNumberOutStreams, RtcpSessionBandwidth) directly.
type Config struct {
	// MTU is the largest RTP payload, in bytes, the framer will emit
	// without invoking the fragmenting payload formatter.
	MTU int

	// UseFragmenting enables FU-A-style fragmentation for frames larger
	// than MTU. If false, oversized frames are rejected with
	// ErrPayloadTooBig instead of being split.
	UseFragmenting bool

	// ReorderWindow bounds how many out-of-order sequence numbers the
	// receiver's reassembly logic tolerates before giving up on a frame.
	ReorderWindow int

	// ReassemblyTimeout is how long a partially received fragmented
	// frame is kept before being discarded.
	ReassemblyTimeout time.Duration

	// MaxQueuedFrames bounds the sender's outbound frame queue.
	MaxQueuedFrames int

	// EnableRTCP turns on the scheduled RTCP runner for the stream.
	EnableRTCP bool

	// RTCPBandwidthFraction is the fraction of session bandwidth set
	// aside for RTCP traffic (RFC 3550 6.2). Zero lets RTCP guess from
	// the payload's clock rate, as GoRTP's StartSession does.
	RTCPBandwidthFraction float64

	// EnableSRTP permits MediaStream.NegotiateZRTP, which returns
	// ErrNotReady while this flag is unset. uvgRTP-Go does not implement
	// SRTP: setting the flag does not encrypt media.
	EnableSRTP bool

	// ReuseAddr requests SO_REUSEADDR on the underlying UDP sockets.
	// Off by default: the original uvgRTP leaves the SO_REUSEADDR call
	// commented out (see media_stream.cc's init_connection), and we
	// preserve that default rather than opting every socket in.
	ReuseAddr bool

	// StrictSequenceCheck makes the receiver drop every packet that is
	// not a forward step of less than 3000 sequence numbers, so
	// duplicates and late (reordered) packets are dropped instead of
	// being accepted within ReorderWindow. No RFC 3550 Appendix A.1
	// probation is applied.
	StrictSequenceCheck bool
}

// DefaultConfig returns the configuration uvgRTP-Go uses when an
// application does not override anything.
func DefaultConfig() Config {
	return Config{
		MTU:                   1400,
		UseFragmenting:        true,
		ReorderWindow:         128,
		ReassemblyTimeout:     2 * time.Second,
		MaxQueuedFrames:       256,
		EnableRTCP:            true,
		RTCPBandwidthFraction: 0.05,
		EnableSRTP:            false,
		ReuseAddr:             false,
		StrictSequenceCheck:   false,
	}
}

// Validate checks the configuration's bounds the way the original's
// configure_ctx rejects flags outside its recognized enum range.
func (c Config) Validate() error {
	if c.MTU <= 12 || c.MTU > 65507 {
		return ErrInvalidValue
	}
	if c.ReorderWindow < 0 {
		return ErrInvalidValue
	}
	if c.MaxQueuedFrames <= 0 {
		return ErrInvalidValue
	}
	if c.RTCPBandwidthFraction < 0 || c.RTCPBandwidthFraction > 1 {
		return ErrInvalidValue
	}
	return nil
}
