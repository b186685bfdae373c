package payload

// Opaque is the simplest Formatter: one frame maps to exactly one RTP
// payload. It never fragments and never reassembles across packets,
// matching uvgRTP's generic (non-fragmenting) media type handling.
type Opaque struct{}

func (Opaque) Fragment(frame []byte, mtu int) ([]Fragment, error) {
	if len(frame) > mtu {
		return nil, ErrFrameTooBig
	}
	return []Fragment{{Payload: frame, Final: true}}, nil
}

// Reassemble for Opaque is the identity function: every payload is
// already a complete frame.
func (Opaque) Reassemble(_ uint16, _ uint32, payload []byte, _ bool) ([]byte, bool, error) {
	return payload, true, nil
}
