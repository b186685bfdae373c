package uvgrtp

import "errors"

// Sentinel errors returned by Context, Session and MediaStream operations.
// Callers should classify failures with errors.Is rather than string
// comparison.

// Configuration and argument errors.
var (
	ErrInvalidValue = errors.New("invalid value")
	ErrPayloadTooBig = errors.New("payload exceeds maximum frame size")
)

// Transport errors.
var (
	ErrSendFailed = errors.New("send failed")
	ErrRecvFailed = errors.New("receive failed")
	ErrTimeout    = errors.New("operation timed out")
)

// Resource errors.
var (
	ErrMemory   = errors.New("allocation failed")
	ErrNotReady = errors.New("media stream not ready")
)

// ZRTP errors.
var (
	ErrAuthFailure = errors.New("zrtp authentication failure")
)

// ErrGeneric is returned when a failure does not fit any other sentinel.
var ErrGeneric = errors.New("generic error")
