package common

import "errors"

// Precondition errors are reported to the caller of an invoke method before
// any state is mutated.
var (
	ErrNoConnections        = errors.New("no connections to the database")
	ErrIncompleteParameters = errors.New("not all procedure parameters were bound")
	ErrBackpressureRejected = errors.New("request rejected due to backpressure")
	ErrEngineClosed         = errors.New("engine is closed")
)

// Framing errors make the byte stream of a connection untrustworthy.
var (
	ErrMalformedFrame     = errors.New("malformed frame")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
)

var (
	// ErrReactorFault wraps unexpected failures of the I/O loop itself
	ErrReactorFault = errors.New("reactor fault")
	// ErrAuthenticationFailed is returned when the server rejects a login
	ErrAuthenticationFailed = errors.New("authentication failed")
)
