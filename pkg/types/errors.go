package types

import (
	"context"
	"errors"
)

// Error taxonomy shared by devices and remote providers. Implementations wrap
// one of these sentinels so callers can classify failures with [errors.Is].
var (
	// ErrDeviceUnavailable means the microphone or speaker is absent or
	// permission to use it was denied.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrNetwork means a request could not be sent or no response arrived.
	ErrNetwork = errors.New("network error")

	// ErrService means a remote service answered with a non-success status or
	// a malformed payload.
	ErrService = errors.New("service error")

	// ErrDecode means an audio payload could not be decoded for playback.
	ErrDecode = errors.New("decode error")
)

// ErrorKind is the coarse classification of an error, used as a metric and
// log attribute.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindDeviceUnavailable
	KindNetwork
	KindService
	KindDecode
	KindTimeout
	KindCanceled
)

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindDeviceUnavailable:
		return "device_unavailable"
	case KindNetwork:
		return "network"
	case KindService:
		return "service"
	case KindDecode:
		return "decode"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Taxonomy sentinels take precedence over context
// errors, so a network failure caused by a deadline is still KindNetwork.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrService):
		return KindService
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnknown
	}
}
