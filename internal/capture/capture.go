package capture

import (
	"context"
	"errors"

	"github.com/sidenote-app/capture/internal/audio"
)

// State tracks a capture source through its lifecycle. Frames are
// emitted only while Active. Stop from any state tears capture down and
// returns the source to Idle, so a failed source can be restarted.
type State int32

const (
	StateIdle State = iota
	StateRequestingPermission
	StateNegotiating
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestingPermission:
		return "requesting_permission"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Failure taxonomy. Every failure is local to one source; the other
// source and the synchronizer are never affected.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrNoDevice          = errors.New("no capture device available")
	ErrFormatNegotiation = errors.New("format negotiation failed")
	ErrStreamFatal       = errors.New("capture stream terminated")
)

// Sink receives everything a running source produces. Implementations
// must not block: callbacks arrive on native audio threads.
type Sink interface {
	OnCanonicalFrame(src audio.Source, pcm []byte)
	OnLevel(src audio.Source, level float64)
	OnSourceState(src audio.Source, state State)
}

// Source owns one input's lifecycle: authorization, format negotiation,
// conversion and frame emission.
type Source interface {
	// Start blocks until the source is Active or has failed. The
	// permission wait is unbounded; cancel ctx to abandon it.
	Start(ctx context.Context) error
	// Stop tears down capture and returns the source to Idle. It is
	// idempotent and guarantees no further sink callbacks after it
	// returns.
	Stop()
	State() State
	Tag() audio.Source
	SetSink(Sink)
}
