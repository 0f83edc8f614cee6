// Package orchestrator sequences a Jarvis conversation turn: capture,
// transcription, wake-word gating, dispatch to the conversational backend,
// and reply playback.
//
// The package has two layers. [Machine] is a pure finite-state machine:
// [Machine.Step] maps the current value and one [Event] to the next value and
// a list of [Effect]s, and never performs I/O. [Orchestrator] is the runtime
// around it: a single goroutine reads events from a channel, applies Step,
// and executes the effects against the capture device, the remote providers,
// and the player. Asynchronous completions are posted back as events, so all
// state changes happen on that one goroutine, in order.
//
// Every awaiting stage is bounded by a timer. When it expires the in-flight
// call is cancelled and the turn is abandoned; a completion that arrives for
// an abandoned turn carries a stale turn number and is ignored.
package orchestrator

import "time"

// State is the orchestrator's coarse phase.
type State int

const (
	// Idle waits for the user to start a take.
	Idle State = iota

	// Recording accumulates microphone audio.
	Recording

	// AwaitingTranscription waits for the take to be finalized and
	// transcribed.
	AwaitingTranscription

	// AwaitingReply waits for the conversational backend.
	AwaitingReply

	// Speaking plays the reply.
	Speaking
)

// String returns the snake_case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case AwaitingTranscription:
		return "awaiting_transcription"
	case AwaitingReply:
		return "awaiting_reply"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so states serialise by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Busy reports whether a turn is past recording and not yet finished. A new
// take cannot start while busy.
func (s State) Busy() bool {
	return s == AwaitingTranscription || s == AwaitingReply || s == Speaking
}

// Stage names an awaiting phase that is bounded by a timeout.
type Stage int

const (
	StageNone Stage = iota
	StageTranscription
	StageReply
	StagePlayback
)

// String returns the lower-case name of the stage.
func (s Stage) String() string {
	switch s {
	case StageTranscription:
		return "transcription"
	case StageReply:
		return "reply"
	case StagePlayback:
		return "playback"
	default:
		return "none"
	}
}

// stageOf returns the stage whose timer guards state s.
func stageOf(s State) Stage {
	switch s {
	case AwaitingTranscription:
		return StageTranscription
	case AwaitingReply:
		return StageReply
	case Speaking:
		return StagePlayback
	default:
		return StageNone
	}
}

// Timeouts bound each awaiting stage. A field that is zero or negative takes
// its value from [DefaultTimeouts]; no stage is ever unbounded.
type Timeouts struct {
	Transcription time.Duration
	Reply         time.Duration
	Playback      time.Duration
}

// DefaultTimeouts returns the stage bounds used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Transcription: 30 * time.Second,
		Reply:         60 * time.Second,
		Playback:      5 * time.Minute,
	}
}

// withDefaults fills every unset field from [DefaultTimeouts].
func (t Timeouts) withDefaults() Timeouts {
	def := DefaultTimeouts()
	if t.Transcription <= 0 {
		t.Transcription = def.Transcription
	}
	if t.Reply <= 0 {
		t.Reply = def.Reply
	}
	if t.Playback <= 0 {
		t.Playback = def.Playback
	}
	return t
}

func (t Timeouts) forStage(s Stage) time.Duration {
	switch s {
	case StageTranscription:
		return t.Transcription
	case StageReply:
		return t.Reply
	case StagePlayback:
		return t.Playback
	default:
		return 0
	}
}
