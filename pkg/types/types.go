// Package types defines the shared types used across all Jarvis packages.
//
// These types form the lingua franca between audio devices, remote providers,
// the history store, and the orchestrator. Each package defines its own domain
// types; cross-cutting data structures live here to avoid circular imports.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Speaker identifies who produced an [Utterance].
type Speaker int

const (
	// SpeakerUser marks recognized user speech.
	SpeakerUser Speaker = iota

	// SpeakerAssistant marks assistant replies and prompts.
	SpeakerAssistant
)

// String returns the lower-case name of the speaker as used in logs, metrics,
// and the persisted history.
func (s Speaker) String() string {
	switch s {
	case SpeakerUser:
		return "user"
	case SpeakerAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// ParseSpeaker is the inverse of [Speaker.String]. Unknown names map to
// SpeakerUser and ok == false.
func ParseSpeaker(name string) (s Speaker, ok bool) {
	switch strings.ToLower(name) {
	case "user":
		return SpeakerUser, true
	case "assistant", "jarvis":
		return SpeakerAssistant, true
	default:
		return SpeakerUser, false
	}
}

// MarshalText implements encoding.TextMarshaler so speakers serialise as
// strings in JSON payloads.
func (s Speaker) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Speaker) UnmarshalText(text []byte) error {
	parsed, ok := ParseSpeaker(string(text))
	if !ok {
		return fmt.Errorf("types: unknown speaker %q", text)
	}
	*s = parsed
	return nil
}

// Utterance is a single entry in the conversation history. Utterances are
// immutable once created.
type Utterance struct {
	// Speaker is who said it.
	Speaker Speaker `json:"speaker"`

	// Text is the recognized or generated text, verbatim.
	Text string `json:"text"`

	// Turn is the orchestrator turn number that produced the utterance.
	Turn uint64 `json:"turn"`

	// At is when the text became available.
	At time.Time `json:"at"`
}

// AudioTake is one complete recorded audio segment, from start-of-capture to
// stop-of-capture, already wrapped in a container format ready for upload.
//
// A take is owned by the capture device until it is handed to a
// transcription provider, and is consumed exactly once.
type AudioTake struct {
	// ID uniquely identifies the take (used for archive file names).
	ID string

	// Data is the encoded audio (WAV by default).
	Data []byte

	// Filename is the name presented to upload endpoints (e.g., "take.wav").
	Filename string

	// ContentType is the MIME type of Data (e.g., "audio/wav").
	ContentType string

	// SampleRate in Hz of the encoded audio.
	SampleRate int

	// Channels in the encoded audio. 1 for mono.
	Channels int

	// Duration is the length of the recorded audio.
	Duration time.Duration
}

// Empty reports whether the take carries no audio bytes at all.
func (t AudioTake) Empty() bool {
	return len(t.Data) == 0
}

// RecognitionResult is the text recognized from one [AudioTake].
type RecognitionResult struct {
	Text string
}

// ReplyPayload is the conversational backend's answer to one message: the
// reply text plus synthesized speech for it.
type ReplyPayload struct {
	// Text is the reply text.
	Text string

	// Audio is the synthesized speech, already decoded from any transport
	// encoding (e.g., base64). MP3 unless the provider documents otherwise.
	Audio []byte
}
