package types

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestSpeaker_String(t *testing.T) {
	tests := []struct {
		s    Speaker
		want string
	}{
		{SpeakerUser, "user"},
		{SpeakerAssistant, "assistant"},
		{Speaker(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Speaker(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestParseSpeaker(t *testing.T) {
	tests := []struct {
		in     string
		want   Speaker
		wantOK bool
	}{
		{"user", SpeakerUser, true},
		{"Assistant", SpeakerAssistant, true},
		{"jarvis", SpeakerAssistant, true},
		{"narrator", SpeakerUser, false},
	}
	for _, tt := range tests {
		got, ok := ParseSpeaker(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseSpeaker(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestUtterance_JSONSpeakerIsString(t *testing.T) {
	data, err := json.Marshal(Utterance{Speaker: SpeakerAssistant, Text: "hi"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["speaker"] != "assistant" {
		t.Errorf("speaker = %v, want %q", raw["speaker"], "assistant")
	}
}

func TestAudioTake_Empty(t *testing.T) {
	if !(AudioTake{}).Empty() {
		t.Error("zero take should be empty")
	}
	if (AudioTake{Data: []byte{1}}).Empty() {
		t.Error("take with data should not be empty")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"device", fmt.Errorf("malgo: start: %w", ErrDeviceUnavailable), KindDeviceUnavailable},
		{"network", fmt.Errorf("jarvis: %w: dial tcp", ErrNetwork), KindNetwork},
		{"service", fmt.Errorf("jarvis: %w: HTTP 500", ErrService), KindService},
		{"decode", fmt.Errorf("audio: %w", ErrDecode), KindDecode},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", fmt.Errorf("wrapped: %w", context.Canceled), KindCanceled},
		{"network beats deadline", fmt.Errorf("%w: %w", ErrNetwork, context.DeadlineExceeded), KindNetwork},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
