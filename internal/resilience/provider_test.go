package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	conversemock "github.com/MrWong99/jarvis/pkg/provider/converse/mock"
	transcribemock "github.com/MrWong99/jarvis/pkg/provider/transcribe/mock"
	"github.com/MrWong99/jarvis/pkg/types"
)

func TestTranscriber_PassesThrough(t *testing.T) {
	t.Parallel()
	inner := &transcribemock.Provider{Result: types.RecognitionResult{Text: "hey jarvis"}}
	tr := NewTranscriber(inner, CircuitBreakerConfig{})

	got, err := tr.Transcribe(context.Background(), types.AudioTake{Data: []byte("RIFF")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "hey jarvis" {
		t.Errorf("text = %q, want %q", got.Text, "hey jarvis")
	}
	if tr.Breaker().Name() != "transcription" {
		t.Errorf("breaker name = %q, want default", tr.Breaker().Name())
	}
}

func TestTranscriber_OpensAndFailsFast(t *testing.T) {
	t.Parallel()
	backendErr := fmt.Errorf("jarvis: transcribe: %w", types.ErrNetwork)
	inner := &transcribemock.Provider{Err: backendErr}
	tr := NewTranscriber(inner, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := tr.Transcribe(context.Background(), types.AudioTake{})
		if !errors.Is(err, types.ErrNetwork) {
			t.Fatalf("call %d: err = %v, want the backend error", i, err)
		}
		if errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d: breaker should still be closed", i)
		}
	}

	_, err := tr.Transcribe(context.Background(), types.AudioTake{})
	if !errors.Is(err, ErrCircuitOpen) || !errors.Is(err, types.ErrNetwork) {
		t.Fatalf("err = %v, want ErrCircuitOpen wrapped as ErrNetwork", err)
	}
	if types.KindOf(err) != types.KindNetwork {
		t.Errorf("KindOf = %v, want network", types.KindOf(err))
	}
	if inner.CallCount() != 2 {
		t.Errorf("inner calls = %d, want 2 (open breaker must not call through)", inner.CallCount())
	}
}

func TestConversation_OpensAndRecovers(t *testing.T) {
	t.Parallel()
	inner := &conversemock.Provider{Err: fmt.Errorf("jarvis: chat: %w", types.ErrService)}
	c := NewConversation(inner, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	if _, err := c.Converse(context.Background(), "hello"); err == nil {
		t.Fatal("expected error from failing backend")
	}
	if _, err := c.Converse(context.Background(), "hello"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if n := len(inner.Messages()); n != 1 {
		t.Fatalf("inner calls = %d, want 1", n)
	}

	inner.Err = nil
	inner.Reply = types.ReplyPayload{Text: "Hello!", Audio: []byte{0xff, 0xfb}}
	time.Sleep(15 * time.Millisecond)

	got, err := c.Converse(context.Background(), "hello")
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if got.Text != "Hello!" {
		t.Errorf("reply = %q", got.Text)
	}
	if c.Breaker().State() != StateClosed {
		t.Errorf("state = %v, want closed", c.Breaker().State())
	}
}

func TestConversation_CancelledCallsDoNotTrip(t *testing.T) {
	t.Parallel()
	inner := &conversemock.Provider{Block: true}
	c := NewConversation(inner, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		if _, err := c.Converse(ctx, "hello"); !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	}
	if c.Breaker().State() != StateClosed {
		t.Errorf("state = %v, want closed", c.Breaker().State())
	}
}

func TestTranscriber_ExpiredCallsTrip(t *testing.T) {
	t.Parallel()
	inner := &transcribemock.Provider{Block: true}
	tr := NewTranscriber(inner, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithCancelCause(context.Background())
		cancel(context.DeadlineExceeded)
		_, err := tr.Transcribe(ctx, types.AudioTake{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("call %d: err = %v, want context.DeadlineExceeded", i, err)
		}
	}
	if tr.Breaker().State() != StateOpen {
		t.Fatalf("state = %v, want open", tr.Breaker().State())
	}
	if _, err := tr.Transcribe(context.Background(), types.AudioTake{}); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestConversation_TimedOutCallsTrip(t *testing.T) {
	t.Parallel()
	inner := &conversemock.Provider{Block: true}
	c := NewConversation(inner, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Converse(ctx, "hello"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if c.Breaker().State() != StateOpen {
		t.Errorf("state = %v, want open", c.Breaker().State())
	}
}
