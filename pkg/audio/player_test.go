package audio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faiface/beep"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/audio/mock"
	"github.com/MrWong99/jarvis/pkg/types"
)

// silence is a seekable stream of n zero samples.
type silence struct {
	n, pos int
	closed bool
}

func (s *silence) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.n {
		return 0, false
	}
	k := min(len(samples), s.n-s.pos)
	for i := range k {
		samples[i] = [2]float64{}
	}
	s.pos += k
	return k, true
}

func (s *silence) Err() error { return nil }
func (s *silence) Len() int { return s.n }
func (s *silence) Position() int { return s.pos }
func (s *silence) Seek(p int) error { s.pos = p; return nil }
func (s *silence) Close() error { s.closed = true; return nil }
func (s *silence) String() string { return "silence" }

func silenceDecoder(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	if string(data) == "garbage" {
		return nil, beep.Format{}, types.ErrDecode
	}
	return &silence{n: 1000}, beep.Format{SampleRate: 22050, NumChannels: 1, Precision: 2}, nil
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err, ok := <-ch:
		if !ok {
			t.Fatal("completion channel closed without a value")
		}
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback completion")
		return nil
	}
}

func waitStarted(t *testing.T, sink *mock.Sink) {
	t.Helper()
	select {
	case <-sink.Started():
	case <-time.After(2 * time.Second):
		t.Fatal("sink never started")
	}
}

func TestDevicePlayer_DrainsAndCompletesOnce(t *testing.T) {
	t.Parallel()

	sink := mock.NewSink(false)
	p := audio.NewDevicePlayer(sink, audio.WithDecoder(silenceDecoder))

	done, err := p.Play(context.Background(), []byte("mp3"))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Errorf("completion = %v, want nil", err)
	}
	if _, ok := <-done; ok {
		t.Error("completion channel delivered a second value")
	}
	if sink.Samples() != 1000 {
		t.Errorf("sink drained %d samples, want 1000", sink.Samples())
	}
}

func TestDevicePlayer_LastCallWins(t *testing.T) {
	t.Parallel()

	sink := mock.NewSink(true)
	p := audio.NewDevicePlayer(sink, audio.WithDecoder(silenceDecoder))
	ctx := context.Background()

	first, err := p.Play(ctx, []byte("one"))
	if err != nil {
		t.Fatalf("Play one: %v", err)
	}
	waitStarted(t, sink)

	second, err := p.Play(ctx, []byte("two"))
	if err != nil {
		t.Fatalf("Play two: %v", err)
	}
	if err := waitDone(t, first); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("first completion = %v, want ErrPreempted", err)
	}

	waitStarted(t, sink)
	sink.Release()
	if err := waitDone(t, second); err != nil {
		t.Errorf("second completion = %v, want nil", err)
	}
	if sink.Calls() != 2 {
		t.Errorf("sink calls = %d, want 2", sink.Calls())
	}
}

func TestDevicePlayer_Stop(t *testing.T) {
	t.Parallel()

	sink := mock.NewSink(true)
	p := audio.NewDevicePlayer(sink, audio.WithDecoder(silenceDecoder))

	done, err := p.Play(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitStarted(t, sink)
	p.Stop()
	if err := waitDone(t, done); !errors.Is(err, audio.ErrPreempted) {
		t.Errorf("completion = %v, want ErrPreempted", err)
	}

	// Stopping again with nothing playing is harmless.
	p.Stop()
}

func TestDevicePlayer_DecodeFailurePlaysNothing(t *testing.T) {
	t.Parallel()

	sink := mock.NewSink(false)
	p := audio.NewDevicePlayer(sink, audio.WithDecoder(silenceDecoder))

	done, err := p.Play(context.Background(), []byte("garbage"))
	if !errors.Is(err, types.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if done != nil {
		t.Error("completion channel returned for undecodable payload")
	}
	if sink.Calls() != 0 {
		t.Errorf("sink calls = %d, want 0", sink.Calls())
	}
}

func TestDevicePlayer_SinkError(t *testing.T) {
	t.Parallel()

	sink := mock.NewSink(false)
	sink.PlayErr = errors.New("device lost")
	p := audio.NewDevicePlayer(sink, audio.WithDecoder(silenceDecoder))

	done, err := p.Play(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := waitDone(t, done); err == nil || errors.Is(err, audio.ErrPreempted) {
		t.Errorf("completion = %v, want device error", err)
	}
}

func TestDecodeMP3_RejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, payload := range [][]byte{nil, []byte("definitely not an mp3 stream")} {
		if _, _, err := audio.DecodeMP3(payload); !errors.Is(err, types.ErrDecode) {
			t.Errorf("DecodeMP3(%q) err = %v, want ErrDecode", payload, err)
		}
	}
}

func TestSilent(t *testing.T) {
	t.Parallel()
	s := &silence{n: 2000}
	if err := (audio.Silent{}).Play(context.Background(), s, beep.Format{SampleRate: 24000, NumChannels: 1, Precision: 2}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if s.pos != s.n {
		t.Errorf("consumed %d of %d samples", s.pos, s.n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (audio.Silent{}).Play(ctx, &silence{n: 10}, beep.Format{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Play = %v, want context.Canceled", err)
	}
}
