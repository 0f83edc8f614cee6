package openai_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/transcribe/openai"
	"github.com/MrWong99/jarvis/pkg/types"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := openai.New("", "whisper-1"); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var model atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		model.Store(r.FormValue("model"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hey jarvis"}`))
	}))
	t.Cleanup(srv.Close)

	p, err := openai.New("sk-test", "", openai.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Transcribe(context.Background(), types.AudioTake{Data: []byte("RIFF"), Filename: "t.wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hey jarvis" {
		t.Errorf("Text = %q", res.Text)
	}
	if got, _ := model.Load().(string); got != openai.DefaultModel {
		t.Errorf("model = %q, want %q", got, openai.DefaultModel)
	}
}

func TestTranscribe_APIErrorIsServiceError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	t.Cleanup(srv.Close)

	p, _ := openai.New("sk-test", "whisper-1", openai.WithBaseURL(srv.URL))
	_, err := p.Transcribe(context.Background(), types.AudioTake{Data: []byte("RIFF")})
	if !errors.Is(err, types.ErrService) {
		t.Errorf("err = %v, want ErrService", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1 (no retry)", calls.Load())
	}
}
