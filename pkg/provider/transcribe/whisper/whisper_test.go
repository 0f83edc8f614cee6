package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/transcribe/whisper"
	"github.com/MrWong99/jarvis/pkg/types"
)

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. It increments calls on every matched
// request and records the language hint.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32, lang *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if lang != nil {
			lang.Store(r.FormValue("language"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var lang atomic.Value
	srv := newMockServer(t, "  hey jarvis  \n", &calls, &lang)

	p, err := whisper.New(srv.URL, whisper.WithLanguage("de"), whisper.WithModel("small"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := p.Transcribe(context.Background(), types.AudioTake{Data: []byte("RIFF"), ContentType: "audio/wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hey jarvis" {
		t.Errorf("Text = %q, want %q", res.Text, "hey jarvis")
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if got, _ := lang.Load().(string); got != "de" {
		t.Errorf("language = %q, want de", got)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p, _ := whisper.New(srv.URL)
	_, err := p.Transcribe(context.Background(), types.AudioTake{Data: []byte("RIFF")})
	if !errors.Is(err, types.ErrService) {
		t.Errorf("err = %v, want ErrService", err)
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, "never", nil, nil)
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Transcribe(ctx, types.AudioTake{Data: []byte("RIFF")})
	if !errors.Is(err, types.ErrNetwork) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want ErrNetwork wrapping context.Canceled", err)
	}
}
