package jarvis_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/transcribe/jarvis"
	"github.com/MrWong99/jarvis/pkg/types"
)

func newServer(t *testing.T, h http.HandlerFunc) *jarvis.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := jarvis.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestTranscribe_UploadsAudioFile(t *testing.T) {
	t.Parallel()

	var gotPath, gotName, gotType string
	var gotData []byte
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		f, hdr, err := r.FormFile("audio_file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotData, _ = io.ReadAll(f)
		gotName = hdr.Filename
		gotType = hdr.Header.Get("Content-Type")
		_, _ = w.Write([]byte(`{"transcript":"Hey Jarvis what time is it"}`))
	})

	take := types.AudioTake{Data: []byte("RIFFdata"), Filename: "take-1.wav", ContentType: "audio/wav"}
	res, err := c.Transcribe(context.Background(), take)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "Hey Jarvis what time is it" {
		t.Errorf("Text = %q", res.Text)
	}
	if gotPath != "/api/transcribe" {
		t.Errorf("path = %q, want /api/transcribe", gotPath)
	}
	if gotName != "take-1.wav" || gotType != "audio/wav" || string(gotData) != "RIFFdata" {
		t.Errorf("upload = (%q, %q, %q)", gotName, gotType, gotData)
	}
}

func TestTranscribe_EmptyTranscriptIsValid(t *testing.T) {
	t.Parallel()
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"transcript":""}`))
	})
	res, err := c.Transcribe(context.Background(), types.AudioTake{Data: []byte{1}})
	if err != nil || res.Text != "" {
		t.Errorf("Transcribe = (%q, %v), want empty text and nil error", res.Text, err)
	}
}

func TestTranscribe_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: types.ErrService,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>"))
			},
			want: types.ErrService,
		},
		{
			name: "missing transcript",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"text":"wrong field"}`))
			},
			want: types.ErrService,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newServer(t, tt.handler)
			_, err := c.Transcribe(context.Background(), types.AudioTake{Data: []byte{1}})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTranscribe_Unreachable(t *testing.T) {
	t.Parallel()
	c, err := jarvis.New("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Transcribe(context.Background(), types.AudioTake{Data: []byte{1}})
	if !errors.Is(err, types.ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()
	c, err := jarvis.New("")
	if err != nil {
		t.Fatalf("New(\"\"): %v", err)
	}
	if c.BaseURL() != jarvis.DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.BaseURL(), jarvis.DefaultBaseURL)
	}
	if _, err := jarvis.New("ftp://example.com"); err == nil {
		t.Error("expected error for non-HTTP base URL")
	}
}
