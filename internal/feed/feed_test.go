package feed_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/jarvis/internal/feed"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	historymock "github.com/MrWong99/jarvis/pkg/history/mock"
	"github.com/MrWong99/jarvis/pkg/types"
)

// fakeController is a scripted [feed.Controller].
type fakeController struct {
	mu        sync.Mutex
	snap      orchestrator.Snapshot
	toggleErr error
	toggles   int
	subs      []chan orchestrator.Update
}

func (f *fakeController) Toggle() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles++
	return f.toggleErr
}

func (f *fakeController) Snapshot() orchestrator.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Subscribe(buf int) (<-chan orchestrator.Update, func()) {
	ch := make(chan orchestrator.Update, buf)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

// waitSubscriber blocks until the n-th subscription exists.
func (f *fakeController) waitSubscriber(t *testing.T, n int) chan orchestrator.Update {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.subs) >= n {
			ch := f.subs[n-1]
			f.mu.Unlock()
			return ch
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber #%d within deadline", n)
	return nil
}

func newServer(t *testing.T, ctl feed.Controller, opts ...feed.Option) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	feed.New(ctl, opts...).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

var sampleHistory = []types.Utterance{
	{Speaker: types.SpeakerUser, Text: "hey jarvis what time is it", Turn: 1},
	{Speaker: types.SpeakerAssistant, Text: "It is noon.", Turn: 1},
	{Speaker: types.SpeakerUser, Text: "thanks", Turn: 2},
}

// ─── REST ────────────────────────────────────────────────────────────────────

func TestToggle(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{snap: orchestrator.Snapshot{State: orchestrator.Idle, Turn: 3}}
	srv := newServer(t, ctl)

	resp, err := http.Post(srv.URL+"/api/toggle", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	st := decode[feed.State](t, resp)
	if st.State != "idle" || st.Turn != 3 {
		t.Errorf("body = %+v", st)
	}
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.toggles != 1 {
		t.Errorf("toggles = %d, want 1", ctl.toggles)
	}
}

func TestToggle_Stopped(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{toggleErr: orchestrator.ErrStopped}
	srv := newServer(t, ctl)

	resp, err := http.Post(srv.URL+"/api/toggle", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestToggle_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	srv := newServer(t, &fakeController{})
	resp, err := http.Get(srv.URL + "/api/toggle")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

func TestState(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{snap: orchestrator.Snapshot{
		State:           orchestrator.AwaitingReply,
		WakeWordPending: true,
		Turn:            2,
		History:         sampleHistory,
	}}
	srv := newServer(t, ctl)

	resp, err := http.Get(srv.URL + "/api/state")
	if err != nil {
		t.Fatal(err)
	}
	st := decode[feed.State](t, resp)
	want := feed.State{State: "awaiting_reply", WakeWordPending: true, Turn: 2, HistoryLength: 3}
	if st != want {
		t.Errorf("state = %+v, want %+v", st, want)
	}
}

func TestHistory_InMemory(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{snap: orchestrator.Snapshot{History: sampleHistory}}
	srv := newServer(t, ctl)

	resp, err := http.Get(srv.URL + "/api/history?limit=2")
	if err != nil {
		t.Fatal(err)
	}
	h := decode[feed.HistoryResponse](t, resp)
	if len(h.Utterances) != 2 || h.Utterances[0].Text != "It is noon." || h.Utterances[1].Text != "thanks" {
		t.Errorf("utterances = %+v", h.Utterances)
	}
	if h.Utterances[0].Speaker != types.SpeakerAssistant {
		t.Errorf("speaker = %v, want assistant", h.Utterances[0].Speaker)
	}
}

func TestHistory_EmptyIsArray(t *testing.T) {
	t.Parallel()
	srv := newServer(t, &fakeController{})
	resp, err := http.Get(srv.URL + "/api/history")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if string(raw["utterances"]) != "[]" {
		t.Errorf("utterances = %s, want []", raw["utterances"])
	}
}

func TestHistory_Store(t *testing.T) {
	t.Parallel()
	store := &historymock.Store{}
	for _, u := range sampleHistory {
		if err := store.Append(context.Background(), "kitchen", u); err != nil {
			t.Fatal(err)
		}
	}
	srv := newServer(t, &fakeController{}, feed.WithHistory(store, "kitchen"))

	resp, err := http.Get(srv.URL + "/api/history?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	h := decode[feed.HistoryResponse](t, resp)
	if h.SessionID != "kitchen" {
		t.Errorf("session_id = %q", h.SessionID)
	}
	if len(h.Utterances) != 1 || h.Utterances[0].Text != "thanks" {
		t.Errorf("utterances = %+v", h.Utterances)
	}
}

func TestHistory_Errors(t *testing.T) {
	t.Parallel()
	store := &historymock.Store{}
	store.ListErr = errors.New("connection reset")
	srv := newServer(t, &fakeController{}, feed.WithHistory(store, "s"))

	tests := []struct {
		query string
		want  int
	}{
		{"?limit=abc", http.StatusBadRequest},
		{"?limit=-1", http.StatusBadRequest},
		{"?limit=5000", http.StatusBadRequest},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + "/api/history" + tt.query)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %q: status = %d, want %d", tt.query, resp.StatusCode, tt.want)
		}
	}
}

// ─── Websocket ───────────────────────────────────────────────────────────────

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) feed.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var m feed.Message
	if err := wsjson.Read(ctx, conn, &m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestEvents_StreamsUpdates(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{snap: orchestrator.Snapshot{State: orchestrator.Idle, WakeWordPending: true}}
	srv := newServer(t, ctl)
	conn := dial(t, srv)

	first := read(t, conn)
	if first.Type != "state" || first.State == nil || !first.State.WakeWordPending {
		t.Fatalf("first message = %+v, want initial state", first)
	}

	updates := ctl.waitSubscriber(t, 1)
	updates <- orchestrator.Update{Kind: orchestrator.UpdateState, Snapshot: orchestrator.Snapshot{State: orchestrator.Recording, Turn: 1}}
	updates <- orchestrator.Update{Kind: orchestrator.UpdateUtterance, Utterance: types.Utterance{Speaker: types.SpeakerUser, Text: "hey jarvis", Turn: 1}}
	updates <- orchestrator.Update{Kind: orchestrator.UpdateNotice, Notice: orchestrator.Notice{
		Turn: 1, Stage: orchestrator.StageReply, Kind: types.KindNetwork,
	}}

	if m := read(t, conn); m.Type != "state" || m.State.State != "recording" || m.State.Turn != 1 {
		t.Errorf("state message = %+v", m)
	}
	if m := read(t, conn); m.Type != "utterance" || m.Utterance.Text != "hey jarvis" || m.Utterance.Speaker != types.SpeakerUser {
		t.Errorf("utterance message = %+v", m)
	}
	m := read(t, conn)
	if m.Type != "notice" || m.Notice.Kind != "network" || m.Notice.Stage != "reply" {
		t.Errorf("notice message = %+v", m)
	}
	if m.Notice != nil && m.Notice.Message != "Could not reach the assistant service." {
		t.Errorf("notice text = %q", m.Notice.Message)
	}
}

func TestEvents_ClosesWhenAssistantStops(t *testing.T) {
	t.Parallel()
	ctl := &fakeController{}
	srv := newServer(t, ctl)
	conn := dial(t, srv)
	_ = read(t, conn)

	close(ctl.waitSubscriber(t, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want StatusGoingAway", got, err)
	}
}

func TestEvents_RejectsPlainHTTP(t *testing.T) {
	t.Parallel()
	srv := newServer(t, &fakeController{})
	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode < 400 {
		t.Errorf("status = %d, want a client error for a non-upgrade request", resp.StatusCode)
	}
}
