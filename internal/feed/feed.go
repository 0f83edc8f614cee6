// Package feed exposes the assistant over HTTP: a remote push-to-talk toggle,
// the current state, the conversation log, and a websocket stream of live
// updates.
//
// Routes registered by [Server.Register]:
//
//	POST /api/toggle   start or finish a take (202, current state)
//	GET  /api/state    current state
//	GET  /api/history  conversation log, ?limit=N for the most recent entries
//	GET  /api/events   websocket; one JSON message per update
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/orchestrator"
	"github.com/MrWong99/jarvis/pkg/history"
	"github.com/MrWong99/jarvis/pkg/types"
)

const (
	defaultSubscriberBuffer = 32
	writeTimeout            = 5 * time.Second
	maxHistoryLimit         = 1000
)

// Controller is the part of the orchestrator the feed drives.
type Controller interface {
	Toggle() error
	Snapshot() orchestrator.Snapshot
	Subscribe(buf int) (<-chan orchestrator.Update, func())
}

var _ Controller = (*orchestrator.Orchestrator)(nil)

// Server serves the feed routes. Create it with [New].
type Server struct {
	ctl       Controller
	store     history.Store
	sessionID string
	metrics   *observe.Metrics
	origins   []string
	buffer    int
}

// Option configures a [Server].
type Option func(*Server)

// WithHistory serves /api/history from store instead of the in-memory log.
func WithHistory(store history.Store, sessionID string) Option {
	return func(s *Server) {
		s.store = store
		s.sessionID = sessionID
	}
}

// WithMetrics records connected websocket clients to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithOriginPatterns allows cross-origin websocket clients whose Origin host
// matches one of patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// WithSubscriberBuffer sets how many updates may queue per websocket client
// before further updates to that client are dropped.
func WithSubscriberBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// New returns a Server for ctl.
func New(ctl Controller, opts ...Option) *Server {
	s := &Server{
		ctl:     ctl,
		metrics: observe.DefaultMetrics(),
		buffer:  defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the feed routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/toggle", s.handleToggle)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// ─── Wire format ─────────────────────────────────────────────────────────────

// State is the JSON form of a snapshot without the history.
type State struct {
	State           string `json:"state"`
	WakeWordPending bool   `json:"wake_word_pending"`
	Turn            uint64 `json:"turn"`
	HistoryLength   int    `json:"history_length"`
}

// NoticeMessage is the JSON form of an abandoned turn.
type NoticeMessage struct {
	Turn    uint64 `json:"turn"`
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Message is one websocket frame. Type is "state", "utterance" or "notice";
// the matching field is set.
type Message struct {
	Type      string           `json:"type"`
	State     *State           `json:"state,omitempty"`
	Utterance *types.Utterance `json:"utterance,omitempty"`
	Notice    *NoticeMessage   `json:"notice,omitempty"`
}

// HistoryResponse is the body of GET /api/history.
type HistoryResponse struct {
	SessionID  string            `json:"session_id,omitempty"`
	Utterances []types.Utterance `json:"utterances"`
}

func stateOf(snap orchestrator.Snapshot) *State {
	return &State{
		State:           snap.State.String(),
		WakeWordPending: snap.WakeWordPending,
		Turn:            snap.Turn,
		HistoryLength:   len(snap.History),
	}
}

func messageOf(u orchestrator.Update) Message {
	switch u.Kind {
	case orchestrator.UpdateUtterance:
		utt := u.Utterance
		return Message{Type: "utterance", Utterance: &utt}
	case orchestrator.UpdateNotice:
		n := u.Notice
		return Message{Type: "notice", Notice: &NoticeMessage{
			Turn:    n.Turn,
			Stage:   n.Stage.String(),
			Kind:    n.Kind.String(),
			Message: n.Message(),
		}}
	default:
		return Message{Type: "state", State: stateOf(u.Snapshot)}
	}
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Toggle(); err != nil {
		if errors.Is(err, orchestrator.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, "assistant is shutting down")
			return
		}
		observe.Logger(r.Context()).Error("feed: toggle failed", "err", err)
		writeError(w, http.StatusInternalServerError, "toggle failed")
		return
	}
	// The toggle is applied asynchronously; the state returned is the one
	// it was queued against.
	writeJSON(w, http.StatusAccepted, stateOf(s.ctl.Snapshot()))
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateOf(s.ctl.Snapshot()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 0 and 1000")
			return
		}
		limit = n
	}

	if s.store == nil {
		all := s.ctl.Snapshot().History
		if limit > 0 && len(all) > limit {
			all = all[len(all)-limit:]
		}
		if all == nil {
			all = []types.Utterance{}
		}
		writeJSON(w, http.StatusOK, HistoryResponse{Utterances: all})
		return
	}

	utts, err := s.store.List(r.Context(), s.sessionID, limit)
	if err != nil {
		observe.Logger(r.Context()).Error("feed: list history", "session_id", s.sessionID, "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{SessionID: s.sessionID, Utterances: utts})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		// Accept has already written the error response.
		slog.Debug("feed: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()

	updates, unsubscribe := s.ctl.Subscribe(s.buffer)
	defer unsubscribe()

	metricsCtx := context.WithoutCancel(r.Context())
	s.metrics.FeedSubscribers.Add(metricsCtx, 1)
	defer s.metrics.FeedSubscribers.Add(metricsCtx, -1)

	// Clients only listen; CloseRead answers control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	if err := s.send(ctx, conn, Message{Type: "state", State: stateOf(s.ctl.Snapshot())}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "assistant stopped")
				return
			}
			if err := s.send(ctx, conn, messageOf(u)); err != nil {
				slog.Debug("feed: websocket write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, m Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, m)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("feed: encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
