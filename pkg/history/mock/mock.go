// Package mock provides an in-memory [history.Store] for tests.
//
// Unlike a pure stub it actually stores what is appended, so List reflects
// prior Append calls. Set AppendErr or ListErr to inject failures.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/history"
	"github.com/MrWong99/jarvis/pkg/types"
)

var _ history.Store = (*Store)(nil)

// Store is an in-memory history.Store. The zero value is ready to use.
type Store struct {
	mu sync.Mutex

	// AppendErr is returned by Append when non-nil; nothing is stored.
	AppendErr error

	// ListErr is returned by List when non-nil.
	ListErr error

	sessions    map[string][]types.Utterance
	appendCalls int
}

// Append implements [history.Store].
func (s *Store) Append(_ context.Context, sessionID string, u types.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if s.AppendErr != nil {
		return s.AppendErr
	}
	if s.sessions == nil {
		s.sessions = make(map[string][]types.Utterance)
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], u)
	return nil
}

// List implements [history.Store].
func (s *Store) List(_ context.Context, sessionID string, limit int) ([]types.Utterance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	all := s.sessions[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]types.Utterance{}, all...), nil
}

// AppendCalls returns how many times Append was called.
func (s *Store) AppendCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendCalls
}
