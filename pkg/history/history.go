// Package history defines the persistent conversation log.
//
// The orchestrator's in-memory history is authoritative for a running
// process; a [Store] mirrors every appended utterance so sessions survive a
// restart and can be inspected over HTTP. Stores are append-only: there is no
// update or delete.
package history

import (
	"context"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Store persists utterances per session.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append adds u to the end of the session's log.
	Append(ctx context.Context, sessionID string, u types.Utterance) error

	// List returns the session's utterances in append order. A positive limit
	// returns only the most recent limit entries, still oldest first.
	List(ctx context.Context, sessionID string, limit int) ([]types.Utterance, error)
}
