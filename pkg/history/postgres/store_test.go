package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/jarvis/pkg/history/postgres"
	"github.com/MrWong99/jarvis/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if JARVIS_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("JARVIS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("JARVIS_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a Store on a freshly recreated schema and closes it
// when the test ends.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS utterances CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestStore_AppendList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	session := uuid.NewString()
	at := time.Now().UTC().Truncate(time.Microsecond)

	// Same timestamp on purpose: order must follow append order.
	want := []types.Utterance{
		{Speaker: types.SpeakerAssistant, Text: "Please say 'Hey Jarvis' to begin.", Turn: 1, At: at},
		{Speaker: types.SpeakerUser, Text: "hey jarvis lights on", Turn: 2, At: at},
		{Speaker: types.SpeakerAssistant, Text: "Done.", Turn: 2, At: at},
	}
	for _, u := range want {
		if err := store.Append(ctx, session, u); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Append(ctx, uuid.NewString(), types.Utterance{Text: "other session", At: at}); err != nil {
		t.Fatalf("Append other: %v", err)
	}

	got, err := store.List(ctx, session, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("List returned %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Speaker != want[i].Speaker || got[i].Text != want[i].Text || got[i].Turn != want[i].Turn {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].At.Equal(want[i].At) {
			t.Errorf("entry %d At = %v, want %v", i, got[i].At, want[i].At)
		}
	}

	recent, err := store.List(ctx, session, 2)
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(recent) != 2 || recent[0].Text != want[1].Text || recent[1].Text != want[2].Text {
		t.Errorf("List(limit=2) = %+v", recent)
	}
}

func TestStore_EmptySession(t *testing.T) {
	store := newTestStore(t)
	got, err := store.List(context.Background(), "nobody", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("List = %#v, want empty non-nil slice", got)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
