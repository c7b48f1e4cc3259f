package history_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/grenouille/internal/history"
	"github.com/MrWong99/grenouille/pkg/provider/embeddings"
	embmock "github.com/MrWong99/grenouille/pkg/provider/embeddings/mock"
)

// testDSN skips the test unless GRENOUILLE_TEST_POSTGRES_DSN is set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("GRENOUILLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GRENOUILLE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T, opts ...history.PostgresOption) *history.PostgresStore {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	// Start from a database without the vector extension.
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS assistant_turn_embeddings, assistant_turns`,
		`DROP EXTENSION IF EXISTS vector CASCADE`,
	} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	pool.Close()

	s, err := history.NewPostgresStore(ctx, dsn, opts...)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPostgresStore_AppendRecentSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := range 4 {
		if err := s.Append(ctx, turn(i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Prompt != "computer question 2" || got[1].Prompt != "computer question 3" {
		t.Fatalf("Recent = %v", got)
	}
	if got[1].SpokenFor != 3*time.Second {
		t.Errorf("SpokenFor = %v, want 3s", got[1].SpokenFor)
	}

	found, err := s.Search(ctx, "question", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 4 {
		t.Errorf("Search found %d turns, want 4", len(found))
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	for range 2 {
		if err := history.Migrate(ctx, pool, 0); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
}

func TestNewPostgresStore_CreatesVectorExtension(t *testing.T) {
	emb := &embmock.Provider{EmbedResult: []float32{0, 1}, DimensionsValue: 2, ModelIDValue: "test-embed"}
	s := newTestStore(t, history.WithEmbedder(emb))
	ctx := context.Background()

	// Every pooled connection registers the vector type.
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Append(ctx, turn(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	found, err := s.Search(ctx, "question", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("Search found %d turns, want 1", len(found))
	}
}

func TestPostgresStore_SemanticSearch(t *testing.T) {
	emb := &embmock.Provider{
		EmbedResult:     []float32{1, 0, 0},
		DimensionsValue: 3,
		ModelIDValue:    "test-embed",
	}
	s := newTestStore(t, history.WithEmbedder(emb))
	ctx := context.Background()

	for i := range 3 {
		if err := s.Append(ctx, turn(i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	// Turns without a prompt are not embedded.
	if err := s.Append(ctx, history.Turn{Outcome: history.OutcomeIgnored}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	found, err := s.Search(ctx, "what did I ask", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("Search found %d turns, want 2", len(found))
	}
	calls := emb.Calls()
	if len(calls) != 4 {
		t.Fatalf("Embed calls = %d, want 4 (3 turns + 1 query)", len(calls))
	}
	if calls[3].Kind != embeddings.Query || calls[0].Kind != embeddings.Document {
		t.Errorf("kinds = %v, want documents then a query", calls)
	}
}
