package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/grenouille/pkg/provider/embeddings"
)

// Schema creates the turns table and its indexes. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS assistant_turns (
    id           BIGSERIAL    PRIMARY KEY,
    at           TIMESTAMPTZ  NOT NULL DEFAULT now(),
    prompt       TEXT         NOT NULL DEFAULT '',
    reply        TEXT         NOT NULL DEFAULT '',
    reply_type   TEXT         NOT NULL DEFAULT '',
    outcome      TEXT         NOT NULL,
    error        TEXT         NOT NULL DEFAULT '',
    spoken_ns    BIGINT       NOT NULL DEFAULT 0,
    stt_ns       BIGINT       NOT NULL DEFAULT 0,
    llm_ns       BIGINT       NOT NULL DEFAULT 0,
    tts_ns       BIGINT       NOT NULL DEFAULT 0,
    truncated    BOOLEAN      NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_assistant_turns_at
    ON assistant_turns (at);

CREATE INDEX IF NOT EXISTS idx_assistant_turns_fts
    ON assistant_turns USING GIN (to_tsvector('english', prompt || ' ' || reply));
`

// embeddingSchema holds one vector per turn for semantic search. The
// dimension is fixed when the table is first created.
func embeddingSchema(dims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS assistant_turn_embeddings (
    turn_id    BIGINT      PRIMARY KEY REFERENCES assistant_turns (id) ON DELETE CASCADE,
    model      TEXT        NOT NULL,
    embedding  vector(%d)  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assistant_turn_embeddings_hnsw
    ON assistant_turn_embeddings USING hnsw (embedding vector_cosine_ops);
`, dims)
}

// Execer runs a statement. Both *pgx.Conn and *pgxpool.Pool satisfy it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate applies [Schema] on db. A positive dims also creates the vector
// extension and the embeddings table used for semantic search.
func Migrate(ctx context.Context, db Execer, dims int) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	if dims > 0 {
		if _, err := db.Exec(ctx, embeddingSchema(dims)); err != nil {
			return fmt.Errorf("history: migrate embeddings: %w", err)
		}
	}
	return nil
}

// PostgresStore is a [Store] backed by the assistant_turns table.
//
// With an embedder, every appended turn is also embedded and Search ranks
// turns by cosine similarity to the query instead of full-text matching.
type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures a [PostgresStore].
type PostgresOption func(*PostgresStore)

// WithEmbedder enables semantic search using e.
func WithEmbedder(e embeddings.Provider) PostgresOption {
	return func(s *PostgresStore) { s.embedder = e }
}

// NewPostgresStore migrates the schema over a single bootstrap connection,
// then opens the pool and verifies it. The vector type must exist before
// pooled connections register it, so migration comes first.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{}
	for _, o := range opts {
		o(s)
	}
	dims := 0
	if s.embedder != nil {
		dims = s.embedder.Dimensions()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse dsn: %w", err)
	}
	if err := bootstrap(ctx, cfg.ConnConfig, dims); err != nil {
		return nil, err
	}
	if dims > 0 {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	s.pool = pool
	return s, nil
}

func bootstrap(ctx context.Context, cc *pgx.ConnConfig, dims int) error {
	conn, err := pgx.ConnectConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("history: connect: %w", err)
	}
	defer conn.Close(ctx)
	return Migrate(ctx, conn, dims)
}

const turnColumns = `at, prompt, reply, reply_type, outcome, error, spoken_ns, stt_ns, llm_ns, tts_ns, truncated`

// Append implements [Store].
func (s *PostgresStore) Append(ctx context.Context, t Turn) error {
	const q = `INSERT INTO assistant_turns (` + turnColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if t.At.IsZero() {
		t.At = time.Now()
	}
	var id int64
	err := s.pool.QueryRow(ctx, q,
		t.At, t.Prompt, t.Reply, t.ReplyType, t.Outcome, t.Error,
		t.SpokenFor.Nanoseconds(), t.STTDuration.Nanoseconds(),
		t.LLMDuration.Nanoseconds(), t.TTSDuration.Nanoseconds(),
		t.Truncated,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	if s.embedder != nil && t.Prompt != "" {
		// The turn is already stored; a missing vector only hides it from
		// semantic search.
		if err := s.embed(ctx, id, embeddingText(t)); err != nil {
			slog.Warn("history: failed to embed turn", "turn_id", id, "err", err)
		}
	}
	return nil
}

func embeddingText(t Turn) string {
	return strings.TrimSpace(t.Prompt + "\n" + t.Reply)
}

func (s *PostgresStore) embed(ctx context.Context, id int64, text string) error {
	vec, err := s.embedder.Embed(ctx, text, embeddings.Document)
	if err != nil {
		return err
	}
	const q = `INSERT INTO assistant_turn_embeddings (turn_id, model, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (turn_id) DO UPDATE SET model = EXCLUDED.model, embedding = EXCLUDED.embedding`
	if _, err := s.pool.Exec(ctx, q, id, s.embedder.ModelID(), pgvector.NewVector(vec)); err != nil {
		return fmt.Errorf("history: store embedding: %w", err)
	}
	return nil
}

// Recent implements [Store].
func (s *PostgresStore) Recent(ctx context.Context, n int) ([]Turn, error) {
	if n <= 0 {
		n = DefaultMemCapacity
	}
	const q = `SELECT ` + turnColumns + ` FROM (
		SELECT * FROM assistant_turns ORDER BY id DESC LIMIT $1
	) newest ORDER BY id`
	rows, err := s.pool.Query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return collectTurns(rows)
}

// DefaultSemanticLimit caps semantic search results when no limit is given.
const DefaultSemanticLimit = 10

// Search implements [Store]. Without an embedder it uses PostgreSQL full-text
// search over prompt and reply. With one, it returns the turns most similar to
// query, most similar first.
func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]Turn, error) {
	if s.embedder != nil {
		return s.searchSimilar(ctx, query, limit)
	}
	q := `SELECT ` + turnColumns + `
		FROM   assistant_turns
		WHERE  to_tsvector('english', prompt || ' ' || reply) @@ plainto_tsquery('english', $1)
		ORDER  BY id`
	args := []any{query}
	if limit > 0 {
		q += "\nLIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: search: %w", err)
	}
	return collectTurns(rows)
}

func (s *PostgresStore) searchSimilar(ctx context.Context, query string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultSemanticLimit
	}
	vec, err := s.embedder.Embed(ctx, query, embeddings.Query)
	if err != nil {
		return nil, fmt.Errorf("history: embed query: %w", err)
	}
	const q = `SELECT t.at, t.prompt, t.reply, t.reply_type, t.outcome, t.error,
		       t.spoken_ns, t.stt_ns, t.llm_ns, t.tts_ns, t.truncated
		FROM   assistant_turns t
		JOIN   assistant_turn_embeddings e ON e.turn_id = t.id
		ORDER  BY e.embedding <=> $1
		LIMIT  $2`
	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("history: semantic search: %w", err)
	}
	return collectTurns(rows)
}

// Ping checks the connection. Used as a readiness check.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func collectTurns(rows pgx.Rows) ([]Turn, error) {
	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Turn, error) {
		var (
			t                    Turn
			spoken, stt, llm, tt int64
		)
		if err := row.Scan(&t.At, &t.Prompt, &t.Reply, &t.ReplyType, &t.Outcome, &t.Error,
			&spoken, &stt, &llm, &tt, &t.Truncated); err != nil {
			return Turn{}, err
		}
		t.SpokenFor = time.Duration(spoken)
		t.STTDuration = time.Duration(stt)
		t.LLMDuration = time.Duration(llm)
		t.TTSDuration = time.Duration(tt)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history: scan rows: %w", err)
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}
