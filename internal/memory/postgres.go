package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davejenn/juniper/internal/reliability"
)

// PostgresStore persists turns and embeddings in PostgreSQL with pgvector.
type PostgresStore struct {
	pool *pgxpool.Pool
	dim  int
}

func NewPostgresStore(ctx context.Context, databaseURL string, embeddingDim int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}

	if err := initSchema(ctx, pool, embeddingDim); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, dim: embeddingDim}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (session_id, sequence)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session_sequence ON turns (session_id, sequence);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			source_text TEXT NOT NULL,
			vector vector(%d) NOT NULL,
			model_version TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`, dim),
		`CREATE INDEX IF NOT EXISTS idx_embeddings_session_created ON embeddings (session_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO turns (id, session_id, role, content, sequence, created_at)
		 VALUES ($1, $2, $3, $4,
		         COALESCE((SELECT MAX(sequence) FROM turns WHERE session_id = $2), 0) + 1,
		         $5)
		 RETURNING sequence`,
		turn.ID,
		turn.SessionID,
		turn.Role,
		turn.Content,
		turn.CreatedAt,
	).Scan(&turn.Sequence)
	if err != nil {
		return Turn{}, classifyStoreError(fmt.Errorf("append turn: %w", err))
	}
	return turn, nil
}

func (s *PostgresStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, sequence, created_at
		 FROM turns WHERE session_id = $1 ORDER BY sequence DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, classifyStoreError(fmt.Errorf("query recent turns: %w", err))
	}
	defer rows.Close()

	items := make([]Turn, 0, limit)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.Sequence, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError(fmt.Errorf("iterate turn rows: %w", err))
	}

	// Reverse into chronological order for prompt coherence.
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (s *PostgresStore) SaveEmbedding(ctx context.Context, record EmbeddingRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if len(record.Vector) != s.dim {
		return fmt.Errorf("save embedding: vector dimension %d, store expects %d", len(record.Vector), s.dim)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO embeddings (id, session_id, source_text, vector, model_version, created_at)
		 VALUES ($1, $2, $3, $4::vector, $5, $6)`,
		record.ID,
		record.SessionID,
		record.SourceText,
		encodeVector(record.Vector),
		record.ModelVersion,
		record.CreatedAt,
	)
	if err != nil {
		return classifyStoreError(fmt.Errorf("save embedding: %w", err))
	}
	return nil
}

func (s *PostgresStore) RecentEmbeddings(ctx context.Context, sessionID string, limit int) ([]EmbeddingRecord, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, source_text, vector::text, model_version, created_at
		 FROM embeddings WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, classifyStoreError(fmt.Errorf("query recent embeddings: %w", err))
	}
	defer rows.Close()

	items := make([]EmbeddingRecord, 0, limit)
	for rows.Next() {
		var r EmbeddingRecord
		var encoded string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.SourceText, &encoded, &r.ModelVersion, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		r.Vector, err = parseVector(encoded)
		if err != nil {
			return nil, fmt.Errorf("parse embedding vector: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyStoreError(fmt.Errorf("iterate embedding rows: %w", err))
	}

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

// Ping verifies database connectivity, for readiness probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// classifyStoreError marks contention and connectivity faults as retryable
// so the supervisor treats the store like any other flaky backend.
func classifyStoreError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "53300", "57P03":
			return reliability.Retryable(err)
		case "23505":
			// Two concurrent appends for one session race on
			// COALESCE(MAX(sequence))+1; the loser hits the
			// (session_id, sequence) constraint and a retry
			// recomputes MAX and wins.
			if strings.Contains(pgErr.ConstraintName, "session_id_sequence") {
				return reliability.Retryable(err)
			}
			return err
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return reliability.Retryable(err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// Anything that never reached the server (dial, reset, timeout).
	return reliability.Retryable(err)
}

func encodeVector(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(encoded string) ([]float32, error) {
	trimmed := strings.TrimSpace(encoded)
	trimmed = strings.TrimPrefix(trimmed, "[")
	trimmed = strings.TrimSuffix(trimmed, "]")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out = append(out, float32(f))
	}
	return out, nil
}
