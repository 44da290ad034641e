package memory

import (
	"context"
	"time"
)

// Turn is one immutable conversational message. Turns are append-only:
// nothing in this subsystem ever mutates or deletes one, and Sequence is
// strictly increasing per session.
type Turn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sequence  int64     `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddingRecord is a persisted embedding for one utterance. ModelVersion
// guards against ranking vectors from different embedding models together.
type EmbeddingRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	SourceText   string    `json:"source_text"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists and retrieves conversational turns and their embeddings.
// Implementations surface transient contention as a retryable error so the
// supervisor's retry policy applies to persistence the same way it applies
// to network calls.
type Store interface {
	AppendTurn(ctx context.Context, turn Turn) (Turn, error)
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error)
	SaveEmbedding(ctx context.Context, record EmbeddingRecord) error
	RecentEmbeddings(ctx context.Context, sessionID string, limit int) ([]EmbeddingRecord, error)
	Close() error
}
