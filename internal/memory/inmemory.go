package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu         sync.RWMutex
	turns      map[string][]Turn
	embeddings map[string][]EmbeddingRecord
	sequences  map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		turns:      make(map[string][]Turn),
		embeddings: make(map[string][]EmbeddingRecord),
		sequences:  make(map[string]int64),
	}
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.sequences[turn.SessionID]++
	turn.Sequence = s.sequences[turn.SessionID]
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return turn, nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.turns[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) SaveEmbedding(_ context.Context, record EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.embeddings[record.SessionID] = append(s.embeddings[record.SessionID], record)
	return nil
}

func (s *InMemoryStore) RecentEmbeddings(_ context.Context, sessionID string, limit int) ([]EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.embeddings[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]EmbeddingRecord, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
