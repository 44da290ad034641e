package memory

import (
	"context"
	"fmt"
	"testing"
)

func TestAppendTurnAssignsSequence(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		turn, err := s.AppendTurn(ctx, Turn{SessionID: "s1", Role: "user", Content: fmt.Sprintf("m%d", i)})
		if err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
		if turn.Sequence != int64(i) {
			t.Fatalf("Sequence = %d, want %d", turn.Sequence, i)
		}
		if turn.ID == "" {
			t.Fatal("AppendTurn should assign an ID")
		}
	}

	// Sequences are per session.
	turn, err := s.AppendTurn(ctx, Turn{SessionID: "s2", Role: "user", Content: "other"})
	if err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	if turn.Sequence != 1 {
		t.Fatalf("s2 Sequence = %d, want 1", turn.Sequence)
	}
}

func TestRecentTurnsRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	contents := []string{"first", "second", "third"}
	roles := []string{"user", "assistant", "user"}
	for i := range contents {
		if _, err := s.AppendTurn(ctx, Turn{SessionID: "s1", Role: roles[i], Content: contents[i]}); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	got, err := s.RecentTurns(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i := range got {
		if got[i].Content != contents[i] || got[i].Role != roles[i] {
			t.Fatalf("turn %d = {%s %s}, want {%s %s}", i, got[i].Role, got[i].Content, roles[i], contents[i])
		}
	}
}

func TestRecentTurnsHonorsLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := s.AppendTurn(ctx, Turn{SessionID: "s1", Role: "user", Content: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("AppendTurn() error = %v", err)
		}
	}

	got, err := s.RecentTurns(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("RecentTurns() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// The most recent turns, still in chronological order.
	if got[0].Content != "m3" || got[1].Content != "m4" {
		t.Fatalf("turns = [%s %s], want [m3 m4]", got[0].Content, got[1].Content)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec := EmbeddingRecord{
		SessionID:    "s1",
		SourceText:   "remember this",
		Vector:       []float32{0.1, 0.2},
		ModelVersion: "embed-v1",
	}
	if err := s.SaveEmbedding(ctx, rec); err != nil {
		t.Fatalf("SaveEmbedding() error = %v", err)
	}

	got, err := s.RecentEmbeddings(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("RecentEmbeddings() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].SourceText != "remember this" || got[0].ModelVersion != "embed-v1" {
		t.Fatalf("record = %+v", got[0])
	}
}
