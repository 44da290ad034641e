package brain

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// MockGenerator provides deterministic local replies when no real backend is
// configured. Useful for development and for exercising the pipeline in tests.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (g *MockGenerator) Generate(ctx context.Context, messages []Message, _ Params) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	var lastUser string
	notes := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			lastUser = m.Content
		}
		if m.Role == RoleSystem && strings.Contains(m.Content, "Relevant earlier conversation") {
			notes++
		}
	}

	base := strings.TrimSpace(lastUser)
	if base == "" {
		base = "I am listening."
	}
	if notes > 0 {
		return fmt.Sprintf("You said: %s (recalling earlier context)", base), nil
	}
	return fmt.Sprintf("You said: %s", base), nil
}

// MockEmbedder produces a stable pseudo-embedding per input text so that
// identical texts land on identical vectors and similarity stays meaningful
// enough for local testing.
type MockEmbedder struct {
	dim int
}

func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 1536
	}
	return &MockEmbedder{dim: dim}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	vec := make([]float32, e.dim)
	for i, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(word))
		slot := int(h.Sum32()) % e.dim
		if slot < 0 {
			slot += e.dim
		}
		vec[slot] += 1.0 / float32(math.Sqrt(float64(i+1)))
	}
	return vec, nil
}

func (e *MockEmbedder) ModelVersion() string { return "mock-embed-v1" }
