package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role labels one side of the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of an assembled context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Params tunes a single generation call.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generator produces an assistant reply for an assembled message list.
// Adapters absorb provider response-shape variability; callers only ever
// see (text, error).
type Generator interface {
	Generate(ctx context.Context, messages []Message, params Params) (string, error)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelVersion() string
}

// ErrNotConfigured means a required backend dependency is missing. It is a
// configuration fault, never retried: the caller fails fast with a clear
// message instead of entering the supervisor's retry path.
var ErrNotConfigured = errors.New("brain backend not configured")

// Config controls backend construction.
type Config struct {
	Mode string

	HTTPURL string
	APIKey  string

	GenerationModel string
	DiagnosticModel string
	EmbeddingModel  string

	GenerationTimeout time.Duration
	EmbeddingTimeout  time.Duration
	EmbeddingDim      int
}

// Backends bundles the external model calls the pipeline depends on.
type Backends struct {
	Generator  Generator
	Diagnostic Generator
	Embedder   Embedder
}

// NewBackends builds generation, diagnostic, and embedding backends for the
// configured mode. "auto" picks HTTP when a URL is configured and the local
// mock otherwise.
func NewBackends(cfg Config) (Backends, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return newHTTPBackends(cfg)
		}
		return newMockBackends(cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return Backends{}, fmt.Errorf("%w: http mode requires a url", ErrNotConfigured)
		}
		return newHTTPBackends(cfg)
	case "mock":
		return newMockBackends(cfg), nil
	default:
		return Backends{}, fmt.Errorf("unsupported brain mode %q", cfg.Mode)
	}
}

func newHTTPBackends(cfg Config) (Backends, error) {
	gen := NewHTTPGenerator(cfg.HTTPURL, cfg.APIKey, cfg.GenerationTimeout)
	emb := NewHTTPEmbedder(cfg.HTTPURL, cfg.APIKey, cfg.EmbeddingModel, cfg.EmbeddingTimeout)
	return Backends{Generator: gen, Diagnostic: gen, Embedder: emb}, nil
}

func newMockBackends(cfg Config) Backends {
	dim := cfg.EmbeddingDim
	if dim <= 0 {
		dim = 1536
	}
	gen := NewMockGenerator()
	return Backends{
		Generator:  gen,
		Diagnostic: gen,
		Embedder:   NewMockEmbedder(dim),
	}
}
