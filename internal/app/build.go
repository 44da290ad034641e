package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/assemble"
	"github.com/davejenn/juniper/internal/audit"
	"github.com/davejenn/juniper/internal/brain"
	"github.com/davejenn/juniper/internal/config"
	"github.com/davejenn/juniper/internal/httpapi"
	"github.com/davejenn/juniper/internal/memory"
	"github.com/davejenn/juniper/internal/moderation"
	"github.com/davejenn/juniper/internal/observability"
	"github.com/davejenn/juniper/internal/pipeline"
	"github.com/davejenn/juniper/internal/ratelimit"
	"github.com/davejenn/juniper/internal/reliability"
	"github.com/davejenn/juniper/internal/retrieval"
	"github.com/davejenn/juniper/internal/tokens"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Pipeline *pipeline.Pipeline
	Limiter  *ratelimit.Limiter
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	sink := audit.NewCountingSink(
		audit.NewLogSink(logger.With().Str("component", "audit").Logger()),
		metrics.AuditEvents,
	)

	store, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	backends, err := brain.NewBackends(brain.Config{
		Mode:              cfg.BrainMode,
		HTTPURL:           cfg.BrainHTTPURL,
		APIKey:            cfg.BrainAPIKey,
		GenerationModel:   cfg.GenerationModel,
		DiagnosticModel:   cfg.DiagnosticModel,
		EmbeddingModel:    cfg.EmbeddingModel,
		GenerationTimeout: cfg.GenerationTimeout,
		EmbeddingTimeout:  cfg.EmbeddingTimeout,
		EmbeddingDim:      cfg.EmbeddingDim,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("brain backend init failed: %w", err)
	}

	diagnose := newDiagnoseFunc(backends.Diagnostic, cfg.DiagnosticModel)
	supervisor := reliability.NewSupervisor(
		cfg.MaxRetries,
		cfg.RetryBaseDelay,
		pipeline.FallbackReply,
		diagnose,
		sink,
		logger.With().Str("component", "supervisor").Logger(),
	)

	var classifier moderation.Classifier
	if cfg.ModerationURL != "" {
		classifier = moderation.NewHTTPClassifier(cfg.ModerationURL, cfg.BrainAPIKey, cfg.ModerationTimeout)
	}
	gate := moderation.NewGate(classifier, sink, logger.With().Str("component", "moderation").Logger())

	estimator := tokens.NewEstimator(cfg.TokenizerModel, logger)
	index := retrieval.NewIndex(cfg.RetrievalWindow)
	limiter := ratelimit.NewLimiter(cfg.RateWindow, cfg.RateThreshold)

	assembler := assemble.New(
		estimator,
		store,
		index,
		backends.Embedder,
		supervisor,
		logger.With().Str("component", "assemble").Logger(),
		assemble.Config{
			Overhead:     cfg.TurnOverheadTokens,
			TopK:         cfg.RetrievalTopK,
			HistoryLimit: cfg.HistoryLimit,
		},
	)

	pipe := pipeline.New(
		pipeline.Config{
			DefaultBudget: cfg.TokenBudget,
			Generation: brain.Params{
				Model:       cfg.GenerationModel,
				Temperature: 0.2,
				MaxTokens:   800,
			},
			RehydrateLimit: cfg.RetrievalWindow,
		},
		limiter,
		gate,
		assembler,
		backends.Generator,
		backends.Embedder,
		index,
		store,
		supervisor,
		metrics,
		logger.With().Str("component", "pipeline").Logger(),
	)

	ready := func(ctx context.Context) error {
		if p, ok := store.(interface{ Ping(context.Context) error }); ok {
			return p.Ping(ctx)
		}
		return nil
	}

	api := httpapi.New(cfg, pipe, metrics, ready, logger.With().Str("component", "httpapi").Logger())

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Pipeline: pipe,
		Limiter:  limiter,
		Metrics:  metrics,
		Cleanup:  store.Close,
	}, nil
}

// newDiagnoseFunc wraps the diagnostic generator into the supervisor's
// best-effort failure analysis hook.
func newDiagnoseFunc(gen brain.Generator, model string) reliability.DiagnoseFunc {
	if gen == nil {
		return nil
	}
	return func(ctx context.Context, failure string) (string, error) {
		return gen.Generate(ctx, []brain.Message{
			{Role: brain.RoleSystem, Content: "You analyze production failures. Reply with one short sentence suggesting the likely cause."},
			{Role: brain.RoleUser, Content: failure},
		}, brain.Params{Model: model, Temperature: 0, MaxTokens: 60})
	}
}
