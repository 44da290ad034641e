package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/assemble"
	"github.com/davejenn/juniper/internal/brain"
	"github.com/davejenn/juniper/internal/memory"
	"github.com/davejenn/juniper/internal/moderation"
	"github.com/davejenn/juniper/internal/observability"
	"github.com/davejenn/juniper/internal/ratelimit"
	"github.com/davejenn/juniper/internal/reliability"
	"github.com/davejenn/juniper/internal/retrieval"
)

// Capabilities carries per-caller privileges. BypassRateLimit must be
// checked explicitly before the window query so privileged traffic never
// depends on a side effect of some other code path.
type Capabilities struct {
	BypassRateLimit bool
	BudgetOverride  int
}

// Config tunes one pipeline instance.
type Config struct {
	DefaultBudget  int
	EndpointTag    string
	Generation     brain.Params
	RehydrateLimit int
}

// Pipeline is the full inbound-message path: rate limit, moderation gate,
// context assembly, supervised generation, then persistence and indexing of
// the exchange. Invocations for different sessions are independent and run
// in parallel; the pipeline holds no per-session locks, so callers that need
// strict per-session ordering must serialize on the session key themselves.
type Pipeline struct {
	cfg        Config
	limiter    *ratelimit.Limiter
	gate       *moderation.Gate
	assembler  *assemble.Assembler
	generator  brain.Generator
	embedder   brain.Embedder
	index      *retrieval.Index
	store      memory.Store
	supervisor *reliability.Supervisor
	metrics    *observability.Metrics
	logger     zerolog.Logger
	warmed     sync.Map
}

func New(
	cfg Config,
	limiter *ratelimit.Limiter,
	gate *moderation.Gate,
	assembler *assemble.Assembler,
	generator brain.Generator,
	embedder brain.Embedder,
	index *retrieval.Index,
	store memory.Store,
	supervisor *reliability.Supervisor,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Pipeline {
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = 3000
	}
	if cfg.EndpointTag == "" {
		cfg.EndpointTag = "chat"
	}
	if cfg.RehydrateLimit <= 0 {
		cfg.RehydrateLimit = 200
	}
	return &Pipeline{
		cfg:        cfg,
		limiter:    limiter,
		gate:       gate,
		assembler:  assembler,
		generator:  generator,
		embedder:   embedder,
		index:      index,
		store:      store,
		supervisor: supervisor,
		metrics:    metrics,
		logger:     logger,
	}
}

// HandleMessage runs one pipeline invocation. The returned string is always
// safe to show the user; when err is non-nil it identifies which terminal
// outcome produced that reply.
func (p *Pipeline) HandleMessage(ctx context.Context, sessionID, text string, caps Capabilities) (string, error) {
	if !caps.BypassRateLimit {
		if p.limiter.CheckAndRecord(sessionID, p.cfg.EndpointTag) == ratelimit.Throttled {
			p.countOutcome("throttled")
			return ThrottledReply, ErrThrottled
		}
	}

	if !p.gate.Allowed(ctx, text) {
		p.countOutcome("blocked")
		p.countModeration("blocked")
		return BlockedReply, ErrPolicyBlocked
	}
	p.countModeration("allowed")

	p.warmIndex(ctx, sessionID)

	budget := p.cfg.DefaultBudget
	if caps.BudgetOverride > 0 {
		budget = caps.BudgetOverride
	}

	messages, err := p.assembler.Assemble(ctx, sessionID, text, budget)
	if err != nil {
		if errors.Is(err, assemble.ErrInputExceedsBudget) {
			p.countOutcome("input_too_large")
			return TooLongReply, err
		}
		p.countOutcome("assembly_error")
		return FallbackReply, err
	}
	if p.metrics != nil {
		p.metrics.ContextMessages.Observe(float64(len(messages)))
	}

	reply, degraded := p.supervisor.InvokeText(ctx, "generate", func(callCtx context.Context) (string, error) {
		return p.generator.Generate(callCtx, messages, p.cfg.Generation)
	})
	if degraded {
		p.countOutcome("degraded")
		return reply, ErrDegraded
	}

	p.persistExchange(ctx, sessionID, text, reply)
	p.countOutcome("ok")
	return reply, nil
}

// persistExchange appends both turns and indexes the assistant reply.
// Everything here is post-response bookkeeping: failures are retried by the
// supervisor, then logged and dropped, never surfaced to the user.
func (p *Pipeline) persistExchange(ctx context.Context, sessionID, userText, reply string) {
	userStored, _ := moderation.RedactPII(userText)
	p.appendTurn(ctx, sessionID, "user", userStored)
	p.appendTurn(ctx, sessionID, "assistant", reply)
	p.indexReply(ctx, sessionID, reply)
}

func (p *Pipeline) appendTurn(ctx context.Context, sessionID, role, content string) {
	_, err := reliability.Do(ctx, p.supervisor, "append_turn", func(callCtx context.Context) (memory.Turn, error) {
		return p.store.AppendTurn(callCtx, memory.Turn{
			SessionID: sessionID,
			Role:      role,
			Content:   content,
		})
	})
	if err != nil {
		p.logger.Error().
			Str("session_id", sessionID).
			Str("role", role).
			Err(err).
			Msg("turn persistence failed after retries")
	}
}

func (p *Pipeline) indexReply(ctx context.Context, sessionID, reply string) {
	if p.embedder == nil || p.index == nil {
		return
	}
	vec, err := reliability.Do(ctx, p.supervisor, "embed_reply", func(callCtx context.Context) ([]float32, error) {
		return p.embedder.Embed(callCtx, reply)
	})
	if err != nil {
		p.logger.Warn().
			Str("session_id", sessionID).
			Err(err).
			Msg("reply embedding failed, skipping index update")
		return
	}

	version := p.embedder.ModelVersion()
	p.index.Add(sessionID, reply, vec, version)

	if p.store == nil {
		return
	}
	_, err = reliability.Do(ctx, p.supervisor, "save_embedding", func(callCtx context.Context) (struct{}, error) {
		return struct{}{}, p.store.SaveEmbedding(callCtx, memory.EmbeddingRecord{
			SessionID:    sessionID,
			SourceText:   reply,
			Vector:       vec,
			ModelVersion: version,
		})
	})
	if err != nil {
		p.logger.Warn().
			Str("session_id", sessionID).
			Err(err).
			Msg("embedding persistence failed after retries")
	}
}

// warmIndex loads a session's persisted embeddings into the in-memory index
// once per process lifetime, so retrieval survives restarts.
func (p *Pipeline) warmIndex(ctx context.Context, sessionID string) {
	if p.index == nil || p.store == nil {
		return
	}
	if _, already := p.warmed.LoadOrStore(sessionID, true); already {
		return
	}
	records, err := p.store.RecentEmbeddings(ctx, sessionID, p.cfg.RehydrateLimit)
	if err != nil {
		// Retry on the session's next message.
		p.warmed.Delete(sessionID)
		p.logger.Warn().
			Str("session_id", sessionID).
			Err(err).
			Msg("index rehydration failed")
		return
	}
	for _, r := range records {
		p.index.AddRecord(retrieval.Record{
			SessionID:    r.SessionID,
			SourceText:   r.SourceText,
			Vector:       r.Vector,
			ModelVersion: r.ModelVersion,
			CreatedAt:    r.CreatedAt,
		})
	}
}

func (p *Pipeline) countOutcome(outcome string) {
	if p.metrics != nil {
		p.metrics.Messages.WithLabelValues(outcome).Inc()
	}
}

func (p *Pipeline) countModeration(decision string) {
	if p.metrics != nil {
		p.metrics.ModerationDecisions.WithLabelValues(decision).Inc()
	}
}
