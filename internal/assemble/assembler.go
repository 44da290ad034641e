package assemble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/brain"
	"github.com/davejenn/juniper/internal/memory"
	"github.com/davejenn/juniper/internal/reliability"
	"github.com/davejenn/juniper/internal/retrieval"
	"github.com/davejenn/juniper/internal/tokens"
)

// ErrInputExceedsBudget means the new user message alone cannot fit the
// token budget. The caller surfaces this; the assembler never truncates a
// message to force a fit.
var ErrInputExceedsBudget = errors.New("user message alone exceeds token budget")

// DefaultPreamble is the fixed system persona reserved at the head of every
// assembled context.
const DefaultPreamble = "You are a helpful AI assistant. Answer succinctly but fully."

// DefaultOverhead is the per-message token charge for role and formatting
// metadata when none is configured.
const DefaultOverhead = 4

// Config tunes the packing policy.
type Config struct {
	Preamble string
	// Overhead is the per-message token charge for role/formatting
	// metadata. Zero means DefaultOverhead; pass a negative value for none.
	Overhead     int
	TopK         int
	HistoryLimit int
}

// Assembler produces a deterministic, budget-bounded message sequence:
// system preamble, optional retrieved notes, trimmed history in
// chronological order, then the new user message last.
type Assembler struct {
	estimator  tokens.Estimator
	store      memory.Store
	index      *retrieval.Index
	embedder   brain.Embedder
	supervisor *reliability.Supervisor
	logger     zerolog.Logger
	cfg        Config
}

func New(estimator tokens.Estimator, store memory.Store, index *retrieval.Index, embedder brain.Embedder, supervisor *reliability.Supervisor, logger zerolog.Logger, cfg Config) *Assembler {
	if cfg.Preamble == "" {
		cfg.Preamble = DefaultPreamble
	}
	if cfg.Overhead == 0 {
		cfg.Overhead = DefaultOverhead
	}
	if cfg.Overhead < 0 {
		cfg.Overhead = 0
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Assembler{
		estimator:  estimator,
		store:      store,
		index:      index,
		embedder:   embedder,
		supervisor: supervisor,
		logger:     logger,
		cfg:        cfg,
	}
}

// Assemble packs the context for one inbound message. Greedy from the newest
// history turn backward, all-or-nothing per turn: a turn that would overflow
// is skipped whole and the scan continues, since a cheaper older turn may
// still fit. The preamble and the new user message are always reserved and
// never dropped.
func (a *Assembler) Assemble(ctx context.Context, sessionID, userText string, budget int) ([]brain.Message, error) {
	preambleCost := a.messageCost(a.cfg.Preamble)
	userCost := a.messageCost(userText)
	if preambleCost+userCost > budget {
		return nil, fmt.Errorf("%w: need %d tokens of %d", ErrInputExceedsBudget, preambleCost+userCost, budget)
	}
	running := preambleCost + userCost

	var augmentation *brain.Message
	if note := a.retrieveNote(ctx, sessionID, userText); note != "" {
		cost := a.messageCost(note)
		if running+cost <= budget {
			augmentation = &brain.Message{Role: brain.RoleSystem, Content: note}
			running += cost
		}
	}

	history := a.loadHistory(ctx, sessionID)

	// Newest backward; collected in reverse, restored to chronological below.
	included := make([]brain.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		cost := a.messageCost(history[i].Content)
		if running+cost > budget {
			continue
		}
		included = append(included, brain.Message{
			Role:    brain.Role(history[i].Role),
			Content: history[i].Content,
		})
		running += cost
	}

	out := make([]brain.Message, 0, len(included)+3)
	out = append(out, brain.Message{Role: brain.RoleSystem, Content: a.cfg.Preamble})
	if augmentation != nil {
		out = append(out, *augmentation)
	}
	for i := len(included) - 1; i >= 0; i-- {
		out = append(out, included[i])
	}
	out = append(out, brain.Message{Role: brain.RoleUser, Content: userText})
	return out, nil
}

func (a *Assembler) messageCost(text string) int {
	return a.estimator.Estimate(text) + a.cfg.Overhead
}

// retrieveNote embeds the user text and pulls the most relevant earlier
// snippets. Strictly best-effort: any failure degrades to no augmentation.
func (a *Assembler) retrieveNote(ctx context.Context, sessionID, userText string) string {
	if a.embedder == nil || a.index == nil {
		return ""
	}
	vec, err := reliability.Do(ctx, a.supervisor, "embed_query", func(callCtx context.Context) ([]float32, error) {
		return a.embedder.Embed(callCtx, userText)
	})
	if err != nil {
		a.logger.Warn().
			Str("session_id", sessionID).
			Err(err).
			Msg("embedding failed, assembling without retrieval augmentation")
		return ""
	}

	snippets := a.index.Query(sessionID, vec, a.embedder.ModelVersion(), a.cfg.TopK)
	if len(snippets) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant earlier conversation:")
	for _, s := range snippets {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	return b.String()
}

// loadHistory reads recent turns in chronological order. A store that stays
// down after the supervisor's retries degrades to an empty history rather
// than failing the whole assembly.
func (a *Assembler) loadHistory(ctx context.Context, sessionID string) []memory.Turn {
	if a.store == nil {
		return nil
	}
	history, err := reliability.Do(ctx, a.supervisor, "load_history", func(callCtx context.Context) ([]memory.Turn, error) {
		return a.store.RecentTurns(callCtx, sessionID, a.cfg.HistoryLimit)
	})
	if err != nil {
		a.logger.Warn().
			Str("session_id", sessionID).
			Err(err).
			Msg("history load failed, assembling without history")
		return nil
	}
	return history
}
