package tokens

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

// Estimator reports the approximate size of text in model-consumable tokens.
// Implementations never fail and return at least 1 for non-empty input.
type Estimator interface {
	Estimate(text string) int
}

// NewEstimator returns a BPE-backed estimator for the given model when the
// encoding can be loaded, and the character heuristic otherwise. Callers get
// the same contract either way and never need to know which path is active.
func NewEstimator(model string, logger zerolog.Logger) Estimator {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("model", model).
			Msg("exact tokenizer unavailable, using character heuristic")
		return HeuristicEstimator{}
	}
	return &BPEEstimator{enc: enc}
}

// BPEEstimator counts tokens with a real subword tokenizer.
type BPEEstimator struct {
	enc *tiktoken.Tiktoken
}

func (e *BPEEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(e.enc.Encode(text, nil, nil))
	if n < 1 {
		return 1
	}
	return n
}

// HeuristicEstimator approximates one token per four bytes of text. BPE
// tokenizers average 3.5-4.5 characters per token for English, so this
// overestimates slightly, which errs toward trimming early rather than
// overflowing the backend's input limit.
type HeuristicEstimator struct{}

func (HeuristicEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}
