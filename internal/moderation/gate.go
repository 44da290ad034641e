package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/audit"
)

// Decision is an external classifier's verdict on a piece of text.
type Decision string

const (
	DecisionAllowed Decision = "allowed"
	DecisionBlocked Decision = "blocked"
)

// Classifier checks text against the content policy.
type Classifier interface {
	Classify(ctx context.Context, text string) (Decision, error)
}

// Gate is the pipeline's binary policy check. It fails open: when the
// classifier itself is down, the message passes, and the degraded-mode
// decision is logged and audited rather than silently swallowed.
type Gate struct {
	classifier Classifier
	sink       audit.Sink
	logger     zerolog.Logger
}

func NewGate(classifier Classifier, sink audit.Sink, logger zerolog.Logger) *Gate {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Gate{classifier: classifier, sink: sink, logger: logger}
}

// Allowed reports whether text passes the content policy. A nil classifier
// means moderation is not configured; everything passes without audit noise.
func (g *Gate) Allowed(ctx context.Context, text string) bool {
	if g.classifier == nil {
		return true
	}
	decision, err := g.classifier.Classify(ctx, text)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Msg("moderation classifier unavailable, failing open")
		g.sink.Record("moderation_fail_open", map[string]any{
			"error": err.Error(),
		})
		return true
	}
	if decision == DecisionBlocked {
		g.sink.Record("moderation_blocked", map[string]any{})
		return false
	}
	return true
}

// HTTPClassifier calls an OpenAI-compatible moderations endpoint.
type HTTPClassifier struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPClassifier(url, apiKey string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClassifier{
		url:     strings.TrimSpace(url),
		apiKey:  apiKey,
		timeout: timeout,
		client:  &http.Client{},
	}
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Decision, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(moderationRequest{Input: text})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 1<<10))
		return "", fmt.Errorf("moderation http status %d: %s", res.StatusCode, string(snippet))
	}

	var out moderationResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Results) == 0 {
		return "", fmt.Errorf("moderation response has no results")
	}
	if out.Results[0].Flagged {
		return DecisionBlocked, nil
	}
	return DecisionAllowed, nil
}
