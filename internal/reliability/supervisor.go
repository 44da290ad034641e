package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/audit"
)

// DiagnoseFunc asks a lightweight model for a short explanation of a failure.
// It is best-effort only: the supervisor records its output when it succeeds
// and swallows its error when it does not.
type DiagnoseFunc func(ctx context.Context, failure string) (string, error)

// Supervisor wraps calls to unreliable backends with bounded retries, linear
// backoff, structured failure logging, and best-effort diagnostics. Every
// failure path ends in either a result or a terminal error after the retry
// budget; nothing panics through to the caller.
type Supervisor struct {
	maxRetries   int
	baseDelay    time.Duration
	fallbackText string
	diagnose     DiagnoseFunc
	sink         audit.Sink
	logger       zerolog.Logger

	diagnoseTimeout time.Duration
}

func NewSupervisor(maxRetries int, baseDelay time.Duration, fallbackText string, diagnose DiagnoseFunc, sink audit.Sink, logger zerolog.Logger) *Supervisor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Supervisor{
		maxRetries:      maxRetries,
		baseDelay:       baseDelay,
		fallbackText:    fallbackText,
		diagnose:        diagnose,
		sink:            sink,
		logger:          logger,
		diagnoseTimeout: 5 * time.Second,
	}
}

// FallbackText is the fixed, user-safe reply returned once retries are spent.
func (s *Supervisor) FallbackText() string { return s.fallbackText }

// Do runs op with the supervisor's retry policy and returns its result, or
// the last error once the budget is spent. Only errors classified retryable
// consume retry attempts; anything else returns on the first failure.
func Do[T any](ctx context.Context, s *Supervisor, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= s.maxRetries+1; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		s.logger.Warn().
			Str("operation", name).
			Int("attempt", attempt).
			Int("max_attempts", s.maxRetries+1).
			Err(err).
			Msg("supervised call failed")
		s.sink.Record("backend_failure", map[string]any{
			"operation": name,
			"attempt":   attempt,
			"error":     err.Error(),
		})
		s.runDiagnostic(ctx, name, err)

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt > s.maxRetries {
			break
		}
		if waitErr := s.wait(ctx, LinearBackoff(attempt, s.baseDelay)); waitErr != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// InvokeText runs a text-producing op and degrades to the fixed fallback
// reply instead of surfacing an error. The returned flag reports whether the
// fallback was used.
func (s *Supervisor) InvokeText(ctx context.Context, name string, op func(context.Context) (string, error)) (string, bool) {
	out, err := Do(ctx, s, name, op)
	if err == nil {
		return out, false
	}
	s.logger.Error().
		Str("operation", name).
		Err(err).
		Msg("retries exhausted, returning degraded fallback")
	s.sink.Record("degraded_fallback", map[string]any{
		"operation": name,
		"error":     err.Error(),
	})
	return s.fallbackText, true
}

// runDiagnostic is an isolated fallible sub-operation: its own timeout, its
// own error boundary, never retried, never escalated.
func (s *Supervisor) runDiagnostic(ctx context.Context, name string, cause error) {
	if s.diagnose == nil {
		return
	}
	diagCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.diagnoseTimeout)
	defer cancel()

	summary, err := s.diagnose(diagCtx, name+": "+cause.Error())
	if err != nil {
		s.logger.Warn().
			Str("operation", name).
			Err(err).
			Msg("diagnostic call failed, ignoring")
		return
	}
	s.sink.Record("diagnostic_suggestion", map[string]any{
		"operation":  name,
		"suggestion": summary,
	})
}

func (s *Supervisor) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
