package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/audit"
)

const fallbackReply = "The assistant is temporarily unavailable. Please try again in a moment."

func newTestSupervisor(diagnose DiagnoseFunc, sink audit.Sink) *Supervisor {
	return NewSupervisor(2, time.Millisecond, fallbackReply, diagnose, sink, zerolog.Nop())
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", Retryable(errors.New("upstream 503"))
		}
		return "ok", nil
	}

	got, err := Do(context.Background(), newTestSupervisor(nil, nil), "generate", op)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Fatalf("Do() = %q, want %q", got, "ok")
	}
	if calls != 3 {
		t.Fatalf("op calls = %d, want 3", calls)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		return "", Retryable(errors.New("upstream 503"))
	}

	_, err := Do(context.Background(), newTestSupervisor(nil, nil), "generate", op)
	if err == nil {
		t.Fatal("Do() should fail after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("op calls = %d, want 3 (max retries 2)", calls)
	}
}

func TestDoDoesNotRetryFinalErrors(t *testing.T) {
	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		return "", errors.New("bad request")
	}

	_, err := Do(context.Background(), newTestSupervisor(nil, nil), "generate", op)
	if err == nil {
		t.Fatal("Do() should fail")
	}
	if calls != 1 {
		t.Fatalf("op calls = %d, want 1 for a non-retryable error", calls)
	}
}

func TestInvokeTextReturnsFallbackAfterExhaustion(t *testing.T) {
	sink := audit.NewCaptureSink()
	s := NewSupervisor(2, time.Millisecond, fallbackReply, nil, sink, zerolog.Nop())

	op := func(context.Context) (string, error) {
		return "", Retryable(errors.New("upstream down"))
	}
	got, degraded := s.InvokeText(context.Background(), "generate", op)
	if !degraded {
		t.Fatal("InvokeText should report degraded")
	}
	if got != fallbackReply {
		t.Fatalf("InvokeText = %q, want fallback reply", got)
	}
	if sink.CountKind("degraded_fallback") != 1 {
		t.Fatalf("degraded_fallback events = %d, want 1", sink.CountKind("degraded_fallback"))
	}
	if sink.CountKind("backend_failure") != 3 {
		t.Fatalf("backend_failure events = %d, want 3", sink.CountKind("backend_failure"))
	}
}

func TestInvokeTextSuccessIsNotDegraded(t *testing.T) {
	s := newTestSupervisor(nil, nil)
	got, degraded := s.InvokeText(context.Background(), "generate", func(context.Context) (string, error) {
		return "hello", nil
	})
	if degraded {
		t.Fatal("InvokeText should not be degraded on success")
	}
	if got != "hello" {
		t.Fatalf("InvokeText = %q, want %q", got, "hello")
	}
}

func TestDiagnosticFailureDoesNotChangeOutcome(t *testing.T) {
	diagnose := func(context.Context, string) (string, error) {
		return "", errors.New("diagnostic model down")
	}
	calls := 0
	op := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", Retryable(errors.New("blip"))
		}
		return "ok", nil
	}

	got, err := Do(context.Background(), newTestSupervisor(diagnose, nil), "generate", op)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Fatalf("Do() = %q, want %q", got, "ok")
	}
}

func TestDiagnosticSuggestionIsRecorded(t *testing.T) {
	sink := audit.NewCaptureSink()
	diagnose := func(_ context.Context, failure string) (string, error) {
		if failure == "" {
			t.Fatal("diagnose called without a failure summary")
		}
		return "check upstream credentials", nil
	}
	s := NewSupervisor(0, time.Millisecond, fallbackReply, diagnose, sink, zerolog.Nop())

	_, _ = Do(context.Background(), s, "generate", func(context.Context) (string, error) {
		return "", errors.New("401 unauthorized")
	})
	if sink.CountKind("diagnostic_suggestion") != 1 {
		t.Fatalf("diagnostic_suggestion events = %d, want 1", sink.CountKind("diagnostic_suggestion"))
	}
}

func TestBackoffWaitHonorsCancellation(t *testing.T) {
	s := NewSupervisor(5, time.Hour, fallbackReply, nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Do(ctx, s, "generate", func(context.Context) (string, error) {
			calls++
			return "", Retryable(errors.New("blip"))
		})
		if err == nil {
			t.Error("Do() should fail when cancelled during backoff")
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Do() did not return after cancellation; backoff wait is blocking")
	}
	if calls != 1 {
		t.Fatalf("op calls = %d, want 1 before cancellation", calls)
	}
}
