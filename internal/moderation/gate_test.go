package moderation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/audit"
)

type stubClassifier struct {
	decision Decision
	err      error
}

func (s stubClassifier) Classify(context.Context, string) (Decision, error) {
	return s.decision, s.err
}

func TestGateAllowsCleanText(t *testing.T) {
	g := NewGate(stubClassifier{decision: DecisionAllowed}, nil, zerolog.Nop())
	if !g.Allowed(context.Background(), "hello") {
		t.Fatal("clean text should be allowed")
	}
}

func TestGateBlocksFlaggedText(t *testing.T) {
	sink := audit.NewCaptureSink()
	g := NewGate(stubClassifier{decision: DecisionBlocked}, sink, zerolog.Nop())
	if g.Allowed(context.Background(), "bad") {
		t.Fatal("flagged text should be blocked")
	}
	if sink.CountKind("moderation_blocked") != 1 {
		t.Fatalf("moderation_blocked events = %d, want 1", sink.CountKind("moderation_blocked"))
	}
}

func TestGateFailsOpenOnClassifierError(t *testing.T) {
	sink := audit.NewCaptureSink()
	g := NewGate(stubClassifier{err: errors.New("classifier down")}, sink, zerolog.Nop())
	if !g.Allowed(context.Background(), "anything") {
		t.Fatal("gate must fail open when the classifier errors")
	}
	if sink.CountKind("moderation_fail_open") != 1 {
		t.Fatalf("moderation_fail_open events = %d, want 1", sink.CountKind("moderation_fail_open"))
	}
}

func TestGateWithoutClassifierAllowsEverything(t *testing.T) {
	sink := audit.NewCaptureSink()
	g := NewGate(nil, sink, zerolog.Nop())
	if !g.Allowed(context.Background(), "anything") {
		t.Fatal("unconfigured gate should allow")
	}
	if len(sink.Events()) != 0 {
		t.Fatalf("events = %d, want none", len(sink.Events()))
	}
}

func TestHTTPClassifierDecisions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(readBody(t, r), "nasty") {
			w.Write([]byte(`{"results":[{"flagged":true}]}`))
			return
		}
		w.Write([]byte(`{"results":[{"flagged":false}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL, "", time.Second)
	got, err := c.Classify(context.Background(), "something nasty")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got != DecisionBlocked {
		t.Fatalf("Classify(flagged) = %q, want %q", got, DecisionBlocked)
	}

	got, err = c.Classify(context.Background(), "something fine")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got != DecisionAllowed {
		t.Fatalf("Classify(clean) = %q, want %q", got, DecisionAllowed)
	}
}

func TestHTTPClassifierTimeoutFailsOpenThroughGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"results":[{"flagged":true}]}`))
	}))
	defer srv.Close()

	sink := audit.NewCaptureSink()
	c := NewHTTPClassifier(srv.URL, "", 20*time.Millisecond)
	g := NewGate(c, sink, zerolog.Nop())
	if !g.Allowed(context.Background(), "anything") {
		t.Fatal("timeout must fail open")
	}
	if sink.CountKind("moderation_fail_open") != 1 {
		t.Fatalf("moderation_fail_open events = %d, want 1", sink.CountKind("moderation_fail_open"))
	}
}

func readBody(t *testing.T, r *http.Request) string {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(raw)
}
