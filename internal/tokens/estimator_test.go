package tokens

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestHeuristicEstimatorFloor(t *testing.T) {
	e := HeuristicEstimator{}
	if got := e.Estimate(""); got != 0 {
		t.Fatalf("Estimate(\"\") = %d, want 0", got)
	}
	if got := e.Estimate("a"); got != 1 {
		t.Fatalf("Estimate(short) = %d, want 1", got)
	}
	if got := e.Estimate("abc"); got != 1 {
		t.Fatalf("Estimate(3 chars) = %d, want 1", got)
	}
}

func TestHeuristicEstimatorRatio(t *testing.T) {
	e := HeuristicEstimator{}
	text := strings.Repeat("x", 400)
	if got := e.Estimate(text); got != 100 {
		t.Fatalf("Estimate(400 chars) = %d, want 100", got)
	}
}

func TestNewEstimatorFallsBackOnUnknownModel(t *testing.T) {
	e := NewEstimator("definitely-not-a-model", zerolog.Nop())
	if e == nil {
		t.Fatal("NewEstimator returned nil")
	}
	if _, ok := e.(HeuristicEstimator); !ok {
		t.Fatalf("NewEstimator for unknown model = %T, want HeuristicEstimator", e)
	}
	if got := e.Estimate("hello world"); got < 1 {
		t.Fatalf("Estimate = %d, want >= 1", got)
	}
}
