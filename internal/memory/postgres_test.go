package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/davejenn/juniper/internal/reliability"
)

func TestClassifyStoreError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"connection failure class", &pgconn.PgError{Code: "08006"}, true},
		{"sequence conflict", &pgconn.PgError{Code: "23505", ConstraintName: "turns_session_id_sequence_key"}, true},
		{"unique violation elsewhere", &pgconn.PgError{Code: "23505", ConstraintName: "turns_pkey"}, false},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, false},
		{"dial error", errors.New("connection refused"), true},
		{"cancelled", context.Canceled, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := reliability.IsRetryable(classifyStoreError(tc.err))
			if got != tc.retryable {
				t.Fatalf("IsRetryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestSequenceConflictIsRetriedToSuccess(t *testing.T) {
	supervisor := reliability.NewSupervisor(2, time.Millisecond, "", nil, nil, zerolog.Nop())

	attempts := 0
	got, err := reliability.Do(context.Background(), supervisor, "append_turn", func(context.Context) (Turn, error) {
		attempts++
		if attempts == 1 {
			return Turn{}, classifyStoreError(&pgconn.PgError{
				Code:           "23505",
				ConstraintName: "turns_session_id_sequence_key",
			})
		}
		return Turn{SessionID: "s1", Sequence: 2}, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want the second attempt to win the sequence race", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if got.Sequence != 2 {
		t.Fatalf("sequence = %d, want 2", got.Sequence)
	}
}

func TestVectorEncodeParseRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 0, 3}
	got, err := parseVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("parseVector() error = %v", err)
	}
	if !reflect.DeepEqual(got, vec) {
		t.Fatalf("round trip = %v, want %v", got, vec)
	}
}

func TestParseVectorRejectsGarbage(t *testing.T) {
	if _, err := parseVector("[1,banana]"); err == nil {
		t.Fatal("parseVector should reject non-numeric entries")
	}
}

func TestParseVectorEmpty(t *testing.T) {
	got, err := parseVector("[]")
	if err != nil {
		t.Fatalf("parseVector() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}
