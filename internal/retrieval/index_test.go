package retrieval

import (
	"fmt"
	"reflect"
	"testing"
)

const modelV1 = "embed-v1"

func TestQueryRanksBySimilarity(t *testing.T) {
	x := NewIndex(10)
	x.Add("s1", "about cats", []float32{1, 0, 0}, modelV1)
	x.Add("s1", "about dogs", []float32{0, 1, 0}, modelV1)
	x.Add("s1", "about birds", []float32{0.9, 0.1, 0}, modelV1)

	got := x.Query("s1", []float32{1, 0, 0}, modelV1, 2)
	want := []string{"about cats", "about birds"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Query = %v, want %v", got, want)
	}
}

func TestQueryIsIdempotent(t *testing.T) {
	x := NewIndex(10)
	for i := 0; i < 5; i++ {
		x.Add("s1", fmt.Sprintf("snippet %d", i), []float32{float32(i), 1, 0}, modelV1)
	}

	query := []float32{2, 1, 0}
	first := x.Query("s1", query, modelV1, 3)
	for i := 0; i < 10; i++ {
		if got := x.Query("s1", query, modelV1, 3); !reflect.DeepEqual(got, first) {
			t.Fatalf("Query run %d = %v, want %v", i, got, first)
		}
	}
}

func TestQueryTieBreaksMostRecentFirst(t *testing.T) {
	x := NewIndex(10)
	x.Add("s1", "older", []float32{1, 0}, modelV1)
	x.Add("s1", "newer", []float32{1, 0}, modelV1)

	got := x.Query("s1", []float32{1, 0}, modelV1, 2)
	want := []string{"newer", "older"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Query = %v, want %v", got, want)
	}
}

func TestQueryExcludesOtherModelVersions(t *testing.T) {
	x := NewIndex(10)
	x.Add("s1", "current", []float32{1, 0}, modelV1)
	x.Add("s1", "stale", []float32{1, 0}, "embed-v0")

	got := x.Query("s1", []float32{1, 0}, modelV1, 5)
	if !reflect.DeepEqual(got, []string{"current"}) {
		t.Fatalf("Query = %v, want only the current-version record", got)
	}
}

func TestZeroNormVectorScoresZero(t *testing.T) {
	x := NewIndex(10)
	x.Add("s1", "zero", []float32{0, 0, 0}, modelV1)
	x.Add("s1", "real", []float32{0.1, 0, 0}, modelV1)

	got := x.Query("s1", []float32{1, 0, 0}, modelV1, 2)
	want := []string{"real", "zero"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Query = %v, want %v", got, want)
	}
}

func TestWindowEvictsOldest(t *testing.T) {
	x := NewIndex(3)
	for i := 0; i < 5; i++ {
		x.Add("s1", fmt.Sprintf("snippet %d", i), []float32{1, 0}, modelV1)
	}
	if got := x.Size("s1"); got != 3 {
		t.Fatalf("Size = %d, want 3", got)
	}
	got := x.Query("s1", []float32{1, 0}, modelV1, 10)
	want := []string{"snippet 4", "snippet 3", "snippet 2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Query = %v, want %v", got, want)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	x := NewIndex(10)
	x.Add("s1", "mine", []float32{1, 0}, modelV1)
	x.Add("s2", "theirs", []float32{1, 0}, modelV1)

	got := x.Query("s1", []float32{1, 0}, modelV1, 5)
	if !reflect.DeepEqual(got, []string{"mine"}) {
		t.Fatalf("Query = %v, want only session s1 records", got)
	}
}
