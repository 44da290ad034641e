package retrieval

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Record is one embedded utterance held for similarity lookup.
type Record struct {
	SessionID    string
	SourceText   string
	Vector       []float32
	ModelVersion string
	CreatedAt    time.Time
}

// Index is a brute-force cosine similarity index over a bounded window of the
// most recent embedded utterances per session. O(window) per query, which is
// the intended scale: per-user conversational recall, not corpus search.
// Swapping in a real vector index behind this type is the extension point.
type Index struct {
	mu      sync.RWMutex
	window  int
	records map[string][]Record
}

func NewIndex(window int) *Index {
	if window <= 0 {
		window = 200
	}
	return &Index{
		window:  window,
		records: make(map[string][]Record),
	}
}

// Add appends a record for the session, evicting the oldest once the window
// is full. Records tagged with a different embedding model version never
// rank against each other; mixing versions silently corrupts similarity.
func (x *Index) Add(sessionID, text string, vector []float32, modelVersion string) {
	x.AddRecord(Record{
		SessionID:    sessionID,
		SourceText:   text,
		Vector:       vector,
		ModelVersion: modelVersion,
		CreatedAt:    time.Now().UTC(),
	})
}

func (x *Index) AddRecord(r Record) {
	x.mu.Lock()
	defer x.mu.Unlock()
	arr := append(x.records[r.SessionID], r)
	if len(arr) > x.window {
		arr = arr[len(arr)-x.window:]
	}
	x.records[r.SessionID] = arr
}

// Query returns the topK most similar snippets for the session, most similar
// first. Ties rank most-recent-first. Scores stay internal to the index.
func (x *Index) Query(sessionID string, vector []float32, modelVersion string, topK int) []string {
	if topK <= 0 {
		return nil
	}

	x.mu.RLock()
	arr := x.records[sessionID]
	type candidate struct {
		text  string
		score float64
		order int
	}
	candidates := make([]candidate, 0, len(arr))
	for i, r := range arr {
		if r.ModelVersion != modelVersion {
			continue
		}
		candidates = append(candidates, candidate{
			text:  r.SourceText,
			score: cosineSimilarity(vector, r.Vector),
			order: i,
		})
	}
	x.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order > candidates[j].order
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]string, 0, topK)
	for _, c := range candidates[:topK] {
		out = append(out, c.text)
	}
	return out
}

// Size reports how many records are held for the session.
func (x *Index) Size(sessionID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records[sessionID])
}

// cosineSimilarity scores two vectors in [-1, 1]. Zero-norm or mismatched
// vectors score 0 rather than dividing by zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
