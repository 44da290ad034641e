package audit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Sink records pipeline events for later inspection. Record is
// fire-and-forget: it must never block and never fails the caller.
type Sink interface {
	Record(kind string, fields map[string]any)
}

// LogSink writes audit events as structured log lines.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(kind string, fields map[string]any) {
	s.logger.Info().Str("event", kind).Fields(fields).Msg("audit")
}

// CountingSink counts events by kind and forwards them to the wrapped sink.
type CountingSink struct {
	next    Sink
	counter *prometheus.CounterVec
}

func NewCountingSink(next Sink, counter *prometheus.CounterVec) *CountingSink {
	if next == nil {
		next = NopSink{}
	}
	return &CountingSink{next: next, counter: counter}
}

func (s *CountingSink) Record(kind string, fields map[string]any) {
	if s.counter != nil {
		s.counter.WithLabelValues(kind).Inc()
	}
	s.next.Record(kind, fields)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(string, map[string]any) {}

// CaptureSink retains events in memory for tests.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

type Event struct {
	Kind   string
	Fields map[string]any
}

func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

func (s *CaptureSink) Record(kind string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	s.events = append(s.events, Event{Kind: kind, Fields: copied})
}

func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *CaptureSink) CountKind(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
