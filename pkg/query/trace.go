package query

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventConsideredSourceIDs TraceEventKind = "considered_source_ids"
	TraceEventUsedSourceIDs       TraceEventKind = "used_source_ids"
	TraceEventSeedEntityIDs       TraceEventKind = "seed_entity_ids"
	TraceEventCommunityIDs        TraceEventKind = "community_ids"
	TraceEventGapFilledDocIDs     TraceEventKind = "gap_filled_doc_ids"
	TraceEventSubQuestions        TraceEventKind = "sub_questions"
	TraceEventTruncated           TraceEventKind = "truncated"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	SourceIDs    []string
	EntityIDs    []string
	CommunityIDs []string
	DocumentIDs  []string
	SubQuestions []string

	Truncated bool
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, telemetry, or custom
// post-processing pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordConsideredSourceIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventConsideredSourceIDs, SourceIDs: ids})
}

func RecordUsedSourceIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventUsedSourceIDs, SourceIDs: ids})
}

func RecordSeedEntityIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventSeedEntityIDs, EntityIDs: ids})
}

func RecordCommunityIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventCommunityIDs, CommunityIDs: ids})
}

func RecordGapFilledDocIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventGapFilledDocIDs, DocumentIDs: ids})
}

func RecordSubQuestions(t Tracer, questions ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventSubQuestions, SubQuestions: questions})
}

func RecordTruncated(t Tracer) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventTruncated, Truncated: true})
}

// QueryTrace collects what data was considered and used during a query run.
//
// This is primarily used to expose query metadata like "sources considered"
// alongside the answer.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	consideredSourceIDs map[string]struct{}
	usedSourceIDs       map[string]struct{}
	seedEntityIDs       map[string]struct{}
	communityIDs        map[string]struct{}
	gapFilledDocIDs     map[string]struct{}
	subQuestions        []string
	truncated           bool
}

type QueryTraceSnapshot struct {
	ConsideredSourceIDs []string `json:"considered_source_ids"`
	UsedSourceIDs       []string `json:"used_source_ids"`
	SeedEntityIDs       []string `json:"seed_entity_ids,omitempty"`
	CommunityIDs        []string `json:"community_ids,omitempty"`
	GapFilledDocIDs     []string `json:"gap_filled_doc_ids,omitempty"`
	SubQuestions        []string `json:"sub_questions,omitempty"`
	Truncated           bool     `json:"truncated"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		consideredSourceIDs: make(map[string]struct{}),
		usedSourceIDs:       make(map[string]struct{}),
		seedEntityIDs:       make(map[string]struct{}),
		communityIDs:        make(map[string]struct{}),
		gapFilledDocIDs:     make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventConsideredSourceIDs:
		addAll(t.consideredSourceIDs, event.SourceIDs)
	case TraceEventUsedSourceIDs:
		addAll(t.usedSourceIDs, event.SourceIDs)
	case TraceEventSeedEntityIDs:
		addAll(t.seedEntityIDs, event.EntityIDs)
	case TraceEventCommunityIDs:
		addAll(t.communityIDs, event.CommunityIDs)
	case TraceEventGapFilledDocIDs:
		addAll(t.gapFilledDocIDs, event.DocumentIDs)
	case TraceEventSubQuestions:
		for _, q := range event.SubQuestions {
			if q == "" {
				continue
			}
			t.subQuestions = append(t.subQuestions, q)
		}
	case TraceEventTruncated:
		t.truncated = t.truncated || event.Truncated
	default:
		return
	}
}

func addAll(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := QueryTraceSnapshot{
		ConsideredSourceIDs: setToSorted(t.consideredSourceIDs),
		UsedSourceIDs:       setToSorted(t.usedSourceIDs),
		SeedEntityIDs:       setToSorted(t.seedEntityIDs),
		CommunityIDs:        setToSorted(t.communityIDs),
		GapFilledDocIDs:     setToSorted(t.gapFilledDocIDs),
		SubQuestions:        append([]string(nil), t.subQuestions...),
		Truncated:           t.truncated,
	}
	return s
}

func setToSorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
