// Package decisionlog implements the structured, append-only decision log
// (spec.md C10): one event per resolver decision, with a pluggable backend.
// Events reach the sink in the order callers emit them; the Log does not
// group or reorder them into sections, so, for example, conflict,
// advisory and suggested-redirect events appear interleaved.
//
// The tagged-event-kind shape is grounded on the teacher's reporter
// package (reporter/errors.go's ErrorWithPos / AlreadyDefinedError):
// structured, typed failures rather than a single string-typed "reason"
// field, generalized here from "one error type" to "one event stream".
package decisionlog

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Kind enumerates the exact event kinds from spec.md §4.10.
type Kind int

const (
	KindInput Kind = iota
	KindPrimaryOrDependency
	KindConsidered
	KindResolved
	KindConflict
	KindSuggestedRedirect
	KindCopyLocalDecision
	KindExclusionApplied
	KindAdvisory
	KindWarning
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "Input"
	case KindPrimaryOrDependency:
		return "PrimaryOrDependency"
	case KindConsidered:
		return "Considered"
	case KindResolved:
		return "Resolved"
	case KindConflict:
		return "Conflict"
	case KindSuggestedRedirect:
		return "SuggestedRedirect"
	case KindCopyLocalDecision:
		return "CopyLocalDecision"
	case KindExclusionApplied:
		return "ExclusionApplied"
	case KindAdvisory:
		return "Advisory"
	case KindWarning:
		return "Warning"
	case KindError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is one entry in the decision log. Not every field is populated
// for every Kind; see the Log methods below for which fields each kind
// sets.
type Event struct {
	Seq      int64  `json:"seq"`
	Kind     Kind   `json:"kind"`
	Name     string `json:"name,omitempty"`
	Value    string `json:"value,omitempty"`
	Identity string `json:"identity,omitempty"`
	Location string `json:"location,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Winner   string `json:"winner,omitempty"`
	Loser    string `json:"loser,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Sink receives events as they are emitted. The decision log itself stays
// append-only and single-writer (spec.md §5); a Sink implementation must
// not block the caller indefinitely.
type Sink interface {
	Emit(Event)
}

// SliceSink accumulates events in memory, in emission order. Useful for
// tests and for the root resolver's final in-memory result.
type SliceSink struct {
	mu     sync.Mutex
	Events []Event
}

func (s *SliceSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, e)
}

func (s *SliceSink) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.Events))
	copy(out, s.Events)
	return out
}

// JSONSink writes newline-delimited JSON events to an io.Writer. This is
// the one concrete backend this repo ships (spec.md leaves the backend
// "pluggable (§6)"); it is suitable for golden-file tests and for feeding
// an external console renderer, the out-of-scope consumer named in §1.
type JSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONSink(w io.Writer) *JSONSink { return &JSONSink{w: w} }

func (s *JSONSink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.w)
	_ = enc.Encode(e)
}

// Log is the single-writer, append-only event stream. A resolver
// invocation owns exactly one Log.
type Log struct {
	sink  Sink
	log   *slog.Logger
	seq   atomic.Int64
	errs  atomic.Int64
	warns atomic.Int64
}

// New constructs a Log writing to sink. Warning/Error/Advisory events are
// also mirrored to log at matching levels (nil uses slog.Default()),
// matching compiler.go's log/slog-based Hooks diagnostics path.
func New(sink Sink, log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{sink: sink, log: log}
}

func (l *Log) emit(e Event) {
	e.Seq = l.seq.Add(1)
	l.sink.Emit(e)
}

func (l *Log) Input(name, value string) {
	l.emit(Event{Kind: KindInput, Name: name, Value: value})
}

func (l *Log) PrimaryOrDependency(identity string, isPrimary bool) {
	kind := "Dependency"
	if isPrimary {
		kind = "Primary"
	}
	l.emit(Event{Kind: KindPrimaryOrDependency, Identity: identity, Reason: kind})
}

func (l *Log) Considered(location, reason string) {
	l.emit(Event{Kind: KindConsidered, Location: location, Reason: reason})
}

func (l *Log) Resolved(identity, location string) {
	l.emit(Event{Kind: KindResolved, Identity: identity, Location: location})
}

func (l *Log) Conflict(winner, loser, reason string) {
	l.emit(Event{Kind: KindConflict, Winner: winner, Loser: loser, Reason: reason})
}

func (l *Log) SuggestedRedirect(partialIdentity, newVersion string) {
	l.emit(Event{Kind: KindSuggestedRedirect, Identity: partialIdentity, Value: newVersion})
}

func (l *Log) CopyLocalDecision(identity, reason string) {
	l.emit(Event{Kind: KindCopyLocalDecision, Identity: identity, Reason: reason})
}

func (l *Log) ExclusionApplied(identity, subsetName string) {
	l.emit(Event{Kind: KindExclusionApplied, Identity: identity, Name: subsetName})
}

func (l *Log) Advisory(message string) {
	l.emit(Event{Kind: KindAdvisory, Message: message})
	l.log.Debug("resolver advisory", "message", message)
}

func (l *Log) Warning(code, message string) {
	l.warns.Add(1)
	l.emit(Event{Kind: KindWarning, Code: code, Message: message})
	l.log.Warn("resolver warning", "code", code, "message", message)
}

func (l *Log) Error(code, message string) {
	l.errs.Add(1)
	l.emit(Event{Kind: KindError, Code: code, Message: message})
	l.log.Error("resolver error", "code", code, "message", message)
}

// ErrorCount and WarningCount support spec.md §6's exit-semantics rule
// ("success = false iff any logged event has kind Error").
func (l *Log) ErrorCount() int64   { return l.errs.Load() }
func (l *Log) WarningCount() int64 { return l.warns.Load() }
func (l *Log) Success() bool       { return l.errs.Load() == 0 }
