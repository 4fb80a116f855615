// Package trace records the line-oriented event log of a scenario run.
//
// Each event gets a sequence number from the run's logical clock, which
// starts at 1 and never depends on wall time, and is tagged with the
// variant the run was started in, so a trace line reads:
//
//	[BUGGY] writer-3: read 200, wrote 201
//
// Downstream tooling parses lines by the bracketed tag prefix.
package trace

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// HarnessActor is the actor name used for lines the driver itself emits.
const HarnessActor = "harness"

// Event is one trace line.
type Event struct {
	Seq     int64         `json:"seq"`
	Actor   string        `json:"actor"`
	Message string        `json:"message"`
	Offset  time.Duration `json:"offset_ns"` // since the recorder was created
}

// Line formats an event with its tag the way it appears in text output.
func Line(tag string, e Event) string {
	return fmt.Sprintf("[%s] %s: %s", tag, e.Actor, e.Message)
}

// Sink receives events as they are recorded. Sinks are called with the
// recorder's lock held, so they see events in seq order; they must not call
// back into the recorder.
type Sink func(tag string, e Event)

// WriterSink returns a Sink that writes one formatted line per event to w.
func WriterSink(w io.Writer) Sink {
	return func(tag string, e Event) {
		fmt.Fprintln(w, Line(tag, e))
	}
}

// Recorder collects events for one run.
//
// Thread-safety: all methods are safe for concurrent use. Appends are
// serialized by an internal mutex so the stored order matches seq order.
type Recorder struct {
	tag    string
	start  time.Time
	logger *slog.Logger

	mu     sync.Mutex
	seq    int64
	events []Event
	sinks  []Sink
}

// NewRecorder creates a recorder whose lines carry tag.
// A nil logger discards the debug mirror.
func NewRecorder(tag string, logger *slog.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{
		tag:    tag,
		start:  time.Now(),
		logger: logger,
		events: make([]Event, 0, 64),
		sinks:  sinks,
	}
}

// Tag returns the variant tag the recorder was created with.
func (r *Recorder) Tag() string {
	return r.tag
}

// Logf records a line for actor.
func (r *Recorder) Logf(actor, format string, args ...any) {
	msg := strings.TrimRight(fmt.Sprintf(format, args...), "\n")

	r.mu.Lock()
	r.seq++
	e := Event{
		Seq:     r.seq,
		Actor:   actor,
		Message: msg,
		Offset:  time.Since(r.start),
	}
	r.events = append(r.events, e)
	for _, s := range r.sinks {
		s(r.tag, e)
	}
	r.mu.Unlock()

	r.logger.Debug("trace", "tag", r.tag, "actor", actor, "seq", e.Seq, "msg", msg)
}

// For returns a Logger bound to actor.
func (r *Recorder) For(actor string) *Logger {
	return &Logger{rec: r, actor: actor}
}

// Events returns a copy of every event recorded so far, in seq order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Logger is a Recorder bound to a single actor.
type Logger struct {
	rec   *Recorder
	actor string
}

// Logf records a line for the bound actor.
func (l *Logger) Logf(format string, args ...any) {
	l.rec.Logf(l.actor, format, args...)
}

// Actor returns the bound actor name.
func (l *Logger) Actor() string {
	return l.actor
}
