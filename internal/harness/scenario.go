package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

// DefaultTimeout is the watchdog used when a scenario declares none.
const DefaultTimeout = 5 * time.Second

// Scenario describes one reproducible concurrency hazard. Scenarios are
// defined in code, registered once and never modified afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario on the command line.
	Name string

	// Title is a short human-readable headline.
	Title string

	// Summary explains the hazard in a sentence or two.
	Summary string

	// Kind says whether the hazard corrupts state or hangs.
	Kind Kind

	// Resource names the shared resource under test.
	Resource string

	// Modes lists the variants the scenario supports. Buggy and Fixed are
	// always present.
	Modes []variant.Mode

	// Timeout is the watchdog for one run. Zero selects DefaultTimeout.
	Timeout time.Duration

	// Params declares the tunable parameters and their defaults.
	Params []Param

	// Flaky marks scenarios whose root cause is real OS timing. Only flaky
	// scenarios may declare jitter, and their buggy runs may come out
	// indeterminate.
	Flaky bool

	// Plan returns the timing plan for the resolved parameters.
	Plan func(p Params) coord.Plan

	// Build creates the shared resources, actors and invariant for one
	// run.
	Build func(env *BuildEnv) (*Setup, error)
}

// Supports reports whether the scenario has an implementation for m.
func (s *Scenario) Supports(m variant.Mode) bool {
	for _, have := range s.Modes {
		if have == m {
			return true
		}
	}
	return false
}

// Validate checks that the scenario is well formed.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Kind != KindRace && s.Kind != KindDeadlock {
		return fmt.Errorf("scenario %s: unknown kind %q", s.Name, s.Kind)
	}
	if !s.Supports(variant.Buggy) || !s.Supports(variant.Fixed) {
		return fmt.Errorf("scenario %s: must support buggy and fixed modes", s.Name)
	}
	if s.Build == nil {
		return fmt.Errorf("scenario %s: build function is required", s.Name)
	}
	seen := make(map[string]bool, len(s.Params))
	for _, p := range s.Params {
		if seen[p.Name] {
			return fmt.Errorf("scenario %s: parameter %q declared twice", s.Name, p.Name)
		}
		seen[p.Name] = true
		if err := p.check(p.Default); err != nil {
			return fmt.Errorf("scenario %s: default: %w", s.Name, err)
		}
	}
	return nil
}

// EffectiveTimeout returns the scenario's watchdog duration.
func (s *Scenario) EffectiveTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// ParamKind is the type of a declared parameter.
type ParamKind string

const (
	ParamInt      ParamKind = "int"
	ParamDuration ParamKind = "duration"
	ParamBool     ParamKind = "bool"
	ParamString   ParamKind = "string"
)

// Param declares a tunable scenario parameter.
type Param struct {
	Name    string
	Kind    ParamKind
	Default string
	Usage   string

	// Min is the smallest accepted value of an int or duration parameter,
	// written like a value. Empty means unbounded.
	Min string
}

// ParamError reports a parameter value a scenario cannot run with. Build
// functions return it for combinations a single Min cannot express.
type ParamError struct {
	Name   string
	Value  string
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("parameter %q: %s %q", e.Name, e.Reason, e.Value)
}

func (p Param) check(v string) error {
	var err error
	var n, min int64
	switch p.Kind {
	case ParamInt:
		var i int
		i, err = strconv.Atoi(v)
		n = int64(i)
	case ParamDuration:
		var d time.Duration
		d, err = time.ParseDuration(v)
		n = int64(d)
	case ParamBool:
		_, err = strconv.ParseBool(v)
	case ParamString:
	default:
		return fmt.Errorf("parameter %q: unknown kind %q", p.Name, p.Kind)
	}
	if err != nil {
		return &ParamError{Name: p.Name, Value: v, Reason: "invalid " + string(p.Kind)}
	}
	if p.Min == "" {
		return nil
	}
	switch p.Kind {
	case ParamInt:
		var i int
		i, err = strconv.Atoi(p.Min)
		min = int64(i)
	case ParamDuration:
		var d time.Duration
		d, err = time.ParseDuration(p.Min)
		min = int64(d)
	default:
		return fmt.Errorf("parameter %q: min is only allowed on int and duration", p.Name)
	}
	if err != nil {
		return fmt.Errorf("parameter %q: invalid min %q", p.Name, p.Min)
	}
	if n < min {
		return &ParamError{Name: p.Name, Value: v, Reason: "must be at least " + p.Min + ", got"}
	}
	return nil
}

// Params holds resolved parameter values. Values have been checked
// against their declared kind, so the typed getters do not fail.
type Params map[string]string

// ResolveParams applies overrides on top of the scenario's defaults.
// Unknown names and values of the wrong kind are rejected.
func (s *Scenario) ResolveParams(overrides map[string]string) (Params, error) {
	p := make(Params, len(s.Params))
	decl := make(map[string]Param, len(s.Params))
	for _, d := range s.Params {
		p[d.Name] = d.Default
		decl[d.Name] = d
	}

	names := make([]string, 0, len(overrides))
	for k := range overrides {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		d, ok := decl[k]
		if !ok {
			return nil, fmt.Errorf("scenario %s has no parameter %q", s.Name, k)
		}
		v := strings.TrimSpace(overrides[k])
		if err := d.check(v); err != nil {
			return nil, err
		}
		p[k] = v
	}
	return p, nil
}

// Int returns an integer parameter.
func (p Params) Int(name string) int {
	n, _ := strconv.Atoi(p[name])
	return n
}

// Duration returns a duration parameter.
func (p Params) Duration(name string) time.Duration {
	d, _ := time.ParseDuration(p[name])
	return d
}

// Bool returns a boolean parameter.
func (p Params) Bool(name string) bool {
	b, _ := strconv.ParseBool(p[name])
	return b
}

// String returns a parameter as given.
func (p Params) String(name string) string {
	return p[name]
}

// Step is one named unit of an actor's work. A step returning an error ends
// the actor as failed.
type Step struct {
	Name string
	Do   func(ctx context.Context, env *Env) error
}

// Actor is one concurrent participant in a scenario.
type Actor struct {
	Name  string
	Role  string
	Steps []Step
}

// Env is what a running actor sees: its name, the timing plan and its
// trace logger.
type Env struct {
	Actor  string
	Params Params
	Mode   variant.Mode

	coord *coord.Coordinator
	log   *trace.Logger
	step  string
}

// Logf adds a trace line for this actor.
func (e *Env) Logf(format string, args ...any) {
	e.log.Logf(format, args...)
}

// Reach blocks at a declared checkpoint until all of its parties arrive.
func (e *Env) Reach(ctx context.Context, checkpoint string) error {
	return e.coord.Reach(ctx, e.Actor, checkpoint)
}

// Fire releases a declared signal.
func (e *Env) Fire(name string) error {
	return e.coord.Fire(e.Actor, name)
}

// Await blocks until a declared signal fires.
func (e *Env) Await(ctx context.Context, name string) error {
	return e.coord.Await(ctx, e.Actor, name)
}

// Pause sleeps for a declared delay.
func (e *Env) Pause(ctx context.Context, name string) error {
	return e.coord.Pause(ctx, e.Actor, name)
}

// Jitter sleeps for a declared random delay.
func (e *Env) Jitter(ctx context.Context, name string) (time.Duration, error) {
	return e.coord.Jitter(ctx, e.Actor, name)
}

// Step returns the name of the step currently running.
func (e *Env) Step() string {
	return e.step
}

// BuildEnv is passed to Scenario.Build.
type BuildEnv struct {
	Mode   variant.Mode
	Params Params
	Trace  *trace.Recorder
	Logger *slog.Logger

	coord *coord.Coordinator
}

// Window returns a hook that parks the calling actor at checkpoint. It is
// meant for resources shared by several actors, where the caller is only
// known from the context.
func (b *BuildEnv) Window(checkpoint string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return b.coord.Reach(ctx, coord.ActorFrom(ctx), checkpoint)
	}
}

// Fire releases a declared signal on behalf of whichever actor ctx belongs
// to. Like Window it is for hooks inside shared resources.
func (b *BuildEnv) Fire(ctx context.Context, name string) error {
	return b.coord.Fire(coord.ActorFrom(ctx), name)
}

// Await blocks the actor ctx belongs to until a declared signal fires.
func (b *BuildEnv) Await(ctx context.Context, name string) error {
	return b.coord.Await(ctx, coord.ActorFrom(ctx), name)
}

// Log records a trace line attributed to whichever actor ctx belongs to.
func (b *BuildEnv) Log(ctx context.Context, format string, args ...any) {
	actor := coord.ActorFrom(ctx)
	if actor == "" {
		actor = trace.HarnessActor
	}
	b.Trace.Logf(actor, format, args...)
}

// Setup is the result of building a scenario for one run.
type Setup struct {
	// Actors run concurrently, one goroutine each.
	Actors []Actor

	// State snapshots the shared resources after every actor finished.
	State func() map[string]any

	// Invariant is the safety property checked against the outcome.
	Invariant Invariant

	// Cleanup releases OS resources (listeners, directories). Optional.
	Cleanup func() error
}

// Invariant is a named safety property over an OutcomeRecord.
type Invariant struct {
	Description string
	// Check returns whether the property held and a short explanation.
	Check func(rec OutcomeRecord) (held bool, detail string)
}
