package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

// DefaultGrace is how long actors get to unwind after the watchdog fires.
const DefaultGrace = time.Second

// Option configures a run.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	seed    *uint64
	timeout time.Duration
	grace   time.Duration
	params  map[string]string
	sinks   []trace.Sink
	ids     RunIDGenerator
}

func newConfig(opts []Option) *config {
	c := &config{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		grace:  DefaultGrace,
		ids:    UUIDv7Generator{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithLogger sets the structured logger. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSeed fixes the jitter seed.
func WithSeed(seed uint64) Option {
	return func(c *config) { c.seed = &seed }
}

// WithTimeout overrides the scenario's watchdog.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithGrace sets how long actors get to unwind after the watchdog fires.
func WithGrace(d time.Duration) Option {
	return func(c *config) { c.grace = d }
}

// WithParams overrides scenario parameters.
func WithParams(p map[string]string) Option {
	return func(c *config) { c.params = p }
}

// WithTraceSink streams trace lines as they are recorded.
func WithTraceSink(s trace.Sink) Option {
	return func(c *config) { c.sinks = append(c.sinks, s) }
}

// WithRunIDGenerator replaces the UUIDv7 run ID source.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(c *config) { c.ids = g }
}

// Run executes scenario sc once in mode.
//
// Execution flow:
//  1. Validate the mode and parameters, build the coordinator, recorder
//     and the scenario's resources
//  2. Start one goroutine per actor
//  3. Wait for every actor, the watchdog, or ctx
//  4. On a watchdog fire, cancel the run context, give actors the grace
//     period to unwind and skip invariant checking
//  5. Otherwise snapshot state and verify the invariant
//
// An unsupported mode, a bad parameter or a timing plan the parameters
// make invalid is a plain error and no Result is returned. A harness fault returns both a Result (with Verdict
// VerdictFault) and the *FaultError.
func Run(ctx context.Context, sc *Scenario, mode variant.Mode, opts ...Option) (*Result, error) {
	if !sc.Supports(mode) {
		return nil, &variant.UnknownModeError{Mode: string(mode), Resource: sc.Name, Available: sc.Modes}
	}
	cfg := newConfig(opts)
	params, err := sc.ResolveParams(cfg.params)
	if err != nil {
		return nil, err
	}

	co, err := newCoordinator(sc, params, cfg.seed)
	if err != nil {
		return nil, err
	}

	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = sc.EffectiveTimeout()
	}

	res := &Result{
		RunID:     cfg.ids.Generate(),
		Scenario:  sc.Name,
		Mode:      mode,
		Tag:       mode.Tag(),
		Params:    maps.Clone(params),
		StartedAt: time.Now(),
	}
	logger := cfg.logger.With("scenario", sc.Name, "mode", string(mode), "run_id", res.RunID)

	d := &driver{sc: sc, mode: mode, params: params, logger: logger, grace: cfg.grace, coord: co}
	err = d.run(ctx, cfg, timeout, res)
	res.Elapsed = time.Since(res.StartedAt)
	if d.rec != nil {
		res.Trace = d.rec.Events()
	}

	var pe *ParamError
	if errors.As(err, &pe) {
		return nil, err
	}
	var fe *FaultError
	if errors.As(err, &fe) {
		res.Verdict = VerdictFault
		res.Reason = fe.Message
		res.Fault = fe
		logger.Warn("run ended in harness fault", "code", fe.Code, "actor", fe.Actor, "checkpoint", fe.Checkpoint)
		return res, fe
	}
	if err != nil {
		return nil, err
	}
	logger.Info("run complete", "verdict", res.Verdict, "timed_out", res.TimedOut, "elapsed", res.Elapsed)
	return res, nil
}

type driver struct {
	sc     *Scenario
	mode   variant.Mode
	params Params
	logger *slog.Logger
	grace  time.Duration

	coord *coord.Coordinator
	rec   *trace.Recorder
}

func (d *driver) fault(code FaultCode, actor, checkpoint string, cause error, format string, args ...any) *FaultError {
	return &FaultError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Scenario:   d.sc.Name,
		Actor:      actor,
		Checkpoint: checkpoint,
		Cause:      cause,
	}
}

// newCoordinator builds the timing plan for params. A plan the
// parameters make invalid (a zero-party checkpoint, an empty jitter range)
// is an input error, not a harness fault.
func newCoordinator(sc *Scenario, params Params, seed *uint64) (*coord.Coordinator, error) {
	var plan coord.Plan
	if sc.Plan != nil {
		plan = sc.Plan(params)
	}
	plan.Flaky = sc.Flaky

	var opts []coord.Option
	if seed != nil {
		opts = append(opts, coord.WithSeed(*seed))
	}
	co, err := coord.New(plan, opts...)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: invalid timing plan for these parameters: %w", sc.Name, err)
	}
	return co, nil
}

func (d *driver) run(ctx context.Context, cfg *config, timeout time.Duration, res *Result) error {
	co := d.coord
	res.Seed = co.Seed()

	d.rec = trace.NewRecorder(d.mode.Tag(), d.logger, cfg.sinks...)
	d.rec.Logf(trace.HarnessActor, "scenario %s starting (seed %d, timeout %s)", d.sc.Name, co.Seed(), timeout)

	setup, err := d.sc.Build(&BuildEnv{
		Mode:   d.mode,
		Params: d.params,
		Trace:  d.rec,
		Logger: d.logger,
		coord:  co,
	})
	var pe *ParamError
	if errors.As(err, &pe) {
		return err
	}
	if err != nil {
		return d.fault(FaultSetup, "", "", err, "build failed: %v", err)
	}
	if setup.Cleanup != nil {
		defer func() {
			if err := setup.Cleanup(); err != nil {
				d.logger.Warn("scenario cleanup failed", "error", err)
			}
		}()
	}
	res.Invariant = setup.Invariant.Description

	outcomes, errs, timedOut, interrupted := d.execute(ctx, setup.Actors, timeout)
	res.TimedOut = timedOut
	res.Outcome = OutcomeRecord{Actors: outcomes}

	for _, o := range outcomes {
		if o.Status == StatusPanicked {
			cp := d.coord.Position(o.Actor)
			if cp == "" {
				cp = o.LastStep
			}
			return d.fault(FaultActorPanic, o.Actor, cp, nil, "actor panicked: %s", o.Reason)
		}
	}
	for i, err := range errs {
		var ue *coord.UndeclaredError
		if errors.As(err, &ue) {
			return d.fault(FaultCoordination, outcomes[i].Actor, outcomes[i].LastStep, err, "%v", ue)
		}
	}
	for i, err := range errs {
		var be *coord.BrokenError
		if !errors.As(err, &be) {
			continue
		}
		cp := d.coord.Position(be.By)
		if o, ok := res.Outcome.Actor(be.By); ok && cp == "" {
			cp = o.LastStep
		}
		return d.fault(FaultCoordination, be.By, cp, be.Cause,
			"%s left the run early and %s was stranded at %q: %v", be.By, outcomes[i].Actor, be.Point, be.Cause)
	}
	if interrupted {
		return d.fault(FaultInterrupted, "", "", ctx.Err(), "run cancelled by caller")
	}

	if timedOut {
		if d.sc.Kind == KindDeadlock {
			res.Verdict = VerdictViolated
			res.Reason = "watchdog fired"
			d.rec.Logf(trace.HarnessActor, "deadlock demonstrated: watchdog fired after %s", timeout)
			return nil
		}
		stuck := firstStuck(outcomes)
		return NewTimeoutFault(d.sc.Name, stuck.Actor, d.coord.Position(stuck.Actor), timeout)
	}

	if setup.State != nil {
		res.Outcome.State = setup.State()
	}
	res.Verdict, res.Reason = Verify(d.mode, setup.Invariant, res.Outcome)
	d.rec.Logf(trace.HarnessActor, "%s: %s", res.Verdict, res.Reason)
	return nil
}

// execute runs every actor and returns their outcomes and step errors in
// declaration order, whether the watchdog fired, and whether ctx was
// cancelled.
func (d *driver) execute(ctx context.Context, actors []Actor, timeout time.Duration) ([]ActorOutcome, []error, bool, bool) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type done struct {
		idx int
		out ActorOutcome
		err error
	}
	ch := make(chan done, len(actors))
	for i, a := range actors {
		go func() {
			out, err := d.runActor(runCtx, a)
			ch <- done{idx: i, out: out, err: err}
		}()
	}

	outcomes := make([]ActorOutcome, len(actors))
	errs := make([]error, len(actors))
	finished := make([]bool, len(actors))
	remaining := len(actors)

	watchdog := time.NewTimer(timeout)
	defer watchdog.Stop()

	timedOut, interrupted := false, false
	for remaining > 0 && !timedOut && !interrupted {
		select {
		case r := <-ch:
			outcomes[r.idx], errs[r.idx] = r.out, r.err
			finished[r.idx] = true
			remaining--
		case <-watchdog.C:
			timedOut = true
		case <-ctx.Done():
			interrupted = true
		}
	}
	if remaining == 0 {
		return outcomes, errs, false, false
	}

	if timedOut {
		d.rec.Logf(trace.HarnessActor, "watchdog fired after %s; %s", timeout, d.describeWaiting(actors, finished))
	}
	cancel()

	grace := time.NewTimer(d.grace)
	defer grace.Stop()
	for remaining > 0 {
		select {
		case r := <-ch:
			outcomes[r.idx], errs[r.idx] = r.out, r.err
			finished[r.idx] = true
			remaining--
			continue
		case <-grace.C:
		}
		break
	}

	for i, a := range actors {
		if finished[i] {
			continue
		}
		d.logger.Warn("actor did not unwind within grace period", "actor", a.Name, "position", d.coord.Position(a.Name))
		outcomes[i] = ActorOutcome{
			Actor:    a.Name,
			Role:     a.Role,
			Status:   StatusTimedOut,
			Reason:   "did not unwind after cancellation",
			LastStep: d.coord.Position(a.Name),
		}
	}
	return outcomes, errs, timedOut, interrupted
}

func (d *driver) describeWaiting(actors []Actor, finished []bool) string {
	var parts []string
	for i, a := range actors {
		if finished[i] {
			continue
		}
		pos := d.coord.Position(a.Name)
		if pos == "" {
			pos = "?"
		}
		parts = append(parts, fmt.Sprintf("%s@%s", a.Name, pos))
	}
	sort.Strings(parts)
	return "still running: " + strings.Join(parts, ", ")
}

// runActor executes one actor's steps and converts whatever happens into
// an ActorOutcome, returning the failing step's error alongside. It never
// panics.
func (d *driver) runActor(ctx context.Context, a Actor) (out ActorOutcome, stepErr error) {
	start := time.Now()
	env := &Env{
		Actor:  a.Name,
		Params: d.params,
		Mode:   d.mode,
		coord:  d.coord,
		log:    d.rec.For(a.Name),
	}
	actx := coord.WithActor(ctx, a.Name)
	out = ActorOutcome{Actor: a.Name, Role: a.Role, Status: StatusSucceeded}

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusPanicked
			out.Reason = fmt.Sprint(r)
			out.LastStep = env.step
			d.rec.Logf(a.Name, "panicked in step %s: %v", env.step, r)
			d.coord.Break(a.Name, fmt.Errorf("panic in %s: %v", a.Name, r))
		}
		out.Elapsed = time.Since(start)
	}()

	for _, s := range a.Steps {
		env.step = s.Name
		err := s.Do(actx, env)
		if err == nil {
			continue
		}
		out.LastStep = s.Name
		out.Status, out.Reason = classify(ctx, err)
		d.rec.Logf(a.Name, "%s in step %s: %v", out.Status, s.Name, err)
		// The actor will never reach another checkpoint or fire another
		// signal, so peers waiting on it are released now rather than at
		// the watchdog. An actor that failed because it was itself broken
		// leaves the original culprit in place.
		if out.Status == StatusFailed && !errors.Is(err, coord.ErrBroken) {
			d.coord.Break(a.Name, fmt.Errorf("%s failed in step %s: %w", a.Name, s.Name, err))
		}
		return out, err
	}
	out.LastStep = env.step
	return out, nil
}

func classify(ctx context.Context, err error) (Status, string) {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return StatusTimedOut, "cancelled by watchdog: " + err.Error()
	}
	return StatusFailed, err.Error()
}

func firstStuck(outcomes []ActorOutcome) ActorOutcome {
	for _, o := range outcomes {
		if o.Status == StatusTimedOut {
			return o
		}
	}
	if len(outcomes) > 0 {
		return outcomes[0]
	}
	return ActorOutcome{}
}
