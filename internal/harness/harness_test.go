package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/racelab/internal/coord"
	"github.com/roach88/racelab/internal/testutil"
	"github.com/roach88/racelab/internal/trace"
	"github.com/roach88/racelab/internal/variant"
)

// tally is a toy counter: the buggy path reads, waits at a barrier with
// everyone else, then writes; the fixed path holds a mutex throughout.
func tally() *Scenario {
	return &Scenario{
		Name:     "tally",
		Title:    "toy lost update",
		Kind:     KindRace,
		Resource: "counter",
		Modes:    []variant.Mode{variant.Buggy, variant.Fixed},
		Timeout:  2 * time.Second,
		Params: []Param{
			{Name: "actors", Kind: ParamInt, Default: "3"},
		},
		Plan: func(p Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "window", Parties: p.Int("actors")}}}
		},
		Build: func(b *BuildEnv) (*Setup, error) {
			var mu sync.Mutex
			value := 0
			n := b.Params.Int("actors")

			var actors []Actor
			for i := 0; i < n; i++ {
				actors = append(actors, Actor{
					Name: fmt.Sprintf("adder-%d", i),
					Role: "adder",
					Steps: []Step{{Name: "add", Do: func(ctx context.Context, env *Env) error {
						if b.Mode.IsFixed() {
							if err := env.Reach(ctx, "window"); err != nil {
								return err
							}
							mu.Lock()
							value++
							mu.Unlock()
							return nil
						}
						mu.Lock()
						cur := value
						mu.Unlock()
						if err := env.Reach(ctx, "window"); err != nil {
							return err
						}
						mu.Lock()
						value = cur + 1
						mu.Unlock()
						return nil
					}}},
				})
			}
			return &Setup{
				Actors:    actors,
				State:     func() map[string]any { return map[string]any{"value": value} },
				Invariant: CounterEquals("value", int64(n)),
			}, nil
		},
	}
}

// lonely has a single actor wait at a two-party barrier forever.
func lonely(kind Kind) *Scenario {
	return &Scenario{
		Name:    "lonely",
		Kind:    kind,
		Modes:   []variant.Mode{variant.Buggy, variant.Fixed},
		Timeout: 30 * time.Millisecond,
		Plan: func(Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "meet", Parties: 2}}}
		},
		Build: func(*BuildEnv) (*Setup, error) {
			return &Setup{
				Actors: []Actor{{Name: "waiter", Steps: []Step{{Name: "wait", Do: func(ctx context.Context, env *Env) error {
					return env.Reach(ctx, "meet")
				}}}}},
				Invariant: AllSucceeded(),
			}, nil
		},
	}
}

func TestRun_BuggyViolatesFixedHolds(t *testing.T) {
	sc := tally()
	require.NoError(t, sc.Validate())

	res, err := Run(context.Background(), sc, variant.Buggy)
	require.NoError(t, err)
	assert.Equal(t, VerdictViolated, res.Verdict)
	assert.Contains(t, res.Reason, "value = 1, expected 3")
	assert.True(t, res.Expected())
	assert.Equal(t, "BUGGY", res.Tag)

	res, err = Run(context.Background(), sc, variant.Fixed)
	require.NoError(t, err)
	assert.Equal(t, VerdictHeld, res.Verdict)
	assert.True(t, res.Expected())
	assert.Equal(t, 3, res.Outcome.State["value"])
	assert.Equal(t, 3, res.Outcome.Count("adder", StatusSucceeded))
}

func TestRun_BuggyHeldIsIndeterminate(t *testing.T) {
	res, err := Run(context.Background(), tally(), variant.Buggy, WithParams(map[string]string{"actors": "1"}))
	require.NoError(t, err)
	assert.Equal(t, VerdictIndeterminate, res.Verdict)
	assert.False(t, res.Expected())
	assert.Contains(t, res.Reason, "did not manifest")
}

func TestRun_DeadlockTimeoutIsDemonstration(t *testing.T) {
	res, err := Run(context.Background(), lonely(KindDeadlock), variant.Buggy)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, VerdictViolated, res.Verdict)
	assert.Equal(t, "watchdog fired", res.Reason)
	assert.True(t, res.Expected())

	waiter, ok := res.Outcome.Actor("waiter")
	require.True(t, ok)
	assert.Equal(t, StatusTimedOut, waiter.Status)
	assert.Nil(t, res.Outcome.State, "live state is never inspected after a watchdog fire")
}

func TestRun_RaceTimeoutIsFault(t *testing.T) {
	res, err := Run(context.Background(), lonely(KindRace), variant.Fixed)
	require.Error(t, err)
	assert.True(t, IsTimeoutFault(err))
	assert.True(t, IsFault(err))

	require.NotNil(t, res)
	assert.Equal(t, VerdictFault, res.Verdict)
	require.NotNil(t, res.Fault)
	assert.Equal(t, "waiter", res.Fault.Actor)
	assert.Equal(t, "meet", res.Fault.Checkpoint)
}

func TestRun_PanicBreaksBarrierAndNamesActor(t *testing.T) {
	sc := &Scenario{
		Name:    "crash",
		Kind:    KindRace,
		Modes:   []variant.Mode{variant.Buggy, variant.Fixed},
		Timeout: 5 * time.Second,
		Plan: func(Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{
				{Name: "armed", Parties: 1},
				{Name: "sync", Parties: 3},
			}}
		},
		Build: func(*BuildEnv) (*Setup, error) {
			wait := Step{Name: "sync", Do: func(ctx context.Context, env *Env) error {
				return env.Reach(ctx, "sync")
			}}
			return &Setup{
				Actors: []Actor{
					{Name: "crasher", Steps: []Step{
						{Name: "arm", Do: func(ctx context.Context, env *Env) error { return env.Reach(ctx, "armed") }},
						{Name: "explode", Do: func(context.Context, *Env) error { panic("boom") }},
					}},
					{Name: "survivor-1", Steps: []Step{wait}},
					{Name: "survivor-2", Steps: []Step{wait}},
				},
				Invariant: AllSucceeded(),
			}, nil
		},
	}

	start := time.Now()
	res, err := Run(context.Background(), sc, variant.Buggy)
	assert.Less(t, time.Since(start), time.Second, "broken barrier must not wait for the watchdog")

	require.True(t, IsPanicFault(err))
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "crasher", fe.Actor)
	assert.Equal(t, "armed", fe.Checkpoint)
	assert.Contains(t, fe.Message, "boom")

	for _, name := range []string{"survivor-1", "survivor-2"} {
		o, ok := res.Outcome.Actor(name)
		require.True(t, ok)
		assert.Equal(t, StatusFailed, o.Status)
		assert.Contains(t, o.Reason, "coordination broken by crasher")
	}
}

// deserter has one actor fail before a barrier its peer is waiting at.
func deserter(kind Kind) *Scenario {
	sc := lonely(kind)
	sc.Timeout = 5 * time.Second
	sc.Build = func(*BuildEnv) (*Setup, error) {
		return &Setup{
			Actors: []Actor{
				{Name: "quitter", Steps: []Step{
					{Name: "load", Do: func(context.Context, *Env) error { return errors.New("disk full") }},
					{Name: "meet", Do: func(ctx context.Context, env *Env) error { return env.Reach(ctx, "meet") }},
				}},
				{Name: "waiter", Steps: []Step{{Name: "wait", Do: func(ctx context.Context, env *Env) error {
					return env.Reach(ctx, "meet")
				}}}},
			},
			Invariant: AllSucceeded(),
		}, nil
	}
	return sc
}

func TestRun_FailedActorBreaksCoordination(t *testing.T) {
	for _, kind := range []Kind{KindDeadlock, KindRace} {
		t.Run(string(kind), func(t *testing.T) {
			start := time.Now()
			res, err := Run(context.Background(), deserter(kind), variant.Fixed)
			assert.Less(t, time.Since(start), time.Second, "peers are released without waiting for the watchdog")

			var fe *FaultError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, FaultCoordination, fe.Code)
			assert.Equal(t, "quitter", fe.Actor)
			assert.Equal(t, "load", fe.Checkpoint)
			assert.Contains(t, fe.Message, "waiter was stranded")
			assert.ErrorContains(t, fe, "disk full")

			require.NotNil(t, res)
			assert.False(t, res.TimedOut)
			assert.Equal(t, VerdictFault, res.Verdict)
			waiter, ok := res.Outcome.Actor("waiter")
			require.True(t, ok)
			assert.Equal(t, StatusFailed, waiter.Status)
			assert.Contains(t, waiter.Reason, "coordination broken by quitter")
		})
	}
}

func TestRun_ExpectedLastStepFailureIsNotAFault(t *testing.T) {
	sc := deserter(KindRace)
	sc.Build = func(*BuildEnv) (*Setup, error) {
		meet := Step{Name: "meet", Do: func(ctx context.Context, env *Env) error { return env.Reach(ctx, "meet") }}
		return &Setup{
			Actors: []Actor{
				{Name: "loser", Role: "writer", Steps: []Step{meet, {Name: "write", Do: func(context.Context, *Env) error {
					return errors.New("version mismatch")
				}}}},
				{Name: "winner", Role: "writer", Steps: []Step{meet, {Name: "write", Do: func(context.Context, *Env) error {
					return nil
				}}}},
			},
			Invariant: AtMostOneSuccess("writer"),
		}, nil
	}
	res, err := Run(context.Background(), sc, variant.Fixed)
	require.NoError(t, err)
	assert.Equal(t, VerdictHeld, res.Verdict)
}

func TestRun_UndeclaredCheckpointIsFault(t *testing.T) {
	sc := lonely(KindRace)
	sc.Build = func(*BuildEnv) (*Setup, error) {
		return &Setup{Actors: []Actor{{Name: "typo", Steps: []Step{{Name: "go", Do: func(ctx context.Context, env *Env) error {
			return env.Reach(ctx, "meeet")
		}}}}}}, nil
	}
	_, err := Run(context.Background(), sc, variant.Buggy)
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FaultCoordination, fe.Code)
	assert.Equal(t, "typo", fe.Actor)
}

func TestRun_RejectsBadInput(t *testing.T) {
	_, err := Run(context.Background(), tally(), variant.Atomic)
	var ue *variant.UnknownModeError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "tally", ue.Resource)
	assert.False(t, IsFault(err))

	_, err = Run(context.Background(), tally(), variant.Fixed, WithParams(map[string]string{"actors": "many"}))
	assert.ErrorContains(t, err, `invalid int "many"`)

	_, err = Run(context.Background(), tally(), variant.Fixed, WithParams(map[string]string{"nope": "1"}))
	assert.ErrorContains(t, err, `no parameter "nope"`)
}

func TestRun_ParamsThatBreakThePlanAreNotFaults(t *testing.T) {
	// actors=0 declares a zero-party checkpoint.
	res, err := Run(context.Background(), tally(), variant.Fixed, WithParams(map[string]string{"actors": "0"}))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.False(t, IsFault(err))
	assert.ErrorContains(t, err, "invalid timing plan")

	sc := tally()
	sc.Params[0].Min = "1"
	_, err = Run(context.Background(), sc, variant.Fixed, WithParams(map[string]string{"actors": "0"}))
	var pe *ParamError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "actors", pe.Name)
	assert.False(t, IsFault(err))

	sc = tally()
	sc.Build = func(*BuildEnv) (*Setup, error) {
		return nil, &ParamError{Name: "actors", Value: "3", Reason: "needs an even count, got"}
	}
	res, err = Run(context.Background(), sc, variant.Fixed)
	assert.Nil(t, res)
	assert.True(t, errors.As(err, &pe))
	assert.False(t, IsFault(err))
}

func TestRun_SetupFailureIsFault(t *testing.T) {
	sc := tally()
	sc.Build = func(*BuildEnv) (*Setup, error) { return nil, errors.New("no temp dir") }
	res, err := Run(context.Background(), sc, variant.Fixed)
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FaultSetup, fe.Code)
	assert.Equal(t, VerdictFault, res.Verdict)
}

func TestRun_StreamsTaggedTrace(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	sink := func(tag string, e trace.Event) {
		mu.Lock()
		defer mu.Unlock()
		trace.WriterSink(&buf)(tag, e)
	}

	res, err := Run(context.Background(), tally(), variant.Fixed,
		WithTraceSink(sink),
		WithSeed(7),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("run-1")),
	)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, uint64(7), res.Seed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(res.Trace))
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "[FIXED] "), l)
	}
	assert.Contains(t, lines[0], "[FIXED] harness: scenario tally starting (seed 7")
}

func TestRunTrials_Tally(t *testing.T) {
	sum, err := RunTrials(context.Background(), tally(), variant.Fixed, 6, 3,
		WithRunIDGenerator(testutil.NewSequenceRunIDGenerator("trial")))
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Trials)
	assert.Equal(t, 6, sum.Tally[VerdictHeld])
	assert.Equal(t, 6, sum.Expected)
	assert.InDelta(t, 1.0, sum.Rate(), 1e-9)
	assert.Empty(t, sum.Faults)
	assert.Len(t, sum.Results, 6)

	sum, err = RunTrials(context.Background(), lonely(KindRace), variant.Buggy, 2, 2)
	require.NoError(t, err, "faults are tallied, not returned")
	assert.Equal(t, 2, sum.Faults[FaultUnexpectedTimeout])
	assert.Equal(t, []Verdict{VerdictFault}, sum.Verdicts())

	_, err = RunTrials(context.Background(), tally(), variant.Once, 2, 1)
	assert.Error(t, err)
}

func TestRun_GoldenTrace(t *testing.T) {
	sc := &Scenario{
		Name:  "relay",
		Kind:  KindRace,
		Modes: []variant.Mode{variant.Buggy, variant.Fixed},
		Plan: func(Params) coord.Plan {
			return coord.Plan{Checkpoints: []coord.Checkpoint{{Name: "meet", Parties: 2}}}
		},
		Build: func(*BuildEnv) (*Setup, error) {
			meet := Step{Name: "meet", Do: func(ctx context.Context, env *Env) error {
				if err := env.Reach(ctx, "meet"); err != nil {
					return err
				}
				env.Logf("passed meet")
				return nil
			}}
			return &Setup{
				Actors: []Actor{
					{Name: "alice", Steps: []Step{
						{Name: "greet", Do: func(_ context.Context, env *Env) error { env.Logf("hello"); return nil }},
						meet,
					}},
					{Name: "bob", Steps: []Step{meet}},
				},
				Invariant: AllSucceeded(),
			}, nil
		},
	}
	res, err := Run(context.Background(), sc, variant.Fixed)
	require.NoError(t, err)
	AssertGolden(t, "relay", res)
}
