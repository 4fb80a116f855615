package coord

import (
	"fmt"
	"time"
)

// Checkpoint is a named rendezvous point. Parties is the number of Reach
// calls needed before everyone waiting at it proceeds.
type Checkpoint struct {
	Name    string
	Parties int
}

// Pause is a fixed, declared delay.
type Pause struct {
	Name     string
	Duration time.Duration
}

// Jitter is a bounded randomized delay drawn uniformly from [Min, Max].
type Jitter struct {
	Name string
	Min  time.Duration
	Max  time.Duration
}

// Plan is the timing plan for one scenario: every synchronization point an
// actor may use must be declared here. Plans are values and are never
// mutated after a Coordinator is built from them.
type Plan struct {
	Checkpoints []Checkpoint
	Signals     []string
	Pauses      []Pause
	Jitters     []Jitter

	// Flaky must be set for a plan to declare any Jitter. It marks the
	// scenario as depending on genuine OS or network timing, where a
	// barrier cannot express the interleaving.
	Flaky bool
}

// Validate checks names are unique and every entry is well formed.
func (p Plan) Validate() error {
	seen := make(map[string]string)
	claim := func(kind, name string) error {
		if name == "" {
			return fmt.Errorf("%s name is required", kind)
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%s %q already declared as %s", kind, name, prev)
		}
		seen[name] = kind
		return nil
	}

	for _, cp := range p.Checkpoints {
		if err := claim("checkpoint", cp.Name); err != nil {
			return err
		}
		if cp.Parties < 1 {
			return fmt.Errorf("checkpoint %q: parties must be >= 1, got %d", cp.Name, cp.Parties)
		}
	}
	for _, s := range p.Signals {
		if err := claim("signal", s); err != nil {
			return err
		}
	}
	for _, ps := range p.Pauses {
		if err := claim("pause", ps.Name); err != nil {
			return err
		}
		if ps.Duration < 0 {
			return fmt.Errorf("pause %q: negative duration", ps.Name)
		}
	}
	for _, j := range p.Jitters {
		if err := claim("jitter", j.Name); err != nil {
			return err
		}
		if !p.Flaky {
			return fmt.Errorf("jitter %q declared in a plan not marked flaky", j.Name)
		}
		if j.Min < 0 || j.Max < j.Min {
			return fmt.Errorf("jitter %q: invalid range [%s, %s]", j.Name, j.Min, j.Max)
		}
	}
	return nil
}
