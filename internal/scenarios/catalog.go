// Package scenarios is the catalog of reproductions. Each file registers one
// or two scenarios from init; the catalog is read-only once the package has
// been initialized.
package scenarios

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/racelab/internal/harness"
)

var registry = make(map[string]*harness.Scenario)

// MustRegister adds sc to the catalog. It panics if sc is invalid or its
// name is taken; both are mistakes in a scenario definition.
func MustRegister(sc *harness.Scenario) {
	if err := sc.Validate(); err != nil {
		panic(fmt.Sprintf("scenarios: %v", err))
	}
	if _, dup := registry[sc.Name]; dup {
		panic(fmt.Sprintf("scenarios: %s registered twice", sc.Name))
	}
	registry[sc.Name] = sc
}

// UnknownScenarioError is returned by Lookup for a name not in the catalog.
type UnknownScenarioError struct {
	Name      string
	Available []string
}

func (e *UnknownScenarioError) Error() string {
	return fmt.Sprintf("unknown scenario %q: must be one of %s", e.Name, strings.Join(e.Available, ", "))
}

// Lookup returns the scenario registered under name.
func Lookup(name string) (*harness.Scenario, error) {
	sc, ok := registry[name]
	if !ok {
		return nil, &UnknownScenarioError{Name: name, Available: Names()}
	}
	return sc, nil
}

// All returns every registered scenario sorted by name.
func All() []*harness.Scenario {
	out := make([]*harness.Scenario, 0, len(registry))
	for _, sc := range registry {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered scenario names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
