// Package variant maps a run-time mode to the concrete implementation a
// scenario uses.
//
// Every resource in the harness has at least a buggy and a fixed
// implementation behind one interface. A Table holds the constructors for
// each mode and Select returns the one requested. An unknown or unsupported
// mode is always an error; Select never falls back to a different
// implementation.
package variant

import (
	"fmt"
	"sort"
	"strings"
)

// Mode selects which implementation of a resource a run uses.
type Mode string

const (
	// Buggy reproduces the defect. It is the default when no flag is given.
	Buggy Mode = "buggy"

	// Fixed applies the upstream fix.
	Fixed Mode = "fixed"

	// Atomic is an alternate fix based on hardware fetch-and-add.
	Atomic Mode = "atomic"

	// Once is an alternate fix based on one-time initialization.
	Once Mode = "once"
)

// Known lists every mode the harness understands, in display order.
var Known = []Mode{Buggy, Fixed, Atomic, Once}

// Tag returns the trace prefix used for lines emitted under this mode.
func (m Mode) Tag() string {
	switch m {
	case Buggy:
		return "BUGGY"
	case Fixed:
		return "FIXED"
	case Atomic:
		return "FIXED-ATOMIC"
	case Once:
		return "FIXED-ONCE"
	default:
		return strings.ToUpper(string(m))
	}
}

// IsFixed reports whether the mode applies a fix (the default fix or a
// named alternate).
func (m Mode) IsFixed() bool {
	return m != Buggy
}

func (m Mode) String() string {
	return string(m)
}

// UnknownModeError is returned when a mode is not recognized or not
// registered for a resource.
type UnknownModeError struct {
	Mode      string
	Resource  string // empty when the mode failed to parse at all
	Available []Mode
}

func (e *UnknownModeError) Error() string {
	avail := make([]string, len(e.Available))
	for i, m := range e.Available {
		avail[i] = string(m)
	}
	if e.Resource == "" {
		return fmt.Sprintf("unknown mode %q: must be one of %s", e.Mode, strings.Join(avail, ", "))
	}
	return fmt.Sprintf("mode %q not available for %s: must be one of %s",
		e.Mode, e.Resource, strings.Join(avail, ", "))
}

// Parse converts a string to a Mode. The empty string parses as Buggy.
func Parse(s string) (Mode, error) {
	if s == "" {
		return Buggy, nil
	}
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Known {
		if k == m {
			return m, nil
		}
	}
	return "", &UnknownModeError{Mode: s, Available: Known}
}

// FromFlags resolves the command-line switches into a single mode.
//
// At most one of the boolean switches or the explicit mode may be given.
// With nothing set the result is Buggy.
func FromFlags(fixed, atomic, once bool, explicit string) (Mode, error) {
	var picked []Mode
	if fixed {
		picked = append(picked, Fixed)
	}
	if atomic {
		picked = append(picked, Atomic)
	}
	if once {
		picked = append(picked, Once)
	}
	if explicit != "" {
		m, err := Parse(explicit)
		if err != nil {
			return "", err
		}
		picked = append(picked, m)
	}

	switch len(picked) {
	case 0:
		return Buggy, nil
	case 1:
		return picked[0], nil
	default:
		return "", fmt.Errorf("conflicting mode flags: %v", picked)
	}
}

// Table maps modes to constructors for one resource kind.
//
// A Table is built once (normally at package init or scenario build time)
// and is read-only afterwards.
type Table[T any] struct {
	resource string
	ctors    map[Mode]func() T
}

// NewTable creates an empty table for the named resource.
func NewTable[T any](resource string) *Table[T] {
	return &Table[T]{
		resource: resource,
		ctors:    make(map[Mode]func() T),
	}
}

// Register adds the constructor for a mode. Registering a mode twice panics;
// that is a programming error in the scenario definition.
func (t *Table[T]) Register(m Mode, ctor func() T) *Table[T] {
	if _, dup := t.ctors[m]; dup {
		panic(fmt.Sprintf("variant: %s registered twice for %s", m, t.resource))
	}
	t.ctors[m] = ctor
	return t
}

// Select constructs the implementation registered for m.
func (t *Table[T]) Select(m Mode) (T, error) {
	ctor, ok := t.ctors[m]
	if !ok {
		var zero T
		return zero, &UnknownModeError{Mode: string(m), Resource: t.resource, Available: t.Modes()}
	}
	return ctor(), nil
}

// Supports reports whether a constructor is registered for m.
func (t *Table[T]) Supports(m Mode) bool {
	_, ok := t.ctors[m]
	return ok
}

// Modes returns the registered modes in Known order, followed by any custom
// modes sorted by name.
func (t *Table[T]) Modes() []Mode {
	out := make([]Mode, 0, len(t.ctors))
	seen := make(map[Mode]bool, len(t.ctors))
	for _, k := range Known {
		if _, ok := t.ctors[k]; ok {
			out = append(out, k)
			seen[k] = true
		}
	}
	var extra []Mode
	for m := range t.ctors {
		if !seen[m] {
			extra = append(extra, m)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Resource returns the name the table was created with.
func (t *Table[T]) Resource() string {
	return t.resource
}
