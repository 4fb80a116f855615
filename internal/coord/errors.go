package coord

import (
	"errors"
	"fmt"
)

// ErrBroken matches any *BrokenError via errors.Is.
var ErrBroken = errors.New("coordination broken")

// BrokenError is returned to every actor waiting at a checkpoint or signal
// after another actor broke the coordinator (normally because it crashed
// before reaching its own synchronization point).
type BrokenError struct {
	Actor string // the waiting actor that observed the break
	Point string // checkpoint or signal it was waiting on
	By    string // actor that broke the coordinator
	Cause error
}

func (e *BrokenError) Error() string {
	return fmt.Sprintf("%s waiting at %q: coordination broken by %s: %v", e.Actor, e.Point, e.By, e.Cause)
}

func (e *BrokenError) Is(target error) bool {
	return target == ErrBroken
}

func (e *BrokenError) Unwrap() error {
	return e.Cause
}

// UndeclaredError is returned when an actor names a synchronization point
// the plan does not declare.
type UndeclaredError struct {
	Kind  string // "checkpoint", "signal", "pause", "jitter"
	Name  string
	Actor string
}

func (e *UndeclaredError) Error() string {
	return fmt.Sprintf("%s used undeclared %s %q", e.Actor, e.Kind, e.Name)
}

// WaitError is returned when the caller's context ends while waiting at a
// synchronization point. It unwraps to the context error.
type WaitError struct {
	Actor string
	Point string
	Err   error
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("%s waiting at %q: %v", e.Actor, e.Point, e.Err)
}

func (e *WaitError) Unwrap() error {
	return e.Err
}

// IsCoordinationFault reports whether err comes from a failure of the
// coordination itself (a broken barrier or an undeclared point) rather
// than from the scenario under test.
func IsCoordinationFault(err error) bool {
	if errors.Is(err, ErrBroken) {
		return true
	}
	var ue *UndeclaredError
	return errors.As(err, &ue)
}

// PointOf extracts the synchronization point named in a coordination error.
func PointOf(err error) string {
	var be *BrokenError
	if errors.As(err, &be) {
		return be.Point
	}
	var we *WaitError
	if errors.As(err, &we) {
		return we.Point
	}
	var ue *UndeclaredError
	if errors.As(err, &ue) {
		return ue.Name
	}
	return ""
}
