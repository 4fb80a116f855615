package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FaultError is a failure of the harness itself, as opposed to the hazard
// under test. A run that ends in a fault has no meaningful verdict.
type FaultError struct {
	// Code identifies the fault category.
	Code FaultCode

	// Message is a human-readable description.
	Message string

	// Scenario is the scenario that was running.
	Scenario string

	// Actor is the actor involved, if any.
	Actor string

	// Checkpoint is the last synchronization point the actor used, if any.
	Checkpoint string

	// Cause is the underlying error, if any.
	Cause error
}

// FaultCode categorizes harness faults.
type FaultCode string

const (
	// FaultActorPanic indicates an actor panicked.
	FaultActorPanic FaultCode = "ACTOR_PANIC"

	// FaultUnexpectedTimeout indicates the watchdog fired in a scenario
	// that is not supposed to hang.
	FaultUnexpectedTimeout FaultCode = "UNEXPECTED_TIMEOUT"

	// FaultCoordination indicates a broken or misused timing plan.
	FaultCoordination FaultCode = "BROKEN_COORDINATION"

	// FaultSetup indicates the scenario could not build its resources.
	FaultSetup FaultCode = "SETUP_FAILED"

	// FaultInterrupted indicates the caller cancelled the run.
	FaultInterrupted FaultCode = "INTERRUPTED"
)

// Error implements the error interface.
func (e *FaultError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Actor != "" && e.Checkpoint != "":
		msg += fmt.Sprintf(" (scenario=%s, actor=%s, checkpoint=%s)", e.Scenario, e.Actor, e.Checkpoint)
	case e.Actor != "":
		msg += fmt.Sprintf(" (scenario=%s, actor=%s)", e.Scenario, e.Actor)
	case e.Scenario != "":
		msg += fmt.Sprintf(" (scenario=%s)", e.Scenario)
	}
	return msg
}

func (e *FaultError) Unwrap() error {
	return e.Cause
}

// MarshalJSON flattens the cause to its message.
func (e *FaultError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code       FaultCode `json:"code"`
		Message    string    `json:"message"`
		Scenario   string    `json:"scenario,omitempty"`
		Actor      string    `json:"actor,omitempty"`
		Checkpoint string    `json:"checkpoint,omitempty"`
		Cause      string    `json:"cause,omitempty"`
	}{e.Code, e.Message, e.Scenario, e.Actor, e.Checkpoint, ""}
	if e.Cause != nil {
		out.Cause = e.Cause.Error()
	}
	return json.Marshal(out)
}

// IsFault returns true if err is or wraps a *FaultError.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}

// IsTimeoutFault returns true if err is an unexpected watchdog timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeoutFault(err error) bool {
	var fe *FaultError
	if errors.As(err, &fe) {
		return fe.Code == FaultUnexpectedTimeout
	}
	return false
}

// IsPanicFault returns true if err is an actor panic.
func IsPanicFault(err error) bool {
	var fe *FaultError
	if errors.As(err, &fe) {
		return fe.Code == FaultActorPanic
	}
	return false
}

// NewPanicFault creates a FaultError for an actor that panicked.
func NewPanicFault(scenario, actor, checkpoint string, recovered any) *FaultError {
	return &FaultError{
		Code:       FaultActorPanic,
		Message:    fmt.Sprintf("actor panicked: %v", recovered),
		Scenario:   scenario,
		Actor:      actor,
		Checkpoint: checkpoint,
	}
}

// NewTimeoutFault creates a FaultError for a watchdog fire in a scenario
// that should always terminate.
func NewTimeoutFault(scenario, actor, checkpoint string, after time.Duration) *FaultError {
	return &FaultError{
		Code:       FaultUnexpectedTimeout,
		Message:    fmt.Sprintf("watchdog fired after %s", after),
		Scenario:   scenario,
		Actor:      actor,
		Checkpoint: checkpoint,
	}
}
