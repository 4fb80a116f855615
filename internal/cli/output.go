package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/roach88/racelab/internal/report"
)

// Process exit codes. A violated invariant is a finding, not a failure, so
// every verdict short of a harness fault exits 0.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // harness fault
	ExitCommandError = 2 // unknown scenario or mode, bad flag, bad config
)

// ExitError carries the process exit code for a command's error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError with no cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError caused by err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors without an ExitError
// in their chain come from cobra's own flag and argument checks.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if exitErr := (*ExitError)(nil); errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// Envelope wraps every JSON document racelab prints.
type Envelope struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError is the error half of an Envelope. Code is the exit code.
type EnvelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
	// ErrWriter receives errors and verbose lines. Nil means Writer.
	ErrWriter io.Writer
	Verbose   bool
}

// JSON reports whether output is JSON.
func (f *OutputFormatter) JSON() bool {
	return f.Format == "json"
}

// Success writes data. Text mode prints it with fmt; commands with a real
// text rendering call report directly instead.
func (f *OutputFormatter) Success(data any) error {
	if !f.JSON() {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return report.WriteJSON(f.Writer, Envelope{Status: "ok", Data: data})
}

// Error writes err. JSON goes to Writer as an error envelope, text goes to
// ErrWriter.
func (f *OutputFormatter) Error(err error) error {
	if !f.JSON() {
		_, werr := fmt.Fprintf(f.diag(), "Error: %v\n", err)
		return werr
	}
	e := &EnvelopeError{Code: GetExitCode(err), Message: err.Error()}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err != nil {
		e.Details = exitErr.Err.Error()
	}
	return report.WriteJSON(f.Writer, Envelope{Status: "error", Error: e})
}

// VerboseLog writes a diagnostic line when --verbose is set. It never
// writes to Writer unless ErrWriter is nil, so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diag(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diag() io.Writer {
	if f.ErrWriter == nil {
		return f.Writer
	}
	return f.ErrWriter
}
