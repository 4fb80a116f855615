package resource

import "errors"

var (
	// ErrVersionMismatch is returned by a versioned record when the caller's
	// requested version is not the current one.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrMissingInput is returned when a task runs before one of its declared
	// inputs exists.
	ErrMissingInput = errors.New("missing input")

	// ErrWaitTimeout is returned when a watermark wait gives up.
	ErrWaitTimeout = errors.New("timed out waiting for sequence")

	// ErrDuplicateNotify is returned when a sequence is notified twice.
	ErrDuplicateNotify = errors.New("sequence already notified")

	// ErrUnassigned is returned when notifying a sequence never handed out.
	ErrUnassigned = errors.New("sequence not assigned")

	// ErrExecutorFull is returned by a dropping executor with no free slot.
	ErrExecutorFull = errors.New("executor full")

	// ErrOverlap is returned when two actors hold the same key at once.
	ErrOverlap = errors.New("overlapping ownership")

	// ErrNonceTooLow is returned by a transaction pool for a nonce the
	// account has already used.
	ErrNonceTooLow = errors.New("nonce too low")
)
