package resource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Binder binds a TCP listener to an address that may have just been
// released by someone else.
type Binder interface {
	Bind(ctx context.Context, addr string) (net.Listener, error)
	// Attempts returns how many bind calls were made.
	Attempts() int
}

type bindCounter struct {
	attempts atomic.Int32
}

func (c *bindCounter) listen(ctx context.Context, addr string) (net.Listener, error) {
	c.attempts.Add(1)
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}

func (c *bindCounter) Attempts() int { return int(c.attempts.Load()) }

// IsAddrInUse reports whether err is a bind failure because the address is
// taken.
func IsAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// SingleBinder binds once and gives up if the previous owner has not let go
// of the port yet.
type SingleBinder struct {
	bindCounter
}

// NewSingleBinder returns a binder that never retries.
func NewSingleBinder() *SingleBinder { return &SingleBinder{} }

func (b *SingleBinder) Bind(ctx context.Context, addr string) (net.Listener, error) {
	ln, err := b.listen(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return ln, nil
}

// RetryBinder retries "address in use" with exponential backoff. Any other
// error is returned at once.
type RetryBinder struct {
	bindCounter
	MaxTries uint
	Initial  time.Duration
	Max      time.Duration
}

// NewRetryBinder returns a binder with the given retry budget. maxTries 0
// retries until ctx ends.
func NewRetryBinder(maxTries uint, initial, maxInterval time.Duration) *RetryBinder {
	return &RetryBinder{MaxTries: maxTries, Initial: initial, Max: maxInterval}
}

func (b *RetryBinder) Bind(ctx context.Context, addr string) (net.Listener, error) {
	bo := backoff.NewExponentialBackOff()
	if b.Initial > 0 {
		bo.InitialInterval = b.Initial
	}
	if b.Max > 0 {
		bo.MaxInterval = b.Max
	}

	ln, err := backoff.Retry(ctx, func() (net.Listener, error) {
		ln, err := b.listen(ctx, addr)
		if err != nil && !IsAddrInUse(err) {
			return nil, backoff.Permanent(err)
		}
		return ln, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(b.MaxTries))
	if err != nil {
		return nil, fmt.Errorf("bind %s after %d attempts: %w", addr, b.Attempts(), err)
	}
	return ln, nil
}
