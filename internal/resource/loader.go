package resource

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
)

// Settings is a loaded configuration.
type Settings map[string]string

// LoadFunc produces Settings. It is expected to be expensive.
type LoadFunc func(ctx context.Context) (Settings, error)

// Loader lazily loads shared settings on first use.
type Loader interface {
	Get(ctx context.Context) (Settings, error)
	// Loads returns how many times the LoadFunc ran.
	Loads() int
}

type loadCounter struct {
	load  LoadFunc
	loads atomic.Int32
}

func (c *loadCounter) run(ctx context.Context) (Settings, error) {
	c.loads.Add(1)
	return c.load(ctx)
}

func (c *loadCounter) Loads() int { return int(c.loads.Load()) }

// CheckThenLoad checks for loaded settings and loads them if absent,
// without holding a lock in between. Concurrent first callers all see
// nothing loaded and all load.
//
// Lock discipline: a mutex guards the cached value only; the check and
// the load are separate critical sections.
type CheckThenLoad struct {
	loadCounter
	window RaceWindow

	mu  sync.Mutex
	cur Settings
}

// NewCheckThenLoad returns a loader that calls window between its check
// and its load.
func NewCheckThenLoad(load LoadFunc, window RaceWindow) *CheckThenLoad {
	return &CheckThenLoad{loadCounter: loadCounter{load: load}, window: window}
}

func (l *CheckThenLoad) Get(ctx context.Context) (Settings, error) {
	l.mu.Lock()
	cur := l.cur
	l.mu.Unlock()
	if cur != nil {
		return maps.Clone(cur), nil
	}

	if err := l.window.open(ctx); err != nil {
		return nil, err
	}

	s, err := l.run(ctx)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cur = s
	l.mu.Unlock()
	return maps.Clone(s), nil
}

// DoubleCheckedLoader checks under a read lock, then re-checks under the
// write lock before loading.
//
// Lock discipline: the write lock is held for the whole load, so exactly
// one caller loads and the rest wait for it.
type DoubleCheckedLoader struct {
	loadCounter
	window RaceWindow

	mu  sync.RWMutex
	cur Settings
}

// NewDoubleCheckedLoader returns a loader that calls window before its
// first check.
func NewDoubleCheckedLoader(load LoadFunc, window RaceWindow) *DoubleCheckedLoader {
	return &DoubleCheckedLoader{loadCounter: loadCounter{load: load}, window: window}
}

func (l *DoubleCheckedLoader) Get(ctx context.Context) (Settings, error) {
	if err := l.window.open(ctx); err != nil {
		return nil, err
	}

	l.mu.RLock()
	cur := l.cur
	l.mu.RUnlock()
	if cur != nil {
		return maps.Clone(cur), nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cur != nil {
		return maps.Clone(l.cur), nil
	}
	s, err := l.run(ctx)
	if err != nil {
		return nil, err
	}
	l.cur = s
	return maps.Clone(s), nil
}

// OnceLoader loads through sync.Once. A failed load is cached like a
// successful one.
type OnceLoader struct {
	loadCounter
	window RaceWindow

	once sync.Once
	cur  Settings
	err  error
}

// NewOnceLoader returns a loader that calls window before sync.Once.
func NewOnceLoader(load LoadFunc, window RaceWindow) *OnceLoader {
	return &OnceLoader{loadCounter: loadCounter{load: load}, window: window}
}

func (l *OnceLoader) Get(ctx context.Context) (Settings, error) {
	if err := l.window.open(ctx); err != nil {
		return nil, err
	}
	l.once.Do(func() {
		l.cur, l.err = l.run(ctx)
	})
	if l.err != nil {
		return nil, l.err
	}
	return maps.Clone(l.cur), nil
}
