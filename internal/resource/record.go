package resource

import (
	"fmt"
	"sync"
)

// Snapshot is a versioned value. Versions start at 1.
type Snapshot struct {
	Version uint64
	Value   int64
}

// Record is a single versioned value that writers update by version.
type Record interface {
	// ReadAt returns the snapshot a writer at version sees.
	ReadAt(version uint64) (Snapshot, error)
	// Write stores value as the successor of version.
	Write(version uint64, value int64) (Snapshot, error)
	// Current returns the latest snapshot.
	Current() Snapshot
}

// LatestRecord ignores the requested version and always works against the
// latest one, so two writers that both read version N both succeed and the
// second silently overwrites the first.
//
// Lock discipline: one mutex per call; nothing spans ReadAt and Write.
type LatestRecord struct {
	mu  sync.Mutex
	cur Snapshot
}

// NewLatestRecord returns a record at version 1 holding value.
func NewLatestRecord(value int64) *LatestRecord {
	return &LatestRecord{cur: Snapshot{Version: 1, Value: value}}
}

func (r *LatestRecord) ReadAt(uint64) (Snapshot, error) {
	return r.Current(), nil
}

func (r *LatestRecord) Write(_ uint64, value int64) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cur = Snapshot{Version: r.cur.Version + 1, Value: value}
	return r.cur, nil
}

func (r *LatestRecord) Current() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// CheckedRecord only accepts a write whose version equals the current one.
// Each successful write bumps the version by exactly one.
//
// Lock discipline: one mutex per call. The version compare and the store
// happen in the same critical section.
type CheckedRecord struct {
	mu  sync.Mutex
	cur Snapshot
}

// NewCheckedRecord returns a record at version 1 holding value.
func NewCheckedRecord(value int64) *CheckedRecord {
	return &CheckedRecord{cur: Snapshot{Version: 1, Value: value}}
}

func (r *CheckedRecord) ReadAt(version uint64) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version != r.cur.Version {
		return Snapshot{}, fmt.Errorf("read at %d, current %d: %w", version, r.cur.Version, ErrVersionMismatch)
	}
	return r.cur, nil
}

func (r *CheckedRecord) Write(version uint64, value int64) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version != r.cur.Version {
		return r.cur, fmt.Errorf("write at %d, current %d: %w", version, r.cur.Version, ErrVersionMismatch)
	}
	r.cur = Snapshot{Version: version + 1, Value: value}
	return r.cur, nil
}

func (r *CheckedRecord) Current() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}
