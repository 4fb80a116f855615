package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// JointQuorum tracks acknowledgements for a joint membership change. The
// change commits only once a majority of the old members and a majority of
// the new members have acknowledged it.
type JointQuorum struct {
	from, to []string

	mu      sync.Mutex
	acked   map[string]bool
	reached chan struct{}
	done    bool
}

// NewJointQuorum returns a quorum for moving from one membership to another.
func NewJointQuorum(from, to []string) *JointQuorum {
	return &JointQuorum{
		from:    append([]string(nil), from...),
		to:      append([]string(nil), to...),
		acked:   make(map[string]bool),
		reached: make(chan struct{}),
	}
}

// Old returns the outgoing membership.
func (q *JointQuorum) Old() []string { return append([]string(nil), q.from...) }

// New returns the incoming membership.
func (q *JointQuorum) New() []string { return append([]string(nil), q.to...) }

// Ack records voter's acknowledgement.
func (q *JointQuorum) Ack(voter string) error {
	if !contains(q.from, voter) && !contains(q.to, voter) {
		return fmt.Errorf("ack from %s: not a member of either configuration", voter)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked[voter] = true
	if !q.done && q.majority(q.from) && q.majority(q.to) {
		q.done = true
		close(q.reached)
	}
	return nil
}

// Reached is closed once both majorities have acknowledged.
func (q *JointQuorum) Reached() <-chan struct{} { return q.reached }

// Acked returns the voters that acknowledged, sorted.
func (q *JointQuorum) Acked() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.acked))
	for v := range q.acked {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (q *JointQuorum) majority(members []string) bool {
	n := 0
	for _, m := range members {
		if q.acked[m] {
			n++
		}
	}
	return n > len(members)/2
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ConfigChanger drives a joint membership change to completion and returns
// the membership in effect afterwards.
type ConfigChanger interface {
	Change(ctx context.Context, q *JointQuorum) ([]string, error)
}

// WaitForJoint waits for the joint quorum with no upper bound. If the new
// members are unreachable the change never commits and the leader stays in
// the joint configuration forever.
type WaitForJoint struct{}

func (WaitForJoint) Change(ctx context.Context, q *JointQuorum) ([]string, error) {
	select {
	case <-q.Reached():
		return q.New(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("joint configuration never committed: %w", ctx.Err())
	}
}

// RollbackOnTimeout waits for the joint quorum for at most Timeout and then
// rolls back to the old membership.
type RollbackOnTimeout struct {
	Timeout time.Duration
}

func (r RollbackOnTimeout) Change(ctx context.Context, q *JointQuorum) ([]string, error) {
	t := time.NewTimer(r.Timeout)
	defer t.Stop()
	select {
	case <-q.Reached():
		return q.New(), nil
	case <-t.C:
		return q.Old(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
