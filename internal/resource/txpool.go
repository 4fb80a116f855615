package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Lane is where a pool keeps a transaction.
type Lane string

const (
	// LanePending holds transactions executable at the account's nonce.
	LanePending Lane = "pending"
	// LaneQueued holds transactions waiting for an earlier nonce.
	LaneQueued Lane = "queued"
)

// TxPool admits transactions for a single account and sorts them into
// lanes by comparing their nonce with the account's.
type TxPool interface {
	// Add validates the nonce of tx and files it in a lane.
	Add(ctx context.Context, tx string, nonce uint64) (Lane, error)
	// Mine executes the next transaction, advances the account nonce and
	// promotes queued transactions that became executable.
	Mine() (nonce uint64, promoted []string)
	// Nonce returns the account's next expected nonce.
	Nonce() uint64
	// Stranded returns queued transactions whose nonce is already the
	// account's, sorted. No mine will ever promote them.
	Stranded() []string
}

type poolState struct {
	mu     sync.Mutex
	nonce  uint64
	lanes  map[string]Lane
	nonces map[string]uint64
	window RaceWindow
}

func newPoolState(window RaceWindow) poolState {
	return poolState{lanes: make(map[string]Lane), nonces: make(map[string]uint64), window: window}
}

func classify(account, tx uint64) Lane {
	if tx == account {
		return LanePending
	}
	return LaneQueued
}

func validateNonce(account, tx uint64) error {
	if tx < account {
		return fmt.Errorf("nonce %d below account nonce %d: %w", tx, account, ErrNonceTooLow)
	}
	return nil
}

func (p *poolState) Mine() (uint64, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce++
	var promoted []string
	for tx, lane := range p.lanes {
		if lane == LaneQueued && p.nonces[tx] == p.nonce {
			p.lanes[tx] = LanePending
			promoted = append(promoted, tx)
		}
	}
	sort.Strings(promoted)
	return p.nonce, promoted
}

func (p *poolState) Nonce() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nonce
}

func (p *poolState) Stranded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for tx, lane := range p.lanes {
		if lane == LaneQueued && p.nonces[tx] == p.nonce {
			out = append(out, tx)
		}
	}
	sort.Strings(out)
	return out
}

// StaleNoncePool reads the account nonce to validate a transaction and
// files it later using that same reading. A block mined in between leaves
// the transaction in the wrong lane.
//
// Lock discipline: one critical section to read the nonce and another to
// insert. window runs between them.
type StaleNoncePool struct {
	poolState
}

// NewStaleNoncePool returns an empty pool at nonce 0.
func NewStaleNoncePool(window RaceWindow) *StaleNoncePool {
	return &StaleNoncePool{poolState: newPoolState(window)}
}

func (p *StaleNoncePool) Add(ctx context.Context, tx string, nonce uint64) (Lane, error) {
	p.mu.Lock()
	account := p.nonce
	p.mu.Unlock()
	if err := validateNonce(account, nonce); err != nil {
		return "", err
	}

	if err := p.window.open(ctx); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	lane := classify(account, nonce)
	p.lanes[tx] = lane
	p.nonces[tx] = nonce
	return lane, nil
}

// AtomicPool validates and files a transaction in one critical section.
//
// Lock discipline: a single critical section per Add; window runs before it.
type AtomicPool struct {
	poolState
}

// NewAtomicPool returns an empty pool at nonce 0.
func NewAtomicPool(window RaceWindow) *AtomicPool {
	return &AtomicPool{poolState: newPoolState(window)}
}

func (p *AtomicPool) Add(ctx context.Context, tx string, nonce uint64) (Lane, error) {
	if err := p.window.open(ctx); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := validateNonce(p.nonce, nonce); err != nil {
		return "", err
	}
	lane := classify(p.nonce, nonce)
	p.lanes[tx] = lane
	p.nonces[tx] = nonce
	return lane, nil
}
