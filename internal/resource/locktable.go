package resource

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// LockTable hands out exclusive access to objects identified by a numeric
// key. Keys are mapped onto a finite set of mutex slots; two keys that land
// on the same slot serialize each other even though they name different
// objects.
type LockTable interface {
	// Acquire blocks until key's slot is free or ctx ends. The returned
	// release must be called exactly once.
	Acquire(ctx context.Context, key uint64) (release func(), err error)
	// Slot returns the slot index key maps to.
	Slot(key uint64) int
	// Slots returns the total number of slots.
	Slots() int
}

// HashKey is the hash every lock table uses to place keys.
func HashKey(key uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], key)
	return xxhash.Sum64(b[:])
}

// DefaultFixedSlots is the slot count of the undersized table.
const DefaultFixedSlots = 4

// FixedSlotTable is a small fixed-size mutex table.
//
// Lock discipline: one mutex per slot, held for the caller's whole critical
// section. With few slots, unrelated keys collide and wait on each other.
type FixedSlotTable struct {
	slots []*Mutex
}

// NewFixedSlotTable returns a table with n slots. n <= 0 selects
// DefaultFixedSlots.
func NewFixedSlotTable(n int) *FixedSlotTable {
	if n <= 0 {
		n = DefaultFixedSlots
	}
	t := &FixedSlotTable{slots: make([]*Mutex, n)}
	for i := range t.slots {
		t.slots[i] = NewMutex()
	}
	return t
}

func (t *FixedSlotTable) Slot(key uint64) int {
	return int(HashKey(key) % uint64(len(t.slots)))
}

func (t *FixedSlotTable) Slots() int { return len(t.slots) }

func (t *FixedSlotTable) Acquire(ctx context.Context, key uint64) (func(), error) {
	m := t.slots[t.Slot(key)]
	if err := m.Lock(ctx); err != nil {
		return nil, fmt.Errorf("acquire key %d: %w", key, err)
	}
	return sync.OnceFunc(m.Unlock), nil
}

// Default sharding of ShardedTable.
const (
	DefaultShards        = 16
	DefaultSlotsPerShard = 16
)

// ShardedTable spreads keys over shards of slots using two levels of the
// same hash: the low bits pick a shard, the high bits pick a slot in it.
//
// Lock discipline: one mutex per slot, held for the caller's critical
// section. Shards are fixed at construction so no lock guards the layout.
type ShardedTable struct {
	shards   [][]*Mutex
	perShard int
}

// NewShardedTable returns a table with shards × perShard slots. Zero values
// select the defaults.
func NewShardedTable(shards, perShard int) *ShardedTable {
	if shards <= 0 {
		shards = DefaultShards
	}
	if perShard <= 0 {
		perShard = DefaultSlotsPerShard
	}
	t := &ShardedTable{shards: make([][]*Mutex, shards), perShard: perShard}
	for i := range t.shards {
		t.shards[i] = make([]*Mutex, perShard)
		for j := range t.shards[i] {
			t.shards[i][j] = NewMutex()
		}
	}
	return t
}

func (t *ShardedTable) locate(key uint64) (int, int) {
	h := HashKey(key)
	shard := int(h % uint64(len(t.shards)))
	slot := int((h >> 32) % uint64(t.perShard))
	return shard, slot
}

func (t *ShardedTable) Slot(key uint64) int {
	shard, slot := t.locate(key)
	return shard*t.perShard + slot
}

func (t *ShardedTable) Slots() int { return len(t.shards) * t.perShard }

func (t *ShardedTable) Acquire(ctx context.Context, key uint64) (func(), error) {
	shard, slot := t.locate(key)
	m := t.shards[shard][slot]
	if err := m.Lock(ctx); err != nil {
		return nil, fmt.Errorf("acquire key %d: %w", key, err)
	}
	return sync.OnceFunc(m.Unlock), nil
}

// DistinctSlotKeys returns n keys starting from 1 that all land on different
// slots of t. It returns fewer than n keys when t has fewer slots.
func DistinctSlotKeys(t LockTable, n int) []uint64 {
	seen := make(map[int]bool, n)
	keys := make([]uint64, 0, n)
	for k := uint64(1); len(keys) < n && len(seen) < t.Slots(); k++ {
		s := t.Slot(k)
		if seen[s] {
			continue
		}
		seen[s] = true
		keys = append(keys, k)
	}
	return keys
}

// Overlap records two actors holding the same key at once.
type Overlap struct {
	Key      uint64
	Holder   string
	Intruder string
}

func (o Overlap) String() string {
	return fmt.Sprintf("key %d held by %s entered by %s", o.Key, o.Holder, o.Intruder)
}

// OwnershipMonitor checks that a key is owned by at most one actor at a
// time and records peak concurrency across all keys.
type OwnershipMonitor struct {
	mu         sync.Mutex
	owners     map[uint64]string
	violations []Overlap
	active     int
	peak       int
}

// NewOwnershipMonitor returns an empty monitor.
func NewOwnershipMonitor() *OwnershipMonitor {
	return &OwnershipMonitor{owners: make(map[uint64]string)}
}

// Enter marks actor as the owner of key. If another actor already owns it
// the overlap is recorded and ErrOverlap is returned.
func (m *OwnershipMonitor) Enter(key uint64, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if holder, ok := m.owners[key]; ok {
		o := Overlap{Key: key, Holder: holder, Intruder: actor}
		m.violations = append(m.violations, o)
		return fmt.Errorf("%s: %w", o, ErrOverlap)
	}
	m.owners[key] = actor
	m.active++
	if m.active > m.peak {
		m.peak = m.active
	}
	return nil
}

// Exit clears actor's ownership of key.
func (m *OwnershipMonitor) Exit(key uint64, actor string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[key] == actor {
		delete(m.owners, key)
		m.active--
	}
}

// Violations returns the recorded overlaps ordered by key.
func (m *OwnershipMonitor) Violations() []Overlap {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Overlap(nil), m.violations...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Peak returns the largest number of keys owned at the same time.
func (m *OwnershipMonitor) Peak() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}
