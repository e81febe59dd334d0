// Package policystore implements the Policy Store: a concurrent, bounded,
// LRU-evicting map from Observation-State Key to Compact Policy. It replaces
// the reference engine's cht::HashMap (a lock-free concurrent hash map) with
// a sharded sync.RWMutex map, the standard Go idiom for a concurrent map
// under contention too fine-grained for a single mutex — no pack example or
// ecosystem library ships a bounded concurrent LRU map, so this shard-of-
// mutexes structure is built on stdlib sync primitives (see DESIGN.md).
package policystore

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/ipdcells/action"
	"github.com/pthm-cable/ipdcells/policy"
)

const numShards = 256

// Store is a size-bounded, concurrent map keyed by Observation-State Key.
// Many goroutines may call LookupOrInsert concurrently; EvictToCapacity must
// be called by a single goroutine between steps (see spec.md §4.3, §5).
type Store struct {
	capacity int
	shards   [numShards]shard
}

type shard struct {
	mu sync.RWMutex
	m  map[uint64]*entry
}

type entry struct {
	mu       sync.Mutex
	key      uint64
	policy   policy.CompactPolicy
	lastUsed uint64 // atomic; a caller-supplied recency value, not a counter
}

// Handle is a caller's reference to one Policy Store entry. It is valid
// until the entry is evicted; after eviction a Handle still works (it holds
// a live pointer) but is invisible to future LookupOrInsert calls for the
// same key, which will create a fresh zero-initialized entry.
type Handle struct {
	e *entry
}

// New creates a Policy Store bounded to capacity entries.
func New(capacity int) *Store {
	s := &Store{capacity: capacity}
	for i := range s.shards {
		s.shards[i].m = make(map[uint64]*entry)
	}
	return s
}

func (s *Store) shardFor(key uint64) *shard {
	return &s.shards[key%numShards]
}

// LookupOrInsert atomically returns the existing entry for key or inserts a
// fresh zero-initialized one (spec.md §4.3), stamping it with recency.
//
// recency is supplied by the caller rather than derived from an internal
// counter: the engine passes the current tick number, so every touch within
// a tick stamps the same value regardless of which worker goroutine gets
// there first or in what order. A shared atomic counter incremented once
// per call would instead assign recency in whatever order goroutines
// happen to win the lock — nondeterministic across runs at a fixed thread
// count, and specifically the thing EvictToCapacity's tie-break must not
// depend on (spec.md property 7).
func (s *Store) LookupOrInsert(key, recency uint64) *Handle {
	sh := s.shardFor(key)

	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()

	if !ok {
		sh.mu.Lock()
		// Re-check under the write lock: another goroutine may have
		// inserted the same key between our RUnlock and this Lock.
		e, ok = sh.m[key]
		if !ok {
			e = &entry{key: key}
			sh.m[key] = e
		}
		sh.mu.Unlock()
	}

	// All concurrent callers within the same tick pass the same recency
	// value, so this store is race-free in outcome even though the write
	// itself is unordered.
	atomic.StoreUint64(&e.lastUsed, recency)
	return &Handle{e: e}
}

// Get returns a snapshot copy of the handle's policy.
func (h *Handle) Get() policy.CompactPolicy {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.policy
}

// Apply writes newQ for action a on the handle's policy under the entry's
// lock, serializing concurrent updates to the same observation state.
func (h *Handle) Apply(a action.Action, newQ float64) {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	h.e.policy.ApplyUpdate(a, newQ)
}

// Len returns the current number of entries across all shards.
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		total += len(s.shards[i].m)
		s.shards[i].mu.RUnlock()
	}
	return total
}

// EvictToCapacity drops least-recently-used entries until the store's size
// is at or below its configured capacity. Must be called by a single
// goroutine (spec.md §4.3); not safe to call concurrently with itself.
//
// Ties in lastUsed (common: every entry touched during the same tick shares
// one recency value) are broken by ascending key, not by map iteration
// order — Go's map iteration order is itself randomized per run, so
// breaking ties on anything but the key would reintroduce the same
// cross-run nondeterminism this function exists to avoid.
func (s *Store) EvictToCapacity() int {
	if s.capacity <= 0 {
		return 0
	}

	type candidate struct {
		shardIdx int
		key      uint64
		lastUsed uint64
	}

	var all []candidate
	for i := range s.shards {
		s.shards[i].mu.RLock()
		for k, e := range s.shards[i].m {
			all = append(all, candidate{shardIdx: i, key: k, lastUsed: atomic.LoadUint64(&e.lastUsed)})
		}
		s.shards[i].mu.RUnlock()
	}

	overflow := len(all) - s.capacity
	if overflow <= 0 {
		return 0
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].lastUsed != all[j].lastUsed {
			return all[i].lastUsed < all[j].lastUsed
		}
		return all[i].key < all[j].key
	})

	evicted := 0
	for _, c := range all[:overflow] {
		sh := &s.shards[c.shardIdx]
		sh.mu.Lock()
		if e, ok := sh.m[c.key]; ok && atomic.LoadUint64(&e.lastUsed) == c.lastUsed {
			delete(sh.m, c.key)
			evicted++
		}
		sh.mu.Unlock()
	}
	return evicted
}
