// Package agent defines the per-cell occupant record: fitness, memory,
// parent/child lineage links, and lifecycle flags. Ported from the reference
// engine's Agent struct, a cache-line (64 byte) aligned record, generalized
// from a fixed predetermined memory-capacity policy to the spec's explicit
// per-agent memory_capacity field.
package agent

import (
	"github.com/pthm-cable/ipdcells/action"
	"github.com/pthm-cable/ipdcells/memory"
)

// None is the sentinel index meaning "no parent" / "no child", mirroring the
// reference engine's use of u32::MAX.
const None uint32 = ^uint32(0)

// Agent describes one grid cell's occupant. Field order groups 8-byte values
// first to keep the struct's declared size at exactly 64 bytes (one cache
// line), avoiding false sharing when agents are updated concurrently across
// threads in Pass 4.
type Agent struct {
	Fitness    float64 // 8 bytes
	PolicyKey  uint64  // 8 bytes: key of the policy this agent is currently bound to

	MemoryBits uint32 // 4
	ParentA    uint32 // 4: index into the agent array, or None
	ParentB    uint32 // 4
	Child      uint32 // 4: index of the super-agent that absorbed this one, or None
	Generation uint32 // 4: number of constituent original cells
	OriginCell uint32 // 4: grid cell this agent was (or its lower-indexed parent was) born on

	MemoryLength   uint8 // 0..16
	MemoryCapacity uint8 // 1..16
	LastAction     uint8 // diagnostic: the action code chosen last step
	Active         bool

	_pad [20]byte // rounds the struct out to 64 bytes
}

// New creates a fresh unicellular agent born on cell originCell with the
// given memory capacity. Fitness starts at a small positive seed per
// spec.md §3 ("zero fitness plus a small positive seed").
func New(originCell uint32, memoryCapacity uint8) Agent {
	return Agent{
		Fitness:        0.001,
		MemoryCapacity: memoryCapacity,
		ParentA:        None,
		ParentB:        None,
		Child:          None,
		Generation:     1,
		OriginCell:     originCell,
		Active:         true,
	}
}

// Memory returns the agent's current action history as a memory.Memory.
func (a *Agent) Memory() memory.Memory {
	return memory.FromRaw(a.MemoryBits, a.MemoryLength)
}

// SetMemory overwrites the agent's action history.
func (a *Agent) SetMemory(m memory.Memory) {
	a.MemoryBits = m.Bits()
	a.MemoryLength = m.Length()
}

// IsMulticellular reports whether the agent represents an organism of more
// than one original cell.
func (a *Agent) IsMulticellular() bool {
	return a.Generation > 1
}

// IsRoot reports whether the agent is not absorbed into a later Merge.
func (a *Agent) IsRoot() bool {
	return a.Child == None
}

// LastActionTaken returns the agent's last chosen Action.
func (a *Agent) LastActionTaken() action.Action {
	return action.Action(a.LastAction)
}

// Deactivate marks the agent inactive and records child as the agent that
// absorbed it (the merged super-agent, or the surviving parent on a Split).
func (a *Agent) Deactivate(child uint32) {
	a.Active = false
	a.Child = child
}

// MergeChild builds the super-agent produced by merging two parent agents at
// indices parentA and parentB, summing fitness and generation per spec.md
// §4's Merge semantics.
func MergeChild(parentA, parentB uint32, a, b Agent, originCell uint32) Agent {
	return Agent{
		Fitness:        a.Fitness + b.Fitness,
		ParentA:        parentA,
		ParentB:        parentB,
		Child:          None,
		Generation:     a.Generation + b.Generation,
		OriginCell:     originCell,
		MemoryCapacity: a.MemoryCapacity,
		Active:         true,
	}
}

// Reactivate restores a dissolved agent's active status after a Split,
// assigning it the given share of the dissolving organism's fitness.
func (a *Agent) Reactivate(fitness float64) {
	a.Active = true
	a.Child = None
	a.Fitness = fitness
}
