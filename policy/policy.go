// Package policy implements the Compact Policy (a single observation
// state's Q-values) and the deterministic Observation-State Key that
// addresses one in the Policy Store. Ported from the reference engine's
// CompactPolicy / Agent.get_memory_hash, generalized from a fixed "my_bits |
// opp_bits" 64-bit packing (which only fit ~5-round memories) to a 64-bit
// hash combination that supports the full 16-action memory this repo's
// Memory type carries.
package policy

import (
	"math"
	"math/rand"

	"github.com/pthm-cable/ipdcells/action"
)

// CompactPolicy holds one observation state's learned values: four Q-values
// (one per Action), a visit counter, and the epsilon used at last sampling
// (kept only for diagnostics, per spec.md §3).
type CompactPolicy struct {
	Q           [action.NumActions]float64
	Visits      uint64
	LastEpsilon float64
}

// SampleAction picks an action epsilon-greedily. With probability 1-epsilon
// it returns the argmax Q action, ties broken by the lowest action code; with
// probability epsilon it returns a uniformly random action.
func (p CompactPolicy) SampleAction(epsilon float64, rng *rand.Rand) action.Action {
	if rng.Float64() < epsilon {
		return action.FromCode(uint8(rng.Intn(action.NumActions)))
	}
	return p.argmax()
}

// argmax returns the action with the highest Q-value, ties broken by the
// lowest action code (iteration order below is already ascending).
func (p CompactPolicy) argmax() action.Action {
	best := action.Action(0)
	bestQ := p.Q[0]
	for i := 1; i < action.NumActions; i++ {
		if p.Q[i] > bestQ {
			bestQ = p.Q[i]
			best = action.Action(i)
		}
	}
	return best
}

// MaxQ returns the highest Q-value in the policy, used as the "max_next_q"
// term of the Q-learning update for a neighboring state.
func (p CompactPolicy) MaxQ() float64 {
	best := p.Q[0]
	for i := 1; i < action.NumActions; i++ {
		if p.Q[i] > best {
			best = p.Q[i]
		}
	}
	return best
}

// ComputeUpdate returns the new Q-value for action a under the standard
// TD(0) update: (1-alpha)*Q(a) + alpha*(reward + gamma*maxNextQ). Pure
// function; the caller (Pass 4 of the step pipeline) commits the result via
// ApplyUpdate under the entry's lock.
func (p CompactPolicy) ComputeUpdate(a action.Action, reward, maxNextQ, alpha, gamma float64) float64 {
	old := p.Q[a.Code()]
	target := reward + gamma*maxNextQ
	return (1-alpha)*old + alpha*target
}

// ApplyUpdate writes newQ for action a and increments the visit counter.
// newQ must be finite; a non-finite value is a programmer error (see
// spec.md §7) and the caller should treat it as fatal rather than calling
// this method.
func (p *CompactPolicy) ApplyUpdate(a action.Action, newQ float64) {
	if math.IsNaN(newQ) || math.IsInf(newQ, 0) {
		panic("policy: non-finite Q-value")
	}
	p.Q[a.Code()] = newQ
	p.Visits++
}

// StateKey derives the 64-bit Observation-State Key for one side of an
// interaction from (selfLength, oppLength, selfBits, oppBits). It is stable
// under equal inputs (spec.md property 8) but is a hash combination, not a
// lossless packing: distinct inputs may collide here, which is acceptable
// per spec.md §3 since the Policy Store tolerates shared entries.
func StateKey(selfLength, oppLength uint8, selfBits, oppBits uint32) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	mix := func(v uint64) {
		h ^= v
		h *= prime64
	}
	mix(uint64(selfLength))
	mix(uint64(oppLength))
	mix(uint64(selfBits))
	mix(uint64(oppBits))
	return h
}
