// Package engine drives the Grid through the five-pass Step Pipeline
// described in spec.md §4.5: refresh root cache, generate pairs, evaluate
// interactions, commit updates, apply deferred operations. Grounded on the
// reference engine's Grid::step (grid.rs) for pass ordering and on the
// teacher's persistent worker pool (game/parallel.go, see parallel.go in
// this package) for how the passes are parallelized.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/pthm-cable/ipdcells/action"
	"github.com/pthm-cable/ipdcells/agent"
	"github.com/pthm-cable/ipdcells/grid"
	"github.com/pthm-cable/ipdcells/memory"
	"github.com/pthm-cable/ipdcells/payoff"
	"github.com/pthm-cable/ipdcells/policy"
	"github.com/pthm-cable/ipdcells/policystore"
	"github.com/pthm-cable/ipdcells/stats"
)

// Config holds everything needed to construct an Engine. It is the core's
// own construction type; the YAML-backed config package produces one of
// these from a user-facing file (see config.EngineConfig), but the engine
// itself never imports that package (spec.md §9's layering note: external
// collaborators are one-way dependents of the core).
type Config struct {
	Width, Height int
	Neighborhood  grid.Neighborhood
	Payoff        payoff.Table

	Alpha, Gamma, Epsilon float64
	MemoryCapacity        uint8
	PolicyStoreCapacity   int
	Seed                  uint64

	// NumWorkers is the worker pool size; 0 selects runtime.GOMAXPROCS(0).
	NumWorkers int
	// ChunkSize overrides how large a dispatch chunk is; 0 divides each
	// pass's domain evenly across NumWorkers instead.
	ChunkSize int
}

// Validate reports a ConfigInvalid-class error (spec.md §7) for any
// nonsensical construction parameter. Checked once, at construction.
func (c Config) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("engine: ConfigInvalid: width and height must be >= 1, got %dx%d", c.Width, c.Height)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("engine: ConfigInvalid: alpha must be in (0,1], got %v", c.Alpha)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("engine: ConfigInvalid: gamma must be in [0,1], got %v", c.Gamma)
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("engine: ConfigInvalid: epsilon must be in [0,1], got %v", c.Epsilon)
	}
	if c.MemoryCapacity < 1 || c.MemoryCapacity > memory.MaxCapacity {
		return fmt.Errorf("engine: ConfigInvalid: memory capacity must be in 1..%d, got %d", memory.MaxCapacity, c.MemoryCapacity)
	}
	if c.PolicyStoreCapacity < 1 {
		return fmt.Errorf("engine: ConfigInvalid: policy store capacity must be positive, got %d", c.PolicyStoreCapacity)
	}
	if err := c.Payoff.Validate(); err != nil {
		return fmt.Errorf("engine: ConfigInvalid: %w", err)
	}
	return nil
}

// Engine owns one run's Grid, Policy Store, and worker pool. Two Engines
// never share state (spec.md §9: "no module-level globals").
type Engine struct {
	grid   *grid.Grid
	store  *policystore.Store
	params Config
	pool   *workerPool

	tick      uint64
	lastStats stats.Statistics

	canceled int32 // atomic; set by Cancel, checked between passes
}

// New constructs an Engine from cfg, validating construction parameters
// per spec.md §7.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := grid.New(cfg.Width, cfg.Height, cfg.Neighborhood, cfg.Payoff, cfg.MemoryCapacity)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &Engine{
		grid:   g,
		store:  policystore.New(cfg.PolicyStoreCapacity),
		params: cfg,
		pool:   newWorkerPool(cfg.NumWorkers, cfg.ChunkSize),
	}, nil
}

// Close stops the engine's worker pool goroutines. Not required before
// process exit, but frees them if an Engine is dropped before the run
// completes (e.g. a parameter-search loop constructing many engines).
func (e *Engine) Close() {
	e.pool.Stop()
}

// Cancel requests cooperative cancellation. The engine stops at the next
// pass barrier; a tick either commits in full or does not start Pass 4
// (spec.md §5).
func (e *Engine) Cancel() {
	atomic.StoreInt32(&e.canceled, 1)
}

// ErrCanceled is returned by Step when cancellation via Cancel is observed
// at a pass barrier before the tick reaches Pass 4. A canceled ctx is
// reported as ctx.Err() instead.
var ErrCanceled = errors.New("engine: CancellationRequested")

// cancelErr returns the reason Step should abort this tick, or nil if
// neither the cooperative flag nor ctx has requested cancellation.
func (e *Engine) cancelErr(ctx context.Context) error {
	if atomic.LoadInt32(&e.canceled) != 0 {
		return ErrCanceled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// interaction is one Pass-2-emitted pairing awaiting Pass 3 evaluation.
type interaction struct {
	A, B uint32
	Seed uint64
}

// updateRecord is one Pass-3-emitted, Pass-4-committed mutation to a single
// agent: new memory, a fitness delta, and a (policy key, action, new Q)
// triple to write into the Policy Store.
type updateRecord struct {
	Agent            uint32
	NewMemory        memory.Memory
	FitnessDelta     float64
	PolicyKey        uint64
	Action           action.Action
	NewQ             float64
	InteractionIndex int
}

// Step advances the simulation by one tick, running all five passes in
// order. It returns a non-nil error (without mutating agent state) if
// cancellation is observed before Pass 4 begins; a tick that reaches Pass 4
// always runs Pass 5 to completion, so no partial tick is ever observable.
func (e *Engine) Step(ctx context.Context) error {
	if err := e.cancelErr(ctx); err != nil {
		return err
	}

	e.grid.RefreshRootCache(e.pool) // Pass 1

	if err := e.cancelErr(ctx); err != nil {
		return err
	}
	interactions := e.generatePairs() // Pass 2

	if err := e.cancelErr(ctx); err != nil {
		return err
	}
	recs := e.evaluateInteractions(interactions) // Pass 3

	if err := e.cancelErr(ctx); err != nil {
		e.grid.Deferred.Drain() // discard Pass 3's staged ops so they never reach a later tick
		return err
	}
	e.commitUpdates(recs) // Pass 4 — past this point the tick always completes

	mergeCount, splitCount := e.applyDeferredOps() // Pass 5

	// Re-resolve cell owners so the snapshot of this tick names the roots
	// left by Pass 5's merges and splits.
	e.grid.RefreshRootCache(e.pool)

	e.lastStats = stats.Compute(e.grid.Agents, tallyActions(recs), mergeCount, splitCount, int(e.tick))
	e.tick++
	return nil
}

func tallyActions(recs []updateRecord) stats.ActionCounts {
	var c stats.ActionCounts
	for _, r := range recs {
		switch r.Action {
		case action.Cooperate:
			c.Cooperate++
		case action.Defect:
			c.Defect++
		case action.Merge:
			c.Merge++
		case action.Split:
			c.Split++
		}
	}
	return c
}

// generatePairs is Pass 2: for each active agent, deterministically draw
// one neighboring cell (from the agent's own cells) owned by a different
// active agent, and emit that pairing. Parallel over active agents.
func (e *Engine) generatePairs() []interaction {
	g := e.grid
	active := make([]uint32, 0, len(g.Agents))
	for i := range g.Agents {
		if g.Agents[i].Active {
			active = append(active, uint32(i))
		}
	}

	dirs := g.Neighborhood.Dirs()
	found := make([]*interaction, len(active))

	e.pool.Run(len(active), func(start, end int) {
		for idx := start; idx < end; idx++ {
			i := active[idx]
			cells := g.CellsOf(i)
			if len(cells) == 0 {
				continue
			}

			seed := deriveSeed(e.params.Seed, e.tick, i, i, purposeNeighborSample)
			rng := rand.New(rand.NewSource(int64(seed)))
			cellStart := rng.Intn(len(cells))
			dirStart := rng.Intn(len(dirs))

			for k := 0; k < len(cells); k++ {
				cell := cells[(cellStart+k)%len(cells)]
				var matched bool
				for d := 0; d < len(dirs); d++ {
					dir := dirs[(dirStart+d)%len(dirs)]
					nc, ok := g.NeighborCell(cell, dir[0], dir[1])
					if !ok {
						continue
					}
					owner := g.CellOwner[nc]
					if owner != i {
						pairSeed := deriveSeed(e.params.Seed, e.tick, i, owner, purposeActionSample)
						found[idx] = &interaction{A: i, B: owner, Seed: pairSeed}
						matched = true
						break
					}
				}
				if matched {
					break
				}
			}
		}
	})

	out := make([]interaction, 0, len(active))
	for _, f := range found {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out
}

// evaluateInteractions is Pass 3: read-only over the agent array, sampling
// actions and computing proposed Q-updates and rewards, and staging any
// Merge/Split this interaction triggers. Parallel over interactions.
//
// Each goroutine writes only to its own interaction's slot of recs and
// deferredOps — index-addressed, exactly like recs[2*idx] — rather than
// calling grid.Deferred's shared queue from inside the parallel region.
// Enqueuing directly from worker goroutines would order deferred ops by
// whichever goroutine won the queue's mutex, which is nondeterministic
// across runs at a fixed thread count (spec.md property 7); the ops are
// instead drained into grid.Deferred sequentially, in interaction-index
// order, once this pass's parallel region has finished.
func (e *Engine) evaluateInteractions(interactions []interaction) []updateRecord {
	g := e.grid
	recs := make([]updateRecord, 2*len(interactions))
	deferredOps := make([][]grid.DeferredOp, len(interactions))

	e.pool.Run(len(interactions), func(start, end int) {
		for idx := start; idx < end; idx++ {
			in := interactions[idx]
			a := &g.Agents[in.A]
			b := &g.Agents[in.B]

			amem := a.Memory()
			bmem := b.Memory()
			keyAB := policy.StateKey(amem.Length(), bmem.Length(), amem.Bits(), bmem.Bits())
			keyBA := policy.StateKey(bmem.Length(), amem.Length(), bmem.Bits(), amem.Bits())

			polA := e.store.LookupOrInsert(keyAB, e.tick).Get()
			polB := e.store.LookupOrInsert(keyBA, e.tick).Get()

			rng := rand.New(rand.NewSource(int64(in.Seed)))
			actA := polA.SampleAction(e.params.Epsilon, rng)
			actB := polB.SampleAction(e.params.Epsilon, rng)

			rA := g.Payoff.Get(actA, actB)
			rB := g.Payoff.Get(actB, actA)

			newMemA := amem.Push(actA, a.MemoryCapacity)
			newMemB := bmem.Push(actB, b.MemoryCapacity)

			nextKeyA := policy.StateKey(newMemA.Length(), bmem.Length(), newMemA.Bits(), bmem.Bits())
			nextKeyB := policy.StateKey(newMemB.Length(), amem.Length(), newMemB.Bits(), amem.Bits())
			maxNextA := e.store.LookupOrInsert(nextKeyA, e.tick).Get().MaxQ()
			maxNextB := e.store.LookupOrInsert(nextKeyB, e.tick).Get().MaxQ()

			newQA := polA.ComputeUpdate(actA, rA, maxNextA, e.params.Alpha, e.params.Gamma)
			newQB := polB.ComputeUpdate(actB, rB, maxNextB, e.params.Alpha, e.params.Gamma)

			recs[2*idx] = updateRecord{
				Agent: in.A, NewMemory: newMemA, FitnessDelta: rA,
				PolicyKey: keyAB, Action: actA, NewQ: newQA, InteractionIndex: idx,
			}
			recs[2*idx+1] = updateRecord{
				Agent: in.B, NewMemory: newMemB, FitnessDelta: rB,
				PolicyKey: keyBA, Action: actB, NewQ: newQB, InteractionIndex: idx,
			}

			var ops []grid.DeferredOp
			if actA == action.Merge || actB == action.Merge {
				ops = append(ops, grid.DeferredOp{Kind: grid.OpMerge, A: in.A, B: in.B})
			}
			if actA == action.Split && a.Generation > 1 {
				ops = append(ops, grid.DeferredOp{Kind: grid.OpSplit, A: in.A})
			}
			if actB == action.Split && b.Generation > 1 {
				ops = append(ops, grid.DeferredOp{Kind: grid.OpSplit, A: in.B})
			}
			deferredOps[idx] = ops
		}
	})

	for _, ops := range deferredOps {
		for _, op := range ops {
			switch op.Kind {
			case grid.OpMerge:
				g.Deferred.EnqueueMerge(op.A, op.B)
			case grid.OpSplit:
				g.Deferred.EnqueueSplit(op.A)
			}
		}
	}

	return recs
}

// commitUpdates is Pass 4: applies every update record to its agent and to
// the Policy Store, in interaction-index order (stable) as required by
// spec.md §4.5. recs is produced in a fixed slot order (2*interactionIndex),
// so grouping by agent preserves interaction order regardless of Pass 3's
// completion order.
//
// The two kinds of write this pass makes have different safe concurrency:
// an agent's own fields (Fitness, memory, PolicyKey, LastAction) are only
// ever touched by the records in its own group, so grouping by agent and
// running groups in parallel is race-free. But a Policy Store entry can be
// shared by two different agents' records (spec.md §9, "Shared Q-tables"),
// so applying those in parallel across agent groups would let whichever
// goroutine's Apply call lands last win, nondeterministically, and would
// also race policystore's per-entry recency stamp. Those commits are
// therefore done in a second, single-threaded pass over recs in its
// original interaction-index order.
func (e *Engine) commitUpdates(recs []updateRecord) {
	g := e.grid

	byAgent := make(map[uint32][]updateRecord, len(recs))
	order := make([]uint32, 0, len(recs))
	for _, r := range recs {
		if _, ok := byAgent[r.Agent]; !ok {
			order = append(order, r.Agent)
		}
		byAgent[r.Agent] = append(byAgent[r.Agent], r)
	}

	e.pool.Run(len(order), func(start, end int) {
		for idx := start; idx < end; idx++ {
			agentIdx := order[idx]
			a := &g.Agents[agentIdx]
			for _, r := range byAgent[agentIdx] {
				a.Fitness += r.FitnessDelta
				a.SetMemory(r.NewMemory)
				a.PolicyKey = r.PolicyKey
				a.LastAction = r.Action.Code()
			}
		}
	})

	for _, r := range recs {
		e.store.LookupOrInsert(r.PolicyKey, e.tick).Apply(r.Action, r.NewQ)
	}
}

// applyDeferredOps is Pass 5: drains the deferred-ops queue in FIFO order
// on the calling goroutine only, applying Merge/Split per spec.md §4.5.
func (e *Engine) applyDeferredOps() (mergeCount, splitCount int) {
	g := e.grid
	for _, op := range g.Deferred.Drain() {
		switch op.Kind {
		case grid.OpMerge:
			if e.applyMerge(op.A, op.B) {
				mergeCount++
			}
		case grid.OpSplit:
			if e.applySplit(op.A) {
				splitCount++
			}
		}
	}

	e.store.EvictToCapacity()
	return mergeCount, splitCount
}

func (e *Engine) applyMerge(a, b uint32) bool {
	g := e.grid
	pa := &g.Agents[a]
	pb := &g.Agents[b]
	if !pa.Active || !pb.Active {
		return false // stale: one parent already claimed by an earlier op this tick
	}

	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	parentLo := &g.Agents[lo]
	parentHi := &g.Agents[hi]

	child := agent.MergeChild(lo, hi, *parentLo, *parentHi, parentLo.OriginCell)

	survivor := parentLo
	if parentHi.Fitness > parentLo.Fitness {
		survivor = parentHi
	}
	child.PolicyKey = survivor.PolicyKey
	child.SetMemory(survivor.Memory())
	child.MemoryCapacity = survivor.MemoryCapacity

	childIdx := uint32(len(g.Agents))
	g.Agents = append(g.Agents, child)
	// Re-acquire pointers: append may have reallocated the backing array.
	g.Agents[lo].Deactivate(childIdx)
	g.Agents[hi].Deactivate(childIdx)
	return true
}

func (e *Engine) applySplit(c uint32) bool {
	g := e.grid
	dissolving := &g.Agents[c]
	if !dissolving.Active || dissolving.Generation <= 1 {
		return false
	}

	parentA := dissolving.ParentA
	parentB := dissolving.ParentB
	mem := dissolving.Memory()
	policyKey := dissolving.PolicyKey

	// Fitness is a finite real rather than the reference engine's integer
	// count, so an exact even split (rather than floor/ceil with the odd
	// unit to parent_a) already guarantees fitness_a + fitness_b ==
	// fitness_C to the bit, satisfying spec.md property 5 without rounding.
	half := dissolving.Fitness / 2

	pa := &g.Agents[parentA]
	pb := &g.Agents[parentB]
	pa.Reactivate(half)
	pb.Reactivate(half)
	pa.PolicyKey, pb.PolicyKey = policyKey, policyKey
	pa.SetMemory(mem.Truncate(pa.MemoryCapacity))
	pb.SetMemory(mem.Truncate(pb.MemoryCapacity))

	g.Agents[c].Deactivate(parentA)
	return true
}
