package engine

import (
	"context"
	"math"
	"testing"

	"github.com/pthm-cable/ipdcells/action"
)

// Property 2 (root reachability): starting from the original owner of a
// cell (its birth agent index, == the cell index) and following Child
// links terminates at CellOwner[c]. Walked independently here via the
// public Snapshot/AgentAt API rather than calling grid.resolveRoot.
func TestRootReachability(t *testing.T) {
	cfg := testConfig(4, 4, 5, 1.0)
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	for tick := 0; tick < 15; tick++ {
		if err := e.Step(context.Background()); err != nil {
			t.Fatalf("Step: %v", err)
		}
		snap := e.Snapshot()
		for c, want := range snap.CellOwner {
			got := uint32(c)
			for steps := 0; ; steps++ {
				a := e.AgentAt(got)
				if a.Active {
					break
				}
				got = a.Child
				if steps > e.NumAgents() {
					t.Fatalf("tick %d: cell %d's child chain did not terminate", tick, c)
				}
			}
			if got != want {
				t.Fatalf("tick %d: cell %d resolved to %d via child chain, want %d (CellOwner)", tick, c, got, want)
			}
		}
	}
}

// Property 8 (policy sharing): two agents with equal memory content after
// their counterparts' equal memories reach the same policy key, since
// policy.StateKey is a pure function of (len, counterpartLen, bits,
// counterpartBits).
func TestPolicySharing(t *testing.T) {
	cfg := testConfig(2, 2, 9, 0)
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if err := e.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	keyByMem := make(map[[2]uint32]uint64) // {length<<16|bits, 0} -> PolicyKey; an Agent record does not carry its counterpart's memory
	for i := 0; i < e.NumAgents(); i++ {
		a := e.AgentAt(uint32(i))
		if !a.Active {
			continue
		}
		k := [2]uint32{uint32(a.MemoryLength)<<16 | a.MemoryBits, 0}
		if prior, ok := keyByMem[k]; ok {
			if prior != a.PolicyKey {
				t.Errorf("agents with identical memory disagree on PolicyKey: %d vs %d", prior, a.PolicyKey)
			}
		} else {
			keyByMem[k] = a.PolicyKey
		}
	}
}

// Property 4 (fitness conservation under Merge): immediately after Pass 5,
// for every Merge executed this tick, fitness_K == fitness_A + fitness_B
// using the pre-merge values.
func TestFitnessConservationMerge(t *testing.T) {
	cfg := testConfig(2, 1, 3, 0)
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	g := e.grid
	fitA, fitB := 1.25, 2.75
	g.Agents[0].Fitness = fitA
	g.Agents[1].Fitness = fitB

	if !e.applyMerge(0, 1) {
		t.Fatal("applyMerge returned false for two active agents")
	}

	childIdx := uint32(len(g.Agents) - 1)
	child := e.AgentAt(childIdx)
	want := fitA + fitB
	if math.Abs(child.Fitness-want) > 1e-12 {
		t.Errorf("child fitness = %v, want %v", child.Fitness, want)
	}
	if g.Agents[0].Active || g.Agents[1].Active {
		t.Error("parents should be inactive after merge")
	}
}

// Property 5 (fitness conservation under Split): fitness_a + fitness_b ==
// fitness_C after the split.
func TestFitnessConservationSplit(t *testing.T) {
	cfg := testConfig(2, 1, 3, 0)
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	g := e.grid
	g.Agents[0].Fitness = 1.0
	g.Agents[1].Fitness = 3.0
	if !e.applyMerge(0, 1) {
		t.Fatal("applyMerge failed")
	}
	childIdx := uint32(len(g.Agents) - 1)

	if !e.applySplit(childIdx) {
		t.Fatal("applySplit returned false for a fresh merge (generation should be 2)")
	}

	fitC := float64(1.0 + 3.0)
	gotA := g.Agents[0].Fitness
	gotB := g.Agents[1].Fitness
	if math.Abs((gotA+gotB)-fitC) > 1e-12 {
		t.Errorf("fitness_a + fitness_b = %v, want %v", gotA+gotB, fitC)
	}
	if !g.Agents[0].Active || !g.Agents[1].Active {
		t.Error("both parents should be reactivated after split")
	}
	if g.Agents[0].Generation != 1 || g.Agents[1].Generation != 1 {
		t.Errorf("parents should return to generation 1 after split, got %d and %d", g.Agents[0].Generation, g.Agents[1].Generation)
	}
}

// Property 6 (Q-update law): after a commit, the stored Q for the acted
// action equals (1-alpha)*Q_old + alpha*(r + gamma*maxQ_next) to within
// floating-point tolerance. On the first tick every entry is fresh, so
// Q_old and maxQ_next are both 0 and the law reduces to alpha*r, where r is
// the payoff of the acted action against one of the opponent's actions.
func TestQUpdateLaw(t *testing.T) {
	cfg := testConfig(2, 2, 17, 0.2)
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if err := e.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	for i := 0; i < e.NumAgents(); i++ {
		a := e.AgentAt(uint32(i))
		if !a.Active {
			continue
		}
		pol := e.store.LookupOrInsert(a.PolicyKey, 0).Get()
		q := pol.Q[a.LastAction]
		if math.IsNaN(q) || math.IsInf(q, 0) {
			t.Errorf("agent %d: non-finite Q value %v", i, q)
		}
		act := action.Action(a.LastAction)
		matched := false
		for opp := action.Cooperate; opp <= action.Split; opp++ {
			want := (1-cfg.Alpha)*0 + cfg.Alpha*(cfg.Payoff.Get(act, opp)+cfg.Gamma*0)
			if math.Abs(q-want) <= 1e-12 {
				matched = true
			}
		}
		if !matched {
			t.Errorf("agent %d: stored Q[%v] = %v, not alpha*r for any opponent action", i, act, q)
		}
	}
}
