package grid

import (
	"testing"

	"github.com/pthm-cable/ipdcells/payoff"
)

type inlineRunner struct{}

func (inlineRunner) Run(n int, fn func(start, end int)) {
	fn(0, n)
}

func TestNewGridValidation(t *testing.T) {
	pt := payoff.Standard()
	if _, err := New(0, 3, FourConnected, pt, 4); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := New(3, 3, FourConnected, pt, 0); err == nil {
		t.Error("expected error for zero memory capacity")
	}
	if _, err := New(3, 3, FourConnected, pt, 17); err == nil {
		t.Error("expected error for memory capacity > 16")
	}
}

func TestNewGridInitialState(t *testing.T) {
	g, err := New(2, 2, FourConnected, payoff.Standard(), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(g.Agents) != 4 {
		t.Fatalf("len(Agents) = %d, want 4", len(g.Agents))
	}
	for c, owner := range g.CellOwner {
		if owner != uint32(c) {
			t.Errorf("CellOwner[%d] = %d, want %d", c, owner, c)
		}
		if !g.Agents[c].Active {
			t.Errorf("agent %d should start active", c)
		}
	}
}

func TestNeighborCellClosedBoundary(t *testing.T) {
	g, err := New(3, 3, FourConnected, payoff.Standard(), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := g.NeighborCell(0, -1, 0); ok {
		t.Error("expected no neighbor above top-left corner")
	}
	if _, ok := g.NeighborCell(0, 0, -1); ok {
		t.Error("expected no neighbor left of top-left corner")
	}
	n, ok := g.NeighborCell(0, 0, 1)
	if !ok || n != 1 {
		t.Errorf("NeighborCell(0,0,1) = %d,%v want 1,true", n, ok)
	}
}

func TestRefreshRootCacheAfterMerge(t *testing.T) {
	g, err := New(2, 1, FourConnected, payoff.Standard(), 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Merge agents 0 and 1 into a new agent 2 by hand.
	g.Agents[0].Active = false
	g.Agents[0].Child = 2
	g.Agents[1].Active = false
	g.Agents[1].Child = 2
	g.Agents = append(g.Agents, g.Agents[0])
	g.Agents[2].Active = true
	g.Agents[2].Child = agentNone()

	g.RefreshRootCache(inlineRunner{})

	if g.CellOwner[0] != 2 || g.CellOwner[1] != 2 {
		t.Errorf("CellOwner = %v, want both cells owned by agent 2", g.CellOwner)
	}
	cells := g.CellsOf(2)
	if len(cells) != 2 {
		t.Errorf("CellsOf(2) = %v, want 2 cells", cells)
	}
}

func agentNone() uint32 { return ^uint32(0) }

func TestDeferredQueueFIFO(t *testing.T) {
	q := NewDeferredQueue()
	q.EnqueueMerge(0, 1)
	q.EnqueueSplit(2)
	ops := q.Drain()
	if len(ops) != 2 {
		t.Fatalf("len(ops) = %d, want 2", len(ops))
	}
	if ops[0].Kind != OpMerge || ops[0].A != 0 || ops[0].B != 1 {
		t.Errorf("ops[0] = %+v, want Merge(0,1)", ops[0])
	}
	if ops[1].Kind != OpSplit || ops[1].A != 2 {
		t.Errorf("ops[1] = %+v, want Split(2)", ops[1])
	}
	if len(q.Drain()) != 0 {
		t.Error("queue should be empty after Drain")
	}
}
