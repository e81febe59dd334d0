package engine

import (
	"github.com/pthm-cable/ipdcells/agent"
	"github.com/pthm-cable/ipdcells/stats"
)

// Snapshot is the pull-API record external collaborators (CSV writer,
// frame encoder, CLI progress reporting) read after each Step. It is
// consistent with the end of the named tick (spec.md §6).
type Snapshot struct {
	Tick      int
	CellOwner []uint32 // cell index -> owning agent index, copied out
	Stats     stats.Statistics
}

// Snapshot returns a read-only view of the engine's state as of the most
// recently completed Step. CellOwner is copied so a caller holding a
// Snapshot is unaffected by the engine's next Step call.
func (e *Engine) Snapshot() Snapshot {
	cellOwner := make([]uint32, len(e.grid.CellOwner))
	copy(cellOwner, e.grid.CellOwner)
	return Snapshot{
		Tick:      int(e.tick),
		CellOwner: cellOwner,
		Stats:     e.lastStats,
	}
}

// AgentAt returns a copy of the agent record at index i. Exposed for
// testing and for external diagnostics; the engine itself never hands out
// live pointers into its agent array.
func (e *Engine) AgentAt(i uint32) agent.Agent {
	return e.grid.Agents[i]
}

// NumAgents returns the current length of the (append-only) agent array.
func (e *Engine) NumAgents() int {
	return len(e.grid.Agents)
}
