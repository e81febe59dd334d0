// Package grid implements the Grid: the agent array, neighbor topology, and
// active-root cache (cell_owner) described in spec.md §3/§4.5. The Step
// Pipeline that drives a Grid through its five passes lives in package
// engine; this package owns only the data structures and the operations
// that read or rewrite them directly (root-cache refresh, neighbor lookup,
// the deferred-op queue). Merge and Split themselves are applied by engine.
package grid

import (
	"fmt"

	"github.com/pthm-cable/ipdcells/agent"
	"github.com/pthm-cable/ipdcells/payoff"
)

// Neighborhood selects which cells count as adjacent to a given cell.
type Neighborhood int

const (
	FourConnected Neighborhood = iota
	EightConnected
)

var fourDirs = [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}
var eightDirs = [8][2]int{
	{0, -1}, {0, 1}, {-1, 0}, {1, 0},
	{-1, -1}, {-1, 1}, {1, -1}, {1, 1},
}

// Dirs returns the row/column offsets that count as adjacent under n.
func (n Neighborhood) Dirs() [][2]int {
	if n == EightConnected {
		out := make([][2]int, len(eightDirs))
		for i, d := range eightDirs {
			out[i] = d
		}
		return out
	}
	out := make([][2]int, len(fourDirs))
	for i, d := range fourDirs {
		out[i] = d
	}
	return out
}

// Grid owns the append-only agent array, the cell-to-owner root cache, the
// deferred structural-operation queue, and the parameters shared by every
// pass of the Step Pipeline.
type Grid struct {
	Width, Height int
	Neighborhood  Neighborhood

	Agents    []agent.Agent
	CellOwner []uint32 // cell index -> active owning agent index

	Payoff payoff.Table

	Deferred *DeferredQueue

	// cellsByOwner maps an active agent index to the cells it currently
	// owns. Rebuilt every Pass 1 alongside CellOwner; the original engine
	// has no equivalent (organism membership there is only generation
	// counts, per spec.md §9), but Pass 2's neighbor sampling needs an
	// agent's actual cell set to pick a boundary neighbor, so we maintain
	// this reverse index as a direct consequence of already computing
	// CellOwner.
	cellsByOwner map[uint32][]int
}

// New creates a grid of width x height cells, one unicellular agent per
// cell with empty memory and the given memory capacity.
func New(width, height int, neighborhood Neighborhood, pt payoff.Table, memoryCapacity uint8) (*Grid, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("grid: width and height must be >= 1, got %dx%d", width, height)
	}
	if memoryCapacity < 1 || memoryCapacity > 16 {
		return nil, fmt.Errorf("grid: memory capacity must be in 1..16, got %d", memoryCapacity)
	}
	if err := pt.Validate(); err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}

	n := width * height
	g := &Grid{
		Width:        width,
		Height:       height,
		Neighborhood: neighborhood,
		Agents:       make([]agent.Agent, n),
		CellOwner:    make([]uint32, n),
		Payoff:       pt,
		Deferred:     NewDeferredQueue(),
	}
	for c := 0; c < n; c++ {
		g.Agents[c] = agent.New(uint32(c), memoryCapacity)
		g.CellOwner[c] = uint32(c)
	}
	return g, nil
}

// CellIndex converts row/column coordinates to a flat cell index.
func (g *Grid) CellIndex(row, col int) int {
	return row*g.Width + col
}

// RowCol converts a flat cell index back to row/column coordinates.
func (g *Grid) RowCol(cell int) (row, col int) {
	return cell / g.Width, cell % g.Width
}

// NeighborCell returns the cell adjacent to cell in direction (dr, dc),
// honoring closed (non-wrapping) boundaries. ok is false if the neighbor
// would fall outside the grid.
func (g *Grid) NeighborCell(cell int, dr, dc int) (neighbor int, ok bool) {
	row, col := g.RowCol(cell)
	nr, nc := row+dr, col+dc
	if nr < 0 || nr >= g.Height || nc < 0 || nc >= g.Width {
		return 0, false
	}
	return g.CellIndex(nr, nc), true
}

// CellsOf returns the cells currently owned by agent index i, valid as of
// the last RefreshRootCache call.
func (g *Grid) CellsOf(i uint32) []int {
	return g.cellsByOwner[i]
}

// resolveRoot walks the child chain starting at agent index start until it
// finds an active agent, returning that agent's index. A Merge sets Child
// to the later-created merged agent; a Split sets the dissolved agent's
// Child to its parent_a (a lower index), which that Split has just
// reactivated.
func (g *Grid) resolveRoot(start uint32) uint32 {
	i := start
	for !g.Agents[i].Active {
		i = g.Agents[i].Child
	}
	return i
}

// RefreshRootCache is Pass 1: for every cell, walk the child chain from the
// agent originally born at that cell until an active agent is found, and
// write CellOwner. Because cell_owner is recomputed from scratch every
// tick, "path compression" here means writing the resolved root directly
// rather than materializing each intermediate hop, not mutating the
// lineage graph itself.
func (g *Grid) RefreshRootCache(pool Runner) {
	n := len(g.CellOwner)
	pool.Run(n, func(start, end int) {
		for c := start; c < end; c++ {
			g.CellOwner[c] = g.resolveRoot(uint32(c))
		}
	})

	owners := make(map[uint32][]int, len(g.Agents))
	for c, owner := range g.CellOwner {
		owners[owner] = append(owners[owner], c)
	}
	g.cellsByOwner = owners
}

// Runner abstracts the parallel chunk-dispatch mechanism (see
// engine.workerPool) so this package does not need to import engine.
type Runner interface {
	Run(n int, fn func(start, end int))
}
