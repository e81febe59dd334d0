// Package stats computes the per-tick Statistics record published by the
// engine, grounded on the reference engine's Statistics struct (grid.rs)
// and on the teacher's WindowStats pattern (telemetry/stats.go) for the
// shape of a publishable, read-only snapshot struct.
package stats

import "github.com/pthm-cable/ipdcells/agent"

// ActionCounts tallies how many times each action was chosen during a tick.
type ActionCounts struct {
	Cooperate int
	Defect    int
	Merge     int
	Split     int
}

// Statistics is the per-tick record the engine publishes to external
// writers (CSV, logging) through Engine.Snapshot. No history is retained
// inside the engine; each tick's record is computed fresh.
type Statistics struct {
	Tick int

	Active        int
	Unicellular   int
	Multicellular int

	MeanFitness      float64
	MeanFitnessUni   float64
	MeanFitnessMulti float64

	Actions ActionCounts

	MergeCount int
	SplitCount int

	// OrganismSizeHistogram maps generation (organism size) to the count
	// of active agents of that size.
	OrganismSizeHistogram map[uint32]int
	MaxOrgSize            uint32
}

// Compute derives a Statistics record from the current agent array and the
// action/merge/split counts accumulated during the tick just committed.
func Compute(agents []agent.Agent, actions ActionCounts, mergeCount, splitCount, tick int) Statistics {
	s := Statistics{
		Tick:                  tick,
		Actions:               actions,
		MergeCount:            mergeCount,
		SplitCount:            splitCount,
		OrganismSizeHistogram: make(map[uint32]int),
	}

	var sumFitness, sumFitnessUni, sumFitnessMulti float64

	for i := range agents {
		a := &agents[i]
		if !a.Active {
			continue
		}
		s.Active++
		sumFitness += a.Fitness
		if a.IsMulticellular() {
			s.Multicellular++
			sumFitnessMulti += a.Fitness
		} else {
			s.Unicellular++
			sumFitnessUni += a.Fitness
		}
		s.OrganismSizeHistogram[a.Generation]++
		if a.Generation > s.MaxOrgSize {
			s.MaxOrgSize = a.Generation
		}
	}

	if s.Active > 0 {
		s.MeanFitness = sumFitness / float64(s.Active)
	}
	if s.Unicellular > 0 {
		s.MeanFitnessUni = sumFitnessUni / float64(s.Unicellular)
	}
	if s.Multicellular > 0 {
		s.MeanFitnessMulti = sumFitnessMulti / float64(s.Multicellular)
	}
	return s
}
