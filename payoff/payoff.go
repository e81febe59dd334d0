// Package payoff implements the 4x4 reward table mapping a pair of actions
// to a reward for the row player. Ported from the reference engine's
// PayoffTable.
package payoff

import (
	"fmt"
	"math"

	"github.com/pthm-cable/ipdcells/action"
)

// Table is a 4x4 matrix of finite rewards indexed [rowAction][colAction].
type Table [action.NumActions][action.NumActions]float64

// Get returns the reward for the row player playing mine against opp.
func (t Table) Get(mine, opp action.Action) float64 {
	return t[mine.Code()][opp.Code()]
}

// Standard returns the classic IPD payoff table extended with zero-reward
// rows/columns for Merge and Split, matching spec.md's S1 scenario:
// (C,C)=3, (C,D)=0, (D,C)=5, (D,D)=1, all Merge/Split interactions = 0.
func Standard() Table {
	var t Table
	t[action.Cooperate.Code()][action.Cooperate.Code()] = 3
	t[action.Cooperate.Code()][action.Defect.Code()] = 0
	t[action.Defect.Code()][action.Cooperate.Code()] = 5
	t[action.Defect.Code()][action.Defect.Code()] = 1
	return t
}

// Validate returns an error if the table contains a non-finite entry.
func (t Table) Validate() error {
	for i := range t {
		for j := range t[i] {
			if math.IsNaN(t[i][j]) || math.IsInf(t[i][j], 0) {
				return fmt.Errorf("payoff: entry [%d][%d] is not finite: %v", i, j, t[i][j])
			}
		}
	}
	return nil
}
