// Package layout assigns deterministic 2-D canvas coordinates to workflow
// steps. Given the same declared order the projection is bit-identical
// across calls, which keeps stored definitions diffable and tests
// reproducible.
package layout

import "github.com/loomworks/loom/pkg/api"

const (
	Columns   = 3
	ColWidth  = 300
	RowHeight = 150
	Margin    = 50
)

// Project maps each step to a grid slot by its index in the declared order:
// three columns wide, wrapping to a new row, offset by a fixed margin
func Project(order []api.StepID) map[api.StepID]api.Position {
	positions := make(map[api.StepID]api.Position, len(order))
	for i, id := range order {
		row := i / Columns
		col := i % Columns
		positions[id] = api.Position{
			X: float64(col*ColWidth + Margin),
			Y: float64(row*RowHeight + Margin),
		}
	}
	return positions
}
