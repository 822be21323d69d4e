// Package render draws world snapshots as a character grid for terminal
// playback. One grid square is a 3-column cell carrying the status of the
// first agent whose rounded position lands on it.
package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/runesim/kaun/geometry"
	"github.com/runesim/kaun/models"
)

// Clear homes the cursor and erases the display so successive frames
// animate in place.
const Clear = "\x1b[H\x1b[2J"

const (
	colorGreen  = "\x1b[32m"
	colorOrange = "\x1b[38;5;208m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorReset  = "\x1b[0m"
)

// Renderer draws agent snapshots onto a fixed-size grid. Rows print from
// the top of the world down, so +Y is up on screen.
type Renderer struct {
	// Bounds is the world rectangle the grid covers. Agents outside it
	// are not drawn.
	Bounds geometry.Rect

	// Color wraps each agent cell in ANSI color codes per status.
	Color bool

	// ClearScreen prefixes every frame with Clear.
	ClearScreen bool
}

// Frame renders one grid for the given tick. Agents that round to the same
// cell resolve to whichever comes first in the slice.
func (r Renderer) Frame(tick uint64, agents []models.AgentSnapshot) string {
	cols := int(math.Round(r.Bounds.Width())) + 1
	rows := int(math.Round(r.Bounds.Height())) + 1

	cells := make(map[[2]int]string, len(agents))
	for _, a := range agents {
		col := int(math.Round(a.Position.X - r.Bounds.Min.X))
		row := int(math.Round(a.Position.Y - r.Bounds.Min.Y))
		if col < 0 || col >= cols || row < 0 || row >= rows {
			continue
		}
		key := [2]int{col, row}
		if _, taken := cells[key]; taken {
			continue
		}
		cells[key] = r.cell(tick, a)
	}

	var b strings.Builder
	if r.ClearScreen {
		b.WriteString(Clear)
	}
	fmt.Fprintf(&b, "----- Tick %2d -----\n", tick)

	for row := rows - 1; row >= 0; row-- {
		for col := 0; col < cols; col++ {
			if cell, ok := cells[[2]int{col, row}]; ok {
				b.WriteString(cell)
				continue
			}
			b.WriteString("   ")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (r Renderer) cell(tick uint64, a models.AgentSnapshot) string {
	var body, color string

	switch a.Status {
	case models.HealthSusceptible:
		body, color = " S ", colorGreen
	case models.HealthExposed:
		body, color = fmt.Sprintf("E%-2d", sinceTicks(tick, a.StatusTick)), colorOrange
	case models.HealthInfectious:
		body, color = fmt.Sprintf("I%-2d", sinceTicks(tick, a.StatusTick)), colorRed
	case models.HealthRecovered:
		body, color = " R ", colorYellow
	case models.HealthDead:
		body, color = " D ", colorBlue
	default:
		body, color = " ? ", colorReset
	}

	if !r.Color {
		return body
	}
	return color + body + colorReset
}

// sinceTicks caps the elapsed count at two digits so cells keep their
// width.
func sinceTicks(tick, since uint64) uint64 {
	if tick < since {
		return 0
	}
	if d := tick - since; d <= 99 {
		return d
	}
	return 99
}
