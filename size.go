package terminal

import (
	"fmt"

	"github.com/creack/pty"
)

// Grid dimension bounds. The engine clamps out-of-range requests; outer
// layers that prefer rejecting over adjusting can check against these.
const (
	MinCols = 20
	MinRows = 5
	MaxCols = 500
	MaxRows = 200
)

func validateTerminalSize(cols, rows int) error {
	if cols < MinCols || cols > MaxCols {
		return fmt.Errorf("invalid cols: %d", cols)
	}
	if rows < MinRows || rows > MaxRows {
		return fmt.Errorf("invalid rows: %d", rows)
	}
	return nil
}

func clampTerminalSize(cols, rows int) (int, int) {
	if cols < MinCols {
		cols = MinCols
	}
	if rows < MinRows {
		rows = MinRows
	}
	if cols > MaxCols {
		cols = MaxCols
	}
	if rows > MaxRows {
		rows = MaxRows
	}
	return cols, rows
}

func buildWinSize(cols, rows int) *pty.Winsize {
	// Approximate pixel sizing for better compatibility with certain programs.
	charWidth := 8.4
	charHeight := 18.0
	return &pty.Winsize{
		Rows: uint16(rows),
		Cols: uint16(cols),
		X:    uint16(float64(cols) * charWidth),
		Y:    uint16(float64(rows) * charHeight),
	}
}
