package terminal

import (
	"strings"
	"unicode"

	headlessterm "github.com/danielgatis/go-headless-term"
	"github.com/lucasb-eyer/go-colorful"
)

// CellFlags is the subset of cell attributes a renderer needs.
type CellFlags uint16

const (
	FlagBold CellFlags = 1 << iota
	FlagDim
	FlagItalic
	FlagUnderline
	FlagReverse
	FlagHidden
	FlagStrike
	// FlagWide marks the first cell of a double-width character. The second
	// (spacer) cell is never present in extracted content.
	FlagWide
)

// RenderCell is a single visible cell ready for rendering.
type RenderCell struct {
	Col   int
	Row   int
	Char  rune
	FG    colorful.Color
	BG    colorful.Color
	Flags CellFlags
}

// RenderCursor is the cursor state for one frame.
type RenderCursor struct {
	Col     int
	Row     int
	Visible bool
}

// TerminalContent is an immutable snapshot of terminal state for one frame.
// It is created fresh on every successful extraction, replaces the session's
// previous snapshot wholesale, and is read-only once published.
type TerminalContent struct {
	// Cells holds all visible cells in row-major order. Wide-character
	// spacer cells are omitted; their visual extent is accounted for by the
	// preceding FlagWide cell.
	Cells []RenderCell
	Cols  int
	Rows  int

	Cursor RenderCursor

	DefaultFG colorful.Color
	DefaultBG colorful.Color
}

// snapshotContent builds a TerminalContent from the engine grid. The caller
// must hold the session's grid lock so the snapshot observes a fully
// interpreted prefix of the output stream, never a partial chunk.
func snapshotContent(term *headlessterm.Terminal, defaultFG, defaultBG colorful.Color) *TerminalContent {
	rows := term.Rows()
	cols := term.Cols()

	cells := make([]RenderCell, 0, rows*cols)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			cell := term.Cell(row, col)
			if cell == nil || cell.IsWideSpacer() {
				continue
			}
			ch := cell.Char
			if ch == 0 {
				ch = ' '
			}
			cells = append(cells, RenderCell{
				Col:   col,
				Row:   row,
				Char:  ch,
				FG:    resolveCellColor(cell.Fg, defaultFG, defaultFG, defaultBG),
				BG:    resolveCellColor(cell.Bg, defaultBG, defaultFG, defaultBG),
				Flags: renderFlags(cell),
			})
		}
	}

	curRow, curCol := term.CursorPos()
	return &TerminalContent{
		Cells: cells,
		Cols:  cols,
		Rows:  rows,
		Cursor: RenderCursor{
			Col:     curCol,
			Row:     curRow,
			Visible: term.CursorVisible(),
		},
		DefaultFG: defaultFG,
		DefaultBG: defaultBG,
	}
}

func renderFlags(cell *headlessterm.Cell) CellFlags {
	var f CellFlags
	if cell.Flags&headlessterm.CellFlagBold != 0 {
		f |= FlagBold
	}
	if cell.Flags&headlessterm.CellFlagDim != 0 {
		f |= FlagDim
	}
	if cell.Flags&headlessterm.CellFlagItalic != 0 {
		f |= FlagItalic
	}
	if cell.Flags&headlessterm.CellFlagUnderline != 0 {
		f |= FlagUnderline
	}
	if cell.Flags&headlessterm.CellFlagReverse != 0 {
		f |= FlagReverse
	}
	if cell.Flags&headlessterm.CellFlagHidden != 0 {
		f |= FlagHidden
	}
	if cell.Flags&headlessterm.CellFlagStrike != 0 {
		f |= FlagStrike
	}
	if cell.Flags&headlessterm.CellFlagWideChar != 0 {
		f |= FlagWide
	}
	return f
}

// extractText copies the rectangular region [startRow,endRow] x
// [startCol,endCol] from the grid as text. Trailing whitespace is trimmed
// per line; leading and interior spacing is preserved. On the first line the
// copy starts at startCol, on the last line it ends at endCol, and in
// between it spans the full width. The caller must hold the grid lock.
func extractText(term *headlessterm.Terminal, startRow, startCol, endRow, endCol int) string {
	rows := term.Rows()
	cols := term.Cols()

	var lines []string
	for row := startRow; row <= endRow && row < rows; row++ {
		colStart := 0
		colEnd := cols - 1
		if row == startRow {
			colStart = startCol
		}
		if row == endRow {
			colEnd = endCol
		}

		var b strings.Builder
		for col := colStart; col <= colEnd && col < cols; col++ {
			cell := term.Cell(row, col)
			if cell == nil || cell.IsWideSpacer() {
				continue
			}
			if cell.Char == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteRune(cell.Char)
			}
		}
		lines = append(lines, strings.TrimRightFunc(b.String(), unicode.IsSpace))
	}

	return strings.Join(lines, "\n")
}
