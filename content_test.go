package terminal

import (
	"testing"

	headlessterm "github.com/danielgatis/go-headless-term"
	"github.com/lucasb-eyer/go-colorful"
)

var (
	testFG = colorful.Color{R: 1, G: 1, B: 1}
	testBG = colorful.Color{}
)

func newTestTerm(rows, cols int) *headlessterm.Terminal {
	return headlessterm.New(headlessterm.WithSize(rows, cols))
}

func findCell(content *TerminalContent, row, col int) *RenderCell {
	for i := range content.Cells {
		if content.Cells[i].Row == row && content.Cells[i].Col == col {
			return &content.Cells[i]
		}
	}
	return nil
}

func TestSnapshotBasicText(t *testing.T) {
	term := newTestTerm(4, 10)
	if _, err := term.WriteString("hi"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	content := snapshotContent(term, testFG, testBG)
	if content.Cols != 10 || content.Rows != 4 {
		t.Fatalf("unexpected dimensions: %dx%d", content.Cols, content.Rows)
	}

	h := findCell(content, 0, 0)
	if h == nil || h.Char != 'h' {
		t.Fatalf("expected 'h' at (0,0), got %+v", h)
	}
	i := findCell(content, 0, 1)
	if i == nil || i.Char != 'i' {
		t.Fatalf("expected 'i' at (0,1), got %+v", i)
	}

	if content.Cursor.Row != 0 || content.Cursor.Col != 2 {
		t.Fatalf("unexpected cursor position: (%d,%d)", content.Cursor.Row, content.Cursor.Col)
	}
	if !content.Cursor.Visible {
		t.Fatal("expected cursor to be visible")
	}
}

func TestSnapshotEmptyCellsAreSpaces(t *testing.T) {
	term := newTestTerm(2, 4)

	content := snapshotContent(term, testFG, testBG)
	for _, cell := range content.Cells {
		if cell.Char != ' ' {
			t.Fatalf("expected blank cell at (%d,%d), got %q", cell.Row, cell.Col, cell.Char)
		}
	}
}

func TestSnapshotWideCharOmitsSpacer(t *testing.T) {
	term := newTestTerm(2, 10)
	if _, err := term.WriteString("日x"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	content := snapshotContent(term, testFG, testBG)

	wide := findCell(content, 0, 0)
	if wide == nil || wide.Char != '日' {
		t.Fatalf("expected wide char at (0,0), got %+v", wide)
	}
	if wide.Flags&FlagWide == 0 {
		t.Fatalf("expected FlagWide on wide char, got flags %b", wide.Flags)
	}

	// The spacer at col 1 is omitted; 'x' lands at col 2.
	if spacer := findCell(content, 0, 1); spacer != nil {
		t.Fatalf("expected no cell at spacer position, got %+v", spacer)
	}
	x := findCell(content, 0, 2)
	if x == nil || x.Char != 'x' {
		t.Fatalf("expected 'x' at (0,2), got %+v", x)
	}
}

func TestSnapshotStyledCells(t *testing.T) {
	term := newTestTerm(2, 20)
	if _, err := term.WriteString("\x1b[1mb\x1b[0m\x1b[38;5;196mr"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	content := snapshotContent(term, testFG, testBG)

	b := findCell(content, 0, 0)
	if b == nil || b.Flags&FlagBold == 0 {
		t.Fatalf("expected bold cell at (0,0), got %+v", b)
	}

	r := findCell(content, 0, 1)
	if r == nil {
		t.Fatal("missing cell at (0,1)")
	}
	if !colorsAlmostEqual(r.FG, ansiPalette[196]) {
		t.Fatalf("expected palette red fg, got %+v", r.FG)
	}
}

func TestExtractTextTrimsTrailingWhitespace(t *testing.T) {
	term := newTestTerm(4, 20)
	if _, err := term.WriteString("hello\r\nworld"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := extractText(term, 0, 0, 1, 19)
	if got != "hello\nworld" {
		t.Fatalf("unexpected extraction: %q", got)
	}
}

func TestExtractTextRegion(t *testing.T) {
	term := newTestTerm(2, 20)
	if _, err := term.WriteString("hello"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := extractText(term, 0, 1, 0, 3)
	if got != "ell" {
		t.Fatalf("unexpected region extraction: %q", got)
	}
}

func TestExtractTextPreservesInteriorSpacing(t *testing.T) {
	term := newTestTerm(2, 20)
	if _, err := term.WriteString("a  b   "); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := extractText(term, 0, 0, 0, 19)
	if got != "a  b" {
		t.Fatalf("unexpected extraction: %q", got)
	}
}

func TestExtractTextWideChars(t *testing.T) {
	term := newTestTerm(2, 20)
	if _, err := term.WriteString("日本"); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got := extractText(term, 0, 0, 0, 19)
	if got != "日本" {
		t.Fatalf("unexpected wide char extraction: %q", got)
	}
}
