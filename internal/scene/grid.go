package scene

import (
	"image/color"
)

// Attribute bits as reported by the emulator's cell style.
const (
	AttrBold    uint8 = 1 << 0
	AttrReverse uint8 = 1 << 5
)

// Cell is one resolved terminal cell. Colours are concrete so cells compare
// by value.
type Cell struct {
	Content string
	Width   int
	Fg      color.RGBA
	Bg      color.RGBA
	Attrs   uint8
	Cursor  bool
}

// Grid caches the last rasterized cell state and tracks which rows changed.
type Grid struct {
	cells     []Cell
	dirtyRows []bool
	cols      int
	rows      int

	cursorX, cursorY int
}

func NewGrid(cols, rows int) *Grid {
	cols, rows = max(cols, 1), max(rows, 1)
	g := &Grid{
		cells:     make([]Cell, cols*rows),
		dirtyRows: make([]bool, rows),
		cols:      cols,
		rows:      rows,
		cursorX:   -1,
		cursorY:   -1,
	}
	g.MarkAllDirty()
	return g
}

func (g *Grid) Size() (cols, rows int) {
	return g.cols, g.rows
}

// Resize changes the dimensions, keeping the overlapping cells. Every row is
// dirty afterwards.
func (g *Grid) Resize(cols, rows int) {
	cols, rows = max(cols, 1), max(rows, 1)
	if cols == g.cols && rows == g.rows {
		return
	}

	cells := make([]Cell, cols*rows)
	for y := 0; y < min(rows, g.rows); y++ {
		copy(cells[y*cols:y*cols+min(cols, g.cols)], g.cells[y*g.cols:])
	}
	g.cells = cells
	g.dirtyRows = make([]bool, rows)
	g.cols, g.rows = cols, rows
	if g.cursorX >= cols || g.cursorY >= rows {
		g.cursorX, g.cursorY = -1, -1
	}
	g.MarkAllDirty()
}

// CellAt returns the cell at (x, y), or nil if out of bounds.
func (g *Grid) CellAt(x, y int) *Cell {
	if x < 0 || x >= g.cols || y < 0 || y >= g.rows {
		return nil
	}
	return &g.cells[y*g.cols+x]
}

// SetCell stores c and reports whether it differed from the cached cell.
func (g *Grid) SetCell(x, y int, c Cell) bool {
	cur := g.CellAt(x, y)
	if cur == nil {
		return false
	}
	c.Cursor = cur.Cursor
	if *cur == c {
		return false
	}
	*cur = c
	g.dirtyRows[y] = true
	return true
}

// UpdateCursor moves the cursor flag, dirtying the rows it leaves and enters.
func (g *Grid) UpdateCursor(x, y int) {
	if x == g.cursorX && y == g.cursorY {
		return
	}
	if old := g.CellAt(g.cursorX, g.cursorY); old != nil {
		old.Cursor = false
		g.dirtyRows[g.cursorY] = true
	}
	g.cursorX, g.cursorY = -1, -1
	if c := g.CellAt(x, y); c != nil {
		c.Cursor = true
		g.dirtyRows[y] = true
		g.cursorX, g.cursorY = x, y
	}
}

func (g *Grid) CursorPosition() (x, y int) {
	return g.cursorX, g.cursorY
}

func (g *Grid) RowDirty(y int) bool {
	return y >= 0 && y < g.rows && g.dirtyRows[y]
}

func (g *Grid) MarkAllDirty() {
	for i := range g.dirtyRows {
		g.dirtyRows[i] = true
	}
}

func (g *Grid) ClearDirty() {
	clear(g.dirtyRows)
}

// DirtySpan returns the first and one-past-last dirty rows, or ok=false when
// nothing changed.
func (g *Grid) DirtySpan() (first, end int, ok bool) {
	first = -1
	for y, d := range g.dirtyRows {
		if !d {
			continue
		}
		if first < 0 {
			first = y
		}
		end = y + 1
	}
	return first, end, first >= 0
}

// DirtyRowCount is the number of rows needing re-rasterization.
func (g *Grid) DirtyRowCount() int {
	n := 0
	for _, d := range g.dirtyRows {
		if d {
			n++
		}
	}
	return n
}
