// Package scene produces the frame the effect pipeline post-processes: a VT
// emulator's screen rasterized on the CPU and drawn into the bound target.
package scene

import (
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/vt"
)

var (
	defaultForeground = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	defaultBackground = color.RGBA{R: 0x10, G: 0x10, B: 0x10, A: 0xff}
)

// Terminal is a VT emulator with a cached cell grid. There is no input side:
// replies the emulator generates for host queries are discarded.
type Terminal struct {
	emu  *vt.SafeEmulator
	grid *Grid

	replyBytes atomic.Int64
	drained    chan struct{}
	closeOnce  sync.Once
}

func NewTerminal(cols, rows int) *Terminal {
	cols, rows = max(cols, 1), max(rows, 1)
	emu := vt.NewSafeEmulator(cols, rows)
	swallowHostQueries(emu)

	t := &Terminal{
		emu:     emu,
		grid:    NewGrid(cols, rows),
		drained: make(chan struct{}),
	}
	go t.drainReplies()
	return t
}

// swallowHostQueries stops the emulator answering status and attribute
// queries. A replayed recording has nobody to read the answers, and the
// emulator blocks writing them.
func swallowHostQueries(emu *vt.SafeEmulator) {
	// DSR: CSI 5 n (status), CSI 6 n (cursor position)
	emu.RegisterCsiHandler('n', func(params ansi.Params) bool {
		n, _, ok := params.Param(0, 1)
		return ok && (n == 5 || n == 6)
	})
	// DECXCPR: CSI ? 6 n
	emu.RegisterCsiHandler(ansi.Command('?', 0, 'n'), func(params ansi.Params) bool {
		n, _, ok := params.Param(0, 1)
		return ok && n == 6
	})
	// Primary and secondary DA: CSI c, CSI > c
	emu.RegisterCsiHandler('c', func(params ansi.Params) bool {
		n, _, _ := params.Param(0, 0)
		return n == 0
	})
	emu.RegisterCsiHandler(ansi.Command('>', 0, 'c'), func(params ansi.Params) bool {
		n, _, _ := params.Param(0, 0)
		return n == 0
	})
}

// drainReplies keeps the emulator's reply pipe empty for queries that are not
// swallowed.
func (t *Terminal) drainReplies() {
	defer close(t.drained)
	buf := make([]byte, 1024)
	for {
		n, err := t.emu.Read(buf)
		t.replyBytes.Add(int64(n))
		if err != nil {
			return
		}
	}
}

// Write feeds program output to the emulator.
func (t *Terminal) Write(p []byte) (int, error) {
	return t.emu.Write(p)
}

// Resize changes the emulator and grid size. It reports whether anything
// changed.
func (t *Terminal) Resize(cols, rows int) bool {
	cols, rows = max(cols, 1), max(rows, 1)
	if cols == t.emu.Width() && rows == t.emu.Height() {
		return false
	}
	t.emu.Resize(cols, rows)
	t.grid.Resize(cols, rows)
	return true
}

func (t *Terminal) Size() (cols, rows int) {
	return t.emu.Width(), t.emu.Height()
}

func (t *Terminal) Grid() *Grid { return t.grid }

// ReplyBytes counts reply bytes the emulator produced and that were dropped.
func (t *Terminal) ReplyBytes() int64 { return t.replyBytes.Load() }

// Sync copies the emulator screen into the grid and returns the number of
// dirty rows.
func (t *Terminal) Sync() int {
	fgDefault := resolve(t.emu.ForegroundColor(), defaultForeground)
	bgDefault := resolve(t.emu.BackgroundColor(), defaultBackground)

	cols, rows := t.grid.Size()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; {
			c := Cell{Content: " ", Width: 1, Fg: fgDefault, Bg: bgDefault}
			if cell := t.emu.CellAt(x, y); cell != nil {
				if cell.Content != "" {
					c.Content = cell.Content
				}
				c.Width = max(cell.Width, 1)
				c.Fg = resolve(cell.Style.Fg, fgDefault)
				c.Bg = resolve(cell.Style.Bg, bgDefault)
				c.Attrs = uint8(cell.Style.Attrs)
			}
			if c.Attrs&AttrReverse != 0 {
				c.Fg, c.Bg = c.Bg, c.Fg
			}
			t.grid.SetCell(x, y, c)
			// Cells covered by a wide glyph belong to it.
			for i := 1; i < c.Width && x+i < cols; i++ {
				t.grid.SetCell(x+i, y, Cell{Fg: c.Fg, Bg: c.Bg, Attrs: c.Attrs})
			}
			x += c.Width
		}
	}

	cur := t.emu.CursorPosition()
	t.grid.UpdateCursor(cur.X, cur.Y)
	return t.grid.DirtyRowCount()
}

func resolve(c color.Color, fallback color.RGBA) color.RGBA {
	if c == nil {
		return fallback
	}
	return color.RGBAModel.Convert(c).(color.RGBA)
}

// Close stops the emulator and waits for the reply drain to finish.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.emu.Close()
		<-t.drained
	})
	return err
}
