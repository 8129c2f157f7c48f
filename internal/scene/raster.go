package scene

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const DefaultFontSize = 16

// Rasterizer draws grid cells into an RGBA image with a fixed-pitch font.
type Rasterizer struct {
	regular font.Face
	bold    font.Face

	cellW, cellH int
	ascent       int

	img *image.RGBA
}

func newFace(ttf []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(ttf)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}

// NewRasterizer loads Go Mono at size pixels per em.
func NewRasterizer(size float64) (*Rasterizer, error) {
	if size <= 0 {
		size = DefaultFontSize
	}
	regular, err := newFace(gomono.TTF, size)
	if err != nil {
		return nil, err
	}
	bold, err := newFace(gomonobold.TTF, size)
	if err != nil {
		regular.Close()
		return nil, err
	}

	m := regular.Metrics()
	adv, ok := regular.GlyphAdvance('M')
	if !ok {
		adv = fixed.I(int(size) / 2)
	}
	r := &Rasterizer{
		regular: regular,
		bold:    bold,
		cellW:   max(adv.Ceil(), 1),
		cellH:   max(m.Height.Ceil(), 1),
		ascent:  m.Ascent.Ceil(),
	}
	return r, nil
}

// CellSize is the pixel size of one cell.
func (r *Rasterizer) CellSize() (width, height int) { return r.cellW, r.cellH }

// Image is the rasterized screen. Row 0 is the top of the terminal.
func (r *Rasterizer) Image() *image.RGBA { return r.img }

// Render redraws the dirty rows of g. It returns the pixel rows that changed;
// the rectangle is empty when nothing did. A size change redraws everything.
func (r *Rasterizer) Render(g *Grid) image.Rectangle {
	cols, rows := g.Size()
	bounds := image.Rect(0, 0, cols*r.cellW, rows*r.cellH)
	if r.img == nil || r.img.Bounds() != bounds {
		r.img = image.NewRGBA(bounds)
		g.MarkAllDirty()
	}

	first, end, ok := g.DirtySpan()
	if !ok {
		return image.Rectangle{}
	}
	for y := first; y < end; y++ {
		if !g.RowDirty(y) {
			continue
		}
		for x := 0; x < cols; {
			c := g.CellAt(x, y)
			r.drawCell(g, x, y, c)
			x += max(c.Width, 1)
		}
	}
	g.ClearDirty()
	return image.Rect(0, first*r.cellH, bounds.Dx(), end*r.cellH)
}

// drawCell paints c and the continuation cells of a wide glyph.
func (r *Rasterizer) drawCell(g *Grid, x, y int, c *Cell) {
	span := max(c.Width, 1)
	cursor := c.Cursor
	for i := 1; i < span; i++ {
		if n := g.CellAt(x+i, y); n != nil && n.Width == 0 && n.Cursor {
			cursor = true
		}
	}
	fg, bg := c.Fg, c.Bg
	if cursor {
		fg, bg = bg, fg
	}

	rect := image.Rect(x*r.cellW, y*r.cellH, (x+span)*r.cellW, (y+1)*r.cellH).Intersect(r.img.Bounds())
	draw.Draw(r.img, rect, image.NewUniform(bg), image.Point{}, draw.Src)

	if c.Content == "" || c.Content == " " {
		return
	}
	face := r.regular
	if c.Attrs&AttrBold != 0 {
		face = r.bold
	}
	d := &font.Drawer{
		Dst:  r.img.SubImage(rect).(*image.RGBA),
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(rect.Min.X, rect.Min.Y+r.ascent),
	}
	d.DrawString(c.Content)
}

// Pixel returns the colour at (x, y) of the rasterized image.
func (r *Rasterizer) Pixel(x, y int) color.RGBA {
	if r.img == nil {
		return color.RGBA{}
	}
	return r.img.RGBAAt(x, y)
}

func (r *Rasterizer) Close() error {
	r.regular.Close()
	return r.bold.Close()
}
