package scene

import (
	"image"
	"unsafe"

	"github.com/tinyrange/crtglow/internal/gl"
	"github.com/tinyrange/crtglow/internal/render"
	"github.com/tinyrange/crtglow/internal/timeslice"
)

var (
	tsSync   = timeslice.RegisterKind("scene::sync", 0)
	tsRaster = timeslice.RegisterKind("scene::raster", 0)
	tsUpload = timeslice.RegisterKind("scene::upload", timeslice.FlagUpload)
	tsBlit   = timeslice.RegisterKind("scene::blit", timeslice.FlagPass)
)

const blitVertex = `layout(location = 0) in vec2 aPos;
layout(location = 1) in vec2 aTexCoord;
out vec2 TexCoord;
void main() {
    gl_Position = vec4(aPos, 0.0, 1.0);
    TexCoord = aTexCoord;
}
`

// The image is stored top row first, so v is flipped.
const blitFragment = `in vec2 TexCoord;
out vec4 FragColor;
uniform sampler2D screenTexture;
void main() {
    FragColor = texture(screenTexture, vec2(TexCoord.x, 1.0 - TexCoord.y));
}
`

type ProducerOptions struct {
	// FontSize in pixels per em; 0 selects DefaultFontSize.
	FontSize float64
	// Padding around the terminal in pixels.
	Padding int
	// FitSurface resizes the terminal to fill the surface on every frame.
	FitSurface  bool
	GLSLVersion string
}

// ProducerStats counts texture traffic.
type ProducerStats struct {
	Frames       int
	Allocations  int
	Uploads      int
	UploadedRows int
}

// Producer renders a Terminal into the framebuffer bound by the caller.
type Producer struct {
	term   *Terminal
	raster *Rasterizer
	opts   ProducerOptions

	ctx  *render.Context
	prog *render.Program
	uTex render.Uniform
	quad *render.Quad

	tex        uint32
	texW, texH int

	stats ProducerStats
}

func NewProducer(ctx *render.Context, term *Terminal, opts ProducerOptions) (*Producer, error) {
	raster, err := NewRasterizer(opts.FontSize)
	if err != nil {
		return nil, err
	}
	prog, err := render.CompileProgram(ctx, "scene blit", opts.GLSLVersion, blitVertex, blitFragment)
	if err != nil {
		raster.Close()
		return nil, err
	}

	p := &Producer{
		term:   term,
		raster: raster,
		opts:   opts,
		ctx:    ctx,
		prog:   prog,
		uTex:   prog.Uniform("screenTexture"),
		quad:   render.NewQuad(ctx),
	}
	ctx.GL().GenTextures(1, &p.tex)
	return p, nil
}

func (p *Producer) Terminal() *Terminal     { return p.term }
func (p *Producer) Rasterizer() *Rasterizer { return p.raster }
func (p *Producer) Texture() uint32         { return p.tex }
func (p *Producer) Stats() ProducerStats    { return p.stats }

// GridFor is the number of whole cells that fit a surface after padding.
func (p *Producer) GridFor(width, height int) (cols, rows int) {
	cw, ch := p.raster.CellSize()
	pad := 2 * p.opts.Padding
	return max((width-pad)/cw, 1), max((height-pad)/ch, 1)
}

// RenderScene implements the effect pipeline's scene producer.
func (p *Producer) RenderScene(rc *render.Context, width, height int) error {
	rec := timeslice.NewState()
	if p.opts.FitSurface {
		p.term.Resize(p.GridFor(width, height))
	}
	p.term.Sync()
	rec.Record(tsSync)

	dirty := p.raster.Render(p.term.Grid())
	rec.Record(tsRaster)

	scope := rc.Scope()
	defer scope.Close()

	p.upload(rc, dirty)
	rec.Record(tsUpload)

	img := p.raster.Image()
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	rc.BindTexture(0, p.tex)
	p.prog.Use()
	p.prog.SetInt(p.uTex, 0)
	p.quad.Bind()
	rc.ViewportRect(p.opts.Padding, height-p.opts.Padding-h, w, h)
	p.quad.Draw()
	rec.Record(tsBlit)

	p.stats.Frames++
	return nil
}

// upload copies the changed rows of the rasterized image into the texture,
// reallocating it when the image size changed.
func (p *Producer) upload(rc *render.Context, dirty image.Rectangle) {
	img := p.raster.Image()
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	g := rc.GL()

	rc.BindTexture(0, p.tex)
	if w != p.texW || h != p.texH {
		g.TexImage2D(gl.Texture2D, 0, gl.RGBA8, int32(w), int32(h), 0, gl.RGBA, gl.UnsignedByte, unsafe.Pointer(&img.Pix[0]))
		g.TexParameteri(gl.Texture2D, gl.TextureMinFilter, gl.Nearest)
		g.TexParameteri(gl.Texture2D, gl.TextureMagFilter, gl.Nearest)
		g.TexParameteri(gl.Texture2D, gl.TextureWrapS, gl.ClampToEdge)
		g.TexParameteri(gl.Texture2D, gl.TextureWrapT, gl.ClampToEdge)
		p.texW, p.texH = w, h
		p.stats.Allocations++
		p.stats.UploadedRows += h
		return
	}
	if dirty.Empty() {
		return
	}
	rows := dirty.Dy()
	g.TexSubImage2D(gl.Texture2D, 0, 0, int32(dirty.Min.Y), int32(w), int32(rows), gl.RGBA, gl.UnsignedByte,
		unsafe.Pointer(&img.Pix[dirty.Min.Y*img.Stride]))
	p.stats.Uploads++
	p.stats.UploadedRows += rows
}

func (p *Producer) Destroy() {
	if p.tex != 0 {
		p.ctx.DeleteTexture(p.tex)
		p.tex = 0
	}
	if p.quad != nil {
		p.quad.Destroy()
		p.quad = nil
	}
	if p.prog != nil {
		p.prog.Destroy()
		p.prog = nil
	}
	if p.raster != nil {
		p.raster.Close()
		p.raster = nil
	}
}
