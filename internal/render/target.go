package render

import (
	"fmt"

	"github.com/tinyrange/crtglow/internal/gl"
)

// Filter is a texture sampling filter.
type Filter int32

const (
	FilterNearest Filter = gl.Nearest
	FilterLinear  Filter = gl.Linear
)

func (f Filter) String() string {
	switch f {
	case FilterNearest:
		return "nearest"
	case FilterLinear:
		return "linear"
	}
	return fmt.Sprintf("Filter(0x%X)", int32(f))
}

// ParseFilter accepts "nearest" or "linear".
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "nearest":
		return FilterNearest, nil
	case "linear":
		return FilterLinear, nil
	}
	return 0, fmt.Errorf("unknown texture filter %q", s)
}

// Axis is the sampling direction of a separable blur pass.
type Axis int

const (
	AxisNone Axis = iota
	AxisHorizontal
	AxisVertical
)

func (a Axis) String() string {
	switch a {
	case AxisHorizontal:
		return "horizontal"
	case AxisVertical:
		return "vertical"
	}
	return "none"
}

// WriteTag identifies the pass that last drew into a target.
type WriteTag struct {
	Frame uint64
	Pass  int
	Axis  Axis
}

// Target is an offscreen framebuffer with a single RGBA colour texture.
type Target struct {
	ctx    *Context
	name   string
	fbo    uint32
	tex    uint32
	width  int
	height int
	filter Filter

	complete   bool
	generation int
	lastWrite  WriteTag
}

// NewTarget creates a render target and allocates its storage.
func NewTarget(ctx *Context, name string, width, height int, filter Filter) (*Target, error) {
	t := &Target{ctx: ctx, name: name, filter: filter}
	g := ctx.GL()
	g.GenTextures(1, &t.tex)
	g.GenFramebuffers(1, &t.fbo)
	if err := t.Allocate(width, height); err != nil {
		t.Destroy()
		return nil, err
	}
	return t, nil
}

// Allocate replaces the texture storage with width x height RGBA, reattaches it
// to the framebuffer and checks completeness. On failure the target is marked
// incomplete and must not be drawn to.
func (t *Target) Allocate(width, height int) error {
	if width <= 0 || height <= 0 {
		return &ResourceError{Target: t.name, Width: width, Height: height, Err: ErrInvalidTargetSize}
	}

	g := t.ctx.GL()
	scope := t.ctx.Scope()
	defer scope.Close()

	t.ctx.BindTexture(0, t.tex)
	g.TexImage2D(gl.Texture2D, 0, gl.RGBA8, int32(width), int32(height), 0, gl.RGBA, gl.UnsignedByte, nil)
	g.TexParameteri(gl.Texture2D, gl.TextureMinFilter, int32(t.filter))
	g.TexParameteri(gl.Texture2D, gl.TextureMagFilter, int32(t.filter))
	g.TexParameteri(gl.Texture2D, gl.TextureWrapS, gl.ClampToEdge)
	g.TexParameteri(gl.Texture2D, gl.TextureWrapT, gl.ClampToEdge)

	t.ctx.BindFramebuffer(t.fbo)
	g.FramebufferTexture2D(gl.Framebuffer, gl.ColorAttachment0, gl.Texture2D, t.tex, 0)
	drawBuffers := [1]uint32{gl.ColorAttachment0}
	g.DrawBuffers(1, &drawBuffers[0])

	t.width, t.height = width, height
	t.generation++
	t.lastWrite = WriteTag{}

	status := g.CheckFramebufferStatus(gl.Framebuffer)
	t.complete = status == gl.FramebufferComplete
	if !t.complete {
		return &ResourceError{Target: t.name, Width: width, Height: height, Status: status, Err: ErrFramebufferIncomplete}
	}
	return nil
}

// BindDraw directs subsequent draws into the target and sets the viewport to
// its size.
func (t *Target) BindDraw() {
	t.ctx.BindFramebuffer(t.fbo)
	t.ctx.Viewport(t.width, t.height)
}

// BindRead binds the colour texture to a texture unit for sampling.
func (t *Target) BindRead(unit int) {
	t.ctx.BindTexture(unit, t.tex)
}

func (t *Target) Name() string              { return t.name }
func (t *Target) Size() (width, height int) { return t.width, t.height }
func (t *Target) Filter() Filter            { return t.filter }
func (t *Target) Texture() uint32           { return t.tex }
func (t *Target) Framebuffer() uint32       { return t.fbo }

// Complete reports whether the last allocation produced a complete framebuffer.
func (t *Target) Complete() bool { return t.complete }

// Generation counts successful or failed allocations of the target.
func (t *Target) Generation() int { return t.generation }

func (t *Target) MarkWritten(tag WriteTag) { t.lastWrite = tag }

// LastWrite returns the tag of the last pass that drew into the target since
// its last allocation.
func (t *Target) LastWrite() WriteTag { return t.lastWrite }

func (t *Target) Destroy() {
	g := t.ctx.GL()
	if t.fbo != 0 {
		t.ctx.forget(0, t.fbo)
		g.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.tex != 0 {
		t.ctx.forget(t.tex, 0)
		g.DeleteTextures(1, &t.tex)
		t.tex = 0
	}
	t.complete = false
}
