// Package render holds the GPU objects shared by offscreen passes: a binding
// state tracker, the fullscreen quad, render targets, the ping-pong pair and
// shader programs.
package render

import (
	"github.com/tinyrange/crtglow/internal/gl"
)

// MaxUnits is the number of texture units tracked by a Context.
const MaxUnits = 4

// State is the subset of GL binding state owned by the renderer.
type State struct {
	Program     uint32
	Framebuffer uint32
	VertexArray uint32
	ArrayBuffer uint32
	ActiveUnit  int
	Textures    [MaxUnits]uint32
	Viewport    [4]int32
	ClearColor  [4]float32
}

// Context forwards binding calls to GL while shadowing the resulting state,
// so scopes can restore previous bindings without querying the driver.
type Context struct {
	gl    gl.OpenGL
	state State
}

func NewContext(api gl.OpenGL) *Context {
	c := &Context{gl: api}
	c.Sync()
	return c
}

func (c *Context) GL() gl.OpenGL { return c.gl }

// State returns the shadowed binding state.
func (c *Context) State() State { return c.state }

// Sync refreshes the shadow from the driver. Call it after code outside the
// renderer may have changed bindings directly.
func (c *Context) Sync() {
	var v int32
	c.gl.GetIntegerv(gl.CurrentProgram, &v)
	c.state.Program = uint32(v)
	c.gl.GetIntegerv(gl.FramebufferBinding, &v)
	c.state.Framebuffer = uint32(v)
	c.gl.GetIntegerv(gl.VertexArrayBinding, &v)
	c.state.VertexArray = uint32(v)
	c.gl.GetIntegerv(gl.ArrayBufferBinding, &v)
	c.state.ArrayBuffer = uint32(v)

	c.gl.GetIntegerv(gl.ActiveTextureUnit, &v)
	active := int(v) - gl.Texture0
	for unit := 0; unit < MaxUnits; unit++ {
		c.gl.ActiveTexture(uint32(gl.Texture0 + unit))
		c.gl.GetIntegerv(gl.TextureBinding2D, &v)
		c.state.Textures[unit] = uint32(v)
	}
	if active < 0 || active >= MaxUnits {
		active = 0
	}
	c.gl.ActiveTexture(uint32(gl.Texture0 + active))
	c.state.ActiveUnit = active

	c.gl.GetIntegerv(gl.ViewportParam, &c.state.Viewport[0])
	c.gl.GetFloatv(gl.ColorClearValue, &c.state.ClearColor[0])
}

func (c *Context) UseProgram(program uint32) {
	c.gl.UseProgram(program)
	c.state.Program = program
}

func (c *Context) BindFramebuffer(framebuffer uint32) {
	c.gl.BindFramebuffer(gl.Framebuffer, framebuffer)
	c.state.Framebuffer = framebuffer
}

func (c *Context) BindVertexArray(array uint32) {
	c.gl.BindVertexArray(array)
	c.state.VertexArray = array
}

func (c *Context) BindArrayBuffer(buffer uint32) {
	c.gl.BindBuffer(gl.ArrayBuffer, buffer)
	c.state.ArrayBuffer = buffer
}

func (c *Context) activate(unit int) {
	if c.state.ActiveUnit != unit {
		c.gl.ActiveTexture(uint32(gl.Texture0 + unit))
		c.state.ActiveUnit = unit
	}
}

// BindTexture binds a 2D texture to the given unit, leaving that unit active.
func (c *Context) BindTexture(unit int, texture uint32) {
	c.activate(unit)
	c.gl.BindTexture(gl.Texture2D, texture)
	c.state.Textures[unit] = texture
}

func (c *Context) Viewport(width, height int) {
	c.ViewportRect(0, 0, width, height)
}

// ViewportRect sets a viewport with its lower-left corner at (x, y).
func (c *Context) ViewportRect(x, y, width, height int) {
	c.gl.Viewport(int32(x), int32(y), int32(width), int32(height))
	c.state.Viewport = [4]int32{int32(x), int32(y), int32(width), int32(height)}
}

// Clear clears the colour buffer of the bound framebuffer to color. The clear
// colour is put back afterwards, so callers never inherit it.
func (c *Context) Clear(color [4]float32) {
	c.gl.ClearColor(color[0], color[1], color[2], color[3])
	c.gl.Clear(gl.ColorBufferBit)
	p := c.state.ClearColor
	c.gl.ClearColor(p[0], p[1], p[2], p[3])
}

// forget drops references to a deleted object; GL unbinds deleted names
// implicitly.
func (c *Context) forget(texture, framebuffer uint32) {
	for unit, id := range c.state.Textures {
		if texture != 0 && id == texture {
			c.state.Textures[unit] = 0
		}
	}
	if framebuffer != 0 && c.state.Framebuffer == framebuffer {
		c.state.Framebuffer = 0
	}
}

// DeleteTexture deletes a texture the caller owns and drops it from the
// shadow.
func (c *Context) DeleteTexture(texture uint32) {
	c.forget(texture, 0)
	c.gl.DeleteTextures(1, &texture)
}

// apply issues only the calls needed to move from the shadow to s.
func (c *Context) apply(s State) {
	if c.state.Program != s.Program {
		c.UseProgram(s.Program)
	}
	if c.state.Framebuffer != s.Framebuffer {
		c.BindFramebuffer(s.Framebuffer)
	}
	if c.state.VertexArray != s.VertexArray {
		c.BindVertexArray(s.VertexArray)
	}
	if c.state.ArrayBuffer != s.ArrayBuffer {
		c.BindArrayBuffer(s.ArrayBuffer)
	}
	for unit := MaxUnits - 1; unit >= 0; unit-- {
		if c.state.Textures[unit] != s.Textures[unit] {
			c.BindTexture(unit, s.Textures[unit])
		}
	}
	c.activate(s.ActiveUnit)
	if c.state.Viewport != s.Viewport {
		v := s.Viewport
		c.gl.Viewport(v[0], v[1], v[2], v[3])
		c.state.Viewport = v
	}
}

// Reset moves to the neutral state: nothing bound, unit 0 active and the
// viewport covering width x height. The clear colour is left alone.
func (c *Context) Reset(width, height int) {
	c.apply(State{
		Viewport:   [4]int32{0, 0, int32(width), int32(height)},
		ClearColor: c.state.ClearColor,
	})
}

// Scope captures the current bindings; Close restores them.
type Scope struct {
	ctx   *Context
	saved State
}

func (c *Context) Scope() *Scope {
	return &Scope{ctx: c, saved: c.state}
}

func (s *Scope) Close() {
	s.ctx.apply(s.saved)
}
