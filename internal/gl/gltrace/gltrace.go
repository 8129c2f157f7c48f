// Package gltrace is an in-memory gl.OpenGL that models object lifetimes and
// binding state and records every clear and draw call. Texture contents are
// represented by hashes so passes can be compared for determinism without a
// GPU.
package gltrace

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"sort"
	"strings"
	"unsafe"

	"github.com/tinyrange/crtglow/internal/gl"
)

const maxUnits = 16

// Texture is the recorded state of a texture object.
type Texture struct {
	ID             uint32
	Width, Height  int32
	InternalFormat int32
	// Generation is a recorder-wide serial number assigned on every
	// TexImage2D, so later allocations always compare greater.
	Generation int
	Params     map[uint32]int32
	Content    uint64
	// LastDraw is the index into Recorder.Draws of the draw that last wrote
	// this texture, or -1.
	LastDraw int
	Deleted  bool
}

// Framebuffer is the recorded state of a framebuffer object.
type Framebuffer struct {
	ID          uint32
	Color       uint32
	DrawBuffers []uint32
	Deleted     bool
}

type Shader struct {
	ID       uint32
	Type     uint32
	Source   string
	Compiled bool
	Log      string
	Deleted  bool
}

type Program struct {
	ID       uint32
	Shaders  []uint32
	Linked   bool
	Log      string
	Deleted  bool
	Uniforms map[string]Uniform
	Values   map[string]any
}

// Uniform is an active uniform declared by a linked program.
type Uniform struct {
	Name     string
	Type     string
	Location int32
}

type object struct{ deleted bool }

// BoundTexture is a snapshot of a texture bound to a unit at draw time.
type BoundTexture struct {
	ID            uint32
	Width, Height int32
	Generation    int
	Content       uint64
}

// DrawCall is a snapshot of the pipeline state at a DrawArrays call.
type DrawCall struct {
	Index       int
	Program     uint32
	Framebuffer uint32
	// Target is the colour texture written by the draw, 0 for the default
	// framebuffer.
	Target      uint32
	Viewport    [4]int32
	VertexArray uint32
	ArrayBuffer uint32
	First       int32
	Count       int32
	// Textures holds every non-empty unit, keyed by unit index.
	Textures map[int]BoundTexture
	Uniforms map[string]any
	// Sampled lists the units read through sampler uniforms.
	Sampled []int
	// Feedback is set when a sampled texture is also the draw target.
	Feedback bool
	Output   uint64
}

type ClearCall struct {
	Framebuffer uint32
	Target      uint32
	Color       [4]float32
	Scissor     *[4]int32
}

// Counts is the number of live objects per kind.
type Counts struct {
	Textures, Framebuffers, Buffers, VertexArrays, Shaders, Programs int
}

// Recorder implements gl.OpenGL.
type Recorder struct {
	// FailCompile forces compilation of matching shader sources to fail.
	FailCompile func(source string) bool
	// FramebufferStatus overrides the completeness check for non-default
	// framebuffers.
	FramebufferStatus func(fb *Framebuffer) uint32
	// MaxTextureSize bounds texture allocations; 0 means 16384.
	MaxTextureSize int32

	Draws  []DrawCall
	Clears []ClearCall
	// IgnoredUniforms counts uniform updates sent to location -1.
	IgnoredUniforms int

	nextID       uint32
	allocations  int
	textures     map[uint32]*Texture
	framebuffers map[uint32]*Framebuffer
	shaders      map[uint32]*Shader
	programs     map[uint32]*Program
	buffers      map[uint32]*object
	vertexArrays map[uint32]*object

	program     uint32
	framebuffer uint32
	vertexArray uint32
	arrayBuffer uint32
	activeUnit  int
	units       [maxUnits]uint32
	viewport    [4]int32
	clearColor  [4]float32
	scissor     [4]int32
	enabled     map[uint32]bool

	defaultContent uint64
	errs           []uint32
}

var _ gl.OpenGL = (*Recorder)(nil)

// New returns a recorder whose default framebuffer is width x height.
func New(width, height int) *Recorder {
	return &Recorder{
		textures:     make(map[uint32]*Texture),
		framebuffers: make(map[uint32]*Framebuffer),
		shaders:      make(map[uint32]*Shader),
		programs:     make(map[uint32]*Program),
		buffers:      make(map[uint32]*object),
		vertexArrays: make(map[uint32]*object),
		enabled:      make(map[uint32]bool),
		viewport:     [4]int32{0, 0, int32(width), int32(height)},
	}
}

func (r *Recorder) id() uint32 {
	r.nextID++
	return r.nextID
}

func (r *Recorder) fail(code uint32) {
	r.errs = append(r.errs, code)
}

// Errors returns every GL error raised so far without consuming them.
func (r *Recorder) Errors() []uint32 {
	return append([]uint32(nil), r.errs...)
}

// ResetLog clears the recorded draws, clears and errors but keeps object state.
func (r *Recorder) ResetLog() {
	r.Draws = nil
	r.Clears = nil
	r.errs = nil
	r.IgnoredUniforms = 0
}

func (r *Recorder) Texture(id uint32) *Texture         { return r.textures[id] }
func (r *Recorder) Framebuffer(id uint32) *Framebuffer { return r.framebuffers[id] }
func (r *Recorder) Program(id uint32) *Program         { return r.programs[id] }
func (r *Recorder) Shader(id uint32) *Shader           { return r.shaders[id] }

// DefaultContent is the content hash of the default framebuffer.
func (r *Recorder) DefaultContent() uint64 { return r.defaultContent }

// Live counts objects that have been generated and not deleted.
func (r *Recorder) Live() Counts {
	var c Counts
	for _, t := range r.textures {
		if !t.Deleted {
			c.Textures++
		}
	}
	for _, f := range r.framebuffers {
		if !f.Deleted {
			c.Framebuffers++
		}
	}
	for _, b := range r.buffers {
		if !b.deleted {
			c.Buffers++
		}
	}
	for _, v := range r.vertexArrays {
		if !v.deleted {
			c.VertexArrays++
		}
	}
	for _, s := range r.shaders {
		if !s.Deleted {
			c.Shaders++
		}
	}
	for _, p := range r.programs {
		if !p.Deleted {
			c.Programs++
		}
	}
	return c
}

// Bindings is the currently bound state.
type Bindings struct {
	Program     uint32
	Framebuffer uint32
	VertexArray uint32
	ArrayBuffer uint32
	ActiveUnit  int
	Units       [maxUnits]uint32
	Viewport    [4]int32
	ClearColor  [4]float32
}

func (r *Recorder) Bindings() Bindings {
	return Bindings{
		Program:     r.program,
		Framebuffer: r.framebuffer,
		VertexArray: r.vertexArray,
		ArrayBuffer: r.arrayBuffer,
		ActiveUnit:  r.activeUnit,
		Units:       r.units,
		Viewport:    r.viewport,
		ClearColor:  r.clearColor,
	}
}

func (r *Recorder) GetString(name uint32) string {
	switch name {
	case gl.Vendor:
		return "crtglow"
	case gl.Renderer:
		return "gltrace"
	case gl.Version:
		return "3.3 gltrace"
	}
	r.fail(gl.InvalidEnum)
	return ""
}

func (r *Recorder) GetError() uint32 {
	if len(r.errs) == 0 {
		return gl.NoError
	}
	code := r.errs[0]
	r.errs = r.errs[1:]
	return code
}

func (r *Recorder) maxTextureSize() int32 {
	if r.MaxTextureSize > 0 {
		return r.MaxTextureSize
	}
	return 16384
}

func (r *Recorder) GetIntegerv(pname uint32, data *int32) {
	switch pname {
	case gl.CurrentProgram:
		*data = int32(r.program)
	case gl.FramebufferBinding:
		*data = int32(r.framebuffer)
	case gl.VertexArrayBinding:
		*data = int32(r.vertexArray)
	case gl.ArrayBufferBinding:
		*data = int32(r.arrayBuffer)
	case gl.TextureBinding2D:
		*data = int32(r.units[r.activeUnit])
	case gl.ActiveTextureUnit:
		*data = int32(gl.Texture0 + r.activeUnit)
	case gl.ViewportParam:
		copy(unsafe.Slice(data, 4), r.viewport[:])
	case gl.MaxTextureSize:
		*data = r.maxTextureSize()
	case gl.MaxTextureImageUnits:
		*data = maxUnits
	default:
		r.fail(gl.InvalidEnum)
	}
}

func (r *Recorder) GetFloatv(pname uint32, data *float32) {
	switch pname {
	case gl.ColorClearValue:
		copy(unsafe.Slice(data, 4), r.clearColor[:])
	default:
		r.fail(gl.InvalidEnum)
	}
}

func (r *Recorder) Finish() {}

func (r *Recorder) Enable(capability uint32)  { r.enabled[capability] = true }
func (r *Recorder) Disable(capability uint32) { r.enabled[capability] = false }
func (r *Recorder) BlendFunc(uint32, uint32)  {}

// Enabled reports whether a capability is enabled.
func (r *Recorder) Enabled(capability uint32) bool { return r.enabled[capability] }

func (r *Recorder) Viewport(x, y, width, height int32) {
	if width < 0 || height < 0 {
		r.fail(gl.InvalidValue)
		return
	}
	r.viewport = [4]int32{x, y, width, height}
}

func (r *Recorder) Scissor(x, y, width, height int32) {
	if width < 0 || height < 0 {
		r.fail(gl.InvalidValue)
		return
	}
	r.scissor = [4]int32{x, y, width, height}
}

func (r *Recorder) ClearColor(red, green, blue, alpha float32) {
	r.clearColor = [4]float32{red, green, blue, alpha}
}

func (r *Recorder) Clear(mask uint32) {
	if mask&gl.ColorBufferBit == 0 {
		return
	}
	call := ClearCall{Framebuffer: r.framebuffer, Target: r.drawTarget(), Color: r.clearColor}
	h := fnv.New64a()
	h.Write([]byte("clear"))
	for _, c := range r.clearColor {
		writeUint(h, uint64(math.Float32bits(c)))
	}
	if r.enabled[gl.ScissorTest] {
		sc := r.scissor
		call.Scissor = &sc
		for _, v := range sc {
			writeUint(h, uint64(uint32(v)))
		}
		// A scissored clear only overwrites part of the target.
		writeUint(h, r.targetContent())
	}
	r.Clears = append(r.Clears, call)
	r.setTargetContent(h.Sum64(), -1)
}

func (r *Recorder) GenVertexArrays(n int32, arrays *uint32) {
	ids := unsafe.Slice(arrays, n)
	for i := range ids {
		ids[i] = r.id()
		r.vertexArrays[ids[i]] = &object{}
	}
}

func (r *Recorder) DeleteVertexArrays(n int32, arrays *uint32) {
	for _, id := range unsafe.Slice(arrays, n) {
		if v, ok := r.vertexArrays[id]; ok {
			v.deleted = true
		}
		if r.vertexArray == id {
			r.vertexArray = 0
		}
	}
}

func (r *Recorder) BindVertexArray(array uint32) {
	if array != 0 {
		if v, ok := r.vertexArrays[array]; !ok || v.deleted {
			r.fail(gl.InvalidOperation)
			return
		}
	}
	r.vertexArray = array
}

func (r *Recorder) GenBuffers(n int32, buffers *uint32) {
	ids := unsafe.Slice(buffers, n)
	for i := range ids {
		ids[i] = r.id()
		r.buffers[ids[i]] = &object{}
	}
}

func (r *Recorder) DeleteBuffers(n int32, buffers *uint32) {
	for _, id := range unsafe.Slice(buffers, n) {
		if b, ok := r.buffers[id]; ok {
			b.deleted = true
		}
		if r.arrayBuffer == id {
			r.arrayBuffer = 0
		}
	}
}

func (r *Recorder) BindBuffer(target, buffer uint32) {
	if target != gl.ArrayBuffer {
		r.fail(gl.InvalidEnum)
		return
	}
	if buffer != 0 {
		if b, ok := r.buffers[buffer]; !ok || b.deleted {
			r.fail(gl.InvalidOperation)
			return
		}
	}
	r.arrayBuffer = buffer
}

func (r *Recorder) BufferData(target uint32, size int, data unsafe.Pointer, usage uint32) {
	if r.arrayBuffer == 0 {
		r.fail(gl.InvalidOperation)
	}
}

func (r *Recorder) VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset uintptr) {
	if r.vertexArray == 0 || r.arrayBuffer == 0 {
		r.fail(gl.InvalidOperation)
	}
}

func (r *Recorder) EnableVertexAttribArray(index uint32) {
	if r.vertexArray == 0 {
		r.fail(gl.InvalidOperation)
	}
}

func (r *Recorder) GenTextures(n int32, textures *uint32) {
	ids := unsafe.Slice(textures, n)
	for i := range ids {
		ids[i] = r.id()
		r.textures[ids[i]] = &Texture{ID: ids[i], Params: make(map[uint32]int32), LastDraw: -1}
	}
}

func (r *Recorder) DeleteTextures(n int32, textures *uint32) {
	for _, id := range unsafe.Slice(textures, n) {
		t, ok := r.textures[id]
		if !ok {
			continue
		}
		t.Deleted = true
		for i := range r.units {
			if r.units[i] == id {
				r.units[i] = 0
			}
		}
	}
}

func (r *Recorder) BindTexture(target, texture uint32) {
	if target != gl.Texture2D {
		r.fail(gl.InvalidEnum)
		return
	}
	if texture != 0 {
		if t, ok := r.textures[texture]; !ok || t.Deleted {
			r.fail(gl.InvalidOperation)
			return
		}
	}
	r.units[r.activeUnit] = texture
}

func (r *Recorder) ActiveTexture(unit uint32) {
	idx := int(unit) - gl.Texture0
	if idx < 0 || idx >= maxUnits {
		r.fail(gl.InvalidEnum)
		return
	}
	r.activeUnit = idx
}

func (r *Recorder) boundTexture() *Texture {
	id := r.units[r.activeUnit]
	if id == 0 {
		r.fail(gl.InvalidOperation)
		return nil
	}
	return r.textures[id]
}

func (r *Recorder) TexParameteri(target, pname uint32, param int32) {
	if t := r.boundTexture(); t != nil {
		t.Params[pname] = param
	}
}

func (r *Recorder) TexImage2D(target uint32, level, internalFormat, width, height, border int32, format, xtype uint32, pixels unsafe.Pointer) {
	t := r.boundTexture()
	if t == nil {
		return
	}
	if width < 0 || height < 0 || width > r.maxTextureSize() || height > r.maxTextureSize() {
		r.fail(gl.InvalidValue)
		return
	}
	r.allocations++
	t.Width, t.Height = width, height
	t.InternalFormat = internalFormat
	t.Generation = r.allocations
	t.LastDraw = -1
	t.Content = 0
	if pixels != nil {
		t.Content = hashPixels(0, pixels, int(width*height*4))
	}
}

func (r *Recorder) TexSubImage2D(target uint32, level, xoffset, yoffset, width, height int32, format, xtype uint32, pixels unsafe.Pointer) {
	t := r.boundTexture()
	if t == nil {
		return
	}
	if xoffset < 0 || yoffset < 0 || xoffset+width > t.Width || yoffset+height > t.Height {
		r.fail(gl.InvalidValue)
		return
	}
	if pixels != nil {
		t.Content = hashPixels(t.Content, pixels, int(width*height*4))
	}
}

// ReadPixels fills the destination with the low bytes of the bound target's
// content hash.
func (r *Recorder) ReadPixels(x, y, width, height int32, format, xtype uint32, pixels unsafe.Pointer) {
	if pixels == nil || width <= 0 || height <= 0 {
		return
	}
	var word [8]byte
	binary.LittleEndian.PutUint64(word[:], r.targetContent())
	dst := unsafe.Slice((*byte)(pixels), int(width*height*4))
	for i := 0; i < len(dst); i += 4 {
		copy(dst[i:i+4], word[:4])
	}
}

func (r *Recorder) GenFramebuffers(n int32, framebuffers *uint32) {
	ids := unsafe.Slice(framebuffers, n)
	for i := range ids {
		ids[i] = r.id()
		r.framebuffers[ids[i]] = &Framebuffer{ID: ids[i]}
	}
}

func (r *Recorder) DeleteFramebuffers(n int32, framebuffers *uint32) {
	for _, id := range unsafe.Slice(framebuffers, n) {
		if f, ok := r.framebuffers[id]; ok {
			f.Deleted = true
		}
		if r.framebuffer == id {
			r.framebuffer = 0
		}
	}
}

func (r *Recorder) BindFramebuffer(target, framebuffer uint32) {
	if target != gl.Framebuffer {
		r.fail(gl.InvalidEnum)
		return
	}
	if framebuffer != 0 {
		if f, ok := r.framebuffers[framebuffer]; !ok || f.Deleted {
			r.fail(gl.InvalidOperation)
			return
		}
	}
	r.framebuffer = framebuffer
}

func (r *Recorder) FramebufferTexture2D(target, attachment, textarget, texture uint32, level int32) {
	if r.framebuffer == 0 || attachment != gl.ColorAttachment0 {
		r.fail(gl.InvalidOperation)
		return
	}
	r.framebuffers[r.framebuffer].Color = texture
}

func (r *Recorder) CheckFramebufferStatus(target uint32) uint32 {
	if r.framebuffer == 0 {
		return gl.FramebufferComplete
	}
	fb := r.framebuffers[r.framebuffer]
	if r.FramebufferStatus != nil {
		return r.FramebufferStatus(fb)
	}
	if fb.Color == 0 {
		return gl.FramebufferIncompleteMissingAttachment
	}
	t, ok := r.textures[fb.Color]
	if !ok || t.Deleted || t.Width == 0 || t.Height == 0 {
		return gl.FramebufferIncompleteAttachment
	}
	return gl.FramebufferComplete
}

func (r *Recorder) DrawBuffers(n int32, bufs *uint32) {
	if r.framebuffer == 0 {
		r.fail(gl.InvalidOperation)
		return
	}
	r.framebuffers[r.framebuffer].DrawBuffers = append([]uint32(nil), unsafe.Slice(bufs, n)...)
}

func (r *Recorder) CreateShader(xtype uint32) uint32 {
	if xtype != gl.VertexShader && xtype != gl.FragmentShader {
		r.fail(gl.InvalidEnum)
		return 0
	}
	id := r.id()
	r.shaders[id] = &Shader{ID: id, Type: xtype}
	return id
}

func (r *Recorder) ShaderSource(shader uint32, source string) {
	if s, ok := r.shaders[shader]; ok {
		s.Source = source
	}
}

// CompileShader accepts any source that declares main with balanced braces.
func (r *Recorder) CompileShader(shader uint32) {
	s, ok := r.shaders[shader]
	if !ok {
		r.fail(gl.InvalidValue)
		return
	}
	s.Compiled, s.Log = true, ""
	switch {
	case r.FailCompile != nil && r.FailCompile(s.Source):
		s.Compiled, s.Log = false, "0:1(1): error: rejected by recorder"
	case !strings.Contains(s.Source, "void main("):
		s.Compiled, s.Log = false, "0:1(1): error: main function not found"
	case strings.Count(s.Source, "{") != strings.Count(s.Source, "}"):
		s.Compiled, s.Log = false, "0:1(1): error: syntax error, unexpected end of file"
	}
}

func (r *Recorder) GetShaderiv(shader, pname uint32, params *int32) {
	s, ok := r.shaders[shader]
	if !ok {
		r.fail(gl.InvalidValue)
		return
	}
	switch pname {
	case gl.CompileStatus:
		*params = boolInt(s.Compiled)
	case gl.InfoLogLength:
		*params = int32(len(s.Log))
	default:
		r.fail(gl.InvalidEnum)
	}
}

func (r *Recorder) GetShaderInfoLog(shader uint32) string {
	if s, ok := r.shaders[shader]; ok {
		return s.Log
	}
	return ""
}

func (r *Recorder) DeleteShader(shader uint32) {
	if s, ok := r.shaders[shader]; ok {
		s.Deleted = true
	}
}

func (r *Recorder) CreateProgram() uint32 {
	id := r.id()
	r.programs[id] = &Program{ID: id, Values: make(map[string]any)}
	return id
}

func (r *Recorder) AttachShader(program, shader uint32) {
	p, ok := r.programs[program]
	if !ok {
		r.fail(gl.InvalidValue)
		return
	}
	p.Shaders = append(p.Shaders, shader)
}

var uniformDecl = regexp.MustCompile(`(?m)^\s*uniform\s+(?:(?:lowp|mediump|highp)\s+)?(\w+)\s+(\w+)\s*;`)

func (r *Recorder) LinkProgram(program uint32) {
	p, ok := r.programs[program]
	if !ok {
		r.fail(gl.InvalidValue)
		return
	}
	var vertex, fragment bool
	p.Linked, p.Log = false, ""
	p.Uniforms = make(map[string]Uniform)
	for _, id := range p.Shaders {
		s := r.shaders[id]
		if s == nil || !s.Compiled {
			p.Log = fmt.Sprintf("error: shader %d is not compiled", id)
			return
		}
		vertex = vertex || s.Type == gl.VertexShader
		fragment = fragment || s.Type == gl.FragmentShader
		for _, m := range uniformDecl.FindAllStringSubmatch(s.Source, -1) {
			if _, dup := p.Uniforms[m[2]]; dup {
				continue
			}
			p.Uniforms[m[2]] = Uniform{Name: m[2], Type: m[1], Location: int32(len(p.Uniforms))}
		}
	}
	if !vertex || !fragment {
		p.Log = "error: program lacks a vertex or fragment stage"
		return
	}
	p.Linked = true
}

func (r *Recorder) GetProgramiv(program, pname uint32, params *int32) {
	p, ok := r.programs[program]
	if !ok {
		r.fail(gl.InvalidValue)
		return
	}
	switch pname {
	case gl.LinkStatus:
		*params = boolInt(p.Linked)
	case gl.InfoLogLength:
		*params = int32(len(p.Log))
	default:
		r.fail(gl.InvalidEnum)
	}
}

func (r *Recorder) GetProgramInfoLog(program uint32) string {
	if p, ok := r.programs[program]; ok {
		return p.Log
	}
	return ""
}

func (r *Recorder) DeleteProgram(program uint32) {
	if p, ok := r.programs[program]; ok {
		p.Deleted = true
	}
	if r.program == program {
		r.program = 0
	}
}

func (r *Recorder) UseProgram(program uint32) {
	if program != 0 {
		if p, ok := r.programs[program]; !ok || p.Deleted || !p.Linked {
			r.fail(gl.InvalidOperation)
			return
		}
	}
	r.program = program
}

func (r *Recorder) GetUniformLocation(program uint32, name string) int32 {
	p, ok := r.programs[program]
	if !ok || !p.Linked {
		r.fail(gl.InvalidOperation)
		return -1
	}
	if u, ok := p.Uniforms[name]; ok {
		return u.Location
	}
	return -1
}

func (r *Recorder) setUniform(location int32, v any) {
	if location == -1 {
		r.IgnoredUniforms++
		return
	}
	p := r.programs[r.program]
	if p == nil {
		r.fail(gl.InvalidOperation)
		return
	}
	for name, u := range p.Uniforms {
		if u.Location == location {
			p.Values[name] = v
			return
		}
	}
	r.fail(gl.InvalidOperation)
}

func (r *Recorder) Uniform1i(location, v0 int32)         { r.setUniform(location, v0) }
func (r *Recorder) Uniform1f(location int32, v0 float32) { r.setUniform(location, v0) }

func (r *Recorder) DrawArrays(mode uint32, first, count int32) {
	p := r.programs[r.program]
	if p == nil || r.vertexArray == 0 {
		r.fail(gl.InvalidOperation)
		return
	}

	call := DrawCall{
		Index:       len(r.Draws),
		Program:     r.program,
		Framebuffer: r.framebuffer,
		Target:      r.drawTarget(),
		Viewport:    r.viewport,
		VertexArray: r.vertexArray,
		ArrayBuffer: r.arrayBuffer,
		First:       first,
		Count:       count,
		Textures:    make(map[int]BoundTexture),
		Uniforms:    make(map[string]any, len(p.Values)),
	}
	for unit, id := range r.units {
		if t := r.textures[id]; id != 0 && t != nil {
			call.Textures[unit] = BoundTexture{ID: id, Width: t.Width, Height: t.Height, Generation: t.Generation, Content: t.Content}
		}
	}

	names := make([]string, 0, len(p.Values))
	for name, v := range p.Values {
		call.Uniforms[name] = v
		names = append(names, name)
	}
	sort.Strings(names)

	h := fnv.New64a()
	writeUint(h, uint64(r.program))
	for _, name := range names {
		fmt.Fprintf(h, "%s=%v;", name, p.Values[name])
		if !strings.HasPrefix(p.Uniforms[name].Type, "sampler") {
			continue
		}
		unit, _ := p.Values[name].(int32)
		call.Sampled = append(call.Sampled, int(unit))
		bound := call.Textures[int(unit)]
		writeUint(h, bound.Content)
		if bound.ID != 0 && bound.ID == call.Target {
			call.Feedback = true
		}
	}
	call.Output = h.Sum64()

	r.Draws = append(r.Draws, call)
	r.setTargetContent(call.Output, call.Index)
}

func (r *Recorder) drawTarget() uint32 {
	if r.framebuffer == 0 {
		return 0
	}
	return r.framebuffers[r.framebuffer].Color
}

func (r *Recorder) targetContent() uint64 {
	if r.framebuffer == 0 {
		return r.defaultContent
	}
	if t := r.textures[r.drawTarget()]; t != nil {
		return t.Content
	}
	return 0
}

func (r *Recorder) setTargetContent(content uint64, draw int) {
	if r.framebuffer == 0 {
		r.defaultContent = content
		return
	}
	if t := r.textures[r.drawTarget()]; t != nil {
		t.Content = content
		if draw >= 0 {
			t.LastDraw = draw
		}
	}
}

type hashWriter interface{ Write([]byte) (int, error) }

func writeUint(h hashWriter, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}

func hashPixels(seed uint64, pixels unsafe.Pointer, n int) uint64 {
	h := fnv.New64a()
	writeUint(h, seed)
	h.Write(unsafe.Slice((*byte)(pixels), n))
	return h.Sum64()
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
