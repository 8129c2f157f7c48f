//go:build darwin || linux

package gl

import (
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"
)

// ProcAddressFunc resolves a GL entry point by name, returning 0 when the
// driver does not export it.
type ProcAddressFunc func(name string) uintptr

type native struct {
	getString              func(name uint32) *byte
	getError               func() uint32
	getIntegerv            func(pname uint32, data *int32)
	getFloatv              func(pname uint32, data *float32)
	finish                 func()
	enable                 func(capability uint32)
	disable                func(capability uint32)
	blendFunc              func(sfactor, dfactor uint32)
	viewport               func(x, y, width, height int32)
	scissor                func(x, y, width, height int32)
	clearColor             func(r, g, b, a float32)
	clear                  func(mask uint32)
	genVertexArrays        func(n int32, arrays *uint32)
	deleteVertexArrays     func(n int32, arrays *uint32)
	bindVertexArray        func(array uint32)
	genBuffers             func(n int32, buffers *uint32)
	deleteBuffers          func(n int32, buffers *uint32)
	bindBuffer             func(target, buffer uint32)
	bufferData             func(target uint32, size int, data unsafe.Pointer, usage uint32)
	vertexAttribPointer    func(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset uintptr)
	enableVertexAttribArr  func(index uint32)
	drawArrays             func(mode uint32, first, count int32)
	genTextures            func(n int32, textures *uint32)
	deleteTextures         func(n int32, textures *uint32)
	bindTexture            func(target, texture uint32)
	activeTexture          func(unit uint32)
	texParameteri          func(target, pname uint32, param int32)
	texImage2D             func(target uint32, level, internalFormat, width, height, border int32, format, xtype uint32, pixels unsafe.Pointer)
	texSubImage2D          func(target uint32, level, xoffset, yoffset, width, height int32, format, xtype uint32, pixels unsafe.Pointer)
	readPixels             func(x, y, width, height int32, format, xtype uint32, pixels unsafe.Pointer)
	genFramebuffers        func(n int32, framebuffers *uint32)
	deleteFramebuffers     func(n int32, framebuffers *uint32)
	bindFramebuffer        func(target, framebuffer uint32)
	framebufferTexture2D   func(target, attachment, textarget, texture uint32, level int32)
	checkFramebufferStatus func(target uint32) uint32
	drawBuffers            func(n int32, bufs *uint32)
	createShader           func(xtype uint32) uint32
	shaderSource           func(shader uint32, count int32, sources **byte, lengths *int32)
	compileShader          func(shader uint32)
	getShaderiv            func(shader, pname uint32, params *int32)
	getShaderInfoLog       func(shader uint32, bufSize int32, length *int32, infoLog *byte)
	deleteShader           func(shader uint32)
	createProgram          func() uint32
	attachShader           func(program, shader uint32)
	linkProgram            func(program uint32)
	getProgramiv           func(program, pname uint32, params *int32)
	getProgramInfoLog      func(program uint32, bufSize int32, length *int32, infoLog *byte)
	deleteProgram          func(program uint32)
	useProgram             func(program uint32)
	getUniformLocation     func(program uint32, name string) int32
	uniform1i              func(location, v0 int32)
	uniform1f              func(location int32, v0 float32)
}

// Load resolves every entry point through procAddr. The caller must have made
// a context current on the calling OS thread.
func Load(procAddr ProcAddressFunc) (OpenGL, error) {
	n := &native{}
	entries := []struct {
		fptr any
		name string
	}{
		{&n.getString, "glGetString"},
		{&n.getError, "glGetError"},
		{&n.getIntegerv, "glGetIntegerv"},
		{&n.getFloatv, "glGetFloatv"},
		{&n.finish, "glFinish"},
		{&n.enable, "glEnable"},
		{&n.disable, "glDisable"},
		{&n.blendFunc, "glBlendFunc"},
		{&n.viewport, "glViewport"},
		{&n.scissor, "glScissor"},
		{&n.clearColor, "glClearColor"},
		{&n.clear, "glClear"},
		{&n.genVertexArrays, "glGenVertexArrays"},
		{&n.deleteVertexArrays, "glDeleteVertexArrays"},
		{&n.bindVertexArray, "glBindVertexArray"},
		{&n.genBuffers, "glGenBuffers"},
		{&n.deleteBuffers, "glDeleteBuffers"},
		{&n.bindBuffer, "glBindBuffer"},
		{&n.bufferData, "glBufferData"},
		{&n.vertexAttribPointer, "glVertexAttribPointer"},
		{&n.enableVertexAttribArr, "glEnableVertexAttribArray"},
		{&n.drawArrays, "glDrawArrays"},
		{&n.genTextures, "glGenTextures"},
		{&n.deleteTextures, "glDeleteTextures"},
		{&n.bindTexture, "glBindTexture"},
		{&n.activeTexture, "glActiveTexture"},
		{&n.texParameteri, "glTexParameteri"},
		{&n.texImage2D, "glTexImage2D"},
		{&n.texSubImage2D, "glTexSubImage2D"},
		{&n.readPixels, "glReadPixels"},
		{&n.genFramebuffers, "glGenFramebuffers"},
		{&n.deleteFramebuffers, "glDeleteFramebuffers"},
		{&n.bindFramebuffer, "glBindFramebuffer"},
		{&n.framebufferTexture2D, "glFramebufferTexture2D"},
		{&n.checkFramebufferStatus, "glCheckFramebufferStatus"},
		{&n.drawBuffers, "glDrawBuffers"},
		{&n.createShader, "glCreateShader"},
		{&n.shaderSource, "glShaderSource"},
		{&n.compileShader, "glCompileShader"},
		{&n.getShaderiv, "glGetShaderiv"},
		{&n.getShaderInfoLog, "glGetShaderInfoLog"},
		{&n.deleteShader, "glDeleteShader"},
		{&n.createProgram, "glCreateProgram"},
		{&n.attachShader, "glAttachShader"},
		{&n.linkProgram, "glLinkProgram"},
		{&n.getProgramiv, "glGetProgramiv"},
		{&n.getProgramInfoLog, "glGetProgramInfoLog"},
		{&n.deleteProgram, "glDeleteProgram"},
		{&n.useProgram, "glUseProgram"},
		{&n.getUniformLocation, "glGetUniformLocation"},
		{&n.uniform1i, "glUniform1i"},
		{&n.uniform1f, "glUniform1f"},
	}

	var missing []string
	for _, e := range entries {
		addr := procAddr(e.name)
		if addr == 0 {
			missing = append(missing, e.name)
			continue
		}
		purego.RegisterFunc(e.fptr, addr)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("gl: missing entry points: %s", strings.Join(missing, ", "))
	}
	return n, nil
}

// LoadSystem opens the platform OpenGL library and resolves entry points from
// it, falling back to the platform's GetProcAddress for extension-era symbols.
func LoadSystem() (OpenGL, error) {
	lib, err := purego.Dlopen(systemLibrary, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("gl: open %s: %w", systemLibrary, err)
	}
	fallback := platformProcAddress(lib)
	return Load(func(name string) uintptr {
		if addr, err := purego.Dlsym(lib, name); err == nil && addr != 0 {
			return addr
		}
		if fallback != nil {
			return fallback(name)
		}
		return 0
	})
}

func goString(p *byte) string {
	if p == nil {
		return ""
	}
	var b []byte
	for ptr := unsafe.Pointer(p); *(*byte)(ptr) != 0; ptr = unsafe.Add(ptr, 1) {
		b = append(b, *(*byte)(ptr))
	}
	return string(b)
}

func (n *native) GetString(name uint32) string { return goString(n.getString(name)) }
func (n *native) GetError() uint32 { return n.getError() }
func (n *native) GetIntegerv(p uint32, d *int32) { n.getIntegerv(p, d) }
func (n *native) GetFloatv(p uint32, d *float32) { n.getFloatv(p, d) }
func (n *native) Finish() { n.finish() }
func (n *native) Enable(c uint32) { n.enable(c) }
func (n *native) Disable(c uint32) { n.disable(c) }
func (n *native) BlendFunc(s, d uint32) { n.blendFunc(s, d) }
func (n *native) Viewport(x, y, w, h int32) { n.viewport(x, y, w, h) }
func (n *native) Scissor(x, y, w, h int32) { n.scissor(x, y, w, h) }
func (n *native) ClearColor(r, g, b, a float32) { n.clearColor(r, g, b, a) }
func (n *native) Clear(mask uint32) { n.clear(mask) }

func (n *native) GenVertexArrays(c int32, a *uint32) { n.genVertexArrays(c, a) }
func (n *native) DeleteVertexArrays(c int32, a *uint32) { n.deleteVertexArrays(c, a) }
func (n *native) BindVertexArray(a uint32) { n.bindVertexArray(a) }
func (n *native) GenBuffers(c int32, b *uint32) { n.genBuffers(c, b) }
func (n *native) DeleteBuffers(c int32, b *uint32) { n.deleteBuffers(c, b) }
func (n *native) BindBuffer(t, b uint32) { n.bindBuffer(t, b) }
func (n *native) BufferData(t uint32, size int, data unsafe.Pointer, usage uint32) {
	n.bufferData(t, size, data, usage)
}
func (n *native) VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset uintptr) {
	n.vertexAttribPointer(index, size, xtype, normalized, stride, offset)
}
func (n *native) EnableVertexAttribArray(i uint32) { n.enableVertexAttribArr(i) }
func (n *native) DrawArrays(mode uint32, first, c int32) { n.drawArrays(mode, first, c) }

func (n *native) GenTextures(c int32, t *uint32) { n.genTextures(c, t) }
func (n *native) DeleteTextures(c int32, t *uint32) { n.deleteTextures(c, t) }
func (n *native) BindTexture(target, tex uint32) { n.bindTexture(target, tex) }
func (n *native) ActiveTexture(unit uint32) { n.activeTexture(unit) }
func (n *native) TexParameteri(t, pname uint32, p int32) { n.texParameteri(t, pname, p) }
func (n *native) TexImage2D(target uint32, level, internalFormat, width, height, border int32, format, xtype uint32, pixels unsafe.Pointer) {
	n.texImage2D(target, level, internalFormat, width, height, border, format, xtype, pixels)
}
func (n *native) TexSubImage2D(target uint32, level, xoffset, yoffset, width, height int32, format, xtype uint32, pixels unsafe.Pointer) {
	n.texSubImage2D(target, level, xoffset, yoffset, width, height, format, xtype, pixels)
}
func (n *native) ReadPixels(x, y, width, height int32, format, xtype uint32, pixels unsafe.Pointer) {
	n.readPixels(x, y, width, height, format, xtype, pixels)
}

func (n *native) GenFramebuffers(c int32, f *uint32) { n.genFramebuffers(c, f) }
func (n *native) DeleteFramebuffers(c int32, f *uint32) { n.deleteFramebuffers(c, f) }
func (n *native) BindFramebuffer(t, f uint32) { n.bindFramebuffer(t, f) }
func (n *native) FramebufferTexture2D(target, attachment, textarget, texture uint32, level int32) {
	n.framebufferTexture2D(target, attachment, textarget, texture, level)
}
func (n *native) CheckFramebufferStatus(t uint32) uint32 { return n.checkFramebufferStatus(t) }
func (n *native) DrawBuffers(c int32, bufs *uint32) { n.drawBuffers(c, bufs) }

func (n *native) CreateShader(xtype uint32) uint32 { return n.createShader(xtype) }

func (n *native) ShaderSource(shader uint32, source string) {
	src := append([]byte(source), 0)
	ptr := &src[0]
	length := int32(len(source))

	// The driver reads through a pointer to a pointer, so the inner buffer
	// must stay put for the duration of the call.
	var pinner runtime.Pinner
	pinner.Pin(ptr)
	defer pinner.Unpin()
	n.shaderSource(shader, 1, &ptr, &length)
}

func (n *native) CompileShader(s uint32) { n.compileShader(s) }
func (n *native) GetShaderiv(s, pname uint32, p *int32) { n.getShaderiv(s, pname, p) }
func (n *native) GetShaderInfoLog(shader uint32) string { return n.infoLog(shader, n.getShaderiv, n.getShaderInfoLog) }
func (n *native) DeleteShader(s uint32) { n.deleteShader(s) }
func (n *native) CreateProgram() uint32 { return n.createProgram() }
func (n *native) AttachShader(p, s uint32) { n.attachShader(p, s) }
func (n *native) LinkProgram(p uint32) { n.linkProgram(p) }
func (n *native) GetProgramiv(p, pname uint32, v *int32) { n.getProgramiv(p, pname, v) }
func (n *native) GetProgramInfoLog(program uint32) string { return n.infoLog(program, n.getProgramiv, n.getProgramInfoLog) }
func (n *native) DeleteProgram(p uint32) { n.deleteProgram(p) }
func (n *native) UseProgram(p uint32) { n.useProgram(p) }
func (n *native) GetUniformLocation(p uint32, name string) int32 {
	return n.getUniformLocation(p, name)
}
func (n *native) Uniform1i(loc, v int32) { n.uniform1i(loc, v) }
func (n *native) Uniform1f(loc int32, v float32) { n.uniform1f(loc, v) }

func (n *native) infoLog(object uint32, getiv func(uint32, uint32, *int32), getLog func(uint32, int32, *int32, *byte)) string {
	var length int32
	getiv(object, InfoLogLength, &length)
	if length <= 0 {
		return ""
	}
	buf := make([]byte, length)
	var written int32
	getLog(object, length, &written, &buf[0])
	return strings.TrimRight(string(buf[:written]), "\x00\n")
}
