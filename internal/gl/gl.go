// Package gl exposes the subset of OpenGL 3.3 core used by the effect
// pipeline behind an interface, so passes can run against the native driver
// or an in-memory recorder.
package gl

import "unsafe"

// OpenGL is the command surface used by the renderer. Parameter types follow
// the C API with GLuint/GLint/GLenum mapped to uint32/int32/uint32.
type OpenGL interface {
	GetString(name uint32) string
	GetError() uint32
	GetIntegerv(pname uint32, data *int32)
	GetFloatv(pname uint32, data *float32)
	Finish()

	Enable(capability uint32)
	Disable(capability uint32)
	BlendFunc(sfactor, dfactor uint32)
	Viewport(x, y, width, height int32)
	Scissor(x, y, width, height int32)
	ClearColor(r, g, b, a float32)
	Clear(mask uint32)

	GenVertexArrays(n int32, arrays *uint32)
	DeleteVertexArrays(n int32, arrays *uint32)
	BindVertexArray(array uint32)
	GenBuffers(n int32, buffers *uint32)
	DeleteBuffers(n int32, buffers *uint32)
	BindBuffer(target, buffer uint32)
	BufferData(target uint32, size int, data unsafe.Pointer, usage uint32)
	VertexAttribPointer(index uint32, size int32, xtype uint32, normalized bool, stride int32, offset uintptr)
	EnableVertexAttribArray(index uint32)
	DrawArrays(mode uint32, first, count int32)

	GenTextures(n int32, textures *uint32)
	DeleteTextures(n int32, textures *uint32)
	BindTexture(target, texture uint32)
	ActiveTexture(unit uint32)
	TexParameteri(target, pname uint32, param int32)
	TexImage2D(target uint32, level, internalFormat, width, height, border int32, format, xtype uint32, pixels unsafe.Pointer)
	TexSubImage2D(target uint32, level, xoffset, yoffset, width, height int32, format, xtype uint32, pixels unsafe.Pointer)
	ReadPixels(x, y, width, height int32, format, xtype uint32, pixels unsafe.Pointer)

	GenFramebuffers(n int32, framebuffers *uint32)
	DeleteFramebuffers(n int32, framebuffers *uint32)
	BindFramebuffer(target, framebuffer uint32)
	FramebufferTexture2D(target, attachment, textarget, texture uint32, level int32)
	CheckFramebufferStatus(target uint32) uint32
	DrawBuffers(n int32, bufs *uint32)

	CreateShader(xtype uint32) uint32
	ShaderSource(shader uint32, source string)
	CompileShader(shader uint32)
	GetShaderiv(shader, pname uint32, params *int32)
	GetShaderInfoLog(shader uint32) string
	DeleteShader(shader uint32)
	CreateProgram() uint32
	AttachShader(program, shader uint32)
	LinkProgram(program uint32)
	GetProgramiv(program, pname uint32, params *int32)
	GetProgramInfoLog(program uint32) string
	DeleteProgram(program uint32)
	UseProgram(program uint32)
	GetUniformLocation(program uint32, name string) int32
	Uniform1i(location, v0 int32)
	Uniform1f(location int32, v0 float32)
}

const (
	NoError          = 0
	InvalidEnum      = 0x0500
	InvalidValue     = 0x0501
	InvalidOperation = 0x0502

	Vendor   = 0x1F00
	Renderer = 0x1F01
	Version  = 0x1F02

	Blend            = 0x0BE2
	ScissorTest      = 0x0C11
	DepthTest        = 0x0B71
	SrcAlpha         = 0x0302
	OneMinusSrcAlpha = 0x0303
	ColorBufferBit   = 0x00004000

	ViewportParam        = 0x0BA2
	ColorClearValue      = 0x0C22
	CurrentProgram       = 0x8B8D
	FramebufferBinding   = 0x8CA6
	TextureBinding2D     = 0x8069
	ActiveTextureUnit    = 0x84E0
	VertexArrayBinding   = 0x85B5
	ArrayBufferBinding   = 0x8894
	MaxTextureSize       = 0x0D33
	MaxTextureImageUnits = 0x8872

	ArrayBuffer = 0x8892
	StaticDraw  = 0x88E4
	DynamicDraw = 0x88E8
	Triangles   = 0x0004
	Float       = 0x1406

	Texture2D        = 0x0DE1
	Texture0         = 0x84C0
	TextureMinFilter = 0x2801
	TextureMagFilter = 0x2800
	TextureWrapS     = 0x2802
	TextureWrapT     = 0x2803
	Nearest          = 0x2600
	Linear           = 0x2601
	ClampToEdge      = 0x812F
	RGBA             = 0x1908
	RGBA8            = 0x8058
	UnsignedByte     = 0x1401

	Framebuffer                            = 0x8D40
	ColorAttachment0                       = 0x8CE0
	FramebufferComplete                    = 0x8CD5
	FramebufferIncompleteAttachment        = 0x8CD6
	FramebufferIncompleteMissingAttachment = 0x8CD7
	FramebufferUnsupported                 = 0x8CDD

	VertexShader   = 0x8B31
	FragmentShader = 0x8B30
	CompileStatus  = 0x8B81
	LinkStatus     = 0x8B82
	InfoLogLength  = 0x8B84
)

// FramebufferStatusString names a CheckFramebufferStatus result.
func FramebufferStatusString(status uint32) string {
	switch status {
	case FramebufferComplete:
		return "complete"
	case FramebufferIncompleteAttachment:
		return "incomplete attachment"
	case FramebufferIncompleteMissingAttachment:
		return "missing attachment"
	case FramebufferUnsupported:
		return "unsupported"
	case 0:
		return "error"
	default:
		return "unknown"
	}
}
