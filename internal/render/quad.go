package render

import (
	"unsafe"

	"github.com/tinyrange/crtglow/internal/gl"
)

// QuadVertex matches the effect vertex shader inputs:
//
//	location 0: vec2 position (normalized device coordinates)
//	location 1: vec2 texcoord
type QuadVertex struct {
	X, Y float32
	U, V float32
}

const quadVertexSize = int32(unsafe.Sizeof(QuadVertex{}))

// QuadVertices are two triangles covering the whole viewport.
var QuadVertices = [6]QuadVertex{
	{X: -1, Y: -1, U: 0, V: 0},
	{X: 1, Y: -1, U: 1, V: 0},
	{X: -1, Y: 1, U: 0, V: 1},
	{X: 1, Y: -1, U: 1, V: 0},
	{X: -1, Y: 1, U: 0, V: 1},
	{X: 1, Y: 1, U: 1, V: 1},
}

// Quad is the static fullscreen mesh shared by every pass.
type Quad struct {
	ctx *Context
	vao uint32
	vbo uint32
}

func NewQuad(ctx *Context) *Quad {
	g := ctx.GL()
	scope := ctx.Scope()
	defer scope.Close()

	q := &Quad{ctx: ctx}
	g.GenVertexArrays(1, &q.vao)
	g.GenBuffers(1, &q.vbo)

	ctx.BindVertexArray(q.vao)
	ctx.BindArrayBuffer(q.vbo)
	vertices := QuadVertices
	g.BufferData(gl.ArrayBuffer, len(vertices)*int(quadVertexSize), unsafe.Pointer(&vertices[0]), gl.StaticDraw)

	// Position: 2 floats at offset 0
	g.VertexAttribPointer(0, 2, gl.Float, false, quadVertexSize, 0)
	g.EnableVertexAttribArray(0)
	// TexCoord: 2 floats at offset 8
	g.VertexAttribPointer(1, 2, gl.Float, false, quadVertexSize, unsafe.Offsetof(QuadVertex{}.U))
	g.EnableVertexAttribArray(1)

	return q
}

// Bind makes the quad's vertex array current.
func (q *Quad) Bind() {
	q.ctx.BindVertexArray(q.vao)
	q.ctx.BindArrayBuffer(q.vbo)
}

// Draw issues the six-vertex draw. The quad must be bound.
func (q *Quad) Draw() {
	q.ctx.GL().DrawArrays(gl.Triangles, 0, int32(len(QuadVertices)))
}

func (q *Quad) Destroy() {
	g := q.ctx.GL()
	if q.vao != 0 {
		if q.ctx.state.VertexArray == q.vao {
			q.ctx.BindVertexArray(0)
		}
		g.DeleteVertexArrays(1, &q.vao)
		q.vao = 0
	}
	if q.vbo != 0 {
		if q.ctx.state.ArrayBuffer == q.vbo {
			q.ctx.BindArrayBuffer(0)
		}
		g.DeleteBuffers(1, &q.vbo)
		q.vbo = 0
	}
}
