package render

import (
	"strings"

	"github.com/tinyrange/crtglow/internal/gl"
)

// Uniform is an optional uniform location. Drivers drop uniforms a shader does
// not use, so an absent uniform is normal and setting it does nothing.
type Uniform struct {
	location int32
	present  bool
}

func (u Uniform) Present() bool { return u.present }

// Program is a linked vertex+fragment program.
type Program struct {
	ctx  *Context
	id   uint32
	name string
}

// CompileProgram compiles and links a program. When version is non-empty a
// "#version" line is prepended to both sources.
func CompileProgram(ctx *Context, name, version, vertexSrc, fragmentSrc string) (*Program, error) {
	g := ctx.GL()

	vertexShader, err := compileShader(g, name, "vertex", gl.VertexShader, withVersion(version, vertexSrc))
	if err != nil {
		return nil, err
	}
	fragmentShader, err := compileShader(g, name, "fragment", gl.FragmentShader, withVersion(version, fragmentSrc))
	if err != nil {
		g.DeleteShader(vertexShader)
		return nil, err
	}

	program := g.CreateProgram()
	g.AttachShader(program, vertexShader)
	g.AttachShader(program, fragmentShader)
	g.LinkProgram(program)

	// Shaders can be deleted after linking.
	g.DeleteShader(vertexShader)
	g.DeleteShader(fragmentShader)

	var status int32
	g.GetProgramiv(program, gl.LinkStatus, &status)
	if status == 0 {
		log := g.GetProgramInfoLog(program)
		g.DeleteProgram(program)
		return nil, &ShaderCompileError{Program: name, Phase: "link", Log: log}
	}

	return &Program{ctx: ctx, id: program, name: name}, nil
}

func compileShader(g gl.OpenGL, program, phase string, kind uint32, src string) (uint32, error) {
	shader := g.CreateShader(kind)
	g.ShaderSource(shader, src)
	g.CompileShader(shader)

	var status int32
	g.GetShaderiv(shader, gl.CompileStatus, &status)
	if status == 0 {
		log := g.GetShaderInfoLog(shader)
		g.DeleteShader(shader)
		return 0, &ShaderCompileError{Program: program, Phase: phase, Log: log}
	}
	return shader, nil
}

func withVersion(version, src string) string {
	if version == "" || strings.HasPrefix(strings.TrimSpace(src), "#version") {
		return src
	}
	return "#version " + version + "\n" + src
}

func (p *Program) ID() uint32   { return p.id }
func (p *Program) Name() string { return p.name }

// Uniform resolves a uniform location once. Missing uniforms are absent, not
// errors.
func (p *Program) Uniform(name string) Uniform {
	loc := p.ctx.GL().GetUniformLocation(p.id, name)
	return Uniform{location: loc, present: loc >= 0}
}

// Use makes p the current program. Uniform setters require it.
func (p *Program) Use() {
	p.ctx.UseProgram(p.id)
}

func (p *Program) SetInt(u Uniform, v int32) {
	if u.present {
		p.ctx.GL().Uniform1i(u.location, v)
	}
}

func (p *Program) SetFloat(u Uniform, v float32) {
	if u.present {
		p.ctx.GL().Uniform1f(u.location, v)
	}
}

func (p *Program) SetBool(u Uniform, v bool) {
	var i int32
	if v {
		i = 1
	}
	p.SetInt(u, i)
}

func (p *Program) Destroy() {
	if p.id == 0 {
		return
	}
	if p.ctx.state.Program == p.id {
		p.ctx.UseProgram(0)
	}
	p.ctx.GL().DeleteProgram(p.id)
	p.id = 0
}
