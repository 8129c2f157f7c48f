package effects

import (
	"fmt"

	"github.com/tinyrange/crtglow/internal/render"
	"github.com/tinyrange/crtglow/internal/timeslice"
)

var (
	tsDownsample = timeslice.RegisterKind("effects::downsample", timeslice.FlagPass)
	tsBlurPass   = timeslice.RegisterKind("effects::blur_pass", timeslice.FlagPass)
	tsComposite  = timeslice.RegisterKind("effects::composite", timeslice.FlagPass)
	tsCompile    = timeslice.RegisterKind("effects::compile", timeslice.FlagSetup)
)

// DownsampleStage reduces the scene into the blur base target.
type DownsampleStage struct {
	prog     *render.Program
	uTexture render.Uniform
	uScale   render.Uniform
	factor   float32
}

func newDownsampleStage(ctx *render.Context, version string, src Sources, factor int) (*DownsampleStage, error) {
	prog, err := render.CompileProgram(ctx, "downsample", version, src.Vertex, src.Downsample)
	if err != nil {
		return nil, err
	}
	return &DownsampleStage{
		prog:     prog,
		uTexture: prog.Uniform("renderedTexture"),
		uScale:   prog.Uniform("blur_scale"),
		factor:   float32(factor),
	}, nil
}

func (s *DownsampleStage) Program() *render.Program { return s.prog }

// Run draws scene into dst. The quad must be bound.
func (s *DownsampleStage) Run(ctx *render.Context, quad *render.Quad, scene, dst *render.Target, frame uint64) {
	scope := ctx.Scope()
	defer scope.Close()

	dst.BindDraw()
	scene.BindRead(0)
	s.prog.Use()
	s.prog.SetInt(s.uTexture, 0)
	s.prog.SetFloat(s.uScale, s.factor)
	quad.Draw()
	dst.MarkWritten(render.WriteTag{Frame: frame, Pass: -1})
}

func (s *DownsampleStage) destroy() {
	if s != nil {
		s.prog.Destroy()
	}
}

// BlurStage runs a separable blur a fixed number of times, alternating
// horizontal and vertical passes starting with horizontal.
type BlurStage struct {
	prog        *render.Program
	uTexture    render.Uniform
	uHorizontal render.Uniform
	iterations  int
}

func newBlurStage(ctx *render.Context, version string, src Sources, iterations int) (*BlurStage, error) {
	prog, err := render.CompileProgram(ctx, "blur", version, src.Vertex, src.Blur)
	if err != nil {
		return nil, err
	}
	return &BlurStage{
		prog:        prog,
		uTexture:    prog.Uniform("renderedTexture"),
		uHorizontal: prog.Uniform("horizontal"),
		iterations:  iterations,
	}, nil
}

func (s *BlurStage) Program() *render.Program { return s.prog }
func (s *BlurStage) Iterations() int          { return s.iterations }

// FinalAxis is the direction of the last pass.
func (s *BlurStage) FinalAxis() render.Axis {
	return passAxis(s.iterations - 1)
}

func passAxis(pass int) render.Axis {
	if pass%2 == 0 {
		return render.AxisHorizontal
	}
	return render.AxisVertical
}

// Run blurs base through the pair and returns the target holding the result.
func (s *BlurStage) Run(ctx *render.Context, quad *render.Quad, base *render.Target, pair *render.PingPong, frame uint64) (*render.Target, error) {
	scope := ctx.Scope()
	defer scope.Close()

	rec := timeslice.NewState()
	s.prog.Use()
	s.prog.SetInt(s.uTexture, 0)

	pair.Reset()
	for pass := 0; pass < s.iterations; pass++ {
		axis := passAxis(pass)
		src := base
		if pass > 0 {
			src = pair.ReadTarget()
		}
		dst := pair.WriteTarget()

		dst.BindDraw()
		src.BindRead(0)
		s.prog.SetBool(s.uHorizontal, axis == render.AxisHorizontal)
		quad.Draw()
		dst.MarkWritten(render.WriteTag{Frame: frame, Pass: pass, Axis: axis})
		pair.Advance()
		rec.Record(tsBlurPass)
	}

	final := pair.ReadTarget()
	want := render.WriteTag{Frame: frame, Pass: s.iterations - 1, Axis: s.FinalAxis()}
	if got := final.LastWrite(); got != want {
		return nil, fmt.Errorf("%w: %s holds pass %d (%s) of frame %d, want pass %d (%s)",
			ErrBlurOrder, final.Name(), got.Pass, got.Axis, got.Frame, want.Pass, want.Axis)
	}
	return final, nil
}

func (s *BlurStage) destroy() {
	if s != nil {
		s.prog.Destroy()
	}
}

// CompositeStage blends the sharp scene and the blurred glow into the default
// framebuffer.
type CompositeStage struct {
	prog     *render.Program
	uScene   render.Uniform
	uBlur    render.Uniform
	uTime    render.Uniform
	periodMs int64
}

func newCompositeStage(ctx *render.Context, version string, src Sources, periodMs int64) (*CompositeStage, error) {
	prog, err := render.CompileProgram(ctx, "composite", version, src.Vertex, src.Composite)
	if err != nil {
		return nil, err
	}
	return &CompositeStage{
		prog:     prog,
		uScene:   prog.Uniform("renderedTexture"),
		uBlur:    prog.Uniform("blurTexture"),
		uTime:    prog.Uniform("time"),
		periodMs: periodMs,
	}, nil
}

func (s *CompositeStage) Program() *render.Program { return s.prog }

// TimeValue maps wall-clock milliseconds onto the repeating time uniform.
func (s *CompositeStage) TimeValue(unixMillis int64) float32 {
	t := unixMillis % s.periodMs
	if t < 0 {
		t += s.periodMs
	}
	return float32(t)
}

// Run draws to the default framebuffer with the given surface size.
func (s *CompositeStage) Run(ctx *render.Context, quad *render.Quad, scene, blur *render.Target, width, height int, unixMillis int64) {
	scope := ctx.Scope()
	defer scope.Close()

	ctx.BindFramebuffer(0)
	ctx.Viewport(width, height)
	scene.BindRead(0)
	blur.BindRead(1)
	s.prog.Use()
	s.prog.SetInt(s.uScene, 0)
	s.prog.SetInt(s.uBlur, 1)
	s.prog.SetFloat(s.uTime, s.TimeValue(unixMillis))
	quad.Draw()
}

func (s *CompositeStage) destroy() {
	if s != nil {
		s.prog.Destroy()
	}
}
