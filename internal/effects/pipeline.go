// Package effects implements the glow post-processing pipeline: the scene is
// captured offscreen, downsampled, blurred with a separable Gaussian through a
// ping-pong pair and composited with the sharp image onto the default
// framebuffer.
package effects

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyrange/crtglow/internal/gl"
	"github.com/tinyrange/crtglow/internal/render"
	"github.com/tinyrange/crtglow/internal/timeslice"
)

var (
	// ErrNotReady is returned by BeginFrame and Draw when the targets are not
	// usable, either after a failed Resize or after Destroy.
	ErrNotReady = errors.New("effect pipeline not ready")
	// ErrBlurOrder means the blur result is not in the target written by the
	// final pass.
	ErrBlurOrder = errors.New("blur result in unexpected target")
)

// PipelineInitError wraps the failure that stopped New.
type PipelineInitError struct {
	Step string
	Err  error
}

func (e *PipelineInitError) Error() string {
	return fmt.Sprintf("effect pipeline init: %s: %v", e.Step, e.Err)
}

func (e *PipelineInitError) Unwrap() error { return e.Err }

// SceneProducer draws a frame into whatever framebuffer is bound when it is
// called. It must bind through rc so the pipeline's view of GL state stays
// accurate.
type SceneProducer interface {
	RenderScene(rc *render.Context, width, height int) error
}

type Options struct {
	Config Config
	// Sources overrides Config.LoadSources when set.
	Sources *Sources
	// Width and Height are the initial surface size.
	Width, Height int
	Logger        *slog.Logger
	// Now is the clock used for the time uniform.
	Now func() time.Time
}

type Pipeline struct {
	ctx *render.Context
	cfg Config
	log *slog.Logger
	now func() time.Time

	quad     *render.Quad
	scene    *render.Target
	blurBase *render.Target
	pair     *render.PingPong

	downsample *DownsampleStage
	blur       *BlurStage
	composite  *CompositeStage

	width, height int
	ready         bool
	frame         uint64
	lastBlur      *render.Target
}

// New builds every GPU object of the pipeline. On error everything created so
// far is released and the returned pipeline is nil.
func New(api gl.OpenGL, opts Options) (*Pipeline, error) {
	cfg := opts.Config
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, &PipelineInitError{Step: "config", Err: err}
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, &PipelineInitError{Step: "surface", Err: &render.ResourceError{
			Target: "surface", Width: opts.Width, Height: opts.Height, Err: render.ErrInvalidTargetSize,
		}}
	}

	var src Sources
	if opts.Sources != nil {
		src = *opts.Sources
	} else {
		var err error
		if src, err = cfg.LoadSources(); err != nil {
			return nil, &PipelineInitError{Step: "shader sources", Err: err}
		}
	}
	sceneFilter, _ := render.ParseFilter(cfg.SceneFilter)
	blurFilter, _ := render.ParseFilter(cfg.BlurFilter)

	p := &Pipeline{
		ctx:    render.NewContext(api),
		cfg:    cfg,
		log:    opts.Logger,
		now:    opts.Now,
		width:  opts.Width,
		height: opts.Height,
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}

	if err := p.build(src, sceneFilter, blurFilter); err != nil {
		p.Destroy()
		p.log.Error("effect pipeline init failed", "error", err)
		return nil, err
	}
	p.ready = true

	rw, rh := p.ReducedSize()
	p.log.Info("effect pipeline ready",
		"width", p.width, "height", p.height,
		"reduced_width", rw, "reduced_height", rh,
		"iterations", cfg.BlurIterations, "composite", cfg.Composite)
	return p, nil
}

func (p *Pipeline) build(src Sources, sceneFilter, blurFilter render.Filter) error {
	rec := timeslice.NewState()
	var err error

	p.quad = render.NewQuad(p.ctx)

	if p.scene, err = render.NewTarget(p.ctx, "scene", p.width, p.height, sceneFilter); err != nil {
		return &PipelineInitError{Step: "scene target", Err: err}
	}
	rw, rh := p.ReducedSize()
	if p.blurBase, err = render.NewTarget(p.ctx, "blur.base", rw, rh, blurFilter); err != nil {
		return &PipelineInitError{Step: "blur base target", Err: err}
	}
	if p.pair, err = render.NewPingPong(p.ctx, "blur", rw, rh, blurFilter); err != nil {
		return &PipelineInitError{Step: "blur ping-pong targets", Err: err}
	}

	version := p.cfg.GLSLVersion
	if p.downsample, err = newDownsampleStage(p.ctx, version, src, p.cfg.DownsampleFactor); err != nil {
		return &PipelineInitError{Step: "downsample stage", Err: err}
	}
	if p.blur, err = newBlurStage(p.ctx, version, src, p.cfg.BlurIterations); err != nil {
		return &PipelineInitError{Step: "blur stage", Err: err}
	}
	if p.composite, err = newCompositeStage(p.ctx, version, src, p.cfg.TimePeriodMillis); err != nil {
		return &PipelineInitError{Step: "composite stage", Err: err}
	}
	rec.Record(tsCompile)
	return nil
}

// reduce applies the downsample factor to one dimension, never going below 1.
func reduce(n, factor int) int {
	return max(1, n/factor)
}

func (p *Pipeline) Size() (width, height int) { return p.width, p.height }

// ReducedSize is the size of the blur targets for the current surface.
func (p *Pipeline) ReducedSize() (width, height int) {
	return reduce(p.width, p.cfg.DownsampleFactor), reduce(p.height, p.cfg.DownsampleFactor)
}

func (p *Pipeline) Context() *render.Context { return p.ctx }
func (p *Pipeline) Config() Config            { return p.cfg }
func (p *Pipeline) Ready() bool               { return p.ready }

// Frame is the number of frames drawn so far.
func (p *Pipeline) Frame() uint64 { return p.frame }

func (p *Pipeline) SceneTarget() *render.Target    { return p.scene }
func (p *Pipeline) BlurBaseTarget() *render.Target { return p.blurBase }
func (p *Pipeline) PingPong() *render.PingPong     { return p.pair }

// BlurResult is the target the last composite sampled on unit 1, or nil
// before the first Draw.
func (p *Pipeline) BlurResult() *render.Target { return p.lastBlur }

func (p *Pipeline) Downsample() *DownsampleStage { return p.downsample }
func (p *Pipeline) Blur() *BlurStage             { return p.blur }
func (p *Pipeline) Composite() *CompositeStage   { return p.composite }

// Resize reallocates every target for a width x height surface. Non-positive
// sizes are ignored. If any target cannot be allocated the pipeline refuses
// to draw until a later Resize succeeds.
func (p *Pipeline) Resize(width, height int) error {
	if p.scene == nil {
		return ErrNotReady
	}
	if width <= 0 || height <= 0 {
		p.log.Debug("ignoring degenerate resize", "width", width, "height", height)
		return nil
	}

	p.width, p.height = width, height
	rw, rh := p.ReducedSize()
	err := errors.Join(
		p.scene.Allocate(width, height),
		p.blurBase.Allocate(rw, rh),
		p.pair.Resize(rw, rh),
	)
	p.lastBlur = nil
	p.ready = err == nil
	if err != nil {
		p.log.Error("effect pipeline resize failed", "width", width, "height", height, "error", err)
		return err
	}
	p.log.Debug("effect pipeline resized", "width", width, "height", height,
		"reduced_width", rw, "reduced_height", rh)
	return nil
}

// BeginFrame binds the scene target and clears it. The caller draws the scene
// next, then calls Draw.
func (p *Pipeline) BeginFrame() error {
	if !p.ready {
		return ErrNotReady
	}
	p.scene.BindDraw()
	c := p.cfg.ClearColor
	p.ctx.Clear([4]float32{c[0], c[1], c[2], c[3]})
	return nil
}

// Draw runs downsample, blur and composite. Afterwards no program, vertex
// array, buffer, texture or framebuffer is bound and the viewport covers the
// surface.
func (p *Pipeline) Draw() error {
	if !p.ready {
		return ErrNotReady
	}
	defer p.ctx.Reset(p.width, p.height)

	p.frame++
	rec := timeslice.NewState()

	p.quad.Bind()
	p.downsample.Run(p.ctx, p.quad, p.scene, p.blurBase, p.frame)
	rec.Record(tsDownsample)

	final, err := p.blur.Run(p.ctx, p.quad, p.blurBase, p.pair, p.frame)
	if err != nil {
		return err
	}
	rec.Mark()
	p.lastBlur = final

	p.composite.Run(p.ctx, p.quad, p.scene, final, p.width, p.height, p.now().UnixMilli())
	rec.Record(tsComposite)
	return nil
}

// RenderFrame runs one complete frame: BeginFrame, the producer, then Draw.
func (p *Pipeline) RenderFrame(producer SceneProducer) error {
	if err := p.BeginFrame(); err != nil {
		return err
	}
	if err := producer.RenderScene(p.ctx, p.width, p.height); err != nil {
		p.ctx.Reset(p.width, p.height)
		return fmt.Errorf("render scene: %w", err)
	}
	return p.Draw()
}

// Destroy releases every GPU object. It is safe to call more than once.
func (p *Pipeline) Destroy() {
	p.ready = false
	p.lastBlur = nil

	p.composite.destroy()
	p.blur.destroy()
	p.downsample.destroy()
	p.composite, p.blur, p.downsample = nil, nil, nil

	if p.pair != nil {
		p.pair.Destroy()
		p.pair = nil
	}
	for _, t := range []**render.Target{&p.blurBase, &p.scene} {
		if *t != nil {
			(*t).Destroy()
			*t = nil
		}
	}
	if p.quad != nil {
		p.quad.Destroy()
		p.quad = nil
	}
}
