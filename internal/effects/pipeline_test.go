package effects

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/tinyrange/crtglow/internal/gl"
	"github.com/tinyrange/crtglow/internal/gl/gltrace"
	"github.com/tinyrange/crtglow/internal/render"
)

// 1700000000067 % 100 == 67
func fixedNow() time.Time { return time.UnixMilli(1_700_000_000_067) }

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestPipeline(t *testing.T, cfg Config, width, height int) (*gltrace.Recorder, *Pipeline) {
	t.Helper()
	rec := gltrace.New(width, height)
	p, err := New(rec, Options{Config: cfg, Width: width, Height: height, Logger: quietLogger, Now: fixedNow})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(p.Destroy)
	return rec, p
}

func drawFrame(t *testing.T, p *Pipeline) {
	t.Helper()
	if err := p.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame failed: %v", err)
	}
	if err := p.Draw(); err != nil {
		t.Fatalf("Draw failed: %v", err)
	}
}

func TestNewInitialTargets(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 1600, 1200)

	if w, h := p.SceneTarget().Size(); w != 1600 || h != 1200 {
		t.Errorf("scene size = %dx%d, want 1600x1200", w, h)
	}
	if w, h := p.BlurBaseTarget().Size(); w != 50 || h != 37 {
		t.Errorf("blur base size = %dx%d, want 50x37", w, h)
	}
	if w, h := p.PingPong().Size(); w != 50 || h != 37 {
		t.Errorf("ping-pong size = %dx%d, want 50x37", w, h)
	}

	filters := []struct {
		target *render.Target
		want   int32
	}{
		{p.SceneTarget(), gl.Nearest},
		{p.BlurBaseTarget(), gl.Linear},
		{p.PingPong().Targets()[0], gl.Linear},
		{p.PingPong().Targets()[1], gl.Linear},
	}
	for _, f := range filters {
		tex := rec.Texture(f.target.Texture())
		if tex.Params[gl.TextureMinFilter] != f.want || tex.Params[gl.TextureMagFilter] != f.want {
			t.Errorf("%s filter = 0x%X, want 0x%X", f.target.Name(), tex.Params[gl.TextureMinFilter], f.want)
		}
	}

	if !p.Ready() {
		t.Error("pipeline not ready after New")
	}
	if errs := rec.Errors(); len(errs) != 0 {
		t.Errorf("GL errors during New: %v", errs)
	}
}

func TestResizeDimensions(t *testing.T) {
	tests := []struct {
		w, h           int
		reducedW, redH int
	}{
		{1600, 1200, 50, 37},
		{800, 600, 25, 18},
		{31, 64, 1, 2},
		{1, 1, 1, 1},
	}
	_, p := newTestPipeline(t, Config{}, 640, 480)

	for _, tt := range tests {
		if err := p.Resize(tt.w, tt.h); err != nil {
			t.Fatalf("Resize(%d, %d) failed: %v", tt.w, tt.h, err)
		}
		if w, h := p.SceneTarget().Size(); w != tt.w || h != tt.h {
			t.Errorf("Resize(%d, %d): scene = %dx%d", tt.w, tt.h, w, h)
		}
		targets := []*render.Target{p.BlurBaseTarget(), p.PingPong().Targets()[0], p.PingPong().Targets()[1]}
		for _, target := range targets {
			if w, h := target.Size(); w != tt.reducedW || h != tt.redH {
				t.Errorf("Resize(%d, %d): %s = %dx%d, want %dx%d", tt.w, tt.h, target.Name(), w, h, tt.reducedW, tt.redH)
			}
		}
	}
}

func TestDegenerateResizeIsNoOp(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 1600, 1200)
	gen := p.SceneTarget().Generation()
	texGen := rec.Texture(p.SceneTarget().Texture()).Generation

	for _, size := range [][2]int{{0, 600}, {800, 0}, {-1, -1}} {
		if err := p.Resize(size[0], size[1]); err != nil {
			t.Errorf("Resize(%d, %d) = %v, want nil", size[0], size[1], err)
		}
	}

	if w, h := p.Size(); w != 1600 || h != 1200 {
		t.Errorf("size = %dx%d after degenerate resize", w, h)
	}
	if p.SceneTarget().Generation() != gen || rec.Texture(p.SceneTarget().Texture()).Generation != texGen {
		t.Error("degenerate resize reallocated the scene target")
	}
	drawFrame(t, p)
}

func TestBlurFinalPass(t *testing.T) {
	tests := []struct {
		iterations int
		allowOdd   bool
		wantAxis   render.Axis
	}{
		{1, true, render.AxisHorizontal},
		{2, false, render.AxisVertical},
		{3, true, render.AxisHorizontal},
		{4, false, render.AxisVertical},
		{6, false, render.AxisVertical},
	}

	for _, tt := range tests {
		t.Run(strings.Repeat("I", tt.iterations), func(t *testing.T) {
			cfg := Config{BlurIterations: tt.iterations, AllowHorizontalFinish: tt.allowOdd}
			rec, p := newTestPipeline(t, cfg, 1600, 1200)
			rec.ResetLog()

			for frame := uint64(1); frame <= 2; frame++ {
				drawFrame(t, p)

				final := p.BlurResult()
				want := render.WriteTag{Frame: frame, Pass: tt.iterations - 1, Axis: tt.wantAxis}
				if got := final.LastWrite(); got != want {
					t.Errorf("frame %d: last write = %+v, want %+v", frame, got, want)
				}
				wantIndex := (tt.iterations - 1) % 2
				if final != p.PingPong().Targets()[wantIndex] {
					t.Errorf("frame %d: result in %s, want index %d", frame, final.Name(), wantIndex)
				}

				composite := rec.Draws[len(rec.Draws)-1]
				if composite.Textures[1].ID != final.Texture() {
					t.Errorf("frame %d: composite unit 1 = %d, want %d", frame, composite.Textures[1].ID, final.Texture())
				}
			}
		})
	}
}

func TestBlurPassSequence(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 1600, 1200)
	rec.ResetLog()
	drawFrame(t, p)

	if len(rec.Draws) != 1+DefaultBlurIterations+1 {
		t.Fatalf("draws = %d, want %d", len(rec.Draws), DefaultBlurIterations+2)
	}

	targets := p.PingPong().Targets()
	for pass := 0; pass < DefaultBlurIterations; pass++ {
		d := rec.Draws[1+pass]
		if d.Program != p.Blur().Program().ID() {
			t.Fatalf("pass %d: program %d is not the blur program", pass, d.Program)
		}
		if d.Target != targets[pass%2].Texture() {
			t.Errorf("pass %d: wrote %d, want index %d", pass, d.Target, pass%2)
		}
		src := p.BlurBaseTarget()
		if pass > 0 {
			src = targets[(pass-1)%2]
		}
		if d.Textures[0].ID != src.Texture() {
			t.Errorf("pass %d: read %d, want %s", pass, d.Textures[0].ID, src.Name())
		}
		wantHorizontal := int32(1 - pass%2)
		if d.Uniforms["horizontal"] != wantHorizontal {
			t.Errorf("pass %d: horizontal = %v, want %d", pass, d.Uniforms["horizontal"], wantHorizontal)
		}
		if d.Viewport != [4]int32{0, 0, 50, 37} {
			t.Errorf("pass %d: viewport = %v", pass, d.Viewport)
		}
	}

	for _, d := range rec.Draws {
		if d.Feedback {
			t.Errorf("draw %d samples its own target", d.Index)
		}
	}
}

func TestOddIterationsRequireOptIn(t *testing.T) {
	rec := gltrace.New(64, 64)
	p, err := New(rec, Options{Config: Config{BlurIterations: 3}, Width: 64, Height: 64, Logger: quietLogger})
	if p != nil {
		t.Fatal("expected nil pipeline")
	}
	var initErr *PipelineInitError
	if !errors.As(err, &initErr) || !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error = %v, want PipelineInitError wrapping ErrInvalidConfig", err)
	}
	if live := rec.Live(); live != (gltrace.Counts{}) {
		t.Errorf("objects created despite config error: %+v", live)
	}
}

func TestDrawIsDeterministic(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 320, 240)

	drawFrame(t, p)
	first := rec.DefaultContent()
	drawFrame(t, p)
	if rec.DefaultContent() != first {
		t.Error("two frames with the same clock produced different output")
	}

	// Without BeginFrame the scene is unchanged too.
	if err := p.Draw(); err != nil {
		t.Fatal(err)
	}
	if rec.DefaultContent() != first {
		t.Error("redrawing the same scene changed the output")
	}

	p.now = func() time.Time { return time.UnixMilli(1_700_000_000_012) }
	drawFrame(t, p)
	if rec.DefaultContent() == first {
		t.Error("time uniform does not reach the output")
	}
}

func TestMalformedShader(t *testing.T) {
	builtins, err := BuiltinSources(CompositeCRT)
	if err != nil {
		t.Fatal(err)
	}
	const broken = "void main() {"

	tests := []struct {
		name    string
		mutate  func(*Sources)
		program string
		phase   string
	}{
		{"vertex", func(s *Sources) { s.Vertex = broken }, "downsample", "vertex"},
		{"downsample", func(s *Sources) { s.Downsample = broken }, "downsample", "fragment"},
		{"blur", func(s *Sources) { s.Blur = broken }, "blur", "fragment"},
		{"composite", func(s *Sources) { s.Composite = broken }, "composite", "fragment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := builtins
			tt.mutate(&src)

			rec := gltrace.New(800, 600)
			p, err := New(rec, Options{Sources: &src, Width: 800, Height: 600, Logger: quietLogger})
			if p != nil {
				t.Fatal("expected nil pipeline")
			}

			var initErr *PipelineInitError
			if !errors.As(err, &initErr) {
				t.Fatalf("error = %v, want PipelineInitError", err)
			}
			var compileErr *render.ShaderCompileError
			if !errors.As(err, &compileErr) {
				t.Fatalf("error = %v, want ShaderCompileError", err)
			}
			if compileErr.Program != tt.program || compileErr.Phase != tt.phase {
				t.Errorf("failed %s/%s, want %s/%s", compileErr.Program, compileErr.Phase, tt.program, tt.phase)
			}
			if live := rec.Live(); live != (gltrace.Counts{}) {
				t.Errorf("leaked objects: %+v", live)
			}
		})
	}
}

func TestCompositeSamplesSceneAndBlur(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 1600, 1200)
	rec.ResetLog()
	drawFrame(t, p)

	downsample := rec.Draws[0]
	if downsample.Program != p.Downsample().Program().ID() {
		t.Fatalf("first draw is not the downsample pass")
	}
	if downsample.Viewport != [4]int32{0, 0, 50, 37} || downsample.Target != p.BlurBaseTarget().Texture() {
		t.Errorf("downsample draw = %+v", downsample)
	}
	if downsample.Textures[0].ID != p.SceneTarget().Texture() || downsample.Uniforms["blur_scale"] != float32(32) {
		t.Errorf("downsample inputs = %+v, uniforms %v", downsample.Textures, downsample.Uniforms)
	}

	composite := rec.Draws[len(rec.Draws)-1]
	if composite.Program != p.Composite().Program().ID() || composite.Framebuffer != 0 {
		t.Fatalf("last draw is not the composite pass: %+v", composite)
	}
	if composite.Viewport != [4]int32{0, 0, 1600, 1200} {
		t.Errorf("composite viewport = %v", composite.Viewport)
	}
	if u0 := composite.Textures[0]; u0.ID != p.SceneTarget().Texture() || u0.Width != 1600 || u0.Height != 1200 {
		t.Errorf("unit 0 = %+v, want 1600x1200 scene", u0)
	}
	if u1 := composite.Textures[1]; u1.Width != 50 || u1.Height != 37 {
		t.Errorf("unit 1 = %+v, want 50x37 blur", u1)
	}
	sampled := slices.Clone(composite.Sampled)
	slices.Sort(sampled)
	if !slices.Equal(sampled, []int{0, 1}) {
		t.Errorf("sampled units = %v, want [0 1]", composite.Sampled)
	}
	want := map[string]any{"renderedTexture": int32(0), "blurTexture": int32(1), "time": float32(67)}
	for name, v := range want {
		if composite.Uniforms[name] != v {
			t.Errorf("%s = %v, want %v", name, composite.Uniforms[name], v)
		}
	}
}

func TestResizeDropsOldAllocations(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 1600, 1200)
	drawFrame(t, p)

	before := 0
	for _, target := range []*render.Target{p.SceneTarget(), p.BlurBaseTarget(), p.PingPong().Targets()[0], p.PingPong().Targets()[1]} {
		before = max(before, rec.Texture(target.Texture()).Generation)
	}

	if err := p.Resize(800, 600); err != nil {
		t.Fatal(err)
	}
	if w, h := p.ReducedSize(); w != 25 || h != 18 {
		t.Errorf("reduced size = %dx%d, want 25x18", w, h)
	}

	rec.ResetLog()
	drawFrame(t, p)
	for _, d := range rec.Draws {
		for unit, tex := range d.Textures {
			if tex.Generation <= before {
				t.Errorf("draw %d unit %d samples generation %d from before the resize", d.Index, unit, tex.Generation)
			}
		}
	}
	composite := rec.Draws[len(rec.Draws)-1]
	if composite.Textures[0].Width != 800 || composite.Textures[1].Width != 25 {
		t.Errorf("composite inputs = %+v", composite.Textures)
	}
}

func TestDrawLeavesNeutralState(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 1024, 768)
	drawFrame(t, p)

	b := rec.Bindings()
	if b.Program != 0 || b.VertexArray != 0 || b.ArrayBuffer != 0 || b.Framebuffer != 0 {
		t.Errorf("bindings after Draw = %+v", b)
	}
	if b.Units[0] != 0 || b.Units[1] != 0 || b.ActiveUnit != 0 {
		t.Errorf("texture units after Draw = %v (active %d)", b.Units[:2], b.ActiveUnit)
	}
	if b.Viewport != [4]int32{0, 0, 1024, 768} {
		t.Errorf("viewport after Draw = %v", b.Viewport)
	}
	if errs := rec.Errors(); len(errs) != 0 {
		t.Errorf("GL errors: %v", errs)
	}
}

func TestAbsentUniformIsNotAnError(t *testing.T) {
	src, err := BuiltinSources(CompositeBloom)
	if err != nil {
		t.Fatal(err)
	}
	src.Composite = `in vec2 TexCoord;
out vec4 FragColor;
uniform sampler2D renderedTexture;
uniform sampler2D blurTexture;
void main() {
    FragColor = texture(renderedTexture, TexCoord) + texture(blurTexture, TexCoord);
}
`
	rec := gltrace.New(640, 480)
	p, err := New(rec, Options{Sources: &src, Width: 640, Height: 480, Logger: quietLogger, Now: fixedNow})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Destroy()

	drawFrame(t, p)
	if rec.IgnoredUniforms != 0 {
		t.Errorf("IgnoredUniforms = %d, want 0", rec.IgnoredUniforms)
	}
	if _, ok := rec.Draws[len(rec.Draws)-1].Uniforms["time"]; ok {
		t.Error("time uniform set on a program without it")
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	rec := gltrace.New(800, 600)
	p, err := New(rec, Options{Width: 800, Height: 600, Logger: quietLogger})
	if err != nil {
		t.Fatal(err)
	}
	drawFrame(t, p)

	p.Destroy()
	if live := rec.Live(); live != (gltrace.Counts{}) {
		t.Errorf("live objects after Destroy: %+v", live)
	}
	p.Destroy()

	if err := p.Draw(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Draw after Destroy = %v, want ErrNotReady", err)
	}
	if err := p.Resize(100, 100); !errors.Is(err, ErrNotReady) {
		t.Errorf("Resize after Destroy = %v, want ErrNotReady", err)
	}
}

func TestResizeFailure(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 800, 600)

	rec.FramebufferStatus = func(fb *gltrace.Framebuffer) uint32 {
		if fb.Color == p.BlurBaseTarget().Texture() {
			return gl.FramebufferUnsupported
		}
		return gl.FramebufferComplete
	}
	err := p.Resize(1600, 1200)
	var resErr *render.ResourceError
	if !errors.As(err, &resErr) {
		t.Fatalf("Resize error = %v, want ResourceError", err)
	}
	if resErr.Target != "blur.base" || resErr.Status != gl.FramebufferUnsupported {
		t.Errorf("error = %+v", resErr)
	}
	if p.Ready() {
		t.Error("pipeline ready after failed resize")
	}
	if err := p.BeginFrame(); !errors.Is(err, ErrNotReady) {
		t.Errorf("BeginFrame = %v, want ErrNotReady", err)
	}
	if err := p.Draw(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Draw = %v, want ErrNotReady", err)
	}

	rec.FramebufferStatus = nil
	if err := p.Resize(1600, 1200); err != nil {
		t.Fatalf("Resize after recovery: %v", err)
	}
	drawFrame(t, p)
}

func TestInitResourceFailure(t *testing.T) {
	rec := gltrace.New(800, 600)
	rec.FramebufferStatus = func(*gltrace.Framebuffer) uint32 { return gl.FramebufferIncompleteAttachment }

	p, err := New(rec, Options{Width: 800, Height: 600, Logger: quietLogger})
	if p != nil {
		t.Fatal("expected nil pipeline")
	}
	var initErr *PipelineInitError
	var resErr *render.ResourceError
	if !errors.As(err, &initErr) || !errors.As(err, &resErr) {
		t.Fatalf("error = %v, want PipelineInitError wrapping ResourceError", err)
	}
	if resErr.Target != "scene" {
		t.Errorf("failed target = %q, want scene", resErr.Target)
	}
	if live := rec.Live(); live != (gltrace.Counts{}) {
		t.Errorf("leaked objects: %+v", live)
	}
}

func TestInvalidSurfaceSize(t *testing.T) {
	p, err := New(gltrace.New(1, 1), Options{Width: 0, Height: 600, Logger: quietLogger})
	if p != nil || !errors.Is(err, render.ErrInvalidTargetSize) {
		t.Errorf("New = %v, %v", p, err)
	}
}

func TestBeginFrameClearsScene(t *testing.T) {
	cfg := Config{ClearColor: []float32{0.1, 0.2, 0.3, 1}}
	rec, p := newTestPipeline(t, cfg, 640, 480)
	rec.ResetLog()

	if err := p.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if b := rec.Bindings(); b.Framebuffer != p.SceneTarget().Framebuffer() || b.Viewport != [4]int32{0, 0, 640, 480} {
		t.Errorf("bindings after BeginFrame = %+v", b)
	}
	if len(rec.Clears) != 1 {
		t.Fatalf("clears = %d, want 1", len(rec.Clears))
	}
	c := rec.Clears[0]
	if c.Target != p.SceneTarget().Texture() || c.Color != [4]float32{0.1, 0.2, 0.3, 1} {
		t.Errorf("clear = %+v", c)
	}
}

func TestFrameKeepsCallerClearColor(t *testing.T) {
	rec := gltrace.New(640, 480)
	rec.ClearColor(0.25, 0.5, 0.75, 1)
	cfg := Config{ClearColor: []float32{0.1, 0.2, 0.3, 1}}
	p, err := New(rec, Options{Config: cfg, Width: 640, Height: 480, Logger: quietLogger, Now: fixedNow})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Destroy()

	want := [4]float32{0.25, 0.5, 0.75, 1}
	if err := p.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if got := rec.Bindings().ClearColor; got != want {
		t.Errorf("clear colour after BeginFrame = %v, want %v", got, want)
	}
	if err := p.Draw(); err != nil {
		t.Fatal(err)
	}
	if got := rec.Bindings().ClearColor; got != want {
		t.Errorf("clear colour after Draw = %v, want %v", got, want)
	}

	// The scene still clears to the configured colour.
	last := rec.Clears[len(rec.Clears)-1]
	if last.Target != p.SceneTarget().Texture() || last.Color != [4]float32{0.1, 0.2, 0.3, 1} {
		t.Errorf("scene clear = %+v", last)
	}
}

type fakeProducer struct {
	framebuffer   uint32
	width, height int
	err           error
}

func (f *fakeProducer) RenderScene(rc *render.Context, width, height int) error {
	f.framebuffer = rc.State().Framebuffer
	f.width, f.height = width, height
	return f.err
}

func TestRenderFrame(t *testing.T) {
	rec, p := newTestPipeline(t, Config{}, 640, 480)

	prod := &fakeProducer{}
	if err := p.RenderFrame(prod); err != nil {
		t.Fatal(err)
	}
	if prod.framebuffer != p.SceneTarget().Framebuffer() || prod.width != 640 || prod.height != 480 {
		t.Errorf("producer saw %+v", prod)
	}
	if p.Frame() != 1 {
		t.Errorf("Frame = %d, want 1", p.Frame())
	}

	prod.err = errors.New("glyph cache exhausted")
	if err := p.RenderFrame(prod); !errors.Is(err, prod.err) {
		t.Errorf("RenderFrame error = %v", err)
	}
	if p.Frame() != 1 {
		t.Error("Draw ran after producer failure")
	}
	if b := rec.Bindings(); b.Framebuffer != 0 {
		t.Errorf("framebuffer %d left bound after producer failure", b.Framebuffer)
	}
}

func TestTimeValue(t *testing.T) {
	s := &CompositeStage{periodMs: 100}
	tests := []struct {
		ms   int64
		want float32
	}{
		{0, 0},
		{99, 99},
		{100, 0},
		{1_700_000_000_067, 67},
		{-1, 99},
	}
	for _, tt := range tests {
		if got := s.TimeValue(tt.ms); got != tt.want {
			t.Errorf("TimeValue(%d) = %v, want %v", tt.ms, got, tt.want)
		}
	}
}
