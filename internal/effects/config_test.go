package effects

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.DownsampleFactor != 32 || c.BlurIterations != 4 || c.TimePeriodMillis != 100 {
		t.Errorf("defaults = %+v", c)
	}
	if c.SceneFilter != "nearest" || c.BlurFilter != "linear" {
		t.Errorf("filters = %s/%s", c.SceneFilter, c.BlurFilter)
	}
	if c.Composite != CompositeCRT || c.GLSLVersion != DefaultGLSLVersion {
		t.Errorf("composite = %q, version = %q", c.Composite, c.GLSLVersion)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestParseConfig(t *testing.T) {
	yamlContent := `downsampleFactor: 16
blurIterations: 3
allowHorizontalFinish: true
blurFilter: nearest
timePeriodMillis: 250
clearColor: [0.1, 0.1, 0.2, 1]
composite: bloom
`
	c, err := ParseConfig([]byte(yamlContent))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if c.DownsampleFactor != 16 {
		t.Errorf("DownsampleFactor = %d, want 16", c.DownsampleFactor)
	}
	if c.BlurIterations != 3 || !c.AllowHorizontalFinish {
		t.Errorf("BlurIterations = %d, AllowHorizontalFinish = %v", c.BlurIterations, c.AllowHorizontalFinish)
	}
	if c.BlurFilter != "nearest" || c.SceneFilter != "nearest" {
		t.Errorf("filters = %s/%s", c.SceneFilter, c.BlurFilter)
	}
	if c.TimePeriodMillis != 250 {
		t.Errorf("TimePeriodMillis = %d, want 250", c.TimePeriodMillis)
	}
	if len(c.ClearColor) != 4 || c.ClearColor[2] != 0.2 {
		t.Errorf("ClearColor = %v", c.ClearColor)
	}
	if c.Composite != CompositeBloom {
		t.Errorf("Composite = %q, want bloom", c.Composite)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"factor", func(c *Config) { c.DownsampleFactor = -2 }, "downsampleFactor"},
		{"iterations", func(c *Config) { c.BlurIterations = -1 }, "blurIterations"},
		{"odd iterations", func(c *Config) { c.BlurIterations = 5 }, "allowHorizontalFinish"},
		{"scene filter", func(c *Config) { c.SceneFilter = "cubic" }, "sceneFilter"},
		{"blur filter", func(c *Config) { c.BlurFilter = "mipmap" }, "blurFilter"},
		{"period", func(c *Config) { c.TimePeriodMillis = -5 }, "timePeriodMillis"},
		{"clear color", func(c *Config) { c.ClearColor = []float32{1, 1} }, "clearColor"},
		{"composite", func(c *Config) { c.Composite = "vhs" }, "composite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestParseConfigErrors(t *testing.T) {
	if _, err := ParseConfig([]byte("blurIterations: [1, 2]\n")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := ParseConfig([]byte("blurIterations: 3\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("odd iterations error = %v", err)
	}
}

func TestBuiltinSources(t *testing.T) {
	uniforms := map[string][]string{
		"downsample": {"renderedTexture", "blur_scale"},
		"blur":       {"renderedTexture", "horizontal"},
		"composite":  {"renderedTexture", "blurTexture", "time"},
	}
	for _, variant := range []string{CompositeCRT, CompositeBloom} {
		src, err := BuiltinSources(variant)
		if err != nil {
			t.Fatalf("BuiltinSources(%q): %v", variant, err)
		}
		if !strings.Contains(src.Vertex, "layout(location = 0)") || !strings.Contains(src.Vertex, "layout(location = 1)") {
			t.Error("vertex shader does not bind attributes 0 and 1")
		}
		stages := map[string]string{"downsample": src.Downsample, "blur": src.Blur, "composite": src.Composite}
		for stage, names := range uniforms {
			for _, name := range names {
				if !strings.Contains(stages[stage], " "+name+";") {
					t.Errorf("%s/%s shader lacks uniform %s", variant, stage, name)
				}
			}
			if strings.Contains(stages[stage], "#version") {
				t.Errorf("%s shader carries its own version header", stage)
			}
		}
	}

	crt, _ := BuiltinSources(CompositeCRT)
	bloom, _ := BuiltinSources(CompositeBloom)
	if crt.Composite == bloom.Composite {
		t.Error("composite variants are identical")
	}
	if _, err := BuiltinSources("vhs"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown variant error = %v", err)
	}
}

func TestLoadConfigShaderOverrides(t *testing.T) {
	dir := t.TempDir()
	shaderDir := filepath.Join(dir, "glsl")
	if err := os.MkdirAll(shaderDir, 0o755); err != nil {
		t.Fatal(err)
	}
	custom := "uniform sampler2D renderedTexture;\nvoid main() {}\n"
	if err := os.WriteFile(filepath.Join(shaderDir, "amber.frag"), []byte(custom), 0o644); err != nil {
		t.Fatalf("failed to write shader: %v", err)
	}
	cfgPath := filepath.Join(dir, "effects.yaml")
	if err := os.WriteFile(cfgPath, []byte("composite: amber\nshaders:\n  composite: glsl/amber.frag\n"), 0o644); err != nil {
		t.Fatalf("failed to write yaml: %v", err)
	}

	c, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if want := filepath.Join(shaderDir, "amber.frag"); c.Shaders.Composite != want {
		t.Errorf("Shaders.Composite = %q, want %q", c.Shaders.Composite, want)
	}

	src, err := c.LoadSources()
	if err != nil {
		t.Fatalf("LoadSources failed: %v", err)
	}
	if src.Composite != custom {
		t.Errorf("composite source not overridden: %q", src.Composite)
	}
	builtins, _ := BuiltinSources(CompositeCRT)
	if src.Blur != builtins.Blur {
		t.Error("blur source changed without an override")
	}

	c.Shaders.Blur = filepath.Join(dir, "missing.frag")
	if _, err := c.LoadSources(); err == nil {
		t.Error("expected error for missing override")
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
