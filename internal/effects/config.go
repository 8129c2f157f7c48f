package effects

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tinyrange/crtglow/internal/render"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDownsampleFactor = 32
	DefaultBlurIterations   = 4
	DefaultTimePeriodMillis = 100
	DefaultGLSLVersion      = "330 core"

	CompositeCRT   = "crt"
	CompositeBloom = "bloom"
)

var ErrInvalidConfig = errors.New("invalid effect config")

// Config describes the effect pipeline. Zero fields take their defaults.
type Config struct {
	DownsampleFactor int `yaml:"downsampleFactor,omitempty"`
	BlurIterations   int `yaml:"blurIterations,omitempty"`
	// AllowHorizontalFinish permits an odd iteration count, so the final
	// blur pass runs horizontally.
	AllowHorizontalFinish bool `yaml:"allowHorizontalFinish,omitempty"`

	SceneFilter string `yaml:"sceneFilter,omitempty"`
	BlurFilter  string `yaml:"blurFilter,omitempty"`

	TimePeriodMillis int64     `yaml:"timePeriodMillis,omitempty"`
	ClearColor       []float32 `yaml:"clearColor,omitempty"`
	GLSLVersion      string    `yaml:"glslVersion,omitempty"`
	Composite        string    `yaml:"composite,omitempty"`

	Shaders ShaderPaths `yaml:"shaders,omitempty"`
}

// ShaderPaths override the built-in shader sources. Relative paths are
// resolved against the config file's directory.
type ShaderPaths struct {
	Vertex     string `yaml:"vertex,omitempty"`
	Downsample string `yaml:"downsample,omitempty"`
	Blur       string `yaml:"blur,omitempty"`
	Composite  string `yaml:"composite,omitempty"`
}

func DefaultConfig() Config {
	var c Config
	c.normalize()
	return c
}

func (c *Config) normalize() {
	if c.DownsampleFactor == 0 {
		c.DownsampleFactor = DefaultDownsampleFactor
	}
	if c.BlurIterations == 0 {
		c.BlurIterations = DefaultBlurIterations
	}
	if c.SceneFilter == "" {
		c.SceneFilter = render.FilterNearest.String()
	}
	if c.BlurFilter == "" {
		c.BlurFilter = render.FilterLinear.String()
	}
	if c.TimePeriodMillis == 0 {
		c.TimePeriodMillis = DefaultTimePeriodMillis
	}
	if len(c.ClearColor) == 0 {
		c.ClearColor = []float32{0, 0, 0, 1}
	}
	if c.GLSLVersion == "" {
		c.GLSLVersion = DefaultGLSLVersion
	}
	if c.Composite == "" {
		c.Composite = CompositeCRT
	}
}

func (c Config) Validate() error {
	if c.DownsampleFactor < 1 {
		return fmt.Errorf("%w: downsampleFactor must be >= 1, got %d", ErrInvalidConfig, c.DownsampleFactor)
	}
	if c.BlurIterations < 1 {
		return fmt.Errorf("%w: blurIterations must be >= 1, got %d", ErrInvalidConfig, c.BlurIterations)
	}
	if c.BlurIterations%2 != 0 && !c.AllowHorizontalFinish {
		return fmt.Errorf("%w: blurIterations %d is odd; set allowHorizontalFinish to end on a horizontal pass",
			ErrInvalidConfig, c.BlurIterations)
	}
	if _, err := render.ParseFilter(c.SceneFilter); err != nil {
		return fmt.Errorf("%w: sceneFilter: %v", ErrInvalidConfig, err)
	}
	if _, err := render.ParseFilter(c.BlurFilter); err != nil {
		return fmt.Errorf("%w: blurFilter: %v", ErrInvalidConfig, err)
	}
	if c.TimePeriodMillis < 1 {
		return fmt.Errorf("%w: timePeriodMillis must be >= 1, got %d", ErrInvalidConfig, c.TimePeriodMillis)
	}
	if len(c.ClearColor) != 4 {
		return fmt.Errorf("%w: clearColor needs 4 components, got %d", ErrInvalidConfig, len(c.ClearColor))
	}
	if c.Composite != CompositeCRT && c.Composite != CompositeBloom && c.Shaders.Composite == "" {
		return fmt.Errorf("%w: unknown composite %q", ErrInvalidConfig, c.Composite)
	}
	return nil
}

// ParseConfig decodes YAML, applies defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse effect config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads a YAML config file. Shader override paths in the file are
// made absolute relative to its directory.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read effect config: %w", err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for _, p := range []*string{&c.Shaders.Vertex, &c.Shaders.Downsample, &c.Shaders.Blur, &c.Shaders.Composite} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
	return c, nil
}

//go:embed shaders/*.glsl
var shaderFS embed.FS

// Sources holds the GLSL for every stage. The version header is added at
// compile time.
type Sources struct {
	Vertex     string
	Downsample string
	Blur       string
	Composite  string
}

func builtin(name string) string {
	data, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		panic(fmt.Sprintf("effects: missing built-in shader %s", name))
	}
	return string(data)
}

// BuiltinSources returns the embedded shaders with the named composite
// variant.
func BuiltinSources(composite string) (Sources, error) {
	src := Sources{
		Vertex:     builtin("effect.vert.glsl"),
		Downsample: builtin("downsample.frag.glsl"),
		Blur:       builtin("blur.frag.glsl"),
	}
	switch composite {
	case CompositeCRT, "":
		src.Composite = builtin("composite_crt.frag.glsl")
	case CompositeBloom:
		src.Composite = builtin("composite_bloom.frag.glsl")
	default:
		return Sources{}, fmt.Errorf("%w: unknown composite %q", ErrInvalidConfig, composite)
	}
	return src, nil
}

// LoadSources resolves the shader sources for c: built-ins overlaid with any
// override files.
func (c Config) LoadSources() (Sources, error) {
	composite := c.Composite
	if c.Shaders.Composite != "" {
		composite = CompositeCRT
	}
	src, err := BuiltinSources(composite)
	if err != nil {
		return Sources{}, err
	}

	overrides := []struct {
		path string
		dst  *string
	}{
		{c.Shaders.Vertex, &src.Vertex},
		{c.Shaders.Downsample, &src.Downsample},
		{c.Shaders.Blur, &src.Blur},
		{c.Shaders.Composite, &src.Composite},
	}
	for _, o := range overrides {
		if o.path == "" {
			continue
		}
		data, err := os.ReadFile(o.path)
		if err != nil {
			return Sources{}, fmt.Errorf("read shader override: %w", err)
		}
		*o.dst = string(data)
	}
	return src, nil
}
