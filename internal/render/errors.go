package render

import (
	"errors"
	"fmt"

	"github.com/tinyrange/crtglow/internal/gl"
)

var (
	ErrShaderCompile         = errors.New("shader compilation failed")
	ErrFramebufferIncomplete = errors.New("framebuffer incomplete")
	ErrInvalidTargetSize     = errors.New("invalid render target size")
)

// ShaderCompileError reports a failed compile or link. Phase is "vertex",
// "fragment" or "link".
type ShaderCompileError struct {
	Program string
	Phase   string
	Log     string
}

func (e *ShaderCompileError) Error() string {
	if e.Phase == "link" {
		return fmt.Sprintf("%s: program linking failed: %s", e.Program, e.Log)
	}
	return fmt.Sprintf("%s: %s shader compilation failed: %s", e.Program, e.Phase, e.Log)
}

func (e *ShaderCompileError) Unwrap() error { return ErrShaderCompile }

// ResourceError reports a render target that could not be (re)allocated.
type ResourceError struct {
	Target string
	Width  int
	Height int
	Status uint32
	Err    error
}

func (e *ResourceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("render target %s (%dx%d): %v: status 0x%X (%s)",
			e.Target, e.Width, e.Height, e.Err, e.Status, gl.FramebufferStatusString(e.Status))
	}
	return fmt.Sprintf("render target %s (%dx%d): %v", e.Target, e.Width, e.Height, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
