//go:build !darwin && !linux

package gl

import (
	"errors"
	"runtime"
)

// ProcAddressFunc resolves a GL entry point by name, returning 0 when the
// driver does not export it.
type ProcAddressFunc func(name string) uintptr

var errUnsupported = errors.New("gl: native loading is not supported on " + runtime.GOOS)

func Load(ProcAddressFunc) (OpenGL, error) { return nil, errUnsupported }

func LoadSystem() (OpenGL, error) { return nil, errUnsupported }
