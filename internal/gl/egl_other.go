//go:build !linux

package gl

import (
	"errors"
	"runtime"
)

// Headless is only available through EGL on linux.
type Headless struct{}

func NewHeadless(width, height int) (*Headless, error) {
	return nil, errors.New("egl: headless contexts are not supported on " + runtime.GOOS)
}

func (h *Headless) Size() (width, height int) { return 0, 0 }

func (h *Headless) ProcAddress(name string) uintptr { return 0 }

func (h *Headless) Close() {}
