package gl

import (
	"fmt"

	"github.com/ebitengine/purego"
)

const (
	eglSurfaceType          = 0x3033
	eglPbufferBit           = 0x0001
	eglRenderableType       = 0x3040
	eglOpenGLBit            = 0x0008
	eglRedSize              = 0x3024
	eglGreenSize            = 0x3023
	eglBlueSize             = 0x3022
	eglAlphaSize            = 0x3021
	eglWidth                = 0x3057
	eglHeight               = 0x3056
	eglNone                 = 0x3038
	eglOpenGLAPI            = 0x30A2
	eglContextMajorVersion  = 0x3098
	eglContextMinorVersion  = 0x30FB
	eglContextOpenGLProfile = 0x30FD
	eglContextOpenGLCoreBit = 0x0001
	eglFalse                = 0
)

type eglFuncs struct {
	getDisplay           func(native uintptr) uintptr
	initialize           func(display uintptr, major, minor *int32) uint32
	bindAPI              func(api uint32) uint32
	chooseConfig         func(display uintptr, attribs *int32, configs *uintptr, size int32, count *int32) uint32
	createPbufferSurface func(display, config uintptr, attribs *int32) uintptr
	createContext        func(display, config, share uintptr, attribs *int32) uintptr
	makeCurrent          func(display, draw, read, context uintptr) uint32
	destroyContext       func(display, context uintptr) uint32
	destroySurface       func(display, surface uintptr) uint32
	terminate            func(display uintptr) uint32
	getError             func() int32
	getProcAddress       func(name string) uintptr
}

// Headless is an EGL context whose default framebuffer is a pbuffer of a fixed
// size. It must be used from the OS thread that created it.
type Headless struct {
	egl     eglFuncs
	lib     uintptr
	display uintptr
	surface uintptr
	context uintptr
	width   int
	height  int
}

// NewHeadless creates an OpenGL 3.3 core context on the default EGL display
// and makes it current on the calling thread.
func NewHeadless(width, height int) (*Headless, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("egl: invalid surface size %dx%d", width, height)
	}
	lib, err := purego.Dlopen("libEGL.so.1", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("egl: open libEGL.so.1: %w", err)
	}

	h := &Headless{lib: lib, width: width, height: height}
	for _, e := range []struct {
		fptr any
		name string
	}{
		{&h.egl.getDisplay, "eglGetDisplay"},
		{&h.egl.initialize, "eglInitialize"},
		{&h.egl.bindAPI, "eglBindAPI"},
		{&h.egl.chooseConfig, "eglChooseConfig"},
		{&h.egl.createPbufferSurface, "eglCreatePbufferSurface"},
		{&h.egl.createContext, "eglCreateContext"},
		{&h.egl.makeCurrent, "eglMakeCurrent"},
		{&h.egl.destroyContext, "eglDestroyContext"},
		{&h.egl.destroySurface, "eglDestroySurface"},
		{&h.egl.terminate, "eglTerminate"},
		{&h.egl.getError, "eglGetError"},
		{&h.egl.getProcAddress, "eglGetProcAddress"},
	} {
		purego.RegisterLibFunc(e.fptr, lib, e.name)
	}

	h.display = h.egl.getDisplay(0)
	if h.display == 0 {
		return nil, fmt.Errorf("egl: no default display")
	}
	var major, minor int32
	if h.egl.initialize(h.display, &major, &minor) == eglFalse {
		return nil, h.fail("initialize")
	}
	if h.egl.bindAPI(eglOpenGLAPI) == eglFalse {
		return nil, h.fail("bind OpenGL API")
	}

	configAttribs := []int32{
		eglSurfaceType, eglPbufferBit,
		eglRenderableType, eglOpenGLBit,
		eglRedSize, 8, eglGreenSize, 8, eglBlueSize, 8, eglAlphaSize, 8,
		eglNone,
	}
	var config uintptr
	var count int32
	if h.egl.chooseConfig(h.display, &configAttribs[0], &config, 1, &count) == eglFalse || count == 0 {
		return nil, h.fail("choose config")
	}

	surfaceAttribs := []int32{eglWidth, int32(width), eglHeight, int32(height), eglNone}
	h.surface = h.egl.createPbufferSurface(h.display, config, &surfaceAttribs[0])
	if h.surface == 0 {
		return nil, h.fail("create pbuffer surface")
	}

	contextAttribs := []int32{
		eglContextMajorVersion, 3,
		eglContextMinorVersion, 3,
		eglContextOpenGLProfile, eglContextOpenGLCoreBit,
		eglNone,
	}
	h.context = h.egl.createContext(h.display, config, 0, &contextAttribs[0])
	if h.context == 0 {
		return nil, h.fail("create context")
	}
	if h.egl.makeCurrent(h.display, h.surface, h.surface, h.context) == eglFalse {
		return nil, h.fail("make current")
	}
	return h, nil
}

// fail captures the EGL error and releases whatever was created so far.
func (h *Headless) fail(op string) error {
	code := h.egl.getError()
	h.Close()
	return fmt.Errorf("egl: %s failed: 0x%X", op, code)
}

// Size returns the pbuffer dimensions.
func (h *Headless) Size() (width, height int) { return h.width, h.height }

// ProcAddress resolves GL entry points for Load.
func (h *Headless) ProcAddress(name string) uintptr {
	return h.egl.getProcAddress(name)
}

func (h *Headless) Close() {
	if h.display == 0 {
		return
	}
	h.egl.makeCurrent(h.display, 0, 0, 0)
	if h.context != 0 {
		h.egl.destroyContext(h.display, h.context)
		h.context = 0
	}
	if h.surface != 0 {
		h.egl.destroySurface(h.display, h.surface)
		h.surface = 0
	}
	h.egl.terminate(h.display)
	h.display = 0
}
