package main

import (
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unsafe"

	"github.com/tinyrange/crtglow/internal/cast"
	"github.com/tinyrange/crtglow/internal/effects"
	"github.com/tinyrange/crtglow/internal/gl"
	"github.com/tinyrange/crtglow/internal/scene"
	"github.com/tinyrange/crtglow/internal/timeslice"
)

var (
	tsEventFeed = timeslice.RegisterKind("replay::event_feed", 0)
	tsFrame     = timeslice.RegisterKind("replay::frame", 0)
)

// surfaceResize is a surface size change applied once replay time reaches At.
type surfaceResize struct {
	Width, Height int
	At            float64
}

// parseResize parses WIDTHxHEIGHT@SECONDS.
func parseResize(s string) (surfaceResize, error) {
	size, at, ok := strings.Cut(s, "@")
	if !ok {
		return surfaceResize{}, fmt.Errorf("resize %q: want WIDTHxHEIGHT@SECONDS", s)
	}
	w, h, ok := strings.Cut(size, "x")
	if !ok {
		return surfaceResize{}, fmt.Errorf("resize %q: want WIDTHxHEIGHT@SECONDS", s)
	}
	var r surfaceResize
	var err error
	if r.Width, err = strconv.Atoi(w); err != nil {
		return surfaceResize{}, fmt.Errorf("resize %q: width: %w", s, err)
	}
	if r.Height, err = strconv.Atoi(h); err != nil {
		return surfaceResize{}, fmt.Errorf("resize %q: height: %w", s, err)
	}
	if r.At, err = strconv.ParseFloat(at, 64); err != nil {
		return surfaceResize{}, fmt.Errorf("resize %q: time: %w", s, err)
	}
	if r.Width <= 0 || r.Height <= 0 || r.At < 0 {
		return surfaceResize{}, fmt.Errorf("resize %q: size and time must be positive", s)
	}
	return r, nil
}

// frameClock is the replay's virtual clock. Frames are rendered as fast as
// possible, but the composite time uniform advances by one frame interval per
// frame so output does not depend on host speed.
type frameClock struct {
	base time.Time
	t    float64
}

func (c *frameClock) Now() time.Time {
	return c.base.Add(time.Duration(c.t * float64(time.Second)))
}

type replayOptions struct {
	FPS       float64
	Fast      bool
	MaxFrames int
	Resize    *surfaceResize
	// OnFrame is called after every rendered frame.
	OnFrame func(frame int)
}

type replayer struct {
	pipe     *effects.Pipeline
	producer *scene.Producer
	player   *cast.Player
	clock    *frameClock
	opts     replayOptions
	log      *slog.Logger

	times  phaseTimes
	frames int
}

func (r *replayer) run() error {
	fps := r.opts.FPS
	if fps <= 0 {
		fps = 30
	}
	pending := r.opts.Resize
	term := r.producer.Terminal()
	rec := timeslice.NewState()

	for frame := 0; r.opts.MaxFrames <= 0 || frame < r.opts.MaxFrames; frame++ {
		r.clock.t = float64(frame) / fps

		if pending != nil && r.clock.t >= pending.At {
			r.log.Info("resizing surface", "width", pending.Width, "height", pending.Height, "at", pending.At)
			if err := r.pipe.Resize(pending.Width, pending.Height); err != nil {
				return fmt.Errorf("resize surface: %w", err)
			}
			pending = nil
		}

		frameStart := time.Now()
		rec.Mark()
		if r.opts.Fast {
			if !r.player.Done() {
				if err := r.player.Step(term); err != nil {
					return err
				}
			}
		} else if _, err := r.player.AdvanceTo(r.clock.t, term); err != nil {
			return err
		}
		rec.Record(tsEventFeed)
		lap := time.Now()
		r.times.add(phaseFeed, lap.Sub(frameStart))

		if err := r.renderFrame(&lap); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		r.times.add(phaseFrame, time.Since(frameStart))
		rec.Record(tsFrame)
		r.frames++

		if r.opts.OnFrame != nil {
			r.opts.OnFrame(frame)
		}
		if r.player.Done() && pending == nil {
			break
		}
	}
	return nil
}

// renderFrame draws the scene and runs the effect chain, timing each from
// *lap.
func (r *replayer) renderFrame(lap *time.Time) error {
	if err := r.pipe.BeginFrame(); err != nil {
		return err
	}
	width, height := r.pipe.Size()
	if err := r.producer.RenderScene(r.pipe.Context(), width, height); err != nil {
		r.pipe.Context().Reset(width, height)
		return fmt.Errorf("render scene: %w", err)
	}
	r.lap(phaseScene, lap)

	if err := r.pipe.Draw(); err != nil {
		return err
	}
	r.lap(phaseEffects, lap)
	return nil
}

func (r *replayer) lap(p phase, since *time.Time) {
	now := time.Now()
	r.times.add(p, now.Sub(*since))
	*since = now
}

// readFrame reads the default framebuffer into an image with row 0 at the
// top.
func readFrame(api gl.OpenGL, width, height int) *image.RGBA {
	buf := make([]byte, width*height*4)
	api.BindFramebuffer(gl.Framebuffer, 0)
	api.Finish()
	api.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UnsignedByte, unsafe.Pointer(&buf[0]))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	stride := width * 4
	for y := 0; y < height; y++ {
		src := buf[(height-1-y)*stride : (height-y)*stride]
		copy(img.Pix[y*img.Stride:], src)
	}
	return img
}
