// Command crtglow replays an asciinema recording through a terminal emulator
// and the CRT glow effect pipeline on an offscreen OpenGL context, then writes
// the final frame as a PNG.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/crtglow/internal/cast"
	"github.com/tinyrange/crtglow/internal/effects"
	"github.com/tinyrange/crtglow/internal/gl"
	"github.com/tinyrange/crtglow/internal/gl/gltrace"
	"github.com/tinyrange/crtglow/internal/scene"
	"github.com/tinyrange/crtglow/internal/timeslice"
)

func init() {
	// GL contexts are bound to the thread that made them current.
	runtime.LockOSThread()
}

type options struct {
	castPath      string
	configPath    string
	output        string
	width, height int
	fontSize      float64
	padding       int
	fit           bool
	fps           float64
	fast          bool
	frames        int
	resize        string
	trace         bool
	timeslicePath string
	force         bool
	verbose       bool
}

func main() {
	var o options
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&o.configPath, "config", "", "effect config (YAML)")
	fs.StringVar(&o.output, "o", "frame.png", "output PNG path, - for stdout")
	fs.IntVar(&o.width, "width", 0, "surface width (0 to fit the recording)")
	fs.IntVar(&o.height, "height", 0, "surface height (0 to fit the recording)")
	fs.Float64Var(&o.fontSize, "font-size", scene.DefaultFontSize, "font size in pixels")
	fs.IntVar(&o.padding, "padding", 20, "padding around the terminal in pixels")
	fs.BoolVar(&o.fit, "fit", false, "resize the terminal to fill the surface")
	fs.Float64Var(&o.fps, "fps", 30, "frames per second of recording time")
	fs.BoolVar(&o.fast, "fast", false, "feed one event per frame (ignore timestamps)")
	fs.IntVar(&o.frames, "frames", 0, "maximum number of frames to render (0 for all)")
	fs.StringVar(&o.resize, "resize", "", "resize the surface during replay, WIDTHxHEIGHT@SECONDS")
	fs.BoolVar(&o.trace, "trace", false, "render with the recording GL instead of EGL")
	fs.StringVar(&o.timeslicePath, "timeslice", "", "write per-pass timings to file and print a summary")
	fs.BoolVar(&o.force, "force", false, "write PNG data to stdout even if it is a terminal")
	fs.BoolVar(&o.verbose, "v", false, "verbose logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags] <cast-file>\n", os.Args[0])
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	o.castPath = fs.Arg(0)

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "crtglow: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	if o.output == "-" && !o.force && term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("refusing to write PNG data to a terminal; use -o or -force")
	}

	cfg := effects.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = effects.LoadConfig(o.configPath); err != nil {
			return err
		}
	}

	var resize *surfaceResize
	if o.resize != "" {
		r, err := parseResize(o.resize)
		if err != nil {
			return err
		}
		resize = &r
	}

	rec, err := cast.ParseFile(o.castPath)
	if err != nil {
		return err
	}
	cols, rows := rec.Header.Cols(), rec.Header.Rows()
	slog.Info("loaded recording", "path", o.castPath, "cols", cols, "rows", rows,
		"events", len(rec.Events), "duration", rec.Duration())

	width, height := o.width, o.height
	if width <= 0 || height <= 0 {
		cw, ch, err := measureCell(o.fontSize)
		if err != nil {
			return err
		}
		width, height = cols*cw+2*o.padding, rows*ch+2*o.padding
	}

	if o.timeslicePath != "" {
		f, err := os.Create(o.timeslicePath)
		if err != nil {
			return fmt.Errorf("create timeslice file: %w", err)
		}
		defer f.Close()
		closer, err := timeslice.StartRecording(f)
		if err != nil {
			return fmt.Errorf("start timeslice: %w", err)
		}
		defer func() {
			closer.Close()
			printSummary(o.timeslicePath)
		}()
	}

	// The pbuffer must hold the largest surface used during replay.
	surfW, surfH := width, height
	if resize != nil {
		surfW, surfH = max(surfW, resize.Width), max(surfH, resize.Height)
	}
	api, closeGL, err := openGL(o.trace, surfW, surfH)
	if err != nil {
		return err
	}
	defer closeGL()
	slog.Debug("opened GL", "renderer", api.GetString(gl.Renderer), "version", api.GetString(gl.Version))

	clock := &frameClock{base: time.Unix(0, 0)}
	pipe, err := effects.New(api, effects.Options{
		Config: cfg,
		Width:  width,
		Height: height,
		Now:    clock.Now,
	})
	if err != nil {
		return err
	}
	defer pipe.Destroy()

	terminal := scene.NewTerminal(cols, rows)
	defer terminal.Close()
	producer, err := scene.NewProducer(pipe.Context(), terminal, scene.ProducerOptions{
		FontSize:    o.fontSize,
		Padding:     o.padding,
		FitSurface:  o.fit,
		GLSLVersion: cfg.GLSLVersion,
	})
	if err != nil {
		return err
	}
	defer producer.Destroy()

	player := cast.NewPlayer(rec)
	r := &replayer{
		pipe:     pipe,
		producer: producer,
		player:   player,
		clock:    clock,
		log:      slog.Default(),
		opts: replayOptions{
			FPS:       o.fps,
			Fast:      o.fast,
			MaxFrames: o.frames,
			Resize:    resize,
		},
	}

	if !o.verbose && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.Default(int64(player.Len()), "replaying")
		defer bar.Close()
		r.opts.OnFrame = func(int) { bar.Set(player.Position()) }
	}

	if err := r.run(); err != nil {
		return err
	}

	fw, fh := pipe.Size()
	if err := writePNG(o.output, readFrame(api, fw, fh)); err != nil {
		return err
	}

	ps := producer.Stats()
	slog.Info("replay finished",
		"frames", r.frames, "events", player.Position(), "of", player.Len(),
		"uploads", ps.Uploads, "uploaded_rows", ps.UploadedRows,
		"dropped_reply_bytes", terminal.ReplyBytes())
	r.times.write(os.Stderr)
	return nil
}

func measureCell(size float64) (int, int, error) {
	r, err := scene.NewRasterizer(size)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()
	w, h := r.CellSize()
	return w, h, nil
}

// openGL returns the GL implementation and a function that releases it.
func openGL(trace bool, width, height int) (gl.OpenGL, func(), error) {
	if trace {
		return gltrace.New(width, height), func() {}, nil
	}
	h, err := gl.NewHeadless(width, height)
	if err != nil {
		return nil, nil, err
	}
	api, err := gl.Load(h.ProcAddress)
	if err != nil {
		h.Close()
		return nil, nil, err
	}
	return api, h.Close, nil
}

func writePNG(path string, img image.Image) error {
	if path == "-" {
		if err := png.Encode(os.Stdout, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

func printSummary(path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("read timeslice", "error", err)
		return
	}
	defer f.Close()

	summary, err := timeslice.Summarize(f)
	if err != nil {
		slog.Warn("read timeslice", "error", err)
		return
	}
	writeSummary(os.Stderr, summary)
}

func writeSummary(w io.Writer, summary []timeslice.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "kind\tflags\tcount\ttotal\tmean\tmax\t")
	for _, s := range summary {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%v\t%v\t%v\t\n", s.Name, s.Flags, s.Count,
			s.Total.Round(time.Microsecond), s.Mean().Round(time.Microsecond), s.Max.Round(time.Microsecond))
	}
	tw.Flush()
}
