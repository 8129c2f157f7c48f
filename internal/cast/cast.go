// Package cast reads asciinema recordings (formats v2 and v3).
package cast

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	defaultCols = 80
	defaultRows = 24
)

// Event types written by asciinema.
const (
	EventOutput = "o"
	EventInput  = "i"
	EventResize = "r"
	EventMarker = "m"
)

var ErrEmpty = errors.New("empty cast file")

type Header struct {
	Version   int               `json:"version"`
	Term      Term              `json:"term"`
	Width     int               `json:"width,omitempty"`
	Height    int               `json:"height,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Term is the v3 terminal description.
type Term struct {
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
	Type string `json:"type,omitempty"`
}

// Cols returns the recorded width, defaulting to 80.
func (h *Header) Cols() int {
	switch {
	case h.Term.Cols > 0:
		return h.Term.Cols
	case h.Width > 0:
		return h.Width
	}
	return defaultCols
}

// Rows returns the recorded height, defaulting to 24.
func (h *Header) Rows() int {
	switch {
	case h.Term.Rows > 0:
		return h.Term.Rows
	case h.Height > 0:
		return h.Height
	}
	return defaultRows
}

// Event is one recorded event. Time is seconds from the start of the
// recording.
type Event struct {
	Time float64
	Type string
	Data string
}

// Events are stored as arrays: [time, type, data].
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) < 3 {
		return fmt.Errorf("event array too short: %d elements", len(arr))
	}
	if err := json.Unmarshal(arr[0], &e.Time); err != nil {
		return fmt.Errorf("parse event time: %w", err)
	}
	if err := json.Unmarshal(arr[1], &e.Type); err != nil {
		return fmt.Errorf("parse event type: %w", err)
	}
	if err := json.Unmarshal(arr[2], &e.Data); err != nil {
		return fmt.Errorf("parse event data: %w", err)
	}
	return nil
}

// Size parses the "COLSxROWS" payload of a resize event.
func (e Event) Size() (cols, rows int, err error) {
	if e.Type != EventResize {
		return 0, 0, fmt.Errorf("event type %q is not a resize", e.Type)
	}
	c, r, ok := strings.Cut(e.Data, "x")
	if !ok {
		return 0, 0, fmt.Errorf("malformed resize %q", e.Data)
	}
	if cols, err = strconv.Atoi(c); err != nil {
		return 0, 0, fmt.Errorf("malformed resize %q: %w", e.Data, err)
	}
	if rows, err = strconv.Atoi(r); err != nil {
		return 0, 0, fmt.Errorf("malformed resize %q: %w", e.Data, err)
	}
	if cols < 1 || rows < 1 {
		return 0, 0, fmt.Errorf("malformed resize %q", e.Data)
	}
	return cols, rows, nil
}

type Recording struct {
	Header Header
	Events []Event
}

// Duration is the time of the last event.
func (r *Recording) Duration() float64 {
	if len(r.Events) == 0 {
		return 0
	}
	return r.Events[len(r.Events)-1].Time
}

// Parse reads a recording. Version 3 event times are deltas from the
// previous event and are converted to absolute times.
func Parse(r io.Reader) (*Recording, error) {
	scanner := bufio.NewScanner(r)
	// Output events can carry very long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, ErrEmpty
	}

	rec := &Recording{}
	if err := json.Unmarshal(scanner.Bytes(), &rec.Header); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	switch rec.Header.Version {
	case 2, 3:
	default:
		return nil, fmt.Errorf("unsupported cast version %d", rec.Header.Version)
	}
	relative := rec.Header.Version >= 3

	var clock float64
	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("parse event at line %d: %w", lineNum, err)
		}
		if relative {
			clock += ev.Time
			ev.Time = clock
		}
		rec.Events = append(rec.Events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cast file: %w", err)
	}
	return rec, nil
}

func ParseFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cast file: %w", err)
	}
	defer f.Close()

	rec, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}
