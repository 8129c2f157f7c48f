// Package timeslice records how long each rendering step takes into a compact
// binary log that can be summarised after a run.
package timeslice

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

const (
	Magic   uint32 = 0x47534c54 // "TLSG"
	Version uint32 = 1

	pageSize = 4096
)

var ErrAlreadyOpen = errors.New("timeslice: recording already open")

type header struct {
	Magic      uint32
	Version    uint32
	KindsBytes uint32
}

// Kind identifies a registered step.
type Kind uint64

const InvalidKind = Kind(0)

type Flags uint32

const (
	// FlagPass marks a GPU pass of the effect pipeline.
	FlagPass Flags = 1 << iota
	// FlagUpload marks a CPU to GPU transfer.
	FlagUpload
	// FlagSetup marks one-off work such as shader compilation.
	FlagSetup
)

func (f Flags) String() string {
	var names []string
	if f&FlagPass != 0 {
		names = append(names, "pass")
	}
	if f&FlagUpload != 0 {
		names = append(names, "upload")
	}
	if f&FlagSetup != 0 {
		names = append(names, "setup")
	}
	return strings.Join(names, ",")
}

type KindInfo struct {
	Name  string
	Flags Flags
}

var kinds = make(map[Kind]KindInfo)

// RegisterKind adds a step kind. Call it from package initialisation only.
func RegisterKind(name string, flags Flags) Kind {
	id := Kind(len(kinds) + 1)
	kinds[id] = KindInfo{Name: name, Flags: flags}
	return id
}

type record struct {
	Kind     Kind
	Duration int64
}

var recordSize = binary.Size(record{})

type sink struct {
	w       io.Writer
	records chan record
	done    chan error
}

func (s *sink) run() {
	defer close(s.done)

	var buf [pageSize]byte
	n := 0
	for rec := range s.records {
		if n+recordSize > len(buf) {
			if _, err := s.w.Write(buf[:n]); err != nil {
				s.done <- err
				// Drain so Record never blocks on a dead sink.
				for range s.records {
				}
				return
			}
			n = 0
		}
		binary.LittleEndian.PutUint64(buf[n:], uint64(rec.Kind))
		binary.LittleEndian.PutUint64(buf[n+8:], uint64(rec.Duration))
		n += recordSize
	}
	if n > 0 {
		if _, err := s.w.Write(buf[:n]); err != nil {
			s.done <- err
			return
		}
	}
	s.done <- nil
}

func (s *sink) Close() error {
	if !active.CompareAndSwap(s, nil) {
		return fmt.Errorf("timeslice: already closed")
	}
	close(s.records)
	if err := <-s.done; err != nil {
		return fmt.Errorf("timeslice: write records: %w", err)
	}
	return nil
}

var active atomic.Pointer[sink]

// StartRecording writes the log header to w and routes Record calls to it
// until the returned closer is closed. Only one recording may be open.
func StartRecording(w io.Writer) (io.Closer, error) {
	if active.Load() != nil {
		return nil, ErrAlreadyOpen
	}

	table, err := json.Marshal(kinds)
	if err != nil {
		return nil, fmt.Errorf("timeslice: marshal kinds: %w", err)
	}

	hdr := header{Magic: Magic, Version: Version, KindsBytes: uint32(len(table))}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("timeslice: write header: %w", err)
	}
	if _, err := w.Write(table); err != nil {
		return nil, fmt.Errorf("timeslice: write kinds: %w", err)
	}
	if pad := padding(binary.Size(hdr) + len(table)); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return nil, fmt.Errorf("timeslice: write padding: %w", err)
		}
	}

	s := &sink{
		w:       w,
		records: make(chan record, pageSize),
		done:    make(chan error, 1),
	}
	if !active.CompareAndSwap(nil, s) {
		return nil, ErrAlreadyOpen
	}
	go s.run()
	return s, nil
}

func padding(off int) int {
	if off%pageSize == 0 {
		return 0
	}
	return pageSize - off%pageSize
}

// Record logs one step. It does nothing when no recording is open.
func Record(kind Kind, d time.Duration) {
	if s := active.Load(); s != nil {
		s.records <- record{Kind: kind, Duration: d.Nanoseconds()}
	}
}

// State measures consecutive steps on one goroutine: each Record call logs the
// time elapsed since the previous one.
type State struct {
	last time.Time
}

func NewState() *State {
	return &State{last: time.Now()}
}

func (s *State) Record(kind Kind) {
	now := time.Now()
	Record(kind, now.Sub(s.last))
	s.last = now
}

// Mark restarts the interval without logging anything.
func (s *State) Mark() { s.last = time.Now() }

// ReadAllRecords decodes a log written by StartRecording.
func ReadAllRecords(r io.Reader, fn func(name string, flags Flags, d time.Duration) error) error {
	buf := bufio.NewReaderSize(r, pageSize)

	var hdr header
	if err := binary.Read(buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("timeslice: read header: %w", err)
	}
	if hdr.Magic != Magic {
		return fmt.Errorf("timeslice: bad magic 0x%08X", hdr.Magic)
	}
	if hdr.Version != Version {
		return fmt.Errorf("timeslice: unsupported version %d", hdr.Version)
	}

	var table map[Kind]KindInfo
	if err := json.NewDecoder(io.LimitReader(buf, int64(hdr.KindsBytes))).Decode(&table); err != nil {
		return fmt.Errorf("timeslice: decode kinds: %w", err)
	}
	if _, err := buf.Discard(padding(binary.Size(hdr) + int(hdr.KindsBytes))); err != nil {
		return fmt.Errorf("timeslice: skip padding: %w", err)
	}

	for {
		var rec record
		if err := binary.Read(buf, binary.LittleEndian, &rec); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("timeslice: read record: %w", err)
		}
		info, ok := table[rec.Kind]
		if !ok {
			return fmt.Errorf("timeslice: unknown kind %d", rec.Kind)
		}
		if err := fn(info.Name, info.Flags, time.Duration(rec.Duration)); err != nil {
			return err
		}
	}
}

// Summary aggregates the records of one kind.
type Summary struct {
	Name  string
	Flags Flags
	Count int
	Total time.Duration
	Max   time.Duration
}

func (s Summary) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Summarize reads a log and returns per-kind totals ordered by total time,
// largest first.
func Summarize(r io.Reader) ([]Summary, error) {
	byName := make(map[string]*Summary)
	err := ReadAllRecords(r, func(name string, flags Flags, d time.Duration) error {
		s, ok := byName[name]
		if !ok {
			s = &Summary{Name: name, Flags: flags}
			byName[name] = s
		}
		s.Count++
		s.Total += d
		s.Max = max(s.Max, d)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
