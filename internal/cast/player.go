package cast

import (
	"fmt"
	"io"
)

// Screen receives replayed output and resize events.
type Screen interface {
	io.Writer
	Resize(cols, rows int) bool
}

// Player replays a recording into a Screen, either by time or one event at a
// time. Input and marker events are skipped.
type Player struct {
	rec  *Recording
	next int
}

func NewPlayer(rec *Recording) *Player {
	return &Player{rec: rec}
}

func (p *Player) Done() bool { return p.next >= len(p.rec.Events) }

// Position is the number of events consumed so far.
func (p *Player) Position() int { return p.next }

func (p *Player) Len() int { return len(p.rec.Events) }

// AdvanceTo applies every event with a time at or before t and returns how
// many were applied.
func (p *Player) AdvanceTo(t float64, s Screen) (int, error) {
	n := 0
	for !p.Done() && p.rec.Events[p.next].Time <= t {
		if err := p.Step(s); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Step applies the next event.
func (p *Player) Step(s Screen) error {
	if p.Done() {
		return io.EOF
	}
	ev := p.rec.Events[p.next]
	p.next++

	switch ev.Type {
	case EventOutput:
		if _, err := io.WriteString(s, ev.Data); err != nil {
			return fmt.Errorf("event %d: %w", p.next-1, err)
		}
	case EventResize:
		cols, rows, err := ev.Size()
		if err != nil {
			return fmt.Errorf("event %d: %w", p.next-1, err)
		}
		s.Resize(cols, rows)
	}
	return nil
}
