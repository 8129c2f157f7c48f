package render

import "errors"

// PingPong alternates two equally sized targets as source and destination of
// successive passes. Index 0 is written first after every Reset.
type PingPong struct {
	targets [2]*Target
	write   int
}

func NewPingPong(ctx *Context, name string, width, height int, filter Filter) (*PingPong, error) {
	p := &PingPong{}
	for i, suffix := range [2]string{"horizontal", "vertical"} {
		t, err := NewTarget(ctx, name+"."+suffix, width, height, filter)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.targets[i] = t
	}
	return p, nil
}

// Reset makes index 0 the next write target.
func (p *PingPong) Reset() { p.write = 0 }

// WriteTarget is the target the next pass draws into.
func (p *PingPong) WriteTarget() *Target { return p.targets[p.write] }

// ReadTarget is the target written by the previous pass.
func (p *PingPong) ReadTarget() *Target { return p.targets[p.write^1] }

// Advance swaps the roles after a pass has drawn into WriteTarget.
func (p *PingPong) Advance() { p.write ^= 1 }

// Resize reallocates both targets. Both are attempted and every failure is
// reported.
func (p *PingPong) Resize(width, height int) error {
	var errs []error
	for _, t := range p.targets {
		if err := t.Allocate(width, height); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *PingPong) Targets() [2]*Target { return p.targets }

func (p *PingPong) Size() (width, height int) { return p.targets[0].Size() }

func (p *PingPong) Complete() bool {
	return p.targets[0].Complete() && p.targets[1].Complete()
}

func (p *PingPong) Destroy() {
	for i, t := range p.targets {
		if t != nil {
			t.Destroy()
			p.targets[i] = nil
		}
	}
}
