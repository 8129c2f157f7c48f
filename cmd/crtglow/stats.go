package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"text/tabwriter"
	"time"
)

// phase is one step of a replayed frame.
type phase int

const (
	phaseFeed    phase = iota // cast events into the emulator
	phaseScene                // grid sync, rasterize and upload
	phaseEffects              // downsample, blur and composite
	phaseFrame                // the whole frame
	numPhases
)

var phaseNames = [numPhases]string{"feed", "scene", "effects", "frame"}

func (p phase) String() string { return phaseNames[p] }

// phaseTimes keeps the wall time of every phase of every frame.
type phaseTimes struct {
	samples [numPhases][]time.Duration
}

func (s *phaseTimes) add(p phase, d time.Duration) {
	s.samples[p] = append(s.samples[p], d)
}

// frames is the number of completed frames.
func (s *phaseTimes) frames() int { return len(s.samples[phaseFrame]) }

type phaseSummary struct {
	Count    int
	Total    time.Duration
	Min, Max time.Duration
	P50, P99 time.Duration
}

func (s phaseSummary) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

func (s *phaseTimes) summary(p phase) phaseSummary {
	sorted := slices.Clone(s.samples[p])
	if len(sorted) == 0 {
		return phaseSummary{}
	}
	slices.Sort(sorted)
	sum := phaseSummary{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   nearestRank(sorted, 50),
		P99:   nearestRank(sorted, 99),
	}
	for _, d := range sorted {
		sum.Total += d
	}
	return sum
}

// nearestRank returns the smallest sample with at least pct percent of the
// samples at or below it. sorted must be ascending and non-empty.
func nearestRank(sorted []time.Duration, pct float64) time.Duration {
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	return sorted[min(max(rank, 1), len(sorted))-1]
}

// write prints one row per phase with the frame total last.
func (s *phaseTimes) write(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "phase\tframes\ttotal\tmean\tp50\tp99\tmax\t")
	for p := range numPhases {
		sum := s.summary(p)
		r := func(d time.Duration) time.Duration { return d.Round(time.Microsecond) }
		fmt.Fprintf(tw, "%s\t%d\t%v\t%v\t%v\t%v\t%v\t\n", p, sum.Count,
			r(sum.Total), r(sum.Mean()), r(sum.P50), r(sum.P99), r(sum.Max))
	}
	tw.Flush()
}
