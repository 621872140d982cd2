// Copyright 2026 The Hugefiller Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package demand tracks a rolling history of the filler's demand (used +
// free pages) in one-second epochs, and implements the SkipSubrelease
// policy that turns that history into a number of pages worth preserving
// across a release call.
package demand

import (
	"time"

	"hugefiller.dev/hugefiller/pkg/clock"
	"hugefiller.dev/hugefiller/pkg/page"
)

// EpochDuration is the width of one demand-history sample.
const EpochDuration = time.Second

// WindowEpochs bounds the rolling history to ten minutes, per spec.md §4.4.
const WindowEpochs = 600

type epoch struct {
	start                          int64 // clock cycles at epoch start
	minDemand, maxDemand, usedAtPeak page.Length
}

// Recorder maintains the rolling demand time-series described in
// spec.md §4.4. The filler calls Record on every TryGet/Put.
type Recorder struct {
	clock       clock.Clock
	epochCycles int64

	closed  []epoch // oldest first, trimmed to WindowEpochs
	current epoch
	open    bool

	pending []decision
}

// New returns an empty Recorder sampling epochs against c.
func New(c clock.Clock) *Recorder {
	return &Recorder{clock: c, epochCycles: cyclesFor(c, EpochDuration)}
}

func cyclesFor(c clock.Clock, d time.Duration) int64 {
	return int64(c.Freq() * d.Seconds())
}

// Record samples demand = used+free and rolls into a fresh epoch once
// EpochDuration has elapsed since the current one opened.
func (r *Recorder) Record(used, free page.Length) {
	demand := used + free
	now := r.clock.Now()
	if !r.open || now-r.current.start >= r.epochCycles {
		if r.open {
			r.closed = append(r.closed, r.current)
			if len(r.closed) > WindowEpochs {
				r.closed = r.closed[len(r.closed)-WindowEpochs:]
			}
		}
		r.current = epoch{start: now, minDemand: demand, maxDemand: demand, usedAtPeak: used}
		r.open = true
		return
	}
	if demand < r.current.minDemand {
		r.current.minDemand = demand
	}
	if demand > r.current.maxDemand {
		r.current.maxDemand = demand
		r.current.usedAtPeak = used
	}
}

// epochsSince returns every epoch, closed or currently open, that started
// at or after cutoff, oldest first.
func (r *Recorder) epochsSince(cutoff int64) []epoch {
	var out []epoch
	for _, e := range r.closed {
		if e.start >= cutoff {
			out = append(out, e)
		}
	}
	if r.open && r.current.start >= cutoff {
		out = append(out, r.current)
	}
	return out
}

// epochsBetween returns every epoch whose start falls in [from, to).
func (r *Recorder) epochsBetween(from, to int64) []epoch {
	var out []epoch
	for _, e := range r.closed {
		if e.start >= from && e.start < to {
			out = append(out, e)
		}
	}
	if r.open && r.current.start >= from && r.current.start < to {
		out = append(out, r.current)
	}
	return out
}

func maxOf(epochs []epoch, f func(epoch) page.Length) page.Length {
	var m page.Length
	for i, e := range epochs {
		v := f(e)
		if i == 0 || v > m {
			m = v
		}
	}
	return m
}

// Intervals mirrors spec.md §4.4's SkipSubreleaseIntervals; a zero
// duration disables that interval.
type Intervals struct {
	Peak, Short, Long time.Duration
}

// DemandCap computes the number of free pages release_pages should
// preserve, per spec.md §4.4. currentUsed and currentFree describe the
// filler state the cap is being applied against; the result never
// exceeds currentFree, since we never report skipping more than could
// have been released.
func (r *Recorder) DemandCap(in Intervals, currentUsed, currentFree page.Length) page.Length {
	// The subtractions below can go negative (a demand cap of "preserve
	// nothing"); do the arithmetic signed and clamp back into Length at
	// the end rather than wrapping around zero in unsigned space.
	clamp := func(v int64) page.Length {
		if v < 0 {
			return 0
		}
		if page.Length(v) > currentFree {
			return currentFree
		}
		return page.Length(v)
	}

	if in.Peak > 0 {
		peak := maxOf(r.epochsSince(r.clock.Now()-cyclesFor(r.clock, in.Peak)), func(e epoch) page.Length { return e.maxDemand })
		return clamp(int64(peak) - int64(currentUsed))
	}
	if in.Short > 0 || in.Long > 0 {
		var shortFluct, longTrend page.Length
		if in.Short > 0 {
			shortFluct = maxOf(r.epochsSince(r.clock.Now()-cyclesFor(r.clock, in.Short)), func(e epoch) page.Length {
				if e.maxDemand > e.minDemand {
					return e.maxDemand - e.minDemand
				}
				return 0
			})
		}
		if in.Long > 0 {
			longTrend = maxOf(r.epochsSince(r.clock.Now()-cyclesFor(r.clock, in.Long)), func(e epoch) page.Length { return e.minDemand })
		}
		return clamp(int64(shortFluct) + int64(longTrend) - int64(currentUsed))
	}
	return 0
}
