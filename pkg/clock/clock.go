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

// Package clock provides the time source PageTracker and the
// demand-history engine use, so neither ever reads a global clock
// directly. A FakeClock lets tests advance time by explicit durations.
package clock

import (
	"time"

	"github.com/dpjacques/clockwork"
)

// Clock is the time source collaborator. Now returns a monotonic cycle
// count; Freq converts that count to seconds.
type Clock interface {
	// Now returns the current time in cycles.
	Now() int64
	// Freq returns the clock's frequency in cycles per second.
	Freq() float64
}

// realClockFreq is the cycle rate RealClock reports: it stamps cycles as
// nanoseconds, so its frequency is fixed at one billion cycles per
// second.
const realClockFreq = 1e9

// RealClock is a Clock backed by the wall clock.
type RealClock struct{}

// Now implements Clock.Now.
func (RealClock) Now() int64 {
	return time.Now().UnixNano()
}

// Freq implements Clock.Freq.
func (RealClock) Freq() float64 {
	return realClockFreq
}

// FakeClock is a Clock that only advances when told to, built on
// clockwork.FakeClock the way pkg/tcpip/faketime.ManualClock is.
type FakeClock struct {
	clock clockwork.FakeClock
}

// NewFakeClock returns a FakeClock starting at an arbitrary epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{clock: clockwork.NewFakeClock()}
}

// Now implements Clock.Now.
func (f *FakeClock) Now() int64 {
	return f.clock.Now().UnixNano()
}

// Freq implements Clock.Freq.
func (f *FakeClock) Freq() float64 {
	return realClockFreq
}

// Advance moves the clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.clock.Advance(d)
}

// Seconds converts a cycle delta measured by c into a duration.
func Seconds(c Clock, cycles int64) time.Duration {
	return time.Duration(float64(cycles) / c.Freq() * float64(time.Second))
}
