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

package demand

import (
	"testing"
	"time"

	"hugefiller.dev/hugefiller/pkg/clock"
)

// P9: when peak_interval > 0, short/long do not change the result.
func TestPeakIntervalPrecedence(t *testing.T) {
	c := clock.NewFakeClock()
	r := New(c)

	r.Record(100, 28) // demand 128
	c.Advance(2 * time.Second)
	r.Record(10, 0) // demand 10, dips low
	c.Advance(2 * time.Second)

	withLong := r.DemandCap(Intervals{Peak: 5 * time.Second, Short: time.Second, Long: 5 * time.Second}, 10, 200)
	withoutLong := r.DemandCap(Intervals{Peak: 5 * time.Second}, 10, 200)
	if withLong != withoutLong {
		t.Fatalf("demand cap changed with short/long set: %d vs %d", withLong, withoutLong)
	}
	if withLong != 118 {
		t.Fatalf("demand cap = %d, want 118 (peak 128 - current used 10)", withLong)
	}
}

func TestDemandCapClampsToFree(t *testing.T) {
	c := clock.NewFakeClock()
	r := New(c)
	r.Record(200, 0)
	c.Advance(2 * time.Second)

	got := r.DemandCap(Intervals{Peak: 5 * time.Second}, 0, 10)
	if got != 10 {
		t.Fatalf("DemandCap = %d, want 10 (clamped to currentFree)", got)
	}
}

func TestDemandCapDisabledByDefault(t *testing.T) {
	c := clock.NewFakeClock()
	r := New(c)
	r.Record(200, 0)
	if got := r.DemandCap(Intervals{}, 0, 10); got != 0 {
		t.Fatalf("DemandCap with no intervals = %d, want 0", got)
	}
}

// S4 (Skip-subrelease), simplified: a skip decision whose preserved
// capacity turns out sufficient is confirmed correct; one that is not is
// not.
func TestRetrospectiveEvaluation(t *testing.T) {
	c := clock.NewFakeClock()
	r := New(c)

	r.Record(100, 0)
	r.RecordDecision(28, 128) // preserved capacity 128

	c.Advance(100 * time.Second)
	r.Record(120, 0) // stays within the preserved capacity

	c.Advance(250 * time.Second) // now 350s after the decision
	evals := r.Evaluate()
	if len(evals) != 1 {
		t.Fatalf("Evaluate() returned %d results, want 1", len(evals))
	}
	if !evals[0].Correct {
		t.Fatal("decision should be confirmed correct: demand never exceeded preserved capacity")
	}

	var report Report
	report.Add(evals[0])
	if report.PercentCorrect() != 100 {
		t.Fatalf("PercentCorrect = %v, want 100", report.PercentCorrect())
	}
}

func TestRetrospectiveEvaluationIncorrect(t *testing.T) {
	c := clock.NewFakeClock()
	r := New(c)

	r.Record(100, 0)
	r.RecordDecision(28, 128)

	c.Advance(50 * time.Second)
	r.Record(200, 0) // exceeds the preserved capacity within the window

	c.Advance(260 * time.Second)
	evals := r.Evaluate()
	if len(evals) != 1 {
		t.Fatalf("Evaluate() returned %d results, want 1", len(evals))
	}
	if evals[0].Correct {
		t.Fatal("decision should not be confirmed correct: demand exceeded preserved capacity")
	}
}

