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
	"time"

	"hugefiller.dev/hugefiller/pkg/page"
)

// RetrospectiveWindow is how long after a skip-subrelease decision we
// wait before judging it, per spec.md §4.4.
const RetrospectiveWindow = 300 * time.Second

type decision struct {
	at       int64 // clock cycles at decision time
	skipped  page.Length
	capacity page.Length // used + skipped, the backing the decision preserved
}

// RecordDecision registers a skip-subrelease decision for evaluation
// RetrospectiveWindow later. capacity is the number of pages that
// remained backed immediately after the decision (current used pages
// plus the pages skipped rather than released).
func (r *Recorder) RecordDecision(skipped, capacity page.Length) {
	r.pending = append(r.pending, decision{at: r.clock.Now(), skipped: skipped, capacity: capacity})
}

// Evaluation is the verdict on one past skip-subrelease decision.
type Evaluation struct {
	SkippedPages page.Length
	Correct      bool
}

// Evaluate judges every pending decision whose retrospective window has
// fully elapsed: a decision is correct if demand never exceeded the
// capacity it preserved during the following 300 seconds. Judged
// decisions are removed from the pending set.
func (r *Recorder) Evaluate() []Evaluation {
	windowCycles := cyclesFor(r.clock, RetrospectiveWindow)
	now := r.clock.Now()

	var ready, stillPending []decision
	for _, d := range r.pending {
		if now-d.at >= windowCycles {
			ready = append(ready, d)
		} else {
			stillPending = append(stillPending, d)
		}
	}
	r.pending = stillPending

	out := make([]Evaluation, 0, len(ready))
	for _, d := range ready {
		peak := maxOf(r.epochsBetween(d.at, d.at+windowCycles), func(e epoch) page.Length { return e.maxDemand })
		out = append(out, Evaluation{SkippedPages: d.skipped, Correct: peak <= d.capacity})
	}
	return out
}

// Report accumulates Evaluate results into the {pages, decisions, %
// correct} summary spec.md §4.4 calls for.
type Report struct {
	Decisions        int
	CorrectDecisions int
	Pages            page.Length
}

// Add folds one evaluation into the report.
func (rp *Report) Add(e Evaluation) {
	rp.Decisions++
	rp.Pages += e.SkippedPages
	if e.Correct {
		rp.CorrectDecisions++
	}
}

// PercentCorrect returns the fraction of judged decisions confirmed
// correct, as a percentage; 0 if nothing has been judged yet.
func (rp Report) PercentCorrect() float64 {
	if rp.Decisions == 0 {
		return 0
	}
	return 100 * float64(rp.CorrectDecisions) / float64(rp.Decisions)
}
