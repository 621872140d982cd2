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

package hugepagefiller

import (
	"hugefiller.dev/hugefiller/pkg/clock"
	"hugefiller.dev/hugefiller/pkg/config"
	"hugefiller.dev/hugefiller/pkg/demand"
	"hugefiller.dev/hugefiller/pkg/page"
	"hugefiller.dev/hugefiller/pkg/pagetracker"
	"hugefiller.dev/hugefiller/pkg/unback"
)

// full is the sentinel State for a tracker that is not a member of any
// list: free_pages == 0 and released_pages == 0, per spec.md §3's "Full —
// no free pages; not stored in a release candidate list".
const full State = -1

// entry is the filler's bookkeeping for one tracker: which list it's
// currently a member of (or full, meaning none), and whether it is
// currently being counted toward previously_released_huge_pages.
type entry struct {
	tracker             Tracker
	density             page.Density
	state               State
	countedPrevReleased bool
}

// Filler implements HugePageFiller: the scheduler over many PageTrackers,
// partitioned by (density, state), that places requests, runs the
// subrelease policy, and aggregates telemetry. Every exported method
// assumes the caller holds the page-heap lock (spec.md §5); Filler never
// acquires one itself.
type Filler struct {
	clock                clock.Clock
	densePolicy          config.DensePolicy
	candidatesForRelease int

	sparseRegular, sparseDonated, sparsePartialReleased, sparseReleased *orderedList
	denseRegular, densePartialReleased, denseReleased                  *orderedList

	byHugePage map[page.HugePage]*entry

	demand    *demand.Recorder
	intervals demand.Intervals
	retro     demand.Report

	pagesAllocated              page.Length
	unmappedCredit              page.Length
	previouslyReleasedHugePages uint64

	numPagesSubreleased             uint64
	numPagesSubreleasedDueToLimit   uint64
	numPartialAllocPagesSubreleased uint64
	numHugepagesBroken              uint64
	numHugepagesBrokenDueToLimit    uint64
}

// NewFromConfig constructs a Filler whose SkipSubrelease intervals come
// from cfg's own TOML-sourced SkipSubrelease field, rather than requiring
// the caller to parse and pass them separately. This is the constructor
// a binary loading config.Load should use; New stays available for tests
// and callers that build Intervals some other way.
func NewFromConfig(c clock.Clock, cfg config.FillerConfig) (*Filler, error) {
	peak, short, long, err := cfg.SkipSubrelease.ParseDurations()
	if err != nil {
		return nil, err
	}
	return New(c, cfg, demand.Intervals{Peak: peak, Short: short, Long: long}), nil
}

// New constructs an empty Filler. intervals configures the default
// SkipSubrelease look-back windows used by ReleasePages/ReleasePartialPages.
func New(c clock.Clock, cfg config.FillerConfig, intervals demand.Intervals) *Filler {
	denseLess := lessLongestFreeRangeAndChunks
	if cfg.DensePolicy == config.SpansAllocated {
		denseLess = lessSpansAllocated
	}
	return &Filler{
		clock:                c,
		densePolicy:          cfg.DensePolicy,
		candidatesForRelease: cfg.CandidatesForRelease,

		sparseRegular:         newOrderedList(lessLongestFreeRangeAndChunks),
		sparseDonated:         newOrderedList(lessLongestFreeRangeAndChunks),
		sparsePartialReleased: newOrderedList(lessLongestFreeRangeAndChunks),
		sparseReleased:        newOrderedList(lessLongestFreeRangeAndChunks),
		denseRegular:          newOrderedList(denseLess),
		densePartialReleased:  newOrderedList(denseLess),
		denseReleased:         newOrderedList(denseLess),

		byHugePage: make(map[page.HugePage]*entry),
		demand:     demand.New(c),
		intervals:  intervals,
	}
}

func (f *Filler) listFor(density page.Density, s State) *orderedList {
	if density == page.Sparse {
		switch s {
		case Regular:
			return f.sparseRegular
		case Donated:
			return f.sparseDonated
		case PartialReleased:
			return f.sparsePartialReleased
		case Released:
			return f.sparseReleased
		}
		return nil
	}
	switch s {
	case Regular:
		return f.denseRegular
	case PartialReleased:
		return f.densePartialReleased
	case Released:
		return f.denseReleased
	}
	return nil
}

// classify maps a tracker's current counts onto spec.md §3's four states.
// A still-donated tracker stays classified as Donated regardless of its
// release state until its first full-use transition clears the flag
// (see TryGet); only then does it fall through to the ordinary
// Regular/PartialReleased/Released/full classification.
func classify(t Tracker) State {
	free, rel := t.FreePages(), t.ReleasedPages()
	if t.Donated() {
		if free == 0 && rel == 0 {
			return full
		}
		return Donated
	}
	switch {
	case free == 0 && rel == 0:
		return full
	case free == 0:
		return Released
	case rel == 0:
		return Regular
	default:
		return PartialReleased
	}
}

// Size returns the number of huge pages the filler currently holds.
func (f *Filler) Size() int { return len(f.byHugePage) }

// PagesAllocated returns the sum of used_pages across every tracker.
func (f *Filler) PagesAllocated() page.Length { return f.pagesAllocated }

// FreePages returns the sum of free_pages across every tracker.
func (f *Filler) FreePages() page.Length {
	var total page.Length
	for _, e := range f.byHugePage {
		total += e.tracker.FreePages()
	}
	return total
}

// UnmappedPages returns the sum of released_pages across every tracker.
func (f *Filler) UnmappedPages() page.Length {
	var total page.Length
	for _, e := range f.byHugePage {
		total += e.tracker.ReleasedPages()
	}
	return total
}

// PreviouslyReleasedHugePages returns the count of Full trackers that
// reached Full from Released or PartialReleased without an intervening
// full reclamation.
func (f *Filler) PreviouslyReleasedHugePages() uint64 { return f.previouslyReleasedHugePages }

// move transitions a tracker already known to the filler to newState,
// updating list membership and the previously-released counter.
func (f *Filler) move(e *entry, newState State) {
	if old := f.listFor(e.density, e.state); old != nil {
		old.Remove(e.tracker)
	}
	if newState == full {
		if e.state == Released || e.state == PartialReleased {
			f.previouslyReleasedHugePages++
			e.countedPrevReleased = true
		}
	} else if e.state == full && e.countedPrevReleased {
		f.previouslyReleasedHugePages--
		e.countedPrevReleased = false
	}
	e.state = newState
	if l := f.listFor(e.density, newState); l != nil {
		l.Insert(e.tracker)
	}
}

func (f *Filler) recordDemand() {
	f.demand.Record(f.pagesAllocated, f.FreePages())
}

// TryGet implements spec.md §4.2's try_get: it returns ok=false if no
// existing tracker can satisfy the request, in which case the caller
// constructs a fresh tracker on a new huge page and calls Contribute.
func (f *Filler) TryGet(n page.Length, info page.SpanAllocInfo) (t Tracker, result pagetracker.GetResult, ok bool) {
	defer f.recordDemand()

	if n > page.PagesPerHugePage {
		return nil, pagetracker.GetResult{}, false
	}

	var order []*orderedList
	if info.Density == page.Sparse {
		order = []*orderedList{f.sparsePartialReleased, f.sparseReleased, f.sparseRegular, f.sparseDonated}
	} else {
		order = []*orderedList{f.densePartialReleased, f.denseReleased, f.denseRegular}
	}

	for _, l := range order {
		cand, found := l.First(n)
		if !found {
			continue
		}
		e := f.byHugePage[cand.HugePage()]
		l.Remove(cand)
		res := cand.Get(n)
		f.pagesAllocated += n
		if cand.Donated() && cand.FreePages() == 0 && cand.ReleasedPages() == 0 {
			cand.ClearDonated()
		}
		f.move(e, classify(cand))
		return cand, res, true
	}
	return nil, pagetracker.GetResult{}, false
}

// Contribute inserts a newly constructed tracker into the filler, per
// spec.md §4.2. donated trackers only ever serve sparse spans: they stay in
// the sparse lists after their first full-use transition clears the flag.
func (f *Filler) Contribute(t Tracker, donated bool, info page.SpanAllocInfo) {
	density := info.Density
	state := Regular
	if donated {
		state = Donated
		density = page.Sparse
	}
	e := &entry{tracker: t, density: density, state: state}
	f.byHugePage[t.HugePage()] = e
	f.listFor(density, state).Insert(t)
}

// Put implements spec.md §4.2's put: it returns the tracker and true if
// the tracker is now empty, so the caller can reclaim the huge page.
func (f *Filler) Put(t Tracker, r page.Range) (freed Tracker, isEmpty bool) {
	defer f.recordDemand()

	e, known := f.byHugePage[t.HugePage()]
	if !known {
		panic("hugepagefiller: Put on a tracker the filler does not hold")
	}

	wasEmpty := t.FreePages() == 0 && t.ReleasedPages() > 0 // Released, about to go Empty
	if old := f.listFor(e.density, e.state); old != nil {
		old.Remove(t)
	}
	t.Put(r)
	f.pagesAllocated -= r.N

	if t.Empty() {
		if wasEmpty {
			// The tracker's whole non-live region was already unbacked;
			// this Put only freed its last live page, so nothing new
			// needs releasing. Nothing to credit: there were no backed
			// free pages to eagerly drop.
		} else if free := t.FreePages(); free > 0 {
			// Backed free pages vanish along with the huge page the
			// caller is about to reclaim; credit them toward the next
			// release_pages call rather than losing the accounting.
			f.unmappedCredit += free
		}
		if old := f.listFor(e.density, e.state); old != nil {
			old.Remove(t)
		}
		if e.state == full && e.countedPrevReleased {
			f.previouslyReleasedHugePages--
		}
		delete(f.byHugePage, t.HugePage())
		return t, true
	}

	f.move(e, classify(t))
	return nil, false
}

// eligibleLists returns the release-candidate lists in spec.md §4.3's
// priority order.
func (f *Filler) eligibleLists(releasePartialAllocPages bool) []*orderedList {
	var order []*orderedList
	if releasePartialAllocPages {
		order = append(order, f.sparsePartialReleased, f.densePartialReleased)
	}
	order = append(order, f.sparseRegular, f.sparseDonated, f.denseRegular)
	if !releasePartialAllocPages {
		order = append(order, f.sparsePartialReleased, f.densePartialReleased)
	}
	return order
}

// pickCandidates walks the eligible lists in priority order and returns up
// to candidatesForRelease trackers: a later list is examined only while
// the earlier ones have supplied fewer than that many. Within one list,
// trackers with the smallest used_pages come first, ties broken by
// longest_free_range descending, per spec.md §4.3.
func (f *Filler) pickCandidates(lists []*orderedList) []Tracker {
	k := f.candidatesForRelease
	if k <= 0 {
		k = 1
	}
	out := make([]Tracker, 0, k)
	base := 0
	consider := func(t Tracker) {
		// Insertion sort into a bounded slice; k is small (single digits
		// in practice), so this beats building a second sorted index.
		i := base
		for i < len(out) && lessByUsedThenLongestFree(out[i], t) {
			i++
		}
		if i >= k {
			return
		}
		out = append(out, nil)
		copy(out[i+1:], out[i:])
		out[i] = t
		if len(out) > k {
			out = out[:k]
		}
	}
	for _, l := range lists {
		if base = len(out); base >= k {
			break
		}
		l.Ascend(func(t Tracker) bool {
			consider(t)
			return true
		})
	}
	return out
}

// ReleasePages implements spec.md §4.3's release_pages.
func (f *Filler) ReleasePages(desired page.Length, u unback.Func, releasePartialAllocPages, hitLimit bool) page.Length {
	applied := f.unmappedCredit
	if applied > desired {
		applied = desired
	}
	f.unmappedCredit -= applied
	remaining := desired - applied

	var capToPreserve page.Length
	if !hitLimit {
		capToPreserve = f.demand.DemandCap(f.intervals, f.pagesAllocated, f.FreePages())
	}
	totalFree := f.FreePages()
	var budget page.Length
	if totalFree > capToPreserve {
		budget = totalFree - capToPreserve
	}
	if budget > remaining {
		budget = remaining
	}

	if capToPreserve > 0 && !hitLimit {
		f.demand.RecordDecision(capToPreserve, f.pagesAllocated+capToPreserve)
	}
	for _, ev := range f.demand.Evaluate() {
		f.retro.Add(ev)
	}

	lists := f.eligibleLists(releasePartialAllocPages)
	var released page.Length
	for released < budget {
		cands := f.pickCandidates(lists)
		if len(cands) == 0 {
			break
		}
		progressed := false
		for _, t := range cands {
			if released >= budget {
				break
			}
			e := f.byHugePage[t.HugePage()]
			before := e.state
			n := t.ReleaseFree(u)
			if n == 0 {
				continue
			}
			progressed = true
			released += n
			if hitLimit {
				f.numPagesSubreleasedDueToLimit += uint64(n)
			} else {
				f.numPagesSubreleased += uint64(n)
			}
			newState := classify(t)
			if newState != before {
				f.numHugepagesBroken++
				if hitLimit {
					f.numHugepagesBrokenDueToLimit++
				}
			}
			f.move(e, newState)
		}
		if !progressed {
			break
		}
	}
	return applied + released
}

// ReleasePartialPages implements spec.md §4.3's release_partial_pages: it
// is release_pages with release_partial_alloc_pages always true and
// hit_limit always false, so it falls through to Regular/Donated trackers
// once the PartialReleased lists are exhausted; the one difference is
// that pages released from a tracker that was PartialReleased before the
// call are accounted as numPartialAllocPagesSubreleased rather than
// numPagesSubreleased.
func (f *Filler) ReleasePartialPages(desired page.Length, u unback.Func) page.Length {
	applied := f.unmappedCredit
	if applied > desired {
		applied = desired
	}
	f.unmappedCredit -= applied
	remaining := desired - applied

	capToPreserve := f.demand.DemandCap(f.intervals, f.pagesAllocated, f.FreePages())
	totalFree := f.FreePages()
	var budget page.Length
	if totalFree > capToPreserve {
		budget = totalFree - capToPreserve
	}
	if budget > remaining {
		budget = remaining
	}

	if capToPreserve > 0 {
		f.demand.RecordDecision(capToPreserve, f.pagesAllocated+capToPreserve)
	}
	for _, ev := range f.demand.Evaluate() {
		f.retro.Add(ev)
	}

	lists := f.eligibleLists(true)
	var released page.Length
	for released < budget {
		cands := f.pickCandidates(lists)
		if len(cands) == 0 {
			break
		}
		progressed := false
		for _, t := range cands {
			if released >= budget {
				break
			}
			e := f.byHugePage[t.HugePage()]
			before := e.state
			n := t.ReleaseFree(u)
			if n == 0 {
				continue
			}
			progressed = true
			released += n
			if before == PartialReleased {
				f.numPartialAllocPagesSubreleased += uint64(n)
			} else {
				f.numPagesSubreleased += uint64(n)
			}
			newState := classify(t)
			if newState != before {
				f.numHugepagesBroken++
			}
			f.move(e, newState)
		}
		if !progressed {
			break
		}
	}
	return applied + released
}

// RetrospectiveReport returns the accumulated skip-subrelease correctness
// report, per spec.md §4.4.
func (f *Filler) RetrospectiveReport() demand.Report { return f.retro }
