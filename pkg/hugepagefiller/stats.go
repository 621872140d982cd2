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
	"fmt"
	"strings"

	"hugefiller.dev/hugefiller/pkg/clock"
	"hugefiller.dev/hugefiller/pkg/page"
)

// reportSizeLimit bounds the printed report, per spec.md §4.5/§6.
const reportSizeLimit = 1 << 20

// Snapshot is the headline counter set from spec.md §4.5, taken under the
// page-heap lock so every field is mutually consistent (P3).
type Snapshot struct {
	Size                        int
	PagesAllocated              page.Length
	FreePages                   page.Length
	UnmappedPages               page.Length
	UsedPagesInReleased         page.Length
	UsedPagesInPartialReleased  page.Length
	UsedPagesInAnySubreleased   page.Length
	HugepageFrac                float64
	PreviouslyReleasedHugePages uint64

	NumPagesSubreleased             uint64
	NumPagesSubreleasedDueToLimit   uint64
	NumPartialAllocPagesSubreleased uint64
	NumHugepagesBroken              uint64
	NumHugepagesBrokenDueToLimit    uint64
}

// Snapshot computes the current headline counters by walking every
// tracker the filler holds.
func (f *Filler) Snapshot() Snapshot {
	s := Snapshot{
		Size:                            f.Size(),
		PagesAllocated:                  f.pagesAllocated,
		PreviouslyReleasedHugePages:     f.previouslyReleasedHugePages,
		NumPagesSubreleased:             f.numPagesSubreleased,
		NumPagesSubreleasedDueToLimit:   f.numPagesSubreleasedDueToLimit,
		NumPartialAllocPagesSubreleased: f.numPartialAllocPagesSubreleased,
		NumHugepagesBroken:              f.numHugepagesBroken,
		NumHugepagesBrokenDueToLimit:    f.numHugepagesBrokenDueToLimit,
	}
	var fullyBackedUsed page.Length
	for _, e := range f.byHugePage {
		t := e.tracker
		s.FreePages += t.FreePages()
		s.UnmappedPages += t.ReleasedPages()
		switch e.state {
		case Released:
			s.UsedPagesInReleased += t.UsedPages()
			s.UsedPagesInAnySubreleased += t.UsedPages()
		case PartialReleased:
			s.UsedPagesInPartialReleased += t.UsedPages()
			s.UsedPagesInAnySubreleased += t.UsedPages()
		default:
			if t.ReleasedPages() == 0 {
				fullyBackedUsed += t.UsedPages()
			}
		}
	}
	if s.PagesAllocated > 0 {
		s.HugepageFrac = float64(fullyBackedUsed) / float64(s.PagesAllocated)
	}
	return s
}

// Histogram buckets values into caller-supplied edges, the shape
// spec.md §4.5 calls for (allocation counts, free-page counts,
// lifetimes, residency counts).
type Histogram struct {
	Edges  []uint64
	Counts []uint64 // len(Counts) == len(Edges)+1; Counts[i] counts values in [Edges[i-1], Edges[i])
}

// NewHistogram returns a zeroed histogram over edges, which must be
// strictly increasing.
func NewHistogram(edges []uint64) *Histogram {
	return &Histogram{Edges: edges, Counts: make([]uint64, len(edges)+1)}
}

// Add buckets one observation.
func (h *Histogram) Add(v uint64) {
	for i, e := range h.Edges {
		if v < e {
			h.Counts[i]++
			return
		}
	}
	h.Counts[len(h.Counts)-1]++
}

// allocationCountEdges are the bucket edges spec.md §4.5 specifies for
// per-tracker lifetime allocation counts: per-unit up to 8, by 16s up to
// PagesPerHugePage-16, then fine-grained again over the top 8 values
// (0,1,2,...,8,16,32,...,240,248,249,...,255).
func allocationCountEdges() []uint64 {
	edges := []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8}
	top := uint64(page.PagesPerHugePage)
	for v := uint64(16); v <= top-16; v += 16 {
		edges = append(edges, v)
	}
	edges = append(edges, top-8)
	for v := top - 7; v < top; v++ {
		edges = append(edges, v)
	}
	return edges
}

// freePageEdges scales with nativePagesPerHugePage, per spec.md §4.5.
func freePageEdges(nativePagesPerHugePage uint32) []uint64 {
	var edges []uint64
	for v := uint64(1); v < uint64(nativePagesPerHugePage); v *= 2 {
		edges = append(edges, v)
	}
	return edges
}

// lifetimeEdgesMs are the log-spaced lifetime buckets from spec.md §4.5.
func lifetimeEdgesMs() []uint64 {
	return []uint64{0, 1, 10, 100, 1000, 10000, 100000, 1000000}
}

// edgesPerLine is how many histogram bucket edges the textual report
// wraps at, matching the grammar in spec.md §6.
const edgesPerLine = 6

// writeHistogram appends one histogram's wrapped textual form to b, using
// the grammar "HugePageFiller: <name> < E1 <= C1 < E2 <= C2 ...".
func writeHistogram(b *strings.Builder, name string, h *Histogram) {
	for i := 0; i < len(h.Edges); i += edgesPerLine {
		end := i + edgesPerLine
		if end > len(h.Edges) {
			end = len(h.Edges)
		}
		b.WriteString("HugePageFiller: ")
		b.WriteString(name)
		for j := i; j < end; j++ {
			fmt.Fprintf(b, " < %d <= %d", h.Edges[j], h.Counts[j])
		}
		b.WriteByte('\n')
	}
}

// Report renders the human-readable "HugePageFiller: ..." summary, bounded
// at reportSizeLimit bytes, per spec.md §4.5/§6.
func (f *Filler) Report() string {
	s := f.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "HugePageFiller: size = %d\n", s.Size)
	fmt.Fprintf(&b, "HugePageFiller: pages_allocated = %d\n", s.PagesAllocated)
	fmt.Fprintf(&b, "HugePageFiller: free_pages = %d\n", s.FreePages)
	fmt.Fprintf(&b, "HugePageFiller: unmapped_pages = %d\n", s.UnmappedPages)
	fmt.Fprintf(&b, "HugePageFiller: used_pages_in_released = %d\n", s.UsedPagesInReleased)
	fmt.Fprintf(&b, "HugePageFiller: used_pages_in_partial_released = %d\n", s.UsedPagesInPartialReleased)
	fmt.Fprintf(&b, "HugePageFiller: used_pages_in_any_subreleased = %d\n", s.UsedPagesInAnySubreleased)
	fmt.Fprintf(&b, "HugePageFiller: hugepage_frac = %.4f\n", s.HugepageFrac)
	fmt.Fprintf(&b, "HugePageFiller: previously_released_huge_pages = %d\n", s.PreviouslyReleasedHugePages)
	fmt.Fprintf(&b, "HugePageFiller: num_pages_subreleased = %d\n", s.NumPagesSubreleased)
	fmt.Fprintf(&b, "HugePageFiller: num_pages_subreleased_due_to_limit = %d\n", s.NumPagesSubreleasedDueToLimit)
	fmt.Fprintf(&b, "HugePageFiller: num_partial_alloc_pages_subreleased = %d\n", s.NumPartialAllocPagesSubreleased)
	fmt.Fprintf(&b, "HugePageFiller: num_hugepages_broken = %d\n", s.NumHugepagesBroken)
	fmt.Fprintf(&b, "HugePageFiller: num_hugepages_broken_due_to_limit = %d\n", s.NumHugepagesBrokenDueToLimit)

	retro := f.RetrospectiveReport()
	fmt.Fprintf(&b, "HugePageFiller: skip_subrelease_pages = %d\n", retro.Pages)
	fmt.Fprintf(&b, "HugePageFiller: skip_subrelease_decisions = %d\n", retro.Decisions)
	fmt.Fprintf(&b, "HugePageFiller: skip_subrelease_correct_pct = %.1f\n", retro.PercentCorrect())

	alloc := NewHistogram(allocationCountEdges())
	free := NewHistogram(freePageEdges(page.PagesPerHugePage))
	lifetime := NewHistogram(lifetimeEdgesMs())
	for _, e := range f.byHugePage {
		alloc.Add(e.tracker.NumAllocations())
		free.Add(uint64(e.tracker.FreePages()))
		age := clock.Seconds(f.clock, f.clock.Now()-e.tracker.CreatedAt())
		lifetime.Add(uint64(age.Milliseconds()))
	}
	writeHistogram(&b, "allocation_count", alloc)
	writeHistogram(&b, "free_pages", free)
	writeHistogram(&b, "lifetime_ms", lifetime)

	out := b.String()
	if len(out) > reportSizeLimit {
		out = out[:reportSizeLimit]
	}
	return out
}
