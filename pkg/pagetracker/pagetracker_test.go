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

package pagetracker

import (
	"testing"

	"hugefiller.dev/hugefiller/pkg/bitmap"
	"hugefiller.dev/hugefiller/pkg/clock"
	"hugefiller.dev/hugefiller/pkg/page"
	"hugefiller.dev/hugefiller/pkg/unback"
)

func newTestTracker(t *testing.T) (*PageTracker, *clock.FakeClock) {
	t.Helper()
	c := clock.NewFakeClock()
	hp := page.HugePageFromPageId(0)
	return New(hp, false, c), c
}

func checkConservation(t *testing.T, tr *PageTracker) {
	t.Helper()
	if got, want := tr.UsedPages()+tr.FreePages()+tr.ReleasedPages(), page.Length(page.PagesPerHugePage); got != want {
		t.Fatalf("conservation violated: used(%d)+free(%d)+released(%d) = %d, want %d",
			tr.UsedPages(), tr.FreePages(), tr.ReleasedPages(), got, want)
	}
}

// P1: allocated and released never overlap. We check this indirectly,
// since the bitmaps are unexported: used+free+released must still sum
// correctly after every released page is re-acquired.
func TestGetClearsReleased(t *testing.T) {
	tr, _ := newTestTracker(t)
	r1 := tr.Get(100)
	checkConservation(t, tr)

	tr.Put(page.Range{Start: r1.Page, N: 100})
	checkConservation(t, tr)

	// Every free page is released, not only the 100 just put back.
	f := unback.NewFake()
	if n := tr.ReleaseFree(f.Func()); n != 256 {
		t.Fatalf("ReleaseFree = %d, want 256", n)
	}
	checkConservation(t, tr)
	if tr.ReleasedPages() != 256 {
		t.Fatalf("ReleasedPages = %d, want 256", tr.ReleasedPages())
	}

	r2 := tr.Get(50)
	if !r2.WasReleased {
		t.Fatal("WasReleased = false, want true (range overlaps a released run)")
	}
	if tr.ReleasedPages() != 206 {
		t.Fatalf("ReleasedPages after re-Get = %d, want 206", tr.ReleasedPages())
	}
	checkConservation(t, tr)
}

// P4: get(n) on a tracker with longest_free_range >= n always succeeds,
// returning the lowest-indexed valid base, first-fit.
func TestGetFirstFit(t *testing.T) {
	tr, _ := newTestTracker(t)
	r1 := tr.Get(10)
	if r1.Page != 0 {
		t.Fatalf("first Get base = %d, want 0", r1.Page)
	}
	r2 := tr.Get(5)
	if r2.Page != 10 {
		t.Fatalf("second Get base = %d, want 10", r2.Page)
	}
	tr.Put(page.Range{Start: r1.Page, N: 10})
	// The freed [0,10) run is now the lowest-indexed fit for a request of 8.
	r3 := tr.Get(8)
	if r3.Page != 0 {
		t.Fatalf("Get after Put base = %d, want 0 (lowest-indexed fit)", r3.Page)
	}
}

func TestGetPanicsWithoutFit(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Get(page.PagesPerHugePage)
	defer func() {
		if recover() == nil {
			t.Fatal("Get on a full tracker did not panic")
		}
	}()
	tr.Get(1)
}

func TestPutPanicsOnUnallocated(t *testing.T) {
	tr, _ := newTestTracker(t)
	defer func() {
		if recover() == nil {
			t.Fatal("Put on a never-allocated range did not panic")
		}
	}()
	tr.Put(page.Range{Start: 0, N: 1})
}

// S1 (Sanity).
func TestSanitySequentialGets(t *testing.T) {
	tr, _ := newTestTracker(t)
	seen := make(map[page.PageId]bool)
	var used page.Length
	for k := page.Length(1); ; k++ {
		if tr.LongestFreeRange() < k {
			break
		}
		r := tr.Get(k)
		if seen[r.Page] {
			t.Fatalf("base page %d returned twice", r.Page)
		}
		seen[r.Page] = true
		used += k
	}
	if tr.UsedPages() != used {
		t.Fatalf("UsedPages = %d, want %d", tr.UsedPages(), used)
	}
}

// S2 (ReleasingReturn).
func TestReleasingReturn(t *testing.T) {
	tr, _ := newTestTracker(t)
	a1 := tr.Get(61)
	a2 := tr.Get(64)
	a3 := tr.Get(65)
	a4 := tr.Get(66)

	tr.Put(page.Range{Start: a2.Page, N: 64})
	tr.Put(page.Range{Start: a4.Page, N: 66})

	f := unback.NewFake()
	n := tr.ReleaseFree(f.Func())
	if n != 130 {
		t.Fatalf("ReleaseFree = %d, want 130", n)
	}
	if len(f.Calls) != 2 {
		t.Fatalf("unback invoked %d times, want 2", len(f.Calls))
	}
	if tr.UsedPages() != 126 {
		t.Fatalf("UsedPages = %d, want 126", tr.UsedPages())
	}
	if tr.FreePages() != 0 {
		t.Fatalf("FreePages = %d, want 0", tr.FreePages())
	}
	if tr.ReleasedPages() != 130 {
		t.Fatalf("ReleasedPages = %d, want 130", tr.ReleasedPages())
	}
	checkConservation(t, tr)
	_, _ = a1, a3
}

// S3 (Coalesce on failure), also exercising P6 and P7.
func TestCoalesceOnFailure(t *testing.T) {
	tr, _ := newTestTracker(t)
	a1 := tr.Get(61)
	a2 := tr.Get(64)
	a3 := tr.Get(65)
	a4 := tr.Get(66)

	tr.Put(page.Range{Start: a2.Page, N: 64})
	tr.Put(page.Range{Start: a4.Page, N: 66})
	f := unback.NewFake()
	tr.ReleaseFree(f.Func())

	// P6: a second call with no intervening Put releases nothing.
	if n := tr.ReleaseFree(f.Func()); n != 0 {
		t.Fatalf("idempotent ReleaseFree = %d, want 0", n)
	}

	f.Reset()
	tr.Put(page.Range{Start: a1.Page, N: 61})
	tr.Put(page.Range{Start: a3.Page, N: 65})

	// Fail the call that covers a3 (and, per P7 coalescing, a4).
	for p := a3.Page; p < a3.Page.Add(65); p++ {
		f.FailPages[p] = true
	}

	n := tr.ReleaseFree(f.Func())
	if n != 61 {
		t.Fatalf("ReleaseFree = %d, want 61 (only region #1 succeeds)", n)
	}
	if len(f.Calls) != 2 {
		t.Fatalf("unback invoked %d times, want 2", len(f.Calls))
	}
	// P7: the call touching a3 should have been widened to also cover the
	// already-released a4, producing one call spanning both.
	var sawCoalesced bool
	for _, c := range f.Calls {
		if c.Range.Start == a3.Page && c.Range.N == 131 {
			sawCoalesced = true
		}
	}
	if !sawCoalesced {
		t.Fatalf("no unback call covering the coalesced a3+a4 range (131 pages); calls = %+v", f.Calls)
	}

	if tr.ReleasedPages() != 191 {
		t.Fatalf("ReleasedPages = %d, want 191", tr.ReleasedPages())
	}
	if tr.FreePages() != 65 {
		t.Fatalf("FreePages = %d, want 65", tr.FreePages())
	}
	checkConservation(t, tr)
}

// S5 (Previously released), PageTracker half: re-acquiring half of a fully
// released tracker clears the released bits of exactly the re-acquired
// pages.
func TestReacquireReleasedTracker(t *testing.T) {
	tr, _ := newTestTracker(t)
	half := page.Length(page.PagesPerHugePage / 2)
	r := tr.Get(half)
	tr.Put(page.Range{Start: r.Page, N: half})

	f := unback.NewFake()
	if n := tr.ReleaseFree(f.Func()); n != page.PagesPerHugePage {
		t.Fatalf("ReleaseFree = %d, want %d", n, page.PagesPerHugePage)
	}
	if !tr.Empty() {
		t.Fatal("tracker should be Empty after releasing its only allocation")
	}

	r2 := tr.Get(half)
	if !r2.WasReleased {
		t.Fatal("WasReleased = false, want true")
	}
	if tr.ReleasedPages() != half {
		t.Fatalf("ReleasedPages after re-Get = %d, want %d", tr.ReleasedPages(), half)
	}
	checkConservation(t, tr)
}

func TestAddSpanStats(t *testing.T) {
	tr, _ := newTestTracker(t)
	a := tr.Get(10) // [0,10)
	b := tr.Get(3)  // [10,13)
	tr.Get(page.Length(page.PagesPerHugePage) - 13)

	tr.Put(page.Range{Start: a.Page, N: 10})
	tr.Put(page.Range{Start: b.Page, N: 3})

	f := unback.NewFake()
	tr.ReleaseFree(f.Func())

	var small SpanStats
	var large LargeSpanStats
	tr.AddSpanStats(&small, &large)

	// The two freed runs coalesce into one contiguous [0,13) run (both
	// adjacent and both now released), which exceeds MaxSmallPages.
	if large.Spans != 1 {
		t.Fatalf("large.Spans = %d, want 1", large.Spans)
	}
	if large.ReturnedPages != 13 {
		t.Fatalf("large.ReturnedPages = %d, want 13", large.ReturnedPages)
	}
}

func TestChunkCounts(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.Get(page.Length(page.PagesPerHugePage)) // fill entirely
	counts := tr.ChunkCounts()
	for i, c := range counts {
		if c != 0 {
			t.Fatalf("ChunkCounts()[%d] = %d on a full tracker, want 0", i, c)
		}
	}
}

func TestCountInfoInHugePage(t *testing.T) {
	tr, _ := newTestTracker(t)
	native := uint32(page.PagesPerHugePage)

	r := tr.Get(10) // live pages [0,10)
	tr.Get(5)       // live pages [10,15), leaves the rest free
	f := unback.NewFake()
	// Free [0,10) and release every free page ([0,10) and [15,256)), so
	// there are released pages to cross against the oracle's "unbacked"
	// bitmap.
	tr.Put(page.Range{Start: r.Page, N: 10})
	tr.ReleaseFree(f.Func())

	unbacked := bitmap.New(native)
	swapped := bitmap.New(native)
	unbacked.Set(2)  // falls within the released [0,10) run: non_free_non_used_unbacked.
	unbacked.Set(12) // falls within the live [10,15) run: used_unbacked.
	swapped.Set(20)  // falls within a non-live (released) page: free_swapped.

	counts := tr.CountInfoInHugePage(&unbacked, &swapped, native)
	if counts.NonFreeNonUsedUnbacked != 1 {
		t.Fatalf("NonFreeNonUsedUnbacked = %d, want 1", counts.NonFreeNonUsedUnbacked)
	}
	if counts.UsedUnbacked != 1 {
		t.Fatalf("UsedUnbacked = %d, want 1", counts.UsedUnbacked)
	}
	if counts.FreeSwapped != 1 {
		t.Fatalf("FreeSwapped = %d, want 1", counts.FreeSwapped)
	}
}
