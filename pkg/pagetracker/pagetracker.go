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

// Package pagetracker implements PageTracker, the per-huge-page
// bitmap-based allocator: a first-fit allocator over PagesPerHugePage
// native pages, with an explicit "released" (unbacked) state tracked
// alongside "allocated" so the filler can subrelease free pages without
// losing the bitmap invariant that a page is never both live and
// unbacked at once.
package pagetracker

import (
	"fmt"

	"hugefiller.dev/hugefiller/pkg/atomicbitops"
	"hugefiller.dev/hugefiller/pkg/bitmap"
	"hugefiller.dev/hugefiller/pkg/clock"
	"hugefiller.dev/hugefiller/pkg/page"
	"hugefiller.dev/hugefiller/pkg/rangetracker"
	"hugefiller.dev/hugefiller/pkg/unback"
)

// PageTracker is a bitmap-based allocator over one huge page's worth of
// native pages. The zero value is not usable; construct with New.
type PageTracker struct {
	hugePage page.HugePage

	// allocated has a set bit for every live (in-use) native page.
	allocated rangetracker.RangeTracker
	// released has a set bit for every page that is free and has been
	// unbacked since it was last allocated. allocated and released are
	// never simultaneously set for the same page (P1).
	released rangetracker.RangeTracker

	// donated huge pages only accept sparse spans, until the first time
	// they become fully used, at which point the filler reverts them to
	// Regular.
	donated bool

	createdAt int64

	// nalloc is the lifetime allocation count, exposed via
	// atomicbitops.Uint64 so telemetry can sample it without the
	// page-heap lock.
	nalloc atomicbitops.Uint64
}

// New constructs a PageTracker for hp. donated marks a huge page donated
// to the filler as a side effect of an adjacent huge-aligned allocation.
func New(hp page.HugePage, donated bool, c clock.Clock) *PageTracker {
	return &PageTracker{
		hugePage:  hp,
		allocated: rangetracker.New(page.PagesPerHugePage),
		released:  rangetracker.New(page.PagesPerHugePage),
		donated:   donated,
		createdAt: c.Now(),
	}
}

// HugePage returns the huge page this tracker manages.
func (t *PageTracker) HugePage() page.HugePage { return t.hugePage }

// Donated reports whether this tracker was donated, and thus restricted
// to sparse spans until its first full use.
func (t *PageTracker) Donated() bool { return t.donated }

// ClearDonated reverts a donated tracker to a regular one. The filler
// calls this the first time the tracker transitions to Full.
func (t *PageTracker) ClearDonated() { t.donated = false }

// CreatedAt returns the wall-cycle time the tracker was constructed.
func (t *PageTracker) CreatedAt() int64 { return t.createdAt }

// NumAllocations returns the lifetime count of Get calls.
func (t *PageTracker) NumAllocations() uint64 { return t.nalloc.Load() }

// UsedPages returns the number of live pages.
func (t *PageTracker) UsedPages() page.Length { return t.allocated.Used() }

// FreePages returns the number of pages that are neither live nor
// released.
func (t *PageTracker) FreePages() page.Length {
	return page.Length(page.PagesPerHugePage) - t.allocated.Used() - t.released.Used()
}

// ReleasedPages returns the number of pages that are free and unbacked.
func (t *PageTracker) ReleasedPages() page.Length { return t.released.Used() }

// LongestFreeRange returns the length of the longest run of pages that
// are not live, whether or not they are released. It equals the longest
// backed free run only when released is empty; otherwise a
// clear-in-allocated run may still
// contain released pages, which get can still use (it just has to
// re-back them), so LongestFreeRange is measured purely against
// allocated, per spec.md §4.1's "longest_free_range... equals the
// length of the longest run of bits clear in allocated".
func (t *PageTracker) LongestFreeRange() page.Length {
	return t.allocated.LongestFreeRange()
}

// Empty reports whether the tracker holds no live pages. Released pages
// do not keep a tracker from being empty.
func (t *PageTracker) Empty() bool {
	return t.allocated.Used() == 0
}

// ChunkCounts returns, for each i in [1, MaxSmallPages], the number of
// maximal free (clear-in-allocated) runs of length at least i. It is the
// placement tie-break heuristic spec.md §3 calls "chunk-level": two
// trackers with the same longest_free_range are ordered by preferring the
// one with fewer free chunks of any length (ChunkCounts()[1]).
func (t *PageTracker) ChunkCounts() [page.MaxSmallPages + 1]uint64 {
	var byLength [page.MaxSmallPages + 1]uint64
	t.allocated.ForEachClearRun(func(r page.Range) bool {
		l := r.N
		if l > page.MaxSmallPages {
			l = page.MaxSmallPages
		}
		byLength[l]++
		return true
	})
	var counts [page.MaxSmallPages + 1]uint64
	var running uint64
	for i := page.MaxSmallPages; i >= 1; i-- {
		running += byLength[i]
		counts[i] = running
	}
	return counts
}

// GetResult is the outcome of a successful Get.
type GetResult struct {
	// Page is the base native page of the allocated range.
	Page page.PageId
	// WasReleased is true if any page in the returned range had
	// previously been unbacked; the caller must re-back those pages
	// before use.
	WasReleased bool
}

// Get locates the lowest-indexed run of at least n clear pages in the
// allocated bitmap and marks them live. It panics if no such run exists;
// per spec.md §4.1, the contract is that callers consult
// LongestFreeRange first, so a failing precondition here is a
// programming error, not a recoverable outcome.
func (t *PageTracker) Get(n page.Length) GetResult {
	if n == 0 {
		panic("pagetracker: Get(0)")
	}
	offset, ok := t.allocated.FindFree(n)
	if !ok {
		panic(fmt.Sprintf("pagetracker: Get(%d): no fit (longest free range is %d)", n, t.LongestFreeRange()))
	}
	r := page.Range{Start: t.hugePage.FirstPage().Add(offset), N: n}
	localR := page.Range{Start: page.PageId(offset), N: n}

	wasReleased := t.released.Intersects(localR)
	t.allocated.Set(localR)
	if wasReleased {
		t.released.Clear(localR)
	}
	t.nalloc.Add(1)
	return GetResult{Page: r.Start, WasReleased: wasReleased}
}

// Put clears r from the allocated bitmap. It does not touch released;
// adjacent free runs coalesce automatically since population counts are
// derived from the bitmap, not cached separately. It panics if any page
// in r is not currently allocated.
func (t *PageTracker) Put(r page.Range) {
	local := t.toLocal(r)
	for p := local.Start; p < local.End(); p++ {
		if !t.allocated.Test(page.Length(p)) {
			panic(fmt.Sprintf("pagetracker: Put(%v): page %d was not allocated", r, p))
		}
	}
	t.allocated.Clear(local)
}

// ReleaseFree scans for pages that are neither live nor already released —
// clear in both allocated and released — and unbacks each maximal such
// run. The range actually passed to unback is widened forward to swallow
// the already-released pages that immediately follow it, so a freshly
// freed run followed by a previously released one produces a single call
// spanning both (P7); released pages just before the run are not added to
// the call. The widened, already-released portion contributes nothing to the
// returned count, since it is already marked released. It returns the
// number of pages newly marked released. A second call with no
// intervening Put finds no candidate runs and releases zero pages (P6).
func (t *PageTracker) ReleaseFree(unback unback.Func) page.Length {
	n := uint32(page.PagesPerHugePage)
	notLive := func(p uint32) bool {
		return !t.allocated.Test(page.Length(p)) && !t.released.Test(page.Length(p))
	}
	isReleased := func(p uint32) bool { return t.released.Test(page.Length(p)) }

	var released page.Length
	var i uint32
	for i < n {
		if !notLive(i) {
			i++
			continue
		}
		start := i
		for i < n && notLive(i) {
			i++
		}
		end := i // [start, end) is free and not yet released: the real new work.

		wideStart := start
		wideEnd := end
		for wideEnd < n && isReleased(wideEnd) {
			wideEnd++
		}

		call := page.Range{
			Start: t.hugePage.FirstPage().Add(page.Length(wideStart)),
			N:     page.Length(wideEnd - wideStart),
		}
		if unback(call) {
			newRange := page.Range{Start: page.PageId(start), N: page.Length(end - start)}
			t.released.Set(newRange)
			released += newRange.N
		}
	}
	return released
}

// SpanStats accumulates per-length free-run counts for small spans,
// split by whether each run is currently backed ("normal") or unbacked
// ("returned").
type SpanStats struct {
	// NormalLength[l] counts backed free runs of length l.
	NormalLength [page.MaxSmallPages + 1]uint64
	// ReturnedLength[l] counts unbacked free runs of length l.
	ReturnedLength [page.MaxSmallPages + 1]uint64
}

// LargeSpanStats accumulates stats for free runs longer than
// MaxSmallPages.
type LargeSpanStats struct {
	Spans         uint64
	NormalPages   page.Length
	ReturnedPages page.Length
}

// AddSpanStats walks the allocated bitmap's clear runs and adds each to
// small or large, splitting each run's pages by whether the majority are
// released, per spec.md §4.1.
func (t *PageTracker) AddSpanStats(small *SpanStats, large *LargeSpanStats) {
	t.allocated.ForEachClearRun(func(r page.Range) bool {
		l := r.N
		var releasedCount page.Length
		for p := r.Start; p < r.End(); p++ {
			if t.released.Test(page.Length(p)) {
				releasedCount++
			}
		}
		normalCount := l - releasedCount

		if l <= page.MaxSmallPages {
			if releasedCount*2 > l {
				small.ReturnedLength[l]++
			} else {
				small.NormalLength[l]++
			}
			return true
		}
		large.Spans++
		large.NormalPages += normalCount
		large.ReturnedPages += releasedCount
		return true
	})
}

// ResidencyCounts classifies a huge page's native (kernel) pages by
// crossing the allocator's allocated/released bitmaps with the residency
// oracle's unbacked/swapped bitmaps, per spec.md §4.1.
type ResidencyCounts struct {
	// FreeSwapped counts free allocator pages whose native pages are
	// swapped out.
	FreeSwapped uint64
	// UsedSwapped counts live allocator pages whose native pages are
	// swapped out.
	UsedSwapped uint64
	// UsedUnbacked counts live allocator pages whose native pages are
	// unbacked (should not normally happen, but is tracked as a
	// diagnostic signal of kernel/allocator disagreement).
	UsedUnbacked uint64
	// NonFreeNonUsedUnbacked counts pages that are released (the
	// allocator's own record of having unbacked them) and whose native
	// pages are indeed unbacked.
	NonFreeNonUsedUnbacked uint64
}

// CountInfoInHugePage scales the oracle's native-page bitmaps to the
// allocator's page size and classifies every native page. native is the
// number of oracle bits per huge page; it is assumed to be a multiple or
// divisor of PagesPerHugePage.
func (t *PageTracker) CountInfoInHugePage(unbacked, swapped *bitmap.Bitmap, native uint32) ResidencyCounts {
	var c ResidencyCounts
	for i := uint32(0); i < native; i++ {
		// Map native bit i to the allocator page it falls within.
		allocatorPage := page.Length(uint64(i) * page.PagesPerHugePage / uint64(native))
		live := t.allocated.Test(allocatorPage)
		rel := t.released.Test(allocatorPage)

		isUnbacked := unbacked.Test(i)
		isSwapped := swapped.Test(i)

		switch {
		case !live && isSwapped:
			c.FreeSwapped++
		case live && isSwapped:
			c.UsedSwapped++
		case live && isUnbacked:
			c.UsedUnbacked++
		case rel && isUnbacked:
			c.NonFreeNonUsedUnbacked++
		}
	}
	return c
}

// toLocal converts a global page.Range into one relative to this huge
// page's first page, panicking if r does not fall entirely within it.
func (t *PageTracker) toLocal(r page.Range) page.Range {
	if !t.hugePage.Contains(r.Start) || !t.hugePage.Contains(r.End()-1) {
		panic(fmt.Sprintf("pagetracker: range %v is not contained in huge page %v", r, t.hugePage))
	}
	return page.Range{Start: r.Start - t.hugePage.FirstPage(), N: r.N}
}
