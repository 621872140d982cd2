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

// Package rangetracker specializes pkg/bitmap for one huge page's worth
// of native pages: O(1) used/free counts (bitmap.Bitmap already keeps a
// running population count) and an O(PagesPerHugePage) longest-free-run
// query. PageTracker embeds two of these, one for its allocated bitmap
// and one for its released bitmap.
package rangetracker

import (
	"hugefiller.dev/hugefiller/pkg/bitmap"
	"hugefiller.dev/hugefiller/pkg/page"
)

// RangeTracker tracks which native pages within a single huge page are
// set, with O(1) population counts and an O(n) longest-clear-run query.
type RangeTracker struct {
	bits bitmap.Bitmap
}

// New returns a RangeTracker over n pages, all clear.
func New(n uint32) RangeTracker {
	return RangeTracker{bits: bitmap.New(n)}
}

// Test reports whether page i is set.
func (t *RangeTracker) Test(i page.Length) bool {
	return t.bits.Test(uint32(i))
}

// Set sets every page in r.
func (t *RangeTracker) Set(r page.Range) {
	t.bits.SetRange(uint32(r.Start), uint32(r.End()))
}

// Clear clears every page in r.
func (t *RangeTracker) Clear(r page.Range) {
	t.bits.ClearRange(uint32(r.Start), uint32(r.End()))
}

// Used returns the number of set pages.
func (t *RangeTracker) Used() page.Length {
	return page.Length(t.bits.CountSet())
}

// Free returns the number of clear pages.
func (t *RangeTracker) Free() page.Length {
	return page.Length(t.bits.CountClear())
}

// LongestFreeRange returns the length of the longest run of clear pages.
func (t *RangeTracker) LongestFreeRange() page.Length {
	return page.Length(t.bits.LongestClearRun())
}

// FindFree returns the lowest-indexed run of at least n clear pages.
func (t *RangeTracker) FindFree(n page.Length) (page.Length, bool) {
	start, ok := t.bits.FindClearRunOfAtLeast(uint32(n))
	return page.Length(start), ok
}

// ForEachClearRun invokes f with each maximal run of clear pages, in
// ascending order, as a page.Range relative to the first page of this
// huge page.
func (t *RangeTracker) ForEachClearRun(f func(r page.Range) bool) {
	t.bits.ForEachClearRun(func(begin, end uint32) bool {
		return f(page.Range{Start: page.PageId(begin), N: page.Length(end - begin)})
	})
}

// Intersects reports whether any page in r is set.
func (t *RangeTracker) Intersects(r page.Range) bool {
	for p := r.Start; p < r.End(); p++ {
		if t.Test(page.Length(p)) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (t *RangeTracker) Clone() RangeTracker {
	return RangeTracker{bits: t.bits.Clone()}
}
