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

// Package hugepagefiller implements HugePageFiller: the scheduler that
// places incoming page requests onto PageTrackers, partitioned by access
// density and fill state, and runs the subrelease policy that decides how
// many free pages to return to the operating system.
package hugepagefiller

import (
	"hugefiller.dev/hugefiller/pkg/bitmap"
	"hugefiller.dev/hugefiller/pkg/page"
	"hugefiller.dev/hugefiller/pkg/pagetracker"
	"hugefiller.dev/hugefiller/pkg/unback"
)

// Tracker is the capability set HugePageFiller needs from a per-huge-page
// allocator. *pagetracker.PageTracker satisfies it; spec.md §9 calls for
// an abstraction over the tracker's capability set rather than a
// concrete dependency, so the filler can be tested against a narrower
// fake when a property doesn't need the real bitmap machinery.
type Tracker interface {
	HugePage() page.HugePage
	Donated() bool
	ClearDonated()
	NumAllocations() uint64
	CreatedAt() int64
	UsedPages() page.Length
	FreePages() page.Length
	ReleasedPages() page.Length
	LongestFreeRange() page.Length
	Empty() bool
	ChunkCounts() [page.MaxSmallPages + 1]uint64

	Get(n page.Length) pagetracker.GetResult
	Put(r page.Range)
	ReleaseFree(u unback.Func) page.Length

	CountInfoInHugePage(unbacked, swapped *bitmap.Bitmap, native uint32) pagetracker.ResidencyCounts
}
