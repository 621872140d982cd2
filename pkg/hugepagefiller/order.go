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
	"github.com/google/btree"

	"hugefiller.dev/hugefiller/pkg/page"
)

// State is a tracker's membership in one of the filler's four per-density
// lists, per spec.md §3. Full trackers are not stored in any list.
type State int

const (
	Regular State = iota
	Donated
	PartialReleased
	Released
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Regular:
		return "regular"
	case Donated:
		return "donated"
	case PartialReleased:
		return "partial_released"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// btreeDegree is the node fanout for every ordered list. The lists are
// small (bounded by the number of live huge pages under one filler), so
// this is not performance-sensitive; it matches the degree google/btree's
// own examples use.
const btreeDegree = 32

// orderedList is one (density, state) tracker list, kept sorted by a
// caller-supplied criterion via github.com/google/btree, per spec.md §9's
// "state-owned ordered container keyed by the sort criterion" design
// note. Every mutation to a tracker's sort key must Remove it before the
// mutation and re-Insert it after; the tree does not observe changes to
// items already inside it.
type orderedList struct {
	tree *btree.BTreeG[Tracker]
}

func newOrderedList(less btree.LessFunc[Tracker]) *orderedList {
	return &orderedList{tree: btree.NewG(btreeDegree, less)}
}

func (l *orderedList) Insert(t Tracker) { l.tree.ReplaceOrInsert(t) }
func (l *orderedList) Remove(t Tracker) { l.tree.Delete(t) }
func (l *orderedList) Len() int         { return l.tree.Len() }

// First returns the lowest-ordered tracker with longest_free_range >= n,
// the placement rule from spec.md §4.2 step 3.
func (l *orderedList) First(n page.Length) (Tracker, bool) {
	var found Tracker
	var ok bool
	l.tree.Ascend(func(t Tracker) bool {
		if t.LongestFreeRange() >= n {
			found, ok = t, true
			return false
		}
		return true
	})
	return found, ok
}

// Ascend visits every tracker in list order.
func (l *orderedList) Ascend(f func(Tracker) bool) { l.tree.Ascend(f) }

// hugePageAddr gives every comparator a total, stable tie-break: two
// trackers never share a huge page.
func hugePageAddr(t Tracker) uint64 {
	return uint64(t.HugePage().FirstPage())
}

// lessLongestFreeRangeAndChunks orders ascending by longest_free_range
// (so iterating the list finds the tightest adequate fit first), tying on
// total free-chunk count (fewer, more consolidated chunks first), finally
// on huge page identity.
func lessLongestFreeRangeAndChunks(a, b Tracker) bool {
	if la, lb := a.LongestFreeRange(), b.LongestFreeRange(); la != lb {
		return la < lb
	}
	ca, cb := a.ChunkCounts()[1], b.ChunkCounts()[1]
	if ca != cb {
		return ca < cb
	}
	return hugePageAddr(a) < hugePageAddr(b)
}

// lessSpansAllocated orders dense trackers by lifetime allocation count
// descending: the tracker that has already served the most small spans
// is preferred, per the SpansAllocated dense policy in spec.md §3.
func lessSpansAllocated(a, b Tracker) bool {
	if na, nb := a.NumAllocations(), b.NumAllocations(); na != nb {
		return na > nb
	}
	return hugePageAddr(a) < hugePageAddr(b)
}

// lessByUsedThenLongestFree orders ascending by used_pages, ties broken
// by longest_free_range descending: the release-candidate tie-break from
// spec.md §4.3.
func lessByUsedThenLongestFree(a, b Tracker) bool {
	if ua, ub := a.UsedPages(), b.UsedPages(); ua != ub {
		return ua < ub
	}
	if la, lb := a.LongestFreeRange(), b.LongestFreeRange(); la != lb {
		return la > lb
	}
	return hugePageAddr(a) < hugePageAddr(b)
}
