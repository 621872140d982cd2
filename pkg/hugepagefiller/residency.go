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
	"hugefiller.dev/hugefiller/pkg/pagetracker"
	"hugefiller.dev/hugefiller/pkg/residency"
)

// ResidencyCounts aggregates pagetracker.ResidencyCounts across every huge
// page the filler holds, by crossing each tracker's allocated/released
// bitmaps against the oracle's answer for that huge page. A tracker the
// oracle reports Unavailable for is skipped rather than counted as zero,
// since "no data" and "fully resident" are different facts.
func (f *Filler) ResidencyCounts(oracle residency.Oracle) pagetracker.ResidencyCounts {
	native := oracle.NativePagesPerHugePage()
	var total pagetracker.ResidencyCounts
	for hp, e := range f.byHugePage {
		unbacked, swapped, status := oracle.GetUnbackedAndSwappedBitmaps(hp.FirstPage().Addr())
		if status != residency.OK {
			continue
		}
		c := e.tracker.CountInfoInHugePage(&unbacked, &swapped, native)
		total.FreeSwapped += c.FreeSwapped
		total.UsedSwapped += c.UsedSwapped
		total.UsedUnbacked += c.UsedUnbacked
		total.NonFreeNonUsedUnbacked += c.NonFreeNonUsedUnbacked
	}
	return total
}
