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

package bitmap

import "testing"

func TestSetClearTest(t *testing.T) {
	b := New(128)
	if b.Test(5) {
		t.Fatalf("bit 5 should start clear")
	}
	b.Set(5)
	if !b.Test(5) {
		t.Fatalf("bit 5 should be set")
	}
	if got, want := b.CountSet(), uint32(1); got != want {
		t.Fatalf("CountSet() = %d, want %d", got, want)
	}
	b.Clear(5)
	if b.Test(5) {
		t.Fatalf("bit 5 should be clear again")
	}
	if got, want := b.CountSet(), uint32(0); got != want {
		t.Fatalf("CountSet() = %d, want %d", got, want)
	}
}

func TestSetRangeClearRange(t *testing.T) {
	b := New(256)
	b.SetRange(10, 70)
	if got, want := b.CountSet(), uint32(60); got != want {
		t.Fatalf("CountSet() = %d, want %d", got, want)
	}
	for i := uint32(10); i < 70; i++ {
		if !b.Test(i) {
			t.Fatalf("bit %d should be set", i)
		}
	}
	if b.Test(9) || b.Test(70) {
		t.Fatalf("bits outside range should be clear")
	}
	b.ClearRange(20, 30)
	if got, want := b.CountSet(), uint32(50); got != want {
		t.Fatalf("CountSet() = %d, want %d", got, want)
	}
	for i := uint32(20); i < 30; i++ {
		if b.Test(i) {
			t.Fatalf("bit %d should have been cleared", i)
		}
	}
}

func TestFindClearRunOfAtLeast(t *testing.T) {
	b := New(16)
	b.SetRange(0, 4)
	b.SetRange(8, 10)
	// Clear runs: [4,8) len 4, [10,16) len 6.
	start, ok := b.FindClearRunOfAtLeast(5)
	if !ok || start != 10 {
		t.Fatalf("FindClearRunOfAtLeast(5) = (%d, %v), want (10, true)", start, ok)
	}
	start, ok = b.FindClearRunOfAtLeast(4)
	if !ok || start != 4 {
		t.Fatalf("FindClearRunOfAtLeast(4) = (%d, %v), want (4, true)", start, ok)
	}
	if _, ok := b.FindClearRunOfAtLeast(7); ok {
		t.Fatalf("FindClearRunOfAtLeast(7) should fail")
	}
}

func TestLongestClearRun(t *testing.T) {
	b := New(256)
	if got, want := b.LongestClearRun(), uint32(256); got != want {
		t.Fatalf("LongestClearRun() = %d, want %d", got, want)
	}
	b.SetRange(0, 256)
	if got, want := b.LongestClearRun(), uint32(0); got != want {
		t.Fatalf("LongestClearRun() = %d, want %d", got, want)
	}
	b.ClearRange(100, 150)
	if got, want := b.LongestClearRun(), uint32(50); got != want {
		t.Fatalf("LongestClearRun() = %d, want %d", got, want)
	}
}

func TestForEachClearRun(t *testing.T) {
	b := New(32)
	b.SetRange(5, 10)
	b.SetRange(20, 22)
	var runs [][2]uint32
	b.ForEachClearRun(func(begin, end uint32) bool {
		runs = append(runs, [2]uint32{begin, end})
		return true
	})
	want := [][2]uint32{{0, 5}, {10, 20}, {22, 32}}
	if len(runs) != len(want) {
		t.Fatalf("ForEachClearRun runs = %v, want %v", runs, want)
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Fatalf("ForEachClearRun runs = %v, want %v", runs, want)
		}
	}
}

func TestClearBeyondCapacityPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on out-of-range bit access")
		}
	}()
	b := New(8)
	b.Set(8)
}
