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

// Package atomicbitops provides wrapped atomic types for the handful of
// filler counters that are sampled by telemetry outside the page-heap
// lock (PageTracker.nalloc). It drops
// the 32-bit-platform alignment workarounds the teacher's equivalent
// package carries, since this allocator's page layout already assumes a
// 64-bit amd64/arm64 host (see pkg/page).
package atomicbitops

import "sync/atomic"

// Uint64 is an atomic uint64 counter.
type Uint64 struct {
	value uint64
}

// FromUint64 returns a Uint64 initialized to v.
func FromUint64(v uint64) Uint64 {
	return Uint64{value: v}
}

// Load returns the current value.
func (u *Uint64) Load() uint64 {
	return atomic.LoadUint64(&u.value)
}

// Store sets the value.
func (u *Uint64) Store(v uint64) {
	atomic.StoreUint64(&u.value, v)
}

// Add adds delta and returns the new value.
func (u *Uint64) Add(delta uint64) uint64 {
	return atomic.AddUint64(&u.value, delta)
}

// RacyLoad reads the value without synchronization. Callers must already
// hold whatever lock serializes writes (i.e. the page-heap lock); this is
// for hot paths that would otherwise pay for an atomic load they don't
// need.
func (u *Uint64) RacyLoad() uint64 {
	return u.value
}

// Int64 is an atomic int64 counter.
type Int64 struct {
	value int64
}

// FromInt64 returns an Int64 initialized to v.
func FromInt64(v int64) Int64 {
	return Int64{value: v}
}

// Load returns the current value.
func (i *Int64) Load() int64 {
	return atomic.LoadInt64(&i.value)
}

// Store sets the value.
func (i *Int64) Store(v int64) {
	atomic.StoreInt64(&i.value, v)
}

// Add adds delta and returns the new value.
func (i *Int64) Add(delta int64) int64 {
	return atomic.AddInt64(&i.value, delta)
}

// Bool is an atomic boolean, backed by a Uint32 the way the teacher's
// Bool wraps its Uint32.
type Bool struct {
	value uint32
}

// FromBool returns a Bool initialized to v.
func FromBool(v bool) Bool {
	var b Bool
	b.Store(v)
	return b
}

// Load returns the current value.
func (b *Bool) Load() bool {
	return atomic.LoadUint32(&b.value) != 0
}

// Store sets the value.
func (b *Bool) Store(v bool) {
	var u uint32
	if v {
		u = 1
	}
	atomic.StoreUint32(&b.value, u)
}
