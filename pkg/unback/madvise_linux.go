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

package unback

import (
	"unsafe"

	"golang.org/x/sys/unix"
	"hugefiller.dev/hugefiller/pkg/page"
)

// Madvise returns a Func that unbacks ranges with madvise(2) using the
// given advice, the way the real allocator returns freed pages to the
// kernel. It is not safe to
// call on an address range that is not actually mapped by the process;
// callers own that precondition.
//
// advice should normally be unix.MADV_DONTNEED (pages are zeroed and
// immediately unbacked) or unix.MADV_FREE (pages are unbacked lazily,
// only under memory pressure); the filler's contract treats both the
// same way, since PageTracker.ReleaseFree only needs a boolean success.
func Madvise(advice int) Func {
	return func(r page.Range) bool {
		addr := r.Start.Addr()
		length := r.N.Bytes()
		b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length)
		return unix.Madvise(b, advice) == nil
	}
}
