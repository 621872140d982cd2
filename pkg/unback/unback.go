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

// Package unback provides the MemoryModifyFunction collaborator:
// PageTracker.ReleaseFree calls it to actually return a range of free
// pages to the OS. A failure is not an error value; it means the range
// is still backed and the tracker should retry on a future release.
package unback

import "hugefiller.dev/hugefiller/pkg/page"

// Func unbacks r, returning false if the range could not be unbacked
// (e.g. an EINVAL from madvise, or a test injecting failure). The caller
// must not assume the range is unbacked when Func returns false.
type Func func(r page.Range) bool
