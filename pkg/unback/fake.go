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

import "hugefiller.dev/hugefiller/pkg/page"

// Call records one invocation of a Fake.
type Call struct {
	Range page.Range
	Ok    bool
}

// Fake is an in-memory MemoryModifyFunction for tests. It records every
// call and can be told to fail specific page ids.
type Fake struct {
	Calls []Call
	// FailPages, if non-nil, marks pages that should cause the call
	// covering them to fail.
	FailPages map[page.PageId]bool
}

// NewFake returns a Fake that succeeds for every range until configured
// otherwise.
func NewFake() *Fake {
	return &Fake{FailPages: make(map[page.PageId]bool)}
}

// Func returns the Func this Fake implements.
func (f *Fake) Func() Func {
	return f.unback
}

func (f *Fake) unback(r page.Range) bool {
	ok := true
	for p := r.Start; p < r.End(); p++ {
		if f.FailPages[p] {
			ok = false
			break
		}
	}
	f.Calls = append(f.Calls, Call{Range: r, Ok: ok})
	return ok
}

// Reset clears recorded calls without touching FailPages.
func (f *Fake) Reset() {
	f.Calls = nil
}
