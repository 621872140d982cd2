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
	"context"
	"sync"
	"time"

	"hugefiller.dev/hugefiller/pkg/log"
	"hugefiller.dev/hugefiller/pkg/page"
	"hugefiller.dev/hugefiller/pkg/unback"
)

// ReleaseDriver periodically calls ReleasePages/ReleasePartialPages on a
// Filler, acquiring the caller-supplied page-heap lock around each call
// (spec.md §5's single collaborator precondition this repo actually
// takes). It is a convenience the page heap may use or ignore; the
// filler's own methods stay synchronous and lock-free.
type ReleaseDriver struct {
	filler *Filler
	lock   sync.Locker
	unback unback.Func
	logger log.Logger

	// Desired is the number of pages to ask for on every tick; DesiredPartial
	// does the same for the partial-release pass. Either may be zero to
	// skip that pass.
	Desired, DesiredPartial page.Length
}

// NewReleaseDriver returns a driver over filler, guarded by lock. unback
// failures are logged through a rate-limited Warning logger, so a host
// that can't honor madvise doesn't flood the log once per tick forever.
func NewReleaseDriver(filler *Filler, lock sync.Locker, u unback.Func) *ReleaseDriver {
	logger := log.RateLimitedLogger(log.Log(), 10*time.Second)
	d := &ReleaseDriver{filler: filler, lock: lock, logger: logger}
	d.unback = func(r page.Range) bool {
		ok := u(r)
		if !ok {
			logger.Warningf("hugepagefiller: unback failed for range %v", r)
		}
		return ok
	}
	return d
}

// Run calls ReleasePages and ReleasePartialPages on every tick of period
// until ctx is cancelled.
func (d *ReleaseDriver) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *ReleaseDriver) tick() {
	d.lock.Lock()
	defer d.lock.Unlock()
	var released page.Length
	if d.Desired > 0 {
		released += d.filler.ReleasePages(d.Desired, d.unback, false, false)
	}
	if d.DesiredPartial > 0 {
		released += d.filler.ReleasePartialPages(d.DesiredPartial, d.unback)
	}
	if released > 0 && d.logger.IsLogging(log.Info) {
		d.logger.Infof("hugepagefiller: released %d pages this tick", released)
	}
}
