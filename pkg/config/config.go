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

// Package config loads the filler's tunables from a TOML file: the dense
// tracker ordering policy, the size of the release-candidate pool, and a
// default set of skip-subrelease look-back intervals. This is glue
// around HugePageFiller's construction, not part of the core scheduler.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// DensePolicy selects how dense trackers are ordered for placement and
// release, per spec.md §4 / SPEC_FULL.md §9.
type DensePolicy string

const (
	// LongestFreeRangeAndChunks orders dense trackers the same way
	// sparse trackers are ordered: by longest free range, then by the
	// chunk-count heuristic.
	LongestFreeRangeAndChunks DensePolicy = "longest_free_range_and_chunks"
	// SpansAllocated orders dense trackers by lifetime allocation count,
	// descending. It changes ordering only: the filler still allocates the
	// full requested span, not one native page at a time.
	SpansAllocated DensePolicy = "spans_allocated"
)

// FillerConfig holds the filler's tunables.
type FillerConfig struct {
	DensePolicy          DensePolicy `toml:"dense_policy"`
	CandidatesForRelease int         `toml:"candidates_for_release"`
	SkipSubrelease       Intervals   `toml:"skip_subrelease"`
}

// Intervals mirrors demand.Intervals in a
// TOML-friendly (string duration) shape.
type Intervals struct {
	PeakInterval  string `toml:"peak_interval"`
	ShortInterval string `toml:"short_interval"`
	LongInterval  string `toml:"long_interval"`
}

// Default returns the filler's out-of-the-box configuration.
func Default() FillerConfig {
	return FillerConfig{
		DensePolicy:          LongestFreeRangeAndChunks,
		CandidatesForRelease: 8,
	}
}

// Load reads a FillerConfig from a TOML file at path, filling in any
// fields the file omits with Default's values.
func Load(path string) (FillerConfig, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FillerConfig{}, fmt.Errorf("config: decoding %q: %w", path, err)
	}
	return cfg, nil
}

// ParseDurations converts the string durations in cfg.SkipSubrelease into
// time.Durations, treating an empty string as zero (disabled).
func (i Intervals) ParseDurations() (peak, short, long time.Duration, err error) {
	parse := func(s string) (time.Duration, error) {
		if s == "" {
			return 0, nil
		}
		return time.ParseDuration(s)
	}
	if peak, err = parse(i.PeakInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("config: peak_interval: %w", err)
	}
	if short, err = parse(i.ShortInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("config: short_interval: %w", err)
	}
	if long, err = parse(i.LongInterval); err != nil {
		return 0, 0, 0, fmt.Errorf("config: long_interval: %w", err)
	}
	return peak, short, long, nil
}
