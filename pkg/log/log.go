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

// Package log provides the small logging facade the filler uses instead
// of calling the standard library's log package directly: a Level-gated
// Logger interface, a default implementation writing to stderr, and a
// package-level logger that Debugf/Infof/Warningf write through.
package log

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Level is a logging verbosity level.
type Level int

const (
	// Warning is for conditions that are recoverable but unexpected, such
	// as an unback failure.
	Warning Level = iota
	// Info is for high-level lifecycle events, such as a huge page being
	// fully subreleased.
	Info
	// Debug is for per-operation detail, such as individual placement
	// decisions.
	Debug
)

// Logger is the interface the filler logs through.
type Logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warningf(format string, v ...any)
	IsLogging(level Level) bool
}

// basicLogger writes to a *log.Logger, filtered by a minimum Level.
type basicLogger struct {
	mu  sync.Mutex
	min Level
	out *log.Logger
}

// NewBasicLogger returns a Logger that writes lines at or above min to
// stderr.
func NewBasicLogger(min Level) Logger {
	return &basicLogger{min: min, out: log.New(os.Stderr, "", log.LstdFlags)}
}

func (b *basicLogger) IsLogging(level Level) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return level <= b.min
}

func (b *basicLogger) logf(level, prefix, format string, v ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out.Print(prefix + fmt.Sprintf(format, v...))
}

func (b *basicLogger) Debugf(format string, v ...any) {
	if b.IsLogging(Debug) {
		b.logf("debug", "DEBUG: ", format, v...)
	}
}

func (b *basicLogger) Infof(format string, v ...any) {
	if b.IsLogging(Info) {
		b.logf("info", "INFO: ", format, v...)
	}
}

func (b *basicLogger) Warningf(format string, v ...any) {
	if b.IsLogging(Warning) {
		b.logf("warning", "WARNING: ", format, v...)
	}
}

var (
	globalMu sync.RWMutex
	global   Logger = NewBasicLogger(Info)
)

// SetTarget replaces the global logger.
func SetTarget(l Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = l
}

// Log returns the current global logger.
func Log() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Debugf logs through the global logger at Debug level.
func Debugf(format string, v ...any) { Log().Debugf(format, v...) }

// Infof logs through the global logger at Info level.
func Infof(format string, v ...any) { Log().Infof(format, v...) }

// Warningf logs through the global logger at Warning level.
func Warningf(format string, v ...any) { Log().Warningf(format, v...) }

// IsLogging reports whether the global logger would emit level.
func IsLogging(level Level) bool { return Log().IsLogging(level) }
