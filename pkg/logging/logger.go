// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ParseLevel converts a level name into a slog.Level. Unknown values map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewStructuredLogger returns a JSON logger on stderr tagged with module and version.
func NewStructuredLogger(module, version, level string) *slog.Logger {
	lev := ParseLevel(level)
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lev,
		AddSource: lev <= slog.LevelDebug,
	})
	return slog.New(h).With("module", module, "version", version)
}

// SetDefaultStructuredLogger installs the structured logger as the slog
// default, honoring LOG_LEVEL.
func SetDefaultStructuredLogger(module, version string) {
	SetDefaultStructuredLoggerWithLevel(module, version, os.Getenv("LOG_LEVEL"))
}

// SetDefaultStructuredLoggerWithLevel installs the structured logger with an explicit level.
func SetDefaultStructuredLoggerWithLevel(module, version, level string) {
	slog.SetDefault(NewStructuredLogger(module, version, level))
}

// NewLogLogger adapts the default slog handler to a standard library logger.
func NewLogLogger(level slog.Level, addSource bool) *log.Logger {
	h := slog.Default().Handler()
	if addSource {
		h = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: true})
	}
	return slog.NewLogLogger(h, level)
}

// RunOptions configures the per-run loggers.
type RunOptions struct {
	// Dir is the directory receiving the log files (sos_logs inside the staging area).
	Dir string
	// MainFile and UIFile name the two log files; defaults are sos.log and ui.log.
	MainFile string
	UIFile   string
	// Verbosity 0 is INFO, 1 or more is DEBUG.
	Verbosity int
	// Quiet suppresses UI output to the terminal; ui.log is still written.
	Quiet bool
	// Console receives UI lines; defaults to stdout.
	Console io.Writer
}

// RunLoggers holds the main (detailed, file backed) and UI (operator facing)
// sinks for a single run.
type RunLoggers struct {
	Main *slog.Logger
	UI   *slog.Logger

	files []*os.File
	once  sync.Once
}

// NewRunLoggers opens the log files under opts.Dir and builds the two sinks.
// When Dir is empty only the console sinks are created.
func NewRunLoggers(opts RunOptions) (*RunLoggers, error) {
	if opts.MainFile == "" {
		opts.MainFile = "sos.log"
	}
	if opts.UIFile == "" {
		opts.UIFile = "ui.log"
	}
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	if opts.Quiet {
		console = io.Discard
	}

	level := slog.LevelInfo
	if opts.Verbosity > 0 {
		level = slog.LevelDebug
	}

	rl := &RunLoggers{}
	mainOut := []io.Writer{}
	uiOut := []io.Writer{console}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
			return nil, err
		}
		mf, err := os.OpenFile(filepath.Join(opts.Dir, opts.MainFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		uf, err := os.OpenFile(filepath.Join(opts.Dir, opts.UIFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			mf.Close()
			return nil, err
		}
		rl.files = append(rl.files, mf, uf)
		mainOut = append(mainOut, mf)
		uiOut = append(uiOut, uf)
	}
	if opts.Verbosity > 1 && !opts.Quiet {
		mainOut = append(mainOut, os.Stderr)
	}

	var mainW io.Writer = io.Discard
	if len(mainOut) > 0 {
		mainW = io.MultiWriter(mainOut...)
	}
	rl.Main = slog.New(slog.NewTextHandler(mainW, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rl.UI = slog.New(newLineHandler(io.MultiWriter(uiOut...), level))
	return rl, nil
}

// Discard returns loggers that drop everything; used by tests and dry runs.
func Discard() *RunLoggers {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &RunLoggers{Main: l, UI: l}
}

// Close flushes and closes the underlying log files.
func (r *RunLoggers) Close() error {
	var firstErr error
	r.once.Do(func() {
		for _, f := range r.files {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}
