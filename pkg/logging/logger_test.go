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
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewRunLoggers(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	rl, err := NewRunLoggers(RunOptions{Dir: dir, Console: &console})
	require.NoError(t, err)

	rl.Main.Debug("plugin detail", "plugin", "host")
	rl.UI.With("plugin", "networking").Info("collecting")
	rl.UI.Debug("hidden at info level")
	require.NoError(t, rl.Close())

	mainLog, err := os.ReadFile(filepath.Join(dir, "sos.log"))
	require.NoError(t, err)
	assert.Contains(t, string(mainLog), "plugin detail")

	uiLog, err := os.ReadFile(filepath.Join(dir, "ui.log"))
	require.NoError(t, err)
	assert.Contains(t, string(uiLog), "networking")
	assert.Contains(t, string(uiLog), "collecting")
	assert.NotContains(t, string(uiLog), "hidden")

	assert.Equal(t, string(uiLog), console.String())
}

func TestNewRunLoggersQuiet(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	rl, err := NewRunLoggers(RunOptions{Dir: dir, Console: &console, Quiet: true})
	require.NoError(t, err)
	rl.UI.Info("only in file")
	require.NoError(t, rl.Close())

	assert.Empty(t, console.String())
	uiLog, err := os.ReadFile(filepath.Join(dir, "ui.log"))
	require.NoError(t, err)
	assert.Contains(t, string(uiLog), "only in file")
}

func TestLineHandlerWarnPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(newLineHandler(&buf, slog.LevelInfo))
	l.Warn("disk low", "free", 10)
	assert.Equal(t, " WARN: disk low free=10\n", buf.String())
}

func TestDiscard(t *testing.T) {
	rl := Discard()
	rl.Main.Info("nothing")
	rl.UI.Info("nothing")
	assert.NoError(t, rl.Close())
}
