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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

func TestDefaultsAreValid(t *testing.T) {
	opts := Defaults()
	require.NoError(t, opts.Validate())
	assert.Equal(t, 4, opts.Report.Threads)
	assert.Equal(t, 300*time.Second, opts.Report.PluginTimeoutDuration())
	assert.Equal(t, "obfuscate", opts.Clean.TreatCertificates)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero threads", func(o *Options) { o.Report.Threads = 0 }},
		{"bad compression", func(o *Options) { o.Report.Compression = "bzip3" }},
		{"bad transport", func(o *Options) { o.Collect.Transport = "telnet" }},
		{"bad certificates", func(o *Options) { o.Clean.TreatCertificates = "shred" }},
		{"negative log size", func(o *Options) { o.Report.LogSize = -1 }},
		{"bad upload method", func(o *Options) { o.Upload.Method = "patch" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Defaults()
			tt.mutate(opts)
			err := opts.Validate()
			require.Error(t, err)
			assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing optional", func(t *testing.T) {
		opts := Defaults()
		require.NoError(t, LoadFile(opts, filepath.Join(dir, "nope"), false, nil))
		assert.Equal(t, Defaults(), opts)
	})

	t.Run("missing required", func(t *testing.T) {
		err := LoadFile(Defaults(), filepath.Join(dir, "nope"), true, nil)
		require.Error(t, err)
		assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
	})

	t.Run("yaml overrides only given keys", func(t *testing.T) {
		p := filepath.Join(dir, "sos.yaml")
		require.NoError(t, os.WriteFile(p, []byte("batch: true\nbogus: 1\nreport:\n  threads: 8\n  skip_plugins: [kernel]\n"), 0o600))
		opts := Defaults()
		require.NoError(t, LoadFile(opts, p, true, nil))
		assert.True(t, opts.Batch)
		assert.Equal(t, 8, opts.Report.Threads)
		assert.Equal(t, []string{"kernel"}, opts.Report.SkipPlugins)
		assert.Equal(t, 25, opts.Report.LogSize)
	})

	t.Run("json", func(t *testing.T) {
		p := filepath.Join(dir, "sos.conf")
		require.NoError(t, os.WriteFile(p, []byte(`{"clean": {"keywords": ["secret"]}}`), 0o600))
		opts := Defaults()
		require.NoError(t, LoadFile(opts, p, true, nil))
		assert.Equal(t, []string{"secret"}, opts.Clean.Keywords)
	})

	t.Run("malformed", func(t *testing.T) {
		p := filepath.Join(dir, "broken.yaml")
		require.NoError(t, os.WriteFile(p, []byte("report: [unclosed"), 0o600))
		err := LoadFile(Defaults(), p, true, nil)
		require.Error(t, err)
		assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
	})
}

func TestParseSince(t *testing.T) {
	got, err := ParseSince("20240102")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local), got)

	got, err = ParseSince("2024010213")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 13, 0, 0, 0, time.Local), got)

	got, err = ParseSince("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	for _, bad := range []string{"2024", "20241301", "2024010212345678"} {
		_, err := ParseSince(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePluginOptions(t *testing.T) {
	got, err := ParsePluginOptions([]string{
		"kernel.with-timer=true,networking.ethtool=false",
		"kubernetes.podlogs-filter=a,b",
		"process.lsof",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]string{
		"kernel":     {"with-timer": "true"},
		"networking": {"ethtool": "false"},
		"kubernetes": {"podlogs-filter": "a,b"},
		"process":    {"lsof": "true"},
	}, got)

	_, err = ParsePluginOptions([]string{"noplugin=1"})
	require.Error(t, err)
	assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
}

func TestPresetStore(t *testing.T) {
	store := NewPresetStore(filepath.Join(t.TempDir(), "presets.d"))

	presets, err := store.List()
	require.NoError(t, err)
	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"gpu_node", "minimal", "none"}, names)

	require.NoError(t, store.Add(&Preset{
		Name: "quick",
		Desc: "quick run",
		Args: map[string]any{"threads": 2, "skip_plugins": []string{"logs"}},
	}))
	assert.Error(t, store.Add(&Preset{Name: "quick", Desc: "again"}))
	assert.Error(t, store.Add(&Preset{Name: "bad", Desc: "x", Args: map[string]any{"threads": 0}}))
	assert.Error(t, store.Add(&Preset{Name: "unknown_arg", Desc: "x", Args: map[string]any{"bogus": true}}))

	p, err := store.Get("quick")
	require.NoError(t, err)
	opts := Defaults()
	require.NoError(t, p.Apply(opts))
	assert.Equal(t, 2, opts.Report.Threads)
	assert.Equal(t, []string{"logs"}, opts.Report.SkipPlugins)
	assert.Equal(t, "quick", opts.Report.Preset)

	assert.Error(t, store.Delete("minimal"))
	require.NoError(t, store.Delete("quick"))
	_, err = store.Get("quick")
	require.Error(t, err)
	assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
}

func TestLoadPresetRejectsSchemaViolations(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "broken")
	require.NoError(t, os.WriteFile(p, []byte(`{"broken": {"note": "no desc"}}`), 0o644))
	_, err := LoadPreset(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "desc")
}

func TestResolveLayers(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "sos.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("report:\n  threads: 6\n  preset: minimal\n"), 0o600))

	opts, err := Resolve(Layers{
		ConfigFile: cfg,
		Presets:    NewPresetStore(filepath.Join(dir, "presets.d")),
		Override: func(o *Options) error {
			o.Report.CmdTimeout = 10
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 6, opts.Report.Threads)
	assert.Equal(t, 5, opts.Report.LogSize)
	assert.Equal(t, 10, opts.Report.CmdTimeout)
	assert.Equal(t, []string{"system"}, opts.Report.Profiles)

	_, err = Resolve(Layers{
		ConfigFile: filepath.Join(dir, "missing"),
		Preset:     "no_such_preset",
		Presets:    NewPresetStore(filepath.Join(dir, "presets.d")),
	})
	require.Error(t, err)
	assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
}
