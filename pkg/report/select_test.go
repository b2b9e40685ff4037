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

package report

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/sos/pkg/config"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
)

func selectionRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	base := testPlugin("base", nil)
	base.Profiles = []string{"system"}

	optional := testPlugin("optional", nil)
	optional.DisabledByDefault = true

	triggered := testPlugin("triggered", nil)
	triggered.Trigger = plugin.Trigger{Files: []string{"/etc/not-installed.conf"}}

	debian := testPlugin("debonly", nil)
	debian.Families = []string{"debian"}

	net := testPlugin("net", nil)
	net.Profiles = []string{"network"}
	net.Options = []plugin.OptionSpec{
		{Name: "ethtool", Type: plugin.OptionBool, Default: false},
		{Name: "target", Type: plugin.OptionString},
	}

	return testRegistry(t, base, optional, triggered, debian, net)
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name    string
		opts    config.ReportOptions
		enabled []string
		skipped map[string]string
	}{
		{
			name:    "defaults",
			enabled: []string{"base", "net"},
			skipped: map[string]string{
				"optional":  reasonOptional,
				"triggered": reasonInactive,
				"debonly":   reasonNotValid,
			},
		},
		{
			name:    "only overrides trigger and default",
			opts:    config.ReportOptions{OnlyPlugins: []string{"optional", "triggered"}},
			enabled: []string{"optional", "triggered"},
			skipped: map[string]string{
				"base":    reasonNotSpecified,
				"debonly": reasonNotSpecified,
				"net":     reasonNotSpecified,
			},
		},
		{
			name:    "only ignores profiles",
			opts:    config.ReportOptions{OnlyPlugins: []string{"net"}, Profiles: []string{"system"}},
			enabled: []string{"net"},
		},
		{
			name:    "profile",
			opts:    config.ReportOptions{Profiles: []string{"network"}},
			enabled: []string{"net"},
			skipped: map[string]string{"base": reasonExcluded},
		},
		{
			name:    "skip",
			opts:    config.ReportOptions{SkipPlugins: []string{"base"}},
			enabled: []string{"net"},
			skipped: map[string]string{"base": reasonSkipped},
		},
		{
			name:    "enable forces trigger and default",
			opts:    config.ReportOptions{EnablePlugins: []string{"optional", "triggered"}},
			enabled: []string{"base", "net", "optional", "triggered"},
		},
		{
			name:    "enable does not beat skip",
			opts:    config.ReportOptions{EnablePlugins: []string{"optional"}, SkipPlugins: []string{"optional"}},
			enabled: []string{"base", "net"},
			skipped: map[string]string{"optional": reasonSkipped},
		},
		{
			name:    "enable does not beat policy",
			opts:    config.ReportOptions{EnablePlugins: []string{"debonly"}},
			enabled: []string{"base", "net"},
			skipped: map[string]string{"debonly": reasonNotValid},
		},
	}

	reg := selectionRegistry(t)
	env := &plugin.Env{Policy: &policy.Static{Root: t.TempDir(), FamilyList: []string{"independent", "redhat"}}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := Select(context.Background(), reg, env, tt.opts)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.enabled, sel.Names())
			for name, reason := range tt.skipped {
				assert.Equal(t, reason, sel.Skipped[name], name)
			}
			for _, name := range tt.enabled {
				assert.NotContains(t, sel.Skipped, name)
			}
		})
	}
}

func TestSelectUnknownNames(t *testing.T) {
	reg := selectionRegistry(t)
	env := &plugin.Env{Policy: &policy.Static{}}

	tests := []struct {
		name string
		opts config.ReportOptions
		want []string
	}{
		{"only", config.ReportOptions{OnlyPlugins: []string{"nope"}}, []string{"nope"}},
		{"skip", config.ReportOptions{SkipPlugins: []string{"base", "gone"}}, []string{"gone"}},
		{"enable", config.ReportOptions{EnablePlugins: []string{"zz", "aa"}}, []string{"aa, zz"}},
		{"profile", config.ReportOptions{Profiles: []string{"storage"}}, []string{"storage", "available profiles: network, system"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Select(context.Background(), reg, env, tt.opts)
			require.Error(t, err)
			assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
			for _, s := range tt.want {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestPluginOptions(t *testing.T) {
	reg := selectionRegistry(t)
	env := &plugin.Env{Policy: &policy.Static{}}
	sel, err := Select(context.Background(), reg, env, config.ReportOptions{})
	require.NoError(t, err)

	t.Run("assignments", func(t *testing.T) {
		opts, err := PluginOptions(reg, sel, config.ReportOptions{
			PluginOptions: []string{"net.ethtool", "net.target=10.0.0.1", "optional.timeout=5"},
		})
		require.NoError(t, err)
		assert.True(t, opts["net"].Bool("ethtool"))
		assert.Equal(t, "10.0.0.1", opts["net"].String("target"))
		assert.NotContains(t, opts, "optional")
	})

	t.Run("alloptions", func(t *testing.T) {
		opts, err := PluginOptions(reg, sel, config.ReportOptions{AllOptions: true})
		require.NoError(t, err)
		assert.True(t, opts["net"].Bool("ethtool"))
		assert.True(t, opts["net"].Bool(plugin.OptPostproc))
	})

	errs := []struct {
		name   string
		assign string
	}{
		{"unknown plugin", "nosuch.flag=1"},
		{"unknown option", "net.nosuch=1"},
		{"bad value", "net.timeout=soon"},
	}
	for _, tt := range errs {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PluginOptions(reg, sel, config.ReportOptions{PluginOptions: []string{tt.assign}})
			require.Error(t, err)
			assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
		})
	}
}

func TestPluginTimeout(t *testing.T) {
	declared := testPlugin("declared", nil)
	declared.Timeout = 30 * time.Second
	plain := testPlugin("plain", nil)

	tests := []struct {
		name   string
		p      *plugin.Plugin
		global int
		option string
		want   time.Duration
	}{
		{"global default", plain, 300, "", 300 * time.Second},
		{"declared beats default global", declared, 300, "", 30 * time.Second},
		{"explicit global beats declared", declared, 10, "", 10 * time.Second},
		{"option beats all", declared, 10, "45", 45 * time.Second},
		{"zero global", plain, 0, "", 300 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := config.Defaults()
			opts.Report.PluginTimeout = tt.global
			e := &Engine{opts: opts}
			o := plugin.NewOptions(tt.p.Options)
			if tt.option != "" {
				require.NoError(t, o.Set(plugin.OptTimeout, tt.option))
			}
			assert.Equal(t, tt.want, e.pluginTimeout(tt.p, o))
		})
	}
}

func TestListing(t *testing.T) {
	opts := testOptions(t)
	e := testEngine(t, opts, selectionRegistry(t), t.TempDir())

	var buf bytes.Buffer
	require.NoError(t, e.ListPlugins(context.Background(), &buf))
	out := buf.String()
	assert.Contains(t, out, "currently enabled")
	assert.Contains(t, out, "base test plugin")
	assert.Contains(t, out, "optional")
	assert.Contains(t, out, "net.ethtool")
	assert.Contains(t, out, "5 plugins listed")

	buf.Reset()
	require.NoError(t, e.ListProfiles(&buf))
	assert.Contains(t, buf.String(), "network")
	assert.Contains(t, buf.String(), "2 profiles")
}

func TestCatalog(t *testing.T) {
	e := testEngine(t, testOptions(t), selectionRegistry(t), t.TempDir())

	catalog, err := e.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog, 5)

	byName := make(map[string]PluginInfo)
	for _, p := range catalog {
		byName[p.Name] = p
	}
	assert.True(t, byName["base"].Enabled)
	assert.Empty(t, byName["base"].Reason)
	assert.False(t, byName["optional"].Enabled)
	assert.Equal(t, reasonOptional, byName["optional"].Reason)
	assert.Equal(t, []string{"ethtool=false", "target=none"}, byName["net"].Options)

	assert.Equal(t, []string{"NAME", "STATUS", "PROFILES", "DESCRIPTION"}, catalog.TableHeader())
	rows := catalog.TableRows()
	require.Len(t, rows, 5)
	assert.Equal(t, "base", rows[0][0])
	assert.Equal(t, "enabled", rows[0][1])
	assert.Equal(t, "system", rows[0][2])
}
