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
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
)

// cannedRunner answers commands from a map keyed by the joined argv.
type cannedRunner struct {
	mu      sync.Mutex
	outputs map[string]string
}

func (r *cannedRunner) Run(_ context.Context, req plugin.CommandRequest) (*plugin.CommandResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	out, ok := r.outputs[strings.Join(req.Argv, " ")]
	if !ok {
		return &plugin.CommandResult{Status: plugin.StatusNotFound, Start: now, End: now}, nil
	}
	return &plugin.CommandResult{Output: []byte(out), Start: now, End: now}, nil
}

func testPlugin(name string, setup func(ctx context.Context, c *plugin.Context) error) *plugin.Plugin {
	if setup == nil {
		setup = func(context.Context, *plugin.Context) error { return nil }
	}
	return &plugin.Plugin{
		Name:        name,
		Description: name + " test plugin",
		Families:    []string{policy.FamilyIndependent},
		Setup:       setup,
	}
}

func testRegistry(t *testing.T, plugins ...*plugin.Plugin) *plugin.Registry {
	t.Helper()
	reg := plugin.NewRegistry()
	for _, p := range plugins {
		require.NoError(t, reg.Register(p))
	}
	return reg
}

func testOptions(t *testing.T) *config.Options {
	t.Helper()
	opts := config.Defaults()
	opts.Batch = true
	opts.TmpDir = t.TempDir()
	opts.Report.Compression = "gzip"
	opts.Report.PluginDir = ""
	return opts
}

func testEngine(t *testing.T, opts *config.Options, reg *plugin.Registry, root string) *Engine {
	t.Helper()
	e, err := New(Config{
		Options:  opts,
		Policy:   &policy.Static{Root: root, Host: "testhost.example.com", Machine: "x86_64", DistroName: "Test Linux"},
		Registry: reg,
		Runner:   &cannedRunner{outputs: map[string]string{"hostname": "testhost\n", "uptime": " up 1 day\n"}},
		Version:  "4.9.0",
		Cmdline:  "sos report --batch",
		Console:  io.Discard,
	})
	require.NoError(t, err)
	return e
}

func writeHostFile(t *testing.T, root, name, content string) {
	t.Helper()
	p := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}
