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

package reporting

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/sos/pkg/manifest"
)

func testManifest() *manifest.Manifest {
	m := manifest.New("4.9.0", "run-1", "sos report --batch")
	m.Policy = manifest.Policy{Name: "redhat", Distro: "Red Hat Enterprise Linux", Release: "9.4", Hostname: "node1"}
	rep := m.ReportSection()
	rep.Skip("kubernetes", "inactive")

	host := rep.Plugin("host")
	host.Status = manifest.StatusOK
	host.Commands = append(host.Commands, manifest.CommandEntry{Exec: "hostname", Filepath: "sos_commands/host/hostname"})
	host.Files = append(host.Files, manifest.FileEntry{Specification: "/etc/hostname", FilesCopied: []string{"/etc/hostname"}})
	host.Notes = append(host.Notes, "collected <everything>")

	kernel := rep.Plugin("kernel")
	kernel.Status = manifest.StatusTimedOut
	kernel.TimeoutHit = true
	kernel.Alerts = append(kernel.Alerts, "kernel is tainted")
	kernel.Strings = append(kernel.Strings, manifest.StringEntry{Name: "sos_commands/kernel/taint_reasons"})
	m.Finish()
	return m
}

func TestBuild(t *testing.T) {
	r := Build(testManifest())

	assert.Equal(t, "node1", r.Hostname)
	require.Len(t, r.Sections, 2)
	assert.Equal(t, "host", r.Sections[0].Name)
	assert.Equal(t, "Host", r.Sections[0].Title)
	assert.Equal(t, 1, r.Sections[0].Count(LeafCommand))
	assert.Equal(t, 1, r.Sections[0].Count(LeafCopiedFile))
	assert.Equal(t, "etc/hostname", r.Sections[0].Leaves[1].Href)
	assert.Equal(t, 1, r.Sections[1].Count(LeafAlert))
	assert.Equal(t, 1, r.Sections[1].Count(LeafCreatedFile))
	assert.True(t, r.Sections[1].TimeoutHit)
	assert.Equal(t, []Skip{{Name: "kubernetes", Reason: "inactive"}}, r.Skipped)
}

func TestBuildWithoutReport(t *testing.T) {
	r := Build(manifest.New("4.9.0", "run-1", ""))
	assert.Empty(t, r.Sections)
	assert.Empty(t, r.Skipped)
}

func TestTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"host", "Host"},
		{"process_accounting", "Process Accounting"},
		{"nvidia", "Nvidia"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.in))
		})
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, Build(testManifest())))
	out := buf.String()

	assert.Contains(t, out, "Hostname:    node1")
	assert.Contains(t, out, "Kernel [timed_out, timed out]")
	assert.Contains(t, out, "hostname")
	assert.Contains(t, out, "kubernetes")
}

func TestRenderHTMLEscapes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, Build(testManifest())))
	out := buf.String()

	assert.Contains(t, out, `href="../sos_commands/host/hostname"`)
	assert.Contains(t, out, `id="kernel"`)
	assert.Contains(t, out, "collected &lt;everything&gt;")
	assert.NotContains(t, out, "<everything>")
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, testManifest()))

	for _, name := range []string{TextFile, JSONFile, HTMLFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	data, err := os.ReadFile(filepath.Join(dir, JSONFile))
	require.NoError(t, err)
	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Len(t, got.Sections, 2)
}
