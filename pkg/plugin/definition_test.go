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

package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/sos/pkg/manifest"
)

const sampleDefinition = `
name: sample
description: sample application
families: [independent]
profiles: [services]
timeout: 60
trigger:
  files: [%[1]s/app.conf]
options:
  - name: verbose
    type: bool
    default: false
copy:
  - paths: [%[1]s/app.conf]
    tags: [app]
commands:
  - cmd: app status
    root_symlink: app_status
  - cmd: app debug-dump
    when: verbose
forbidden:
  - "%[1]s/*.key"
substitutions:
  - kind: file
    match: "*app.conf"
    regex: "secret=\\S+"
    replace: "secret=********"
`

func TestLoadDefinitions(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "app.conf"), []byte("secret=abc\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.yaml"), []byte(fmt.Sprintf(sampleDefinition, src)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("ignored"), 0o644))

	plugins, err := LoadDefinitions(dir)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	p := plugins[0]
	assert.Equal(t, "sample", p.Name)
	assert.Equal(t, []string{"services"}, p.Profiles)
	assert.Equal(t, 60*time.Second, p.Timeout)
	assert.Equal(t, filepath.Join(dir, "sample.yaml"), p.Source)

	runner := &fakeRunner{outputs: map[string]fakeOutput{"app status": {output: "ok\n"}}}
	env := newTestEnv(t, nil, runner)
	assert.True(t, p.CheckEnabled(context.Background(), env))

	c := NewContext(p, env, nil, &manifest.PluginSection{Name: p.Name})
	runContext(t, c)

	assert.Equal(t, []string{"app status"}, runner.argvs(), "option gated command is not queued")
	staged, err := env.Archive.ReadFile(filepath.Join(src, "app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "secret=********\n", string(staged))
	assert.True(t, env.Archive.Exists("app_status"))

	c2 := NewContext(p, newTestEnv(t, nil, runner), nil, nil)
	require.NoError(t, c2.SetOption("verbose", true))
	require.NoError(t, c2.Setup(context.Background()))
	assert.Len(t, c2.ops, 3)
}

func TestLoadDefinitionsMissingDir(t *testing.T) {
	plugins, err := LoadDefinitions(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestDefinitionValidation(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"missing name", Definition{Families: []string{"independent"}}},
		{"unknown family", Definition{Name: "x", Families: []string{"windows"}}},
		{"no families", Definition{Name: "x"}},
		{"empty copy paths", Definition{Name: "x", Families: []string{"redhat"}, Copy: []CopyDefinition{{}}}},
		{"command without cmd", Definition{Name: "x", Families: []string{"redhat"}, Commands: []CommandDefinition{{}}}},
		{"bad substitution kind", Definition{Name: "x", Families: []string{"redhat"}, Substitutions: []SubstitutionDefinition{{Kind: "other", Match: "*", Regex: "a"}}}},
		{"substitution without regex", Definition{Name: "x", Families: []string{"redhat"}, Substitutions: []SubstitutionDefinition{{Kind: SubFile, Match: "*"}}}},
		{"bad predicate mode", Definition{Name: "x", Families: []string{"redhat"}, Copy: []CopyDefinition{{Paths: []string{"/a"}, Predicate: &Predicate{Required: map[string]string{"kmods": "most"}}}}}},
		{"invalid plugin name", Definition{Name: "Has Space", Families: []string{"redhat"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.def.Plugin("test")
			assert.Error(t, err)
		})
	}

	okDef := Definition{Name: "ok", Families: []string{"debian"}, Substitutions: []SubstitutionDefinition{{Kind: SubPrivate, Match: `.*\.pem`}}}
	_, err := okDef.Plugin("test")
	assert.NoError(t, err)
}
