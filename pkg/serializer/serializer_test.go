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

package serializer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string            `json:"name" yaml:"name"`
	Count int               `json:"count" yaml:"count"`
	Tags  map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type catalog []sample

func (c catalog) TableHeader() []string { return []string{"NAME", "COUNT"} }

func (c catalog) TableRows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, s := range c {
		rows = append(rows, []string{s.Name, strings.Repeat("*", s.Count)})
	}
	return rows
}

func TestFormatIsUnknown(t *testing.T) {
	for _, f := range SupportedFormats() {
		assert.False(t, Format(f).IsUnknown(), f)
	}
	assert.True(t, Format("xml").IsUnknown())
	assert.True(t, Format("").IsUnknown())
}

func TestWriterSerialize(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		value  any
		want   []string
	}{
		{"json", FormatJSON, sample{Name: "host", Count: 2}, []string{`"name": "host"`, `"count": 2`}},
		{"yaml", FormatYAML, sample{Name: "host", Count: 2}, []string{"name: host", "count: 2"}},
		{"flat table", FormatTable, sample{Name: "host", Tags: map[string]string{"a": "b"}}, []string{"FIELD", "Name", "host", "Tags.a"}},
		{"tabular", FormatTable, catalog{{Name: "kernel", Count: 3}}, []string{"NAME", "COUNT", "kernel", "***"}},
		{"unknown falls back to json", Format("xml"), sample{Name: "x"}, []string{`"name": "x"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			w := NewWriter(tt.format, &buf)
			require.NoError(t, w.Serialize(context.Background(), tt.value))
			require.NoError(t, w.Close())
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestMarshalTableEmpty(t *testing.T) {
	out, err := Marshal(FormatTable, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "<empty>\n", string(out))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "map.json")

	require.NoError(t, WriteJSONFile(path, map[string]any{"ip_map": map[string]string{"10.0.0.1": "100.0.0.1"}}, 0o600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	loaded, err := FromFile[map[string]map[string]string](path)
	require.NoError(t, err)
	assert.Equal(t, "100.0.0.1", (*loaded)["ip_map"]["10.0.0.1"])
}

func TestFromFileFormats(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "conf")
	yamlPath := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name":"a","count":1}`), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte("name: b\ncount: 2\n"), 0o644))

	a, err := FromFile[sample](jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "a", a.Name)

	b, err := FromFile[sample](yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Count)

	_, err = FromFile[sample](filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestUnknownKeys(t *testing.T) {
	keys, err := UnknownKeys(FormatJSON, []byte(`{"report":{},"bogus":1,"clean":{},"zzz":2}`), "report", "clean", "collect")
	require.NoError(t, err)
	assert.Equal(t, []string{"bogus", "zzz"}, keys)
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("a.YML"))
	assert.Equal(t, FormatYAML, FormatFromPath("a.yaml"))
	assert.Equal(t, FormatJSON, FormatFromPath("/etc/sos/sos.conf"))
	assert.Equal(t, FormatJSON, FormatFromPath("preset.json"))
}
