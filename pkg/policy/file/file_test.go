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

package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserLines(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		content string
		want    []string
		wantErr bool
	}{
		{
			name:    "skips blanks and comments",
			content: "# header\nfoo\n\n  bar  \n",
			want:    []string{"foo", "bar"},
		},
		{
			name:    "keeps comments when asked",
			opts:    []Option{WithSkipComments(false)},
			content: "# header\nfoo\n",
			want:    []string{"# header", "foo"},
		},
		{
			name:    "custom delimiter",
			opts:    []Option{WithDelimiter(" ")},
			content: "ro quiet  splash",
			want:    []string{"ro", "quiet", "splash"},
		},
		{
			name:    "too large",
			opts:    []Option{WithMaxSize(4)},
			content: "12345",
			wantErr: true,
		},
		{
			name:    "invalid utf8",
			content: "\xff\xfe",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewParser(tt.opts...).Lines([]byte(tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParserMap(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		content string
		want    map[string]string
	}{
		{
			name:    "os-release",
			opts:    []Option{WithVTrimChars(`"'`), WithSkipEmptyValues(true)},
			content: "NAME=\"Red Hat Enterprise Linux\"\nID=rhel\nID_LIKE='fedora'\nBROKEN\n",
			want:    map[string]string{"NAME": "Red Hat Enterprise Linux", "ID": "rhel", "ID_LIKE": "fedora"},
		},
		{
			name:    "whitespace fields",
			opts:    []Option{WithFields()},
			content: "xfs 1982464 2 - Live 0x0\nnf_tables   303104 0\n",
			want:    map[string]string{"xfs": "1982464 2 - Live 0x0", "nf_tables": "303104 0"},
		},
		{
			name:    "default value",
			opts:    []Option{WithVDefault("true")},
			content: "flag\nkey=value\n",
			want:    map[string]string{"flag": "true", "key": "value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewParser(tt.opts...).Map([]byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParserFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "os-release")
	require.NoError(t, os.WriteFile(path, []byte("ID=ubuntu\nVERSION_ID=\"22.04\"\n"), 0o644))

	p := NewParser(WithVTrimChars(`"`))
	m, err := p.GetMap(path)
	require.NoError(t, err)
	assert.Equal(t, "22.04", m["VERSION_ID"])

	_, err = p.GetLines("")
	assert.Error(t, err)
	_, err = p.GetLines(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
