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

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Version
		wantErr bool
	}{
		{"major only", "4", Version{Major: 4, Precision: 1}, false},
		{"major minor", "4.2", Version{Major: 4, Minor: 2, Precision: 2}, false},
		{"full", "4.5.6", NewVersion(4, 5, 6), false},
		{"v prefix", "v3.9.1", NewVersion(3, 9, 1), false},
		{"rpm release", "4.5.6-1.el9", Version{Major: 4, Minor: 5, Patch: 6, Precision: 3, Extras: "-1.el9"}, false},
		{"deb tilde", "4.5.6~22.04", Version{Major: 4, Minor: 5, Patch: 6, Precision: 3, Extras: "~22.04"}, false},
		{"empty", "", Version{}, true},
		{"too many", "1.2.3.4", Version{}, true},
		{"letters", "a.b", Version{}, true},
		{"trailing dot", "4.", Version{}, true},
		{"negative", "-1", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromOutput(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    string
		wantErr bool
	}{
		{"sos version", "sos 4.5.6\n", "4.5.6", false},
		{"legacy sosreport", "\nsosreport (version 3.9)\n", "3.9", false},
		{"rpm query", "sos-4.7.0-1.el9.noarch\n", "4.7.0", false},
		{"dpkg", "4.4-1ubuntu1\n", "4.4", false},
		{"nothing", "command not found\n", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromOutput(tt.output)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoVersionFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestAtLeast(t *testing.T) {
	v := MustParseVersion("4.1.2")

	assert.True(t, v.AtLeast("3.6"))
	assert.True(t, v.AtLeast("4.1"))
	assert.True(t, v.AtLeast("4.1.2"))
	assert.False(t, v.AtLeast("4.2"))
	assert.False(t, v.AtLeast("5"))
	assert.False(t, v.AtLeast("garbage"))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"4.2", "4.2.9", 0},
		{"4.2.1", "4.2.0", 1},
		{"3.9", "4.0", -1},
		{"4", "4.9.9", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParseVersion(tt.a).Compare(MustParseVersion(tt.b)))
		})
	}
}

func TestEqualsOrNewer(t *testing.T) {
	assert.True(t, MustParseVersion("4.2").EqualsOrNewer(MustParseVersion("4.2.7")))
	assert.True(t, MustParseVersion("4.3.0").EqualsOrNewer(MustParseVersion("4.2.7")))
	assert.False(t, MustParseVersion("4.2.6").EqualsOrNewer(MustParseVersion("4.2.7")))
	assert.False(t, MustParseVersion("3").EqualsOrNewer(MustParseVersion("4.0")))
}

func TestMustParseVersionPanics(t *testing.T) {
	assert.Panics(t, func() { MustParseVersion("x") })
}
