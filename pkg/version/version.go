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
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Error types for version parsing failures
var (
	ErrEmptyVersion      = errors.New("version string is empty")
	ErrTooManyComponents = errors.New("version has more than 3 components")
	ErrNonNumeric        = errors.New("version component is not numeric")
	ErrNoVersionFound    = errors.New("no sos version found in output")
)

// Version is a sos release number. Precision records how many of
// Major/Minor/Patch were present so "4.2" guards match any 4.2.x release.
// Extras keeps the packaging suffix, e.g. "-1.el9" or "~ubuntu22.04".
type Version struct {
	Major     int    `json:"major" yaml:"major"`
	Minor     int    `json:"minor,omitempty" yaml:"minor,omitempty"`
	Patch     int    `json:"patch,omitempty" yaml:"patch,omitempty"`
	Precision int    `json:"precision,omitempty" yaml:"precision,omitempty"`
	Extras    string `json:"extras,omitempty" yaml:"extras,omitempty"`
}

// NewVersion creates a fully specified version.
func NewVersion(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch, Precision: 3}
}

// String returns the version respecting its precision. Extras are not included.
func (v Version) String() string {
	switch v.Precision {
	case 1:
		return strconv.Itoa(v.Major)
	case 2:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	default:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
}

// ParseVersion parses "4", "4.2", "4.5.6", "v4.5.6", "4.5.6-1.el9" or "4.5.6~ubuntu".
func ParseVersion(s string) (Version, error) {
	if s == "" {
		return Version{}, ErrEmptyVersion
	}
	s = strings.TrimPrefix(s, "v")

	var v Version
	main := s
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '-', '+', '~':
			if s[i-1] >= '0' && s[i-1] <= '9' {
				main, v.Extras = s[:i], s[i:]
				i = len(s)
			}
		}
	}

	parts := strings.Split(main, ".")
	if len(parts) > 3 {
		return Version{}, ErrTooManyComponents
	}
	for i, part := range parts {
		num, err := strconv.Atoi(part)
		if err != nil || num < 0 || strings.HasPrefix(part, "+") || strings.HasPrefix(part, "-") {
			return Version{}, fmt.Errorf("%w: %q", ErrNonNumeric, part)
		}
		switch i {
		case 0:
			v.Major = num
		case 1:
			v.Minor = num
		case 2:
			v.Patch = num
		}
	}
	v.Precision = len(parts)
	return v, nil
}

// MustParseVersion parses a version string and panics if parsing fails.
// Only use this for hardcoded strings or in tests.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(fmt.Sprintf("MustParseVersion: %v", err))
	}
	return v
}

// sosOutputRe matches the version token in "sos 4.5.6", "sosreport (version 3.9)",
// "sos-4.5.6-1.el9.noarch" and dpkg "4.5.6-0ubuntu1" outputs.
var sosOutputRe = regexp.MustCompile(`(?:^|[\s(-])v?(\d+(?:\.\d+){0,2}(?:[-~+][\w.~+-]*)?)`)

// FromOutput extracts the first version number from the output of a
// version query (sos --version, rpm -q sos, dpkg-query).
func FromOutput(out string) (Version, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := sosOutputRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if v, err := ParseVersion(m[1]); err == nil {
			return v, nil
		}
	}
	return Version{}, ErrNoVersionFound
}

// EqualsOrNewer reports whether v is at least other, compared up to the
// precision of v.
func (v Version) EqualsOrNewer(other Version) bool {
	if v.Major != other.Major || v.Precision == 1 {
		return v.Major >= other.Major
	}
	if v.Minor != other.Minor || v.Precision == 2 {
		return v.Minor >= other.Minor
	}
	return v.Patch >= other.Patch
}

// AtLeast reports whether v satisfies the minimum given as a string.
// An unparseable minimum never matches.
func (v Version) AtLeast(minimum string) bool {
	m, err := ParseVersion(minimum)
	if err != nil {
		return false
	}
	return v.Compare(m) >= 0
}

// Compare returns -1, 0 or 1. Only the components present in both
// versions are compared.
func (v Version) Compare(other Version) int {
	precision := min(v.Precision, other.Precision)
	pairs := [][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}}
	for i := 0; i < precision && i < len(pairs); i++ {
		switch {
		case pairs[i][0] < pairs[i][1]:
			return -1
		case pairs[i][0] > pairs[i][1]:
			return 1
		}
	}
	return 0
}

// IsValid returns true if all components are non-negative and precision is 1-3.
func (v Version) IsValid() bool {
	return v.Major >= 0 && v.Minor >= 0 && v.Patch >= 0 && v.Precision >= 1 && v.Precision <= 3
}
