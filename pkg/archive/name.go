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

package archive

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"time"
)

// ReportPrefix is the prefix of every report archive name.
const ReportPrefix = "sosreport"

var unsafeNameChars = regexp.MustCompile(`[^\w.]+`)

// SanitizeLabel reduces a user supplied label, case id or hostname to
// characters safe in a file name. Separators collapse to nothing so the
// '-' delimited name fields stay parseable.
func SanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	return unsafeNameChars.ReplaceAllString(s, "")
}

// RandomSuffix returns n random lowercase letters.
func RandomSuffix(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			b[i] = letters[i%len(letters)]
			continue
		}
		b[i] = letters[idx.Int64()]
	}
	return string(b)
}

// BuildName returns <prefix>-<label|host>[-<case>]-<YYYY-MM-DD>-<suffix>.
func BuildName(prefix, label, host, caseID string, when time.Time, suffix string) string {
	parts := []string{prefix}
	if l := SanitizeLabel(label); l != "" {
		parts = append(parts, l)
	} else if h := SanitizeLabel(strings.SplitN(host, ".", 2)[0]); h != "" {
		parts = append(parts, h)
	}
	if c := SanitizeLabel(caseID); c != "" {
		parts = append(parts, c)
	}
	parts = append(parts, when.Format("2006-01-02"), suffix)
	return strings.Join(parts, "-")
}
