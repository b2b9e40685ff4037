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
	"fmt"
	"regexp"
	"strings"
)

var (
	binPrefix   = regexp.MustCompile(`^/(usr/|)(bin|sbin)/`)
	unsafeChars = regexp.MustCompile(`[^\w\-\./]+`)
)

// MangleCommand turns a command line into a file name: a leading bin
// directory is dropped, runs of unsafe characters become "_", "/" becomes
// "." and the result is truncated to nameMax bytes.
func MangleCommand(cmd string, nameMax int) string {
	m := binPrefix.ReplaceAllString(strings.TrimSpace(cmd), "")
	m = unsafeChars.ReplaceAllString(m, "_")
	m = strings.ReplaceAll(m, "/", ".")
	m = strings.Trim(m, " ._-")
	if nameMax > 0 && len(m) > nameMax {
		m = m[:nameMax]
	}
	return m
}

// uniqueName returns name, or name with the smallest ".N" suffix that is
// not taken, keeping the result within nameMax bytes.
func uniqueName(name string, nameMax int, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	for i := 1; ; i++ {
		suffix := fmt.Sprintf(".%d", i)
		base := name
		if nameMax > 0 && len(base)+len(suffix) > nameMax {
			base = base[:nameMax-len(suffix)]
		}
		if candidate := base + suffix; !taken(candidate) {
			return candidate
		}
	}
}

// fileTag derives the manifest tag for a single-file copy spec: dashes
// become underscores, ".conf" files keep the suffix as "_conf" and other
// extensions are dropped.
func fileTag(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	if strings.HasSuffix(name, ".conf") {
		return strings.ReplaceAll(name, ".", "_")
	}
	base, _, _ := strings.Cut(name, ".")
	return base
}
