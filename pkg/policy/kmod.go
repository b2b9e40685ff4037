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

package policy

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/sos/pkg/policy/file"
)

var (
	filePathKMod      = "proc/modules"
	filePathOSRelease = "proc/sys/kernel/osrelease"
)

// loadModules reads loaded modules from /proc/modules and built-in modules
// from modules.builtin of the running kernel. Names use '_' as separator.
func (l *Linux) loadModules() map[string]bool {
	mods := make(map[string]bool)

	lines, err := file.NewParser().GetLines(filepath.Join("/", filePathKMod))
	if err != nil {
		slog.Debug("failed to read kernel modules", "error", err)
	}
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			mods[fields[0]] = true
		}
	}

	rel, err := os.ReadFile(filepath.Join("/", filePathOSRelease))
	if err != nil {
		return mods
	}
	builtin := filepath.Join(l.root, "lib/modules", strings.TrimSpace(string(rel)), "modules.builtin")
	blines, err := file.NewParser(file.WithMaxSize(8 << 20)).GetLines(builtin)
	if err != nil {
		return mods
	}
	for _, line := range blines {
		base := filepath.Base(line)
		base = strings.TrimSuffix(strings.TrimSuffix(base, ".xz"), ".ko")
		mods[strings.ReplaceAll(base, "-", "_")] = true
	}
	return mods
}
