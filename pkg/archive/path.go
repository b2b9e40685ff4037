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
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrPathTraversal is returned when a destination would resolve outside
	// the archive or extraction root.
	ErrPathTraversal = errors.New("path traversal outside of archive root")

	// ErrInvalidPath is returned for empty destinations.
	ErrInvalidPath = errors.New("invalid archive path")
)

// CleanPath normalizes a destination inside the archive: separators are
// converted to '/', leading separators are stripped and the result is
// cleaned. Any ".." segment is rejected before cleaning so "a/../b" is not
// silently accepted.
func CleanPath(dest string) (string, error) {
	d := strings.TrimLeft(filepath.ToSlash(dest), "/")
	if d == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, dest)
	}
	for _, seg := range strings.Split(d, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, dest)
		}
	}
	return path.Clean(d), nil
}

// SecureJoin joins rel onto root and verifies that no existing component of
// the parent chain is a symbolic link, so a write can never be redirected
// out of root through a link created earlier.
func SecureJoin(root, rel string) (string, error) {
	clean, err := CleanPath(rel)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(clean))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, rel)
	}

	cur := root
	parts := strings.Split(clean, "/")
	for _, p := range parts[:len(parts)-1] {
		cur = filepath.Join(cur, p)
		fi, err := os.Lstat(cur)
		if errors.Is(err, os.ErrNotExist) {
			break
		}
		if err != nil {
			return "", err
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return "", fmt.Errorf("%w: %q crosses symlink %q", ErrPathTraversal, rel, cur)
		}
	}
	return full, nil
}
