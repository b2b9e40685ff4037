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

package collector

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/serializer"
)

// Group is a saved host list, reused with --group.
type Group struct {
	Name        string   `json:"name"`
	Primary     string   `json:"primary,omitempty"`
	ClusterType string   `json:"cluster_type,omitempty"`
	Nodes       []string `json:"nodes"`
}

// GroupStore loads groups from Dirs in order and saves them to the first.
type GroupStore struct {
	Dirs []string
}

// DefaultGroupStore saves to the system directory when run as root and to
// the per-user directory otherwise. Both are searched on load.
func DefaultGroupStore() *GroupStore {
	var user string
	if home, err := os.UserHomeDir(); err == nil {
		user = filepath.Join(home, defaults.UserGroupsDir)
	}
	s := &GroupStore{}
	if os.Geteuid() == 0 || user == "" {
		s.Dirs = append(s.Dirs, defaults.GroupsDir)
		if user != "" {
			s.Dirs = append(s.Dirs, user)
		}
		return s
	}
	s.Dirs = append(s.Dirs, user, defaults.GroupsDir)
	return s
}

// Load reads the named group. A name containing a path separator is read
// from that path directly.
func (s *GroupStore) Load(name string) (*Group, error) {
	if name == "" {
		return nil, sosErrors.New(sosErrors.ErrCodeInvalidRequest, "group name is required")
	}
	candidates := []string{name}
	if !strings.ContainsRune(name, os.PathSeparator) {
		candidates = candidates[:0]
		for _, dir := range s.Dirs {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("failed to read group %s", name), err)
		}
		g, err := serializer.FromFile[Group](p)
		if err != nil {
			return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid group %s", name), err)
		}
		if g.Name == "" {
			g.Name = filepath.Base(p)
		}
		return g, nil
	}
	return nil, sosErrors.NewWithContext(sosErrors.ErrCodeNotFound, fmt.Sprintf("group %s not found", name),
		map[string]any{"dirs": s.Dirs})
}

// Save writes g and returns the file path.
func (s *GroupStore) Save(g *Group) (string, error) {
	if g.Name == "" || strings.ContainsAny(g.Name, `/\`) || g.Name == "." || g.Name == ".." {
		return "", sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid group name %q", g.Name))
	}
	if len(s.Dirs) == 0 {
		return "", sosErrors.New(sosErrors.ErrCodeConfig, "no group directory available")
	}
	p := filepath.Join(s.Dirs[0], g.Name)
	if err := serializer.WriteJSONFile(p, g, 0o644); err != nil {
		return "", sosErrors.AsFatalFS(fmt.Sprintf("failed to save group %s", g.Name), err)
	}
	return p, nil
}
