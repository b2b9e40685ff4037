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

package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NVIDIA/sos/pkg/serializer"
)

// MapFileMode is the permission of written mapping files; they reverse the
// obfuscation and must stay private.
const MapFileMode os.FileMode = 0o600

// Store groups the maps of one cleaner run and persists them as one file.
type Store struct {
	maps []Map
}

// NewStore returns a store over maps, in the order given.
func NewStore(maps ...Map) *Store {
	return &Store{maps: maps}
}

// Map returns the map stored under key, or nil.
func (s *Store) Map(key string) Map {
	for _, m := range s.maps {
		if m.Key() == key {
			return m
		}
	}
	return nil
}

// Maps returns every map in declaration order.
func (s *Store) Maps() []Map {
	return append([]Map(nil), s.maps...)
}

// Generation changes whenever any map gains a pair.
func (s *Store) Generation() int {
	n := 0
	for _, m := range s.maps {
		n += m.Len()
	}
	return n
}

// Snapshot returns {key: {original: obfuscated}} for every map.
func (s *Store) Snapshot() map[string]map[string]string {
	out := make(map[string]map[string]string, len(s.maps))
	for _, m := range s.maps {
		out[m.Key()] = m.Entries()
	}
	return out
}

// Load seeds the maps from a mapping file. A missing or empty file is not
// an error; a directory is. Unknown keys are ignored; a known key whose
// value is not a flat object is an error.
func (s *Store) Load(path string) error {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("map file %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read map file %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse map file %s: %w", path, err)
	}
	for _, m := range s.maps {
		msg, ok := raw[m.Key()]
		if !ok {
			continue
		}
		var entries map[string]string
		if err := json.Unmarshal(msg, &entries); err != nil {
			return fmt.Errorf("failed to parse %s in map file %s: %w", m.Key(), path, err)
		}
		m.Load(entries)
	}
	return nil
}

// Save writes the snapshot to path with MapFileMode, creating the parent
// directory when needed.
func (s *Store) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create map directory: %w", err)
	}
	return serializer.WriteJSONFile(path, s.Snapshot(), MapFileMode)
}
