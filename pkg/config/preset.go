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

package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/serializer"
)

//go:embed preset.schema.json
var presetSchemaJSON string

var presetSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(presetSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded preset schema: %v", err))
	}
	return s
}()

// NonePreset is the name of the preset that changes nothing.
const NonePreset = "none"

// Preset is a named, persisted bundle of report options.
type Preset struct {
	Name string         `json:"-"`
	Desc string         `json:"desc"`
	Note string         `json:"note,omitempty"`
	Args map[string]any `json:"args,omitempty"`
	// Builtin presets ship with the binary and cannot be removed.
	Builtin bool `json:"-"`
}

var builtinPresets = []*Preset{
	{Name: NonePreset, Desc: "Do not load a preset", Builtin: true},
	{
		Name: "minimal",
		Desc: "Small and quick report",
		Note: "Reduced log sizes and timeouts",
		Args: map[string]any{
			"log_size":       5,
			"plugin_timeout": 60,
			"cmd_timeout":    30,
			"profiles":       []string{"system"},
		},
		Builtin: true,
	},
	{
		Name: "gpu_node",
		Desc: "GPU accelerated Kubernetes node",
		Note: "Collects hardware, container runtime and Kubernetes data",
		Args: map[string]any{
			"profiles":       []string{"system", "hardware", "container", "openshift"},
			"enable_plugins": []string{"nvidia", "containerd", "kubernetes"},
		},
		Builtin: true,
	},
}

// Apply decodes the preset arguments over the report options.
func (p *Preset) Apply(opts *Options) error {
	if len(p.Args) == 0 {
		return nil
	}
	data, err := json.Marshal(p.Args)
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid preset %s", p.Name), err)
	}
	if err := json.Unmarshal(data, &opts.Report); err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid preset %s", p.Name), err)
	}
	opts.Report.Preset = p.Name
	return nil
}

// PresetStore manages presets stored as one file per preset in Dir.
type PresetStore struct {
	Dir string
}

// NewPresetStore returns a store rooted at dir.
func NewPresetStore(dir string) *PresetStore {
	return &PresetStore{Dir: dir}
}

// List returns built-in and stored presets, sorted by name.
func (s *PresetStore) List() ([]*Preset, error) {
	byName := make(map[string]*Preset)
	for _, p := range builtinPresets {
		byName[p.Name] = p
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to read presets directory", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p, err := LoadPreset(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if b, ok := byName[p.Name]; ok && b.Builtin {
			continue
		}
		byName[p.Name] = p
	}
	out := make([]*Preset, 0, len(byName))
	for _, p := range byName {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get returns the named preset.
func (s *PresetStore) Get(name string) (*Preset, error) {
	presets, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	names := make([]string, 0, len(presets))
	for _, p := range presets {
		names = append(names, p.Name)
	}
	return nil, sosErrors.NewWithContext(sosErrors.ErrCodeConfig,
		fmt.Sprintf("unknown preset %q", name), map[string]any{"available": strings.Join(names, ", ")})
}

// Add writes a new preset file. Existing presets are never overwritten.
func (s *PresetStore) Add(p *Preset) error {
	if existing, _ := s.Get(p.Name); existing != nil {
		return sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("preset %q already exists", p.Name))
	}
	doc := map[string]*Preset{p.Name: p}
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	if err := validatePreset(data); err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to create presets directory", err)
	}
	return serializer.WriteFileAtomic(filepath.Join(s.Dir, p.Name), append(data, '\n'), 0o644)
}

// Delete removes a stored preset.
func (s *PresetStore) Delete(name string) error {
	p, err := s.Get(name)
	if err != nil {
		return err
	}
	if p.Builtin {
		return sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("preset %q is built in and cannot be deleted", name))
	}
	if err := os.Remove(filepath.Join(s.Dir, name)); err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("failed to delete preset %s", name), err)
	}
	return nil
}

// LoadPreset reads and validates a preset file.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("failed to read preset %s", path), err)
	}
	if err := validatePreset(data); err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid preset file %s", path), err)
	}
	var doc map[string]*Preset
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid preset file %s", path), err)
	}
	for name, p := range doc {
		p.Name = name
		return p, nil
	}
	return nil, sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("empty preset file %s", path))
}

func validatePreset(data []byte) error {
	res, err := presetSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to validate preset", err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return sosErrors.New(sosErrors.ErrCodeConfig, "preset does not match schema: "+strings.Join(msgs, "; "))
}
