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
	"sort"
	"sync"
)

// Global registry for built-in plugins.
// Plugins register themselves via init() functions.
var (
	globalPlugins = make(map[string]*Plugin)
	globalMu      sync.RWMutex
)

// Register registers a plugin globally.
// Returns an error if the plugin is invalid or the name is taken.
func Register(p *Plugin) error {
	if err := p.Validate(); err != nil {
		return err
	}
	globalMu.Lock()
	defer globalMu.Unlock()

	if _, exists := globalPlugins[p.Name]; exists {
		return fmt.Errorf("plugin %s already registered", p.Name)
	}
	if p.Source == "" {
		p.Source = "builtin"
	}
	globalPlugins[p.Name] = p
	return nil
}

// MustRegister is a convenience function that panics on registration error.
// Use this in init() functions where registration must succeed.
func MustRegister(p *Plugin) {
	if err := Register(p); err != nil {
		panic(err)
	}
}

// NewFromGlobal creates a Registry populated with all globally registered plugins.
func NewFromGlobal() *Registry {
	globalMu.RLock()
	defer globalMu.RUnlock()

	reg := NewRegistry()
	for name, p := range globalPlugins {
		reg.plugins[name] = p
	}
	return reg
}

// Registry is the set of plugins known to one run.
type Registry struct {
	plugins map[string]*Plugin
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]*Plugin)}
}

// Register adds a plugin. Names must be unique.
func (r *Registry) Register(p *Plugin) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, exists := r.plugins[p.Name]; exists {
		return fmt.Errorf("plugin %s from %s conflicts with %s", p.Name, p.Source, existing.Source)
	}
	r.plugins[p.Name] = p
	return nil
}

// Get retrieves a plugin by name.
func (r *Registry) Get(name string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, found := r.plugins[name]
	return p, found
}

// List returns all plugins sorted by name.
func (r *Registry) List() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all plugin names sorted.
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
	}
	return names
}

// Profiles maps each profile to its sorted plugin names.
func (r *Registry) Profiles() map[string][]string {
	out := make(map[string][]string)
	for _, p := range r.List() {
		for _, prof := range p.Profiles {
			out[prof] = append(out[prof], p.Name)
		}
	}
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// IsEmpty returns true if no plugins are registered.
func (r *Registry) IsEmpty() bool {
	return r.Count() == 0
}
