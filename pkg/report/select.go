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

package report

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/NVIDIA/sos/pkg/config"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/plugin"
)

// Skip reasons recorded in the manifest.
const (
	reasonNotSpecified = "not specified"
	reasonNotValid     = "not valid for this distribution"
	reasonExcluded     = "excluded"
	reasonSkipped      = "skipped"
	reasonInactive     = "inactive"
	reasonOptional     = "optional"
)

// Selection is the outcome of plugin resolution.
type Selection struct {
	// Enabled plugins in registry order.
	Enabled []*plugin.Plugin
	// Skipped maps plugin name to the reason it will not run.
	Skipped map[string]string
}

// Names returns the enabled plugin names.
func (s *Selection) Names() []string {
	names := make([]string, 0, len(s.Enabled))
	for _, p := range s.Enabled {
		names = append(names, p.Name)
	}
	return names
}

// Select resolves which plugins run. Only-plugins wins over everything
// else; otherwise policy validity, profiles, the skip list, the plugin's
// trigger and its default flag are applied in that order, and the enable
// list forces a plugin on past its trigger and default flag. Unknown
// plugin or profile names are CONFIG errors.
func Select(ctx context.Context, reg *plugin.Registry, env *plugin.Env, opts config.ReportOptions) (*Selection, error) {
	if err := checkNames(reg, opts); err != nil {
		return nil, err
	}
	if err := checkProfiles(reg, opts.Profiles); err != nil {
		return nil, err
	}

	only := opts.OnlyPlugins
	forced := func(name string) bool {
		return slices.Contains(opts.EnablePlugins, name) || slices.Contains(only, name)
	}

	sel := &Selection{Skipped: make(map[string]string)}
	for _, p := range reg.List() {
		reason := ""
		switch {
		case len(only) > 0 && !slices.Contains(only, p.Name):
			reason = reasonNotSpecified
		case !p.ValidFor(env.Policy):
			reason = reasonNotValid
		case len(only) == 0 && len(opts.Profiles) > 0 && !p.InProfile(opts.Profiles):
			reason = reasonExcluded
		case slices.Contains(opts.SkipPlugins, p.Name):
			reason = reasonSkipped
		case !forced(p.Name) && !p.CheckEnabled(ctx, env):
			reason = reasonInactive
		case !forced(p.Name) && !p.DefaultEnabled():
			reason = reasonOptional
		}
		if reason != "" {
			sel.Skipped[p.Name] = reason
			continue
		}
		sel.Enabled = append(sel.Enabled, p)
	}
	return sel, nil
}

func checkNames(reg *plugin.Registry, opts config.ReportOptions) error {
	var unknown []string
	for _, list := range [][]string{opts.OnlyPlugins, opts.SkipPlugins, opts.EnablePlugins} {
		for _, name := range list {
			if _, ok := reg.Get(name); !ok && !slices.Contains(unknown, name) {
				unknown = append(unknown, name)
			}
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return sosErrors.NewWithContext(sosErrors.ErrCodeConfig,
		fmt.Sprintf("unknown plugin(s): %s", strings.Join(unknown, ", ")),
		map[string]any{"plugins": unknown})
}

func checkProfiles(reg *plugin.Registry, profiles []string) error {
	if len(profiles) == 0 {
		return nil
	}
	known := reg.Profiles()
	var unknown []string
	for _, name := range profiles {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	available := make([]string, 0, len(known))
	for name := range known {
		available = append(available, name)
	}
	sort.Strings(available)
	return sosErrors.NewWithContext(sosErrors.ErrCodeConfig,
		fmt.Sprintf("unknown profile(s): %s; available profiles: %s",
			strings.Join(unknown, ", "), strings.Join(available, ", ")),
		map[string]any{"profiles": unknown})
}

// PluginOptions builds the option set of every enabled plugin from -a and
// the "plugin.option=value" assignments. Assignments naming a plugin that
// does not exist, or an option a plugin does not declare, are CONFIG
// errors; assignments for known but disabled plugins are ignored.
func PluginOptions(reg *plugin.Registry, sel *Selection, opts config.ReportOptions) (map[string]*plugin.Options, error) {
	assigned, err := config.ParsePluginOptions(opts.PluginOptions)
	if err != nil {
		return nil, err
	}
	for name, kv := range assigned {
		p, ok := reg.Get(name)
		if !ok {
			return nil, sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("plugin option set for unknown plugin %q", name))
		}
		probe := plugin.NewOptions(p.Options)
		for opt := range kv {
			if !probe.Has(opt) {
				return nil, sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("plugin %s has no option %q", name, opt))
			}
		}
	}

	out := make(map[string]*plugin.Options, len(sel.Enabled))
	for _, p := range sel.Enabled {
		o := plugin.NewOptions(p.Options)
		if opts.AllOptions {
			o.EnableAll()
		}
		keys := make([]string, 0, len(assigned[p.Name]))
		for k := range assigned[p.Name] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := o.Set(k, assigned[p.Name][k]); err != nil {
				return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid value for %s.%s", p.Name, k), err)
			}
		}
		out[p.Name] = o
	}
	return out, nil
}
