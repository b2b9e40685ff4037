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
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/NVIDIA/sos/pkg/plugin"
)

// ListPlugins writes the enabled, disabled and option tables the way
// --list-plugins shows them.
func (e *Engine) ListPlugins(ctx context.Context, w io.Writer) error {
	sel, err := Select(ctx, e.reg, e.newEnv(), e.opts.Report)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "The following plugins are currently enabled:\n\n")
	for _, p := range sel.Enabled {
		fmt.Fprintf(tw, " %s\t%s\n", p.Name, p.Description)
	}

	disabled := make([]string, 0, len(sel.Skipped))
	for name := range sel.Skipped {
		disabled = append(disabled, name)
	}
	sort.Strings(disabled)
	fmt.Fprintf(tw, "\nThe following plugins are currently disabled:\n\n")
	for _, name := range disabled {
		p, _ := e.reg.Get(name)
		fmt.Fprintf(tw, " %s\t%s\t%s\n", name, sel.Skipped[name], p.Description)
	}

	fmt.Fprintf(tw, "\nThe following options are available for ALL plugins:\n\n")
	global := plugin.NewOptions(nil)
	for _, s := range global.Specs() {
		fmt.Fprintf(tw, " %s\t%v\t%s\n", s.Name, formatDefault(s.Default), s.Description)
	}

	fmt.Fprintf(tw, "\nThe following plugin options are available:\n\n")
	for _, p := range e.reg.List() {
		for _, s := range p.Options {
			fmt.Fprintf(tw, " %s.%s\t%v\t%s\n", p.Name, s.Name, formatDefault(s.Default), s.Description)
		}
	}
	fmt.Fprintf(tw, "\n%d plugins listed\n", e.reg.Count())
	return tw.Flush()
}

// ListProfiles writes each profile and the plugins it groups.
func (e *Engine) ListProfiles(w io.Writer) error {
	profiles := e.reg.Profiles()
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "The following profiles are available:\n\n")
	for _, name := range names {
		fmt.Fprintf(tw, " %s\t%s\n", name, strings.Join(profiles[name], ", "))
	}
	fmt.Fprintf(tw, "\n%d profiles\n", len(names))
	return tw.Flush()
}

func formatDefault(v any) string {
	switch t := v.(type) {
	case nil:
		return "none"
	case []string:
		if len(t) == 0 {
			return "none"
		}
		return strings.Join(t, ",")
	case string:
		if t == "" {
			return "none"
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}

// PluginInfo is one entry of the plugin catalog.
type PluginInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Reason      string   `json:"reason,omitempty" yaml:"reason,omitempty"`
	Profiles    []string `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	Options     []string `json:"options,omitempty" yaml:"options,omitempty"`
	Source      string   `json:"source" yaml:"source"`
}

// Catalog lists every known plugin with the outcome of plugin selection.
type Catalog []PluginInfo

func (c Catalog) TableHeader() []string {
	return []string{"NAME", "STATUS", "PROFILES", "DESCRIPTION"}
}

func (c Catalog) TableRows() [][]string {
	rows := make([][]string, 0, len(c))
	for _, p := range c {
		status := "enabled"
		if !p.Enabled {
			status = "disabled (" + p.Reason + ")"
		}
		rows = append(rows, []string{p.Name, status, strings.Join(p.Profiles, ","), p.Description})
	}
	return rows
}

// Catalog resolves plugin selection for the current options and describes
// every registered plugin.
func (e *Engine) Catalog(ctx context.Context) (Catalog, error) {
	sel, err := Select(ctx, e.reg, e.newEnv(), e.opts.Report)
	if err != nil {
		return nil, err
	}
	enabled := make(map[string]bool, len(sel.Enabled))
	for _, p := range sel.Enabled {
		enabled[p.Name] = true
	}
	var out Catalog
	for _, p := range e.reg.List() {
		info := PluginInfo{
			Name:        p.Name,
			Description: p.Description,
			Enabled:     enabled[p.Name],
			Reason:      sel.Skipped[p.Name],
			Profiles:    p.Profiles,
			Source:      p.Source,
		}
		for _, s := range p.Options {
			info.Options = append(info.Options, fmt.Sprintf("%s=%s", s.Name, formatDefault(s.Default)))
		}
		out = append(out, info)
	}
	return out, nil
}
