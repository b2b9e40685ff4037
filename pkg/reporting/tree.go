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

package reporting

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/NVIDIA/sos/pkg/manifest"
)

// LeafKind classifies an entry of a plugin section.
type LeafKind string

const (
	LeafCommand     LeafKind = "command"
	LeafCopiedFile  LeafKind = "copied_file"
	LeafCreatedFile LeafKind = "created_file"
	LeafAlert       LeafKind = "alert"
	LeafNote        LeafKind = "note"
)

// Leaf is one reported item. Href is relative to the archive root and
// empty for alerts and notes.
type Leaf struct {
	Kind  LeafKind `json:"kind"`
	Value string   `json:"value"`
	Href  string   `json:"href,omitempty"`
}

// Section groups the leaves of one plugin.
type Section struct {
	Name       string  `json:"name"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
	RunTime    float64 `json:"run_time"`
	TimeoutHit bool    `json:"timeout_hit"`
	Leaves     []Leaf  `json:"leaves"`
}

// Count returns the number of leaves of kind k.
func (s Section) Count(k LeafKind) int {
	n := 0
	for _, l := range s.Leaves {
		if l.Kind == k {
			n++
		}
	}
	return n
}

// Report is the rendered tree.
type Report struct {
	Hostname   string    `json:"hostname"`
	Distro     string    `json:"distro"`
	Release    string    `json:"release"`
	SosVersion string    `json:"sos_version"`
	CaseID     string    `json:"case_id,omitempty"`
	Start      time.Time `json:"start_time"`
	End        time.Time `json:"end_time"`
	Skipped    []Skip    `json:"skipped_plugins"`
	Sections   []Section `json:"sections"`
}

// Skip is a plugin that did not run.
type Skip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Build folds a manifest into a report tree. Sections follow plugin name
// order and leaves follow the order the plugin recorded them.
func Build(m *manifest.Manifest) *Report {
	r := &Report{
		Hostname:   m.Policy.Hostname,
		Distro:     m.Policy.Distro,
		Release:    m.Policy.Release,
		SosVersion: m.SosVersion,
		CaseID:     m.CaseID,
		Start:      m.StartTime,
		End:        m.EndTime,
		Skipped:    []Skip{},
		Sections:   []Section{},
	}
	rep := m.Components.Report
	if rep == nil {
		return r
	}
	for _, name := range sortedKeys(rep.SkippedPlugins) {
		r.Skipped = append(r.Skipped, Skip{Name: name, Reason: rep.SkippedPlugins[name]})
	}
	for _, name := range rep.PluginNames() {
		r.Sections = append(r.Sections, section(rep.Plugins[name]))
	}
	return r
}

func section(p *manifest.PluginSection) Section {
	s := Section{
		Name:       p.Name,
		Title:      Title(p.Name),
		Status:     p.Status,
		Error:      p.Error,
		RunTime:    p.RunTime,
		TimeoutHit: p.TimeoutHit,
		Leaves:     []Leaf{},
	}
	for _, c := range p.Commands {
		s.Leaves = append(s.Leaves, Leaf{Kind: LeafCommand, Value: c.Exec, Href: c.Filepath})
	}
	for _, f := range p.Files {
		for _, copied := range f.FilesCopied {
			s.Leaves = append(s.Leaves, Leaf{Kind: LeafCopiedFile, Value: copied, Href: strings.TrimPrefix(copied, "/")})
		}
	}
	for _, str := range p.Strings {
		s.Leaves = append(s.Leaves, Leaf{Kind: LeafCreatedFile, Value: str.Name, Href: str.Name})
	}
	for _, a := range p.Alerts {
		s.Leaves = append(s.Leaves, Leaf{Kind: LeafAlert, Value: a})
	}
	for _, n := range p.Notes {
		s.Leaves = append(s.Leaves, Leaf{Kind: LeafNote, Value: n})
	}
	return s
}

// Title turns a plugin name such as "process_accounting" into a heading.
func Title(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
