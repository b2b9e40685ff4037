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

// Package manifest holds the machine readable record of a run, written to
// sos_reports/manifest.json. Every plugin that ran gets a section whether
// it succeeded or not, and every captured file and command carries its
// resulting archive path.
package manifest

import (
	"sort"
	"sync"
	"time"
)

// Version of the manifest layout.
const Version = "1.0"

// Policy identifies the host the run inspected.
type Policy struct {
	Name     string `json:"name"`
	Distro   string `json:"distro"`
	Release  string `json:"release"`
	Hostname string `json:"hostname"`
	Arch     string `json:"arch,omitempty"`
}

// Manifest is the root of the record.
type Manifest struct {
	mu sync.Mutex

	Version      string     `json:"version"`
	SosVersion   string     `json:"sos_version"`
	RunID        string     `json:"run_id"`
	Cmdline      string     `json:"cmdline"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      time.Time  `json:"end_time,omitzero"`
	RunTime      float64    `json:"run_time"`
	CaseID       string     `json:"case_id"`
	Label        string     `json:"label"`
	Compression  string     `json:"compression"`
	TmpDir       string     `json:"tmpdir"`
	Checksum     string     `json:"checksum,omitempty"`
	ChecksumType string     `json:"checksum_type"`
	Policy       Policy     `json:"policy"`
	Options      any        `json:"options"`
	Components   Components `json:"components"`
}

// Components groups the per-subsystem sections.
type Components struct {
	Report  *Report  `json:"report,omitempty"`
	Cleaner *Cleaner `json:"cleaner,omitempty"`
	Collect *Collect `json:"collect,omitempty"`
}

// New returns a manifest with its start time set.
func New(sosVersion, runID, cmdline string) *Manifest {
	return &Manifest{
		Version:    Version,
		SosVersion: sosVersion,
		RunID:      runID,
		Cmdline:    cmdline,
		StartTime:  time.Now(),
	}
}

// Finish sets the end time and total run time.
func (m *Manifest) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
	m.RunTime = m.EndTime.Sub(m.StartTime).Seconds()
}

// Report is the report component section.
type Report struct {
	mu sync.Mutex

	Preset         string                    `json:"preset"`
	Profiles       []string                  `json:"profiles"`
	EnabledPlugins []string                  `json:"enabled_plugins"`
	SkippedPlugins map[string]string         `json:"skipped_plugins"`
	Plugins        map[string]*PluginSection `json:"plugins"`
}

// ReportSection returns the report component, creating it on first use.
func (m *Manifest) ReportSection() *Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Components.Report == nil {
		m.Components.Report = &Report{
			SkippedPlugins: make(map[string]string),
			Plugins:        make(map[string]*PluginSection),
		}
	}
	return m.Components.Report
}

// Plugin returns the section for name, creating it on first use. A section
// is only ever mutated by the worker running that plugin.
func (r *Report) Plugin(name string) *PluginSection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.Plugins[name]; ok {
		return p
	}
	p := &PluginSection{
		Name:          name,
		Files:         []FileEntry{},
		Commands:      []CommandEntry{},
		Strings:       []StringEntry{},
		Alerts:        []string{},
		Notes:         []string{},
		SetupCommands: []CommandEntry{},
		Skipped:       []SkippedEntry{},
	}
	r.Plugins[name] = p
	return p
}

// Skip records a plugin that was not run and why.
func (r *Report) Skip(name, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SkippedPlugins[name] = reason
}

// SetEnabled records the sorted list of plugins selected to run.
func (r *Report) SetEnabled(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EnabledPlugins = append([]string(nil), names...)
	sort.Strings(r.EnabledPlugins)
}

// PluginNames returns the plugins that have a section, sorted.
func (r *Report) PluginNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.Plugins))
	for n := range r.Plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Plugin status values.
const (
	StatusOK       = "ok"
	StatusFailed   = "failed"
	StatusTimedOut = "timed_out"
)

// PluginSection records one plugin's run.
type PluginSection struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Status        string         `json:"status"`
	Error         string         `json:"error,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	SetupTime     float64        `json:"setup_time"`
	RunTime       float64        `json:"run_time"`
	Timeout       float64        `json:"timeout"`
	TimeoutHit    bool           `json:"timeout_hit"`
	Options       map[string]any `json:"options,omitempty"`
	Files         []FileEntry    `json:"files"`
	Commands      []CommandEntry `json:"commands"`
	Strings       []StringEntry  `json:"strings"`
	Alerts        []string       `json:"alerts"`
	Notes         []string       `json:"notes"`
	SetupCommands []CommandEntry `json:"setup_commands"`
	Skipped       []SkippedEntry `json:"skipped"`
}

// FileEntry records one copy specification and what it produced.
type FileEntry struct {
	Specification string   `json:"specification"`
	FilesCopied   []string `json:"files_copied"`
	Tags          []string `json:"tags"`
}

// CommandEntry records one executed command.
type CommandEntry struct {
	Command    string    `json:"command"`
	Parameters []string  `json:"parameters"`
	Exec       string    `json:"exec"`
	Filepath   string    `json:"filepath"`
	Truncated  bool      `json:"truncated"`
	ReturnCode int       `json:"return_code"`
	TimedOut   bool      `json:"timed_out"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	RunTime    float64   `json:"run_time"`
	Tags       []string  `json:"tags"`
}

// StringEntry records content written by the plugin itself.
type StringEntry struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// SkippedEntry records an operation elided by a predicate or option.
type SkippedEntry struct {
	Kind   string `json:"kind"`
	Spec   string `json:"spec"`
	Reason string `json:"reason"`
}

// Cleaner is the cleaner component section, one entry per archive.
type Cleaner struct {
	mu sync.Mutex

	MapFile  string                     `json:"map_file"`
	Parsers  []string                   `json:"parsers"`
	Archives map[string]*CleanerArchive `json:"archives"`
}

// CleanerArchive records the obfuscation of one archive.
type CleanerArchive struct {
	Name               string    `json:"name"`
	ObfuscatedName     string    `json:"obfuscated_name"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	RunTime            float64   `json:"run_time"`
	FilesObfuscated    []string  `json:"files_obfuscated"`
	TotalSubstitutions int       `json:"total_substitutions"`
	RemovedFiles       []string  `json:"removed_files"`
}

// CleanerSection returns the cleaner component, creating it on first use.
func (m *Manifest) CleanerSection() *Cleaner {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Components.Cleaner == nil {
		m.Components.Cleaner = &Cleaner{Archives: make(map[string]*CleanerArchive)}
	}
	return m.Components.Cleaner
}

// AddArchive stores an archive record.
func (c *Cleaner) AddArchive(a *CleanerArchive) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Archives[a.Name] = a
}

// Collect is the collector component section.
type Collect struct {
	mu sync.Mutex

	Primary     string                  `json:"primary"`
	ClusterType string                  `json:"cluster_type"`
	Group       string                  `json:"group,omitempty"`
	Nodes       map[string]*CollectNode `json:"nodes"`
}

// CollectNode records the outcome for one host.
type CollectNode struct {
	Address    string    `json:"address"`
	Hostname   string    `json:"hostname"`
	Policy     string    `json:"policy"`
	SosVersion string    `json:"sos_version"`
	Transport  string    `json:"transport"`
	Command    string    `json:"command"`
	Archive    string    `json:"archive"`
	Checksum   string    `json:"checksum"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// CollectSection returns the collect component, creating it on first use.
func (m *Manifest) CollectSection() *Collect {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Components.Collect == nil {
		m.Components.Collect = &Collect{Nodes: make(map[string]*CollectNode)}
	}
	return m.Components.Collect
}

// AddNode stores a node record.
func (c *Collect) AddNode(n *CollectNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Nodes[n.Address] = n
}
