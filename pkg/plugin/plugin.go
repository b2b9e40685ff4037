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

// Package plugin is the framework diagnostic plugins are written against.
//
// A Plugin is a value: a name, the distribution families it supports, an
// enablement trigger, typed options and a Setup function. Setup receives a
// Context and queues operations on it (file copies, command captures,
// string drops, forbidden paths and substitutions). The engine then runs
// Collect, which executes the queue in order against the staging archive,
// followed by Postprocess, which applies the registered substitutions.
//
// Every operation yields a Result (ok, skipped, failed or timed out) and is
// recorded in the plugin's manifest section.
package plugin

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/NVIDIA/sos/pkg/policy"
)

var validName = regexp.MustCompile(`^[a-z0-9_]+$`)

// Plugin describes one diagnostic unit.
type Plugin struct {
	Name        string
	Description string
	// Families lists the distribution families the plugin supports.
	Families []string
	// Profiles are the plugin groups this plugin belongs to.
	Profiles []string
	Trigger  Trigger
	// DisabledByDefault plugins only run when explicitly enabled.
	DisabledByDefault bool
	// Experimental plugins only run when enabled or listed in only-plugins.
	Experimental bool
	Options      []OptionSpec
	// Timeout overrides the default plugin timeout when positive.
	Timeout time.Duration

	Setup func(ctx context.Context, c *Context) error
	// Postproc runs after the plugin's captures and substitutions.
	Postproc func(ctx context.Context, c *Context) error

	// Source is "builtin" or the definition file the plugin came from.
	Source string
}

// Validate checks the plugin is well formed.
func (p *Plugin) Validate() error {
	if !validName.MatchString(p.Name) {
		return fmt.Errorf("invalid plugin name %q", p.Name)
	}
	if p.Setup == nil {
		return fmt.Errorf("plugin %s has no setup", p.Name)
	}
	if len(p.Families) == 0 {
		return fmt.Errorf("plugin %s declares no families", p.Name)
	}
	return nil
}

// ValidFor reports whether the plugin supports the policy's families.
func (p *Plugin) ValidFor(pol policy.Policy) bool {
	return policy.ValidFamily(pol, p.Families)
}

// InProfile reports whether the plugin belongs to any of the profiles.
func (p *Plugin) InProfile(profiles []string) bool {
	return slices.ContainsFunc(p.Profiles, func(s string) bool { return slices.Contains(profiles, s) })
}

// CheckEnabled evaluates the plugin's trigger.
func (p *Plugin) CheckEnabled(ctx context.Context, env *Env) bool {
	return p.Trigger.Matches(ctx, env)
}

// DefaultEnabled reports whether the plugin runs without being asked for.
func (p *Plugin) DefaultEnabled() bool {
	return !p.DisabledByDefault && !p.Experimental
}

// Status is the outcome of an operation or a plugin.
type Status string

const (
	StatusOK       Status = "ok"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
	StatusTimedOut Status = "timed_out"
)

// Result is the outcome of one queued operation.
type Result struct {
	Kind   string
	Spec   string
	Status Status
	Reason string
	Err    error
}

func ok(kind, spec string) Result { return Result{Kind: kind, Spec: spec, Status: StatusOK} }

func skipped(kind, spec, reason string) Result {
	return Result{Kind: kind, Spec: spec, Status: StatusSkipped, Reason: reason}
}

func failed(kind, spec string, err error) Result {
	return Result{Kind: kind, Spec: spec, Status: StatusFailed, Reason: err.Error(), Err: err}
}

// Totals counts what a plugin contributed.
type Totals struct {
	Files    int
	Commands int
	Strings  int
	Alerts   int
	Notes    int
	Skipped  int
	Failed   int
	TimedOut int
}

// Summarize counts results by status.
func Summarize(results []Result) Totals {
	var t Totals
	for _, r := range results {
		switch r.Status {
		case StatusSkipped:
			t.Skipped++
		case StatusFailed:
			t.Failed++
		case StatusTimedOut:
			t.TimedOut++
		}
	}
	return t
}
