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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Requirement modes for a predicate class.
const (
	RequireAny  = "any"
	RequireAll  = "all"
	RequireNone = "none"
)

// Predicate classes, used as keys of Predicate.Required.
const (
	ClassPackages   = "packages"
	ClassKmods      = "kmods"
	ClassServices   = "services"
	ClassFiles      = "files"
	ClassCmdOutputs = "cmd_outputs"
	ClassArch       = "arch"
)

// CmdOutput requires that running Cmd exits zero and its output contains Output.
type CmdOutput struct {
	Cmd    string `json:"cmd" yaml:"cmd" validate:"required"`
	Output string `json:"output" yaml:"output"`
}

// Predicate gates an operation on the state of the host. Each class is
// satisfied by any of its items unless Required says otherwise, and every
// non-empty class must be satisfied.
type Predicate struct {
	Packages   []string          `json:"packages,omitempty" yaml:"packages,omitempty"`
	Kmods      []string          `json:"kmods,omitempty" yaml:"kmods,omitempty"`
	Services   []string          `json:"services,omitempty" yaml:"services,omitempty"`
	Files      []string          `json:"files,omitempty" yaml:"files,omitempty"`
	CmdOutputs []CmdOutput       `json:"cmd_outputs,omitempty" yaml:"cmd_outputs,omitempty" validate:"dive"`
	Arch       []string          `json:"arch,omitempty" yaml:"arch,omitempty"`
	Required   map[string]string `json:"required,omitempty" yaml:"required,omitempty" validate:"dive,oneof=any all none"`
}

// String summarizes the predicate for logs and the manifest.
func (p *Predicate) String() string {
	if p == nil {
		return "none"
	}
	var parts []string
	add := func(class string, items []string) {
		if len(items) > 0 {
			parts = append(parts, fmt.Sprintf("%s %s: %s", p.mode(class), class, strings.Join(items, ", ")))
		}
	}
	add(ClassPackages, p.Packages)
	add(ClassKmods, p.Kmods)
	add(ClassServices, p.Services)
	add(ClassFiles, p.Files)
	if len(p.CmdOutputs) > 0 {
		cmds := make([]string, 0, len(p.CmdOutputs))
		for _, c := range p.CmdOutputs {
			cmds = append(cmds, fmt.Sprintf("%q in '%s'", c.Output, c.Cmd))
		}
		add(ClassCmdOutputs, cmds)
	}
	add(ClassArch, p.Arch)
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "; ")
}

func (p *Predicate) mode(class string) string {
	if m, ok := p.Required[class]; ok {
		return m
	}
	return RequireAny
}

// Evaluate tests the predicate against env. When false, the returned
// reason names the first unsatisfied class.
func (p *Predicate) Evaluate(ctx context.Context, env *Env) (bool, string) {
	if p == nil {
		return true, ""
	}
	pol := env.Policy
	checks := []struct {
		class string
		items []string
		test  func(string) bool
	}{
		{ClassPackages, p.Packages, func(n string) bool {
			_, ok := pol.PackageVersion(ctx, n)
			return ok
		}},
		{ClassKmods, p.Kmods, func(n string) bool { return pol.KernelModuleLoaded(ctx, n) }},
		{ClassServices, p.Services, func(n string) bool { return pol.ServiceRunning(ctx, n) }},
		{ClassFiles, p.Files, func(n string) bool {
			_, err := os.Stat(env.hostPath(n))
			return err == nil
		}},
		{ClassArch, p.Arch, func(n string) bool { return strings.EqualFold(pol.Arch(), n) }},
	}
	for _, c := range checks {
		if !satisfied(p.mode(c.class), c.items, c.test) {
			return false, fmt.Sprintf("%s %s not satisfied: %s", p.mode(c.class), c.class, strings.Join(c.items, ", "))
		}
	}

	cmdOK := func(c CmdOutput) bool { return env.cmdOutputMatches(ctx, c) }
	if !satisfied(p.mode(ClassCmdOutputs), p.CmdOutputs, cmdOK) {
		return false, fmt.Sprintf("%s %s not satisfied", p.mode(ClassCmdOutputs), ClassCmdOutputs)
	}
	return true, ""
}

func satisfied[T any](mode string, items []T, test func(T) bool) bool {
	if len(items) == 0 {
		return true
	}
	switch mode {
	case RequireAll:
		return !slices.ContainsFunc(items, func(item T) bool { return !test(item) })
	case RequireNone:
		return !slices.ContainsFunc(items, test)
	default:
		return slices.ContainsFunc(items, test)
	}
}

// Trigger decides whether a plugin enables itself on a host. It matches
// when any listed package, file, command, kernel module or service is
// present. Architectures restrict rather than enable.
type Trigger struct {
	Packages      []string `json:"packages,omitempty" yaml:"packages,omitempty"`
	Files         []string `json:"files,omitempty" yaml:"files,omitempty"`
	Commands      []string `json:"commands,omitempty" yaml:"commands,omitempty"`
	KernelModules []string `json:"kernel_modules,omitempty" yaml:"kernel_modules,omitempty"`
	Services      []string `json:"services,omitempty" yaml:"services,omitempty"`
	Architectures []string `json:"architectures,omitempty" yaml:"architectures,omitempty"`
}

func (t Trigger) empty() bool {
	return len(t.Packages)+len(t.Files)+len(t.Commands)+len(t.KernelModules)+len(t.Services) == 0
}

// Matches evaluates the trigger. A trigger with no entries always matches.
func (t Trigger) Matches(ctx context.Context, env *Env) bool {
	pol := env.Policy
	if len(t.Architectures) > 0 && !slices.ContainsFunc(t.Architectures, func(a string) bool {
		return strings.EqualFold(a, pol.Arch())
	}) {
		return false
	}
	if t.empty() {
		return true
	}
	for _, f := range t.Files {
		if matches, _ := filepath.Glob(env.hostPath(f)); len(matches) > 0 {
			return true
		}
	}
	for _, p := range t.Packages {
		if _, ok := pol.PackageVersion(ctx, p); ok {
			return true
		}
	}
	for _, c := range t.Commands {
		if env.commandExists(c) {
			return true
		}
	}
	for _, m := range t.KernelModules {
		if pol.KernelModuleLoaded(ctx, m) {
			return true
		}
	}
	for _, s := range t.Services {
		if pol.ServiceEnabled(ctx, s) || pol.ServiceRunning(ctx, s) {
			return true
		}
	}
	return false
}
