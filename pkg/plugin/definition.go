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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/NVIDIA/sos/pkg/serializer"
)

// Definition is the declarative form of a plugin, loaded from a YAML or
// JSON file in the plugin directory.
type Definition struct {
	Name          string                   `json:"name" yaml:"name" validate:"required,max=64"`
	Description   string                   `json:"description" yaml:"description"`
	Families      []string                 `json:"families" yaml:"families" validate:"required,min=1,dive,oneof=independent redhat debian ubuntu suse"`
	Profiles      []string                 `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	Disabled      bool                     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Experimental  bool                     `json:"experimental,omitempty" yaml:"experimental,omitempty"`
	Timeout       int                      `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"`
	Trigger       Trigger                  `json:"trigger" yaml:"trigger"`
	Options       []OptionSpec             `json:"options,omitempty" yaml:"options,omitempty" validate:"dive"`
	Copy          []CopyDefinition         `json:"copy,omitempty" yaml:"copy,omitempty" validate:"dive"`
	Commands      []CommandDefinition      `json:"commands,omitempty" yaml:"commands,omitempty" validate:"dive"`
	Journals      []JournalDefinition      `json:"journals,omitempty" yaml:"journals,omitempty" validate:"dive"`
	Services      []string                 `json:"services,omitempty" yaml:"services,omitempty"`
	Forbidden     []string                 `json:"forbidden,omitempty" yaml:"forbidden,omitempty"`
	EnvVars       []string                 `json:"env_vars,omitempty" yaml:"env_vars,omitempty"`
	Substitutions []SubstitutionDefinition `json:"substitutions,omitempty" yaml:"substitutions,omitempty" validate:"dive"`
}

// CopyDefinition declares a copy spec. When names a boolean plugin option
// that must be set for the entry to apply.
type CopyDefinition struct {
	Paths       []string   `json:"paths" yaml:"paths" validate:"required,min=1"`
	SizeLimit   int64      `json:"size_limit,omitempty" yaml:"size_limit,omitempty"`
	MaxAgeHours int        `json:"max_age_hours,omitempty" yaml:"max_age_hours,omitempty" validate:"gte=0"`
	NoTail      bool       `json:"no_tail,omitempty" yaml:"no_tail,omitempty"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	Predicate   *Predicate `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	When        string     `json:"when,omitempty" yaml:"when,omitempty"`
}

// CommandDefinition declares a command capture.
type CommandDefinition struct {
	Cmd             string            `json:"cmd" yaml:"cmd" validate:"required"`
	Timeout         int               `json:"timeout,omitempty" yaml:"timeout,omitempty" validate:"gte=0"`
	SuggestFilename string            `json:"suggest_filename,omitempty" yaml:"suggest_filename,omitempty" validate:"excludes=/"`
	RootSymlink     string            `json:"root_symlink,omitempty" yaml:"root_symlink,omitempty"`
	Env             map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Container       string            `json:"container,omitempty" yaml:"container,omitempty"`
	Changes         bool              `json:"changes,omitempty" yaml:"changes,omitempty"`
	Tags            []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Predicate       *Predicate        `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	When            string            `json:"when,omitempty" yaml:"when,omitempty"`
}

// JournalDefinition declares a journal capture.
type JournalDefinition struct {
	Units []string `json:"units,omitempty" yaml:"units,omitempty"`
	Boot  string   `json:"boot,omitempty" yaml:"boot,omitempty"`
	Lines int      `json:"lines,omitempty" yaml:"lines,omitempty" validate:"gte=0"`
	Tags  []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Substitution kinds in definitions.
const (
	SubFile    = "file"
	SubPath    = "path"
	SubCommand = "command"
	SubPrivate = "private"
)

// SubstitutionDefinition declares a post-processing substitution. For the
// private kind Replace is the description of the scrubbed content.
type SubstitutionDefinition struct {
	Kind    string `json:"kind" yaml:"kind" validate:"required,oneof=file path command private"`
	Match   string `json:"match" yaml:"match" validate:"required"`
	Regex   string `json:"regex,omitempty" yaml:"regex,omitempty" validate:"required_unless=Kind private"`
	Replace string `json:"replace,omitempty" yaml:"replace,omitempty"`
}

var definitionValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the definition's structure.
func (d *Definition) Validate() error {
	if err := definitionValidator.Struct(d); err != nil {
		return fmt.Errorf("invalid plugin definition %q: %w", d.Name, err)
	}
	return nil
}

// Plugin builds the plugin described by d.
func (d *Definition) Plugin(source string) (*Plugin, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	def := *d
	p := &Plugin{
		Name:              def.Name,
		Description:       def.Description,
		Families:          def.Families,
		Profiles:          def.Profiles,
		Trigger:           def.Trigger,
		DisabledByDefault: def.Disabled,
		Experimental:      def.Experimental,
		Options:           def.Options,
		Timeout:           time.Duration(def.Timeout) * time.Second,
		Setup:             def.setup,
		Source:            source,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (d *Definition) setup(ctx context.Context, c *Context) error {
	when := func(opt string) bool { return opt == "" || c.Options().Bool(opt) }

	c.AddForbiddenPath(d.Forbidden...)
	for _, cp := range d.Copy {
		if !when(cp.When) {
			continue
		}
		c.AddCopySpec(ctx, CopySpec{
			Paths:     cp.Paths,
			SizeLimit: cp.SizeLimit,
			MaxAge:    time.Duration(cp.MaxAgeHours) * time.Hour,
			Tags:      cp.Tags,
			Pred:      cp.Predicate,
			NoTail:    cp.NoTail,
		})
	}
	for _, cmd := range d.Commands {
		if !when(cmd.When) {
			continue
		}
		c.AddCmdOutput(ctx, Command{
			Cmd:             cmd.Cmd,
			Timeout:         time.Duration(cmd.Timeout) * time.Second,
			SuggestFilename: cmd.SuggestFilename,
			RootSymlink:     cmd.RootSymlink,
			Env:             cmd.Env,
			Container:       cmd.Container,
			Changes:         cmd.Changes,
			Tags:            cmd.Tags,
			Pred:            cmd.Predicate,
		})
	}
	for _, j := range d.Journals {
		c.AddJournal(ctx, Journal{Units: j.Units, Boot: j.Boot, Lines: j.Lines, Tags: j.Tags})
	}
	c.AddServiceStatus(ctx, d.Services...)
	c.AddEnvVar(d.EnvVars...)
	for _, s := range d.Substitutions {
		switch s.Kind {
		case SubFile:
			c.DoFileSub(s.Match, s.Regex, s.Replace)
		case SubPath:
			c.DoPathRegexSub(s.Match, s.Regex, s.Replace)
		case SubCommand:
			c.DoCmdOutputSub(s.Match, s.Regex, s.Replace)
		case SubPrivate:
			c.DoFilePrivateSub(s.Match, s.Replace)
		}
	}
	return nil
}

// LoadDefinitions reads every *.yaml, *.yml and *.json file in dir. A
// missing directory yields no plugins.
func LoadDefinitions(dir string) ([]*Plugin, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var plugins []*Plugin
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		p, err := LoadDefinition(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// LoadDefinition reads one plugin definition file.
func LoadDefinition(path string) (*Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin definition %s: %w", path, err)
	}
	var d Definition
	if err := serializer.Decode(serializer.FormatFromPath(path), data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse plugin definition %s: %w", path, err)
	}
	p, err := d.Plugin(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
