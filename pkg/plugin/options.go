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
	"strconv"
	"strings"
)

// OptionType is the value type of a plugin option.
type OptionType string

const (
	OptionBool   OptionType = "bool"
	OptionInt    OptionType = "int"
	OptionString OptionType = "string"
	OptionList   OptionType = "list"
)

// OptionSpec declares an option a plugin recognizes.
type OptionSpec struct {
	Name        string     `json:"name" yaml:"name" validate:"required"`
	Description string     `json:"description" yaml:"description"`
	Type        OptionType `json:"type" yaml:"type" validate:"omitempty,oneof=bool int string list"`
	Default     any        `json:"default,omitempty" yaml:"default,omitempty"`
}

// Options available on every plugin.
const (
	OptTimeout    = "timeout"
	OptCmdTimeout = "cmd-timeout"
	OptPostproc   = "postproc"
	OptLogSize    = "log-size"
)

func globalOptionSpecs() []OptionSpec {
	return []OptionSpec{
		{Name: OptTimeout, Description: "timeout in seconds for plugin execution", Type: OptionInt, Default: 0},
		{Name: OptCmdTimeout, Description: "timeout in seconds for each command", Type: OptionInt, Default: 0},
		{Name: OptPostproc, Description: "enable post-processing of collected data", Type: OptionBool, Default: true},
		{Name: OptLogSize, Description: "limit in MiB for collected log files", Type: OptionInt, Default: 0},
	}
}

// Options holds the typed option values for one plugin instance.
type Options struct {
	specs  map[string]OptionSpec
	values map[string]any
	set    map[string]bool
}

// NewOptions returns options seeded with defaults for the global options
// and the given plugin specs.
func NewOptions(specs []OptionSpec) *Options {
	o := &Options{
		specs:  make(map[string]OptionSpec),
		values: make(map[string]any),
		set:    make(map[string]bool),
	}
	for _, s := range append(globalOptionSpecs(), specs...) {
		if s.Type == "" {
			s.Type = inferType(s.Default)
		}
		o.specs[s.Name] = s
		v, err := coerce(s.Type, s.Default)
		if err != nil {
			v = zeroValue(s.Type)
		}
		o.values[s.Name] = v
	}
	return o
}

func inferType(v any) OptionType {
	switch v.(type) {
	case bool:
		return OptionBool
	case int, int64, float64:
		return OptionInt
	case []string, []any:
		return OptionList
	default:
		return OptionString
	}
}

func zeroValue(t OptionType) any {
	switch t {
	case OptionBool:
		return false
	case OptionInt:
		return 0
	case OptionList:
		return []string{}
	default:
		return ""
	}
}

// Has reports whether name is a recognized option.
func (o *Options) Has(name string) bool {
	_, ok := o.specs[name]
	return ok
}

// IsSet reports whether name was explicitly set.
func (o *Options) IsSet(name string) bool {
	return o.set[name]
}

// Specs returns the recognized options sorted by name.
func (o *Options) Specs() []OptionSpec {
	out := make([]OptionSpec, 0, len(o.specs))
	for _, s := range o.specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Set assigns val to name, converting strings given on the command line to
// the option's declared type.
func (o *Options) Set(name string, val any) error {
	spec, ok := o.specs[name]
	if !ok {
		return fmt.Errorf("unknown option %q", name)
	}
	v, err := coerce(spec.Type, val)
	if err != nil {
		return fmt.Errorf("option %q: %w", name, err)
	}
	o.values[name] = v
	o.set[name] = true
	return nil
}

// EnableAll sets every boolean option to true, excluding the global ones.
func (o *Options) EnableAll() {
	global := make(map[string]bool)
	for _, s := range globalOptionSpecs() {
		global[s.Name] = true
	}
	for name, s := range o.specs {
		if s.Type == OptionBool && !global[name] {
			o.values[name] = true
			o.set[name] = true
		}
	}
}

// Get returns the raw value of name, or nil.
func (o *Options) Get(name string) any {
	return o.values[name]
}

// Bool returns a boolean option.
func (o *Options) Bool(name string) bool {
	b, _ := o.values[name].(bool)
	return b
}

// Int returns an integer option.
func (o *Options) Int(name string) int {
	i, _ := o.values[name].(int)
	return i
}

// String returns a string option.
func (o *Options) String(name string) string {
	s, _ := o.values[name].(string)
	return s
}

// List returns a list option.
func (o *Options) List(name string) []string {
	l, _ := o.values[name].([]string)
	return l
}

// Values returns a copy of all values, for the manifest.
func (o *Options) Values() map[string]any {
	out := make(map[string]any, len(o.values))
	for k, v := range o.values {
		out[k] = v
	}
	return out
}

func coerce(t OptionType, val any) (any, error) {
	if val == nil {
		return zeroValue(t), nil
	}
	switch t {
	case OptionBool:
		switch v := val.(type) {
		case bool:
			return v, nil
		case string:
			return parseBool(v)
		case int:
			return v != 0, nil
		}
	case OptionInt:
		switch v := val.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		case string:
			i, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("invalid integer %q", v)
			}
			return i, nil
		}
	case OptionList:
		switch v := val.(type) {
		case []string:
			return append([]string(nil), v...), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				out = append(out, fmt.Sprint(item))
			}
			return out, nil
		case string:
			return splitList(v), nil
		}
	case OptionString:
		return fmt.Sprint(val), nil
	}
	return nil, fmt.Errorf("cannot use %v as %s", val, t)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes", "1", "":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func splitList(s string) []string {
	out := []string{}
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ':' }) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
