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
	"log/slog"

	"github.com/NVIDIA/sos/pkg/defaults"
)

// Layers describes the sources Resolve merges, lowest precedence first
// after the built-in defaults.
type Layers struct {
	// ConfigFile is read when present; ConfigRequired makes a missing file an error.
	ConfigFile     string
	ConfigRequired bool
	// Preset names the preset to apply; empty uses the one from the
	// configuration file, if any.
	Preset  string
	Presets *PresetStore
	// Override applies the command line flags that were explicitly set.
	Override func(*Options) error
	Logger   *slog.Logger
}

// Resolve builds the effective options of a run.
func Resolve(l Layers) (*Options, error) {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	opts := Defaults()

	cfg := l.ConfigFile
	if cfg == "" {
		cfg = defaults.ConfigFile
	}
	if err := LoadFile(opts, cfg, l.ConfigRequired, log); err != nil {
		return nil, err
	}

	name := l.Preset
	if name == "" {
		name = opts.Report.Preset
	}
	if name != "" && name != NonePreset {
		store := l.Presets
		if store == nil {
			store = NewPresetStore(defaults.PresetsDir)
		}
		p, err := store.Get(name)
		if err != nil {
			return nil, err
		}
		log.Debug("applying preset", "preset", p.Name)
		if err := p.Apply(opts); err != nil {
			return nil, err
		}
	}

	if l.Override != nil {
		if err := l.Override(opts); err != nil {
			return nil, err
		}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}
