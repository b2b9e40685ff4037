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
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/serializer"
)

var topLevelKeys = []string{"batch", "quiet", "verbosity", "tmp_dir", "report", "collect", "clean", "upload"}

// LoadFile applies the configuration file at path over opts. A missing
// file is ignored unless required is set.
func LoadFile(opts *Options, path string, required bool, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		log.Debug("configuration file not found", "path", path)
		return nil
	}
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("failed to read configuration file %s", path), err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	format := serializer.FormatFromPath(path)
	unknown, err := serializer.UnknownKeys(format, data, topLevelKeys...)
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("malformed configuration file %s", path), err)
	}
	for _, k := range unknown {
		log.Warn("ignoring unknown configuration key", "path", path, "key", k)
	}
	if err := serializer.Decode(format, data, opts); err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("malformed configuration file %s", path), err)
	}
	return nil
}

// ParseSince parses a YYYYMMDD[HHMMSS] timestamp in local time. Missing
// time digits are taken as zero.
func ParseSince(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) < 8 || len(s) > 14 {
		return time.Time{}, sosErrors.New(sosErrors.ErrCodeConfig,
			fmt.Sprintf("invalid --since value %q: expected YYYYMMDD[HHMMSS]", s))
	}
	s += strings.Repeat("0", 14-len(s))
	t, err := time.ParseInLocation("20060102150405", s, time.Local)
	if err != nil {
		return time.Time{}, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid --since value %q", s), err)
	}
	return t, nil
}

// ParsePluginOptions turns "plugin.option=value" assignments into a map
// keyed by plugin then option.
func ParsePluginOptions(assignments []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	for _, a := range assignments {
		for _, item := range splitAssignments(a) {
			name, value, ok := strings.Cut(item, "=")
			if !ok {
				value = "true"
			}
			plug, opt, ok := strings.Cut(name, ".")
			if !ok || plug == "" || opt == "" {
				return nil, sosErrors.New(sosErrors.ErrCodeConfig,
					fmt.Sprintf("invalid plugin option %q: expected plugin.option=value", item))
			}
			if out[plug] == nil {
				out[plug] = make(map[string]string)
			}
			out[plug][opt] = value
		}
	}
	return out, nil
}

// splitAssignments splits "a.b=1,c.d=x:y" on commas that start a new
// plugin.option assignment, so list values may contain commas.
func splitAssignments(s string) []string {
	var out []string
	parts := strings.Split(s, ",")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		head, _, _ := strings.Cut(p, "=")
		if i > 0 && len(out) > 0 && !strings.Contains(head, ".") {
			out[len(out)-1] += "," + p
			continue
		}
		out = append(out, p)
	}
	return out
}
