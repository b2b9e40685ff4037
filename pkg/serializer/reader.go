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

package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FormatFromPath determines the format from the file extension.
// .yaml/.yml is YAML; everything else, including extensionless sos config
// files, is decoded as JSON first and falls back to YAML in Decode.
func FormatFromPath(filePath string) Format {
	lower := strings.ToLower(filePath)
	switch {
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML
	case strings.HasSuffix(lower, ".table"), strings.HasSuffix(lower, ".txt"):
		return FormatTable
	default:
		return FormatJSON
	}
}

// Decode unmarshals data into v. JSON input that fails to parse is retried
// as YAML, which accepts the common hand-edited config forms.
func Decode(format Format, data []byte, v any) error {
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, v); err != nil {
			if yerr := yaml.Unmarshal(data, v); yerr != nil {
				return fmt.Errorf("failed to decode JSON: %w", err)
			}
		}
		return nil
	case FormatYAML:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to decode YAML: %w", err)
		}
		return nil
	case FormatTable:
		return fmt.Errorf("table format does not support deserialization")
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// FromFile loads and decodes a file, detecting the format from its extension.
func FromFile[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var v T
	if err := Decode(FormatFromPath(path), bytes.TrimSpace(data), &v); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return &v, nil
}

// UnknownKeys returns the top-level keys of a JSON or YAML object that are
// not listed in known, sorted.
func UnknownKeys(format Format, data []byte, known ...string) ([]string, error) {
	var top map[string]any
	if err := Decode(format, data, &top); err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(known))
	for _, k := range known {
		allowed[k] = struct{}{}
	}
	var unknown []string
	for k := range top {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}
