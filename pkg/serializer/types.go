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

// Package serializer writes and reads the structured documents sos produces
// and consumes: manifests, mapping files, presets, host groups and the
// listings printed by --list-plugins and friends.
//
// Three output formats are supported: JSON (indented), YAML and a
// human-readable table. Values implementing Tabular render as a columnar
// table; anything else is flattened into FIELD/VALUE rows.
//
//	w := serializer.NewWriter(serializer.FormatTable, os.Stdout)
//	if err := w.Serialize(ctx, catalog); err != nil {
//	    return err
//	}
//
// Files that hold secrets (the cleaner map) are written with WriteFileAtomic
// so a crash never leaves a truncated map behind.
package serializer

import "context"

// Serializer serializes a value to some destination.
type Serializer interface {
	Serialize(ctx context.Context, v any) error
}

// Closer is implemented by serializers holding resources such as files.
type Closer interface {
	Close() error
}

// Tabular is implemented by values that know how to present themselves as
// rows, e.g. the plugin catalog.
type Tabular interface {
	TableHeader() []string
	TableRows() [][]string
}
