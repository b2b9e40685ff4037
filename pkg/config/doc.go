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

// Package config resolves the options of a run.
//
// Options are layered: built-in defaults, then the configuration file
// (--config-file, /etc/sos/sos.conf by default), then a preset, then the
// command line flags the user actually set. The result is a single Options
// value that the report engine, the collector, the cleaner and the upload
// dispatcher read from.
//
// Configuration files and presets are JSON or YAML. Unknown top-level keys
// are ignored with a warning. Preset files are validated against an
// embedded JSON schema before they are applied.
package config
