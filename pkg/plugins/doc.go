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

// Package plugins holds the built-in plugin catalog.
//
// Each plugin registers itself with the global plugin registry from an
// init function, so importing this package for its side effects makes the
// catalog available to plugin.NewFromGlobal:
//
//	import _ "github.com/NVIDIA/sos/pkg/plugins"
//
// Plugins group into profiles (system, boot, network, ...) that can be
// selected as a whole from the command line.
package plugins
