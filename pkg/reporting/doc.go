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

// Package reporting renders the human readable companions of the manifest.
//
// A run's manifest is folded into a small tree, one section per plugin
// with command, copied file, created file, alert and note leaves, and the
// tree is written as sos.txt, sos.json and sos.html under sos_reports/.
// These files are a convenience; callers treat write failures as
// warnings.
package reporting
