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

// Package report implements the plugin engine behind "sos report".
//
// A run resolves the plugin set (only, policy, profiles, skip, trigger,
// default, enable), applies plugin options, then runs every enabled
// plugin's setup and collection on a bounded worker pool. Each plugin runs
// under a watchdog: when its timeout expires its context is closed, the
// manifest marks it timed out and the worker moves on. Panics and setup
// errors are written to sos_logs/<plugin>-plugin-errors.txt and the run
// continues; only configuration errors, fatal filesystem errors and
// cancellation end it early.
//
// After collection the engine applies each plugin's substitutions, writes
// version.txt, the environment file, the manifest and the text, JSON and
// HTML reports, and finalizes the archive with its checksum file.
//
// Usage:
//
//	e, err := report.New(report.Config{Options: opts, Policy: pol, Version: version})
//	if err != nil {
//	    return err
//	}
//	res, err := e.Run(ctx)
package report
