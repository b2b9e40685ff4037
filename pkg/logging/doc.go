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

// Package logging provides the structured slog setup used by the sos binary
// and the per-run "main" and "UI" sinks.
//
// # Process logger
//
// SetDefaultStructuredLogger installs a JSON handler on stderr carrying
// module and version attributes. LOG_LEVEL selects the level
// (debug, info, warn, error; default info):
//
//	logging.SetDefaultStructuredLogger("sos", version)
//	slog.Info("starting", "command", "report")
//
// # Run loggers
//
// A report, collect or clean run writes two logs into sos_logs/ of its
// archive. The main sink (sos.log) receives everything at debug level in
// text form. The UI sink (ui.log) mirrors what the operator sees on the
// terminal: short lines, info level unless -v was given, suppressed on the
// terminal by --quiet.
//
//	rl, err := logging.NewRunLoggers(logging.RunOptions{Dir: logsDir, Verbosity: v})
//	if err != nil {
//	    return err
//	}
//	defer rl.Close()
//	rl.UI.Info("Setting up plugins")
//	rl.Main.Debug("plugin options", "plugin", "networking", "opts", opts)
//
// Loggers are passed explicitly to the engine, cleaner and collector; each
// plugin logger is derived with plugin=<name> and each collector host logger
// with host=<address>. A "plugin" or "host" attribute is rendered by the UI
// sink as a leading column.
package logging
