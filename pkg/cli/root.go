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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/logging"
	_ "github.com/NVIDIA/sos/pkg/plugins"
	"github.com/NVIDIA/sos/pkg/upload"
)

const (
	name           = "sos"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// prompt reads operator input; replaced in tests.
var prompt upload.Prompter = upload.TerminalPrompt

func init() {
	// -v is verbosity
	cli.VersionFlag = &cli.BoolFlag{
		Name:  "version",
		Usage: "print the version",
	}
}

// Execute runs the sos command line and exits with its status.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newApp().Run(ctx, os.Args)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nExiting on user cancel")
		} else {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		}
	}
	stop()
	os.Exit(sosErrors.ExitCode(err))
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "collect system diagnostics into a support archive",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Description: `sos gathers configuration, logs and command output from one host (report)
or many hosts (collect), optionally obfuscates the result (clean) and sends it
to a support endpoint (upload).`,
		EnableShellCompletion:     true,
		UseShortOptionHandling:    true,
		DisableSliceFlagSeparator: true,
		DefaultCommand:            "report",
		Flags:                     globalFlags(),
		Before:                    setup,
		After:                     writeMetrics,
		Commands: []*cli.Command{
			reportCmd(),
			collectCmd(),
			cleanCmd(),
			uploadCmd(),
		},
	}
}

// setup installs the process logger before any command runs.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level := cmd.String("log-level")
	if cmd.Count("verbose") > 0 || os.Getenv(defaults.EnvTestLogs) != "" {
		level = "debug"
	}
	logging.SetDefaultStructuredLoggerWithLevel(name, version, level)
	slog.Debug("starting",
		"name", name,
		"version", version,
		"commit", commit,
		"date", date,
		"logLevel", level)
	return ctx, nil
}

// writeMetrics dumps the default registry to --metrics-file.
func writeMetrics(_ context.Context, cmd *cli.Command) error {
	path := cmd.String("metrics-file")
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeInternal, "failed to write metrics file", err)
	}
	return nil
}

// resolveOptions layers defaults, the configuration file, the preset and
// the explicitly set flags.
func resolveOptions(cmd *cli.Command) (*config.Options, error) {
	opts, err := config.Resolve(config.Layers{
		ConfigFile:     cmd.String("config-file"),
		ConfigRequired: cmd.IsSet("config-file"),
		Preset:         cmd.String("preset"),
		Presets:        presetStore(cmd),
		Override:       func(o *config.Options) error { return applyFlags(cmd, o) },
	})
	if err != nil {
		return nil, err
	}
	if os.Getenv(defaults.EnvTestLogs) != "" && opts.Verbosity < 2 {
		opts.Verbosity = 2
	}
	return opts, nil
}

func presetStore(cmd *cli.Command) *config.PresetStore {
	return config.NewPresetStore(cmd.String("presets-dir"))
}

// cmdline is the invocation recorded in manifests.
func cmdline() string {
	return strings.Join(os.Args, " ")
}

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// confirm shows msg and waits for ENTER unless running in batch mode.
// Without a terminal the run continues.
func confirm(opts *config.Options, w io.Writer, msg string) error {
	if opts.Batch {
		return nil
	}
	fmt.Fprintln(w, msg)
	if _, err := prompt("\nPress ENTER to continue, or CTRL-C to quit.\n", false); err != nil && !errors.Is(err, upload.ErrNoTerminal) {
		return sosErrors.Wrap(sosErrors.ErrCodeInvalidRequest, "confirmation aborted", err)
	}
	return nil
}
