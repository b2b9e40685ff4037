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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/sos/pkg/cleaner"
	"github.com/NVIDIA/sos/pkg/config"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/report"
	"github.com/NVIDIA/sos/pkg/serializer"
)

// presetKeys are the report options a preset may carry.
var presetKeys = []string{
	"only_plugins", "skip_plugins", "enable_plugins", "plugin_options", "profiles",
	"skip_commands", "skip_files", "log_size", "plugin_timeout", "cmd_timeout", "threads",
	"compression_type", "all_logs", "alloptions", "no_report", "no_postproc", "no_env_vars",
	"allow_system_changes", "clean", "upload", "since", "label", "case_id",
}

func reportCmd() *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "list-plugins",
			Aliases: []string{"l"},
			Usage:   "List plugins and their options, then exit",
		},
		&cli.StringFlag{
			Name:  "format",
			Value: "text",
			Usage: fmt.Sprintf("Format for --list-plugins: text, %s", strings.Join(serializer.SupportedFormats(), ", ")),
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Write the --list-plugins catalog to this file instead of stdout",
		},
		&cli.BoolFlag{
			Name:  "list-profiles",
			Usage: "List profiles and their plugins, then exit",
		},
		&cli.BoolFlag{
			Name:  "list-presets",
			Usage: "List presets, then exit",
		},
		&cli.StringFlag{
			Name:  "add-preset",
			Usage: "Save the given options as a new preset",
		},
		&cli.StringFlag{
			Name:  "desc",
			Usage: "Description of the preset being added",
		},
		&cli.StringFlag{
			Name:  "note",
			Usage: "Note shown when the preset being added is used",
		},
		&cli.StringFlag{
			Name:  "del-preset",
			Usage: "Delete the named preset",
		},
	}
	flags = append(flags, reportFlags()...)
	flags = append(flags, cleanFlags()...)
	flags = append(flags, uploadFlags()...)

	return &cli.Command{
		Name:  "report",
		Usage: "Collect diagnostics from the local host",
		Description: `Run the enabled plugins against this host and package their output into a
compressed archive under the temporary directory.

# Examples

Collect with the defaults:
  sos report --batch

Collect only two plugins with a case number:
  sos report -o kernel,memory --case-id 01234567

Collect, obfuscate and upload:
  sos report --batch --clean --upload --upload-url https://support.example.com/upload`,
		Flags:  flags,
		Before: setup,
		Action: runReport,
	}
}

func runReport(ctx context.Context, cmd *cli.Command) error {
	w := stdout(cmd)
	store := presetStore(cmd)
	switch {
	case cmd.Bool("list-presets"):
		return listPresets(w, store)
	case cmd.IsSet("del-preset"):
		name := cmd.String("del-preset")
		if err := store.Delete(name); err != nil {
			return err
		}
		fmt.Fprintf(w, "Deleted preset '%s'\n", name)
		return nil
	}

	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("add-preset") {
		return addPreset(w, store, cmd, opts)
	}

	pol, err := policy.NewLinux(policy.WithSysroot(opts.Report.Sysroot))
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to detect the host distribution", err)
	}
	eng, err := report.New(report.Config{
		Options: opts,
		Policy:  pol,
		Version: version,
		Cmdline: cmdline(),
		Console: w,
	})
	if err != nil {
		return err
	}
	switch {
	case cmd.Bool("list-plugins"):
		return listPlugins(ctx, cmd, eng, w)
	case cmd.Bool("list-profiles"):
		return eng.ListProfiles(w)
	}

	res, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	slog.Debug("report finished", "path", res.Path, "summary", res.Summary.String(), "duration", res.Duration)
	path := res.Path
	if path == "" {
		return nil
	}
	if opts.Report.Clean {
		if path, err = cleanReport(ctx, opts, w, res); err != nil {
			return err
		}
	}
	if opts.Report.Upload {
		return uploadArchive(ctx, opts, pol.DefaultUploadURL(), console(opts, w), path)
	}
	return nil
}

// cleanReport obfuscates the finished archive next to it and removes the
// original.
func cleanReport(ctx context.Context, opts *config.Options, w io.Writer, res *report.Result) (string, error) {
	c, err := cleaner.New(cleaner.Config{
		Options:   opts,
		OutputDir: filepath.Dir(res.Path),
		Hash:      res.Algorithm,
		Console:   w,
		Version:   version,
	})
	if err != nil {
		return "", err
	}
	cres, err := c.Execute(ctx, res.Path)
	if err != nil {
		return "", err
	}
	for _, p := range []string{res.Path, res.ChecksumPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil {
			slog.Warn("failed to remove unobfuscated archive", "path", p, "error", err)
		}
	}
	return cres.Path, nil
}

func listPresets(w io.Writer, store *config.PresetStore) error {
	presets, err := store.List()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "The following presets are available:\n\n")
	for _, p := range presets {
		fmt.Fprintf(w, "%14s %s\n", "name:", p.Name)
		fmt.Fprintf(w, "%14s %s\n", "description:", p.Desc)
		if p.Note != "" {
			fmt.Fprintf(w, "%14s %s\n", "note:", p.Note)
		}
		if len(p.Args) > 0 {
			fmt.Fprintf(w, "%14s %s\n", "options:", formatArgs(p.Args))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func addPreset(w io.Writer, store *config.PresetStore, cmd *cli.Command, opts *config.Options) error {
	desc := cmd.String("desc")
	if desc == "" {
		return sosErrors.New(sosErrors.ErrCodeConfig, "--add-preset requires --desc")
	}
	args, err := presetArgs(opts.Report)
	if err != nil {
		return err
	}
	p := &config.Preset{
		Name: cmd.String("add-preset"),
		Desc: desc,
		Note: cmd.String("note"),
		Args: args,
	}
	if err := store.Add(p); err != nil {
		return err
	}
	fmt.Fprintf(w, "Added preset '%s' with options %s\n", p.Name, formatArgs(args))
	return nil
}

// presetArgs returns the report options that differ from the defaults.
func presetArgs(r config.ReportOptions) (map[string]any, error) {
	current, err := toMap(r)
	if err != nil {
		return nil, err
	}
	base, err := toMap(config.Defaults().Report)
	if err != nil {
		return nil, err
	}
	args := make(map[string]any)
	for _, k := range presetKeys {
		if v, ok := current[k]; ok && !reflect.DeepEqual(v, base[k]) {
			args[k] = v
		}
	}
	return args, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeInternal, "failed to encode options", err)
	}
	m := make(map[string]any)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeInternal, "failed to decode options", err)
	}
	return m, nil
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, " ")
}

func console(opts *config.Options, w io.Writer) io.Writer {
	if opts.Quiet {
		return io.Discard
	}
	return w
}

func listPlugins(ctx context.Context, cmd *cli.Command, eng *report.Engine, w io.Writer) error {
	format := cmd.String("format")
	if format == "text" {
		return eng.ListPlugins(ctx, w)
	}
	if serializer.Format(format).IsUnknown() {
		return sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("unknown --format %q", format))
	}
	catalog, err := eng.Catalog(ctx)
	if err != nil {
		return err
	}
	out := serializer.NewWriter(serializer.Format(format), w)
	if path := cmd.String("output"); path != "" {
		out = serializer.NewFileWriterOrStdout(serializer.Format(format), path)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			slog.Warn("failed to close catalog output", "error", cerr)
		}
	}()
	if err := out.Serialize(ctx, catalog); err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeInternal, "failed to write plugin catalog", err)
	}
	return nil
}
