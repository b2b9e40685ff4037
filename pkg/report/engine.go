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

package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/sos/pkg/archive"
	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/logging"
	"github.com/NVIDIA/sos/pkg/manifest"
	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/reporting"
	"github.com/NVIDIA/sos/pkg/serializer"
)

// Archive paths written by the engine.
const (
	ManifestPath    = "sos_reports/manifest.json"
	ReportsDir      = "sos_reports"
	LogsDir         = "sos_logs"
	VersionFile     = "version.txt"
	EnvironmentFile = "environment"
)

// Config wires an Engine.
type Config struct {
	Options *config.Options
	Policy  policy.Policy
	// Registry defaults to the built-in catalog plus the definitions found
	// in the configured plugin directory.
	Registry *plugin.Registry
	// Runner defaults to local subprocess execution.
	Runner plugin.CommandRunner
	// Version is the sos version recorded in the archive.
	Version string
	Cmdline string
	// Console receives UI output, stdout when nil.
	Console io.Writer
}

// Summary counts plugin outcomes.
type Summary struct {
	Run      int
	Failed   int
	TimedOut int
}

func (s Summary) String() string {
	return fmt.Sprintf("Plugins run: %d, failed: %d, timed out: %d", s.Run, s.Failed, s.TimedOut)
}

// Result describes a finished run.
type Result struct {
	// Path is the final archive, empty with --build or --dry-run.
	Path         string
	Checksum     string
	ChecksumPath string
	Algorithm    string
	// BuildDir is the kept staging directory with --build or --dry-run.
	BuildDir string
	Manifest *manifest.Manifest
	Summary  Summary
	Duration time.Duration
}

// Engine runs plugins against one host and produces an archive.
type Engine struct {
	cfg    Config
	opts   *config.Options
	reg    *plugin.Registry
	policy policy.Policy
	runner plugin.CommandRunner
}

// New validates cfg and loads the plugin registry. Plugin definitions that
// fail to load or collide with a built-in are CONFIG errors.
func New(cfg Config) (*Engine, error) {
	if cfg.Options == nil {
		return nil, sosErrors.New(sosErrors.ErrCodeInvalidRequest, "options are required")
	}
	if cfg.Policy == nil {
		return nil, sosErrors.New(sosErrors.ErrCodeInvalidRequest, "policy is required")
	}
	e := &Engine{
		cfg:    cfg,
		opts:   cfg.Options,
		reg:    cfg.Registry,
		policy: cfg.Policy,
		runner: cfg.Runner,
	}
	if e.runner == nil {
		e.runner = &plugin.ExecRunner{Grace: defaults.ShutdownGrace}
	}
	if e.reg == nil {
		reg, err := LoadRegistry(cfg.Options.Report.PluginDir)
		if err != nil {
			return nil, err
		}
		e.reg = reg
	}
	return e, nil
}

// LoadRegistry returns the built-in catalog extended with the plugin
// definitions in dir.
func LoadRegistry(dir string) (*plugin.Registry, error) {
	reg := plugin.NewFromGlobal()
	if dir == "" {
		return reg, nil
	}
	defs, err := plugin.LoadDefinitions(dir)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to load plugin definitions", err)
	}
	for _, p := range defs {
		if err := reg.Register(p); err != nil {
			return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to register plugin definition", err)
		}
	}
	return reg, nil
}

// Registry returns the plugins known to the engine.
func (e *Engine) Registry() *plugin.Registry { return e.reg }

// Run resolves the plugin set, collects, post-processes and finalizes the
// archive. Plugin failures and timeouts are recorded and never fail the
// run; CONFIG errors are returned before any archive is created and fatal
// filesystem errors abort it.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res, err := e.run(ctx)
	reportRunDuration.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		reportRunTotal.WithLabelValues("success").Inc()
		res.Duration = time.Since(start)
	case errors.Is(err, context.Canceled):
		reportRunTotal.WithLabelValues("interrupted").Inc()
	default:
		reportRunTotal.WithLabelValues("error").Inc()
	}
	return res, err
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	ro := e.opts.Report

	env := e.newEnv()
	if ro.Since != "" {
		since, err := config.ParseSince(ro.Since)
		if err != nil {
			return nil, err
		}
		env.Since = since
	}

	sel, err := Select(ctx, e.reg, env, ro)
	if err != nil {
		return nil, err
	}
	popts, err := PluginOptions(e.reg, sel, ro)
	if err != nil {
		return nil, err
	}
	reportPluginsEnabled.Set(float64(len(sel.Enabled)))

	name := archive.BuildName(archive.ReportPrefix, ro.Label, e.policy.Hostname(), ro.CaseID,
		time.Now(), archive.RandomSuffix(5))
	root := filepath.Join(e.tmpDir(), name)
	keep := ro.Build || ro.DryRun
	done := false
	defer func() {
		if !done && !keep {
			_ = os.RemoveAll(root)
		}
	}()

	logs, err := logging.NewRunLoggers(logging.RunOptions{
		Dir:       filepath.Join(root, LogsDir),
		Verbosity: e.opts.Verbosity,
		Quiet:     e.opts.Quiet,
		Console:   e.cfg.Console,
	})
	if err != nil {
		return nil, sosErrors.AsFatalFS("failed to open run logs", err)
	}
	logsOpen := true
	defer func() {
		if logsOpen {
			_ = logs.Close()
		}
	}()
	log, ui := logs.Main, logs.UI

	arc, err := archive.New(e.tmpDir(), name, archive.WithLogger(log))
	if err != nil {
		return nil, err
	}
	env.Archive = arc
	env.Logger = log

	m := e.newManifest(arc)
	rep := m.ReportSection()
	rep.Preset = ro.Preset
	rep.Profiles = append([]string{}, ro.Profiles...)
	rep.SetEnabled(sel.Names())
	for n, reason := range sel.Skipped {
		rep.Skip(n, reason)
	}

	ui.Info(fmt.Sprintf("sos report (version %s)", e.cfg.Version))
	ui.Info(fmt.Sprintf("Setting up archive %s", name))
	log.Info("starting report", "archive", name, "policy", e.policy.Name(),
		"plugins", len(sel.Enabled), "threads", ro.Threads)
	if ro.DryRun {
		ui.Info("Dry run: commands will be recorded but not executed")
	}
	ui.Info(fmt.Sprintf("Running %d plugins. Please wait...", len(sel.Enabled)))

	runs, err := e.collect(ctx, env, sel, popts, rep, log, ui)
	if err != nil {
		return nil, err
	}

	if ro.NoPostproc {
		log.Info("post-processing disabled")
	} else if err := e.postprocess(ctx, runs, log); err != nil {
		return nil, err
	}

	if err := e.writeMetadata(arc, runs, log); err != nil {
		return nil, err
	}

	summary := summarize(runs)
	m.Finish()
	if err := arc.AddDir(ReportsDir); err != nil {
		return nil, err
	}
	manifestPath, err := arc.Path(ManifestPath)
	if err != nil {
		return nil, err
	}
	if err := serializer.WriteJSONFile(manifestPath, m, 0o644); err != nil {
		return nil, sosErrors.AsFatalFS("failed to write manifest", err)
	}
	if !ro.NoReport {
		if err := reporting.Write(filepath.Join(arc.Root(), ReportsDir), m); err != nil {
			log.Warn("failed to write reports", "error", err)
		}
	}

	ui.Info(summary.String())
	log.Info("collection finished", "run", summary.Run, "failed", summary.Failed, "timed_out", summary.TimedOut)

	res := &Result{Manifest: m, Summary: summary, Algorithm: e.hashAlgorithm()}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if keep {
		logsOpen = false
		_ = logs.Close()
		done = true
		res.BuildDir = arc.Root()
		e.printf("\nsos report build tree is located at: %s\n\n", arc.Root())
		return res, nil
	}

	compression, err := archive.ParseCompression(ro.Compression)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "invalid compression", err)
	}
	ui.Info("Creating compressed archive...")
	logsOpen = false
	if err := logs.Close(); err != nil {
		slog.Warn("failed to close run logs", "error", err)
	}
	fin, err := arc.Finalize(ctx, archive.FinalizeOptions{
		Compression: compression,
		Fast:        ro.FastCompression,
		Hash:        res.Algorithm,
		OutputDir:   e.tmpDir(),
	})
	if err != nil {
		return nil, err
	}
	done = true
	res.Path, res.Checksum, res.ChecksumPath = fin.Path, fin.Checksum, fin.ChecksumPath

	if ro.EncryptKey != "" || ro.EncryptPass != "" {
		if err := e.encrypt(res); err != nil {
			return res, err
		}
	}
	if fi, err := os.Stat(res.Path); err == nil {
		reportArchiveBytes.Set(float64(fi.Size()))
	}

	e.printf("\nYour sos report has been generated and saved in:\n\t%s\n\n %s\t%s\n\nPlease send this file to your support representative.\n\n",
		res.Path, res.Algorithm, res.Checksum)
	return res, nil
}

func (e *Engine) newEnv() *plugin.Env {
	ro := e.opts.Report
	return &plugin.Env{
		Policy:             e.policy,
		Logger:             slog.Default(),
		Runner:             e.runner,
		LogSize:            int64(ro.LogSize) * 1024 * 1024,
		AllLogs:            ro.AllLogs,
		AllowSystemChanges: ro.AllowSystemChanges,
		CmdTimeout:         ro.CmdTimeoutDuration(),
		DryRun:             ro.DryRun,
		SkipCommands:       ro.SkipCommands,
		SkipFiles:          ro.SkipFiles,
		ContainerRuntime:   ro.ContainerRuntime,
	}
}

func (e *Engine) newManifest(arc *archive.Archive) *manifest.Manifest {
	ro := e.opts.Report
	m := manifest.New(e.cfg.Version, uuid.NewString(), e.cfg.Cmdline)
	m.CaseID = ro.CaseID
	m.Label = ro.Label
	m.Compression = ro.Compression
	m.TmpDir = filepath.Dir(arc.Root())
	m.ChecksumType = e.hashAlgorithm()
	m.Policy = manifest.Policy{
		Name:     e.policy.Name(),
		Distro:   e.policy.Distro(),
		Release:  e.policy.Release(),
		Hostname: e.policy.Hostname(),
		Arch:     e.policy.Arch(),
	}
	m.Options = e.opts
	return m
}

func (e *Engine) tmpDir() string {
	if e.opts.TmpDir != "" {
		return e.opts.TmpDir
	}
	if d := os.Getenv("TMPDIR"); d != "" {
		return d
	}
	return defaults.TmpDir
}

func (e *Engine) hashAlgorithm() string {
	if h := e.policy.HashAlgorithm(); h != "" {
		return h
	}
	return defaults.HashAlgorithm
}

func (e *Engine) printf(format string, args ...any) {
	if e.opts.Quiet {
		return
	}
	w := e.cfg.Console
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, format, args...)
}

// collect runs setup and collection for every enabled plugin on a bounded
// worker pool. Only fatal filesystem errors and cancellation stop it.
func (e *Engine) collect(ctx context.Context, env *plugin.Env, sel *Selection, popts map[string]*plugin.Options,
	rep *manifest.Report, log, ui *slog.Logger) ([]*pluginRun, error) {
	runs := make([]*pluginRun, len(sel.Enabled))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.opts.Report.Threads, 1))
	for i, p := range sel.Enabled {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := e.runPlugin(gctx, env, p, popts[p.Name], rep.Plugin(p.Name), log)
			runs[i] = r
			if err != nil {
				return err
			}
			switch r.status {
			case manifest.StatusTimedOut:
				ui.Warn(fmt.Sprintf("Plugin %s timed out", p.Name))
			case manifest.StatusFailed:
				ui.Warn(fmt.Sprintf("Plugin %s failed, see %s", p.Name, errorsFile(p.Name)))
			default:
				ui.Debug(fmt.Sprintf("Finished running plugin %s", p.Name))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			ui.Warn("Exiting on user cancel")
			return nil, ctx.Err()
		}
		log.Error("aborting run", "error", err)
		return nil, err
	}
	return runs, nil
}

func (e *Engine) postprocess(ctx context.Context, runs []*pluginRun, log *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.opts.Report.Threads, 1))
	for _, r := range runs {
		if r == nil || r.ctx == nil {
			continue
		}
		g.Go(func() error {
			err := r.ctx.Postprocess(gctx)
			switch {
			case err == nil:
				return nil
			case sosErrors.IsFatalFS(err), errors.Is(err, context.Canceled):
				return err
			default:
				log.Warn("post-processing failed", "plugin", r.name, "error", err)
				return nil
			}
		})
	}
	return g.Wait()
}

// writeMetadata adds version.txt and the environment file.
func (e *Engine) writeMetadata(arc *archive.Archive, runs []*pluginRun, log *slog.Logger) error {
	if err := arc.AddString(fmt.Sprintf("sos report version: %s\n", e.cfg.Version), VersionFile); err != nil {
		return err
	}
	if e.opts.Report.NoEnvVars {
		log.Debug("environment variable collection disabled")
		return nil
	}
	seen := make(map[string]struct{})
	for _, r := range runs {
		if r == nil || r.ctx == nil {
			continue
		}
		for _, name := range r.ctx.EnvVars() {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		if v, ok := os.LookupEnv(n); ok {
			fmt.Fprintf(&b, "%s=%s\n", n, v)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return arc.AddString(b.String(), EnvironmentFile)
}

func (e *Engine) encrypt(res *Result) error {
	ro := e.opts.Report
	plain := res.Path
	dest, err := archive.Encrypt(plain, archive.EncryptOptions{KeyFile: ro.EncryptKey, Passphrase: ro.EncryptPass})
	if err != nil {
		return err
	}
	_ = os.Remove(res.ChecksumPath)
	sum, err := archive.HashFile(dest, res.Algorithm)
	if err != nil {
		return err
	}
	sumPath, err := archive.WriteChecksumFile(dest, res.Algorithm, sum)
	if err != nil {
		return err
	}
	res.Path, res.Checksum, res.ChecksumPath = dest, sum, sumPath
	return nil
}

func summarize(runs []*pluginRun) Summary {
	var s Summary
	for _, r := range runs {
		if r == nil {
			continue
		}
		s.Run++
		switch r.status {
		case manifest.StatusFailed:
			s.Failed++
		case manifest.StatusTimedOut:
			s.TimedOut++
		}
	}
	return s
}
