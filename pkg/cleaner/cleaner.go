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

package cleaner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/sos/pkg/archive"
	"github.com/NVIDIA/sos/pkg/cleaner/parser"
	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/logging"
	"github.com/NVIDIA/sos/pkg/manifest"
)

// Disclaimer is shown before a standalone clean run.
const Disclaimer = `This command will attempt to obfuscate information that is generally
considered to be potentially sensitive. Such information includes IP
addresses, MAC addresses, domain names and any user-provided keywords.

Obfuscation is best-effort: it does not guarantee complete coverage of
such data in the archive, nor that data not matching the descriptions
above is obfuscated at all.

Review any resulting data and archives for remaining sensitive content
before passing them to a third party.`

const (
	logFile          = "cleaner.log"
	privateMapSuffix = "_private_map"
	obfuscatedSuffix = "-obfuscated"
	nameCacheSize    = 4096
)

// Config wires a Cleaner.
type Config struct {
	Options *config.Options
	// TmpDir holds the per-run work directory; Options.TmpDir when empty.
	TmpDir string
	// OutputDir receives obfuscated archives, the private map and the
	// obfuscation log; TmpDir when empty.
	OutputDir string
	// Hash is the checksum algorithm of repacked archives.
	Hash string
	// Manifest receives the cleaner section; a new one is created when nil.
	Manifest *manifest.Manifest
	// Log and UI are used as is when set, e.g. when cleaning is a post-step
	// of report or collect. Otherwise the cleaner opens its own loggers and
	// writes an obfuscation log next to its output.
	Log     *slog.Logger
	UI      *slog.Logger
	Console io.Writer
	Version string
}

// ArchiveResult describes one obfuscated report.
type ArchiveResult struct {
	Name           string
	ObfuscatedName string
	// Path is the repacked tarball, or the directory of an in-place report.
	// Reports nested in an archive of archives carry their member name and
	// a checksum path relative to the outer archive.
	Path               string
	Checksum           string
	ChecksumPath       string
	FilesObfuscated    []string
	TotalSubstitutions int
	RemovedFiles       []string
	Start              time.Time
	Duration           time.Duration
}

// Result describes a finished clean run.
type Result struct {
	// Path is the deliverable: the obfuscated archive, the outer archive of
	// an archive of archives, or the cleaned directory.
	Path         string
	Checksum     string
	ChecksumPath string
	// MapPath is the private map, empty when it could not be written.
	MapPath  string
	LogPath  string
	Archives []*ArchiveResult
	// Failed lists reports that could not be obfuscated.
	Failed   []string
	Manifest *manifest.Manifest
	Duration time.Duration
}

// Cleaner obfuscates sos reports.
type Cleaner struct {
	cfg   Config
	opts  *config.Options
	skips []glob.Glob
}

// New validates cfg.
func New(cfg Config) (*Cleaner, error) {
	if cfg.Options == nil {
		return nil, sosErrors.New(sosErrors.ErrCodeInvalidRequest, "options are required")
	}
	switch cfg.Options.Clean.TreatCertificates {
	case "", CertKeep, CertRemove, CertObfuscate:
	default:
		return nil, sosErrors.New(sosErrors.ErrCodeConfig,
			fmt.Sprintf("invalid certificate policy %q", cfg.Options.Clean.TreatCertificates))
	}
	c := &Cleaner{cfg: cfg, opts: cfg.Options}
	for _, p := range cfg.Options.Clean.SkipCleaningFiles {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid skip pattern %q", p), err)
		}
		c.skips = append(c.skips, g)
	}
	return c, nil
}

// run holds the state of one Execute call.
type run struct {
	c      *Cleaner
	opts   config.CleanOptions
	set    *parser.Set
	log    *slog.Logger
	ui     *slog.Logger
	work   string
	outDir string
	hash   string
	names  *lru.Cache[string, string]

	mu       sync.Mutex
	created  []string
	keepWork bool
}

func (r *run) track(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, paths...)
}

// Execute obfuscates target, which is a tarball, an extracted report, a
// directory of tarballs or an archive of archives.
func (c *Cleaner) Execute(ctx context.Context, targetPath string) (*Result, error) {
	start := time.Now()
	t, err := identify(targetPath)
	if err != nil {
		return nil, err
	}

	tmpDir := c.cfg.TmpDir
	if tmpDir == "" {
		tmpDir = c.opts.TmpDir
	}
	if tmpDir == "" {
		tmpDir = defaults.TmpDir
	}
	outDir := c.cfg.OutputDir
	if outDir == "" {
		outDir = tmpDir
	}
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return nil, sosErrors.AsFatalFS("failed to create output directory", err)
	}
	work, err := os.MkdirTemp(tmpDir, "sos-clean-")
	if err != nil {
		return nil, sosErrors.AsFatalFS("failed to create work directory", err)
	}

	r := &run{c: c, opts: c.opts.Clean, work: work, outDir: outDir, hash: c.cfg.Hash, log: c.cfg.Log, ui: c.cfg.UI}
	if r.hash == "" {
		r.hash = defaults.HashAlgorithm
	}
	if r.opts.Jobs < 1 {
		r.opts.Jobs = defaults.Jobs
	}
	if r.opts.TreatCertificates == "" {
		r.opts.TreatCertificates = CertObfuscate
	}
	var rl *logging.RunLoggers
	if r.log == nil || r.ui == nil {
		rl, err = logging.NewRunLoggers(logging.RunOptions{
			Dir:       filepath.Join(work, logsDir),
			MainFile:  logFile,
			Verbosity: c.opts.Verbosity,
			Quiet:     c.opts.Quiet,
			Console:   c.cfg.Console,
		})
		if err != nil {
			os.RemoveAll(work)
			return nil, sosErrors.AsFatalFS("failed to open cleaner log", err)
		}
		defer rl.Close()
		if r.log == nil {
			r.log = rl.Main
		}
		if r.ui == nil {
			r.ui = rl.UI
		}
	}
	defer func() {
		if r.keepWork {
			r.log.Warn("work directory kept for recovery", "path", work)
			return
		}
		if err := os.RemoveAll(work); err != nil {
			r.log.Warn("failed to remove work directory", "path", work, "error", err)
		}
	}()

	if r.names, err = lru.New[string, string](nameCacheSize); err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeInternal, "failed to create name cache", err)
	}

	r.set, err = parser.NewSet(parser.Options{
		MapFile:     r.opts.Map,
		Domains:     r.opts.Domains,
		Keywords:    r.opts.Keywords,
		KeywordFile: r.opts.KeywordFile,
		Usernames:   r.opts.Usernames,
		Disabled:    r.opts.DisableParsers,
	})
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to set up parsers", err)
	}
	r.log.Info("starting clean", "target", targetPath, "parsers", r.set.Names(), "jobs", r.opts.Jobs)

	res, err := r.execute(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			r.discard()
			r.ui.Info("Exiting on user cancel")
			return nil, ctx.Err()
		}
		return nil, err
	}
	res.Duration = time.Since(start)

	if rl != nil {
		res.LogPath = r.copyLog(filepath.Join(work, logsDir, logFile), t.name)
	}
	return res, nil
}

// discard removes everything the run wrote to the output directory.
func (r *run) discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.created {
		if err := os.RemoveAll(p); err != nil {
			r.log.Warn("failed to remove partial result", "path", p, "error", err)
		}
	}
}

func (r *run) execute(ctx context.Context, t *target) (*Result, error) {
	if err := r.extract(ctx, t); err != nil {
		return nil, err
	}
	r.prime(t)

	results := make([]*ArchiveResult, len(t.reports))
	var failed []string
	var fmu sync.Mutex

	if len(t.reports) > 1 {
		r.ui.Info(fmt.Sprintf("Found %d total reports to obfuscate, processing up to %d concurrently",
			len(t.reports), r.opts.Jobs))
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Jobs)
	for i, rep := range t.reports {
		g.Go(func() error {
			ar, err := r.obfuscateReport(gctx, rep)
			if err != nil {
				if ctx.Err() != nil || sosErrors.IsFatalFS(err) {
					return err
				}
				r.ui.Error(fmt.Sprintf("[%s] Failed to obfuscate: %v", rep, err))
				r.log.Error("failed to obfuscate report", "archive", rep.String(), "error", err)
				cleanerArchives.WithLabelValues("failed").Inc()
				fmu.Lock()
				failed = append(failed, rep.String())
				fmu.Unlock()
				return nil
			}
			cleanerArchives.WithLabelValues("obfuscated").Inc()
			results[i] = ar
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Failed: failed}
	for _, ar := range results {
		if ar != nil {
			res.Archives = append(res.Archives, ar)
		}
	}
	if len(res.Archives) == 0 {
		return nil, sosErrors.New(sosErrors.ErrCodeCleaner, "no reports obfuscated")
	}
	r.ui.Info(fmt.Sprintf("Successfully obfuscated %d report(s)", len(res.Archives)))

	if t.outer != nil {
		outer, err := r.repackOuter(ctx, t, res.Archives)
		if err != nil {
			return nil, err
		}
		res.Path, res.Checksum, res.ChecksumPath = outer.Path, outer.Checksum, outer.ChecksumPath
	} else {
		first := res.Archives[0]
		res.Path, res.Checksum, res.ChecksumPath = first.Path, first.Checksum, first.ChecksumPath
	}

	for name, n := range r.set.Counts() {
		cleanerSubstitutions.WithLabelValues(name).Add(float64(n))
	}
	res.MapPath = r.writeMaps(t.name)
	res.Manifest = r.record(res.Archives)

	if res.MapPath != "" {
		r.ui.Info("A mapping of obfuscated elements is available at\n\t" + res.MapPath)
	}
	r.ui.Info("The obfuscated archive is available at\n\t" + res.Path)
	r.ui.Info("Send the obfuscated archive to your support representative and keep the mapping file private")
	return res, nil
}

// extract unpacks every tarball report into the work directory, up to
// Jobs at a time. For an archive of archives the outer tarball is unpacked
// first and its nested reports become the reports of the run.
func (r *run) extract(ctx context.Context, t *target) error {
	opts := archive.ExtractOptions{MakeWritable: os.Geteuid() != 0, PreserveOwner: os.Geteuid() == 0}

	if t.outerSource != "" {
		dest := filepath.Join(r.work, "outer")
		res, err := archive.Extract(ctx, t.outerSource, dest, opts)
		if err != nil {
			return extractError(t.outerSource, err)
		}
		root := filepath.Join(dest, res.TopLevel)
		t.outer = &report{Source: t.outerSource, Name: res.TopLevel, Root: root, Compression: res.Compression}
		inner := filepath.Join(r.work, "repacked")
		if err := os.MkdirAll(inner, 0o700); err != nil {
			return sosErrors.AsFatalFS("failed to create work directory", err)
		}
		for _, n := range t.nested {
			t.reports = append(t.reports, &report{Source: filepath.Join(root, n), outDir: inner})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Jobs)
	for i, rep := range t.reports {
		if rep.InPlace {
			continue
		}
		if rep.outDir == "" {
			rep.outDir = r.outDir
		}
		g.Go(func() error {
			r.ui.Info(fmt.Sprintf("[%s] Extracting...", rep))
			dest := filepath.Join(r.work, fmt.Sprintf("report-%d", i))
			res, err := archive.Extract(gctx, rep.Source, dest, opts)
			if err != nil {
				return extractError(rep.Source, err)
			}
			rep.Name = res.TopLevel
			rep.Root = filepath.Join(dest, res.TopLevel)
			rep.Compression = res.Compression
			return nil
		})
	}
	return g.Wait()
}

// prime feeds the prep files of every report through the parsers, in
// report order, before anything is rewritten. Hosts that appear in each
// other's reports then get the same values everywhere.
func (r *run) prime(t *target) {
	r.log.Info("pre-loading reports into obfuscation maps", "reports", len(t.reports))
	for _, rep := range t.reports {
		r.set.Prime(func(rel string) (string, bool) {
			p, err := archive.SecureJoin(rep.Root, rel)
			if err != nil {
				return "", false
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return "", false
			}
			r.log.Debug("prepping", "archive", rep.String(), "file", rel)
			return string(data), true
		})
	}
}

// writeMaps writes the private map next to the output and, unless
// disabled, the persistent map file. Failures only warn: the obfuscated
// archive is still valid but later runs will not be consistent with it.
func (r *run) writeMaps(name string) string {
	store := r.set.Store()
	mapPath := filepath.Join(r.outDir, r.set.ObfuscateString(name)+privateMapSuffix)
	if err := store.Save(mapPath); err != nil {
		r.log.Error("failed to write private map", "path", mapPath, "error", err)
		r.ui.Error("Could not write private map file: " + err.Error())
		mapPath = ""
	} else {
		r.track(mapPath)
	}

	if r.opts.Map != "" && !r.opts.NoUpdate {
		if err := store.Save(r.opts.Map); err != nil {
			r.log.Error("failed to update map file", "path", r.opts.Map, "error", err)
			r.ui.Warn("Could not update mapping file " + r.opts.Map + ", later runs will not reuse these values: " + err.Error())
		} else {
			r.log.Debug("wrote mapping", "path", r.opts.Map)
		}
	}
	return mapPath
}

// record adds the cleaner section to the manifest.
func (r *run) record(archives []*ArchiveResult) *manifest.Manifest {
	m := r.c.cfg.Manifest
	if m == nil {
		m = manifest.New(r.c.cfg.Version, uuid.NewString(), "")
	}
	section := m.CleanerSection()
	section.MapFile = r.opts.Map
	section.Parsers = r.set.Names()
	for _, ar := range archives {
		section.AddArchive(&manifest.CleanerArchive{
			Name:               ar.Name,
			ObfuscatedName:     ar.ObfuscatedName,
			StartTime:          ar.Start,
			EndTime:            ar.Start.Add(ar.Duration),
			RunTime:            ar.Duration.Seconds(),
			FilesObfuscated:    slices.Clone(ar.FilesObfuscated),
			TotalSubstitutions: ar.TotalSubstitutions,
			RemovedFiles:       slices.Clone(ar.RemovedFiles),
		})
	}
	return m
}

// copyLog copies the run log next to the output as
// <obfuscated-name>-obfuscation.log.
func (r *run) copyLog(src, name string) string {
	data, err := os.ReadFile(src)
	if err != nil {
		return ""
	}
	dst := filepath.Join(r.outDir, r.set.ObfuscateString(name)+"-obfuscation.log")
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		r.ui.Warn("Could not write obfuscation log: " + err.Error())
		return ""
	}
	return dst
}
