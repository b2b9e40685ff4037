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

package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NVIDIA/sos/pkg/archive"
	"github.com/NVIDIA/sos/pkg/cleaner"
	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/logging"
	"github.com/NVIDIA/sos/pkg/manifest"
	"github.com/NVIDIA/sos/pkg/serializer"
	"github.com/NVIDIA/sos/pkg/transport"
)

// Archive layout of the outer collect archive.
const (
	Prefix       = "sos-collector"
	ManifestPath = "sos_reports/manifest.json"
	LogsDir      = "sos_logs"
	ChecksumsDir = "checksums"
)

// DialFunc builds the transport for one host.
type DialFunc func(kind, address string, opts transport.Options) (transport.Transport, error)

// Config configures a collect run.
type Config struct {
	Options *config.Options
	// Version is the sos version recorded in the manifest.
	Version string
	Cmdline string
	// Console receives UI output, stdout when nil.
	Console io.Writer
	// Dial defaults to transport.New.
	Dial DialFunc
	// Profiles defaults to DefaultProfiles.
	Profiles map[string]ProfileFactory
	// Groups defaults to DefaultGroupStore.
	Groups *GroupStore
	// Upload, when set, receives the final archive if --upload was given.
	Upload func(ctx context.Context, path string) error
	// OutputDir receives the archive; the tmp dir when empty.
	OutputDir string
}

// Result describes a finished collect run.
type Result struct {
	Path         string
	Checksum     string
	ChecksumPath string
	Algorithm    string
	// MapPath is set when the archive was obfuscated.
	MapPath string
	// Collected lists the hosts whose reports are in the archive.
	Collected []string
	// Failed maps failed or excluded hosts to the reason.
	Failed   map[string]string
	Manifest *manifest.Manifest
	Duration time.Duration
}

// Collector runs sos report on many hosts.
type Collector struct {
	cfg    Config
	opts   *config.Options
	dial   DialFunc
	groups *GroupStore
	host   string
}

// New validates cfg.
func New(cfg Config) (*Collector, error) {
	if cfg.Options == nil {
		return nil, sosErrors.New(sosErrors.ErrCodeInvalidRequest, "options are required")
	}
	c := &Collector{cfg: cfg, opts: cfg.Options, dial: cfg.Dial, groups: cfg.Groups}
	if c.dial == nil {
		c.dial = transport.New
	}
	if c.groups == nil {
		c.groups = DefaultGroupStore()
	}
	if c.cfg.Profiles == nil {
		c.cfg.Profiles = DefaultProfiles()
	}
	c.host, _ = os.Hostname()
	if c.host == "" {
		c.host = "localhost"
	}
	return c, nil
}

// plan is the resolved set of hosts and how to reach them.
type plan struct {
	primary    string
	profile    ClusterProfile
	kind       string
	hosts      []string
	pluginOpts map[string]map[string]string
	compress   archive.Compression
}

// Execute collects from every resolved host and bundles the reports. Host
// failures are recorded and only fail the run when no report was
// collected. Cancellation disconnects every host and leaves no partial
// archive behind.
func (c *Collector) Execute(ctx context.Context) (*Result, error) {
	start := time.Now()
	res, err := c.execute(ctx)
	collectRunDuration.Observe(time.Since(start).Seconds())
	if res != nil {
		res.Duration = time.Since(start)
	}
	return res, err
}

func (c *Collector) execute(ctx context.Context) (*Result, error) {
	p, err := c.plan(ctx)
	if err != nil {
		return nil, err
	}
	ro := c.opts.Report

	name := archive.BuildName(Prefix, ro.Label, c.host, ro.CaseID, time.Now(), archive.RandomSuffix(5))
	tmp := c.tmpDir()
	root := filepath.Join(tmp, name)
	done := false
	defer func() {
		if !done {
			_ = os.RemoveAll(root)
		}
	}()

	logs, err := logging.NewRunLoggers(logging.RunOptions{
		Dir:       filepath.Join(root, LogsDir),
		Verbosity: c.opts.Verbosity,
		Quiet:     c.opts.Quiet,
		Console:   c.cfg.Console,
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

	arc, err := archive.New(tmp, name, archive.WithLogger(log))
	if err != nil {
		return nil, err
	}

	m := manifest.New(c.cfg.Version, uuid.NewString(), c.cfg.Cmdline)
	m.CaseID = ro.CaseID
	m.Label = ro.Label
	m.Compression = ro.Compression
	m.TmpDir = tmp
	m.ChecksumType = defaults.HashAlgorithm
	m.Policy = manifest.Policy{Hostname: c.host}
	m.Options = c.opts
	coll := m.CollectSection()
	coll.Primary = p.primary
	coll.ClusterType = p.profile.Name()
	coll.Group = c.opts.Collect.Group

	ui.Info(fmt.Sprintf("sos collect (version %s)", c.cfg.Version))
	ui.Info(fmt.Sprintf("Cluster type set to %s", p.profile.Name()))
	ui.Info("The following is a list of nodes to collect from:")
	for _, h := range p.hosts {
		ui.Info("\t" + h)
	}
	log.Info("starting collection", "archive", name, "cluster", p.profile.Name(),
		"transport", p.kind, "nodes", len(p.hosts), "jobs", c.opts.Collect.Jobs)

	nodes := make([]*node, len(p.hosts))
	failed := make(map[string]string)
	var fmu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.opts.Collect.Jobs, 1))
	for i, h := range p.hosts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			n, status, reason := c.collectNode(gctx, p, h, arc.Root(), coll, log, ui)
			nodes[i] = n
			collectNodes.WithLabelValues(status).Inc()
			if status != StatusCollected {
				fmu.Lock()
				failed[h] = reason
				fmu.Unlock()
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		ui.Error("Collection interrupted, removing partial results")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var collected []*node
	for _, n := range nodes {
		if n != nil && n.localPath != "" {
			collected = append(collected, n)
		}
	}
	if len(collected) == 0 {
		ui.Error("No sos reports were collected, no archive will be created")
		return nil, sosErrors.NewWithContext(sosErrors.ErrCodeTransport, "no sos reports were collected",
			map[string]any{"failed": failed})
	}

	names := make([]string, 0, len(collected))
	for _, n := range collected {
		base := filepath.Base(n.localPath)
		algo := n.policy.HashAlgorithm()
		if err := arc.AddString(n.checksum+"\n", filepath.Join(ChecksumsDir, base+"."+algo)); err != nil {
			return nil, err
		}
		names = append(names, n.address)
	}
	sort.Strings(names)

	for h, reason := range failed {
		log.Warn("host not collected", "host", h, "reason", reason)
	}
	ui.Info(fmt.Sprintf("Successfully captured %d of %d sos reports", len(collected), len(p.hosts)))

	m.Finish()
	if err := arc.AddDir(filepath.Dir(ManifestPath)); err != nil {
		return nil, err
	}
	mp, err := arc.Path(ManifestPath)
	if err != nil {
		return nil, err
	}
	if err := serializer.WriteJSONFile(mp, m, 0o644); err != nil {
		return nil, sosErrors.AsFatalFS("failed to write manifest", err)
	}

	ui.Info("Creating archive of sos reports...")
	logsOpen = false
	if err := logs.Close(); err != nil {
		slog.Warn("failed to close run logs", "error", err)
	}
	fin, err := arc.Finalize(ctx, archive.FinalizeOptions{
		Compression: p.compress,
		Fast:        ro.FastCompression,
		Hash:        defaults.HashAlgorithm,
		OutputDir:   c.outputDir(),
	})
	if err != nil {
		return nil, err
	}
	done = true

	res := &Result{
		Path:         fin.Path,
		Checksum:     fin.Checksum,
		ChecksumPath: fin.ChecksumPath,
		Algorithm:    fin.Algorithm,
		Collected:    names,
		Failed:       failed,
		Manifest:     m,
	}

	if ro.Clean {
		if err := c.clean(ctx, res); err != nil {
			return res, err
		}
	}

	c.printf("\nThe following archive has been created. Please provide it to your support team.\n\t%s\n\n %s\t%s\n\n",
		res.Path, res.Algorithm, res.Checksum)

	if ro.Upload && c.cfg.Upload != nil {
		if err := c.cfg.Upload(ctx, res.Path); err != nil {
			return res, err
		}
	}
	return res, nil
}

// plan resolves the cluster profile and host list. All CONFIG errors are
// raised here, before anything is created on disk.
func (c *Collector) plan(ctx context.Context) (*plan, error) {
	co := c.opts.Collect
	ro := c.opts.Report

	popts, err := config.ParsePluginOptions(ro.PluginOptions)
	if err != nil {
		return nil, err
	}
	copts, err := config.ParsePluginOptions(co.ClusterOptions)
	if err != nil {
		return nil, err
	}
	if _, err := config.ParseSince(ro.Since); err != nil {
		return nil, err
	}
	compress, err := archive.ParseCompression(ro.Compression)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "invalid compression", err)
	}

	primary := co.Primary
	clusterType := co.ClusterType
	requested := flatten(co.Nodes)
	if co.Group != "" {
		grp, err := c.groups.Load(co.Group)
		if err != nil {
			return nil, err
		}
		if primary == "" {
			primary = grp.Primary
		}
		if clusterType == "" {
			clusterType = grp.ClusterType
		}
		requested = append(requested, grp.Nodes...)
	}

	prof, err := c.profile(ctx, clusterType, copts)
	if err != nil {
		return nil, err
	}

	enumerated, err := prof.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	hosts, err := selectNodes(enumerated, requested, prof.Name() != ProfileNone)
	if err != nil {
		return nil, err
	}

	if primary == "" {
		primary = c.host
	}
	if !co.NoLocal && !slices.Contains(hosts, primary) {
		hosts = append([]string{primary}, hosts...)
	}
	if co.NoLocal {
		hosts = slices.DeleteFunc(hosts, func(h string) bool {
			return h == primary && transport.IsLocalAddress(h)
		})
	}
	if len(hosts) == 0 {
		return nil, sosErrors.New(sosErrors.ErrCodeInvalidRequest, "no nodes to collect from")
	}

	if co.SaveGroup != "" {
		grp := &Group{Name: co.SaveGroup, Primary: primary, ClusterType: prof.Name()}
		for _, h := range hosts {
			if h != primary {
				grp.Nodes = append(grp.Nodes, h)
			}
		}
		if p, err := c.groups.Save(grp); err != nil {
			slog.Warn("failed to save host group", "group", co.SaveGroup, "error", err)
		} else {
			slog.Info("saved host group", "group", co.SaveGroup, "path", p)
		}
	}

	kind := co.Transport
	if pt := prof.Transport(); pt != "" && (kind == "" || kind == transport.KindAuto) {
		kind = pt
	}
	return &plan{
		primary:    primary,
		profile:    prof,
		kind:       kind,
		hosts:      hosts,
		pluginOpts: popts,
		compress:   compress,
	}, nil
}

// profile builds the named cluster profile, or detects one when no name is
// given. Detection falls back to "none".
func (c *Collector) profile(ctx context.Context, name string, copts map[string]map[string]string) (ClusterProfile, error) {
	build := func(n string) (ClusterProfile, error) {
		f, ok := c.cfg.Profiles[n]
		if !ok {
			return nil, sosErrors.NewWithContext(sosErrors.ErrCodeConfig, fmt.Sprintf("unknown cluster type %q", n),
				map[string]any{"available": c.profileNames()})
		}
		return f(ProfileOptions{Kubeconfig: c.opts.Collect.Kubeconfig, Options: copts[n]})
	}
	for n := range copts {
		if _, ok := c.cfg.Profiles[n]; !ok {
			return nil, sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("cluster options given for unknown cluster type %q", n))
		}
	}
	if name != "" {
		return build(name)
	}
	for _, n := range c.profileNames() {
		if n == ProfileNone {
			continue
		}
		p, err := build(n)
		if err != nil {
			return nil, err
		}
		if p.Detect(ctx) {
			slog.Debug("detected cluster type", "type", n)
			return p, nil
		}
	}
	if _, ok := c.cfg.Profiles[ProfileNone]; !ok {
		return noneProfile{}, nil
	}
	return build(ProfileNone)
}

func (c *Collector) profileNames() []string {
	names := make([]string, 0, len(c.cfg.Profiles))
	for n := range c.cfg.Profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// patternChars mark a --nodes entry as a pattern rather than a host name.
const patternChars = `*\?()/[]`

// selectNodes applies --nodes to the enumerated cluster nodes. Each entry
// is an anchored regular expression; entries matching no enumerated node
// and holding none of patternChars are taken as literal host names.
// Without a cluster the entries are the host list.
func selectNodes(enumerated, requested []string, cluster bool) ([]string, error) {
	if len(requested) == 0 {
		return append([]string(nil), enumerated...), nil
	}
	var out []string
	add := func(h string) {
		if !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	for _, r := range requested {
		if !cluster {
			add(r)
			continue
		}
		re, err := regexp.Compile("^(?:" + r + ")$")
		if err != nil {
			return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, fmt.Sprintf("invalid node pattern %q", r), err)
		}
		matched := false
		for _, e := range enumerated {
			if re.MatchString(e) {
				add(e)
				matched = true
			}
		}
		if !matched && !strings.ContainsAny(r, patternChars) {
			add(r)
		}
	}
	return out, nil
}

// collectNode runs the whole per-host pipeline. It returns the node (nil
// when it never connected), the outcome and the failure reason.
func (c *Collector) collectNode(ctx context.Context, p *plan, address, dir string, coll *manifest.Collect,
	log, ui *slog.Logger) (*node, string, string) {
	start := time.Now()
	co := c.opts.Collect
	kind := p.kind
	local := address == p.primary && transport.IsLocalAddress(address)
	if local {
		kind = transport.KindLocal
	}
	if kind == "" || kind == transport.KindAuto {
		kind = transport.KindControlPersist
		if transport.IsLocalAddress(address) {
			kind = transport.KindLocal
		}
	}

	info := &manifest.CollectNode{Address: address, Transport: kind, StartTime: start, Status: StatusFailed}
	hlog := log.With("host", address)
	hui := ui.With("host", address)
	fail := func(status string, err error) (string, string) {
		info.Status = status
		info.Error = err.Error()
		if ctx.Err() == nil {
			if status == StatusExcluded {
				hui.Warn("Excluding node: " + info.Error)
			} else {
				hui.Error(info.Error)
			}
		}
		hlog.Warn("node not collected", "status", status, "error", err)
		return status, info.Error
	}
	defer func() {
		info.EndTime = time.Now()
		coll.AddNode(info)
	}()

	t, err := c.dial(kind, address, c.transportOptions(address, hlog))
	if err != nil {
		s, r := fail(StatusFailed, err)
		return nil, s, r
	}
	n := &node{
		address: address,
		label:   p.profile.NodeLabel(address),
		nonRoot: c.nonRoot(kind),
		t:       t,
		log:     hlog,
		ui:      hui,
	}
	if err := t.Connect(ctx); err != nil {
		s, r := fail(StatusFailed, fmt.Errorf("failed to connect: %w", err))
		return n, s, r
	}
	defer func() {
		if err := t.Disconnect(); err != nil {
			hlog.Debug("disconnect failed", "error", err)
		}
	}()
	info.Hostname = t.Hostname()

	if err := n.profile(ctx); err != nil {
		if errors.Is(err, errNoSos) {
			s, r := fail(StatusExcluded, err)
			return n, s, r
		}
		s, r := fail(StatusFailed, err)
		return n, s, r
	}
	info.Policy = n.policy.Name()
	info.SosVersion = n.version.String()

	cmd := n.command(&c.opts.Report, p.pluginOpts)
	info.Command = cmd
	hlog.Info("running sos report", "command", cmd)
	hui.Info("Generating sos report...")
	if err := n.run(ctx, cmd, co.TimeoutDuration()); err != nil {
		s, r := fail(StatusFailed, err)
		return n, s, r
	}

	hui.Info("Retrieving sos report...")
	if err := n.retrieve(ctx, dir); err != nil {
		s, r := fail(StatusFailed, err)
		return n, s, r
	}
	info.Archive = filepath.Base(n.localPath)
	info.Checksum = n.checksum
	info.Status = StatusCollected
	collectNodeDuration.Observe(time.Since(start).Seconds())
	hui.Info("Successfully collected sos report")
	return n, StatusCollected, ""
}

func (c *Collector) transportOptions(address string, log *slog.Logger) transport.Options {
	co := c.opts.Collect
	pass := co.SSHPassword
	if p, ok := co.NodePasswords[address]; ok {
		pass = p
	}
	return transport.Options{
		User:         co.SSHUser,
		Port:         co.SSHPort,
		KeyFile:      co.SSHKey,
		Password:     pass,
		Sudo:         co.Sudo,
		SudoPassword: pass,
		BecomeRoot:   co.BecomeRoot,
		RootPassword: co.BecomePass,
		Kubeconfig:   co.Kubeconfig,
		Namespace:    co.Namespace,
		Image:        co.Image,
		Log:          log,
	}
}

// nonRoot reports whether archives on hosts reached through kind are owned
// by someone other than the connecting user.
func (c *Collector) nonRoot(kind string) bool {
	switch kind {
	case transport.KindOC:
		return false
	case transport.KindLocal:
		return os.Geteuid() != 0
	default:
		return c.opts.Collect.SSHUser != "" && c.opts.Collect.SSHUser != "root"
	}
}

// clean obfuscates the finished archive in place of the original.
func (c *Collector) clean(ctx context.Context, res *Result) error {
	cl, err := cleaner.New(cleaner.Config{
		Options:   c.opts,
		OutputDir: c.outputDir(),
		Hash:      res.Algorithm,
		Manifest:  res.Manifest,
	})
	if err != nil {
		return err
	}
	cr, err := cl.Execute(ctx, res.Path)
	if err != nil {
		return err
	}
	for _, p := range []string{res.Path, res.ChecksumPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove unobfuscated archive", "path", p, "error", err)
		}
	}
	res.Path, res.Checksum, res.ChecksumPath, res.MapPath = cr.Path, cr.Checksum, cr.ChecksumPath, cr.MapPath
	return nil
}

func (c *Collector) tmpDir() string {
	if c.opts.TmpDir != "" {
		return c.opts.TmpDir
	}
	if d := os.Getenv("TMPDIR"); d != "" {
		return d
	}
	return defaults.TmpDir
}

func (c *Collector) outputDir() string {
	if c.cfg.OutputDir != "" {
		return c.cfg.OutputDir
	}
	return c.tmpDir()
}

func (c *Collector) printf(format string, args ...any) {
	if c.opts.Quiet {
		return
	}
	w := c.cfg.Console
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, format, args...)
}

// String summarizes the outcome.
func (r *Result) String() string {
	return fmt.Sprintf("collected %d, failed %d: %s", len(r.Collected), len(r.Failed),
		strings.Join(r.Collected, ", "))
}
