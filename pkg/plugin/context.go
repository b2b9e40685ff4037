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

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/shlex"

	"github.com/NVIDIA/sos/pkg/manifest"
)

// Operation kinds, as recorded in the manifest skipped list.
const (
	KindCopy         = "copy"
	KindCommand      = "command"
	KindString       = "string"
	KindLink         = "link"
	KindSubstitution = "substitution"
)

// CopySpec queues files for collection.
type CopySpec struct {
	// Paths are globs on the inspected host. Directories are collected recursively.
	Paths []string
	// SizeLimit caps the bytes collected across all matches of one path,
	// in MiB. Zero uses the plugin or run log size; negative disables it.
	SizeLimit int64
	// MaxAge drops rotated logs older than this.
	MaxAge time.Duration
	Tags   []string
	Pred   *Predicate
	// NoTail skips files over the limit instead of keeping their tail.
	NoTail bool
}

// Command queues a command whose output is stored under sos_commands/<plugin>/.
type Command struct {
	Cmd     string
	Timeout time.Duration
	// SuggestFilename replaces the mangled command line as the file name.
	SuggestFilename string
	// RootSymlink adds a link with this name at the archive root.
	RootSymlink string
	Env         map[string]string
	// HostRoot runs the command against the running root even with a sysroot.
	HostRoot bool
	// Container runs the command inside this container via the container runtime.
	Container string
	Tags      []string
	Pred      *Predicate
	// Changes marks commands that may alter system state.
	Changes bool
	// SizeLimit keeps only the tail of the output, in MiB. Zero uses the
	// run log size; negative disables it.
	SizeLimit int64
}

// StringDrop queues literal content for the archive.
type StringDrop struct {
	Content  string
	Filename string
	// Root writes at Filename relative to the archive root instead of
	// sos_strings/<plugin>/.
	Root bool
	Tags []string
	Pred *Predicate
}

// Journal queues a journalctl capture.
type Journal struct {
	Units      []string
	Boot       string
	Since      string
	Until      string
	Lines      int
	Output     string
	Identifier string
	AllFields  bool
	Tags       []string
	Pred       *Predicate
}

type op interface {
	run(ctx context.Context, c *Context) Result
}

type tagRule struct {
	match glob.Glob
	tags  []string
}

type substitution struct {
	kind    string
	pattern string
	match   func(string) bool
	regex   *regexp.Regexp
	replace string
}

type executed struct {
	exec string
	file string
}

// Context is handed to a plugin's Setup and Postproc. It queues operations
// and records their results in the plugin's manifest section.
type Context struct {
	env     *Env
	plugin  *Plugin
	opts    *Options
	log     *slog.Logger
	section *manifest.PluginSection

	mu        sync.Mutex
	closed    bool
	ops       []op
	results   []Result
	forbidden []glob.Glob
	subs      []substitution
	fileTags  []tagRule
	cmdTags   []tagRule
	envVars   map[string]struct{}
	copied    map[string]string
	names     map[string]struct{}
	executed  []executed
	totals    Totals
}

// NewContext prepares a context for one plugin run. A nil section records
// into a throwaway section.
func NewContext(p *Plugin, env *Env, opts *Options, section *manifest.PluginSection) *Context {
	if opts == nil {
		opts = NewOptions(p.Options)
	}
	if section == nil {
		section = &manifest.PluginSection{Name: p.Name}
	}
	return &Context{
		env:     env,
		plugin:  p,
		opts:    opts,
		log:     env.logger().With("plugin", p.Name),
		section: section,
		envVars: make(map[string]struct{}),
		copied:  make(map[string]string),
		names:   make(map[string]struct{}),
	}
}

// Name returns the plugin name.
func (c *Context) Name() string { return c.plugin.Name }

// Env returns the run's execution context.
func (c *Context) Env() *Env { return c.env }

// Logger returns the plugin logger.
func (c *Context) Logger() *slog.Logger { return c.log }

// Options returns the plugin's options.
func (c *Context) Options() *Options { return c.opts }

// HostPath maps an absolute path on the inspected host to the local
// filesystem, honoring the sysroot.
func (c *Context) HostPath(p string) string { return c.env.hostPath(p) }

// Glob expands pattern on the inspected host and returns host paths.
func (c *Context) Glob(pattern string) []string {
	matches, _ := filepath.Glob(c.env.hostPath(pattern))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, c.env.stripSysroot(m))
	}
	sort.Strings(out)
	return out
}

// CommandExists reports whether name is on the inspected host's PATH.
func (c *Context) CommandExists(name string) bool { return c.env.commandExists(name) }

// GetOption returns the value of a plugin option.
func (c *Context) GetOption(name string) any { return c.opts.Get(name) }

// SetOption sets a plugin option.
func (c *Context) SetOption(name string, val any) error { return c.opts.Set(name, val) }

// Totals returns what the plugin has contributed so far.
func (c *Context) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.totals
	s := Summarize(c.results)
	t.Skipped, t.Failed, t.TimedOut = s.Skipped, s.Failed, s.TimedOut
	return t
}

// Results returns the results recorded so far.
func (c *Context) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}

// Close stops the context from recording anything further. The engine
// calls it when a plugin outlives its timeout.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) record(fn func(s *manifest.PluginSection)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		fn(c.section)
	}
}

func (c *Context) addResult(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.results = append(c.results, r)
	if r.Status == StatusSkipped || r.Status == StatusFailed {
		c.section.Skipped = append(c.section.Skipped, manifest.SkippedEntry{Kind: r.Kind, Spec: r.Spec, Reason: r.Reason})
	}
}

func (c *Context) enqueue(o op) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, o)
}

// TestPredicate evaluates pred without queuing anything.
func (c *Context) TestPredicate(ctx context.Context, pred *Predicate) bool {
	okay, _ := pred.Evaluate(ctx, c.env)
	return okay
}

func (c *Context) gate(ctx context.Context, kind, spec string, pred *Predicate) bool {
	okay, reason := pred.Evaluate(ctx, c.env)
	if !okay {
		c.log.Info("skipped due to predicate", "kind", kind, "spec", spec, "predicate", pred.String())
		c.addResult(skipped(kind, spec, "predicate: "+reason))
	}
	return okay
}

// AddCopySpec queues file collection.
func (c *Context) AddCopySpec(ctx context.Context, spec CopySpec) {
	spec.Paths = nonEmpty(spec.Paths)
	if len(spec.Paths) == 0 {
		return
	}
	if !c.gate(ctx, KindCopy, strings.Join(spec.Paths, " "), spec.Pred) {
		return
	}
	c.enqueue(&copyOp{spec: spec})
}

// AddCopy is AddCopySpec with default limits.
func (c *Context) AddCopy(ctx context.Context, paths ...string) {
	c.AddCopySpec(ctx, CopySpec{Paths: paths})
}

// AddCmdOutput queues command captures.
func (c *Context) AddCmdOutput(ctx context.Context, cmds ...Command) {
	for _, cmd := range cmds {
		if strings.TrimSpace(cmd.Cmd) == "" {
			continue
		}
		if cmd.Changes && !c.env.AllowSystemChanges {
			c.log.Info("skipped command that may change the system", "command", cmd.Cmd)
			c.addResult(skipped(KindCommand, cmd.Cmd, "may change system state and --allow-system-changes not set"))
			continue
		}
		if !c.gate(ctx, KindCommand, cmd.Cmd, cmd.Pred) {
			continue
		}
		c.enqueue(&cmdOp{cmd: cmd})
	}
}

// AddCmd is AddCmdOutput with default settings for each command line.
func (c *Context) AddCmd(ctx context.Context, cmds ...string) {
	for _, cmd := range cmds {
		c.AddCmdOutput(ctx, Command{Cmd: cmd})
	}
}

// AddStringAsFile queues content for sos_strings/<plugin>/<filename>.
func (c *Context) AddStringAsFile(ctx context.Context, content, filename string) {
	c.AddString(ctx, StringDrop{Content: content, Filename: filename})
}

// AddString queues a string drop.
func (c *Context) AddString(ctx context.Context, s StringDrop) {
	summary, _, _ := strings.Cut(s.Content, "\n")
	if !c.gate(ctx, KindString, summary, s.Pred) {
		return
	}
	c.enqueue(&stringOp{drop: s})
}

// AddLink queues a symlink linkName -> target inside the archive. The
// target is stored as given and never resolved on the host.
func (c *Context) AddLink(target, linkName string) {
	c.enqueue(&linkOp{target: target, name: linkName})
}

// AddDirListing queues an "ls" of each path.
func (c *Context) AddDirListing(ctx context.Context, paths []string, recursive bool) {
	paths = nonEmpty(paths)
	if len(paths) == 0 {
		return
	}
	flags := "-alhZ"
	if recursive {
		flags += "R"
	}
	c.AddCmdOutput(ctx, Command{Cmd: "ls " + flags + " " + strings.Join(paths, " ")})
}

// AddJournal queues a journalctl capture. Journal output gets at least
// 100 MiB unless all logs are requested.
func (c *Context) AddJournal(ctx context.Context, j Journal) {
	args := []string{"journalctl", "--no-pager"}
	for _, u := range j.Units {
		args = append(args, "--unit", u)
	}
	if j.AllFields {
		args = append(args, "--all")
	}
	if j.Identifier != "" {
		args = append(args, "--identifier", j.Identifier)
	}
	since := j.Since
	if since == "" && !c.env.Since.IsZero() {
		since = c.env.Since.Format(time.DateTime)
	}
	if since != "" {
		args = append(args, "--since", "'"+since+"'")
	}
	if j.Until != "" {
		args = append(args, "--until", "'"+j.Until+"'")
	}
	if j.Lines > 0 {
		args = append(args, "--lines", fmt.Sprint(j.Lines))
	}
	if j.Output != "" {
		args = append(args, "--output", j.Output)
	}
	if j.Boot != "" {
		args = append(args, "--boot")
		if j.Boot != "this" {
			args = append(args, j.Boot)
		}
	}
	limit := c.sizeLimitMiB(0)
	switch {
	case limit == 0:
		limit = -1
	case limit < 100:
		limit = 100
	}
	c.AddCmdOutput(ctx, Command{
		Cmd:       strings.Join(args, " "),
		Tags:      j.Tags,
		Pred:      j.Pred,
		SizeLimit: limit,
	})
}

// AddServiceStatus queues "systemctl status" for each service.
func (c *Context) AddServiceStatus(ctx context.Context, services ...string) {
	for _, s := range services {
		c.AddCmdOutput(ctx, Command{Cmd: "systemctl status --all " + s})
	}
}

// AddEnvVar marks environment variables for the run's environment file.
// Each is collected as given, upper and lower cased.
func (c *Context) AddEnvVar(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		c.envVars[n] = struct{}{}
		c.envVars[strings.ToUpper(n)] = struct{}{}
		c.envVars[strings.ToLower(n)] = struct{}{}
	}
}

// EnvVars returns the environment variable names requested by the plugin.
func (c *Context) EnvVars() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.envVars))
	for n := range c.envVars {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// AddAlert records an alert for the reports.
func (c *Context) AddAlert(msg string) {
	c.record(func(s *manifest.PluginSection) { s.Alerts = append(s.Alerts, msg) })
	c.mu.Lock()
	c.totals.Alerts++
	c.mu.Unlock()
}

// AddCustomText records a note for the reports.
func (c *Context) AddCustomText(text string) {
	c.record(func(s *manifest.PluginSection) { s.Notes = append(s.Notes, text) })
	c.mu.Lock()
	c.totals.Notes++
	c.mu.Unlock()
}

// AddForbiddenPath prevents paths matching any of the globs, or anything
// below them, from being collected by this plugin.
func (c *Context) AddForbiddenPath(paths ...string) {
	for _, p := range nonEmpty(paths) {
		g, err := glob.Compile(c.env.hostPath(p))
		if err != nil {
			c.log.Warn("invalid forbidden path", "path", p, "error", err)
			continue
		}
		c.mu.Lock()
		c.forbidden = append(c.forbidden, g)
		c.mu.Unlock()
	}
}

// AddFileTags attaches tags to copied files whose host path matches the glob keys.
func (c *Context) AddFileTags(tags map[string][]string) {
	c.addTagRules(&c.fileTags, tags)
}

// AddCmdTags attaches tags to commands whose command line matches the glob keys.
func (c *Context) AddCmdTags(tags map[string][]string) {
	c.addTagRules(&c.cmdTags, tags)
}

func (c *Context) addTagRules(dst *[]tagRule, tags map[string][]string) {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		g, err := glob.Compile(k)
		if err != nil {
			c.log.Warn("invalid tag pattern", "pattern", k, "error", err)
			continue
		}
		*dst = append(*dst, tagRule{match: g, tags: tags[k]})
	}
}

func matchTags(rules []tagRule, s string) []string {
	var out []string
	for _, r := range rules {
		if r.match.Match(s) {
			out = append(out, r.tags...)
		}
	}
	return out
}

// DoFileSub registers a substitution applied to copied files whose host
// path matches pathGlob.
func (c *Context) DoFileSub(pathGlob, regex, replace string) {
	g, err := glob.Compile(pathGlob)
	if err != nil {
		c.addResult(failed(KindSubstitution, pathGlob, err))
		return
	}
	c.addSub(KindCopy, pathGlob, g.Match, regex, replace)
}

// DoPathRegexSub registers a substitution applied to copied files whose
// host path matches the pathRegex regular expression.
func (c *Context) DoPathRegexSub(pathRegex, regex, replace string) {
	re, err := regexp.Compile(pathRegex)
	if err != nil {
		c.addResult(failed(KindSubstitution, pathRegex, err))
		return
	}
	c.addSub(KindCopy, pathRegex, re.MatchString, regex, replace)
}

// DoCmdOutputSub registers a substitution applied to the output of
// commands whose command line contains cmdGlob.
func (c *Context) DoCmdOutputSub(cmdGlob, regex, replace string) {
	g, err := glob.Compile("*" + cmdGlob + "*")
	if err != nil {
		c.addResult(failed(KindSubstitution, cmdGlob, err))
		return
	}
	c.addSub(KindCommand, cmdGlob, g.Match, regex, replace)
}

const (
	certMatch   = `(?s)-*BEGIN.*?-*END`
	certReplace = "-----SCRUBBED"
)

// DoFilePrivateSub scrubs certificate and key blocks from copied files
// whose host path matches pathRegex.
func (c *Context) DoFilePrivateSub(pathRegex, desc string) {
	c.DoPathRegexSub(pathRegex, certMatch, scrubbed(desc))
}

// DoCmdPrivateSub scrubs certificate and key blocks from command output.
func (c *Context) DoCmdPrivateSub(cmdGlob, desc string) {
	c.DoCmdOutputSub(cmdGlob, certMatch, scrubbed(desc))
}

func scrubbed(desc string) string {
	if desc == "" {
		return certReplace
	}
	return certReplace + " " + desc
}

func (c *Context) addSub(kind, pattern string, match func(string) bool, regex, replace string) {
	re, err := regexp.Compile(regex)
	if err != nil {
		c.addResult(failed(KindSubstitution, regex, err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, substitution{kind: kind, pattern: pattern, match: match, regex: re, replace: replace})
}

// ExecCmd runs a command immediately, for use during Setup, and records
// it under setup_commands.
func (c *Context) ExecCmd(ctx context.Context, cmd string) (*CommandResult, error) {
	argv, err := shlex.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command %q: %w", cmd, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if c.env.DryRun || c.env.Runner == nil {
		return &CommandResult{Status: StatusNotFound}, nil
	}
	res, err := c.env.Runner.Run(ctx, CommandRequest{
		Argv:    argv,
		Timeout: c.cmdTimeout(0),
		Chroot:  c.env.chrootDir(),
	})
	if err != nil {
		return nil, err
	}
	c.record(func(s *manifest.PluginSection) {
		s.SetupCommands = append(s.SetupCommands, manifest.CommandEntry{
			Command:    path.Base(argv[0]),
			Parameters: argv[1:],
			Exec:       cmd,
			ReturnCode: res.Status,
			TimedOut:   res.TimedOut,
			StartTime:  res.Start,
			EndTime:    res.End,
			RunTime:    res.End.Sub(res.Start).Seconds(),
			Tags:       []string{},
		})
	})
	return res, nil
}

func (c *Context) cmdTimeout(explicit time.Duration) time.Duration {
	if t := c.opts.Int(OptCmdTimeout); t > 0 {
		return time.Duration(t) * time.Second
	}
	if explicit > 0 {
		return explicit
	}
	return c.env.commandTimeout()
}

// sizeLimitMiB resolves a per operation limit: explicit, then the
// plugin's log-size option, then the run default. Zero means unlimited.
func (c *Context) sizeLimitMiB(explicit int64) int64 {
	if c.env.AllLogs || explicit < 0 {
		return 0
	}
	if explicit > 0 {
		return explicit
	}
	if v := c.opts.Int(OptLogSize); v > 0 {
		return int64(v)
	}
	return c.env.logSizeBytes() / (1024 * 1024)
}

func (c *Context) isForbidden(p string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.forbidden {
		for cur := p; ; cur = filepath.Dir(cur) {
			if g.Match(cur) {
				return true
			}
			if cur == "/" || cur == "." {
				break
			}
		}
	}
	return false
}

func (c *Context) isSkippedFile(p string) bool {
	return matchesAny(c.env.SkipFiles, c.env.stripSysroot(p))
}

func matchesAny(patterns []string, s string) bool {
	for _, pat := range patterns {
		g, err := glob.Compile(pat)
		if err == nil && g.Match(s) {
			return true
		}
	}
	return false
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
