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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/manifest"
	"github.com/NVIDIA/sos/pkg/serializer"
)

const mib = 1024 * 1024

var (
	logArchivePattern = regexp.MustCompile(`.*((\.(zip|gz|bz2|xz))|[-.][\d]+)$`)
	compressedPattern = regexp.MustCompile(`\.(gz|xz|bz|bz2)$`)
)

// maxLinkDepth bounds how many symlink hops a copy follows.
const maxLinkDepth = 40

// Setup runs the plugin's Setup against this context.
func (c *Context) Setup(ctx context.Context) error {
	return c.plugin.Setup(ctx, c)
}

// Collect executes the queued operations in order. It stops early when ctx
// is done, returning ctx's error, and aborts on fatal filesystem errors.
// Any other failure is recorded and collection continues.
func (c *Context) Collect(ctx context.Context) error {
	c.mu.Lock()
	ops := c.ops
	c.ops = nil
	c.mu.Unlock()

	for i, o := range ops {
		if err := ctx.Err(); err != nil {
			c.addResult(Result{Kind: "plugin", Spec: c.plugin.Name, Status: StatusTimedOut,
				Reason: fmt.Sprintf("%d operations not run", len(ops)-i)})
			return err
		}
		if c.isClosed() {
			return context.Canceled
		}
		r := o.run(ctx, c)
		c.addResult(r)
		if r.Err != nil && sosErrors.IsFatalFS(r.Err) {
			return r.Err
		}
	}
	return nil
}

type copyOp struct {
	spec CopySpec
}

func (o *copyOp) run(ctx context.Context, c *Context) Result {
	limit := c.sizeLimitMiB(o.spec.SizeLimit) * mib
	for _, spec := range o.spec.Paths {
		if ctx.Err() != nil {
			return Result{Kind: KindCopy, Spec: spec, Status: StatusTimedOut, Reason: "plugin timed out"}
		}
		if err := o.copySpec(ctx, c, spec, limit); err != nil {
			return failed(KindCopy, spec, err)
		}
	}
	return ok(KindCopy, strings.Join(o.spec.Paths, " "))
}

func (o *copyOp) copySpec(ctx context.Context, c *Context, spec string, limit int64) error {
	files := expandCopySpec(c.env.hostPath(spec))
	if len(files) == 0 {
		c.log.Debug("no files matched copy spec", "spec", spec)
		return nil
	}

	var tags []string
	if len(files) == 1 {
		tags = append(tags, fileTag(filepath.Base(files[0])))
	}
	tags = append(tags, o.spec.Tags...)

	if !c.env.Since.IsZero() || o.spec.MaxAge > 0 {
		files = slices.DeleteFunc(files, func(f string) bool { return !o.keepByTime(c, f) })
	}
	mtimes := make(map[string]time.Time, len(files))
	for _, f := range files {
		if info, err := os.Lstat(f); err == nil {
			mtimes[f] = info.ModTime()
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return mtimes[files[i]].After(mtimes[files[j]]) })

	var (
		current      int64
		limitReached bool
		copied       = []string{}
	)
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		host := c.env.stripSysroot(f)
		switch {
		case c.alreadyCopied(f):
			c.log.Debug("skipping redundant file", "path", f)
			continue
		case c.isForbidden(f):
			c.log.Debug("skipping forbidden path", "path", f)
			continue
		case c.isSkippedFile(f):
			c.log.Debug("skipping excluded path", "path", f)
			continue
		case limitReached:
			c.log.Info("skipping file over size limit", "path", f)
			continue
		}

		size, err := fileSize(f)
		if err != nil {
			c.log.Info("failed to stat file, skipping", "path", f, "error", err)
			continue
		}
		current += size

		if limit > 0 && current > limit {
			limitReached = true
			if o.spec.NoTail || compressedPattern.MatchString(f) {
				c.log.Info("skipping file over size limit", "path", f)
				continue
			}
			c.log.Info("collecting tail of file due to size limit", "path", f)
			if err := c.copyTail(f, host, limit+size-current); err != nil {
				if sosErrors.IsFatalFS(err) {
					return err
				}
				c.log.Warn("failed to collect tail", "path", f, "error", err)
				continue
			}
			copied = append(copied, strings.TrimPrefix(host, "/"))
			tags = append(tags, matchTags(c.fileTags, host)...)
			continue
		}

		if err := c.copyPath(f, 0); err != nil {
			if sosErrors.IsFatalFS(err) {
				return err
			}
			c.log.Warn("failed to copy path", "path", f, "error", err)
			continue
		}
		copied = append(copied, strings.TrimPrefix(host, "/"))
		tags = append(tags, matchTags(c.fileTags, host)...)
		limitReached = limit > 0 && current == limit
	}

	c.record(func(s *manifest.PluginSection) {
		s.Files = append(s.Files, manifest.FileEntry{
			Specification: spec,
			FilesCopied:   copied,
			Tags:          dedupe(tags),
		})
	})
	return nil
}

// keepByTime applies --since and MaxAge to rotated logs only. Files under
// /etc and files that do not look like log archives are always kept.
func (o *copyOp) keepByTime(c *Context, f string) bool {
	host := c.env.stripSysroot(f)
	if !logArchivePattern.MatchString(host) || strings.HasPrefix(host, "/etc/") {
		return true
	}
	info, err := os.Stat(f)
	if err != nil {
		return true
	}
	mtime := info.ModTime()
	if !c.env.Since.IsZero() && mtime.Before(c.env.Since) {
		return false
	}
	if o.spec.MaxAge > 0 && time.Since(mtime) > o.spec.MaxAge {
		return false
	}
	return true
}

// expandCopySpec expands a glob and recurses into matched directories.
// Symlinks are returned as themselves; empty directories are kept so they
// can be recreated.
func expandCopySpec(spec string) []string {
	matches, err := filepath.Glob(spec)
	if err != nil {
		return nil
	}
	var out []string
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			out = append(out, m)
			continue
		}
		_ = filepath.WalkDir(m, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				entries, rerr := os.ReadDir(p)
				if rerr == nil && len(entries) == 0 {
					out = append(out, p)
				}
				return nil
			}
			out = append(out, p)
			return nil
		})
	}
	return out
}

func fileSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if err == nil {
		if info.IsDir() {
			return 0, nil
		}
		return info.Size(), nil
	}
	// broken links are still collected
	if linfo, lerr := os.Lstat(p); lerr == nil && linfo.Mode()&os.ModeSymlink != 0 {
		return 0, nil
	}
	return 0, err
}

func (c *Context) alreadyCopied(src string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.copied[src]
	return ok
}

func (c *Context) markCopied(src, dest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copied[src] = dest
	c.totals.Files++
}

// copyTail stores the last n bytes of src under sos_strings/<plugin>/ and
// links the original location to it.
func (c *Context) copyTail(src, host string, n int64) error {
	strfile := strings.ReplaceAll(strings.TrimLeft(host, "/"), "/", ".") + ".tailed"
	dest := path.Join("sos_strings", c.plugin.Name, strfile)
	if err := c.env.Archive.AddFileTail(src, dest, n); err != nil {
		return err
	}
	rel, err := filepath.Rel(filepath.Dir(host), "/")
	if err != nil {
		return err
	}
	if err := c.env.Archive.AddLink(path.Join(filepath.ToSlash(rel), dest), host); err != nil {
		return err
	}
	c.markCopied(src, host)
	return nil
}

// copyPath copies a file, link, directory or device node into the archive
// at its host path.
func (c *Context) copyPath(src string, depth int) error {
	if c.isForbidden(src) {
		c.log.Debug("skipping forbidden path", "path", src)
		return nil
	}
	if c.alreadyCopied(src) {
		return nil
	}
	dest := c.env.stripSysroot(src)
	info, err := os.Lstat(src)
	if err != nil {
		c.log.Info("failed to stat path", "path", src)
		return nil
	}
	arc := c.env.Archive

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return c.copySymlink(src, dest, depth)
	case info.IsDir():
		entries, err := os.ReadDir(src)
		if err != nil {
			c.log.Warn("failed to read directory", "path", src, "error", err)
			return nil
		}
		if len(entries) == 0 {
			return arc.AddDir(dest)
		}
		for _, e := range entries {
			if err := c.copyPath(filepath.Join(src, e.Name()), depth); err != nil {
				return err
			}
		}
		return nil
	case info.Mode()&os.ModeDevice != 0:
		major, minor, okay := deviceNumbers(info)
		if !okay {
			return nil
		}
		c.log.Debug("creating device node", "path", dest)
		if err := arc.AddNode(dest, info.Mode(), major, minor, info.Mode()&os.ModeCharDevice != 0); err != nil {
			return err
		}
	case !info.Mode().IsRegular():
		c.log.Debug("skipping special file", "path", src)
		return nil
	case info.Mode().Perm()&0o444 == 0:
		if err := arc.AddString("", dest); err != nil {
			return err
		}
	default:
		if err := arc.AddFile(src, dest); err != nil {
			return err
		}
	}
	c.markCopied(src, dest)
	return nil
}

// copySymlink stores the link with an archive relative target and then
// copies what it points to, unless that is a directory.
func (c *Context) copySymlink(src, dest string, depth int) error {
	linkdest, err := os.Readlink(src)
	if err != nil {
		return err
	}
	var absdest, reldest string
	if filepath.IsAbs(linkdest) {
		absdest = c.env.hostPath(linkdest)
		realdir, err := filepath.EvalSymlinks(filepath.Dir(src))
		if err != nil {
			realdir = filepath.Dir(src)
		}
		reldest, err = filepath.Rel(c.env.stripSysroot(realdir), linkdest)
		if err != nil {
			reldest = linkdest
		}
		c.log.Debug("made link target relative", "target", linkdest, "relative", reldest)
	} else {
		absdest = filepath.Clean(filepath.Join(filepath.Dir(src), linkdest))
		reldest = linkdest
	}
	if err := c.env.Archive.AddLink(reldest, dest); err != nil {
		return err
	}
	c.markCopied(src, dest)

	info, err := os.Stat(absdest)
	switch {
	case errors.Is(err, syscall.ELOOP):
		c.log.Debug("link is part of a file system loop, skipping target", "path", dest)
		return nil
	case err != nil:
		return nil
	case info.IsDir():
		c.log.Debug("link points to a directory, skipping target", "path", dest)
		return nil
	case absdest == src || depth >= maxLinkDepth:
		return nil
	}
	return c.copyPath(absdest, depth+1)
}

type cmdOp struct {
	cmd Command
}

func (o *cmdOp) run(ctx context.Context, c *Context) Result {
	cmd := o.cmd
	if matchesAny(c.env.SkipCommands, cmd.Cmd) {
		c.log.Info("skipping command excluded by skip-commands", "command", cmd.Cmd)
		return skipped(KindCommand, cmd.Cmd, "excluded by --skip-commands")
	}
	argv, err := shlex.Split(cmd.Cmd)
	if err != nil || len(argv) == 0 {
		return failed(KindCommand, cmd.Cmd, fmt.Errorf("failed to parse command: %w", err))
	}
	tags := append([]string{path.Base(argv[0])}, cmd.Tags...)
	tags = dedupe(append(tags, matchTags(c.cmdTags, cmd.Cmd)...))
	if cmd.Container != "" {
		runtime := c.env.ContainerRuntime
		if runtime == "" {
			runtime = "podman"
		}
		argv = append([]string{runtime, "exec", cmd.Container}, argv...)
	}

	entry := manifest.CommandEntry{
		Command:    path.Base(argv[0]),
		Parameters: argv[1:],
		Exec:       cmd.Cmd,
		Tags:       tags,
	}
	if c.env.DryRun || c.env.Runner == nil {
		c.record(func(s *manifest.PluginSection) { s.Commands = append(s.Commands, entry) })
		return skipped(KindCommand, cmd.Cmd, "dry run")
	}

	chroot := ""
	if !cmd.HostRoot {
		chroot = c.env.chrootDir()
	}
	timeout := c.cmdTimeout(cmd.Timeout)
	req := CommandRequest{
		Argv:      argv,
		Timeout:   timeout,
		Env:       cmd.Env,
		Chroot:    chroot,
		SizeLimit: c.sizeLimitMiB(cmd.SizeLimit) * mib,
	}
	res, err := c.env.Runner.Run(ctx, req)
	if err == nil && notRunnable(res.Status) && chroot != "" {
		c.log.Debug("command not found in sysroot, retrying in host root", "command", cmd.Cmd)
		req.Chroot = ""
		res, err = c.env.Runner.Run(ctx, req)
	}
	if err != nil {
		return failed(KindCommand, cmd.Cmd, err)
	}

	entry.ReturnCode = res.Status
	entry.TimedOut = res.TimedOut
	entry.Truncated = res.Truncated
	entry.StartTime = res.Start
	entry.EndTime = res.End
	entry.RunTime = res.End.Sub(res.Start).Seconds()

	if notRunnable(res.Status) {
		c.log.Debug("command not found or not executable", "command", cmd.Cmd, "status", res.Status)
		c.record(func(s *manifest.PluginSection) { s.Commands = append(s.Commands, entry) })
		return skipped(KindCommand, cmd.Cmd, "command not found")
	}
	if res.TimedOut {
		c.log.Warn(fmt.Sprintf("command '%s' timed out after %ds", cmd.Cmd, int(timeout.Seconds())))
	}

	name := cmd.SuggestFilename
	if name == "" {
		name = MangleCommand(cmd.Cmd, c.env.nameMax())
	}
	rel := c.claimName(name)
	file := rel
	arc := c.env.Archive
	if res.Truncated {
		file = path.Join("sos_strings", c.plugin.Name, path.Base(rel)+".tailed")
		err = arc.AddBinary(res.Output, file)
		if err == nil {
			err = arc.AddLink(path.Join("..", "..", file), rel)
		}
	} else {
		err = arc.AddBinary(res.Output, rel)
	}
	if err == nil && cmd.RootSymlink != "" {
		err = arc.AddLink(rel, cmd.RootSymlink)
	}
	if err != nil {
		return failed(KindCommand, cmd.Cmd, err)
	}

	entry.Filepath = rel
	c.record(func(s *manifest.PluginSection) { s.Commands = append(s.Commands, entry) })
	c.mu.Lock()
	c.executed = append(c.executed, executed{exec: cmd.Cmd, file: file})
	c.totals.Commands++
	c.mu.Unlock()

	if res.TimedOut {
		return Result{Kind: KindCommand, Spec: cmd.Cmd, Status: StatusTimedOut, Reason: "command timed out"}
	}
	return ok(KindCommand, cmd.Cmd)
}

func notRunnable(status int) bool {
	return status == StatusNotExecutable || status == StatusNotFound
}

// claimName reserves a file name under sos_commands/<plugin>/, adding a
// numeric suffix on collision.
func (c *Context) claimName(name string) string {
	dir := path.Join("sos_commands", c.plugin.Name)
	c.mu.Lock()
	defer c.mu.Unlock()
	name = uniqueName(name, c.env.nameMax(), func(n string) bool {
		_, used := c.names[n]
		return used || c.env.Archive.Exists(path.Join(dir, n))
	})
	c.names[name] = struct{}{}
	return path.Join(dir, name)
}

type linkOp struct {
	target string
	name   string
}

func (o *linkOp) run(_ context.Context, c *Context) Result {
	if c.env.DryRun {
		return skipped(KindLink, o.name, "dry run")
	}
	if err := c.env.Archive.AddLink(o.target, o.name); err != nil {
		return failed(KindLink, o.name, err)
	}
	return ok(KindLink, o.name)
}

type stringOp struct {
	drop StringDrop
}

func (o *stringOp) run(_ context.Context, c *Context) Result {
	d := o.drop
	dest := d.Filename
	if !d.Root {
		dest = path.Join("sos_strings", c.plugin.Name, d.Filename)
	}
	if c.env.DryRun {
		return skipped(KindString, dest, "dry run")
	}
	if err := c.env.Archive.AddString(d.Content, dest); err != nil {
		return failed(KindString, dest, err)
	}
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	c.record(func(s *manifest.PluginSection) {
		s.Strings = append(s.Strings, manifest.StringEntry{Name: dest, Tags: tags})
	})
	c.mu.Lock()
	c.totals.Strings++
	c.mu.Unlock()
	return ok(KindString, dest)
}

// Postprocess applies the plugin's substitutions to what it collected,
// then runs its Postproc hook. A failed substitution leaves the file
// unmodified.
func (c *Context) Postprocess(ctx context.Context) error {
	if !c.opts.Bool(OptPostproc) {
		c.log.Debug("post-processing disabled by plugin option")
		return nil
	}
	c.mu.Lock()
	subs := append([]substitution(nil), c.subs...)
	copied := make([]string, 0, len(c.copied))
	for _, dest := range c.copied {
		copied = append(copied, dest)
	}
	execs := append([]executed(nil), c.executed...)
	c.mu.Unlock()
	sort.Strings(copied)

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		var targets []string
		switch sub.kind {
		case KindCommand:
			for _, e := range execs {
				if sub.match(e.exec) {
					targets = append(targets, e.file)
				}
			}
		default:
			for _, dest := range copied {
				if sub.match(dest) {
					targets = append(targets, dest)
				}
			}
		}
		for _, t := range targets {
			n, err := c.applySub(t, sub)
			if err != nil {
				if sosErrors.IsFatalFS(err) {
					return err
				}
				c.log.Warn("regex substitution failed", "path", t, "error", err)
				c.addResult(failed(KindSubstitution, t, err))
				continue
			}
			if n > 0 {
				c.log.Debug("applied substitution", "path", t, "pattern", sub.regex.String(), "replacements", n)
			}
		}
	}

	if c.plugin.Postproc != nil {
		return c.plugin.Postproc(ctx, c)
	}
	return nil
}

func (c *Context) applySub(dest string, sub substitution) (int, error) {
	p, err := c.env.Archive.Path(dest)
	if err != nil {
		return 0, err
	}
	info, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		c.log.Debug("file not collected, substitution skipped", "path", dest)
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return 0, err
	}
	n := len(sub.regex.FindAllIndex(data, -1))
	if n == 0 {
		return 0, nil
	}
	out := sub.regex.ReplaceAll(data, []byte(sub.replace))
	if err := serializer.WriteFileAtomic(p, out, info.Mode().Perm()); err != nil {
		return 0, sosErrors.AsFatalFS("failed to rewrite file", err)
	}
	_ = os.Chtimes(p, info.ModTime(), info.ModTime())
	return n, nil
}

func dedupe(in []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
