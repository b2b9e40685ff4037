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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/NVIDIA/sos/pkg/archive"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

// walkResult lists the entries of a report, archive-relative with '/'.
type walkResult struct {
	files   []string
	links   []string
	entries []string
	// dirs holds directory mtimes; the root is "".
	dirs map[string]time.Time
}

func walkReport(root string) (*walkResult, error) {
	w := &walkResult{dirs: make(map[string]time.Time)}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			w.dirs[rel] = info.ModTime()
		}
		if rel == "" {
			return nil
		}
		w.entries = append(w.entries, rel)
		switch {
		case d.Type()&fs.ModeSymlink != 0:
			w.links = append(w.links, rel)
		case d.Type().IsRegular():
			w.files = append(w.files, rel)
		}
		return nil
	})
	return w, err
}

// renamedPath maps an original relative path to its current one.
func renamedPath(rel string, renamed map[string]string) string {
	if rel == "" {
		return ""
	}
	parts := strings.Split(rel, "/")
	out := make([]string, len(parts))
	for i := range parts {
		if n, ok := renamed[strings.Join(parts[:i+1], "/")]; ok {
			out[i] = n
		} else {
			out[i] = parts[i]
		}
	}
	return strings.Join(out, "/")
}

// restoreDirTimes puts back the directory mtimes recorded by walkReport,
// deepest first, once every entry has its final name.
func restoreDirTimes(root string, dirs map[string]time.Time, renamed map[string]string) {
	rels := make([]string, 0, len(dirs))
	for rel := range dirs {
		rels = append(rels, rel)
	}
	depth := func(rel string) int {
		if rel == "" {
			return 0
		}
		return strings.Count(rel, "/") + 1
	}
	sort.Slice(rels, func(i, j int) bool { return depth(rels[i]) > depth(rels[j]) })
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(renamedPath(rel, renamed)))
		_ = os.Chtimes(p, dirs[rel], dirs[rel])
	}
}

// skipFile reports whether rel is left untouched by every parser.
func (r *run) skipFile(rel string) bool {
	return matchAny(skipPaths, rel) || matchAny(skipNames, path.Base(rel)) || matchAny(r.c.skips, rel)
}

// obfuscateName replaces known originals in a file or directory name. The
// cache is keyed by the map generation so names are recomputed once new
// originals are learned.
func (r *run) obfuscateName(name string) string {
	key := strconv.Itoa(r.set.Store().Generation()) + "\x00" + name
	if v, ok := r.names.Get(key); ok {
		return v
	}
	v := r.set.ObfuscateString(name)
	r.names.Add(key, v)
	return v
}

// obfuscateReport rewrites one report and, unless it is in place, repacks
// it. Files are handled one at a time in walk order; cancellation is
// checked between files.
func (r *run) obfuscateReport(ctx context.Context, rep *report) (*ArchiveResult, error) {
	start := time.Now()
	res := &ArchiveResult{Name: rep.Name, Start: start}
	log := r.log.With("archive", rep.Name)
	r.ui.Info(fmt.Sprintf("[%s] Beginning obfuscation...", rep))

	if err := r.cleanTree(ctx, rep.Root, res); err != nil {
		return nil, err
	}

	res.ObfuscatedName = r.set.ObfuscateString(rep.Name)
	res.Path = rep.Root
	if !rep.InPlace {
		r.ui.Info(fmt.Sprintf("[%s] Re-compressing...", rep))
		if err := r.repack(ctx, rep, res); err != nil {
			if ctx.Err() == nil {
				r.mu.Lock()
				r.keepWork = true
				r.mu.Unlock()
				r.ui.Error(fmt.Sprintf("[%s] Failed to re-compress archive, extracted files kept in %s", rep, r.work))
			}
			return nil, err
		}
	}

	res.Duration = time.Since(start)
	cleanerArchiveDuration.Observe(res.Duration.Seconds())
	log.Info("obfuscation completed", "files_obfuscated", len(res.FilesObfuscated),
		"substitutions", res.TotalSubstitutions, "removed", len(res.RemovedFiles))
	r.ui.Info(fmt.Sprintf("[%s] Obfuscation completed", rep))
	return res, nil
}

// cleanTree rewrites regular files, then link targets, then names from the
// deepest entry up so parents are renamed after their children.
func (r *run) cleanTree(ctx context.Context, root string, res *ArchiveResult) error {
	w, err := walkReport(root)
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to list report files", err)
	}
	log := r.log.With("archive", res.Name)

	for _, rel := range w.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.skipFile(rel) {
			log.Debug("skipping file", "file", rel)
			continue
		}
		act, err := r.obfuscateFile(root, rel)
		switch {
		case sosErrors.IsFatalFS(err):
			return sosErrors.AsFatalFS("failed to rewrite "+rel, err)
		case err != nil:
			log.Debug("unable to parse file", "file", rel, "error", err)
		case act.removed:
			log.Info("removed file", "file", rel, "reason", act.reason)
			res.RemovedFiles = append(res.RemovedFiles, rel)
		case act.subs > 0:
			log.Debug("obfuscated file", "file", rel, "substitutions", act.subs)
			res.FilesObfuscated = append(res.FilesObfuscated, rel)
			res.TotalSubstitutions += act.subs
		}
	}

	for _, rel := range w.links {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(root, filepath.FromSlash(rel))
		dest, err := os.Readlink(p)
		if err != nil {
			continue
		}
		obf := r.set.ObfuscateString(dest)
		if obf == dest {
			continue
		}
		info, err := os.Lstat(p)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil {
			return err
		}
		if err := os.Symlink(obf, p); err != nil {
			return err
		}
		_ = archive.Lchtimes(p, info.ModTime())
		log.Debug("rewrote link target", "link", rel)
	}

	renamed := make(map[string]string)
	entries := append([]string(nil), w.entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.Count(entries[i], "/") > strings.Count(entries[j], "/")
	})
	for _, rel := range entries {
		if r.skipFile(rel) {
			continue
		}
		base := path.Base(rel)
		obf := r.obfuscateName(base)
		if obf == base {
			continue
		}
		from := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := os.Lstat(from); err != nil {
			continue
		}
		to := filepath.Join(filepath.Dir(from), obf)
		if err := os.Rename(from, to); err != nil {
			log.Warn("failed to rename", "file", rel, "error", err)
			continue
		}
		renamed[rel] = obf
		log.Debug("renamed", "file", rel, "to", obf)
	}
	restoreDirTimes(root, w.dirs, renamed)
	return nil
}

// repackCompression is the compression used for a report that arrived
// with c; formats that cannot be written fall back to gzip.
func repackCompression(c archive.Compression) archive.Compression {
	switch c {
	case archive.CompressionGzip, archive.CompressionXZ, archive.CompressionZstd, archive.CompressionNone:
		return c
	default:
		return archive.CompressionGzip
	}
}

// repack renames the report root to its obfuscated name and serializes it
// to <outDir>/<obfuscated>-obfuscated.tar.*.
func (r *run) repack(ctx context.Context, rep *report, res *ArchiveResult) error {
	root := rep.Root
	if res.ObfuscatedName != rep.Name {
		renamed := filepath.Join(filepath.Dir(root), res.ObfuscatedName)
		if err := os.Rename(root, renamed); err != nil {
			return sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to rename report directory", err)
		}
		root = renamed
		rep.Root = renamed
	}
	a, err := archive.Open(root, archive.WithLogger(r.log))
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to open report directory", err)
	}
	fr, err := a.Finalize(ctx, archive.FinalizeOptions{
		Compression: repackCompression(rep.Compression),
		Hash:        r.hash,
		OutputDir:   rep.outDir,
		OutputName:  res.ObfuscatedName + obfuscatedSuffix,
	})
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to repack "+res.ObfuscatedName, err)
	}
	if rep.outDir == r.outDir {
		r.track(fr.Path, fr.ChecksumPath)
	}
	res.Path = fr.Path
	res.Checksum = fr.Checksum
	res.ChecksumPath = fr.ChecksumPath
	return nil
}

// repackOuter rebuilds an archive of archives: the outer report's own files
// are cleaned, the original nested tarballs and their checksums are
// replaced by the obfuscated ones with checksums/<name>.<algo>, and the
// result is serialized with the outer archive's compression.
func (r *run) repackOuter(ctx context.Context, t *target, inner []*ArchiveResult) (*ArchiveResult, error) {
	outer := t.outer
	res := &ArchiveResult{Name: outer.Name, Start: time.Now()}
	r.ui.Info(fmt.Sprintf("[%s] Beginning obfuscation...", outer))
	if err := r.cleanTree(ctx, outer.Root, res); err != nil {
		return nil, err
	}

	rootInfo, err := os.Stat(outer.Root)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to stat outer archive", err)
	}
	// entries written below carry the outer root's own mtime
	stamp := rootInfo.ModTime()
	var added []string

	entries, err := os.ReadDir(outer.Root)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to list outer archive", err)
	}
	for _, e := range entries {
		name := e.Name()
		orig, _, _ := strings.Cut(name, ".tar")
		if isReportTarball(name) || (strings.HasPrefix(orig, reportPrefix) && strings.Contains(name, ".tar.")) {
			if err := os.Remove(filepath.Join(outer.Root, name)); err != nil {
				return nil, err
			}
		}
	}
	sums := filepath.Join(outer.Root, "checksums")
	if err := os.RemoveAll(sums); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(sums, 0o700); err != nil {
		return nil, sosErrors.AsFatalFS("failed to create checksums directory", err)
	}
	for _, ar := range inner {
		name := filepath.Base(ar.Path)
		if err := os.Rename(ar.Path, filepath.Join(outer.Root, name)); err != nil {
			return nil, sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to move "+name, err)
		}
		if ar.ChecksumPath != "" {
			_ = os.Remove(ar.ChecksumPath)
		}
		sumFile := filepath.Join(sums, name+"."+r.hash)
		if err := os.WriteFile(sumFile, []byte(ar.Checksum+"\n"), 0o600); err != nil {
			return nil, sosErrors.AsFatalFS("failed to write checksum", err)
		}
		added = append(added, filepath.Join(outer.Root, name), sumFile)
		ar.Path = name
		ar.ChecksumPath = path.Join("checksums", name+"."+r.hash)
	}

	for _, p := range append(added, sums, outer.Root) {
		_ = os.Chtimes(p, stamp, stamp)
	}

	outer.outDir = r.outDir
	res.ObfuscatedName = r.set.ObfuscateString(outer.Name)
	if err := r.repack(ctx, outer, res); err != nil {
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			r.mu.Lock()
			r.keepWork = true
			r.mu.Unlock()
		}
		return nil, err
	}
	res.Duration = time.Since(res.Start)
	return res, nil
}
