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

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

// Archive is a staging directory rooted at <tmpdir>/<name>/ that is later
// serialized into a single compressed tarball. Methods are safe for
// concurrent use by plugins writing distinct paths.
type Archive struct {
	name   string
	tmpDir string
	root   string
	log    *slog.Logger

	mu       sync.Mutex
	nodes    []Node
	contexts map[string]string
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger used for skipped and missing files.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) {
		if l != nil {
			a.log = l
		}
	}
}

// New creates the staging directory <tmpDir>/<name>.
func New(tmpDir, name string, opts ...Option) (*Archive, error) {
	if name == "" || filepath.Base(name) != name {
		return nil, fmt.Errorf("%w: archive name %q", ErrInvalidPath, name)
	}
	a := &Archive{
		name:     name,
		tmpDir:   tmpDir,
		root:     filepath.Join(tmpDir, name),
		log:      slog.Default(),
		contexts: make(map[string]string),
	}
	for _, o := range opts {
		o(a)
	}
	if err := os.MkdirAll(a.root, 0o700); err != nil {
		return nil, sosErrors.AsFatalFS("failed to create archive staging directory", err)
	}
	return a, nil
}

// Open wraps an existing staging directory, e.g. an extracted report.
func Open(root string, opts ...Option) (*Archive, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	a := &Archive{
		name:     filepath.Base(root),
		tmpDir:   filepath.Dir(root),
		root:     root,
		log:      slog.Default(),
		contexts: make(map[string]string),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Name returns the archive base name.
func (a *Archive) Name() string { return a.name }

// Root returns the staging directory.
func (a *Archive) Root() string { return a.root }

// Path resolves an archive-relative destination to its staging location.
func (a *Archive) Path(dest string) (string, error) {
	return SecureJoin(a.root, dest)
}

// Exists reports whether dest has been staged.
func (a *Archive) Exists(dest string) bool {
	p, err := a.Path(dest)
	if err != nil {
		return false
	}
	_, err = os.Lstat(p)
	return err == nil
}

func (a *Archive) prepare(dest string) (string, error) {
	p, err := a.Path(dest)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", sosErrors.AsFatalFS("failed to create directory", err)
	}
	return p, nil
}

// AddFile copies src into staging at dest (src when dest is empty),
// preserving mode, owner, timestamps and security context. A missing src
// is logged and ignored.
func (a *Archive) AddFile(src, dest string) error {
	if dest == "" {
		dest = src
	}
	info, err := os.Lstat(src)
	if errors.Is(err, fs.ErrNotExist) {
		a.log.Info("file not found, skipping", "path", src)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", src, err)
		}
		return a.AddLink(target, dest)
	case info.IsDir():
		return a.AddDir(dest)
	case !info.Mode().IsRegular():
		a.log.Debug("skipping special file", "path", src, "mode", info.Mode().String())
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	return a.addReader(in, src, dest, info, -1)
}

// AddFileTail stages only the last limit bytes of src.
func (a *Archive) AddFileTail(src, dest string, limit int64) error {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		a.log.Info("file not found, skipping", "path", src)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	if size := info.Size(); size > limit {
		if _, err := in.Seek(size-limit, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek %s: %w", src, err)
		}
	}
	return a.addReader(in, src, dest, info, limit)
}

func (a *Archive) addReader(in io.Reader, src, dest string, info fs.FileInfo, limit int64) error {
	p, err := a.prepare(dest)
	if err != nil {
		return err
	}
	out, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return sosErrors.AsFatalFS("failed to create staged file", err)
	}
	if limit >= 0 {
		in = io.LimitReader(in, limit)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return sosErrors.AsFatalFS(fmt.Sprintf("failed to copy %s", src), err)
	}
	if err := out.Close(); err != nil {
		return sosErrors.AsFatalFS("failed to close staged file", err)
	}
	a.copyAttributes(src, p, info)
	return nil
}

// copyAttributes applies mode, owner and times from the original. Ownership
// changes only succeed when running as root and are otherwise ignored.
func (a *Archive) copyAttributes(src, dst string, info fs.FileInfo) {
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		a.log.Debug("failed to set mode", "path", dst, "error", err)
	}
	if st, ok := statOf(info); ok {
		_ = os.Lchown(dst, st.uid, st.gid)
		_ = os.Chtimes(dst, st.atime, info.ModTime())
	} else {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	if label := securityContext(src); label != "" {
		rel, err := filepath.Rel(a.root, dst)
		if err == nil {
			a.mu.Lock()
			a.contexts[filepath.ToSlash(rel)] = label
			a.mu.Unlock()
		}
	}
}

// AddString writes content to dest, replacing any existing file.
func (a *Archive) AddString(content, dest string) error {
	return a.write([]byte(content), dest, os.O_TRUNC)
}

// AppendString appends content to dest, creating it when absent.
func (a *Archive) AppendString(content, dest string) error {
	return a.write([]byte(content), dest, os.O_APPEND)
}

// AddBinary writes raw bytes to dest.
func (a *Archive) AddBinary(content []byte, dest string) error {
	return a.write(content, dest, os.O_TRUNC)
}

func (a *Archive) write(content []byte, dest string, flag int) error {
	p, err := a.prepare(dest)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|flag, 0o644)
	if err != nil {
		return sosErrors.AsFatalFS("failed to open staged file", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return sosErrors.AsFatalFS("failed to write staged file", err)
	}
	return sosErrors.AsFatalFS("failed to close staged file", f.Close())
}

// AddLink creates linkName -> target in staging. The target is stored
// verbatim and never resolved against the host filesystem.
func (a *Archive) AddLink(target, linkName string) error {
	p, err := a.prepare(linkName)
	if err != nil {
		return err
	}
	if existing, err := os.Readlink(p); err == nil {
		if existing == target {
			return nil
		}
		if err := os.Remove(p); err != nil {
			return err
		}
	}
	if err := os.Symlink(target, p); err != nil {
		if errors.Is(err, fs.ErrExist) {
			a.log.Debug("link destination exists, skipping", "link", linkName)
			return nil
		}
		return sosErrors.AsFatalFS("failed to create link", err)
	}
	return nil
}

// AddDir creates a directory in staging.
func (a *Archive) AddDir(dest string) error {
	p, err := a.Path(dest)
	if err != nil {
		return err
	}
	return sosErrors.AsFatalFS("failed to create directory", os.MkdirAll(p, 0o755))
}

// AddNode records a device node emitted at finalize time.
func (a *Archive) AddNode(dest string, mode os.FileMode, major, minor int64, char bool) error {
	clean, err := CleanPath(dest)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = append(a.nodes, Node{Path: clean, Mode: mode, Major: major, Minor: minor, Char: char})
	return nil
}

// OpenFile opens a staged file for reading.
func (a *Archive) OpenFile(dest string) (*os.File, error) {
	p, err := a.Path(dest)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// ReadFile returns the content of a staged file.
func (a *Archive) ReadFile(dest string) ([]byte, error) {
	p, err := a.Path(dest)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Cleanup removes the staging directory.
func (a *Archive) Cleanup() error {
	return os.RemoveAll(a.root)
}

// FinalizeOptions controls serialization.
type FinalizeOptions struct {
	Compression Compression
	Fast        bool
	// Hash names the checksum algorithm, sha256 when empty.
	Hash string
	// OutputDir receives the tarball; defaults to the archive tmp dir.
	OutputDir string
	// OutputName overrides the tarball base name; the top-level member
	// is still the archive name.
	OutputName string
	// KeepStaging leaves the staging directory in place.
	KeepStaging bool
	Serializer Serializer
}

// Result describes a finalized archive.
type Result struct {
	Path         string
	Checksum     string
	Algorithm    string
	ChecksumPath string
	Compression  Compression
	Duration     time.Duration
}

// Finalize serializes staging to <outdir>/<name>.tar<ext>, computes the
// checksum of the compressed result and writes the sibling checksum file.
// With auto compression, xz is tried first and gzip is the fallback.
func (a *Archive) Finalize(ctx context.Context, opts FinalizeOptions) (*Result, error) {
	start := time.Now()
	if opts.Hash == "" {
		opts.Hash = "sha256"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = a.tmpDir
	}
	if opts.Serializer == nil {
		opts.Serializer = TarSerializer{}
	}

	a.mu.Lock()
	src := Source{Root: a.root, Name: a.name, Nodes: append([]Node(nil), a.nodes...), Contexts: make(map[string]string, len(a.contexts))}
	for k, v := range a.contexts {
		src.Contexts[k] = v
	}
	a.mu.Unlock()
	sort.Slice(src.Nodes, func(i, j int) bool { return src.Nodes[i].Path < src.Nodes[j].Path })

	var lastErr error
	for _, c := range opts.Compression.candidates() {
		res, err := a.finalizeWith(ctx, src, opts, c)
		if err == nil {
			res.Duration = time.Since(start)
			if !opts.KeepStaging {
				if err := a.Cleanup(); err != nil {
					a.log.Warn("failed to remove staging directory", "path", a.root, "error", err)
				}
			}
			return res, nil
		}
		if sosErrors.IsFatalFS(err) || ctx.Err() != nil {
			return nil, err
		}
		a.log.Warn("compression failed", "method", c, "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("failed to finalize archive: %w", lastErr)
}

func (a *Archive) finalizeWith(ctx context.Context, src Source, opts FinalizeOptions, c Compression) (*Result, error) {
	base := a.name
	if opts.OutputName != "" {
		base = opts.OutputName
	}
	out := filepath.Join(opts.OutputDir, base+opts.Serializer.Extension()+c.Extension())
	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, sosErrors.AsFatalFS("failed to create archive", err)
	}
	h, err := NewHash(opts.Hash)
	if err != nil {
		f.Close()
		os.Remove(out)
		return nil, err
	}

	fail := func(err error) (*Result, error) {
		f.Close()
		os.Remove(out)
		return nil, sosErrors.AsFatalFS("failed to write archive", err)
	}

	cw, err := NewCompressWriter(c, io.MultiWriter(f, h), opts.Fast)
	if err != nil {
		return fail(err)
	}
	if err := opts.Serializer.Serialize(ctx, src, cw); err != nil {
		cw.Close()
		return fail(err)
	}
	if err := cw.Close(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(out)
		return nil, sosErrors.AsFatalFS("failed to close archive", err)
	}

	sum := fmt.Sprintf("%x", h.Sum(nil))
	sumPath, err := WriteChecksumFile(out, opts.Hash, sum)
	if err != nil {
		return nil, err
	}
	return &Result{
		Path:         out,
		Checksum:     sum,
		Algorithm:    opts.Hash,
		ChecksumPath: sumPath,
		Compression:  c,
	}, nil
}
