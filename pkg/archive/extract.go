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
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ExtractOptions controls Extract.
type ExtractOptions struct {
	// MakeWritable adds owner read/write (and execute on directories) to
	// every extracted entry so later steps can rewrite them.
	MakeWritable bool
	// PreserveOwner applies the uid/gid recorded in the tar; only useful as root.
	PreserveOwner bool
}

// ExtractResult describes an extracted tarball.
type ExtractResult struct {
	// TopLevel is the first path component shared by the members, e.g.
	// sosreport-host-2024-01-01-abcde.
	TopLevel    string
	Compression Compression
	Members     int
}

// Extract unpacks the (possibly compressed) tarball at src into dest. Any
// member whose normalized path, or hard link target, escapes dest is
// rejected with ErrPathTraversal before anything is written for it.
func Extract(ctx context.Context, src, dest string, opts ExtractOptions) (*ExtractResult, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rc, comp, err := NewDecompressReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(dest, 0o700); err != nil {
		return nil, err
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}

	res := &ExtractResult{Compression: comp}
	type dirTimes struct {
		path string
		hdr  *tar.Header
		mode os.FileMode
	}
	var dirs []dirTimes
	// parents created for members without a directory entry of their own
	type impliedDir struct {
		path  string
		mtime time.Time
	}
	var implied []impliedDir

	tr := tar.NewReader(rc)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}

		if strings.HasPrefix(hdr.Name, "/") || hasDotDot(hdr.Name) {
			return nil, fmt.Errorf("%w: member %q", ErrPathTraversal, hdr.Name)
		}
		target, err := SecureJoin(root, hdr.Name)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", hdr.Name, err)
		}
		if res.TopLevel == "" {
			res.TopLevel = strings.SplitN(path.Clean(hdr.Name), "/", 2)[0]
		}
		res.Members++

		missing := missingDirs(root, filepath.Dir(target))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, err
		}
		for _, d := range missing {
			implied = append(implied, impliedDir{d, hdr.ModTime})
		}

		mode := os.FileMode(hdr.Mode).Perm()
		switch hdr.Typeflag {
		case tar.TypeDir:
			if opts.MakeWritable {
				mode |= 0o700
			}
			if err := os.MkdirAll(target, 0o700); err != nil {
				return nil, err
			}
			dirs = append(dirs, dirTimes{target, hdr, mode})
			continue
		case tar.TypeReg:
			if opts.MakeWritable {
				mode |= 0o600
			}
			if err := writeMember(tr, target, mode); err != nil {
				return nil, err
			}
		case tar.TypeSymlink:
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return nil, err
			}
		case tar.TypeLink:
			if hasDotDot(hdr.Linkname) || strings.HasPrefix(hdr.Linkname, "/") {
				return nil, fmt.Errorf("%w: link %q -> %q", ErrPathTraversal, hdr.Name, hdr.Linkname)
			}
			old, err := SecureJoin(root, hdr.Linkname)
			if err != nil {
				return nil, err
			}
			_ = os.Remove(target)
			if err := os.Link(old, target); err != nil {
				return nil, err
			}
		default:
			// device nodes and fifos are not materialized
			continue
		}

		if opts.PreserveOwner {
			_ = os.Lchown(target, hdr.Uid, hdr.Gid)
		}
		if hdr.Typeflag == tar.TypeSymlink {
			_ = Lchtimes(target, hdr.ModTime)
		} else {
			_ = os.Chtimes(target, hdr.AccessTime, hdr.ModTime)
		}
	}

	// directory modes and times are set last since extracting children updates them
	for i := len(implied) - 1; i >= 0; i-- {
		_ = os.Chtimes(implied[i].path, implied[i].mtime, implied[i].mtime)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Chmod(dirs[i].path, dirs[i].mode); err != nil {
			return nil, err
		}
		if opts.PreserveOwner {
			_ = os.Lchown(dirs[i].path, dirs[i].hdr.Uid, dirs[i].hdr.Gid)
		}
		_ = os.Chtimes(dirs[i].path, dirs[i].hdr.AccessTime, dirs[i].hdr.ModTime)
	}
	return res, nil
}

func writeMember(r io.Reader, target string, mode os.FileMode) error {
	_ = os.Remove(target)
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(target, mode)
}

func hasDotDot(name string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ListMembers returns the member names of a (possibly compressed) tarball.
func ListMembers(src string) ([]string, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rc, _, err := NewDecompressReader(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var names []string
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, hdr.Name)
	}
}

// IsTarball reports whether path is a readable, possibly compressed, tar.
func IsTarball(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer f.Close()
	rc, _, err := NewDecompressReader(f)
	if err != nil {
		return false
	}
	defer rc.Close()
	_, err = tar.NewReader(rc).Next()
	return err == nil
}

// missingDirs lists dir and its parents below root that do not exist yet,
// outermost first.
func missingDirs(root, dir string) []string {
	var out []string
	for dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)) {
		if _, err := os.Lstat(dir); err == nil {
			break
		}
		out = append([]string{dir}, out...)
		dir = filepath.Dir(dir)
	}
	return out
}
