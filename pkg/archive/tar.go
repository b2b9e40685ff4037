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
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"
)

// PAXSELinuxKey carries the security context of an entry.
const PAXSELinuxKey = "RHT.security.selinux"

// Node describes a device node recorded in the archive. Nodes are not
// created in staging; they are emitted as tar headers at finalize time.
type Node struct {
	Path  string
	Mode  os.FileMode
	Major int64
	Minor int64
	Char  bool
}

// Serializer turns a staging directory into a single stream whose only
// top-level member is name/.
type Serializer interface {
	Extension() string
	Serialize(ctx context.Context, src Source, w io.Writer) error
}

// Source is the staging content handed to a Serializer.
type Source struct {
	Root     string
	Name     string
	Nodes    []Node
	Contexts map[string]string
}

// TarSerializer writes a PAX format tar stream.
type TarSerializer struct{}

// Extension implements Serializer.
func (TarSerializer) Extension() string { return ".tar" }

// Serialize walks src.Root in lexical order and writes every entry under src.Name/.
func (TarSerializer) Serialize(ctx context.Context, src Source, w io.Writer) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(src.Root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src.Root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		name := src.Name
		if rel != "." {
			name = path.Join(src.Name, filepath.ToSlash(rel))
		}
		hdr, err := entryHeader(p, name, info)
		if err != nil {
			return err
		}
		if label, ok := src.Contexts[filepath.ToSlash(rel)]; ok && label != "" {
			hdr.PAXRecords = map[string]string{PAXSELinuxKey: label}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", name, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.CopyN(tw, f, hdr.Size); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	now := time.Now()
	for _, n := range src.Nodes {
		hdr := &tar.Header{
			Name:     path.Join(src.Name, n.Path),
			Mode:     int64(n.Mode.Perm()),
			Devmajor: n.Major,
			Devminor: n.Minor,
			Typeflag: tar.TypeBlock,
			ModTime:  now,
			Format:   tar.FormatPAX,
		}
		if n.Char {
			hdr.Typeflag = tar.TypeChar
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to write node %s: %w", n.Path, err)
		}
	}
	return tw.Close()
}

func entryHeader(p, name string, info fs.FileInfo) (*tar.Header, error) {
	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		l, err := os.Readlink(p)
		if err != nil {
			return nil, err
		}
		link = l
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return nil, err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	hdr.Format = tar.FormatPAX
	// only mtime is recorded so equal trees serialize to equal bytes
	hdr.AccessTime, hdr.ChangeTime = time.Time{}, time.Time{}
	if st, ok := statOf(info); ok {
		hdr.Uid, hdr.Gid = st.uid, st.gid
	}
	return hdr, nil
}
