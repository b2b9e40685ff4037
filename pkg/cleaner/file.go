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
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
)

const sniffSize = 8192

// Certificate policies for --treat-certificates.
const (
	CertKeep      = "keep"
	CertRemove    = "remove"
	CertObfuscate = "obfuscate"
)

var errNotText = errors.New("file is not valid UTF-8 text")

// paths never rewritten, relative to the report root
var skipPaths = compileGlobs(
	"proc/kallsyms",
	"sys/firmware/**",
	"sys/fs/**",
	"sys/kernel/debug/**",
	"sys/module/**",
)

// base names never rewritten; nested reports are handled as reports
var skipNames = compileGlobs(
	reportPrefix+"-*",
	"*.tar*",
)

func compileGlobs(patterns ...string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, glob.MustCompile(p, '/'))
	}
	return out
}

func matchAny(globs []glob.Glob, s string) bool {
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// fileAction is what obfuscateFile did to one file.
type fileAction struct {
	subs    int
	removed bool
	reason  string
}

// obfuscateFile applies the removal policies then rewrites rel in place.
func (r *run) obfuscateFile(root, rel string) (fileAction, error) {
	p := filepath.Join(root, filepath.FromSlash(rel))
	head, err := readHead(p)
	if err != nil {
		return fileAction{}, err
	}
	rewrite := r.set.ForFile(rel)

	switch {
	case isPrivateKey(rel, head):
		return r.remove(p, "private key")
	case isCertificate(rel, head):
		switch r.opts.TreatCertificates {
		case CertKeep:
			return fileAction{}, nil
		case CertRemove:
			return r.remove(p, "certificate")
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fileAction{}, err
		}
		if text, ok := certificateText(data); ok {
			n, err := rewriteCertificate(p, text, rewrite)
			return fileAction{subs: n}, err
		}
	case isBinary(head):
		if r.opts.KeepBinaryFiles {
			return fileAction{}, nil
		}
		return r.remove(p, "binary file")
	}
	n, err := rewriteFile(p, rewrite)
	return fileAction{subs: n}, err
}

func (r *run) remove(p, reason string) (fileAction, error) {
	if err := os.Remove(p); err != nil {
		return fileAction{}, err
	}
	cleanerRemovedFiles.Inc()
	return fileAction{removed: true, reason: reason}, nil
}

func readHead(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

func isBinary(head []byte) bool {
	return bytes.IndexByte(head, 0) >= 0
}

func isPrivateKey(rel string, head []byte) bool {
	return path.Ext(rel) == ".key" || bytes.Contains(head, []byte("PRIVATE KEY-----"))
}

func isCertificate(rel string, head []byte) bool {
	switch path.Ext(rel) {
	case ".crt", ".pem", ".cer", ".der":
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(head), []byte("-----BEGIN CERTIFICATE-----"))
}

// rewriteFile streams p line by line through fn into a temporary file in
// the same directory, which replaces p only when something changed. Line
// endings are kept as they were.
func rewriteFile(p string, fn func(string) (string, int)) (int, error) {
	in, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".sos-clean-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	bw := bufio.NewWriter(tmp)
	br := bufio.NewReader(in)
	total := 0
	for {
		line, rerr := br.ReadString('\n')
		if line != "" {
			if !utf8.ValidString(line) {
				return 0, errNotText
			}
			body, nl := strings.CutSuffix(line, "\n")
			body, n := fn(body)
			total += n
			bw.WriteString(body)
			if nl {
				bw.WriteByte('\n')
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return 0, rerr
		}
	}
	if total == 0 {
		return 0, nil
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := keepAttrs(tmp.Name(), info); err != nil {
		return 0, err
	}
	return total, os.Rename(tmp.Name(), p)
}

func rewriteCertificate(p, text string, fn func(string) (string, int)) (int, error) {
	var out strings.Builder
	total := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		body, nl := strings.CutSuffix(line, "\n")
		body, n := fn(body)
		total += n
		out.WriteString(body)
		if nl {
			out.WriteByte('\n')
		}
	}
	return total, replaceFile(p, []byte(out.String()))
}

// replaceFile atomically swaps p's content, keeping its permissions and
// mtime.
func replaceFile(p string, data []byte) error {
	info, err := os.Stat(p)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".sos-clean-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := keepAttrs(tmp.Name(), info); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// keepAttrs gives the replacement file the permissions and mtime of the
// original.
func keepAttrs(p string, info os.FileInfo) error {
	if err := os.Chmod(p, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(p, info.ModTime(), info.ModTime())
}
