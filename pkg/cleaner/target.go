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
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/sos/pkg/archive"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

const (
	reportPrefix = archive.ReportPrefix
	logsDir      = "sos_logs"
)

// report is one sos report being obfuscated.
type report struct {
	// Source is the tarball, or the directory of an in-place report.
	Source string
	// Name is the top-level directory name of the report.
	Name string
	// Root is the directory whose files are rewritten.
	Root string
	// InPlace reports are rewritten where they are and never repacked.
	InPlace     bool
	Compression archive.Compression
	// outDir receives the repacked tarball.
	outDir string
}

// target is the resolved shape of an Execute argument.
type target struct {
	// name is used for the private map, the obfuscation log and, for an
	// archive of archives, the outer archive.
	name    string
	reports []*report

	// outerSource and nested are set for an archive of archives; outer is
	// filled in once the outer tarball is extracted.
	outerSource string
	nested      []string
	outer       *report
}

func invalidTarget(msg string) error {
	return sosErrors.New(sosErrors.ErrCodeCleaner, "invalid target: "+msg)
}

// identify dispatches on the shape of p without extracting anything.
func identify(p string) (*target, error) {
	fi, err := os.Stat(p)
	if os.IsNotExist(err) {
		return nil, invalidTarget("no such file or directory " + p)
	}
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to inspect target", err)
	}
	if fi.IsDir() {
		return identifyDir(p)
	}
	return identifyTarball(p)
}

func identifyDir(dir string) (*target, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to read target directory", err)
	}
	t := &target{name: filepath.Base(filepath.Clean(dir))}
	for _, e := range entries {
		switch {
		case e.Name() == logsDir && e.IsDir():
			t.reports = append(t.reports, &report{Source: dir, Name: t.name, Root: dir, InPlace: true})
		case !e.IsDir() && isReportTarball(e.Name()):
			t.reports = append(t.reports, &report{Source: filepath.Join(dir, e.Name())})
		}
	}
	if len(t.reports) == 0 {
		return nil, invalidTarget(dir + " is not an sos directory")
	}
	return t, nil
}

func identifyTarball(p string) (*target, error) {
	if !archive.IsTarball(p) {
		return nil, invalidTarget(p + " is neither a tarball nor a directory")
	}
	members, err := archive.ListMembers(p)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeCleaner, "failed to list "+p, err)
	}
	for _, m := range members {
		if _, err := archive.CleanPath(m); errors.Is(err, archive.ErrPathTraversal) || strings.HasPrefix(m, "/") {
			return nil, sosErrors.Wrap(sosErrors.ErrCodeCleaner, "refusing to extract "+filepath.Base(p),
				fmt.Errorf("%w: member %q", archive.ErrPathTraversal, m))
		}
	}
	top := topLevel(members)
	t := &target{name: top}

	var hasLogs bool
	for _, m := range members {
		rel, ok := strings.CutPrefix(strings.TrimSuffix(path.Clean(m), "/"), top+"/")
		if !ok {
			continue
		}
		if !strings.Contains(rel, "/") && isReportTarball(rel) {
			t.nested = append(t.nested, rel)
		}
		if rel == logsDir || strings.HasPrefix(rel, logsDir+"/") {
			hasLogs = true
		}
	}
	switch {
	case len(t.nested) > 0:
		t.outerSource = p
	case hasLogs:
		t.reports = []*report{{Source: p, Name: top}}
	default:
		return nil, invalidTarget(p + " is not an sos archive")
	}
	return t, nil
}

func topLevel(members []string) string {
	for _, m := range members {
		if top := strings.SplitN(path.Clean(m), "/", 2)[0]; top != "" && top != "." {
			return top
		}
	}
	return ""
}

var tarballExts = map[string]bool{"": true, ".gz": true, ".xz": true, ".zst": true, ".bz2": true}

// isReportTarball matches sosreport-*.tar[.ext] but not checksum siblings.
func isReportTarball(name string) bool {
	if !strings.HasPrefix(name, reportPrefix) {
		return false
	}
	_, ext, ok := strings.Cut(name, ".tar")
	return ok && tarballExts[ext]
}

// tarballName strips the .tar suffix and anything after it.
func tarballName(p string) string {
	name, _, _ := strings.Cut(filepath.Base(p), ".tar")
	return name
}

func (r *report) String() string {
	if r.Name != "" {
		return r.Name
	}
	return tarballName(r.Source)
}

func extractError(src string, err error) error {
	name := filepath.Base(src)
	if sosErrors.IsFatalFS(err) {
		return sosErrors.AsFatalFS("failed to extract "+name, err)
	}
	return sosErrors.Wrap(sosErrors.ErrCodeCleaner, fmt.Sprintf("failed to extract %s", name), err)
}
