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

package policy

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/sos/pkg/policy/file"
)

var (
	dpkgStatusPath = "var/lib/dpkg/status"
	rpmDBPaths     = []string{"usr/lib/sysimage/rpm", "var/lib/rpm"}
)

// loadPackages queries the host package database: the dpkg status file is
// parsed directly, rpm databases are queried through the rpm binary.
func (l *Linux) loadPackages(ctx context.Context) (map[string]string, error) {
	if _, err := os.Stat(filepath.Join(l.root, dpkgStatusPath)); err == nil {
		f, err := os.Open(filepath.Join(l.root, dpkgStatusPath))
		if err != nil {
			return map[string]string{}, err
		}
		defer f.Close()
		return parseDpkgStatus(f), nil
	}
	for _, db := range rpmDBPaths {
		if _, err := os.Stat(filepath.Join(l.root, db)); err != nil {
			continue
		}
		out, err := l.run(ctx, "rpm", "--root", l.root, "-qa", "--queryformat", `%{NAME} %{VERSION}-%{RELEASE}\n`)
		if err != nil {
			return map[string]string{}, fmt.Errorf("rpm query failed: %w", err)
		}
		return ParsePackageList(out)
	}
	return map[string]string{}, fmt.Errorf("no supported package database under %s", l.root)
}

// ParsePackageList parses "name version" lines, as produced by the rpm
// query above or by "dpkg-query -W" on a remote host.
func ParsePackageList(out []byte) (map[string]string, error) {
	m, err := file.NewParser(file.WithFields(), file.WithMaxSize(64<<20)).Map(out)
	if err != nil {
		return map[string]string{}, err
	}
	return m, nil
}

func parseDpkgStatus(f *os.File) map[string]string {
	pkgs := make(map[string]string)
	var name, version string
	installed := false

	flush := func() {
		if name != "" && installed {
			pkgs[name] = version
		}
		name, version, installed = "", "", false
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "Package: "):
			name = strings.TrimPrefix(line, "Package: ")
		case strings.HasPrefix(line, "Version: "):
			version = strings.TrimPrefix(line, "Version: ")
		case strings.HasPrefix(line, "Status: "):
			installed = strings.HasSuffix(line, " installed")
		}
	}
	flush()
	return pkgs
}
