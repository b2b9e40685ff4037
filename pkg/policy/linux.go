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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/NVIDIA/sos/pkg/policy/file"
)

// Runner executes a host command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Linux is the Policy of a running Linux host, optionally inspected
// through a sysroot.
type Linux struct {
	root     string
	release  map[string]string
	name     string
	families []string
	host     string
	arch     string
	run      Runner
	services serviceSource

	pkgOnce sync.Once
	pkgs    map[string]string

	modOnce sync.Once
	mods    map[string]bool

	svcOnce sync.Once
	units   map[string]unitState
}

var _ Policy = (*Linux)(nil)

// LinuxOption configures a Linux policy.
type LinuxOption func(*Linux)

// WithSysroot inspects the filesystem mounted at root instead of "/".
func WithSysroot(root string) LinuxOption {
	return func(l *Linux) {
		if root != "" {
			l.root = root
		}
	}
}

// WithRunner replaces command execution, used by tests.
func WithRunner(r Runner) LinuxOption {
	return func(l *Linux) { l.run = r }
}

// withServiceSource replaces the systemd lookup, used by tests.
func withServiceSource(s serviceSource) LinuxOption {
	return func(l *Linux) { l.services = s }
}

// NewLinux detects the distribution from os-release under the sysroot.
func NewLinux(opts ...LinuxOption) (*Linux, error) {
	l := &Linux{root: "/", run: execRunner}
	for _, o := range opts {
		o(l)
	}
	if l.services == nil {
		l.services = &dbusServices{run: l.run}
	}

	rel, err := ReadOSRelease(l.root)
	if err != nil {
		return nil, err
	}
	l.release = rel
	l.name, l.families = familiesFor(rel["ID"], strings.Fields(rel["ID_LIKE"]))
	l.host = l.readHostname()
	l.arch = machineArch()
	return l, nil
}

var (
	filePathReleasePrimary  = "etc/os-release"
	filePathReleaseFallback = "usr/lib/os-release"
)

// ReadOSRelease parses os-release beneath root, falling back to
// /usr/lib/os-release per freedesktop.org.
func ReadOSRelease(root string) (map[string]string, error) {
	p := filepath.Join(root, filePathReleasePrimary)
	if _, err := os.Stat(p); os.IsNotExist(err) {
		p = filepath.Join(root, filePathReleaseFallback)
	}
	rel, err := releaseParser().GetMap(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read os release from %s: %w", p, err)
	}
	return rel, nil
}

// ParseOSRelease parses os-release content gathered from a remote host.
func ParseOSRelease(content []byte) (map[string]string, error) {
	return releaseParser().Map(content)
}

func releaseParser() *file.Parser {
	return file.NewParser(
		file.WithKVDelimiter("="),
		file.WithVTrimChars(`"'`),
		file.WithSkipEmptyValues(true),
	)
}

// FromOSRelease builds a Static policy from os-release fields.
func FromOSRelease(rel map[string]string, host string) *Static {
	name, fams := familiesFor(rel["ID"], strings.Fields(rel["ID_LIKE"]))
	return &Static{
		PolicyName: name,
		DistroName: distroName(rel),
		Version:    rel["VERSION_ID"],
		FamilyList: fams,
		Host:       host,
		UploadURL:  uploadURLs[name],
	}
}

func distroName(rel map[string]string) string {
	if n := rel["PRETTY_NAME"]; n != "" {
		return n
	}
	if n := rel["NAME"]; n != "" {
		return n
	}
	return "Linux"
}

func (l *Linux) readHostname() string {
	if l.root == "/" {
		if h, err := os.Hostname(); err == nil {
			return h
		}
	}
	b, err := os.ReadFile(filepath.Join(l.root, "etc/hostname"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func machineArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	case "386":
		return "i686"
	default:
		return runtime.GOARCH
	}
}

func (l *Linux) Name() string             { return l.name }
func (l *Linux) Distro() string           { return distroName(l.release) }
func (l *Linux) Release() string          { return l.release["VERSION_ID"] }
func (l *Linux) Families() []string       { return l.families }
func (l *Linux) HashAlgorithm() string    { return "sha256" }
func (l *Linux) Sysroot() string          { return l.root }
func (l *Linux) Hostname() string         { return l.host }
func (l *Linux) Arch() string             { return l.arch }
func (l *Linux) DefaultUploadURL() string { return uploadURLs[l.name] }

// PackageVersion returns the installed version of a package.
func (l *Linux) PackageVersion(ctx context.Context, name string) (string, bool) {
	l.pkgOnce.Do(func() {
		pkgs, err := l.loadPackages(ctx)
		if err != nil {
			slog.Debug("failed to query packages", "error", err)
		}
		l.pkgs = pkgs
	})
	v, ok := l.pkgs[name]
	return v, ok
}

// Packages returns a copy of the installed package list.
func (l *Linux) Packages(ctx context.Context) map[string]string {
	l.PackageVersion(ctx, "")
	out := make(map[string]string, len(l.pkgs))
	for k, v := range l.pkgs {
		out[k] = v
	}
	return out
}

// KernelModuleLoaded reports whether a module is loaded or built in.
func (l *Linux) KernelModuleLoaded(_ context.Context, name string) bool {
	l.modOnce.Do(func() {
		l.mods = l.loadModules()
	})
	return l.mods[strings.ReplaceAll(name, "-", "_")]
}

// ServiceRunning reports whether the unit's ActiveState is active.
func (l *Linux) ServiceRunning(ctx context.Context, name string) bool {
	return l.unit(ctx, name).active
}

// ServiceEnabled reports whether the unit file is enabled.
func (l *Linux) ServiceEnabled(ctx context.Context, name string) bool {
	return l.unit(ctx, name).enabled
}

func (l *Linux) unit(ctx context.Context, name string) unitState {
	l.svcOnce.Do(func() {
		units, err := l.services.units(ctx)
		if err != nil {
			slog.Debug("failed to list systemd units", "error", err)
		}
		l.units = units
	})
	return l.units[unitName(name)]
}
