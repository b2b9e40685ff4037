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
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/NVIDIA/sos/pkg/archive"
	"github.com/NVIDIA/sos/pkg/defaults"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/google/shlex"
)

// searchPath is used to locate commands under a sysroot.
var searchPath = []string{"/usr/local/sbin", "/usr/local/bin", "/usr/sbin", "/usr/bin", "/sbin", "/bin"}

// Env is the read-only execution context shared by every plugin of a run.
// Plugins never reach back into the engine; everything they need is here.
type Env struct {
	Policy  policy.Policy
	Archive *archive.Archive
	Logger  *slog.Logger
	Runner  CommandRunner

	// LogSize is the default per copy spec size limit in MiB.
	LogSize int64
	// AllLogs disables size limits on copy specs.
	AllLogs bool
	// Since drops rotated logs older than this time when non-zero.
	Since              time.Time
	AllowSystemChanges bool
	CmdTimeout         time.Duration
	// DryRun records operations without executing anything.
	DryRun       bool
	SkipCommands []string
	SkipFiles    []string
	NameMax      int
	// ContainerRuntime wraps commands that target a container.
	ContainerRuntime string
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) sysroot() string {
	if e.Policy == nil {
		return "/"
	}
	if r := e.Policy.Sysroot(); r != "" {
		return r
	}
	return "/"
}

func (e *Env) useSysroot() bool {
	return filepath.Clean(e.sysroot()) != "/"
}

// hostPath maps an absolute path on the inspected host to the local filesystem.
func (e *Env) hostPath(p string) string {
	if !e.useSysroot() {
		return p
	}
	return filepath.Join(e.sysroot(), p)
}

// stripSysroot maps a local path back to the path on the inspected host.
func (e *Env) stripSysroot(p string) string {
	if !e.useSysroot() {
		return p
	}
	root := filepath.Clean(e.sysroot())
	if p == root {
		return "/"
	}
	if strings.HasPrefix(p, root+"/") {
		return p[len(root):]
	}
	return p
}

func (e *Env) nameMax() int {
	if e.NameMax > 0 {
		return e.NameMax
	}
	return defaults.NameMax
}

func (e *Env) logSizeBytes() int64 {
	if e.LogSize > 0 {
		return e.LogSize * 1024 * 1024
	}
	return defaults.LogSizeMiB * 1024 * 1024
}

func (e *Env) commandTimeout() time.Duration {
	if e.CmdTimeout > 0 {
		return e.CmdTimeout
	}
	return defaults.CommandTimeout
}

func (e *Env) commandExists(name string) bool {
	if strings.Contains(name, "/") {
		info, err := os.Stat(e.hostPath(name))
		return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
	}
	if !e.useSysroot() {
		_, err := exec.LookPath(name)
		return err == nil
	}
	for _, dir := range searchPath {
		info, err := os.Stat(e.hostPath(filepath.Join(dir, name)))
		if err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return true
		}
	}
	return false
}

func (e *Env) cmdOutputMatches(ctx context.Context, c CmdOutput) bool {
	if e.Runner == nil {
		return false
	}
	argv, err := shlex.Split(c.Cmd)
	if err != nil || len(argv) == 0 {
		return false
	}
	res, err := e.Runner.Run(ctx, CommandRequest{
		Argv:    argv,
		Timeout: defaults.PredicateCommandTimeout,
		Chroot:  e.chrootDir(),
	})
	if err != nil || res.Status != 0 {
		return false
	}
	return strings.Contains(string(res.Output), c.Output)
}

func (e *Env) chrootDir() string {
	if e.useSysroot() {
		return e.sysroot()
	}
	return ""
}
