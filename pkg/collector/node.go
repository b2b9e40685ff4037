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

package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/NVIDIA/sos/pkg/archive"
	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/transport"
	"github.com/NVIDIA/sos/pkg/version"
)

// Node outcomes recorded in the manifest.
const (
	StatusCollected = "collected"
	StatusFailed    = "failed"
	// StatusExcluded marks hosts without a usable sos installation.
	StatusExcluded = "excluded"
)

var errNoSos = errors.New("sos is not installed or its version could not be determined")

// node is one host of a collect run.
type node struct {
	address string
	// label comes from the cluster profile.
	label string
	// nonRoot hosts need the archive made readable before retrieval.
	nonRoot bool

	t   transport.Transport
	log *slog.Logger
	ui  *slog.Logger

	policy  *policy.Static
	version version.Version
	// plugins maps every plugin known to the host to its enabled state.
	plugins map[string]bool
	presets map[string]bool

	remotePath string
	checksum   string
	localPath  string
}

func (n *node) short(ctx context.Context, cmd string, root bool) (*transport.Result, error) {
	return n.t.Run(ctx, cmd, transport.RunOptions{Timeout: defaults.CollectorCommandTimeout, NeedRoot: root})
}

// profile gathers the facts used to build the report command.
func (n *node) profile(ctx context.Context) error {
	host := n.t.Hostname()
	if host == "" {
		host = n.address
	}
	n.policy = &policy.Static{Host: host}
	if data, err := n.t.ReadFile(ctx, "/etc/os-release"); err == nil {
		if rel, perr := policy.ParseOSRelease(data); perr == nil {
			n.policy = policy.FromOSRelease(rel, host)
		}
	} else {
		n.log.Debug("failed to read os-release", "error", err)
	}

	res, err := n.short(ctx, "sos --version", false)
	if err != nil {
		return err
	}
	if res.Status != 0 {
		n.log.Debug("sos version query failed", "status", res.Status, "output", firstLine(res.Stdout))
		return errNoSos
	}
	v, err := version.FromOutput(res.Stdout)
	if err != nil {
		return errNoSos
	}
	n.version = v

	res, err = n.short(ctx, n.sosBinary()+" -l", true)
	if err != nil {
		return err
	}
	n.plugins = parsePluginList(res.Stdout)
	if len(n.plugins) == 0 {
		n.log.Warn("no plugins reported by host", "status", res.Status)
	}

	n.presets = map[string]bool{}
	if v.AtLeast("3.6") {
		res, err = n.short(ctx, n.sosBinary()+" --list-presets", true)
		if err != nil {
			return err
		}
		n.presets = parsePresetList(res.Stdout)
	}
	n.log.Debug("profiled host", "hostname", host, "policy", n.policy.Name(),
		"sos_version", v.String(), "plugins", len(n.plugins), "presets", len(n.presets))
	return nil
}

func (n *node) sosBinary() string {
	if n.version.AtLeast("4.0") {
		return "sos report"
	}
	return "sosreport"
}

func (n *node) supports(minimum, opt string) bool {
	if n.version.AtLeast(minimum) {
		return true
	}
	n.log.Debug("option not supported by sos on host", "option", opt,
		"sos_version", n.version.String(), "required", minimum)
	return false
}

// supportsNamespaces covers 4.3 and the 4.2-13 backport.
func (n *node) supportsNamespaces() bool {
	v := n.version
	if v.AtLeast("4.3") {
		return true
	}
	if v.Major == 4 && v.Minor == 2 {
		rel, _, _ := strings.Cut(strings.TrimLeft(v.Extras, "-~+"), ".")
		if r, err := strconv.Atoi(rel); err == nil && r >= 13 {
			return true
		}
	}
	n.log.Debug("container runtime option not supported by sos on host", "sos_version", v.String())
	return false
}

// command builds the report command line for the host, passing only the
// options its sos version understands and only plugins it knows.
func (n *node) command(ro *config.ReportOptions, pluginOpts map[string]map[string]string) string {
	args := []string{n.sosBinary(), "--batch"}

	if label := joinLabel(n.label, ro.Label); label != "" {
		if n.version.AtLeast("3.6") {
			args = append(args, "--label="+transport.Quote(label))
		} else {
			args = append(args, "--name="+transport.Quote(label))
		}
	}
	if ro.CaseID != "" {
		args = append(args, "--case-id="+transport.Quote(ro.CaseID))
	}
	if ro.Threads > 0 && ro.Threads != defaults.Threads && n.supports("3.6", "threads") {
		args = append(args, "--threads="+strconv.Itoa(ro.Threads))
	}
	if ro.PluginTimeout > 0 && ro.PluginTimeout != int(defaults.PluginTimeout.Seconds()) &&
		n.supports("3.7", "plugin-timeout") {
		args = append(args, "--plugin-timeout="+strconv.Itoa(ro.PluginTimeout))
	}
	if ro.AllowSystemChanges && n.supports("3.8", "allow-system-changes") {
		args = append(args, "--allow-system-changes")
	}
	if ro.NoEnvVars && n.supports("3.8", "no-env-vars") {
		args = append(args, "--no-env-vars")
	}
	if ro.Since != "" && n.supports("3.8", "since") {
		args = append(args, "--since="+transport.Quote(ro.Since))
	}
	if len(ro.SkipCommands) > 0 && n.supports("4.1", "skip-commands") {
		args = append(args, "--skip-commands="+transport.Quote(strings.Join(ro.SkipCommands, ",")))
	}
	if len(ro.SkipFiles) > 0 && n.supports("4.1", "skip-files") {
		args = append(args, "--skip-files="+transport.Quote(strings.Join(ro.SkipFiles, ",")))
	}
	if ro.CmdTimeout > 0 && ro.CmdTimeout != int(defaults.CommandTimeout.Seconds()) &&
		n.supports("4.2", "cmd-timeout") {
		args = append(args, "--cmd-timeout="+strconv.Itoa(ro.CmdTimeout))
	}
	if ro.ContainerRuntime != "" && ro.ContainerRuntime != "auto" && n.supportsNamespaces() {
		args = append(args, "--container-runtime="+transport.Quote(ro.ContainerRuntime))
	}
	if ro.LogSize > 0 && ro.LogSize != defaults.LogSizeMiB {
		args = append(args, "--log-size="+strconv.Itoa(ro.LogSize))
	}
	if ro.AllLogs {
		args = append(args, "--all-logs")
	}
	if ro.Compression != "" && ro.Compression != "auto" {
		args = append(args, "-z", transport.Quote(ro.Compression))
	}
	if len(ro.Profiles) > 0 {
		args = append(args, "--profiles="+transport.Quote(strings.Join(ro.Profiles, ",")))
	}

	if kopts := n.pluginOptions(pluginOpts); len(kopts) > 0 {
		args = append(args, "-k", transport.Quote(strings.Join(kopts, ",")))
	}
	if ro.Preset != "" {
		if n.presets[ro.Preset] {
			args = append(args, "--preset="+transport.Quote(ro.Preset))
		} else {
			n.log.Debug("preset not available on host", "preset", ro.Preset)
		}
	}

	if only := flatten(ro.OnlyPlugins); len(only) > 0 {
		var keep []string
		for _, p := range only {
			if _, ok := n.plugins[p]; ok {
				keep = append(keep, p)
			}
		}
		if len(keep) > 0 {
			args = append(args, "--only-plugins="+strings.Join(keep, ","))
		}
		return strings.Join(args, " ")
	}

	skip := flatten(ro.SkipPlugins)
	var skipOn []string
	for _, p := range skip {
		if n.plugins[p] {
			skipOn = append(skipOn, p)
		}
	}
	if len(skipOn) > 0 {
		args = append(args, "--skip-plugins="+strings.Join(skipOn, ","))
	}
	var enable []string
	for _, p := range flatten(ro.EnablePlugins) {
		enabled, known := n.plugins[p]
		if known && !enabled && !slices.Contains(skip, p) {
			enable = append(enable, p)
		}
	}
	if len(enable) > 0 {
		args = append(args, "--enable-plugins="+strings.Join(enable, ","))
	}
	return strings.Join(args, " ")
}

func (n *node) pluginOptions(opts map[string]map[string]string) []string {
	plugins := make([]string, 0, len(opts))
	for p := range opts {
		if _, ok := n.plugins[p]; ok {
			plugins = append(plugins, p)
		} else {
			n.log.Debug("dropping options for plugin unknown to host", "plugin", p)
		}
	}
	sort.Strings(plugins)
	var out []string
	for _, p := range plugins {
		names := make([]string, 0, len(opts[p]))
		for o := range opts[p] {
			names = append(names, o)
		}
		sort.Strings(names)
		for _, o := range names {
			out = append(out, fmt.Sprintf("%s.%s=%s", p, o, opts[p][o]))
		}
	}
	return out
}

// run executes the report command and records where the archive landed.
func (n *node) run(ctx context.Context, cmd string, timeout time.Duration) error {
	res, err := n.t.Run(ctx, cmd, transport.RunOptions{Timeout: timeout, NeedRoot: true})
	if err != nil {
		return err
	}
	if res.TimedOut {
		return fmt.Errorf("timeout of %s exceeded", timeout)
	}
	if res.Status != 0 {
		return errors.New(failureReason(res.Status, res.Stdout))
	}
	n.remotePath, n.checksum = parseReportOutput(res.Stdout)
	if n.remotePath == "" {
		return errors.New("unable to determine path of sos archive")
	}
	return nil
}

// retrieve copies the archive into dir and verifies its checksum, then
// removes the remote copy.
func (n *node) retrieve(ctx context.Context, dir string) error {
	algo := n.policy.HashAlgorithm()
	if n.nonRoot {
		cmd := "chmod o+r " + transport.Quote(n.remotePath)
		if res, err := n.short(ctx, cmd, true); err != nil || res.Status != 0 {
			n.log.Warn("failed to make archive readable", "path", n.remotePath, "error", err)
		}
	}
	if n.checksum == "" {
		if data, err := n.t.ReadFile(ctx, n.remotePath+"."+algo); err == nil {
			n.checksum = strings.TrimSpace(strings.SplitN(string(data), " ", 2)[0])
		}
	}

	local := filepath.Join(dir, path.Base(n.remotePath))
	if err := n.t.CopyFrom(ctx, n.remotePath, local); err != nil {
		_ = os.Remove(local)
		return fmt.Errorf("failed to retrieve %s: %w", n.remotePath, err)
	}
	sum, err := archive.HashFile(local, algo)
	if err != nil {
		_ = os.Remove(local)
		return fmt.Errorf("failed to checksum %s: %w", local, err)
	}
	if n.checksum != "" && !strings.EqualFold(sum, n.checksum) {
		_ = os.Remove(local)
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", path.Base(n.remotePath), n.checksum, sum)
	}
	n.checksum = sum
	n.localPath = local

	rm := "rm -f " + transport.Quote(n.remotePath) + " " + transport.Quote(n.remotePath+"."+algo)
	if res, err := n.short(ctx, rm, true); err != nil || res.Status != 0 {
		n.log.Warn("failed to remove archive from host", "path", n.remotePath, "error", err)
	}
	return nil
}

// failureReason turns a failed report run into a message for the operator.
func failureReason(status int, out string) string {
	switch {
	case status == -1:
		return "sos report process received SIGKILL on node"
	case status == 1 && strings.Contains(out, "sudo"):
		return "sudo attempt failed"
	case status == 127:
		return "sos report terminated unexpectedly. Check disk space"
	}
	if l := firstLine(out); l != "" {
		return l
	}
	return fmt.Sprintf("sos report exited with status %d", status)
}

// parseReportOutput finds the archive path and checksum in the output of
// a report run.
func parseReportOutput(out string) (string, string) {
	var archivePath, sum string
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case archivePath == "" && strings.Contains(trimmed, "sosreport-") &&
			strings.Contains(trimmed, "tar") && !strings.ContainsAny(trimmed, " \t"):
			archivePath = trimmed
		case strings.HasPrefix(trimmed, "The checksum is: "):
			sum = strings.TrimSpace(strings.TrimPrefix(trimmed, "The checksum is: "))
		case strings.HasPrefix(line, " ") && strings.Contains(trimmed, "\t"):
			algo, value, _ := strings.Cut(trimmed, "\t")
			if isHashName(algo) {
				sum = strings.TrimSpace(value)
			}
		}
	}
	return archivePath, sum
}

func isHashName(s string) bool {
	switch s {
	case "md5", "sha1", "sha256", "sha512":
		return true
	}
	return false
}

// parsePluginList reads the enabled and disabled tables of "sos report -l".
func parsePluginList(out string) map[string]bool {
	plugins := make(map[string]bool)
	section := ""
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "currently enabled"):
			section = "enabled"
		case strings.Contains(line, "currently disabled"):
			section = "disabled"
		case strings.Contains(line, "options are available"):
			section = ""
		case section != "" && strings.HasPrefix(line, " "):
			if f := strings.Fields(line); len(f) > 0 {
				plugins[f[0]] = section == "enabled"
			}
		}
	}
	return plugins
}

// parsePresetList reads the "name:" lines of "sos report --list-presets".
func parsePresetList(out string) map[string]bool {
	presets := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "name:"); ok {
			if v = strings.TrimSpace(v); v != "" {
				presets[v] = true
			}
		}
	}
	return presets
}

func joinLabel(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "-")
}

// flatten splits comma separated entries of list.
func flatten(list []string) []string {
	var out []string
	for _, item := range list {
		for _, p := range strings.Split(item, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func firstLine(s string) string {
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}
