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

package plugins

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/policy/file"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "kernel",
		Description: "Linux kernel",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileSystem, ProfileHardware},
		Options: []plugin.OptionSpec{
			{Name: "with-timer", Description: "gather /proc/timer* statistics", Type: plugin.OptionBool, Default: false},
			{Name: "trace", Description: "gather /sys/kernel/debug/tracing/trace file", Type: plugin.OptionBool, Default: false},
		},
		Setup: setupKernel,
	})
}

func setupKernel(ctx context.Context, c *plugin.Context) error {
	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "uname -a", RootSymlink: "uname", Tags: []string{"uname"}},
		plugin.Command{Cmd: "lsmod", RootSymlink: "lsmod", Tags: []string{"lsmod"}},
		plugin.Command{Cmd: "dmesg", Tags: []string{"dmesg"}},
		plugin.Command{Cmd: "dmesg -T"},
		plugin.Command{Cmd: "sysctl -a"},
		plugin.Command{Cmd: "dkms status"},
	)

	if mods := loadedModules(c.HostPath("/proc/modules")); len(mods) > 0 {
		c.AddCmdOutput(ctx, plugin.Command{
			Cmd:             "modinfo " + strings.Join(mods, " "),
			SuggestFilename: "modinfo_ALL_MODULES",
		})
	}

	// network sysctls are collected by the networking plugin
	c.AddForbiddenPath(
		"/proc/sys/net",
		"/proc/sys/kernel/random/boot_id",
		"/sys/kernel/debug/tracing/trace_pipe",
	)

	c.AddCopy(ctx,
		"/proc/modules",
		"/proc/sys/kernel",
		"/proc/sys/vm",
		"/proc/sys/fs",
		"/proc/cmdline",
		"/proc/version",
		"/proc/version_signature",
		"/proc/driver",
		"/proc/softirqs",
		"/proc/interrupts",
		"/proc/lock_stat",
		"/proc/misc",
		"/sys/module/*/parameters",
		"/sys/module/*/initstate",
		"/sys/module/*/refcnt",
		"/sys/module/*/taint",
		"/sys/module/*/version",
		"/etc/conf.modules",
		"/etc/modules.conf",
		"/etc/modprobe.conf",
		"/etc/modprobe.d",
		"/etc/modules-load.d",
		"/etc/sysctl.conf",
		"/etc/sysctl.d",
		"/lib/modules/*/modules.dep",
		"/sys/kernel/debug/tracing/tracing_on",
		"/sys/kernel/debug/tracing/current_tracer",
		"/sys/kernel/debug/tracing/available_tracers",
	)

	if c.Options().Bool("with-timer") {
		c.AddCopy(ctx, "/proc/timer_list", "/proc/timer_stats")
	}
	if c.Options().Bool("trace") {
		c.AddCopy(ctx, "/sys/kernel/debug/tracing/trace")
	}

	if t, err := taintFlags(c.HostPath("/proc/sys/kernel/tainted")); err == nil && t != 0 {
		c.AddAlert(fmt.Sprintf("kernel is tainted (flags %d): %s", t, strings.Join(taintReasons(t), ", ")))
	}
	return nil
}

// loadedModules reads module names from a /proc/modules listing.
func loadedModules(path string) []string {
	mods, err := file.NewParser(file.WithFields()).GetMap(path)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(mods))
	for name := range mods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func taintFlags(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

var taintNames = []string{
	"proprietary module",
	"module force loaded",
	"kernel running on out of spec system",
	"module force unloaded",
	"processor reported MCE",
	"bad page referenced",
	"taint requested by userspace",
	"kernel died recently",
	"ACPI table overridden",
	"kernel issued warning",
	"staging driver loaded",
	"firmware workaround applied",
	"externally built module loaded",
	"unsigned module loaded",
	"soft lockup occurred",
	"kernel live patched",
	"auxiliary taint",
	"struct randomization plugin",
	"in-kernel test",
}

func taintReasons(flags uint64) []string {
	var out []string
	for i, name := range taintNames {
		if flags&(1<<uint(i)) != 0 {
			out = append(out, name)
		}
	}
	return out
}
