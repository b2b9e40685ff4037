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
	"sort"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/gobwas/glob"

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "systemd",
		Description: "System management daemon",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileSystem, ProfileServices, ProfileBoot},
		Trigger:     plugin.Trigger{Commands: []string{"systemctl"}, Files: []string{"/run/systemd/system"}},
		Options: []plugin.OptionSpec{
			{Name: "units", Description: "units whose D-Bus properties are dumped", Type: plugin.OptionList, Default: []string{}},
		},
		Setup: setupSystemd,
	})
}

// unitPropertyKeys are left out of property dumps, as noise or because
// they may carry credentials.
var unitPropertyKeys = []string{
	"AllowedCPUs",
	"AllowedMemoryNodes",
	"Asserts",
	"BPFProgram",
	"BusName",
	"Id",
	"*Credential*",
}

// unitProperties fetches all properties of a unit.
var unitProperties = func(ctx context.Context, unit string) (map[string]any, error) {
	conn, err := dbus.NewSystemdConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()
	return conn.GetAllPropertiesContext(ctx, unit)
}

func setupSystemd(ctx context.Context, c *plugin.Context) error {
	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "systemctl status --all --no-pager", Tags: []string{"systemctl_status_all"}},
		plugin.Command{Cmd: "systemctl show --all --no-pager", Tags: []string{"systemctl_show_all_services"}},
		plugin.Command{Cmd: "systemctl show *service --all --no-pager"},
		plugin.Command{Cmd: "systemctl list-units --no-pager", Tags: []string{"systemctl_list_units"}},
		plugin.Command{Cmd: "systemctl list-units --failed --no-pager", Tags: []string{"systemctl_list_units_failed"}},
		plugin.Command{Cmd: "systemctl list-unit-files --no-pager", Tags: []string{"systemctl_list_unit_files"}},
		plugin.Command{Cmd: "systemctl list-jobs --no-pager"},
		plugin.Command{Cmd: "systemctl list-dependencies --no-pager"},
		plugin.Command{Cmd: "systemctl list-timers --all --no-pager"},
		plugin.Command{Cmd: "systemctl list-machines --no-pager"},
		plugin.Command{Cmd: "systemctl show-environment --no-pager"},
		plugin.Command{Cmd: "systemd-delta --no-pager", Tags: []string{"systemd_delta"}},
		plugin.Command{Cmd: "systemd-analyze --no-pager"},
		plugin.Command{Cmd: "systemd-analyze blame --no-pager"},
		plugin.Command{Cmd: "systemd-analyze dump --no-pager"},
		plugin.Command{Cmd: "systemd-inhibit --list --no-pager"},
		plugin.Command{Cmd: "journalctl --list-boots --no-pager"},
		plugin.Command{Cmd: "ls -lR /lib/systemd"},
		plugin.Command{Cmd: "timedatectl"},
	)
	c.AddCopy(ctx,
		"/etc/systemd",
		"/lib/systemd/system",
		"/lib/systemd/user",
		"/etc/vconsole.conf",
		"/run/systemd/generator*",
		"/run/systemd/seats",
		"/run/systemd/sessions",
		"/run/systemd/system",
		"/run/systemd/users",
		"/etc/modules-load.d/*.conf",
		"/etc/yum/protected.d/systemd.conf",
		"/etc/tmpfiles.d/*.conf",
		"/run/tmpfiles.d/*.conf",
		"/usr/lib/tmpfiles.d/*.conf",
	)
	c.AddForbiddenPath("/dev/null")

	if c.Env().DryRun {
		return nil
	}
	for _, unit := range c.Options().List("units") {
		props, err := unitProperties(ctx, unit)
		if err != nil {
			c.Logger().Warn("failed to read unit properties", "unit", unit, "error", err)
			continue
		}
		c.AddStringAsFile(ctx, formatUnitProperties(props, unitPropertyKeys), unit+".properties")
	}
	return nil
}

// formatUnitProperties renders properties as sorted Key=Value lines,
// leaving out keys matching any of the exclude globs.
func formatUnitProperties(props map[string]any, exclude []string) string {
	globs := make([]glob.Glob, 0, len(exclude))
	for _, e := range exclude {
		if g, err := glob.Compile(e); err == nil {
			globs = append(globs, g)
		}
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		excluded := false
		for _, g := range globs {
			if g.Match(k) {
				excluded = true
				break
			}
		}
		if !excluded {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%v\n", k, props[k])
	}
	return sb.String()
}
