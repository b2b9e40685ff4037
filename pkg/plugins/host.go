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

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "host",
		Description: "Host information",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileSystem},
		Setup:       setupHost,
	})
}

func setupHost(ctx context.Context, c *plugin.Context) error {
	c.AddForbiddenPath("/etc/sos/cleaner")

	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "hostname", RootSymlink: "hostname", Tags: []string{"hostname_default"}},
		plugin.Command{Cmd: "hostname -f", Tags: []string{"hostname"}},
		plugin.Command{Cmd: "uptime", RootSymlink: "uptime", Tags: []string{"uptime"}},
		plugin.Command{Cmd: "hostnamectl status"},
		plugin.Command{Cmd: "findmnt"},
		plugin.Command{Cmd: "hostid"},
	)
	c.AddCopy(ctx,
		"/etc/sos/sos.conf",
		"/etc/hostname",
		"/etc/hostid",
		"/etc/machine-id",
		"/etc/host.conf",
		"/etc/os-release",
		"/proc/sys/kernel/hostname",
	)
	c.AddEnvVar("REMOTEHOST", "TERM", "COLORTERM")
	return nil
}
