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
		Name:        "selinux",
		Description: "SELinux access control",
		Families:    []string{policy.FamilyRedHat},
		Profiles:    []string{ProfileSystem, ProfileSecurity},
		Trigger:     plugin.Trigger{Packages: []string{"libselinux"}, Files: []string{"/etc/selinux/config"}},
		Options: []plugin.OptionSpec{
			{Name: "fixfiles", Description: "collect incorrect file context labels", Type: plugin.OptionBool, Default: false},
		},
		Setup: setupSelinux,
	})
}

func setupSelinux(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx, "/etc/sestatus.conf", "/etc/selinux", "/var/lib/selinux")
	c.AddForbiddenPath("/etc/selinux/*/active", "/etc/selinux/*/modules", "/var/lib/selinux/*/active")

	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "sestatus", RootSymlink: "sestatus", Tags: []string{"sestatus"}},
		plugin.Command{Cmd: "getenforce", Tags: []string{"getenforce"}},
		plugin.Command{Cmd: "selinuxconlist root"},
		plugin.Command{Cmd: "selinuxexeccon /bin/passwd"},
		plugin.Command{Cmd: "semanage -o -"},
		plugin.Command{Cmd: "semodule -l", Tags: []string{"semodule_list"}},
		plugin.Command{Cmd: "ps axuZww"},
	)
	if c.Options().Bool("fixfiles") {
		c.AddCmdOutput(ctx, plugin.Command{Cmd: "restorecon -Rvn /", SizeLimit: 1})
	}
	return nil
}
