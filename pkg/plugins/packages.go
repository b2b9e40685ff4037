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
		Name:        "apt",
		Description: "APT - advanced packaging tool",
		Families:    []string{policy.FamilyDebian, policy.FamilyUbuntu},
		Profiles:    []string{ProfileSystem, ProfilePackages},
		Trigger:     plugin.Trigger{Packages: []string{"apt"}, Commands: []string{"apt-get"}},
		Setup:       setupApt,
	})
	plugin.MustRegister(&plugin.Plugin{
		Name:        "dpkg",
		Description: "Debian package management",
		Families:    []string{policy.FamilyDebian, policy.FamilyUbuntu},
		Profiles:    []string{ProfileSystem, ProfilePackages},
		Trigger:     plugin.Trigger{Commands: []string{"dpkg"}},
		Setup: func(ctx context.Context, c *plugin.Context) error {
			c.AddCmdOutput(ctx,
				plugin.Command{Cmd: "dpkg -l", RootSymlink: "installed-debs", Tags: []string{"dpkg_l"}},
				plugin.Command{Cmd: "dpkg --audit"},
			)
			c.AddCopy(ctx, "/var/log/dpkg.log*", "/etc/dpkg")
			return nil
		},
	})
	plugin.MustRegister(&plugin.Plugin{
		Name:        "dnf",
		Description: "DNF package manager",
		Families:    []string{policy.FamilyRedHat},
		Profiles:    []string{ProfileSystem, ProfilePackages},
		Trigger:     plugin.Trigger{Packages: []string{"dnf"}, Commands: []string{"dnf"}},
		Options: []plugin.OptionSpec{
			{Name: "history", Description: "capture transaction history", Type: plugin.OptionBool, Default: false},
		},
		Setup: setupDnf,
	})
	plugin.MustRegister(&plugin.Plugin{
		Name:        "rpm",
		Description: "RPM package database",
		Families:    []string{policy.FamilyRedHat, policy.FamilySuse},
		Profiles:    []string{ProfileSystem, ProfilePackages},
		Trigger:     plugin.Trigger{Commands: []string{"rpm"}},
		Options: []plugin.OptionSpec{
			{Name: "rpmva", Description: "verify all packages (slow)", Type: plugin.OptionBool, Default: false},
		},
		Setup: func(ctx context.Context, c *plugin.Context) error {
			c.AddCmdOutput(ctx,
				plugin.Command{
					Cmd:             `rpm -qa --qf='%{NAME}-%{VERSION}-%{RELEASE}.%{ARCH}~~%{INSTALLTIME:date}\n'`,
					SuggestFilename: "package-data",
					RootSymlink:     "installed-rpms",
					Tags:            []string{"installed_rpms"},
				},
				plugin.Command{Cmd: `rpm -qa --qf='%{NAME}\t%{VERSION}-%{RELEASE}\t%{SIGPGP:pgpsig}\n'`, SuggestFilename: "rpm-signatures"},
			)
			if c.Options().Bool("rpmva") {
				c.AddCmdOutput(ctx, plugin.Command{Cmd: "rpm -Va", RootSymlink: "rpm-Va", Tags: []string{"rpm_va"}})
			}
			c.AddDirListing(ctx, []string{"/var/lib/rpm"}, false)
			return nil
		},
	})
}

func setupApt(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx, "/etc/apt", "/var/log/apt", "/var/lib/apt/lists/*_Release")
	c.AddForbiddenPath("/etc/apt/auth.conf", "/etc/apt/auth.conf.d")

	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "apt-get check"},
		plugin.Command{Cmd: "apt-config dump"},
		plugin.Command{Cmd: "apt-cache stats"},
		plugin.Command{Cmd: "apt-cache policy"},
		plugin.Command{Cmd: "apt-mark showhold"},
	)
	// credentials embedded in source URLs
	c.DoPathRegexSub(`/etc/apt/sources\.list.*`, `(https?://[^:/\s]+:)[^@\s]+@`, "${1}********@")
	return nil
}

func setupDnf(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx,
		"/etc/dnf",
		"/etc/yum.conf",
		"/etc/yum.repos.d",
		"/etc/yum/pluginconf.d",
		"/var/lib/dnf/modulefailsafe",
		"/var/log/dnf.log*",
		"/var/log/dnf.librepo.log*",
		"/var/log/dnf.rpm.log*",
	)
	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "dnf --version"},
		plugin.Command{Cmd: "dnf -C repolist", Tags: []string{"yum_repolist"}},
		plugin.Command{Cmd: "dnf -C repolist --verbose"},
		plugin.Command{Cmd: "dnf module list", Tags: []string{"dnf_module_list"}},
		plugin.Command{Cmd: "package-cleanup --dupes"},
		plugin.Command{Cmd: "package-cleanup --problems"},
	)
	if c.Options().Bool("history") {
		c.AddCmdOutput(ctx, plugin.Command{Cmd: "dnf history"})
	}
	c.DoPathRegexSub(`/etc/yum\.repos\.d/.*|/etc/dnf/.*\.conf`, `(?m)^(\s*(?:password|proxy_password)\s*=\s*).*$`, "${1}********")
	return nil
}
