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
	"path"
	"strings"

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/policy/file"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "ssh",
		Description: "Secure shell service",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileServices, ProfileSecurity, ProfileSystem, ProfileIdentity},
		Options: []plugin.OptionSpec{
			{Name: "userconfs", Description: "changes whether module collects user .ssh configs", Type: plugin.OptionBool, Default: true},
		},
		Setup: setupSSH,
	})
}

func setupSSH(ctx context.Context, c *plugin.Context) error {
	confs := []string{"/etc/ssh/ssh_config", "/etc/ssh/sshd_config", "/etc/ssh/sshd_config.d/*", "/etc/ssh/ssh_config.d/*"}
	c.AddCopy(ctx, confs...)

	// Include directives pull in further files
	for _, conf := range []string{"/etc/ssh/ssh_config", "/etc/ssh/sshd_config"} {
		for _, inc := range sshIncludes(c.HostPath(conf)) {
			c.AddCopy(ctx, inc)
		}
	}

	c.AddForbiddenPath("/etc/ssh/*_key", "/etc/ssh/*key*")
	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "ls -laZ /etc/ssh"},
		plugin.Command{Cmd: "sshd -T", Tags: []string{"sshd_test_mode"}},
	)

	if c.Options().Bool("userconfs") {
		for _, home := range userHomes(c.HostPath("/etc/passwd")) {
			c.AddCopy(ctx, path.Join(home, ".ssh/config"))
			c.AddCmdOutput(ctx, plugin.Command{Cmd: "ls -laZ " + path.Join(home, ".ssh")})
		}
	}
	return nil
}

func sshIncludes(conf string) []string {
	lines, err := file.NewParser().GetLines(conf)
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range lines {
		f := strings.Fields(line)
		if len(f) < 2 || !strings.EqualFold(f[0], "include") {
			continue
		}
		for _, inc := range f[1:] {
			if !strings.HasPrefix(inc, "/") {
				inc = path.Join("/etc/ssh", inc)
			}
			out = append(out, inc)
		}
	}
	return out
}

// userHomes returns home directories of interactive users in a passwd file.
func userHomes(passwd string) []string {
	lines, err := file.NewParser().GetLines(passwd)
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range lines {
		f := strings.Split(line, ":")
		if len(f) < 7 || f[5] == "" || f[5] == "/" {
			continue
		}
		if strings.HasSuffix(f[6], "nologin") || strings.HasSuffix(f[6], "false") {
			continue
		}
		out = append(out, f[5])
	}
	return out
}
