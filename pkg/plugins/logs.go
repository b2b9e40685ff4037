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
	"strings"

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/policy/file"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "logs",
		Description: "System logs",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileSystem},
		Setup:       setupLogs,
	})
}

func setupLogs(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx,
		"/etc/syslog.conf",
		"/etc/rsyslog.conf",
		"/etc/rsyslog.d",
		"/etc/systemd/journald.conf",
		"/etc/systemd/journald.conf.d",
		"/run/log/journal",
		"/var/log/boot.log",
		"/var/log/dmesg",
		"/var/log/kern.log",
		"/var/log/cloud-init*",
	)
	c.AddCopySpec(ctx, plugin.CopySpec{
		Paths: []string{"/var/log/messages*", "/var/log/syslog*", "/var/log/secure*"},
		Tags:  []string{"var_log_messages"},
	})
	// rsyslog destinations other than the defaults above
	for _, dest := range syslogDestinations(c.HostPath("/etc/rsyslog.conf")) {
		c.AddCopy(ctx, dest)
	}

	c.AddCmdOutput(ctx, plugin.Command{Cmd: "journalctl --disk-usage"})
	c.AddJournal(ctx, plugin.Journal{Boot: "this", Tags: []string{"journal_since_boot"}})
	c.AddJournal(ctx, plugin.Journal{Boot: "-1", Tags: []string{"journal_last_boot"}})
	c.AddJournal(ctx, plugin.Journal{Output: "verbose", Lines: 1000, AllFields: true})

	if !c.Env().AllLogs {
		c.AddForbiddenPath("/var/log/journal")
	} else {
		c.AddCopy(ctx, "/var/log/journal")
	}
	return nil
}

// syslogDestinations returns files rsyslog writes to, from legacy
// "selector /path" rules.
func syslogDestinations(conf string) []string {
	lines, err := file.NewParser().GetLines(conf)
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range lines {
		f := strings.Fields(line)
		if len(f) != 2 || strings.HasPrefix(f[0], "$") {
			continue
		}
		dest := strings.TrimPrefix(f[1], "-")
		if strings.HasPrefix(dest, "/var/log/") {
			out = append(out, dest+"*")
		}
	}
	return out
}
