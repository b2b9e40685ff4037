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
		Name:        "date",
		Description: "Basic system time information",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileSystem},
		Setup: func(ctx context.Context, c *plugin.Context) error {
			c.AddCmdOutput(ctx,
				plugin.Command{Cmd: "date", RootSymlink: "date", Tags: []string{"date"}},
				plugin.Command{Cmd: "date --utc", Tags: []string{"date_utc"}},
				plugin.Command{Cmd: "hwclock --show"},
				plugin.Command{Cmd: "timedatectl", Tags: []string{"timedatectl"}},
			)
			c.AddCopy(ctx, "/etc/localtime", "/etc/adjtime", "/etc/timezone", "/etc/chrony.conf", "/etc/ntp.conf")
			return nil
		},
	})
}
