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
		Name:        "memory",
		Description: "Memory configuration and use",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileSystem, ProfileMemory, ProfileHardware},
		Setup:       setupMemory,
	})
}

func setupMemory(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx,
		"/proc/pci",
		"/proc/meminfo",
		"/proc/vmstat",
		"/proc/swaps",
		"/proc/slabinfo",
		"/proc/pagetypeinfo",
		"/proc/vmallocinfo",
		"/proc/buddyinfo",
		"/proc/zoneinfo",
		"/sys/kernel/mm/ksm",
		"/sys/kernel/mm/transparent_hugepage/enabled",
		"/sys/kernel/mm/hugepages",
		"/sys/kernel/mm/lru_gen/enabled",
	)
	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "free", RootSymlink: "free", Tags: []string{"free"}},
		plugin.Command{Cmd: "free -m"},
		plugin.Command{Cmd: "swapon --bytes --show"},
		plugin.Command{Cmd: "swapon --summary --verbose"},
		plugin.Command{Cmd: "lsmem -a -o RANGE,SIZE,STATE,REMOVABLE,ZONES,NODE,BLOCK"},
	)
	return nil
}
