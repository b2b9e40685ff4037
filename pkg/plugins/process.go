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
	"strconv"
	"time"

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "process",
		Description: "Process information",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileSystem},
		Options: []plugin.OptionSpec{
			{Name: "lsof", Description: "gather information on all open files", Type: plugin.OptionBool, Default: true},
			{Name: "lsof-threads", Description: "gather threads' open file info if supported", Type: plugin.OptionBool, Default: false},
			{Name: "smaps", Description: "gather all process' smaps", Type: plugin.OptionBool, Default: false},
			{Name: "samples", Description: "number of iotop samples to collect", Type: plugin.OptionInt, Default: 20},
		},
		Setup: setupProcess,
	})
}

func setupProcess(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx, "/proc/sched_debug", "/proc/stat", "/sys/kernel/debug/sched/debug")
	if c.Options().Bool("smaps") {
		c.AddCopy(ctx, "/proc/[0-9]*/smaps")
	}

	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "ps auxwwwm", RootSymlink: "ps", Tags: []string{"ps_aux", "ps_auxww", "ps_auxwww", "ps_auxwwwm"}},
		plugin.Command{Cmd: "pstree -lp", RootSymlink: "pstree"},
		plugin.Command{Cmd: "ps alxwww", Tags: []string{"ps_alxwww"}},
		plugin.Command{Cmd: "ps -elfL", Tags: []string{"ps_elfL"}},
		plugin.Command{Cmd: "ps axo pid,ppid,user,group,lwp,nlwp,start_time,comm,cgroup"},
		plugin.Command{Cmd: "ps axo flags,state,uid,pid,ppid,pgid,sid,cls,pri,psr,addr,sz,wchan:20,lstart,tty,time,cmd"},
		plugin.Command{Cmd: "top -b -n 1"},
	)

	if c.Options().Bool("lsof") {
		c.AddCmdOutput(ctx, plugin.Command{Cmd: "lsof +M -n -l -c ''", RootSymlink: "lsof", Timeout: 15 * time.Second})
	}
	if c.Options().Bool("lsof-threads") {
		c.AddCmdOutput(ctx, plugin.Command{Cmd: "lsof +M -n -l", Timeout: 15 * time.Second})
	}
	if n := c.Options().Int("samples"); n > 0 {
		c.AddCmdOutput(ctx, plugin.Command{Cmd: "iotop -b -o -d 0.5 -t -n " + strconv.Itoa(n)})
	}
	return nil
}
