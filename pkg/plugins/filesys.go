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
	"slices"
	"strings"

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/policy/file"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "filesys",
		Description: "Local file systems",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileStorage},
		Options: []plugin.OptionSpec{
			{Name: "lsof", Description: "gather information on all open files", Type: plugin.OptionBool, Default: false},
			{Name: "dumpe2fs", Description: "dump filesystem information", Type: plugin.OptionBool, Default: false},
			{Name: "frag", Description: "collect filesystem fragmentation status", Type: plugin.OptionBool, Default: false},
		},
		Setup: setupFilesys,
	})
}

func setupFilesys(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx,
		"/proc/fs",
		"/proc/mounts",
		"/proc/filesystems",
		"/proc/self/mounts",
		"/proc/self/mountinfo",
		"/proc/self/mountstats",
		"/proc/[0-9]*/mountinfo",
		"/etc/mtab",
		"/etc/fstab",
		"/run/mount/utab",
	)
	c.AddForbiddenPath("/proc/fs/panfs")

	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "mount -l", RootSymlink: "mount", Tags: []string{"mount"}},
		plugin.Command{Cmd: "df -al -x autofs", RootSymlink: "df", Tags: []string{"df__al"}},
		plugin.Command{Cmd: "df -ali -x autofs", Tags: []string{"df__li"}},
		plugin.Command{Cmd: "findmnt"},
		plugin.Command{Cmd: "lslocks"},
		plugin.Command{Cmd: "lsblk -f -a -l"},
	)
	if c.Options().Bool("lsof") {
		c.AddCmdOutput(ctx, plugin.Command{Cmd: "lsof -b +M -n -l -P", RootSymlink: "lsof"})
	}

	if c.Options().Bool("dumpe2fs") || c.Options().Bool("frag") {
		for _, dev := range ext4Devices(c.HostPath("/proc/mounts")) {
			if c.Options().Bool("dumpe2fs") {
				c.AddCmdOutput(ctx, plugin.Command{Cmd: "dumpe2fs " + dev, Tags: []string{"dumpe2fs_h"}})
			}
			if c.Options().Bool("frag") {
				c.AddCmdOutput(ctx, plugin.Command{Cmd: "e2freefrag " + dev})
			}
		}
	} else {
		for _, dev := range ext4Devices(c.HostPath("/proc/mounts")) {
			c.AddCmdOutput(ctx, plugin.Command{Cmd: "dumpe2fs -h " + dev, Tags: []string{"dumpe2fs_h"}})
		}
	}

	// passwords in mount options of cifs and similar entries
	c.DoFileSub("/etc/fstab", `(password=)[^,\s]*`, "${1}********")
	return nil
}

// ext4Devices lists block devices mounted with an ext2/3/4 file system.
func ext4Devices(mounts string) []string {
	lines, err := file.NewParser().GetLines(mounts)
	if err != nil {
		return nil
	}
	var devs []string
	for _, line := range lines {
		f := strings.Fields(line)
		if len(f) < 3 || !strings.HasPrefix(f[0], "/dev/") {
			continue
		}
		if !slices.Contains([]string{"ext2", "ext3", "ext4"}, f[2]) || slices.Contains(devs, f[0]) {
			continue
		}
		devs = append(devs, f[0])
	}
	return devs
}
