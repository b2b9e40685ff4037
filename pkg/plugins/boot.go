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

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/policy/file"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "boot",
		Description: "Bootloader information",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileSystem, ProfileBoot},
		Options: []plugin.OptionSpec{
			{Name: "all-images", Description: "collect lsinitrd for all images", Type: plugin.OptionBool, Default: false},
		},
		Setup: setupBoot,
	})
}

func setupBoot(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx,
		"/etc/default/grub",
		"/etc/grub.d",
		"/etc/grub2.cfg",
		"/etc/grub2-efi.cfg",
		"/boot/grub/grub.cfg",
		"/boot/grub2/grub.cfg",
		"/boot/grub2/grubenv",
		"/boot/grub2/custom.cfg",
		"/boot/grub2/user.cfg",
		"/boot/efi/EFI/*/grub.cfg",
		"/boot/loader/entries",
		"/etc/yaboot.conf",
		"/boot/yaboot.conf",
	)
	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: "ls -lanR /boot", Tags: []string{"ls_boot"}},
		plugin.Command{Cmd: "ls -lanR /sys/firmware", Tags: []string{"ls_sys_firmware"}},
		plugin.Command{Cmd: "mokutil --sb-state"},
		plugin.Command{Cmd: "efibootmgr -v"},
		plugin.Command{Cmd: "grub2-editenv list"},
		plugin.Command{Cmd: "lsinitrd", Pred: &plugin.Predicate{Packages: []string{"dracut"}}},
	)

	if c.Options().Bool("all-images") {
		for _, img := range c.Glob("/boot/initr*.img") {
			if strings.Contains(img, "kdump") {
				continue
			}
			c.AddCmdOutput(ctx, plugin.Command{Cmd: "lsinitrd " + img})
		}
	}

	// password hashes in grub configuration
	c.DoPathRegexSub(`grub.*\.cfg$|/etc/grub\.d/`, `(password[\w ]*\s+)\S+`, "${1}********")

	if params, err := kernelParams(c.HostPath("/proc/cmdline")); err == nil {
		c.AddStringAsFile(ctx, params, "cmdline_params")
	}
	return nil
}

// kernelParams renders /proc/cmdline one parameter per line, sorted.
// The root device is left out.
func kernelParams(path string) (string, error) {
	params, err := file.NewParser(
		file.WithDelimiter(" "),
		file.WithKVDelimiter("="),
		file.WithSkipComments(false),
	).GetMap(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse kernel command line: %w", err)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "root" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		if params[k] == "" {
			sb.WriteString(k + "\n")
			continue
		}
		fmt.Fprintf(&sb, "%s=%s\n", k, params[k])
	}
	return sb.String(), nil
}
