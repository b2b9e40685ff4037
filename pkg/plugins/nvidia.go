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
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "nvidia",
		Description: "Nvidia GPU information",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileHardware},
		Trigger: plugin.Trigger{
			Commands:      []string{"nvidia-smi"},
			KernelModules: []string{"nvidia"},
		},
		Setup: setupNvidia,
	})
}

var gpuQueryFields = []string{
	"timestamp", "name", "pci.bus_id", "driver_version", "pstate",
	"pcie.link.gen.max", "pcie.link.gen.current", "temperature.gpu",
	"utilization.gpu", "utilization.memory", "memory.total", "memory.free",
	"memory.used", "clocks.applications.graphics", "clocks.applications.memory",
	"clocks_throttle_reasons.active", "clocks.current.graphics", "clocks.current.memory",
	"clocks.max.graphics", "clocks.max.memory", "power.draw", "power.limit",
	"ecc.mode.current", "retired_pages.pending",
}

func setupNvidia(ctx context.Context, c *plugin.Context) error {
	subcmds := []string{
		"--list-gpus",
		"-q -d PERFORMANCE",
		"-q -d SUPPORTED_CLOCKS",
		"-q -d PAGE_RETIREMENT",
		"-q",
		"-q -d ECC",
		"nvlink -s",
		"nvlink -e",
		"topo -m",
		"mig -lgi",
		"mig -lci",
	}
	for _, sub := range subcmds {
		c.AddCmdOutput(ctx, plugin.Command{Cmd: "nvidia-smi " + sub})
	}
	c.AddCmdOutput(ctx,
		plugin.Command{
			Cmd:             "nvidia-smi --query-gpu=" + strings.Join(gpuQueryFields, ",") + " --format=csv",
			SuggestFilename: "nvidia-smi_query_gpu",
		},
		plugin.Command{
			Cmd:             "nvidia-smi --query-retired-pages=gpu_name,gpu_bus_id,gpu_serial,retired_pages.cause --format=csv",
			SuggestFilename: "nvidia-smi_query_retired_pages",
		},
		plugin.Command{Cmd: "nvidia-ctk --version"},
		plugin.Command{Cmd: "nvidia-container-cli info"},
	)
	c.AddJournal(ctx, plugin.Journal{Identifier: "nvidia-persistenced"})
	c.AddCopy(ctx,
		"/proc/driver/nvidia",
		"/etc/nvidia-container-runtime/config.toml",
		"/etc/cdi",
		"/var/run/cdi",
		"/etc/modprobe.d/nvidia*.conf",
	)
	c.AddForbiddenPath("/proc/driver/nvidia/*/gpus/*/registry")
	return nil
}
