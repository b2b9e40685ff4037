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
		Name:        "containerd",
		Description: "Containerd containers",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileContainer},
		Trigger: plugin.Trigger{
			Packages: []string{"containerd", "containerd.io"},
			Services: []string{"containerd"},
			Commands: []string{"containerd"},
		},
		Setup: func(ctx context.Context, c *plugin.Context) error {
			c.AddCopy(ctx, "/etc/containerd", "/etc/crictl.yaml", "/etc/systemd/system/containerd.service.d")
			c.AddServiceStatus(ctx, "containerd")
			c.AddJournal(ctx, plugin.Journal{Units: []string{"containerd"}})
			c.AddCmdOutput(ctx,
				plugin.Command{Cmd: "containerd config dump"},
				plugin.Command{Cmd: "ctr --version"},
				plugin.Command{Cmd: "ctr namespaces list"},
				plugin.Command{Cmd: "ctr --namespace k8s.io containers list"},
				plugin.Command{Cmd: "ctr plugins ls"},
				plugin.Command{Cmd: "crictl info"},
				plugin.Command{Cmd: "crictl ps -a"},
				plugin.Command{Cmd: "crictl images"},
				plugin.Command{Cmd: "crictl stats"},
			)
			c.DoPathRegexSub(`/etc/containerd/.*\.toml$`, `(?m)^(\s*(?:password|auth|identitytoken)\s*=\s*).*$`, "${1}\"********\"")
			return nil
		},
	})
}
