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
	"regexp"
	"strings"

	"github.com/NVIDIA/sos/pkg/plugin"
	"github.com/NVIDIA/sos/pkg/policy"
)

func init() {
	plugin.MustRegister(&plugin.Plugin{
		Name:        "kubernetes",
		Description: "Kubernetes container orchestration platform",
		Families:    []string{policy.FamilyIndependent},
		Profiles:    []string{ProfileContainer, ProfileKubernetes},
		Trigger: plugin.Trigger{
			Packages: []string{"kubelet", "kubernetes", "kubernetes-master"},
			Files:    []string{"/etc/kubernetes/admin.conf", "/etc/kubernetes/kubelet.conf"},
			Services: []string{"kubelet"},
		},
		Options: []plugin.OptionSpec{
			{Name: "all", Description: "collect all namespace output separately", Type: plugin.OptionBool, Default: false},
			{Name: "describe", Description: "capture descriptions of all kube resources", Type: plugin.OptionBool, Default: false},
			{Name: "podlogs", Description: "capture stdout/stderr logs from pods", Type: plugin.OptionBool, Default: false},
			{Name: "podlogs-filter", Description: "only collect logs from pods matching this pattern", Type: plugin.OptionString, Default: ""},
			{Name: "kubeconfig", Description: "kubeconfig used by kubectl", Type: plugin.OptionString, Default: "/etc/kubernetes/admin.conf"},
		},
		Setup: setupKubernetes,
	})
}

var kubeGlobalResources = []string{"sc", "pv", "roles", "clusterroles", "crd"}

var kubeNamespacedResources = []string{
	"events", "deployments", "ingresses", "pods", "pvc", "services",
	"daemonsets", "replicasets", "statefulsets", "jobs", "cronjobs",
}

func setupKubernetes(ctx context.Context, c *plugin.Context) error {
	c.AddCopy(ctx,
		"/etc/kubernetes/*.conf",
		"/etc/kubernetes/manifests",
		"/var/lib/kubelet/config.yaml",
		"/var/lib/kubelet/kubeadm-flags.env",
		"/etc/sysconfig/kubelet",
		"/etc/default/kubelet",
	)
	c.AddForbiddenPath("/etc/kubernetes/pki", "/var/lib/kubelet/pki")
	c.AddServiceStatus(ctx, "kubelet")
	c.AddJournal(ctx, plugin.Journal{Units: []string{"kubelet"}})
	c.AddEnvVar("KUBECONFIG")

	kubectl := "kubectl"
	if kc := c.Options().String("kubeconfig"); kc != "" {
		if matches := c.Glob(kc); len(matches) > 0 {
			kubectl = "kubectl --kubeconfig=" + kc
		}
	}
	// kubectl only works against a reachable API server
	pred := &plugin.Predicate{CmdOutputs: []plugin.CmdOutput{{Cmd: kubectl + " version", Output: "Server Version"}}}

	c.AddCmdOutput(ctx,
		plugin.Command{Cmd: kubectl + " version", Pred: pred},
		plugin.Command{Cmd: kubectl + " config view", Pred: pred},
		plugin.Command{Cmd: kubectl + " get -o json nodes", Pred: pred},
		plugin.Command{Cmd: kubectl + " describe nodes", Pred: pred},
		plugin.Command{Cmd: kubectl + " get namespaces", Pred: pred},
		plugin.Command{Cmd: kubectl + " api-resources", Pred: pred},
	)
	for _, res := range kubeGlobalResources {
		c.AddCmdOutput(ctx, plugin.Command{Cmd: fmt.Sprintf("%s get %s", kubectl, res), Pred: pred})
	}

	if c.Options().Bool("all") {
		for _, ns := range kubeNamespaces(ctx, c, kubectl) {
			for _, res := range kubeNamespacedResources {
				cmd := fmt.Sprintf("%s get -o wide --namespace=%s %s", kubectl, ns, res)
				c.AddCmdOutput(ctx, plugin.Command{Cmd: cmd, Pred: pred})
				if c.Options().Bool("describe") {
					c.AddCmdOutput(ctx, plugin.Command{Cmd: fmt.Sprintf("%s describe --namespace=%s %s", kubectl, ns, res), Pred: pred})
				}
			}
			if c.Options().Bool("podlogs") {
				addPodLogs(ctx, c, kubectl, ns, pred)
			}
		}
	} else {
		for _, res := range kubeNamespacedResources {
			c.AddCmdOutput(ctx, plugin.Command{Cmd: fmt.Sprintf("%s get -o wide --all-namespaces=true %s", kubectl, res), Pred: pred})
		}
	}

	c.DoCmdOutputSub("*kubectl*", `(?m)(\s*(?:token|password|client-key-data|client-certificate-data)\s*:\s*)\S+`, "${1}********")
	c.DoFileSub("/etc/kubernetes/*.conf", `(?m)(\s*(?:token|client-key-data|client-certificate-data)\s*:\s*)\S+`, "${1}********")
	return nil
}

func kubeNamespaces(ctx context.Context, c *plugin.Context, kubectl string) []string {
	res, err := c.ExecCmd(ctx, kubectl+" get namespaces -o jsonpath={.items[*].metadata.name}")
	if err != nil || res.Status != 0 {
		return nil
	}
	return strings.Fields(string(res.Output))
}

func addPodLogs(ctx context.Context, c *plugin.Context, kubectl, ns string, pred *plugin.Predicate) {
	var filter *regexp.Regexp
	if f := c.Options().String("podlogs-filter"); f != "" {
		re, err := regexp.Compile(f)
		if err != nil {
			c.Logger().Warn("invalid podlogs filter", "filter", f, "error", err)
			return
		}
		filter = re
	}
	res, err := c.ExecCmd(ctx, fmt.Sprintf("%s get pods --namespace=%s -o jsonpath={.items[*].metadata.name}", kubectl, ns))
	if err != nil || res.Status != 0 {
		return
	}
	for _, pod := range strings.Fields(string(res.Output)) {
		if filter != nil && !filter.MatchString(pod) {
			continue
		}
		c.AddCmdOutput(ctx, plugin.Command{
			Cmd:  fmt.Sprintf("%s logs --all-containers=true --namespace=%s %s", kubectl, ns, pod),
			Pred: pred,
		})
	}
}
