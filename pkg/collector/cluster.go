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

package collector

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/transport"
)

// Cluster profile names.
const (
	ProfileNone       = "none"
	ProfileKubernetes = "kubernetes"
)

// ClusterProfile enumerates the nodes of one kind of cluster.
type ClusterProfile interface {
	Name() string
	// Detect reports whether the environment belongs to such a cluster.
	Detect(ctx context.Context) bool
	Nodes(ctx context.Context) ([]string, error)
	// NodeLabel is added to the report label of node, empty for none.
	NodeLabel(node string) string
	// Transport is the transport kind the profile needs, empty to keep
	// the configured one.
	Transport() string
}

// ProfileOptions configures a cluster profile.
type ProfileOptions struct {
	Kubeconfig string
	// Options are the --cluster-options given for this profile.
	Options map[string]string
	Log     *slog.Logger
}

// ProfileFactory builds a cluster profile.
type ProfileFactory func(opts ProfileOptions) (ClusterProfile, error)

// DefaultProfiles returns the built-in cluster profiles.
func DefaultProfiles() map[string]ProfileFactory {
	return map[string]ProfileFactory{
		ProfileNone:       func(ProfileOptions) (ClusterProfile, error) { return noneProfile{}, nil },
		ProfileKubernetes: newKubernetesProfile,
	}
}

// ProfileNames lists the built-in profiles, sorted.
func ProfileNames() []string {
	names := make([]string, 0, 2)
	for n := range DefaultProfiles() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type noneProfile struct{}

func (noneProfile) Name() string                            { return ProfileNone }
func (noneProfile) Detect(context.Context) bool             { return false }
func (noneProfile) Nodes(context.Context) ([]string, error) { return nil, nil }
func (noneProfile) NodeLabel(string) string                 { return "" }
func (noneProfile) Transport() string                       { return "" }

// kubernetesProfile lists nodes through the API server. Options:
//
//	label      node label selector
//	role       only nodes carrying node-role.kubernetes.io/<role>
//	not-ready  include nodes that are not Ready
//	use-ip     address nodes by InternalIP instead of name
//	transport  transport kind, oc by default
type kubernetesProfile struct {
	kubeconfig string
	opts       map[string]string
	log        *slog.Logger
	client     kubernetes.Interface
	roles      map[string]string
}

func newKubernetesProfile(o ProfileOptions) (ClusterProfile, error) {
	for k := range o.Options {
		switch k {
		case "label", "role", "not-ready", "use-ip", "transport":
		default:
			return nil, sosErrors.New(sosErrors.ErrCodeConfig,
				fmt.Sprintf("unknown cluster option %s.%s", ProfileKubernetes, k))
		}
	}
	log := o.Log
	if log == nil {
		log = slog.Default()
	}
	return &kubernetesProfile{
		kubeconfig: o.Kubeconfig,
		opts:       o.Options,
		log:        log,
		roles:      make(map[string]string),
	}, nil
}

func (p *kubernetesProfile) Name() string { return ProfileKubernetes }

func (p *kubernetesProfile) connect() error {
	if p.client != nil {
		return nil
	}
	c, _, err := transport.KubeClient(p.kubeconfig)
	if err != nil {
		return err
	}
	p.client = c
	return nil
}

func (p *kubernetesProfile) Detect(context.Context) bool {
	if err := p.connect(); err != nil {
		return false
	}
	_, err := p.client.Discovery().ServerVersion()
	return err == nil
}

func (p *kubernetesProfile) boolOpt(name string) bool {
	b, _ := strconv.ParseBool(p.opts[name])
	return b
}

func (p *kubernetesProfile) Nodes(ctx context.Context) ([]string, error) {
	if err := p.connect(); err != nil {
		return nil, err
	}
	list, err := p.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{LabelSelector: p.opts["label"]})
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeTransport, "failed to list cluster nodes", err)
	}
	want := p.opts["role"]
	var out []string
	for i := range list.Items {
		n := &list.Items[i]
		if !nodeReady(n) && !p.boolOpt("not-ready") {
			p.log.Debug("skipping node that is not ready", "node", n.Name)
			continue
		}
		roles := nodeRoles(n)
		if want != "" && !slices.Contains(roles, want) {
			continue
		}
		addr := n.Name
		if p.boolOpt("use-ip") {
			if ip := internalIP(n); ip != "" {
				addr = ip
			}
		}
		p.roles[addr] = strings.Join(roles, "-")
		p.log.Debug("found cluster node", "node", n.Name, "address", addr,
			"roles", p.roles[addr], "provider", parseProvider(n.Spec.ProviderID))
		out = append(out, addr)
	}
	sort.Strings(out)
	return out, nil
}

func (p *kubernetesProfile) NodeLabel(node string) string { return p.roles[node] }

func (p *kubernetesProfile) Transport() string {
	if t := p.opts["transport"]; t != "" {
		return t
	}
	return transport.KindOC
}

func nodeReady(n *corev1.Node) bool {
	for _, c := range n.Status.Conditions {
		if c.Type == corev1.NodeReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

const roleLabelPrefix = "node-role.kubernetes.io/"

func nodeRoles(n *corev1.Node) []string {
	var roles []string
	for k := range n.Labels {
		if r, ok := strings.CutPrefix(k, roleLabelPrefix); ok && r != "" {
			roles = append(roles, r)
		}
	}
	sort.Strings(roles)
	return roles
}

func internalIP(n *corev1.Node) string {
	for _, a := range n.Status.Addresses {
		if a.Type == corev1.NodeInternalIP {
			return a.Address
		}
	}
	return ""
}

// parseProvider maps a node providerID such as aws:///us-west-2a/i-0123 to
// the managed service name (eks, gke, aks, oke), or the raw scheme.
func parseProvider(providerID string) string {
	scheme, _, ok := strings.Cut(providerID, "://")
	if !ok {
		return ""
	}
	switch p := strings.ToLower(strings.TrimSpace(scheme)); p {
	case "aws":
		return "eks"
	case "gce":
		return "gke"
	case "azure":
		return "aks"
	case "oci":
		return "oke"
	default:
		return p
	}
}
