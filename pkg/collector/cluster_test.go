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
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/transport"
)

func testKubeNode(name, ip string, ready bool, labels map[string]string) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Spec:       corev1.NodeSpec{ProviderID: "aws:///us-west-2a/i-0123"},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: status}},
			Addresses:  []corev1.NodeAddress{{Type: corev1.NodeInternalIP, Address: ip}},
		},
	}
}

func newTestKubeProfile(t *testing.T, opts map[string]string) *kubernetesProfile {
	t.Helper()
	p, err := newKubernetesProfile(ProfileOptions{
		Options: opts,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	kp := p.(*kubernetesProfile)
	kp.client = fake.NewClientset(
		testKubeNode("master-0", "10.0.0.1", true, map[string]string{roleLabelPrefix + "master": "", roleLabelPrefix + "control-plane": ""}),
		testKubeNode("worker-1", "10.0.0.3", true, map[string]string{roleLabelPrefix + "worker": "", "gpu": "true"}),
		testKubeNode("worker-0", "10.0.0.2", true, map[string]string{roleLabelPrefix + "worker": ""}),
		testKubeNode("worker-2", "10.0.0.4", false, map[string]string{roleLabelPrefix + "worker": ""}),
	)
	return kp
}

func TestKubernetesProfileNodes(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		opts map[string]string
		want []string
	}{
		{"ready nodes", nil, []string{"master-0", "worker-0", "worker-1"}},
		{"role", map[string]string{"role": "worker"}, []string{"worker-0", "worker-1"}},
		{"not ready included", map[string]string{"role": "worker", "not-ready": "true"}, []string{"worker-0", "worker-1", "worker-2"}},
		{"label selector", map[string]string{"label": "gpu=true"}, []string{"worker-1"}},
		{"by address", map[string]string{"role": "master", "use-ip": "true"}, []string{"10.0.0.1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestKubeProfile(t, tt.opts)
			got, err := p.Nodes(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKubernetesProfileLabels(t *testing.T) {
	p := newTestKubeProfile(t, nil)
	assert.True(t, p.Detect(context.Background()))
	_, err := p.Nodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "control-plane-master", p.NodeLabel("master-0"))
	assert.Equal(t, "worker", p.NodeLabel("worker-0"))
	assert.Empty(t, p.NodeLabel("unknown"))
	assert.Equal(t, transport.KindOC, p.Transport())

	p = newTestKubeProfile(t, map[string]string{"transport": transport.KindControlPersist})
	assert.Equal(t, transport.KindControlPersist, p.Transport())
}

func TestKubernetesProfileRejectsUnknownOption(t *testing.T) {
	_, err := newKubernetesProfile(ProfileOptions{Options: map[string]string{"colour": "blue"}})
	assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
}

func TestParseProvider(t *testing.T) {
	tests := map[string]string{
		"aws:///us-west-2a/i-0123456789abcdef0":      "eks",
		"gce://my-project/us-central1-a/gke-node":    "gke",
		"azure:///subscriptions/x/virtualMachines/y": "aks",
		"oci://ocid1.instance":                       "oke",
		"kind://docker/kind/kind-control-plane":      "kind",
		"":                                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseProvider(in), in)
	}
}

func TestProfileNames(t *testing.T) {
	assert.Equal(t, []string{ProfileKubernetes, ProfileNone}, ProfileNames())
}
