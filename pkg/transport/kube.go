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

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"
	"k8s.io/client-go/util/homedir"
	"k8s.io/utils/ptr"

	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

const (
	kubeContainer = "sos"
	hostMount     = "/host"
)

// KubeClient builds a Kubernetes client from kubeconfig. An empty path
// falls back to $KUBECONFIG, then ~/.kube/config, then the in-cluster
// service account.
func KubeClient(kubeconfig string) (kubernetes.Interface, *rest.Config, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	if kubeconfig == "" {
		p := filepath.Join(homedir.HomeDir(), ".kube", "config")
		if _, err := os.Stat(p); err == nil {
			kubeconfig = p
		}
	}

	var cfg *rest.Config
	var err error
	if kubeconfig == "" {
		if cfg, err = rest.InClusterConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to get in-cluster config: %w", err)
		}
	} else if cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig); err != nil {
		return nil, nil, fmt.Errorf("failed to build kube config from %s: %w", kubeconfig, err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return client, cfg, nil
}

// execFunc runs argv in the debug pod.
type execFunc func(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) error

// Kube is the oc transport. Connect starts a privileged pod pinned to the
// node with the host filesystem mounted at /host; commands run chrooted
// into it through pod exec.
type Kube struct {
	node string
	opts Options

	client kubernetes.Interface
	rest   *rest.Config
	exec   execFunc

	mu       sync.Mutex
	pod      string
	hostname string
}

// NewKube returns an oc transport for a cluster node.
func NewKube(node string, opts Options) *Kube {
	opts.setDefaults()
	if opts.Namespace == "" {
		opts.Namespace = defaults.DebugNamespace
	}
	if opts.Image == "" {
		opts.Image = defaults.DebugImage
	}
	return &Kube{node: node, opts: opts}
}

func (k *Kube) Name() string { return KindOC }

func (k *Kube) Connect(ctx context.Context) error {
	if k.client == nil {
		client, cfg, err := KubeClient(k.opts.Kubeconfig)
		if err != nil {
			return sosErrors.Wrap(sosErrors.ErrCodeTransport, "failed to create kubernetes client", err)
		}
		k.client, k.rest = client, cfg
	}
	if k.exec == nil {
		k.exec = k.spdyExec
	}
	if err := k.startPod(ctx); err != nil {
		return sosErrors.WrapWithContext(sosErrors.ErrCodeTransport, "failed to start debug pod", err,
			map[string]any{"node": k.node, "namespace": k.opts.Namespace})
	}
	k.hostname = k.node
	if res, err := k.Run(ctx, "hostname", RunOptions{}); err == nil && res.Status == 0 {
		if h := strings.TrimSpace(res.Stdout); h != "" {
			k.hostname = h
		}
	}
	return nil
}

func (k *Kube) buildPod() *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: "sos-collector-",
			Namespace:    k.opts.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name":       "sos-collector",
				"app.kubernetes.io/managed-by": "sos",
			},
		},
		Spec: corev1.PodSpec{
			NodeName:      k.node,
			RestartPolicy: corev1.RestartPolicyNever,
			HostPID:       true,
			HostNetwork:   true,
			HostIPC:       true,
			Tolerations:   []corev1.Toleration{{Operator: corev1.TolerationOpExists}},
			Containers: []corev1.Container{
				{
					Name:    kubeContainer,
					Image:   k.opts.Image,
					Command: []string{"/bin/sh", "-c", "sleep infinity"},
					SecurityContext: &corev1.SecurityContext{
						Privileged: ptr.To(true),
						RunAsUser:  ptr.To(int64(0)),
					},
					VolumeMounts: []corev1.VolumeMount{{Name: "host", MountPath: hostMount}},
				},
			},
			Volumes: []corev1.Volume{
				{
					Name: "host",
					VolumeSource: corev1.VolumeSource{
						HostPath: &corev1.HostPathVolumeSource{Path: "/", Type: ptr.To(corev1.HostPathDirectory)},
					},
				},
			},
		},
	}
}

func (k *Kube) startPod(ctx context.Context) error {
	pods := k.client.CoreV1().Pods(k.opts.Namespace)
	created, err := pods.Create(ctx, k.buildPod(), metav1.CreateOptions{})
	if err != nil {
		return fmt.Errorf("failed to create pod: %w", err)
	}
	k.mu.Lock()
	k.pod = created.Name
	k.mu.Unlock()
	k.opts.Log.Debug("debug pod created", "node", k.node, "pod", created.Name)

	err = wait.PollUntilContextTimeout(ctx, 500*time.Millisecond, defaults.DebugPodTimeout, true,
		func(ctx context.Context) (bool, error) {
			p, err := pods.Get(ctx, created.Name, metav1.GetOptions{})
			if err != nil {
				return false, err
			}
			switch p.Status.Phase {
			case corev1.PodRunning:
				return true, nil
			case corev1.PodFailed, corev1.PodSucceeded:
				return false, fmt.Errorf("pod %s exited: %s", p.Name, p.Status.Message)
			}
			return false, nil
		})
	if err != nil {
		k.deletePod()
		return err
	}
	return nil
}

func (k *Kube) deletePod() {
	k.mu.Lock()
	name := k.pod
	k.pod = ""
	k.mu.Unlock()
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaults.CollectorCommandTimeout)
	defer cancel()
	err := k.client.CoreV1().Pods(k.opts.Namespace).Delete(ctx, name, metav1.DeleteOptions{GracePeriodSeconds: ptr.To(int64(0))})
	if err != nil && !apierrors.IsNotFound(err) {
		k.opts.Log.Warn("failed to delete debug pod", "pod", name, "error", err)
	}
}

// reconnect replaces the debug pod.
func (k *Kube) reconnect(ctx context.Context) error {
	k.deletePod()
	return k.startPod(ctx)
}

func (k *Kube) Disconnect() error {
	k.deletePod()
	return nil
}

func (k *Kube) Connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pod != ""
}

func (k *Kube) Hostname() string { return k.hostname }

func (k *Kube) podName() (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pod == "" {
		return "", errDisconnected
	}
	return k.pod, nil
}

func (k *Kube) spdyExec(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) error {
	pod, err := k.podName()
	if err != nil {
		return err
	}
	req := k.client.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(k.opts.Namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: kubeContainer,
			Command:   argv,
			Stdin:     stdin != nil,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)
	ex, err := remotecommand.NewSPDYExecutor(k.rest, http.MethodPost, req.URL())
	if err != nil {
		return err
	}
	return ex.StreamWithContext(ctx, remotecommand.StreamOptions{Stdin: stdin, Stdout: stdout, Stderr: stderr})
}

// execErr classifies an exec failure: exit statuses pass through, a
// vanished pod asks for a reconnect.
func (k *Kube) execErr(err error) (int, error) {
	var exitErr utilexec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() {
		return exitErr.ExitStatus(), nil
	}
	if apierrors.IsNotFound(err) {
		return 0, fmt.Errorf("%w: %w", errDisconnected, err)
	}
	return 0, err
}

// Run executes cmd on the node. The command is wrapped in timeout(1)
// inside the pod so it does not outlive its budget.
func (k *Kube) Run(ctx context.Context, cmd string, opts RunOptions) (*Result, error) {
	line, stdin := k.opts.wrap(cmd, opts, "root")
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaults.CollectorCommandTimeout
	}
	argv := []string{"chroot", hostMount, "timeout", strconv.Itoa(int(timeout.Seconds())), "sh", "-c", line}

	var res *Result
	err := withReconnect(ctx, k.node, k.opts.ReconnectAttempts, k.opts.Log, k.reconnect, func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, timeout+defaults.TimeoutAllowance)
		defer cancel()
		out := &syncBuffer{}
		var in io.Reader
		if stdin != "" {
			in = strings.NewReader(stdin)
		}
		err := k.exec(runCtx, argv, in, out, out)
		if err != nil && runCtx.Err() != nil && ctx.Err() == nil {
			res = &Result{Status: StatusTimeout, Stdout: out.String(), TimedOut: true}
			return nil
		}
		status := 0
		if err != nil {
			if status, err = k.execErr(err); err != nil {
				return err
			}
		}
		res = &Result{Status: status, Stdout: out.String(), TimedOut: status == StatusTimeout}
		return nil
	})
	if err != nil {
		transportCommands.WithLabelValues(KindOC, "failed").Inc()
		return nil, err
	}
	transportCommands.WithLabelValues(KindOC, commandStatus(res.Status, res.TimedOut)).Inc()
	return res, nil
}

// CopyFrom streams the file out of the pod with cat.
func (k *Kube) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	err := withReconnect(ctx, k.node, k.opts.ReconnectAttempts, k.opts.Log, k.reconnect, func(ctx context.Context) error {
		if err := os.MkdirAll(filepath.Dir(localPath), 0o700); err != nil {
			return err
		}
		f, err := os.OpenFile(localPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		stderr := &syncBuffer{}
		err = k.exec(ctx, []string{"cat", path.Join(hostMount, remotePath)}, nil, f, stderr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			return nil
		}
		os.Remove(localPath)
		status, err := k.execErr(err)
		if err != nil {
			return err
		}
		return fmt.Errorf("cat exited %d: %s", status, strings.TrimSpace(stderr.String()))
	})
	if err != nil {
		return sosErrors.WrapWithContext(sosErrors.ErrCodeTransport, "failed to retrieve file", err,
			map[string]any{"node": k.node, "path": remotePath})
	}
	return nil
}

func (k *Kube) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	return readAll(ctx, k, remotePath)
}
