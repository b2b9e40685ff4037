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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	utilexec "k8s.io/client-go/util/exec"

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"plain", "plain"},
		{"/var/tmp/sos-1.tar.xz", "/var/tmp/sos-1.tar.xz"},
		{"two words", "'two words'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quote(tt.in), tt.in)
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		run       RunOptions
		user      string
		wantCmd   string
		wantStdin string
	}{
		{
			name:    "plain",
			run:     RunOptions{NeedRoot: true},
			user:    "root",
			wantCmd: "sos report",
		},
		{
			name:    "env",
			run:     RunOptions{Env: map[string]string{"LC_ALL": "C", "A": "b c"}},
			user:    "admin",
			wantCmd: "env 'A=b c' LC_ALL=C sh -c 'sos report'",
		},
		{
			name:    "sudo without password",
			opts:    Options{Sudo: true},
			run:     RunOptions{NeedRoot: true},
			user:    "admin",
			wantCmd: "sudo -n sh -c 'sos report'",
		},
		{
			name:      "sudo with password",
			opts:      Options{Sudo: true, SudoPassword: "s3cret"},
			run:       RunOptions{NeedRoot: true},
			user:      "admin",
			wantCmd:   "sudo -S -p '' sh -c 'sos report'",
			wantStdin: "s3cret\n",
		},
		{
			name:      "become root",
			opts:      Options{Sudo: true, BecomeRoot: true, RootPassword: "r00t"},
			run:       RunOptions{NeedRoot: true},
			user:      "admin",
			wantCmd:   "su -c 'sos report'",
			wantStdin: "r00t\n",
		},
		{
			name:    "root not needed",
			opts:    Options{Sudo: true},
			user:    "admin",
			wantCmd: "sos report",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, stdin := tt.opts.wrap("sos report", tt.run, tt.user)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantStdin, stdin)
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		address string
		want    string
	}{
		{KindAuto, "localhost", KindLocal},
		{KindAuto, "node1.example.com", KindControlPersist},
		{KindLocal, "anything", KindLocal},
		{KindControlPersist, "localhost", KindControlPersist},
		{KindOC, "worker-0", KindOC},
	}
	for _, tt := range tests {
		tr, err := New(tt.kind, tt.address, Options{})
		require.NoError(t, err)
		assert.Equal(t, tt.want, tr.Name(), "%s %s", tt.kind, tt.address)
	}

	_, err := New("telnet", "node1", Options{})
	assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeConfig))
}

func TestIsLocalAddress(t *testing.T) {
	h, err := os.Hostname()
	require.NoError(t, err)
	assert.True(t, IsLocalAddress(h))
	assert.True(t, IsLocalAddress("127.0.0.1"))
	assert.False(t, IsLocalAddress("node-that-does-not-exist.invalid"))
}

func TestLocalRun(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(Options{})
	require.NoError(t, l.Connect(ctx))
	assert.True(t, l.Connected())
	assert.NotEmpty(t, l.Hostname())

	res, err := l.Run(ctx, "echo hello; echo oops >&2; exit 3", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Status)
	assert.Contains(t, res.Stdout, "hello")
	assert.Contains(t, res.Stdout, "oops")

	res, err = l.Run(ctx, `printf %s "$SOS_TEST_VALUE"`, RunOptions{Env: map[string]string{"SOS_TEST_VALUE": "v 1"}})
	require.NoError(t, err)
	assert.Equal(t, "v 1", res.Stdout)

	start := time.Now()
	res, err = l.Run(ctx, "sleep 10", RunOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.Less(t, time.Since(start), 8*time.Second)

	require.NoError(t, l.Disconnect())
	assert.False(t, l.Connected())
}

func TestLocalCopyAndRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "sosreport-x.tar.xz")
	require.NoError(t, os.WriteFile(src, []byte("archive bytes"), 0o644))

	l := NewLocal(Options{})
	require.NoError(t, l.Connect(ctx))
	dst := filepath.Join(dir, "out", "copy.tar.xz")
	require.NoError(t, l.CopyFrom(ctx, src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(data))

	data, err = l.ReadFile(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(data))

	_, err = l.ReadFile(ctx, filepath.Join(dir, "missing"))
	assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeTransport))
	err = l.CopyFrom(ctx, filepath.Join(dir, "missing"), dst)
	assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeTransport))
}

func TestWithReconnect(t *testing.T) {
	log := NewLocal(Options{}).opts.Log
	ctx := context.Background()

	t.Run("recovers", func(t *testing.T) {
		reconnects, calls := 0, 0
		err := withReconnect(ctx, "h", 5, log,
			func(context.Context) error { reconnects++; return nil },
			func(context.Context) error {
				calls++
				if calls < 3 {
					return io.EOF
				}
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, 2, reconnects)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		reconnects := 0
		err := withReconnect(ctx, "h", 5, log,
			func(context.Context) error { reconnects++; return errors.New("refused") },
			func(context.Context) error { return errDisconnected })
		require.Error(t, err)
		assert.Equal(t, 5, reconnects)
		assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeTransport))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		err := withReconnect(ctx, "h", 5, log,
			func(context.Context) error { t.Fatal("unexpected reconnect"); return nil },
			func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestSSHConfig(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	s := NewSSH("node1", Options{})
	assert.Equal(t, "node1:22", s.addr())
	assert.Equal(t, "root", s.opts.User)
	_, err := s.clientConfig()
	assert.Error(t, err)

	s = NewSSH("node1:2222", Options{Port: 22, User: "admin", Password: "pw"})
	assert.Equal(t, "node1:2222", s.addr())
	cfg, err := s.clientConfig()
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.User)
	assert.Len(t, cfg.Auth, 1)

	_, err = NewSSH("node1", Options{KeyFile: filepath.Join(t.TempDir(), "missing")}).clientConfig()
	assert.Error(t, err)
	assert.False(t, s.Connected())
}

type fakeExec struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(argv []string, stdout io.Writer) error
}

func (f *fakeExec) exec(_ context.Context, argv []string, _ io.Reader, stdout, _ io.Writer) error {
	f.mu.Lock()
	f.calls = append(f.calls, argv)
	f.mu.Unlock()
	return f.fn(argv, stdout)
}

func newFakeKube(t *testing.T, fn func(argv []string, stdout io.Writer) error) (*Kube, *fake.Clientset, *fakeExec) {
	t.Helper()
	client := fake.NewClientset()
	client.PrependReactor("create", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		pod := action.(k8stesting.CreateAction).GetObject().(*corev1.Pod)
		pod.Name = pod.GenerateName + "abcde"
		pod.Status.Phase = corev1.PodRunning
		return false, nil, nil
	})
	fe := &fakeExec{fn: fn}
	k := NewKube("worker-0", Options{})
	k.client = client
	k.exec = fe.exec
	return k, client, fe
}

func TestKubeTransport(t *testing.T) {
	ctx := context.Background()
	k, client, fe := newFakeKube(t, func(argv []string, stdout io.Writer) error {
		script := argv[len(argv)-1]
		switch {
		case argv[0] == "cat":
			_, err := io.WriteString(stdout, "tarball")
			return err
		case script == "hostname":
			_, err := io.WriteString(stdout, "worker-0.cluster.local\n")
			return err
		case script == "false":
			return utilexec.CodeExitError{Err: errors.New("exit"), Code: 1}
		}
		_, err := fmt.Fprint(stdout, "ran "+script)
		return err
	})

	require.NoError(t, k.Connect(ctx))
	assert.True(t, k.Connected())
	assert.Equal(t, "worker-0.cluster.local", k.Hostname())

	pods, err := client.CoreV1().Pods(k.opts.Namespace).List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	require.Len(t, pods.Items, 1)
	pod := pods.Items[0]
	assert.Equal(t, "worker-0", pod.Spec.NodeName)
	assert.True(t, pod.Spec.HostPID)
	assert.True(t, *pod.Spec.Containers[0].SecurityContext.Privileged)
	assert.Equal(t, hostMount, pod.Spec.Containers[0].VolumeMounts[0].MountPath)

	res, err := k.Run(ctx, "sos report --batch", RunOptions{Timeout: 30 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Status)
	assert.Equal(t, "ran sos report --batch", res.Stdout)
	last := fe.calls[len(fe.calls)-1]
	assert.Equal(t, []string{"chroot", hostMount, "timeout", "30", "sh", "-c", "sos report --batch"}, last)

	res, err = k.Run(ctx, "false", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Status)

	dst := filepath.Join(t.TempDir(), "x.tar.xz")
	require.NoError(t, k.CopyFrom(ctx, "/var/tmp/x.tar.xz", dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "tarball", string(data))
	assert.Equal(t, []string{"cat", "/host/var/tmp/x.tar.xz"}, fe.calls[len(fe.calls)-1])

	require.NoError(t, k.Disconnect())
	assert.False(t, k.Connected())
	pods, err = client.CoreV1().Pods(k.opts.Namespace).List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, pods.Items)
}

func TestKubeRunTimeout(t *testing.T) {
	k, _, _ := newFakeKube(t, func(argv []string, stdout io.Writer) error {
		if strings.HasSuffix(argv[len(argv)-1], "hostname") {
			return nil
		}
		return utilexec.CodeExitError{Err: errors.New("timed out"), Code: StatusTimeout}
	})
	require.NoError(t, k.Connect(context.Background()))
	res, err := k.Run(context.Background(), "sleep 100", RunOptions{Timeout: time.Second})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
}
