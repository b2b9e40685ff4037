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
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/plugin"
)

// Local runs commands on the local host.
type Local struct {
	opts     Options
	runner   plugin.CommandRunner
	user     string
	hostname string
	open     bool
}

// NewLocal returns a transport for the local host.
func NewLocal(opts Options) *Local {
	opts.setDefaults()
	l := &Local{opts: opts, runner: &plugin.ExecRunner{Grace: defaults.ShutdownGrace}}
	if u, err := user.Current(); err == nil {
		l.user = u.Username
	}
	if os.Geteuid() == 0 {
		l.user = "root"
	}
	return l
}

func (l *Local) Name() string { return KindLocal }

func (l *Local) Connect(context.Context) error {
	h, err := os.Hostname()
	if err != nil {
		return sosErrors.Wrap(sosErrors.ErrCodeTransport, "failed to read local hostname", err)
	}
	l.hostname = h
	l.open = true
	return nil
}

func (l *Local) Disconnect() error {
	l.open = false
	return nil
}

func (l *Local) Connected() bool  { return l.open }
func (l *Local) Hostname() string { return l.hostname }

// Run executes cmd through sh -c.
func (l *Local) Run(ctx context.Context, cmd string, opts RunOptions) (*Result, error) {
	line, stdin := l.opts.wrap(cmd, opts, l.user)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaults.CollectorCommandTimeout
	}
	req := plugin.CommandRequest{Argv: []string{"sh", "-c", line}, Timeout: timeout}
	if stdin != "" {
		req.Stdin = strings.NewReader(stdin)
	}
	res, err := l.runner.Run(ctx, req)
	if err != nil {
		transportCommands.WithLabelValues(KindLocal, "failed").Inc()
		return nil, sosErrors.Wrap(sosErrors.ErrCodeTransport, "failed to run local command", err)
	}
	transportCommands.WithLabelValues(KindLocal, commandStatus(res.Status, res.TimedOut)).Inc()
	return &Result{Status: res.Status, Stdout: string(res.Output), TimedOut: res.TimedOut}, nil
}

// CopyFrom copies a local file.
func (l *Local) CopyFrom(_ context.Context, remotePath, localPath string) error {
	if err := copyFile(remotePath, localPath); err != nil {
		return sosErrors.WrapWithContext(sosErrors.ErrCodeTransport, "failed to copy file", err,
			map[string]any{"path": remotePath})
	}
	return nil
}

func (l *Local) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	return readAll(ctx, l, remotePath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}
	return writeFrom(in, dst)
}

// writeFrom streams r into dst, removing dst when the copy fails.
func writeFrom(r io.Reader, dst string) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return out.Close()
}

func commandStatus(status int, timedOut bool) string {
	switch {
	case timedOut:
		return "timed_out"
	case status != 0:
		return "failed"
	default:
		return "ok"
	}
}
