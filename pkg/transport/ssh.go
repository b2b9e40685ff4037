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
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

// SSH is the control_persist transport: one SSH connection per host,
// kept open for the run, with a session per command.
type SSH struct {
	address string
	opts    Options

	mu       sync.Mutex
	client   *ssh.Client
	hostname string
}

// NewSSH returns an SSH transport for address, which may carry a port.
func NewSSH(address string, opts Options) *SSH {
	opts.setDefaults()
	if opts.User == "" {
		opts.User = "root"
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	return &SSH{address: address, opts: opts}
}

func (s *SSH) Name() string { return KindControlPersist }

func (s *SSH) addr() string {
	if _, _, err := net.SplitHostPort(s.address); err == nil {
		return s.address
	}
	return net.JoinHostPort(s.address, strconv.Itoa(s.opts.Port))
}

func (s *SSH) Connect(ctx context.Context) error {
	if err := s.dial(ctx); err != nil {
		return sosErrors.WrapWithContext(sosErrors.ErrCodeTransport, "failed to connect", err,
			map[string]any{"host": s.address, "user": s.opts.User})
	}
	s.hostname = s.address
	res, err := s.Run(ctx, "hostname", RunOptions{Timeout: defaults.CollectorCommandTimeout})
	if err == nil && res.Status == 0 {
		if h := strings.TrimSpace(res.Stdout); h != "" {
			s.hostname = h
		}
	}
	return nil
}

func (s *SSH) dial(ctx context.Context) error {
	cfg, err := s.clientConfig()
	if err != nil {
		return err
	}
	d := net.Dialer{Timeout: s.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr())
	if err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(s.opts.ConnectTimeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, s.addr(), cfg)
	if err != nil {
		conn.Close()
		return err
	}
	_ = conn.SetDeadline(time.Time{})

	s.mu.Lock()
	old := s.client
	s.client = ssh.NewClient(c, chans, reqs)
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	s.opts.Log.Debug("ssh connection established", "host", s.address, "user", s.opts.User)
	return nil
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	var auths []ssh.AuthMethod
	if s.opts.KeyFile != "" {
		data, err := os.ReadFile(expandHome(s.opts.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read ssh key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ssh key %s: %w", s.opts.KeyFile, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if s.opts.Password != "" {
		auths = append(auths, ssh.Password(s.opts.Password))
	}
	if len(auths) == 0 {
		return nil, errors.New("no ssh key, agent or password available")
	}

	return &ssh.ClientConfig{
		User:            s.opts.User,
		Auth:            auths,
		HostKeyCallback: HostKeyCallback(s.opts.Log),
		Timeout:         s.opts.ConnectTimeout,
	}, nil
}

// HostKeyCallback verifies host keys against ~/.ssh/known_hosts. Without a
// readable known_hosts file host keys are accepted with a warning.
func HostKeyCallback(log *slog.Logger) ssh.HostKeyCallback {
	cb, err := knownhosts.New(expandHome("~/.ssh/known_hosts"))
	if err == nil {
		return cb
	}
	log.Warn("known_hosts unavailable, host keys are not verified", "error", err)
	return ssh.InsecureIgnoreHostKey() //nolint:gosec
}

func (s *SSH) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return sosErrors.Wrap(sosErrors.ErrCodeTransport, "failed to close connection", err)
	}
	return nil
}

func (s *SSH) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil
}

func (s *SSH) Hostname() string { return s.hostname }

func (s *SSH) conn() (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, errDisconnected
	}
	return s.client, nil
}

// Run executes cmd in a new session on the shared connection. A timeout
// kills the remote command and yields StatusTimeout.
func (s *SSH) Run(ctx context.Context, cmd string, opts RunOptions) (*Result, error) {
	line, stdin := s.opts.wrap(cmd, opts, s.opts.User)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaults.CollectorCommandTimeout
	}
	var res *Result
	err := withReconnect(ctx, s.address, s.opts.ReconnectAttempts, s.opts.Log, s.dial, func(ctx context.Context) error {
		c, err := s.conn()
		if err != nil {
			return err
		}
		res, err = s.runSession(ctx, c, line, stdin, timeout)
		return err
	})
	if err != nil {
		transportCommands.WithLabelValues(KindControlPersist, "failed").Inc()
		return nil, err
	}
	transportCommands.WithLabelValues(KindControlPersist, commandStatus(res.Status, res.TimedOut)).Inc()
	return res, nil
}

func (s *SSH) runSession(ctx context.Context, c *ssh.Client, line, stdin string, timeout time.Duration) (*Result, error) {
	sess, err := c.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errDisconnected, err)
	}
	defer sess.Close()

	out := &syncBuffer{}
	sess.Stdout = out
	sess.Stderr = out
	if stdin != "" {
		sess.Stdin = strings.NewReader(stdin)
	}
	if err := sess.Start(line); err != nil {
		return nil, fmt.Errorf("%w: %w", errDisconnected, err)
	}
	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case err = <-done:
	case <-runCtx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		sess.Close()
		<-done
		res := &Result{Status: StatusTimeout, Stdout: out.String(), TimedOut: true}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, nil
	}

	res := &Result{Stdout: out.String()}
	var exitErr *ssh.ExitError
	var missing *ssh.ExitMissingError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.Status = exitErr.ExitStatus()
	case errors.As(err, &missing):
		return nil, fmt.Errorf("%w: %w", errDisconnected, err)
	default:
		return nil, err
	}
	return res, nil
}

// CopyFrom fetches remotePath over SFTP on the shared connection.
func (s *SSH) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	err := withReconnect(ctx, s.address, s.opts.ReconnectAttempts, s.opts.Log, s.dial, func(context.Context) error {
		c, err := s.conn()
		if err != nil {
			return err
		}
		client, err := sftp.NewClient(c)
		if err != nil {
			return fmt.Errorf("%w: %w", errDisconnected, err)
		}
		defer client.Close()
		f, err := client.Open(remotePath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := os.MkdirAll(filepath.Dir(localPath), 0o700); err != nil {
			return err
		}
		return writeFrom(f, localPath)
	})
	if err != nil {
		return sosErrors.WrapWithContext(sosErrors.ErrCodeTransport, "failed to retrieve file", err,
			map[string]any{"host": s.address, "path": remotePath})
	}
	return nil
}

func (s *SSH) ReadFile(ctx context.Context, remotePath string) ([]byte, error) {
	return readAll(ctx, s, remotePath)
}

func expandHome(p string) string {
	rest, ok := strings.CutPrefix(p, "~/")
	if !ok {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, rest)
}
