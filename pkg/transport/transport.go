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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

// Transport kinds accepted by New.
const (
	KindAuto           = "auto"
	KindControlPersist = "control_persist"
	KindOC             = "oc"
	KindLocal          = "local"
)

// StatusTimeout is the status of a command killed at its timeout.
const StatusTimeout = 124

// RunOptions tunes one command.
type RunOptions struct {
	Timeout  time.Duration
	NeedRoot bool
	Env      map[string]string
}

// Result is the outcome of a command. Stdout carries stderr as well.
type Result struct {
	Status   int
	Stdout   string
	TimedOut bool
}

// Transport reaches one host.
type Transport interface {
	// Name is the transport kind.
	Name() string
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	Run(ctx context.Context, cmd string, opts RunOptions) (*Result, error)
	// CopyFrom fetches remotePath into localPath.
	CopyFrom(ctx context.Context, remotePath, localPath string) error
	ReadFile(ctx context.Context, remotePath string) ([]byte, error)
	// Hostname is the name the host reports for itself once connected.
	Hostname() string
}

// Options configures a transport.
type Options struct {
	User     string
	Port     int
	KeyFile  string
	Password string

	// Sudo runs root commands through sudo, with SudoPassword on stdin
	// when set. BecomeRoot uses su with RootPassword instead.
	Sudo         bool
	SudoPassword string
	BecomeRoot   bool
	RootPassword string

	// Kubeconfig, Namespace and Image configure the oc transport.
	Kubeconfig string
	Namespace  string
	Image      string

	ConnectTimeout    time.Duration
	ReconnectAttempts int
	Log               *slog.Logger
}

func (o *Options) setDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaults.SSHConnectTimeout
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = defaults.ReconnectAttempts
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
}

// New returns an unconnected transport of the given kind for address.
// KindAuto picks Local for the local host and SSH otherwise.
func New(kind, address string, opts Options) (Transport, error) {
	opts.setDefaults()
	switch kind {
	case "", KindAuto:
		if IsLocalAddress(address) {
			return NewLocal(opts), nil
		}
		return NewSSH(address, opts), nil
	case KindLocal:
		return NewLocal(opts), nil
	case KindControlPersist:
		return NewSSH(address, opts), nil
	case KindOC:
		return NewKube(address, opts), nil
	default:
		return nil, sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("unknown transport %q", kind))
	}
}

// IsLocalAddress reports whether address names the host sos runs on.
func IsLocalAddress(address string) bool {
	switch address {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	if h, err := os.Hostname(); err == nil {
		short, _, _ := strings.Cut(h, ".")
		if strings.EqualFold(address, h) || strings.EqualFold(address, short) {
			return true
		}
	}
	return false
}

// Quote returns s as a single POSIX shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' || r == '=' || r == ':' || r == ',' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// wrap builds the command line actually sent to the host and the input
// to feed it, applying env assignments and privilege escalation.
func (o *Options) wrap(cmd string, ro RunOptions, user string) (string, string) {
	if len(ro.Env) > 0 {
		keys := make([]string, 0, len(ro.Env))
		for k := range ro.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := []string{"env"}
		for _, k := range keys {
			parts = append(parts, Quote(k+"="+ro.Env[k]))
		}
		cmd = strings.Join(parts, " ") + " sh -c " + Quote(cmd)
	}
	if !ro.NeedRoot || user == "root" {
		return cmd, ""
	}
	switch {
	case o.BecomeRoot:
		stdin := ""
		if o.RootPassword != "" {
			stdin = o.RootPassword + "\n"
		}
		return "su -c " + Quote(cmd), stdin
	case o.Sudo:
		if o.SudoPassword != "" {
			return "sudo -S -p '' sh -c " + Quote(cmd), o.SudoPassword + "\n"
		}
		return "sudo -n sh -c " + Quote(cmd), ""
	}
	return cmd, ""
}

// errDisconnected marks failures that a reconnect may fix.
var errDisconnected = errors.New("connection lost")

func isDisconnect(err error) bool {
	return errors.Is(err, errDisconnected) || errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF)
}

// withReconnect runs fn, re-establishing the connection when fn fails
// because it was lost. Retries are immediate and bounded by attempts.
func withReconnect(ctx context.Context, host string, attempts int, log *slog.Logger,
	reconnect func(context.Context) error, fn func(context.Context) error) error {
	b := retry.WithMaxRetries(uint64(attempts), retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))
	tries := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if tries > 0 {
			transportReconnects.Inc()
			log.Warn("reconnecting", "host", host, "attempt", tries)
			if err := reconnect(ctx); err != nil {
				tries++
				return retry.RetryableError(fmt.Errorf("%w: %w", errDisconnected, err))
			}
		}
		tries++
		err := fn(ctx)
		if err != nil && isDisconnect(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && isDisconnect(err) {
		return sosErrors.WrapWithContext(sosErrors.ErrCodeTransport, "connection lost and could not be re-established", err,
			map[string]any{"host": host, "attempts": tries})
	}
	return err
}

// readAll runs cat on the host and returns its output.
func readAll(ctx context.Context, t Transport, remotePath string) ([]byte, error) {
	res, err := t.Run(ctx, "cat "+Quote(remotePath), RunOptions{Timeout: defaults.CollectorCommandTimeout})
	if err != nil {
		return nil, err
	}
	if res.Status != 0 {
		return nil, sosErrors.WrapWithContext(sosErrors.ErrCodeTransport, "failed to read remote file",
			errors.New(strings.TrimSpace(res.Stdout)), map[string]any{"path": remotePath, "status": res.Status})
	}
	return []byte(res.Stdout), nil
}

// syncBuffer collects stdout and stderr written from separate goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
