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

package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/NVIDIA/sos/pkg/defaults"
)

// Exit statuses recorded for commands that did not run to completion.
const (
	StatusTimeout       = 124
	StatusNotExecutable = 126
	StatusNotFound      = 127
)

// CommandRequest describes one command execution.
type CommandRequest struct {
	Argv    []string
	Timeout time.Duration
	Env     map[string]string
	// Chroot runs the command with this directory as its root.
	Chroot string
	Dir    string
	// SizeLimit keeps only the last SizeLimit bytes of output when positive.
	SizeLimit int64
	Stdin     io.Reader
}

// CommandResult is the outcome of a command. Output holds stdout and
// stderr interleaved as the command wrote them.
type CommandResult struct {
	Status    int
	Output    []byte
	Truncated bool
	TimedOut  bool
	Start     time.Time
	End       time.Time
}

// CommandRunner executes commands on the inspected host.
type CommandRunner interface {
	Run(ctx context.Context, req CommandRequest) (*CommandResult, error)
}

// ExecRunner runs commands as local subprocesses in their own process
// group so a timeout kills the whole tree.
type ExecRunner struct {
	// Grace is how long to wait for output pipes after the kill.
	Grace time.Duration
}

// Run executes req. A missing or non-executable binary is reported through
// Status rather than as an error; the error return is reserved for failures
// to start the process at all.
func (r *ExecRunner) Run(ctx context.Context, req CommandRequest) (*CommandResult, error) {
	if len(req.Argv) == 0 {
		return nil, errors.New("empty command")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaults.CommandTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := &CommandResult{Start: time.Now()}
	name, err := r.lookup(req)
	if err != nil {
		res.End = time.Now()
		res.Status = StatusNotFound
		if errors.Is(err, os.ErrPermission) {
			res.Status = StatusNotExecutable
		}
		res.Output = []byte(err.Error() + "\n")
		return res, nil
	}

	cmd := exec.CommandContext(runCtx, name, req.Argv[1:]...)
	cmd.Env = commandEnv(req.Env)
	cmd.Dir = req.Dir
	grace := r.Grace
	if grace <= 0 {
		grace = defaults.ShutdownGrace
	}
	cmd.WaitDelay = grace
	setProcessGroup(cmd, req.Chroot)

	out := newTailBuffer(req.SizeLimit)
	cmd.Stdin = req.Stdin
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		res.End = time.Now()
		res.Status = StatusNotExecutable
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			res.Status = StatusNotFound
		}
		res.Output = []byte(err.Error() + "\n")
		return res, nil
	}
	waitErr := cmd.Wait()
	res.End = time.Now()
	res.Output, res.Truncated = out.Bytes()

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		res.Status = StatusTimeout
		res.Output = append(res.Output, fmt.Sprintf("\n[command timed out after %ds]\n", int(timeout.Seconds()))...)
	case ctx.Err() != nil:
		res.TimedOut = true
		res.Status = StatusTimeout
		res.Output = append(res.Output, "\n[command cancelled]\n"...)
	case errors.As(waitErr, &exitErr):
		res.Status = exitErr.ExitCode()
	case waitErr != nil && !errors.Is(waitErr, exec.ErrWaitDelay):
		return res, fmt.Errorf("failed to run %s: %w", req.Argv[0], waitErr)
	}
	return res, nil
}

func (r *ExecRunner) lookup(req CommandRequest) (string, error) {
	if req.Chroot != "" {
		// resolved inside the chroot by the child
		return req.Argv[0], nil
	}
	return exec.LookPath(req.Argv[0])
}

func commandEnv(extra map[string]string) []string {
	env := map[string]string{
		"PATH":   os.Getenv("PATH"),
		"LC_ALL": "C.UTF-8",
	}
	if env["PATH"] == "" {
		env["PATH"] = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	}
	for k, v := range extra {
		env[k] = v
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// tailBuffer keeps at most limit bytes, discarding the oldest.
type tailBuffer struct {
	mu        sync.Mutex
	limit     int64
	buf       []byte
	truncated bool
}

func newTailBuffer(limit int64) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if t.limit > 0 && int64(len(t.buf)) > t.limit {
		drop := int64(len(t.buf)) - t.limit
		t.buf = append(t.buf[:0], t.buf[drop:]...)
		t.truncated = true
	}
	return len(p), nil
}

func (t *tailBuffer) Bytes() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf...), t.truncated
}
