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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/sos/pkg/archive"
	"github.com/NVIDIA/sos/pkg/manifest"
	"github.com/NVIDIA/sos/pkg/policy"
)

type fakeOutput struct {
	status int
	output string
	delay  time.Duration
}

// fakeRunner returns canned output keyed by the joined argv.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]fakeOutput
	calls   []CommandRequest
}

func (f *fakeRunner) Run(ctx context.Context, req CommandRequest) (*CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	out, found := f.outputs[strings.Join(req.Argv, " ")]
	f.mu.Unlock()

	res := &CommandResult{Start: time.Now()}
	if !found {
		res.Status = StatusNotFound
		res.End = time.Now()
		return res, nil
	}
	if out.delay > 0 {
		select {
		case <-time.After(out.delay):
		case <-ctx.Done():
			res.Status = StatusTimeout
			res.TimedOut = true
			res.End = time.Now()
			return res, nil
		}
	}
	data := []byte(out.output)
	if req.SizeLimit > 0 && int64(len(data)) > req.SizeLimit {
		data = data[int64(len(data))-req.SizeLimit:]
		res.Truncated = true
	}
	res.Status = out.status
	res.Output = data
	res.End = time.Now()
	return res, nil
}

func (f *fakeRunner) argvs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c.Argv, " ")
	}
	return out
}

func newTestEnv(t *testing.T, pol *policy.Static, runner CommandRunner) *Env {
	t.Helper()
	arc, err := archive.New(t.TempDir(), "sosreport-test")
	require.NoError(t, err)
	if pol == nil {
		pol = &policy.Static{Host: "testhost", Machine: "x86_64"}
	}
	if runner == nil {
		runner = &fakeRunner{outputs: map[string]fakeOutput{}}
	}
	return &Env{Policy: pol, Archive: arc, Runner: runner}
}

func newTestContext(env *Env, setup func(context.Context, *Context) error) *Context {
	p := &Plugin{Name: "test", Families: []string{policy.FamilyIndependent}, Setup: setup}
	return NewContext(p, env, nil, &manifest.PluginSection{Name: "test"})
}
