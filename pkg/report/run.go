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

package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/manifest"
	"github.com/NVIDIA/sos/pkg/plugin"
)

// pluginRun is the outcome of one plugin's setup and collection.
type pluginRun struct {
	name   string
	ctx    *plugin.Context
	status string
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

func errorsFile(name string) string {
	return LogsDir + "/" + name + "-plugin-errors.txt"
}

// pluginTimeout resolves the plugin's budget: its timeout option, then
// its own declared timeout unless the global value was changed from the
// default, then the global value.
func (e *Engine) pluginTimeout(p *plugin.Plugin, opts *plugin.Options) time.Duration {
	if v := opts.Int(plugin.OptTimeout); v > 0 {
		return time.Duration(v) * time.Second
	}
	global := e.opts.Report.PluginTimeoutDuration()
	if p.Timeout > 0 && (global <= 0 || global == defaults.PluginTimeout) {
		return p.Timeout
	}
	if global <= 0 {
		return defaults.PluginTimeout
	}
	return global
}

// runPlugin runs setup then collect under a watchdog. On expiry the
// plugin's context is closed so nothing it does afterwards reaches the
// archive or the manifest, and the worker moves on. Panics and setup
// errors mark the plugin failed. Only fatal filesystem errors and
// cancellation of ctx are returned.
func (e *Engine) runPlugin(ctx context.Context, env *plugin.Env, p *plugin.Plugin, opts *plugin.Options,
	section *manifest.PluginSection, log *slog.Logger) (*pluginRun, error) {
	if opts == nil {
		opts = plugin.NewOptions(p.Options)
	}
	timeout := e.pluginTimeout(p, opts)
	start := time.Now()
	section.Description = p.Description
	section.Options = opts.Values()
	section.Timeout = timeout.Seconds()
	section.StartTime = start

	pc := plugin.NewContext(p, env, opts, section)
	run := &pluginRun{name: p.Name, ctx: pc, status: manifest.StatusOK}
	log.Debug("starting plugin", "plugin", p.Name, "timeout", timeout)

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	setupDone := make(chan time.Duration, 1)
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &panicError{value: r, stack: debug.Stack()}
			}
		}()
		err := pc.Setup(tctx)
		setupDone <- time.Since(start)
		if err != nil {
			done <- err
			return
		}
		done <- pc.Collect(tctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-tctx.Done():
		err = tctx.Err()
	}

	timedOut := ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) &&
		(err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled))
	if timedOut || ctx.Err() != nil {
		pc.Close()
	}

	end := time.Now()
	section.EndTime = end
	section.RunTime = end.Sub(start).Seconds()
	select {
	case d := <-setupDone:
		section.SetupTime = d.Seconds()
	default:
	}

	defer func() {
		reportPluginDuration.WithLabelValues(p.Name).Observe(end.Sub(start).Seconds())
		reportPluginResults.WithLabelValues(run.status).Inc()
	}()

	switch {
	case ctx.Err() != nil:
		run.status = manifest.StatusFailed
		section.Status = run.status
		section.Error = "interrupted"
		return run, ctx.Err()
	case timedOut:
		run.status = manifest.StatusTimedOut
		section.Status = run.status
		section.TimeoutHit = true
		section.Error = sosErrors.New(sosErrors.ErrCodePluginTimeout,
			fmt.Sprintf("plugin %s timed out after %s", p.Name, timeout)).Error()
		log.Warn("plugin timed out", "plugin", p.Name, "timeout", timeout)
		return run, nil
	case err == nil:
		section.Status = run.status
		log.Debug("finished plugin", "plugin", p.Name, "duration", end.Sub(start))
		return run, nil
	case sosErrors.IsFatalFS(err):
		err = sosErrors.AsFatalFS(fmt.Sprintf("plugin %s hit a fatal filesystem error", p.Name), err)
		run.status = manifest.StatusFailed
		section.Status = run.status
		section.Error = err.Error()
		log.Error("fatal filesystem error", "plugin", p.Name, "error", err)
		return run, err
	}

	run.status = manifest.StatusFailed
	perr := sosErrors.Wrap(sosErrors.ErrCodePluginException, fmt.Sprintf("plugin %s failed", p.Name), err)
	section.Status = run.status
	section.Error = perr.Error()
	log.Error("plugin failed", "plugin", p.Name, "error", err)

	trace := perr.Error() + "\n"
	var pe *panicError
	if errors.As(err, &pe) {
		trace += "\n" + string(pe.stack)
	}
	if werr := env.Archive.AppendString(trace, errorsFile(p.Name)); werr != nil {
		if sosErrors.IsFatalFS(werr) {
			return run, werr
		}
		log.Warn("failed to write plugin error file", "plugin", p.Name, "error", werr)
	}
	return run, nil
}
