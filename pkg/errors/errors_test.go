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

package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeConfig, "unknown plugin")

	if err.Code != ErrCodeConfig {
		t.Errorf("expected code %s, got %s", ErrCodeConfig, err.Code)
	}
	if err.Message != "unknown plugin" {
		t.Errorf("expected message 'unknown plugin', got %s", err.Message)
	}
	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrapWithContext(t *testing.T) {
	cause := errors.New("timeout")
	ctx := map[string]any{
		"command": "journalctl",
		"plugin":  "logs",
	}

	err := WrapWithContext(ErrCodeCommandTimeout, "command timed out", cause, ctx)

	if err.Code != ErrCodeCommandTimeout {
		t.Errorf("expected code %s, got %s", ErrCodeCommandTimeout, err.Code)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped")
	}
	if err.Context["plugin"] != "logs" {
		t.Errorf("expected plugin to be logs")
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      *StructuredError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(ErrCodeNotFound, "not found"),
			expected: "[NOT_FOUND] not found",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeUpload, "failed", errors.New("root cause")),
			expected: "[UPLOAD] failed: root cause",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestIsFatalFS(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"enospc", &os.PathError{Op: "write", Path: "/tmp/x", Err: syscall.ENOSPC}, true},
		{"erofs wrapped", fmt.Errorf("copy: %w", &os.PathError{Op: "open", Path: "/x", Err: syscall.EROFS}), true},
		{"coded", New(ErrCodeFatalFS, "disk full"), true},
		{"enoent", &os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatalFS(tt.err); got != tt.want {
				t.Errorf("IsFatalFS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAsFatalFS(t *testing.T) {
	err := AsFatalFS("write failed", syscall.ENOSPC)
	if CodeOf(err) != ErrCodeFatalFS {
		t.Errorf("expected FATAL_FS, got %q", CodeOf(err))
	}

	plain := errors.New("other")
	if AsFatalFS("x", plain) != plain {
		t.Errorf("expected non fatal error to pass through")
	}
}

func TestHasCode(t *testing.T) {
	inner := New(ErrCodePluginTimeout, "plugin timed out")
	outer := Wrap(ErrCodeInternal, "collect", inner)

	if !HasCode(outer, ErrCodePluginTimeout) {
		t.Error("expected nested code to be found")
	}
	if HasCode(outer, ErrCodeUpload) {
		t.Error("unexpected code match")
	}
	if CodeOf(outer) != ErrCodeInternal {
		t.Errorf("CodeOf() = %s", CodeOf(outer))
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != ExitOK {
		t.Error("nil should map to 0")
	}
	if ExitCode(fmt.Errorf("run: %w", context.Canceled)) != ExitInterrupt {
		t.Error("canceled should map to 130")
	}
	if ExitCode(New(ErrCodeConfig, "bad")) != ExitFailure {
		t.Error("config error should map to 1")
	}
}
