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
	stderrors "errors"
	"fmt"
	"syscall"
)

// ErrorCode represents a structured error classification.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeTimeout indicates an operation exceeded its time limit.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal indicates an internal system error.
	ErrCodeInternal ErrorCode = "INTERNAL"
	// ErrCodeInvalidRequest indicates malformed or invalid input.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeConfig indicates a malformed config file or an unknown plugin, profile or option.
	// Surfaced to the user before any work is done.
	ErrCodeConfig ErrorCode = "CONFIG"
	// ErrCodeFatalFS indicates ENOSPC/EROFS class failures during capture or finalize.
	ErrCodeFatalFS ErrorCode = "FATAL_FS"
	// ErrCodePluginException indicates a failure raised from a plugin's setup or collect.
	ErrCodePluginException ErrorCode = "PLUGIN_EXCEPTION"
	// ErrCodePluginTimeout indicates a plugin exceeded its timeout.
	ErrCodePluginTimeout ErrorCode = "PLUGIN_TIMEOUT"
	// ErrCodeCommandTimeout indicates a captured command exceeded its timeout.
	ErrCodeCommandTimeout ErrorCode = "COMMAND_TIMEOUT"
	// ErrCodeTransport indicates a connect or retrieve failure against a remote host.
	ErrCodeTransport ErrorCode = "TRANSPORT"
	// ErrCodeUpload indicates the archive could not be delivered to an upload target.
	ErrCodeUpload ErrorCode = "UPLOAD"
	// ErrCodeCleaner indicates an obfuscation failure.
	ErrCodeCleaner ErrorCode = "CLEANER"
)

// StructuredError provides structured error information for better observability.
// It includes an error code for programmatic handling, a human-readable message,
// the underlying cause, and optional context for debugging.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the code of the outermost StructuredError in the chain,
// or an empty code when err carries none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether any StructuredError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var se *StructuredError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

// IsFatalFS reports whether err is, or wraps, a disk-full or read-only filesystem failure.
func IsFatalFS(err error) bool {
	if err == nil {
		return false
	}
	if HasCode(err, ErrCodeFatalFS) {
		return true
	}
	return stderrors.Is(err, syscall.ENOSPC) || stderrors.Is(err, syscall.EROFS)
}

// AsFatalFS promotes err to a FATAL_FS error when it is one, and returns it unchanged otherwise.
func AsFatalFS(message string, err error) error {
	if err == nil {
		return nil
	}
	if IsFatalFS(err) && !HasCode(err, ErrCodeFatalFS) {
		return Wrap(ErrCodeFatalFS, message, err)
	}
	return err
}

// Exit codes returned by the sos binary.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitInterrupt = 130
)

// ExitCode maps an error returned from a subcommand to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, context.Canceled):
		return ExitInterrupt
	default:
		return ExitFailure
	}
}
