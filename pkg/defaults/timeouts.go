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

package defaults

import "time"

// Report timeouts for plugin collection.
const (
	// PluginTimeout is the default wall-clock budget for one plugin's collection.
	// Overridden globally by --plugin-timeout and per plugin by the "timeout" option.
	PluginTimeout = 300 * time.Second

	// CommandTimeout is the default timeout for a single captured command.
	CommandTimeout = 300 * time.Second

	// TimeoutAllowance is the slack allowed past a command timeout before the
	// process group is forcibly killed.
	TimeoutAllowance = 5 * time.Second

	// ShutdownGrace is how long in-flight commands may run after SIGINT/SIGTERM
	// before they are killed.
	ShutdownGrace = 5 * time.Second

	// PredicateCommandTimeout bounds commands run to evaluate predicates.
	PredicateCommandTimeout = 30 * time.Second
)

// Collector timeouts for multi-host runs.
const (
	// CollectorTimeout is the default timeout for a remote sos report run.
	CollectorTimeout = 600 * time.Second

	// CollectorCommandTimeout is the default timeout for short remote commands.
	CollectorCommandTimeout = 180 * time.Second

	// SSHConnectTimeout is the timeout for establishing an SSH connection.
	SSHConnectTimeout = 15 * time.Second

	// ReconnectAttempts is the number of reconnect attempts made on disconnect.
	ReconnectAttempts = 5

	// DebugPodTimeout bounds the wait for an oc transport debug pod to run.
	DebugPodTimeout = 3 * time.Minute
)

// HTTP client timeouts for uploads.
const (
	// HTTPConnectTimeout is the timeout for establishing connections.
	HTTPConnectTimeout = 10 * time.Second

	// HTTPTLSHandshakeTimeout is the timeout for TLS handshake.
	HTTPTLSHandshakeTimeout = 10 * time.Second

	// HTTPResponseHeaderTimeout is the timeout for reading response headers
	// after an upload body has been sent.
	HTTPResponseHeaderTimeout = 60 * time.Second

	// HTTPKeepAlive is the keep-alive duration for connections.
	HTTPKeepAlive = 30 * time.Second

	// UploadTimeout bounds a whole upload attempt.
	UploadTimeout = 60 * time.Minute
)
