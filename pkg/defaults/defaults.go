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

// Concurrency defaults.
const (
	// Threads is the default number of plugin workers.
	Threads = 4

	// Jobs is the default number of concurrent archives (clean) or hosts (collect).
	Jobs = 4
)

// Capture defaults.
const (
	// LogSizeMiB is the default per copy spec size limit in MiB.
	LogSizeMiB = 25

	// NameMax is the filesystem name limit used when mangling command names.
	NameMax = 255

	// HashAlgorithm is the checksum algorithm used when the policy has no preference.
	HashAlgorithm = "sha256"
)

// Persisted state locations.
const (
	// ConfigFile is the default configuration file.
	ConfigFile = "/etc/sos/sos.conf"

	// MapFile is the default cleaner mapping file.
	MapFile = "/etc/sos/cleaner/default_mapping"

	// PresetsDir holds user and vendor presets.
	PresetsDir = "/etc/sos/presets.d"

	// GroupsDir holds system wide host groups.
	GroupsDir = "/etc/sos/groups.d"

	// UserGroupsDir is the per-user host group directory, relative to $HOME.
	UserGroupsDir = ".config/sos/groups.d"

	// PluginDir holds declarative plugin definitions.
	PluginDir = "/etc/sos/plugins.d"

	// TmpDir is used when neither --tmp-dir nor TMPDIR is set.
	TmpDir = "/var/tmp"
)

// Kubernetes defaults for the oc transport and the kubernetes cluster profile.
const (
	// DebugImage runs the per-node debug pods.
	DebugImage = "registry.access.redhat.com/ubi9/ubi:latest"

	// DebugNamespace holds the debug pods when no namespace is given.
	DebugNamespace = "default"
)

// Environment variables consulted by sos.
const (
	EnvUploadUser = "SOSUPLOADUSER"
	EnvUploadPass = "SOSUPLOADPASS"
	EnvTestLogs   = "SOS_TEST_LOGS"
	EnvLogLevel   = "LOG_LEVEL"
)
