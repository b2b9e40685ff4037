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

// Package cli implements the sos command line.
//
// # Commands
//
// report - collect diagnostics from the local host (the default command):
//
//	sos report [--batch] [-o PLUGINS] [-k plugin.opt=val] [--case-id ID] [--clean] [--upload]
//
// collect - run report on many hosts and gather the archives into one:
//
//	sos collect --nodes host1,host2 [--cluster-type kubernetes] [--group NAME]
//
// clean, mask - obfuscate an existing report, directory or collect archive:
//
//	sos clean [--map FILE] [--domains LIST] TARGET
//
// upload - send an existing archive to a support endpoint:
//
//	sos upload --upload-url URL ARCHIVE
//
// # Options
//
// Options are resolved in layers: built-in defaults, the configuration file
// (--config-file, /etc/sos/sos.conf by default), the preset named by
// --preset or the configuration file, and finally the flags given on the
// command line. Presets are listed with --list-presets, created with
// --add-preset NAME --desc TEXT and removed with --del-preset NAME.
//
// # Environment Variables
//
//	LOG_LEVEL       Level of the process log on stderr
//	SOSUPLOADUSER   Upload user when none is given
//	SOSUPLOADPASS   Upload password when none is given
//	SOS_TEST_LOGS   Mirror the detailed run log to stderr
//	KUBECONFIG      Kubeconfig used by collect
//
// # Exit Codes
//
//	0    Success
//	1    Failure
//	130  Interrupted
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/NVIDIA/sos/pkg/cli.version=1.0.0'"
package cli
