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

// Package collector gathers sos reports from many hosts and bundles them
// into a single archive.
//
// # Overview
//
// A collect run resolves the host list (explicit --nodes, a saved host group
// or a cluster profile enumerating nodes), connects to every host through a
// transport.Transport, profiles it, runs a version-appropriate sos report
// command and pulls the resulting tarball back. Successful reports, their
// checksums, the run logs and a manifest are then packed into an outer
// sos-collector archive, optionally obfuscated and uploaded.
//
// Hosts fail independently: a host that cannot be reached, lacks sos or
// whose report fails is recorded in the manifest and the run continues.
// The run only fails when no host produced a report.
//
// # Usage
//
//	c, err := collector.New(collector.Config{
//	    Options: opts,
//	    Version: "4.9.0",
//	})
//	if err != nil {
//	    return err
//	}
//	res, err := c.Execute(ctx)
//
// # Cluster Profiles
//
// A ClusterProfile enumerates nodes and may label them or force a
// transport. "none" only uses the primary and --nodes; "kubernetes" lists
// cluster nodes through the API server and runs the reports in privileged
// debug pods.
package collector
