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

// Package transport runs commands on the hosts of a multi-host collection.
//
// A Transport hides how commands reach a host. Three implementations are
// provided:
//
//   - Local runs commands as local subprocesses, for when the "remote"
//     host is the one sos runs on.
//   - SSH keeps one multiplexed SSH connection per host open for the whole
//     run (the control_persist transport) and fetches files over SFTP.
//   - Kube starts a privileged debug pod on a Kubernetes node and runs
//     every command through pod exec, chrooted into the node's root
//     filesystem (the oc transport).
//
// Commands are shell strings. RunOptions.NeedRoot wraps a command in sudo
// or su when the connecting user is not root, feeding the configured
// password on stdin. Dropped connections are re-established up to
// defaults.ReconnectAttempts times before the host is given up on.
//
// Usage:
//
//	t, err := transport.New(transport.KindAuto, "node1.example.com", transport.Options{
//	    User:    "admin",
//	    KeyFile: "~/.ssh/id_ed25519",
//	    Sudo:    true,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := t.Connect(ctx); err != nil {
//	    return err
//	}
//	defer t.Disconnect()
//	res, err := t.Run(ctx, "sos report --batch", transport.RunOptions{NeedRoot: true})
package transport
