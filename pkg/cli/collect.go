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

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/sos/pkg/collector"
	"github.com/NVIDIA/sos/pkg/config"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/policy"
)

func collectCmd() *cli.Command {
	flags := collectFlags()
	flags = append(flags, reportFlags()...)
	flags = append(flags, cleanFlags()...)
	flags = append(flags, uploadFlags()...)

	return &cli.Command{
		Name:  "collect",
		Usage: "Collect reports from many hosts into one archive",
		Description: `Run sos report on every selected host in parallel and gather the archives
into a single tarball on this host.

Hosts come from --nodes, a saved --group and, when a cluster profile is
detected or given with --cluster-type, the cluster itself. Entries of --nodes
are host names, addresses or regular expressions matched against the cluster
node names.

# Examples

Collect from three hosts over SSH:
  sos collect --batch --nodes node1,node2,node3 --ssh-user admin --sudo

Collect from the worker nodes of a Kubernetes cluster:
  sos collect --batch --cluster-type kubernetes -c kubernetes.role=worker

Reuse and save host groups:
  sos collect --nodes 'db-[0-9]+' --primary db-0 --save-group databases
  sos collect --group databases`,
		Flags:  flags,
		Before: setup,
		Action: runCollect,
	}
}

func runCollect(ctx context.Context, cmd *cli.Command) error {
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	if err := collectPasswords(opts); err != nil {
		return err
	}
	w := stdout(cmd)

	defaultURL := ""
	if pol, err := policy.NewLinux(); err == nil {
		defaultURL = pol.DefaultUploadURL()
	} else {
		slog.Debug("local policy unavailable", "error", err)
	}

	c, err := collector.New(collector.Config{
		Options: opts,
		Version: version,
		Cmdline: cmdline(),
		Console: w,
		Upload: func(ctx context.Context, path string) error {
			return uploadArchive(ctx, opts, defaultURL, console(opts, w), path)
		},
	})
	if err != nil {
		return err
	}
	res, err := c.Execute(ctx)
	if res != nil {
		slog.Debug("collect finished", "result", res.String(), "duration", res.Duration)
		for host, reason := range res.Failed {
			slog.Debug("host not collected", "host", host, "reason", reason)
		}
	}
	return err
}

// collectPasswords prompts for the passwords requested by --password,
// --password-per-node and --become-root.
func collectPasswords(opts *config.Options) error {
	c := &opts.Collect
	read := func(msg string) (string, error) {
		p, err := prompt(msg, true)
		if err != nil {
			return "", sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to read password", err)
		}
		return p, nil
	}

	var err error
	switch {
	case c.PasswordPerNode:
		c.NodePasswords = make(map[string]string)
		for _, n := range c.Nodes {
			// regular expressions are resolved later and use --password
			if strings.ContainsAny(n, `*+?()[]{}|^$\`) {
				continue
			}
			if c.NodePasswords[n], err = read(fmt.Sprintf("Provide the SSH password for %s@%s: ", c.SSHUser, n)); err != nil {
				return err
			}
		}
	case c.Password:
		if c.SSHPassword, err = read(fmt.Sprintf("Provide the SSH password for user %s: ", c.SSHUser)); err != nil {
			return err
		}
	}
	if c.BecomeRoot && c.SSHUser != "root" {
		if c.BecomePass, err = read("Provide the root password for --become-root: "); err != nil {
			return err
		}
	}
	return nil
}
