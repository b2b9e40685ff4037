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

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/sos/pkg/cleaner"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

func cleanCmd() *cli.Command {
	return &cli.Command{
		Name:      "clean",
		Aliases:   []string{"mask"},
		Usage:     "Obfuscate sensitive data in an existing report",
		ArgsUsage: "TARGET",
		Description: `Obfuscate IP and MAC addresses, host and domain names, user names and
keywords in a report archive, an extracted report directory or an archive
produced by sos collect. The mapping between real and obfuscated values is
kept in the map file so later runs stay consistent.

# Examples

  sos clean /var/tmp/sosreport-host-2025-01-01-abcde.tar.xz
  sos clean --batch --domains example.com --keywords project-x ./report-dir`,
		Flags:  cleanFlags(),
		Before: setup,
		Action: runClean,
	}
}

func runClean(ctx context.Context, cmd *cli.Command) error {
	target := cmd.Args().First()
	if target == "" {
		return sosErrors.New(sosErrors.ErrCodeInvalidRequest, "a report archive or directory to clean is required")
	}
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	w := stdout(cmd)
	if err := confirm(opts, console(opts, w), cleaner.Disclaimer); err != nil {
		return err
	}
	c, err := cleaner.New(cleaner.Config{
		Options: opts,
		Console: w,
		Version: version,
	})
	if err != nil {
		return err
	}
	_, err = c.Execute(ctx, target)
	return err
}
