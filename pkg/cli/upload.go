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
	"io"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/sos/pkg/config"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
	"github.com/NVIDIA/sos/pkg/policy"
	"github.com/NVIDIA/sos/pkg/upload"
)

func uploadCmd() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload an existing archive",
		ArgsUsage: "ARCHIVE",
		Description: `Send an archive to a support endpoint. The target is chosen by
--upload-protocol, else by the URL scheme (https, http, ftp, sftp, s3, oci,
nats), else the distribution's default location is used.

# Examples

  sos upload --upload-url https://support.example.com/upload sosreport.tar.xz
  sos upload --upload-url s3://reports/cases --upload-s3-region us-east-1 sosreport.tar.xz`,
		Flags:  uploadFlags(),
		Before: setup,
		Action: runUpload,
	}
}

func runUpload(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return sosErrors.New(sosErrors.ErrCodeInvalidRequest, "an archive to upload is required")
	}
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	defaultURL := ""
	if pol, err := policy.NewLinux(); err == nil {
		defaultURL = pol.DefaultUploadURL()
	}
	return uploadArchive(ctx, opts, defaultURL, console(opts, stdout(cmd)), path)
}

// uploadArchive sends path with the resolved upload options.
func uploadArchive(ctx context.Context, opts *config.Options, defaultURL string, w io.Writer, path string) error {
	d := &upload.Dispatcher{
		Options:    &opts.Upload,
		Batch:      opts.Batch,
		DefaultURL: defaultURL,
		Prompt:     prompt,
	}
	fmt.Fprintf(w, "Attempting upload of %s\n", filepath.Base(path))
	res, err := d.Upload(ctx, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Uploaded archive to %s (%d bytes in %s)\n", res.Location, res.Bytes, res.Duration.Round(time.Millisecond))
	return nil
}
