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

package upload

import (
	"context"
	"net"
	"path/filepath"

	"github.com/jlaffaye/ftp"

	"github.com/NVIDIA/sos/pkg/defaults"
)

func init() {
	Register(ftpTarget{})
}

// ftpTarget stores the archive in the URL path or --upload-directory,
// logging in anonymously when no user is known.
type ftpTarget struct{}

func (ftpTarget) Name() string      { return "ftp" }
func (ftpTarget) Schemes() []string { return []string{"ftp"} }

func (ftpTarget) Upload(ctx context.Context, req *Request) error {
	addr := req.URL.Host
	if req.URL.Port() == "" {
		addr = net.JoinHostPort(req.URL.Hostname(), "21")
	}
	c, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(defaults.HTTPConnectTimeout))
	if err != nil {
		return err
	}
	defer func() { _ = c.Quit() }()

	user, pass := req.Creds.User, req.Creds.Password
	if user == "" {
		user, pass = "anonymous", "anonymous@"
	}
	if err := c.Login(user, pass); err != nil {
		return err
	}
	dir := req.Options.Directory
	if dir == "" {
		dir = req.URL.Path
	}
	if dir != "" && dir != "/" {
		if err := c.ChangeDir(dir); err != nil {
			return err
		}
	}

	r, _, err := req.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	return c.Stor(filepath.Base(req.Archive), r)
}
