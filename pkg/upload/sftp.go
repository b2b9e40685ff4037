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
	"errors"
	"net"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/NVIDIA/sos/pkg/defaults"
	"github.com/NVIDIA/sos/pkg/transport"
)

func init() {
	Register(sftpTarget{})
}

type sftpTarget struct{}

func (sftpTarget) Name() string      { return "sftp" }
func (sftpTarget) Schemes() []string { return []string{"sftp"} }

func (sftpTarget) Upload(ctx context.Context, req *Request) error {
	if req.Creds.User == "" {
		return errors.New("sftp uploads require a user")
	}
	var auths []ssh.AuthMethod
	if req.Creds.Password != "" {
		auths = append(auths, ssh.Password(req.Creds.Password))
	}
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			defer conn.Close()
			auths = append(auths, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}
	if len(auths) == 0 {
		return errors.New("no password or ssh agent available for sftp upload")
	}

	addr := req.URL.Host
	if req.URL.Port() == "" {
		addr = net.JoinHostPort(req.URL.Hostname(), "22")
	}
	d := net.Dialer{Timeout: defaults.SSHConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            req.Creds.User,
		Auth:            auths,
		HostKeyCallback: transport.HostKeyCallback(req.Log),
		Timeout:         defaults.SSHConnectTimeout,
	})
	if err != nil {
		conn.Close()
		return err
	}
	client := ssh.NewClient(cc, chans, reqs)
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return err
	}
	defer sc.Close()

	dir := req.Options.Directory
	if dir == "" {
		dir = req.URL.Path
	}
	remote := path.Join(dir, filepath.Base(req.Archive))
	if dir == "" {
		remote = filepath.Base(req.Archive)
	}
	f, err := sc.Create(remote)
	if err != nil {
		return err
	}
	r, _, err := req.open(ctx)
	if err != nil {
		f.Close()
		return err
	}
	defer r.Close()
	if _, err := f.ReadFrom(r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
