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

package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServices map[string]unitState

func (f fakeServices) units(context.Context) (map[string]unitState, error) { return f, nil }

func writeRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for p, content := range files {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func TestFamiliesFor(t *testing.T) {
	tests := []struct {
		id       string
		like     []string
		wantName string
		wantFams []string
	}{
		{"rhel", []string{"fedora"}, FamilyRedHat, []string{FamilyIndependent, FamilyRedHat}},
		{"ubuntu", []string{"debian"}, FamilyUbuntu, []string{FamilyIndependent, FamilyUbuntu, FamilyDebian}},
		{"debian", nil, FamilyDebian, []string{FamilyIndependent, FamilyDebian}},
		{"rocky", []string{"rhel", "centos", "fedora"}, FamilyRedHat, []string{FamilyIndependent, FamilyRedHat}},
		{"sles", nil, FamilySuse, []string{FamilyIndependent, FamilySuse}},
		{"arch", nil, "linux", []string{FamilyIndependent}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			name, fams := familiesFor(tt.id, tt.like)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantFams, fams)
		})
	}
}

func TestNewLinuxDebianRoot(t *testing.T) {
	root := writeRoot(t, map[string]string{
		"etc/os-release": "NAME=\"Ubuntu\"\nID=ubuntu\nID_LIKE=debian\nVERSION_ID=\"22.04\"\nPRETTY_NAME=\"Ubuntu 22.04.4 LTS\"\n",
		"etc/hostname":   "node1\n",
		"var/lib/dpkg/status": "Package: openssh-server\nStatus: install ok installed\nVersion: 1:8.9p1-3\n\n" +
			"Package: removed-pkg\nStatus: deinstall ok config-files\nVersion: 1.0\n\n" +
			"Package: sos\nStatus: install ok installed\nVersion: 4.5.6-0ubuntu1\n",
	})

	l, err := NewLinux(WithSysroot(root), withServiceSource(fakeServices{
		"ssh.service": {active: true, enabled: true},
	}))
	require.NoError(t, err)

	ctx := context.Background()
	assert.Equal(t, FamilyUbuntu, l.Name())
	assert.Equal(t, "Ubuntu 22.04.4 LTS", l.Distro())
	assert.Equal(t, "22.04", l.Release())
	assert.Equal(t, "node1", l.Hostname())
	assert.Equal(t, root, l.Sysroot())
	assert.NotEmpty(t, l.DefaultUploadURL())
	assert.True(t, ValidFamily(l, []string{FamilyDebian}))
	assert.False(t, ValidFamily(l, []string{FamilyRedHat}))
	assert.True(t, ValidFamily(l, nil))

	v, ok := l.PackageVersion(ctx, "sos")
	assert.True(t, ok)
	assert.Equal(t, "4.5.6-0ubuntu1", v)
	_, ok = l.PackageVersion(ctx, "removed-pkg")
	assert.False(t, ok)
	assert.Len(t, l.Packages(ctx), 2)

	assert.True(t, l.ServiceRunning(ctx, "ssh"))
	assert.True(t, l.ServiceEnabled(ctx, "ssh.service"))
	assert.False(t, l.ServiceRunning(ctx, "nginx"))
}

func TestNewLinuxRPMRoot(t *testing.T) {
	root := writeRoot(t, map[string]string{
		"usr/lib/os-release":       "ID=\"rhel\"\nID_LIKE=\"fedora\"\nVERSION_ID=\"9.3\"\n",
		"var/lib/rpm/rpmdb.sqlite": "",
	})
	var called []string
	runner := func(_ context.Context, name string, args ...string) ([]byte, error) {
		called = append(called, name)
		if name == "rpm" {
			return []byte("kernel 5.14.0-362.el9\nsos 4.7.0-1.el9\n"), nil
		}
		return nil, errors.New("unexpected command")
	}

	l, err := NewLinux(WithSysroot(root), WithRunner(runner), withServiceSource(fakeServices{}))
	require.NoError(t, err)
	assert.Equal(t, FamilyRedHat, l.Name())
	assert.Equal(t, "sha256", l.HashAlgorithm())

	v, ok := l.PackageVersion(context.Background(), "sos")
	assert.True(t, ok)
	assert.Equal(t, "4.7.0-1.el9", v)
	assert.Equal(t, []string{"rpm"}, called)
}

func TestNewLinuxMissingRelease(t *testing.T) {
	_, err := NewLinux(WithSysroot(t.TempDir()))
	assert.Error(t, err)
}

func TestFromOSRelease(t *testing.T) {
	rel, err := ParseOSRelease([]byte("NAME=\"Debian GNU/Linux\"\nID=debian\nVERSION_ID=\"12\"\n"))
	require.NoError(t, err)

	p := FromOSRelease(rel, "db1")
	assert.Equal(t, FamilyDebian, p.Name())
	assert.Equal(t, "Debian GNU/Linux", p.Distro())
	assert.Equal(t, "12", p.Release())
	assert.Equal(t, "db1", p.Hostname())
	assert.Equal(t, "/", p.Sysroot())
}

func TestStaticPolicy(t *testing.T) {
	s := &Static{
		Packages: map[string]string{"bash": "5.1"},
		Modules:  []string{"xfs"},
		Running:  []string{"sshd.service"},
		Enabled:  []string{"chronyd"},
	}
	ctx := context.Background()
	assert.Equal(t, "linux", s.Name())
	assert.Equal(t, []string{FamilyIndependent}, s.Families())
	assert.True(t, s.KernelModuleLoaded(ctx, "xfs"))
	assert.True(t, s.ServiceRunning(ctx, "sshd"))
	assert.True(t, s.ServiceEnabled(ctx, "chronyd.service"))
	_, ok := s.PackageVersion(ctx, "zsh")
	assert.False(t, ok)
}

func TestParsePackageList(t *testing.T) {
	m, err := ParsePackageList([]byte("bash 5.1-6\nopenssl 3.0.7-27.el9\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bash": "5.1-6", "openssl": "3.0.7-27.el9"}, m)
}

func TestUnitName(t *testing.T) {
	assert.Equal(t, "sshd.service", unitName("sshd"))
	assert.Equal(t, "docker.socket", unitName("docker.socket"))
	assert.Equal(t, "", unitName(""))
}
