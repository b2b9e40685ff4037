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

package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/sos/pkg/policy"
)

func TestMangleCommand(t *testing.T) {
	tests := []struct {
		cmd  string
		max  int
		want string
	}{
		{"hostname", 255, "hostname"},
		{"/usr/bin/uname -a", 255, "uname_-a"},
		{"/sbin/ip -d address", 255, "ip_-d_address"},
		{"ls -alhZ /etc/sysconfig", 255, "ls_-alhZ_.etc.sysconfig"},
		{"journalctl --since '2024-01-01 00:00:00'", 255, "journalctl_--since_2024-01-01_00_00_00"},
		{"cat /proc/cpuinfo", 8, "cat_.pro"},
		{"  df -h  ", 255, "df_-h"},
	}
	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			assert.Equal(t, tt.want, MangleCommand(tt.cmd, tt.max))
		})
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"uname": true, "uname.1": true, "abcd": true}
	isTaken := func(s string) bool { return taken[s] }

	assert.Equal(t, "free", uniqueName("free", 255, isTaken))
	assert.Equal(t, "uname.2", uniqueName("uname", 255, isTaken))
	got := uniqueName("abcd", 4, isTaken)
	assert.Equal(t, "ab.1", got)
	assert.LessOrEqual(t, len(got), 4)
}

func TestFileTag(t *testing.T) {
	tests := map[string]string{
		"sshd_config":   "sshd_config",
		"nsswitch.conf": "nsswitch_conf",
		"os-release":    "os_release",
		"messages.1.gz": "messages",
		"yum-cron.conf": "yum_cron_conf",
	}
	for in, want := range tests {
		assert.Equal(t, want, fileTag(in), in)
	}
}

func TestOptions(t *testing.T) {
	o := NewOptions([]OptionSpec{
		{Name: "verbose", Type: OptionBool},
		{Name: "lines", Default: 100},
		{Name: "units", Type: OptionList, Default: []string{"a"}},
		{Name: "mode", Default: "fast"},
	})

	assert.True(t, o.Bool(OptPostproc))
	assert.Equal(t, 0, o.Int(OptTimeout))
	assert.Equal(t, 100, o.Int("lines"))
	assert.Equal(t, []string{"a"}, o.List("units"))
	assert.Equal(t, "fast", o.String("mode"))

	require.NoError(t, o.Set("verbose", "on"))
	assert.True(t, o.Bool("verbose"))
	assert.True(t, o.IsSet("verbose"))
	require.NoError(t, o.Set("lines", "20"))
	assert.Equal(t, 20, o.Int("lines"))
	require.NoError(t, o.Set("units", "x,y:z"))
	assert.Equal(t, []string{"x", "y", "z"}, o.List("units"))

	assert.Error(t, o.Set("lines", "many"))
	assert.Error(t, o.Set("verbose", "maybe"))
	assert.Error(t, o.Set("nope", "1"))
}

func TestOptionsEnableAll(t *testing.T) {
	o := NewOptions([]OptionSpec{{Name: "a", Type: OptionBool}, {Name: "b", Default: false}})
	require.NoError(t, o.Set(OptPostproc, false))
	o.EnableAll()
	assert.True(t, o.Bool("a"))
	assert.True(t, o.Bool("b"))
	assert.False(t, o.Bool(OptPostproc), "global options are left alone")
}

func TestPredicateEvaluate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "os-release"), []byte("ID=fedora\n"), 0o644))

	pol := &policy.Static{
		Root:     root,
		Machine:  "x86_64",
		Packages: map[string]string{"bash": "5.2"},
		Modules:  []string{"nf_tables"},
		Running:  []string{"sshd.service"},
	}
	runner := &fakeRunner{outputs: map[string]fakeOutput{
		"systemctl is-system-running": {output: "running\n"},
	}}
	env := newTestEnv(t, pol, runner)
	ctx := context.Background()

	tests := []struct {
		name string
		pred *Predicate
		want bool
	}{
		{"nil predicate", nil, true},
		{"empty predicate", &Predicate{}, true},
		{"any package", &Predicate{Packages: []string{"zsh", "bash"}}, true},
		{"all packages", &Predicate{Packages: []string{"zsh", "bash"}, Required: map[string]string{ClassPackages: RequireAll}}, false},
		{"none packages", &Predicate{Packages: []string{"zsh"}, Required: map[string]string{ClassPackages: RequireNone}}, true},
		{"kmod loaded", &Predicate{Kmods: []string{"nf_tables"}}, true},
		{"kmod missing", &Predicate{Kmods: []string{"kvm"}}, false},
		{"service running", &Predicate{Services: []string{"sshd"}}, true},
		{"file under sysroot", &Predicate{Files: []string{"/etc/os-release"}}, true},
		{"file missing", &Predicate{Files: []string{"/etc/missing"}}, false},
		{"arch", &Predicate{Arch: []string{"aarch64"}}, false},
		{"cmd output", &Predicate{CmdOutputs: []CmdOutput{{Cmd: "systemctl is-system-running", Output: "running"}}}, true},
		{"cmd output mismatch", &Predicate{CmdOutputs: []CmdOutput{{Cmd: "systemctl is-system-running", Output: "degraded"}}}, false},
		{"classes are all required", &Predicate{Packages: []string{"bash"}, Kmods: []string{"kvm"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := tt.pred.Evaluate(ctx, env)
			assert.Equal(t, tt.want, got)
			if !got {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestTriggerMatches(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc", "ssh"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "etc", "ssh", "sshd_config"), nil, 0o644))
	pol := &policy.Static{Root: root, Machine: "x86_64", Packages: map[string]string{"podman": "4.9"}, Enabled: []string{"chronyd"}}
	env := newTestEnv(t, pol, nil)
	ctx := context.Background()

	assert.True(t, Trigger{}.Matches(ctx, env))
	assert.True(t, Trigger{Files: []string{"/etc/ssh/sshd_*"}}.Matches(ctx, env))
	assert.True(t, Trigger{Packages: []string{"docker", "podman"}}.Matches(ctx, env))
	assert.True(t, Trigger{Services: []string{"chronyd"}}.Matches(ctx, env))
	assert.False(t, Trigger{Packages: []string{"docker"}}.Matches(ctx, env))
	assert.False(t, Trigger{Architectures: []string{"ppc64le"}}.Matches(ctx, env))
	assert.False(t, Trigger{Packages: []string{"podman"}, Architectures: []string{"s390x"}}.Matches(ctx, env))
}

func TestPluginValidate(t *testing.T) {
	setup := func(context.Context, *Context) error { return nil }
	assert.NoError(t, (&Plugin{Name: "host", Families: []string{"independent"}, Setup: setup}).Validate())
	assert.Error(t, (&Plugin{Name: "Bad-Name", Families: []string{"independent"}, Setup: setup}).Validate())
	assert.Error(t, (&Plugin{Name: "nosetup", Families: []string{"independent"}}).Validate())
	assert.Error(t, (&Plugin{Name: "nofamily", Setup: setup}).Validate())
}

func TestRegistry(t *testing.T) {
	setup := func(context.Context, *Context) error { return nil }
	r := NewRegistry()
	assert.True(t, r.IsEmpty())
	require.NoError(t, r.Register(&Plugin{Name: "kernel", Families: []string{"independent"}, Profiles: []string{"system", "hardware"}, Setup: setup}))
	require.NoError(t, r.Register(&Plugin{Name: "host", Families: []string{"independent"}, Profiles: []string{"system"}, Setup: setup}))
	assert.Error(t, r.Register(&Plugin{Name: "host", Families: []string{"independent"}, Setup: setup}))

	assert.Equal(t, []string{"host", "kernel"}, r.Names())
	assert.Equal(t, map[string][]string{"system": {"host", "kernel"}, "hardware": {"kernel"}}, r.Profiles())
	p, found := r.Get("kernel")
	require.True(t, found)
	assert.Equal(t, "kernel", p.Name)
}
