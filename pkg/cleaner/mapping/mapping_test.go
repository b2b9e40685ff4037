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

package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPv4KeepsNetworkStructure(t *testing.T) {
	m := NewIPv4()
	steps := []struct {
		in   string
		want string
	}{
		{"192.168.1.0/24", "100.0.0.0/24"},
		{"192.168.1.5/24", "100.0.0.1/24"},
		{"192.168.1.5", "100.0.0.1"},
		{"192.168.1.9", "100.0.0.2"},
		{"192.168.1.255", "100.0.0.255"},
		{"10.0.0.0/8", "101.0.0.0/8"},
		{"10.20.30.40", "101.0.0.1"},
		{"203.0.113.7", "11.11.11.11"},
		{"203.0.113.8", "11.11.11.12"},
		{"203.0.113.7", "11.11.11.11"},
		{"/192.168.1.9", "100.0.0.2"},
	}
	for _, s := range steps {
		assert.Equal(t, s.want, m.Get(s.in), s.in)
	}
}

func TestIPv4Ignored(t *testing.T) {
	m := NewIPv4()
	for _, in := range []string{"127.0.0.1", "0.0.0.0", "169.254.10.1", "8.8.8.8", "8.8.4.4", "255.255.255.0", "1.2.3.4", "not-an-ip"} {
		assert.Equal(t, in, m.Get(in), in)
	}
	assert.Zero(t, m.Len())
}

func TestIPv4ObfuscatedValuesPassThrough(t *testing.T) {
	m := NewIPv4()
	got := m.Get("192.168.1.5/24")
	require.Equal(t, "100.0.0.1/24", got)
	assert.Equal(t, got, m.Get(got))
	assert.Equal(t, "100.0.0.1", m.Get("100.0.0.1"))
}

func TestIPv4SkipsReservedOctets(t *testing.T) {
	m := NewIPv4()
	m.firstOctet = 126
	assert.Equal(t, "126.0.0.0/16", m.Get("10.1.0.0/16"))
	assert.Equal(t, "128.0.0.0/16", m.Get("10.2.0.0/16"))
}

func TestIPv4LoadResumesAllocation(t *testing.T) {
	m := NewIPv4()
	m.Load(map[string]string{
		"192.168.1.0/24": "100.0.0.0/24",
		"192.168.1.5":    "100.0.0.1",
	})
	assert.Equal(t, "100.0.0.1", m.Get("192.168.1.5"))
	assert.Equal(t, "100.0.0.2", m.Get("192.168.1.6"))
	assert.Equal(t, "101.0.0.0/16", m.Get("10.1.0.0/16"))
}

func TestIPv6(t *testing.T) {
	m := NewIPv6()
	steps := []struct {
		in   string
		want string
	}{
		{"2620:52:0:2d80::4fe/64", "2001:db8:0:1::1/64"},
		{"2620:52:0:2d80::4fe", "2001:db8:0:1::1"},
		{"2620:52:0:2d80::/64", "2001:db8:0:1::/64"},
		{"2620:52:0:2d80::99", "2001:db8:0:1::2"},
		{"fd00:1:2:3::10", "fd53:0:0:1::1"},
		{"fe80::1ff:fe23:4567:890a", "fe80::1"},
	}
	for _, s := range steps {
		assert.Equal(t, s.want, m.Get(s.in), s.in)
	}
	for _, in := range []string{"::1", "::", "ff02::1", "::/0", "::ffff:10.0.0.1"} {
		assert.Equal(t, in, m.Get(in), in)
	}
}

func TestIPv6LoadResumesAllocation(t *testing.T) {
	m := NewIPv6()
	m.Load(map[string]string{
		"2620:52:0:2d80::/64": "2001:db8:0:1::/64",
		"2620:52:0:2d80::4fe": "2001:db8:0:1::1",
	})
	assert.Equal(t, "2001:db8:0:1::2", m.Get("2620:52:0:2d80::5"))
	assert.Equal(t, "2001:db8:0:2::1", m.Get("2620:52:0:2d81::5"))
}

func TestMAC(t *testing.T) {
	m := NewMAC()
	assert.Equal(t, "53:4f:53:00:00:01", m.Get("60:55:CB:4B:C9:27"))
	assert.Equal(t, "53:4f:53:00:00:01", m.Get("60-55-cb-4b-c9-27"))
	assert.Equal(t, "53:4f:53:ff:fe:00:00:02", m.Get("60:55:cb:ff:fe:4b:c9:27"))
	assert.Equal(t, "534f:53ff:fe00:0003", m.Get("6055:cbff:fe4b:c927"))
	assert.Equal(t, "ff:ff:ff:ff:ff:ff", m.Get("ff:ff:ff:ff:ff:ff"))
	assert.Equal(t, "53:4f:53:00:00:01", m.Get("53:4f:53:00:00:01"))

	v, ok := m.Lookup("60-55-CB-4B-C9-27")
	require.True(t, ok)
	assert.Equal(t, "53:4f:53:00:00:01", v)

	loaded := NewMAC()
	loaded.Load(map[string]string{"aa:bb:cc:dd:ee:ff": "53:4f:53:00:00:07"})
	assert.Equal(t, "53:4f:53:00:00:08", loaded.Get("11:22:33:44:55:66"))
}

func TestHostnameSharesDomain(t *testing.T) {
	m := NewHostname("example.com")
	assert.Equal(t, "host0.obfuscateddomain0.com", m.Get("db1.example.com"))
	assert.Equal(t, "host1.obfuscateddomain0.com", m.Get("db2.example.com"))
	assert.Equal(t, "host0.obfuscateddomain0.com", m.Get("DB1.Example.com"))
	assert.Equal(t, "obfuscateddomain0.com", m.Get("example.com"))
	assert.Equal(t, "host2.obfuscateddomain1.com", m.Get("a.b.example.com"))

	assert.Equal(t, "www.redhat.com", m.Get("www.redhat.com"))
	assert.Equal(t, "localhost.example.com", m.Get("localhost.example.com"))
	assert.Equal(t, "host0.obfuscateddomain0.com", m.Get("host0.obfuscateddomain0.com"))
}

func TestHostnameAddHost(t *testing.T) {
	m := NewHostname()
	assert.Equal(t, "host0.obfuscateddomain0.org", m.AddHost("node1.lab.example.org"))
	assert.Equal(t, []string{"node1"}, m.ShortNames())
	assert.Equal(t, "host0", m.Get("node1"))
	assert.Equal(t, "host1.obfuscateddomain1.org", m.Get("other.example.org"))
	assert.Equal(t, "localhost", m.AddHost("localhost"))
}

func TestHostnameLoad(t *testing.T) {
	m := NewHostname()
	m.Load(map[string]string{"db1.example.com": "host4.obfuscateddomain2.com"})
	assert.Equal(t, "host4.obfuscateddomain2.com", m.Get("db1.example.com"))
	assert.Equal(t, "host5.obfuscateddomain2.com", m.Get("db9.example.com"))
	assert.Equal(t, "host6.obfuscateddomain3.com", m.Get("x.example.net.example.com"))
}

func TestToken(t *testing.T) {
	u := NewUsername()
	assert.Equal(t, "obfuscateduser0", u.Get("alice"))
	assert.Equal(t, "obfuscateduser1", u.Get("bob"))
	assert.Equal(t, "obfuscateduser0", u.Get("alice"))

	k := NewKeyword()
	k.Load(map[string]string{"projectx": "obfuscatedword5"})
	assert.Equal(t, "obfuscatedword6", k.Get("secret"))

	assert.Equal(t, []string{"projectx", "secret"}, SortedKeys(k))
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cleaner", "default_mapping")

	s := NewStore(NewHostname("example.com"), NewIPv4(), NewUsername())
	s.Map(KeyIP).Get("192.168.1.5")
	s.Map(KeyUsername).Get("alice")
	require.NoError(t, s.Save(path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, MapFileMode, fi.Mode().Perm())

	reloaded := NewStore(NewHostname(), NewIPv4(), NewUsername())
	require.NoError(t, reloaded.Load(path))
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
	assert.Equal(t, "11.11.11.11", reloaded.Map(KeyIP).Get("192.168.1.5"))
	assert.Equal(t, "obfuscateduser1", reloaded.Map(KeyUsername).Get("bob"))
}

func TestStoreLoadEdgeCases(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(NewIPv4())

	assert.NoError(t, s.Load(filepath.Join(dir, "missing")))
	assert.Error(t, s.Load(dir))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	assert.NoError(t, s.Load(empty))

	bad := filepath.Join(dir, "bad")
	require.NoError(t, os.WriteFile(bad, []byte(`{"ip_map": [1, 2]}`), 0o600))
	assert.Error(t, s.Load(bad))

	unknown := filepath.Join(dir, "unknown")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"other_map": {"a": "b"}}`), 0o600))
	assert.NoError(t, s.Load(unknown))
	assert.Nil(t, s.Map(KeyMAC))
}
