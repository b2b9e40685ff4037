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
	"math/big"
	"net/netip"
	"strconv"
	"strings"
)

var (
	// global networks are renumbered inside the documentation prefix
	globalBase = netip.MustParsePrefix("2001:db8::/32")
	// unique local networks keep the fd prefix
	uniqueLocalBase = netip.MustParsePrefix("fd53::/16")
)

// defaultIPv6Bits is assumed for addresses written without a prefix length.
const defaultIPv6Bits = 64

// IPv6 obfuscates IPv6 addresses and networks. Global networks become the
// Nth subnet of the same size inside 2001:db8::/32, unique local networks the
// Nth subnet inside fd53::/16; link-local networks are kept since they carry
// no site information. Hosts are numbered sequentially inside the obfuscated
// network of their /64 (or the prefix written next to them).
type IPv6 struct {
	*dataset
	networks map[netip.Prefix]netip.Prefix
	obfNets  map[netip.Prefix]struct{}
	hosts    map[netip.Addr]netip.Addr
	used     map[netip.Addr]struct{}
	nextHost map[netip.Prefix]uint64
	nextNet  map[netip.Prefix]uint64
}

// NewIPv6 returns an empty IPv6 map.
func NewIPv6() *IPv6 {
	m := &IPv6{
		networks: make(map[netip.Prefix]netip.Prefix),
		obfNets:  make(map[netip.Prefix]struct{}),
		hosts:    make(map[netip.Addr]netip.Addr),
		used:     make(map[netip.Addr]struct{}),
		nextHost: make(map[netip.Prefix]uint64),
		nextNet:  make(map[netip.Prefix]uint64),
	}
	m.dataset = newDataset(KeyIPv6, ignoreIPv6)
	return m
}

func ignoreIPv6(item string) bool {
	if item == "::/0" {
		return true
	}
	a, err := netip.ParseAddr(strings.SplitN(item, "/", 2)[0])
	if err != nil || !a.Is6() || a.Is4In6() {
		return true
	}
	return a.IsLoopback() || a.IsUnspecified() || a.IsMulticast()
}

// Get implements Map.
func (m *IPv6) Get(item string) string {
	return m.resolve(strings.ToLower(item), m.sanitize)
}

func (m *IPv6) sanitize(item string) (string, bool) {
	explicit := strings.Contains(item, "/")
	var p netip.Prefix
	if explicit {
		pp, err := netip.ParsePrefix(item)
		if err != nil {
			return "", false
		}
		p = pp
	} else {
		a, err := netip.ParseAddr(item)
		if err != nil {
			return "", false
		}
		p = netip.PrefixFrom(a.WithZone(""), defaultIPv6Bits)
	}
	a := p.Addr()
	if _, ok := m.used[a]; ok {
		return "", false
	}

	network := p.Masked()
	obf := m.network(network)
	if explicit && a == network.Addr() {
		return obf.String(), true
	}
	h := m.hostIn(a, obf)
	if explicit {
		return h.String() + "/" + strconv.Itoa(p.Bits()), true
	}
	return h.String(), true
}

func (m *IPv6) network(n netip.Prefix) netip.Prefix {
	if obf, ok := m.networks[n]; ok {
		return obf
	}
	var base netip.Prefix
	switch {
	case n.Addr().IsLinkLocalUnicast():
	case n.Addr().IsPrivate():
		base = uniqueLocalBase
	default:
		base = globalBase
	}
	if base.IsValid() && n.Bits() > base.Bits() {
		room := n.Bits() - base.Bits()
		for {
			m.nextNet[base]++
			idx := m.nextNet[base]
			if room < 64 && idx >= uint64(1)<<uint(room) {
				break
			}
			a, ok := addShifted(base.Addr(), idx, uint(128-n.Bits()))
			if !ok {
				break
			}
			cand := netip.PrefixFrom(a, n.Bits())
			if _, taken := m.obfNets[cand]; taken {
				continue
			}
			m.networks[n] = cand
			m.obfNets[cand] = struct{}{}
			m.set(n.String(), cand.String())
			return cand
		}
	}
	m.networks[n] = n
	return n
}

func (m *IPv6) hostIn(a netip.Addr, obf netip.Prefix) netip.Addr {
	if v, ok := m.hosts[a]; ok {
		return v
	}
	for {
		m.nextHost[obf]++
		cand, ok := addShifted(obf.Addr(), m.nextHost[obf], 0)
		if !ok || !obf.Contains(cand) {
			return a
		}
		if _, taken := m.used[cand]; taken {
			continue
		}
		m.hosts[a] = cand
		m.used[cand] = struct{}{}
		return cand
	}
}

// Load implements Map.
func (m *IPv6) Load(entries map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.load(entries)
	for k, v := range entries {
		if strings.Contains(k, "/") {
			kp, err1 := netip.ParsePrefix(k)
			vp, err2 := netip.ParsePrefix(v)
			if err1 != nil || err2 != nil || !kp.Addr().Is6() || !vp.Addr().Is6() {
				continue
			}
			if kp == kp.Masked() && kp.Bits() < 128 {
				m.networks[kp] = vp.Masked()
				m.obfNets[vp.Masked()] = struct{}{}
				continue
			}
			m.hosts[kp.Addr()] = vp.Addr()
			m.used[vp.Addr()] = struct{}{}
			continue
		}
		ka, err1 := netip.ParseAddr(k)
		va, err2 := netip.ParseAddr(v)
		if err1 != nil || err2 != nil || !ka.Is6() || !va.Is6() {
			continue
		}
		m.hosts[ka] = va
		m.used[va] = struct{}{}
	}
}

// addShifted returns a + n<<shift, reporting false on overflow.
func addShifted(a netip.Addr, n uint64, shift uint) (netip.Addr, bool) {
	b := a.As16()
	v := new(big.Int).SetBytes(b[:])
	v.Add(v, new(big.Int).Lsh(new(big.Int).SetUint64(n), shift))
	if v.BitLen() > 128 {
		return netip.Addr{}, false
	}
	var out [16]byte
	v.FillBytes(out[:])
	return netip.AddrFrom16(out), true
}
