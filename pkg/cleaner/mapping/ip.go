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
	"net/netip"
	"strings"
)

// first octets never used for obfuscated networks
var reservedOctets = map[int]bool{127: true, 169: true, 172: true, 192: true}

const (
	firstNetworkOctet = 100
	lastNetworkOctet  = 223
	// lone addresses are built from octets in [loneMin, loneMin+loneSpan)
	loneMin  = 11
	loneSpan = 89
)

// IPv4 obfuscates IPv4 addresses and networks while keeping network
// membership visible. The first network seen becomes 100.0.0.0 with the
// same prefix length, the next 101.0.0.0 and so on. Hosts inside a known
// network are numbered sequentially inside the obfuscated network and the
// broadcast address maps to the obfuscated broadcast. Addresses outside any
// known network get sequential lone addresses whose octets stay within 11-99.
type IPv4 struct {
	*dataset
	networks   map[netip.Prefix]netip.Prefix
	obfNets    map[netip.Prefix]struct{}
	hosts      map[netip.Addr]netip.Addr
	used       map[netip.Addr]struct{}
	nextHost   map[netip.Prefix]uint32
	firstOctet int
	lone       uint32
}

// NewIPv4 returns an empty IPv4 map.
func NewIPv4() *IPv4 {
	m := &IPv4{
		networks:   make(map[netip.Prefix]netip.Prefix),
		obfNets:    make(map[netip.Prefix]struct{}),
		hosts:      make(map[netip.Addr]netip.Addr),
		used:       make(map[netip.Addr]struct{}),
		nextHost:   make(map[netip.Prefix]uint32),
		firstOctet: firstNetworkOctet,
	}
	m.dataset = newDataset(KeyIP, ignoreIPv4)
	return m
}

func ignoreIPv4(item string) bool {
	a, err := netip.ParseAddr(strings.SplitN(item, "/", 2)[0])
	if err != nil || !a.Is4() {
		return true
	}
	b := a.As4()
	switch {
	case a.IsLoopback(), a.IsLinkLocalUnicast(), a.IsUnspecified():
		return true
	case b[0] == 0, b[0] == 1, b[0] == 255:
		return true
	case item == "8.8.8.8", item == "8.8.4.4":
		return true
	}
	return false
}

// Get implements Map. Leading '/', '=', ']' and ')' picked up by loose
// matches are dropped before lookup.
func (m *IPv4) Get(item string) string {
	item = strings.TrimLeft(item, "/=])")
	return m.resolve(item, m.sanitize)
}

func (m *IPv4) sanitize(item string) (string, bool) {
	if addr, bits, ok := strings.Cut(item, "/"); ok {
		p, err := netip.ParsePrefix(item)
		if err != nil || !p.Addr().Is4() {
			return "", false
		}
		if m.isUsed(p.Addr()) {
			return "", false
		}
		if p.Bits() == 32 || p.Bits() < 8 {
			return m.host(p.Addr()).String() + "/" + bits, true
		}
		network := p.Masked()
		obf, ok := m.network(network)
		if !ok {
			return m.host(p.Addr()).String() + "/" + bits, true
		}
		if addr == network.Addr().String() {
			return obf.String(), true
		}
		return m.hostIn(p.Addr(), network, obf).String() + "/" + bits, true
	}

	a, err := netip.ParseAddr(item)
	if err != nil || !a.Is4() || m.isUsed(a) {
		return "", false
	}
	return m.host(a).String(), true
}

func (m *IPv4) isUsed(a netip.Addr) bool {
	_, ok := m.used[a]
	return ok
}

// host maps a single address, inside the smallest known network when one
// contains it.
func (m *IPv4) host(a netip.Addr) netip.Addr {
	if v, ok := m.hosts[a]; ok {
		return v
	}
	var best netip.Prefix
	for n := range m.networks {
		if n.Contains(a) && (!best.IsValid() || n.Bits() > best.Bits()) {
			best = n
		}
	}
	if best.IsValid() {
		return m.hostIn(a, best, m.networks[best])
	}
	v := m.nextLone()
	m.remember(a, v)
	return v
}

func (m *IPv4) hostIn(a netip.Addr, network, obf netip.Prefix) netip.Addr {
	if v, ok := m.hosts[a]; ok {
		return v
	}
	var v netip.Addr
	if a == broadcast4(network) {
		v = broadcast4(obf)
	} else {
		v = m.nextIn(obf)
		if !v.IsValid() {
			v = m.nextLone()
		}
	}
	m.remember(a, v)
	return v
}

func (m *IPv4) remember(orig, obf netip.Addr) {
	m.hosts[orig] = obf
	m.used[obf] = struct{}{}
}

func (m *IPv4) nextIn(obf netip.Prefix) netip.Addr {
	bc := broadcast4(obf)
	for {
		m.nextHost[obf]++
		cand := addr4Plus(obf.Addr(), m.nextHost[obf])
		if !obf.Contains(cand) || cand == bc {
			return netip.Addr{}
		}
		if !m.isUsed(cand) {
			return cand
		}
	}
}

func (m *IPv4) nextLone() netip.Addr {
	for {
		n := m.lone
		m.lone++
		var b [4]byte
		for i := 3; i >= 0; i-- {
			b[i] = byte(loneMin + n%loneSpan)
			n /= loneSpan
		}
		cand := netip.AddrFrom4(b)
		if !m.isUsed(cand) {
			return cand
		}
	}
}

// network returns the obfuscated counterpart of a masked network, allocating
// the next free first octet. It reports false once the octet pool is spent.
func (m *IPv4) network(n netip.Prefix) (netip.Prefix, bool) {
	if obf, ok := m.networks[n]; ok {
		return obf, true
	}
	for m.firstOctet <= lastNetworkOctet {
		o := m.firstOctet
		m.firstOctet++
		if reservedOctets[o] {
			continue
		}
		obf := netip.PrefixFrom(netip.AddrFrom4([4]byte{byte(o), 0, 0, 0}), n.Bits()).Masked()
		if _, taken := m.obfNets[obf]; taken {
			continue
		}
		m.networks[n] = obf
		m.obfNets[obf] = struct{}{}
		m.set(n.String(), obf.String())
		return obf, true
	}
	return netip.Prefix{}, false
}

// Load implements Map. Network pairs seed the network table and host pairs
// the host table so allocation resumes without reusing any value.
func (m *IPv4) Load(entries map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.load(entries)
	for k, v := range entries {
		if strings.Contains(k, "/") {
			kp, err1 := netip.ParsePrefix(k)
			vp, err2 := netip.ParsePrefix(v)
			if err1 != nil || err2 != nil || !kp.Addr().Is4() || !vp.Addr().Is4() {
				continue
			}
			if kp == kp.Masked() && kp.Bits() < 32 {
				m.networks[kp] = vp.Masked()
				m.obfNets[vp.Masked()] = struct{}{}
				if o := int(vp.Addr().As4()[0]) + 1; o > m.firstOctet {
					m.firstOctet = o
				}
				continue
			}
			m.remember(kp.Addr(), vp.Addr())
			continue
		}
		ka, err1 := netip.ParseAddr(k)
		va, err2 := netip.ParseAddr(v)
		if err1 != nil || err2 != nil || !ka.Is4() || !va.Is4() {
			continue
		}
		m.remember(ka, va)
	}
}

func broadcast4(p netip.Prefix) netip.Addr {
	b := p.Masked().Addr().As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	v |= ^uint32(0) >> uint(p.Bits())
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func addr4Plus(a netip.Addr, n uint32) netip.Addr {
	b := a.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	v += n
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
