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

package parser

import (
	"net/netip"
	"regexp"
	"strings"

	"github.com/NVIDIA/sos/pkg/cleaner/mapping"
)

var (
	ipv4Re = regexp.MustCompile(`(?:^|[^\w.-])((?:\d{1,3}\.){3}\d{1,3}(?:/\d{1,2})?)`)
	ipv6Re = regexp.MustCompile(`(?i)(?:^|[^\w:.-])((?:[0-9a-f]{0,4}:){2,7}[0-9a-f]{0,4}(?:/\d{1,3})?)`)
)

const ipPrepFile = "sos_commands/networking/ip_-o_addr"

// IPv4 rewrites IPv4 addresses, with or without a prefix length.
type IPv4 struct {
	base
}

// NewIPv4 returns the IPv4 parser over m. Package and version listings are
// skipped since their dotted versions look like addresses.
func NewIPv4(m *mapping.IPv4) *IPv4 {
	return &IPv4{base: newBase(NameIP, m, []string{ipPrepFile},
		"installed-rpms",
		"installed-debs",
		"sos_commands/rpm/*",
		"sos_commands/dpkg/*",
		"sos_commands/python/pip_list",
		"sos_commands/snappy/snap_list_--all",
		"sos_commands/snappy/snap_--version",
		"sos_commands/vulkan/vulkaninfo",
		"var/log/**dnf*",
		"var/log/**packag*",
	)}
}

// Prime implements Parser.
func (p *IPv4) Prime(_, content string) { primeLines(p, content) }

// ObfuscateLine implements Parser.
func (p *IPv4) ObfuscateLine(line string) (string, int) {
	return replaceMatches(line, ipv4Re, func(l string, start, end int) (string, bool) {
		if followedBy(l, end, isDigit) || (followedBy(l, end, func(c byte) bool { return c == '.' }) && followedBy(l, end+1, isDigit)) {
			return "", false
		}
		match := l[start:end]
		v := p.m.Get(match)
		return v, v != match
	})
}

// IPv6 rewrites IPv6 addresses and networks.
type IPv6 struct {
	base
}

// NewIPv6 returns the IPv6 parser over m.
func NewIPv6(m *mapping.IPv6) *IPv6 {
	return &IPv6{base: newBase(NameIPv6, m, []string{ipPrepFile},
		"etc/dnsmasq.conf*",
		"**modinfo*",
	)}
}

// Prime implements Parser.
func (p *IPv6) Prime(_, content string) { primeLines(p, content) }

// ObfuscateLine implements Parser.
func (p *IPv6) ObfuscateLine(line string) (string, int) {
	return replaceMatches(line, ipv6Re, func(l string, start, end int) (string, bool) {
		if followedBy(l, end, func(c byte) bool { return isAlnum(c) || c == ':' || c == '.' }) {
			return "", false
		}
		match := l[start:end]
		if !looksLikeIPv6(match) {
			return "", false
		}
		v := p.m.Get(match)
		return v, v != strings.ToLower(match)
	})
}

// looksLikeIPv6 rejects candidates that do not parse and colon separated
// MACs, which are eight groups of two digits.
func looksLikeIPv6(s string) bool {
	addr := strings.SplitN(s, "/", 2)[0]
	a, err := netip.ParseAddr(addr)
	if err != nil || !a.Is6() {
		return false
	}
	if strings.Contains(addr, "::") {
		return true
	}
	for _, g := range strings.Split(addr, ":") {
		if len(g) != 2 {
			return true
		}
	}
	return false
}
