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
	"regexp"

	"github.com/NVIDIA/sos/pkg/cleaner/mapping"
)

// checked longest form first so a 64-bit MAC is never split into a 48-bit one
var macRes = []*regexp.Regexp{
	regexp.MustCompile(`(?:^|[^0-9A-Za-z:_-])((?:[0-9a-fA-F]{2}[:-]){7}[0-9a-fA-F]{2})`),
	regexp.MustCompile(`(?:^|[^0-9A-Za-z:_-])((?:[0-9a-fA-F]{4}:){3}[0-9a-fA-F]{4})`),
	regexp.MustCompile(`(?:^|[^0-9A-Za-z:_-])((?:[0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2})`),
}

// MAC rewrites 48-bit and 64-bit MAC addresses.
type MAC struct {
	base
}

// NewMAC returns the MAC parser over m.
func NewMAC(m *mapping.MAC) *MAC {
	return &MAC{base: newBase(NameMAC, m,
		[]string{"sos_commands/networking/ip_-d_address"},
		"sos_commands/kernel/modinfo*",
	)}
}

// Prime implements Parser.
func (p *MAC) Prime(_, content string) { primeLines(p, content) }

// ObfuscateLine implements Parser.
func (p *MAC) ObfuscateLine(line string) (string, int) {
	total := 0
	for _, re := range macRes {
		var n int
		line, n = replaceMatches(line, re, p.replace)
		total += n
	}
	return line, total
}

func (p *MAC) replace(line string, start, end int) (string, bool) {
	if followedBy(line, end, func(c byte) bool { return isAlnum(c) || c == ':' || c == '_' }) {
		return "", false
	}
	if followedBy(line, end, func(c byte) bool { return c == '-' }) && followedBy(line, end+1, isHex) {
		return "", false
	}
	match := line[start:end]
	v := p.m.Get(match)
	return v, v != mapping.NormalizeMAC(match)
}
