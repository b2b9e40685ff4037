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
	"strconv"
	"strings"
	"sync"

	"github.com/NVIDIA/sos/pkg/cleaner/mapping"
)

// Keyword replaces operator supplied keywords wherever they appear, including
// inside longer words.
type Keyword struct {
	base
}

// NewKeyword returns the keyword parser and registers keywords in m.
func NewKeyword(m *mapping.Token, keywords []string) *Keyword {
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			m.Get(k)
		}
	}
	return &Keyword{base: newBase(NameKeyword, m, nil)}
}

// Prime implements Parser; keywords only come from options and the map file.
func (p *Keyword) Prime(_, _ string) {}

// ObfuscateLine implements Parser.
func (p *Keyword) ObfuscateLine(line string) (string, int) {
	count := 0
	for _, k := range p.keys.get(p.m) {
		n := strings.Count(line, k)
		if n == 0 {
			continue
		}
		if v, ok := p.m.Lookup(k); ok {
			line = strings.ReplaceAll(line, k, v)
			count += n
		}
	}
	return line, count
}

// system and placeholder accounts never treated as user names
var usernameSkips = map[string]bool{
	"core": true, "nobody": true, "nfsnobody": true, "shutdown": true,
	"stack": true, "reboot": true, "root": true, "timeout:": true,
	"ubuntu": true, "username": true, "wtmp": true,
}

// Username replaces user names found in login records and passed by the
// operator, matched as whole words regardless of case.
type Username struct {
	base

	mu sync.Mutex
	n  int
	re *regexp.Regexp
}

// NewUsername returns the username parser and registers names in m.
func NewUsername(m *mapping.Token, names []string) *Username {
	p := &Username{base: newBase(NameUsername, m, []string{
		"sos_commands/login/lastlog_-u_1000-60000",
		"sos_commands/login/lastlog_-u_60001-65536",
		"sos_commands/login/lastlog_-u_65537-4294967295",
		"sos_commands/login/lastlog2",
		"sos_commands/login/last",
		"sos_commands/login/last_-F",
		"sos_commands/login/lslogins",
		"etc/cron.allow",
		"etc/cron.deny",
	})}
	for _, n := range names {
		p.add(n)
	}
	return p
}

func (p *Username) add(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || usernameSkips[name] {
		return
	}
	p.m.Get(name)
	if i := strings.LastIndex(name, `\`); i >= 0 && i < len(name)-1 {
		p.add(name[i+1:])
	}
}

// Prime takes the first column of each line; lslogins lists the UID first
// and only UIDs from 1000 up are regular users.
func (p *Username) Prime(path, content string) {
	lslogins := strings.HasSuffix(path, "lslogins")
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if lslogins {
			uid, err := strconv.Atoi(fields[0])
			if err != nil || uid < 1000 || len(fields) < 2 {
				continue
			}
			p.add(fields[1])
			continue
		}
		p.add(fields[0])
	}
}

// ObfuscateLine implements Parser.
func (p *Username) ObfuscateLine(line string) (string, int) {
	re := p.pattern()
	if re == nil {
		return line, 0
	}
	return replaceMatches(line, re, func(l string, start, end int) (string, bool) {
		return p.m.Lookup(strings.ToLower(l[start:end]))
	})
}

func (p *Username) pattern() *regexp.Regexp {
	keys := p.keys.get(p.m)
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(keys) == 0 {
		return nil
	}
	if p.re == nil || p.n != len(keys) {
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = regexp.QuoteMeta(k)
		}
		p.re = regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
		p.n = len(keys)
	}
	return p.re
}
