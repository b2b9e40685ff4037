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
	"strings"
	"sync"

	"github.com/NVIDIA/sos/pkg/cleaner/mapping"
)

var hostnameRe = regexp.MustCompile(`\b[a-zA-Z0-9][a-zA-Z0-9.-]{0,200}\.[a-zA-Z]{1,63}\b`)

// Hostname rewrites fully qualified names inside known domains and the
// host's own short names.
type Hostname struct {
	base
	hm *mapping.Hostname

	mu       sync.Mutex
	shortRes map[string]*regexp.Regexp
}

// NewHostname returns the hostname parser over m.
func NewHostname(m *mapping.Hostname) *Hostname {
	return &Hostname{
		base: newBase(NameHostname, m, []string{
			"sos_commands/host/hostname_-f",
			"sos_commands/host/hostname",
			"hostname",
			"etc/hosts",
		}),
		hm:       m,
		shortRes: make(map[string]*regexp.Regexp),
	}
}

// Prime registers the names of the host. The hostname files hold the host's
// own name; /etc/hosts adds aliases, with single labels becoming short names.
func (p *Hostname) Prime(path, content string) {
	if strings.HasSuffix(path, "etc/hosts") {
		for _, line := range strings.Split(content, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || strings.Contains(line, "localhost") {
				continue
			}
			fields := strings.Fields(line)
			for _, host := range fields[1:] {
				if strings.HasPrefix(host, "#") {
					break
				}
				if strings.Contains(host, ".") {
					p.hm.AddHost(host)
				} else {
					p.hm.AddShortName(host)
				}
			}
		}
		return
	}
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			p.hm.AddHost(line)
		}
	}
}

// ObfuscateLine implements Parser.
func (p *Hostname) ObfuscateLine(line string) (string, int) {
	line, count := replaceMatches(line, hostnameRe, p.replace)
	for _, short := range p.hm.ShortNames() {
		var n int
		line, n = replaceMatches(line, p.shortRe(short), func(l string, start, end int) (string, bool) {
			return p.obfuscate(l[start:end])
		})
		count += n
	}
	return line, count
}

func (p *Hostname) replace(line string, start, end int) (string, bool) {
	match := line[start:end]
	if v, ok := p.obfuscate(match); ok {
		return v, true
	}
	// names followed by a suffix, e.g. db1.example.com.log
	labels := strings.Split(match, ".")
	for i := len(labels) - 1; i >= 2; i-- {
		prefix := strings.Join(labels[:i], ".")
		if v, ok := p.obfuscate(prefix); ok {
			return v + match[len(prefix):], true
		}
	}
	return "", false
}

func (p *Hostname) obfuscate(name string) (string, bool) {
	v := p.hm.Get(name)
	return v, v != name && v != strings.ToLower(name)
}

func (p *Hostname) shortRe(name string) *regexp.Regexp {
	p.mu.Lock()
	defer p.mu.Unlock()
	re, ok := p.shortRes[name]
	if !ok {
		re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
		p.shortRes[name] = re
	}
	return re
}
