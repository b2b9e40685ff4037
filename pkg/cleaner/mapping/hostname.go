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
	"fmt"
	"sort"
	"strings"
)

const (
	hostPrefix   = "host"
	domainPrefix = "obfuscateddomain"
)

// Hostname obfuscates host and domain names. Only names inside a known
// domain are touched: domains passed by the operator and the domains of the
// host's own names found while prepping the archive. A short name becomes
// hostN and the domain part, minus its top-level label, becomes
// obfuscateddomainN, so db1.example.com and db2.example.com map to
// host0.obfuscateddomain0.com and host1.obfuscateddomain0.com.
type Hostname struct {
	*dataset
	hosts       map[string]string
	domains     map[string]string
	known       map[string]struct{}
	short       map[string]struct{}
	hostCount   int
	domainCount int
}

// NewHostname returns a hostname map with domains already known.
func NewHostname(domains ...string) *Hostname {
	m := &Hostname{
		dataset: newDataset(KeyHostname, matchAny(`^localhost`, `localdomain`, `^com\.`)),
		hosts:   make(map[string]string),
		domains: make(map[string]string),
		known:   make(map[string]struct{}),
		short:   make(map[string]struct{}),
	}
	for _, d := range domains {
		m.AddDomain(d)
	}
	return m
}

func normalizeHost(s string) string {
	s = strings.TrimLeft(strings.TrimSpace(s), "._")
	return strings.TrimSuffix(strings.ToLower(s), ".")
}

// AddDomain marks domain, and every name below it, for obfuscation.
func (m *Hostname) AddDomain(domain string) {
	domain = normalizeHost(domain)
	if !strings.Contains(domain, ".") {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignore(domain) {
		return
	}
	m.known[domain] = struct{}{}
	if _, ok := m.items[domain]; !ok {
		m.set(domain, m.sanitizeDomain(strings.Split(domain, ".")))
	}
}

// AddHost registers one of the host's own names. A fully qualified name makes
// its domain known; a single label becomes a short name that is replaced
// wherever it appears as a word.
func (m *Hostname) AddHost(name string) string {
	name = normalizeHost(name)
	if name == "" || strings.Contains(name, "localhost") {
		return name
	}
	labels := strings.Split(name, ".")
	switch {
	case len(labels) == 1:
		return m.AddShortName(name)
	case len(labels) == 2:
		m.AddDomain(name)
	default:
		m.AddDomain(strings.Join(labels[1:], "."))
		if len(labels) > 3 {
			m.AddDomain(strings.Join(labels[len(labels)-2:], "."))
		}
		m.AddShortName(labels[0])
	}
	return m.Get(name)
}

// AddShortName registers a single label host name.
func (m *Hostname) AddShortName(name string) string {
	name = normalizeHost(name)
	if name == "" || strings.Contains(name, ".") {
		return name
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ignore(name) {
		return name
	}
	m.short[name] = struct{}{}
	if v, ok := m.items[name]; ok {
		return v
	}
	v := m.shortName(name)
	m.set(name, v)
	return v
}

// ShortNames returns the registered short names, longest first.
func (m *Hostname) ShortNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.short))
	for s := range m.short {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}

// Get implements Map.
func (m *Hostname) Get(item string) string {
	return m.resolve(normalizeHost(item), m.sanitize)
}

// Lookup implements Map.
func (m *Hostname) Lookup(item string) (string, bool) {
	return m.dataset.Lookup(normalizeHost(item))
}

func (m *Hostname) sanitize(item string) (string, bool) {
	labels := strings.Split(item, ".")
	if len(labels) < 2 || !m.inKnownDomain(labels) {
		return "", false
	}
	if len(labels) == 2 {
		return m.sanitizeDomain(labels), true
	}
	return m.shortName(labels[0]) + "." + m.sanitizeDomain(labels[1:]), true
}

func (m *Hostname) inKnownDomain(labels []string) bool {
	for i := 0; i < len(labels)-1; i++ {
		if _, ok := m.known[strings.Join(labels[i:], ".")]; ok {
			return true
		}
	}
	return false
}

func (m *Hostname) shortName(name string) string {
	if v, ok := m.hosts[name]; ok {
		return v
	}
	v := fmt.Sprintf("%s%d", hostPrefix, m.hostCount)
	m.hostCount++
	m.hosts[name] = v
	return v
}

// sanitizeDomain keeps the top-level label and replaces the rest as a unit.
func (m *Hostname) sanitizeDomain(labels []string) string {
	joined := strings.Join(labels, ".")
	if len(labels) < 2 || m.ignore(joined) {
		return joined
	}
	tld := labels[len(labels)-1]
	name := strings.Join(labels[:len(labels)-1], ".")
	obf, ok := m.domains[name]
	if !ok {
		obf = fmt.Sprintf("%s%d", domainPrefix, m.domainCount)
		m.domainCount++
		m.domains[name] = obf
	}
	return obf + "." + tld
}

// Load implements Map. Host and domain tables are rebuilt from the pairs so
// the counters continue after the highest value already used.
func (m *Hostname) Load(entries map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.load(entries)
	for k, v := range entries {
		kl, vl := strings.Split(k, "."), strings.Split(v, ".")
		switch {
		case len(kl) == 1:
			if _, ok := counterOf(v, hostPrefix); ok {
				m.hosts[k] = v
				m.short[k] = struct{}{}
			}
		case len(kl) == 2 && len(vl) == 2:
			m.domains[kl[0]] = vl[0]
			m.known[k] = struct{}{}
		case len(kl) > 2 && len(vl) == 3:
			m.hosts[kl[0]] = vl[0]
			m.domains[strings.Join(kl[1:len(kl)-1], ".")] = vl[1]
			m.known[strings.Join(kl[1:], ".")] = struct{}{}
		}
	}
	hosts := make([]string, 0, len(m.hosts))
	for _, v := range m.hosts {
		hosts = append(hosts, v)
	}
	domains := make([]string, 0, len(m.domains))
	for _, v := range m.domains {
		domains = append(domains, v)
	}
	if n := counterAfter(hosts, hostPrefix); n > m.hostCount {
		m.hostCount = n
	}
	if n := counterAfter(domains, domainPrefix); n > m.domainCount {
		m.domainCount = n
	}
}
