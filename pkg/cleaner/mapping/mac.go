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
	"regexp"
	"strconv"
	"strings"
)

// obfuscated MACs carry the locally administered OUI 53:4f:53 ("SOS")
const (
	macTemplate     = "53:4f:53:%02x:%02x:%02x"
	mac64Template   = "53:4f:53:ff:fe:%02x:%02x:%02x"
	macQuadTemplate = "534f:53ff:fe%02x:%02x%02x"
)

var (
	mac64Re   = regexp.MustCompile(`^([0-9a-f]{2}:){7}[0-9a-f]{2}$`)
	macQuadRe = regexp.MustCompile(`^([0-9a-f]{4}:){3}[0-9a-f]{4}$`)
	mac48Re   = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)
)

// MAC obfuscates 48-bit and 64-bit MAC addresses. The vendor half is
// replaced by the 53:4f:53 OUI and the device half by an incrementing
// counter shared across forms. Dash separated input is normalized to colons
// and every key is lower case.
type MAC struct {
	*dataset
	next uint32
}

// NewMAC returns an empty MAC map.
func NewMAC() *MAC {
	return &MAC{dataset: newDataset(KeyMAC, matchAny(
		`^ff:ff:ff:ff:ff:ff$`,
		`^00:00:00:00:00:00$`,
		`^53:4f:53:`,
		`^534f:53`,
	))}
}

// NormalizeMAC lower-cases s, converts dashes to colons and trims the
// punctuation loose matches pick up.
func NormalizeMAC(s string) string {
	s = strings.ToLower(strings.ReplaceAll(s, "-", ":"))
	return strings.TrimSpace(strings.Trim(s, "=.,"))
}

// Get implements Map.
func (m *MAC) Get(item string) string {
	return m.resolve(NormalizeMAC(item), m.sanitize)
}

// Lookup implements Map.
func (m *MAC) Lookup(item string) (string, bool) {
	return m.dataset.Lookup(NormalizeMAC(item))
}

func (m *MAC) sanitize(item string) (string, bool) {
	var tmpl string
	switch {
	case mac64Re.MatchString(item):
		tmpl = mac64Template
	case macQuadRe.MatchString(item):
		tmpl = macQuadTemplate
	case mac48Re.MatchString(item):
		tmpl = macTemplate
	default:
		return "", false
	}
	for m.next < 1<<24-1 {
		m.next++
		v := fmt.Sprintf(tmpl, byte(m.next>>16), byte(m.next>>8), byte(m.next))
		if !m.isValue(v) {
			return v, true
		}
	}
	return "", false
}

// Load implements Map.
func (m *MAC) Load(entries map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.load(entries)
	for _, v := range entries {
		hex := strings.ReplaceAll(v, ":", "")
		if len(hex) < 6 {
			continue
		}
		n, err := strconv.ParseUint(hex[len(hex)-6:], 16, 32)
		if err == nil && uint32(n) > m.next {
			m.next = uint32(n)
		}
	}
}
