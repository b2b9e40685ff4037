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
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Keys of the individual maps inside the mapping file.
const (
	KeyHostname = "hostname_map"
	KeyIP       = "ip_map"
	KeyIPv6     = "ipv6_map"
	KeyMAC      = "mac_map"
	KeyKeyword  = "keyword_map"
	KeyUsername = "username_map"
)

// Map stores original to obfuscated pairs for one kind of token.
// Implementations are safe for concurrent use.
type Map interface {
	// Key names the map inside the mapping file.
	Key() string
	// Get returns the obfuscated form of item, allocating it on first use.
	// Ignored items, and items that already are obfuscated values, are
	// returned unchanged.
	Get(item string) string
	// Lookup returns the obfuscated form of item without allocating.
	Lookup(item string) (string, bool)
	// Entries returns a copy of every pair.
	Entries() map[string]string
	// Load seeds the map with pairs from a previous run.
	Load(entries map[string]string)
	// Len returns the number of pairs.
	Len() int
}

// dataset is the pair storage shared by every Map implementation.
type dataset struct {
	key    string
	mu     sync.Mutex
	items  map[string]string
	values map[string]struct{}
	ignore func(string) bool
}

func newDataset(key string, ignore func(string) bool) *dataset {
	if ignore == nil {
		ignore = func(string) bool { return false }
	}
	return &dataset{
		key:    key,
		items:  make(map[string]string),
		values: make(map[string]struct{}),
		ignore: ignore,
	}
}

func (d *dataset) Key() string { return d.key }

func (d *dataset) Lookup(item string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.items[item]
	return v, ok
}

func (d *dataset) Entries() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.items))
	for k, v := range d.items {
		out[k] = v
	}
	return out
}

func (d *dataset) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// set records a pair; callers hold mu.
func (d *dataset) set(item, value string) {
	d.items[item] = value
	d.values[value] = struct{}{}
}

// isValue reports whether s was handed out as an obfuscated value; callers hold mu.
func (d *dataset) isValue(s string) bool {
	_, ok := d.values[s]
	return ok
}

// resolve is the common Get path. alloc runs with mu held and reports false
// when item must be left alone.
func (d *dataset) resolve(item string, alloc func(string) (string, bool)) string {
	if item == "" {
		return item
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.items[item]; ok {
		return v
	}
	if d.ignore(item) || d.isValue(item) {
		return item
	}
	v, ok := alloc(item)
	if !ok || v == "" {
		return item
	}
	d.set(item, v)
	return v
}

// load copies entries in; callers hold mu.
func (d *dataset) load(entries map[string]string) {
	for k, v := range entries {
		if k == "" || v == "" {
			continue
		}
		d.set(k, v)
	}
}

// SortedKeys returns the originals of m, longest first, so that replacing
// them in order never rewrites a prefix of a longer original.
func SortedKeys(m Map) []string {
	entries := m.Entries()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

func matchAny(patterns ...string) func(string) bool {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		res = append(res, regexp.MustCompile(p))
	}
	return func(s string) bool {
		for _, re := range res {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}
}

// counterAfter returns one past the highest N among values of the form
// prefix+N, or zero when none match.
func counterAfter(values []string, prefix string) int {
	next := 0
	for _, v := range values {
		n, ok := counterOf(v, prefix)
		if ok && n+1 > next {
			next = n + 1
		}
	}
	return next
}

func counterOf(v, prefix string) (int, bool) {
	if !strings.HasPrefix(v, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(v[len(prefix):])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Token is a Map that replaces each original with prefix+N, N counting up
// in first-seen order. Keywords and usernames use it.
type Token struct {
	*dataset
	prefix string
	next   int
}

// NewKeyword returns the keyword map; originals become obfuscatedwordN.
func NewKeyword() *Token {
	return &Token{dataset: newDataset(KeyKeyword, nil), prefix: "obfuscatedword"}
}

// NewUsername returns the username map; originals become obfuscateduserN.
func NewUsername() *Token {
	return &Token{dataset: newDataset(KeyUsername, nil), prefix: "obfuscateduser"}
}

// Get implements Map.
func (t *Token) Get(item string) string {
	return t.resolve(strings.TrimSpace(item), func(string) (string, bool) {
		for {
			v := fmt.Sprintf("%s%d", t.prefix, t.next)
			t.next++
			if !t.isValue(v) {
				return v, true
			}
		}
	})
}

// Load implements Map.
func (t *Token) Load(entries map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(entries)
	values := make([]string, 0, len(entries))
	for _, v := range entries {
		values = append(values, v)
	}
	if n := counterAfter(values, t.prefix); n > t.next {
		t.next = n
	}
}
