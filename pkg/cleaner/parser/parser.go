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

	"github.com/gobwas/glob"

	"github.com/NVIDIA/sos/pkg/cleaner/mapping"
)

// Parser finds one kind of sensitive token and replaces it.
type Parser interface {
	// Name is the short name accepted by --disable-parsers.
	Name() string
	// Mapping is the map the parser allocates from.
	Mapping() mapping.Map
	// PrepFiles lists archive-relative files handed to Prime before any
	// file is rewritten.
	PrepFiles() []string
	// Prime loads the content of a prep file into the map.
	Prime(path, content string)
	// ObfuscateLine rewrites line and returns the number of substitutions.
	ObfuscateLine(line string) (string, int)
	// ObfuscateString replaces already known originals in s without
	// allocating new ones; used for file names and link targets.
	ObfuscateString(s string) string
	// Skip reports whether the parser must not touch the archive-relative path.
	Skip(path string) bool
}

type base struct {
	name  string
	m     mapping.Map
	prep  []string
	skips []glob.Glob
	keys  *keyCache
}

func newBase(name string, m mapping.Map, prep []string, skips ...string) base {
	b := base{name: name, m: m, prep: prep, keys: &keyCache{}}
	for _, s := range skips {
		b.skips = append(b.skips, glob.MustCompile(s, '/'))
	}
	return b
}

func (b *base) Name() string         { return b.name }
func (b *base) Mapping() mapping.Map { return b.m }
func (b *base) PrepFiles() []string  { return b.prep }

func (b *base) Skip(path string) bool {
	path = strings.TrimPrefix(path, "/")
	for _, g := range b.skips {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (b *base) ObfuscateString(s string) string {
	for _, k := range b.keys.get(b.m) {
		if !strings.Contains(s, k) {
			continue
		}
		if v, ok := b.m.Lookup(k); ok {
			s = strings.ReplaceAll(s, k, v)
		}
	}
	return s
}

// primeLines feeds every line of content through p.
func primeLines(p Parser, content string) {
	for _, line := range strings.Split(content, "\n") {
		p.ObfuscateLine(line)
	}
}

// keyCache holds the originals of a map, longest first, and rebuilds them
// when the map grows.
type keyCache struct {
	mu   sync.Mutex
	n    int
	keys []string
}

func (c *keyCache) get(m mapping.Map) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := m.Len(); n != c.n || c.keys == nil {
		c.keys = mapping.SortedKeys(m)
		c.n = n
	}
	return c.keys
}

// replacer rewrites the span [start,end) of a match; ok false leaves it.
type replacer func(line string, start, end int) (string, bool)

// replaceMatches rewrites every match of re in line, using capture group 1
// when re has one, and counts the spans that changed.
func replaceMatches(line string, re *regexp.Regexp, fn replacer) (string, int) {
	locs := re.FindAllStringSubmatchIndex(line, -1)
	if len(locs) == 0 {
		return line, 0
	}
	group := 0
	if re.NumSubexp() > 0 {
		group = 1
	}
	var sb strings.Builder
	last, count := 0, 0
	for _, loc := range locs {
		start, end := loc[2*group], loc[2*group+1]
		if start < 0 || start < last {
			continue
		}
		v, ok := fn(line, start, end)
		if !ok || v == line[start:end] {
			continue
		}
		sb.WriteString(line[last:start])
		sb.WriteString(v)
		last = end
		count++
	}
	if count == 0 {
		return line, 0
	}
	sb.WriteString(line[last:])
	return sb.String(), count
}

// followedBy reports whether the byte after end satisfies pred.
func followedBy(line string, end int, pred func(byte) bool) bool {
	return end < len(line) && pred(line[end])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
