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
	"bufio"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/NVIDIA/sos/pkg/cleaner/mapping"
)

// Parser names, in the order they run over each line.
const (
	NameHostname = "hostname"
	NameIP       = "ip"
	NameIPv6     = "ipv6"
	NameMAC      = "mac"
	NameKeyword  = "keyword"
	NameUsername = "username"
)

// Names lists every parser name in run order.
var Names = []string{NameHostname, NameIP, NameIPv6, NameMAC, NameKeyword, NameUsername}

// Options configures a Set.
type Options struct {
	// MapFile seeds every map before anything else is registered.
	MapFile string
	// Domains are obfuscated along with every host name under them.
	Domains []string
	// Keywords are obfuscated wherever they appear.
	Keywords []string
	// KeywordFile holds one keyword per line.
	KeywordFile string
	// Usernames are obfuscated as whole words.
	Usernames []string
	// Disabled names parsers that must not run.
	Disabled []string
}

// Set is the ordered list of enabled parsers over one shared Store. Maps of
// disabled parsers still exist so the map file round trips.
type Set struct {
	store   *mapping.Store
	parsers []Parser
	counts  map[string]*atomic.Int64
}

// NewSet builds the maps, loads the map file and registers the operator
// supplied tokens.
func NewSet(opts Options) (*Set, error) {
	for _, d := range opts.Disabled {
		if !slices.Contains(Names, strings.ToLower(d)) {
			return nil, fmt.Errorf("unknown parser %q, valid parsers: %s", d, strings.Join(Names, ", "))
		}
	}

	hosts := mapping.NewHostname()
	ipv4 := mapping.NewIPv4()
	ipv6 := mapping.NewIPv6()
	mac := mapping.NewMAC()
	keywords := mapping.NewKeyword()
	users := mapping.NewUsername()
	store := mapping.NewStore(hosts, ipv4, ipv6, mac, keywords, users)

	if opts.MapFile != "" {
		if err := store.Load(opts.MapFile); err != nil {
			return nil, err
		}
	}

	for _, d := range opts.Domains {
		hosts.AddDomain(d)
	}
	words := slices.Clone(opts.Keywords)
	if opts.KeywordFile != "" {
		fromFile, err := readKeywordFile(opts.KeywordFile)
		if err != nil {
			return nil, err
		}
		words = append(words, fromFile...)
	}

	all := []Parser{
		NewHostname(hosts),
		NewIPv4(ipv4),
		NewIPv6(ipv6),
		NewMAC(mac),
		NewKeyword(keywords, words),
		NewUsername(users, opts.Usernames),
	}
	s := &Set{store: store, counts: make(map[string]*atomic.Int64, len(all))}
	for _, p := range all {
		if slices.ContainsFunc(opts.Disabled, func(d string) bool { return strings.EqualFold(d, p.Name()) }) {
			continue
		}
		s.parsers = append(s.parsers, p)
		s.counts[p.Name()] = &atomic.Int64{}
	}
	return s, nil
}

func readKeywordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}
	return out, nil
}

// Parsers returns the enabled parsers in run order.
func (s *Set) Parsers() []Parser { return s.parsers }

// Store returns the map store shared by all parsers.
func (s *Set) Store() *mapping.Store { return s.store }

// Names returns the names of the enabled parsers.
func (s *Set) Names() []string {
	out := make([]string, len(s.parsers))
	for i, p := range s.parsers {
		out[i] = p.Name()
	}
	return out
}

// Prime hands every prep file that read can supply to its parser. Parsers
// are primed in run order so host names are known before the line passes.
func (s *Set) Prime(read func(rel string) (string, bool)) {
	for _, p := range s.parsers {
		for _, rel := range p.PrepFiles() {
			if content, ok := read(rel); ok {
				p.Prime(rel, content)
			}
		}
	}
}

// ForFile returns a line rewriter for the archive-relative path, running
// the parsers that do not skip it. Substitutions are added to Counts.
func (s *Set) ForFile(path string) func(line string) (string, int) {
	active := make([]Parser, 0, len(s.parsers))
	for _, p := range s.parsers {
		if !p.Skip(path) {
			active = append(active, p)
		}
	}
	return func(line string) (string, int) {
		total := 0
		for _, p := range active {
			var n int
			line, n = p.ObfuscateLine(line)
			if n > 0 {
				s.counts[p.Name()].Add(int64(n))
				total += n
			}
		}
		return line, total
	}
}

// ObfuscateLine rewrites one line of the archive-relative path.
func (s *Set) ObfuscateLine(path, line string) (string, int) {
	return s.ForFile(path)(line)
}

// ObfuscateString replaces originals already present in the maps.
func (s *Set) ObfuscateString(str string) string {
	for _, p := range s.parsers {
		str = p.ObfuscateString(str)
	}
	return str
}

// Counts returns substitutions per parser since the Set was created.
func (s *Set) Counts() map[string]int64 {
	out := make(map[string]int64, len(s.counts))
	for name, c := range s.counts {
		out[name] = c.Load()
	}
	return out
}
