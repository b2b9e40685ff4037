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

// Package file parses line oriented host files such as os-release,
// /proc/modules, /etc/hosts and package manager listings.
package file

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// Option configures a Parser.
type Option func(*Parser)

// Parser splits host files into lines or key/value maps.
type Parser struct {
	delimiter       string
	maxSize         int
	skipComments    bool
	kvDelimiter     string
	vDefault        string
	vTrimChars      string
	skipEmptyValues bool
	fields          bool
}

// WithDelimiter sets the entry delimiter. Default is newline.
func WithDelimiter(delim string) Option {
	return func(p *Parser) { p.delimiter = delim }
}

// WithMaxSize sets the maximum accepted content size. Default is 1MB.
func WithMaxSize(size int) Option {
	return func(p *Parser) { p.maxSize = size }
}

// WithSkipComments controls skipping of '#' lines. Default is true.
func WithSkipComments(skip bool) Option {
	return func(p *Parser) { p.skipComments = skip }
}

// WithKVDelimiter sets the key/value delimiter used by Map. Default is "=".
func WithKVDelimiter(kvDelim string) Option {
	return func(p *Parser) { p.kvDelimiter = kvDelim }
}

// WithFields splits key and value on the first run of whitespace instead of
// a delimiter, as in /proc/modules or rpm/dpkg listings.
func WithFields() Option {
	return func(p *Parser) { p.fields = true }
}

// WithVDefault sets the value used for keys without one.
func WithVDefault(vDefault string) Option {
	return func(p *Parser) { p.vDefault = vDefault }
}

// WithVTrimChars sets characters trimmed from values, e.g. quotes.
func WithVTrimChars(trimChars string) Option {
	return func(p *Parser) { p.vTrimChars = trimChars }
}

// WithSkipEmptyValues drops entries whose value is empty.
func WithSkipEmptyValues(skip bool) Option {
	return func(p *Parser) { p.skipEmptyValues = skip }
}

// NewParser creates a parser. Defaults: newline delimiter, 1MB limit,
// comments skipped, "=" key/value delimiter.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		delimiter:    "\n",
		maxSize:      1 << 20,
		skipComments: true,
		kvDelimiter:  "=",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetLines reads path and returns its non-empty, non-comment entries.
func (p *Parser) GetLines(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}
	lines, err := p.Lines(b)
	if err != nil {
		return nil, fmt.Errorf("file %q: %w", path, err)
	}
	return lines, nil
}

// GetMap reads path and returns its entries as a key/value map.
func (p *Parser) GetMap(path string) (map[string]string, error) {
	lines, err := p.GetLines(path)
	if err != nil {
		return nil, err
	}
	return p.toMap(lines), nil
}

// Lines splits in-memory content the same way GetLines does.
func (p *Parser) Lines(b []byte) ([]string, error) {
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	if len(b) > p.maxSize {
		return nil, fmt.Errorf("content exceeds maximum size of %d bytes", p.maxSize)
	}
	parts := strings.Split(string(b), p.delimiter)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		if p.skipComments && strings.HasPrefix(clean, "#") {
			continue
		}
		out = append(out, clean)
	}
	return out, nil
}

// Map parses in-memory content into a key/value map.
func (p *Parser) Map(b []byte) (map[string]string, error) {
	lines, err := p.Lines(b)
	if err != nil {
		return nil, err
	}
	return p.toMap(lines), nil
}

func (p *Parser) toMap(lines []string) map[string]string {
	result := make(map[string]string, len(lines))
	for _, line := range lines {
		var kv []string
		if p.fields {
			kv = strings.SplitN(strings.Join(strings.Fields(line), " "), " ", 2)
		} else {
			kv = strings.SplitN(line, p.kvDelimiter, 2)
		}
		key := strings.TrimSpace(kv[0])
		if len(kv) != 2 {
			if p.skipEmptyValues && p.vDefault == "" {
				slog.Debug("skipping key without value", "key", key)
				continue
			}
			result[key] = p.vDefault
			continue
		}
		value := strings.TrimSpace(kv[1])
		if p.vTrimChars != "" {
			value = strings.Trim(value, p.vTrimChars)
		}
		if p.skipEmptyValues && value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
