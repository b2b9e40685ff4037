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

package archive

import (
	"context"
	"crypto/md5" //nolint:gosec // offered for policies that still prefer it
	"crypto/sha1" //nolint:gosec // offered for policies that still prefer it
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ChecksumFileName is the name of the per-directory checksum listing.
const ChecksumFileName = "checksums.txt"

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
}

// NewHash returns a hash for a named algorithm.
func NewHash(algo string) (hash.Hash, error) {
	f, ok := hashes[strings.ToLower(algo)]
	if !ok {
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
	return f(), nil
}

// HashFile returns the hex digest of the file at path.
func HashFile(path, algo string) (string, error) {
	h, err := NewHash(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for checksum: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read %s for checksum: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChecksumPath returns the sibling checksum path for an archive: <archive>.<algo>.
func ChecksumPath(archivePath, algo string) string {
	return archivePath + "." + strings.ToLower(algo)
}

// WriteChecksumFile writes "<hex>\n" next to the archive and returns its path.
func WriteChecksumFile(archivePath, algo, sum string) (string, error) {
	p := ChecksumPath(archivePath, algo)
	if err := os.WriteFile(p, []byte(sum+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write checksum file: %w", err)
	}
	return p, nil
}

// ReadChecksumFile returns the digest stored in a sibling checksum file.
func ReadChecksumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file %s", path)
	}
	return fields[0], nil
}

// GenerateChecksums writes a checksums.txt into dir listing "<hex>  <relpath>"
// for every file given, relative to dir.
func GenerateChecksums(ctx context.Context, dir, algo string, files []string) error {
	lines := make([]string, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}
		sum, err := HashFile(file, algo)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, file)
		if err != nil {
			rel = file
		}
		lines = append(lines, fmt.Sprintf("%s  %s", sum, rel))
	}

	out := filepath.Join(dir, ChecksumFileName)
	if err := os.WriteFile(out, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write checksums: %w", err)
	}
	slog.Debug("checksums generated", "file_count", len(lines), "path", out)
	return nil
}
