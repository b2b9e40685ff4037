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
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression selects the compressor applied to the tar stream.
type Compression string

const (
	CompressionAuto Compression = "auto"
	CompressionGzip Compression = "gzip"
	CompressionXZ   Compression = "xz"
	CompressionZstd Compression = "zstd"
	CompressionNone Compression = "none"
)

// autoOrder is the preference order tried by CompressionAuto.
var autoOrder = []Compression{CompressionXZ, CompressionGzip}

// SupportedCompressions returns the accepted --compression-type values.
func SupportedCompressions() []string {
	return []string{
		string(CompressionAuto), string(CompressionGzip), string(CompressionXZ),
		string(CompressionZstd), string(CompressionNone),
	}
}

// ParseCompression validates a compression name; empty means auto.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "":
		return CompressionAuto, nil
	case CompressionAuto, CompressionGzip, CompressionXZ, CompressionZstd, CompressionNone:
		return c, nil
	default:
		return "", fmt.Errorf("unknown compression type %q", s)
	}
}

// Extension returns the suffix appended after ".tar".
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionXZ:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	default:
		return ""
	}
}

// candidates expands auto into its fallback chain.
func (c Compression) candidates() []Compression {
	if c == CompressionAuto || c == "" {
		return autoOrder
	}
	return []Compression{c}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewCompressWriter wraps w with the compressor c. Fast selects the lowest
// compression level.
func NewCompressWriter(c Compression, w io.Writer, fast bool) (io.WriteCloser, error) {
	switch c {
	case CompressionGzip:
		level := gzip.DefaultCompression
		if fast {
			level = gzip.BestSpeed
		}
		return gzip.NewWriterLevel(w, level)
	case CompressionXZ:
		cfg := xz.WriterConfig{}
		if fast {
			cfg.DictCap = 1 << 20
		}
		return cfg.NewWriter(w)
	case CompressionZstd:
		level := zstd.SpeedDefault
		if fast {
			level = zstd.SpeedFastest
		}
		return zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	case CompressionNone:
		return nopWriteCloser{w}, nil
	default:
		return nil, fmt.Errorf("compression %q has no single writer", c)
	}
}

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicXZ    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicBzip2 = []byte("BZh")
)

// DetectCompression sniffs the compression of a stream from its magic bytes.
func DetectCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return CompressionGzip
	case bytes.HasPrefix(head, magicXZ):
		return CompressionXZ
	case bytes.HasPrefix(head, magicZstd):
		return CompressionZstd
	case bytes.HasPrefix(head, magicBzip2):
		return "bzip2"
	default:
		return CompressionNone
	}
}

// NewDecompressReader detects the compression of r and returns a reader of
// the decompressed stream along with the detected compression.
func NewDecompressReader(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(6)
	c := DetectCompression(head)

	switch c {
	case CompressionGzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, c, err
		}
		return zr, c, nil
	case CompressionXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, c, err
		}
		return io.NopCloser(xr), c, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, c, err
		}
		return zr.IOReadCloser(), c, nil
	case "bzip2":
		return io.NopCloser(bzip2.NewReader(br)), c, nil
	default:
		return io.NopCloser(br), CompressionNone, nil
	}
}
