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

package upload

import (
	"context"
	"os"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// limiterBurst is the largest chunk read between limiter waits.
const limiterBurst = 64 * 1024

type counter struct {
	n atomic.Int64
}

func newLimiter(kibPerSec int) *rate.Limiter {
	if kibPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(kibPerSec*1024), limiterBurst)
}

// archiveReader streams the archive, counting bytes and pacing reads
// through the request limiter.
type archiveReader struct {
	ctx  context.Context
	f    *os.File
	lim  *rate.Limiter
	sent *counter
}

func (r *archiveReader) Read(p []byte) (int, error) {
	if r.lim != nil && len(p) > r.lim.Burst() {
		p = p[:r.lim.Burst()]
	}
	n, err := r.f.Read(p)
	if n > 0 {
		r.sent.n.Add(int64(n))
		if r.lim != nil {
			if werr := r.lim.WaitN(r.ctx, n); werr != nil {
				return n, werr
			}
		}
	}
	return n, err
}

func (r *archiveReader) Close() error { return r.f.Close() }

// open returns the archive reader and its size.
func (req *Request) open(ctx context.Context) (*archiveReader, int64, error) {
	f, err := os.Open(req.Archive)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return &archiveReader{ctx: ctx, f: f, lim: req.Limiter, sent: &req.sent}, fi.Size(), nil
}
