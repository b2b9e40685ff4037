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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

// Target delivers an archive to one kind of endpoint.
type Target interface {
	// Name is the value accepted by --upload-protocol.
	Name() string
	// Schemes are the URL schemes the target handles.
	Schemes() []string
	Upload(ctx context.Context, req *Request) error
}

// Request is one upload.
type Request struct {
	// Archive is the local file to send.
	Archive string
	URL     *url.URL
	Creds   Credentials
	Options *config.UploadOptions
	// Limiter paces the upload in bytes per second; nil is unlimited.
	Limiter *rate.Limiter
	Log     *slog.Logger

	sent counter
}

// Result describes a finished upload.
type Result struct {
	Target string
	// Location is where the archive landed, credentials removed.
	Location string
	Bytes    int64
	Duration time.Duration
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Target{}
)

// Register makes a target available by name and scheme. Registering a
// name twice panics.
func Register(t Target) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[t.Name()]; ok {
		panic(fmt.Sprintf("upload target %q registered twice", t.Name()))
	}
	registry[t.Name()] = t
}

// Lookup returns the target registered under name.
func Lookup(name string) (Target, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[name]
	return t, ok
}

// ForScheme returns the target handling scheme.
func ForScheme(scheme string) (Target, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, name := range sortedNames() {
		t := registry[name]
		for _, s := range t.Schemes() {
			if strings.EqualFold(s, scheme) {
				return t, true
			}
		}
	}
	return nil, false
}

// Names lists the registered targets, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return sortedNames()
}

func sortedNames() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Dispatcher picks a target for an archive and runs the upload.
type Dispatcher struct {
	Options *config.UploadOptions
	// Batch disables interactive credential prompts.
	Batch bool
	// DefaultURL is used when no URL was given, typically the policy's
	// vendor endpoint.
	DefaultURL string
	// Prompt asks for missing credentials; a terminal prompt when nil.
	Prompt Prompter
	Log    *slog.Logger
}

// Upload sends archivePath. The archive is never removed, whatever the
// outcome.
func (d *Dispatcher) Upload(ctx context.Context, archivePath string) (*Result, error) {
	start := time.Now()
	opts := d.Options
	if opts == nil {
		opts = &config.UploadOptions{}
	}
	log := d.Log
	if log == nil {
		log = slog.Default()
	}

	t, u, err := d.resolve()
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sosErrors.NewWithContext(sosErrors.ErrCodeNotFound, "archive to upload not found",
				map[string]any{"archive": archivePath})
		}
		return nil, sosErrors.Wrap(sosErrors.ErrCodeUpload, "failed to read archive", err)
	}
	if fi.IsDir() {
		return nil, sosErrors.NewWithContext(sosErrors.ErrCodeInvalidRequest, "only archives can be uploaded",
			map[string]any{"archive": archivePath})
	}

	creds, err := resolveCredentials(u, opts, d.Batch, d.prompt())
	if err != nil {
		return nil, err
	}
	req := &Request{
		Archive: archivePath,
		URL:     u,
		Creds:   creds,
		Options: opts,
		Limiter: newLimiter(opts.RateLimit),
		Log:     log.With("target", t.Name()),
	}

	ctx, cancel := context.WithTimeout(ctx, defaults.UploadTimeout)
	defer cancel()

	location := redact(u)
	log.Info("uploading archive", "archive", filepath.Base(archivePath), "target", t.Name(),
		"url", location, "size", fi.Size())
	if err := t.Upload(ctx, req); err != nil {
		uploadTotal.WithLabelValues(t.Name(), "failed").Inc()
		if sosErrors.HasCode(err, sosErrors.ErrCodeUpload) {
			return nil, err
		}
		return nil, sosErrors.WrapWithContext(sosErrors.ErrCodeUpload, "upload failed, the archive was kept", err,
			map[string]any{"archive": archivePath, "target": t.Name(), "url": location})
	}
	uploadTotal.WithLabelValues(t.Name(), "success").Inc()
	uploadBytes.Add(float64(req.sent.n.Load()))
	res := &Result{
		Target:   t.Name(),
		Location: location,
		Bytes:    req.sent.n.Load(),
		Duration: time.Since(start),
	}
	log.Info("upload finished", "target", t.Name(), "bytes", res.Bytes, "duration", res.Duration)
	return res, nil
}

// resolve picks the target: --upload-protocol by name, else the URL
// scheme, else the default URL's scheme.
func (d *Dispatcher) resolve() (Target, *url.URL, error) {
	opts := d.Options
	if opts == nil {
		opts = &config.UploadOptions{}
	}
	raw := opts.URL
	if raw == "" {
		raw = d.DefaultURL
	}
	if raw == "" {
		return nil, nil, sosErrors.New(sosErrors.ErrCodeConfig,
			"no upload URL given and the policy has no default upload location")
	}

	var named Target
	if p := opts.Protocol; p != "" && p != "auto" {
		t, ok := Lookup(p)
		if !ok {
			return nil, nil, sosErrors.NewWithContext(sosErrors.ErrCodeConfig, fmt.Sprintf("unknown upload protocol %q", p),
				map[string]any{"available": Names()})
		}
		named = t
	}
	if !strings.Contains(raw, "://") {
		scheme := "https"
		if named != nil {
			scheme = named.Schemes()[0]
		}
		raw = scheme + "://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "invalid upload URL", err)
	}
	if u.Host == "" {
		return nil, nil, sosErrors.New(sosErrors.ErrCodeConfig, fmt.Sprintf("upload URL %q has no host", redact(u)))
	}
	if named != nil {
		return named, u, nil
	}
	t, ok := ForScheme(u.Scheme)
	if !ok {
		return nil, nil, sosErrors.NewWithContext(sosErrors.ErrCodeConfig, fmt.Sprintf("no upload target handles %q URLs", u.Scheme),
			map[string]any{"available": Names()})
	}
	return t, u, nil
}

func (d *Dispatcher) prompt() Prompter {
	if d.Prompt != nil {
		return d.Prompt
	}
	return terminalPrompt
}

// redact drops the password from u.
func redact(u *url.URL) string {
	c := *u
	if c.User != nil {
		c.User = url.User(c.User.Username())
	}
	return c.String()
}

// objectName is the remote file name: the archive name under dir.
func objectName(dir, archive string) string {
	name := filepath.Base(archive)
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
