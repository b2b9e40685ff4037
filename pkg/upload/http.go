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
	"crypto/tls"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/sos/pkg/defaults"
)

// UserAgent is sent with HTTP uploads.
const UserAgent = "sos-upload/1.0"

func init() {
	Register(&httpTarget{})
}

// httpTarget uploads with PUT to <url>/<archive> or with a multipart POST
// of the "file" field to <url>.
type httpTarget struct {
	// client replaces the built client, for tests.
	client *http.Client
}

func (*httpTarget) Name() string      { return "https" }
func (*httpTarget) Schemes() []string { return []string{"https", "http"} }

// newHTTPClient builds a client with the connect, handshake and response
// header timeouts of the upload defaults. The whole upload is bounded by
// the request context instead of a client timeout.
func newHTTPClient(insecure bool) *http.Client {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaults.HTTPConnectTimeout,
			KeepAlive: defaults.HTTPKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   defaults.HTTPTLSHandshakeTimeout,
		ResponseHeaderTimeout: defaults.HTTPResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{Transport: t}
}

func (h *httpTarget) Upload(ctx context.Context, req *Request) error {
	r, size, err := req.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	target := *req.URL
	target.User = nil
	name := filepath.Base(req.Archive)

	var (
		method      string
		body        io.Reader
		contentType string
		length      int64
	)
	switch strings.ToLower(req.Options.Method) {
	case "", "auto", "put":
		method = http.MethodPut
		target.Path = strings.TrimSuffix(target.Path, "/") + "/" + objectName(req.Options.Directory, name)
		body, contentType, length = r, "application/octet-stream", size
	case "post":
		method = http.MethodPost
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			part, err := mw.CreateFormFile("file", name)
			if err == nil {
				_, err = io.Copy(part, r)
			}
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()
		body, contentType, length = pr, mw.FormDataContentType(), -1
	default:
		return fmt.Errorf("unsupported upload method %q", req.Options.Method)
	}

	hreq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return err
	}
	hreq.ContentLength = length
	hreq.Header.Set("Content-Type", contentType)
	hreq.Header.Set("User-Agent", UserAgent)
	if req.Creds.User != "" {
		hreq.SetBasicAuth(req.Creds.User, req.Creds.Password)
	}

	client := h.client
	if client == nil {
		client = newHTTPClient(req.Options.NoSSLVerify)
	}
	req.Log.Debug("sending archive", "method", method, "url", target.String(), "size", size)
	resp, err := client.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
