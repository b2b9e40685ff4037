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
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

func testRequest(t *testing.T, raw string, opts *config.UploadOptions) *Request {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	if opts == nil {
		opts = &config.UploadOptions{}
	}
	return &Request{Archive: "/var/tmp/" + archiveName, URL: u, Options: opts}
}

func TestS3Location(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		opts     *config.UploadOptions
		endpoint string
		secure   bool
		bucket   string
		key      string
	}{
		{
			name:     "url only",
			url:      "s3://reports/cases/",
			endpoint: DefaultS3Endpoint,
			secure:   true,
			bucket:   "reports",
			key:      "cases/" + archiveName,
		},
		{
			name:     "options override",
			url:      "s3://reports/cases",
			opts:     &config.UploadOptions{S3Endpoint: "http://minio.local:9000", S3Bucket: "other", S3ObjectPrefix: "in"},
			endpoint: "minio.local:9000",
			bucket:   "other",
			key:      "in/" + archiveName,
		},
		{
			name:     "https endpoint",
			url:      "s3://reports",
			opts:     &config.UploadOptions{S3Endpoint: "https://s3.example.com/"},
			endpoint: "s3.example.com",
			secure:   true,
			bucket:   "reports",
			key:      archiveName,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, secure, bucket, key := s3Location(testRequest(t, tt.url, tt.opts))
			assert.Equal(t, tt.endpoint, endpoint)
			assert.Equal(t, tt.secure, secure)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestS3Upload(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	p, data := writeArchive(t, 2048)
	d := newDispatcher(t, &config.UploadOptions{
		URL:         "s3://reports/cases",
		S3Endpoint:  srv.URL,
		S3Region:    "us-east-1",
		S3AccessKey: "access",
		S3SecretKey: "secret",
	})
	res, err := d.Upload(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "s3", res.Target)
	assert.Equal(t, int64(len(data)), res.Bytes)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/reports/cases/"+archiveName, path)
}

func TestS3RequiresBucket(t *testing.T) {
	req := testRequest(t, "s3://", nil)
	assert.Error(t, s3Target{}.Upload(context.Background(), req))
}

func TestOCIReference(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		registry string
		repo     string
		tag      string
		wantErr  bool
	}{
		{name: "archive tag", url: "oci://registry.example.com/support/reports", registry: "registry.example.com", repo: "support/reports", tag: archiveName},
		{name: "explicit tag", url: "oci://localhost:5000/reports:case-1", registry: "localhost:5000", repo: "reports", tag: "case-1"},
		{name: "no repository", url: "oci://registry.example.com/", wantErr: true},
		{name: "invalid repository", url: "oci://registry.example.com/Reports", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, repo, tag, err := ociReference(testRequest(t, tt.url, nil))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.registry, registry)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.tag, tag)
		})
	}
}

func TestArchiveTag(t *testing.T) {
	assert.Equal(t, archiveName, archiveTag(archiveName))
	assert.Equal(t, "hidden_report", archiveTag(".hidden report"))
	assert.Equal(t, "latest", archiveTag(""))
	assert.Len(t, archiveTag(strings.Repeat("a", 200)), 128)
}

func TestNATSBucket(t *testing.T) {
	assert.Equal(t, "cases", natsBucket(testRequest(t, "nats://nats.local:4222/cases/", nil)))
	assert.Equal(t, "dir", natsBucket(testRequest(t, "nats://nats.local:4222", &config.UploadOptions{Directory: "/dir"})))
	assert.Equal(t, DefaultNATSBucket, natsBucket(testRequest(t, "nats://nats.local:4222", nil)))
}

func TestSFTPRequiresUser(t *testing.T) {
	t.Setenv(defaults.EnvUploadUser, "")
	p, _ := writeArchive(t, 10)
	d := newDispatcher(t, &config.UploadOptions{URL: "sftp://files.example.com/in"})
	_, err := d.Upload(context.Background(), p)
	require.Error(t, err)
	assert.True(t, sosErrors.HasCode(err, sosErrors.ErrCodeUpload))
	assert.Contains(t, err.Error(), "require a user")
}
