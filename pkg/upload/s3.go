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
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultS3Endpoint is used when no --upload-s3-endpoint is given.
const DefaultS3Endpoint = "s3.amazonaws.com"

func init() {
	Register(s3Target{})
}

// s3Target puts the archive to s3://<bucket>/<prefix>/<archive>. The
// bucket and prefix options override the URL; the access and secret keys
// fall back to the upload user and password.
type s3Target struct{}

func (s3Target) Name() string      { return "s3" }
func (s3Target) Schemes() []string { return []string{"s3"} }

// s3Location resolves the endpoint, TLS use, bucket and object key.
func s3Location(req *Request) (endpoint string, secure bool, bucket, key string) {
	o := req.Options
	endpoint, secure = o.S3Endpoint, true
	if endpoint == "" {
		endpoint = DefaultS3Endpoint
	}
	if rest, ok := strings.CutPrefix(endpoint, "http://"); ok {
		endpoint, secure = rest, false
	}
	endpoint = strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/")

	bucket = o.S3Bucket
	if bucket == "" {
		bucket = req.URL.Host
	}
	prefix := o.S3ObjectPrefix
	if prefix == "" {
		prefix = req.URL.Path
	}
	key = objectName(prefix, filepath.Base(req.Archive))
	return endpoint, secure, bucket, key
}

func (s3Target) Upload(ctx context.Context, req *Request) error {
	endpoint, secure, bucket, key := s3Location(req)
	if bucket == "" {
		return errors.New("no S3 bucket given")
	}
	access, secret := req.Options.S3AccessKey, req.Options.S3SecretKey
	if access == "" {
		access = req.Creds.User
	}
	if secret == "" {
		secret = req.Creds.Password
	}

	mo := &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: secure,
		Region: req.Options.S3Region,
	}
	if secure && req.Options.NoSSLVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		mo.Transport = t
	}
	client, err := minio.New(endpoint, mo)
	if err != nil {
		return err
	}

	r, size, err := req.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	req.Log.Debug("putting object", "endpoint", endpoint, "bucket", bucket, "key", key, "size", size)
	_, err = client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}
