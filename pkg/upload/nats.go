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
	"path/filepath"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/NVIDIA/sos/pkg/defaults"
)

// DefaultNATSBucket is the object store used when the URL names none.
const DefaultNATSBucket = "sos-reports"

func init() {
	Register(natsTarget{})
}

// natsTarget stores the archive in a JetStream object store bucket,
// nats://<server>/<bucket>, creating the bucket when missing.
type natsTarget struct{}

func (natsTarget) Name() string      { return "nats" }
func (natsTarget) Schemes() []string { return []string{"nats"} }

func natsBucket(req *Request) string {
	if b := strings.Trim(req.URL.Path, "/"); b != "" {
		return b
	}
	if b := strings.Trim(req.Options.Directory, "/"); b != "" {
		return b
	}
	return DefaultNATSBucket
}

func (natsTarget) Upload(ctx context.Context, req *Request) error {
	opts := []nats.Option{
		nats.Name("sos upload"),
		nats.Timeout(defaults.HTTPConnectTimeout),
	}
	if req.Creds.User != "" {
		opts = append(opts, nats.UserInfo(req.Creds.User, req.Creds.Password))
	}
	nc, err := nats.Connect("nats://"+req.URL.Host, opts...)
	if err != nil {
		return err
	}
	defer nc.Close()

	js, err := nc.JetStream(nats.Context(ctx))
	if err != nil {
		return err
	}
	bucket := natsBucket(req)
	obs, err := js.ObjectStore(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) || errors.Is(err, nats.ErrStreamNotFound) {
		req.Log.Info("creating object store bucket", "bucket", bucket)
		obs, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "sos report archives",
		})
	}
	if err != nil {
		return err
	}

	r, _, err := req.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	info, err := obs.Put(&nats.ObjectMeta{
		Name:        filepath.Base(req.Archive),
		Description: "sos report archive",
	}, r, nats.Context(ctx))
	if err != nil {
		return err
	}
	req.Log.Debug("stored object", "bucket", bucket, "name", info.Name, "digest", info.Digest)
	return nil
}
