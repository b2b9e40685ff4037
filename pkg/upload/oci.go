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
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/distribution/reference"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"
	oras "oras.land/oras-go/v2"
	"oras.land/oras-go/v2/content/file"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/credentials"
)

// Media types of archives pushed to OCI registries.
const (
	ArtifactType   = "application/vnd.sos.report.v1"
	MediaTypeLayer = "application/vnd.sos.report.layer.v1.tar"
)

func init() {
	Register(ociTarget{})
}

// ociTarget pushes the archive as a single-layer OCI artifact to
// oci://<registry>/<repository>[:tag]. The tag defaults to the archive
// name. "?plain-http=true" talks to the registry without TLS.
type ociTarget struct{}

func (ociTarget) Name() string      { return "oci" }
func (ociTarget) Schemes() []string { return []string{"oci"} }

var invalidTagChars = regexp.MustCompile(`[^\w.-]`)

// ociReference splits the URL into registry, repository and tag.
func ociReference(req *Request) (registry, repository, tag string, err error) {
	registry = req.URL.Host
	repository = strings.Trim(req.URL.Path, "/")
	if i := strings.LastIndex(repository, ":"); i > strings.LastIndex(repository, "/") {
		repository, tag = repository[:i], repository[i+1:]
	}
	if repository == "" {
		return "", "", "", fmt.Errorf("no repository in %s", redact(req.URL))
	}
	if tag == "" {
		tag = archiveTag(filepath.Base(req.Archive))
	}
	ref := fmt.Sprintf("%s/%s:%s", registry, repository, tag)
	if _, perr := reference.ParseNormalizedNamed(ref); perr != nil {
		return "", "", "", fmt.Errorf("invalid image reference '%s': %w", ref, perr)
	}
	return registry, repository, tag, nil
}

// archiveTag derives a valid tag from an archive name.
func archiveTag(name string) string {
	tag := invalidTagChars.ReplaceAllString(name, "_")
	tag = strings.TrimLeft(tag, ".-")
	if len(tag) > 128 {
		tag = tag[:128]
	}
	if tag == "" {
		tag = "latest"
	}
	return tag
}

func (ociTarget) Upload(ctx context.Context, req *Request) error {
	registry, repository, tag, err := ociReference(req)
	if err != nil {
		return err
	}
	plainHTTP, _ := strconv.ParseBool(req.URL.Query().Get("plain-http"))

	abs, err := filepath.Abs(req.Archive)
	if err != nil {
		return err
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return err
	}
	store, err := file.New(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("failed to create file store: %w", err)
	}
	defer func() { _ = store.Close() }()

	layer, err := store.Add(ctx, filepath.Base(abs), MediaTypeLayer, abs)
	if err != nil {
		return fmt.Errorf("failed to add archive to store: %w", err)
	}
	manifestDesc, err := oras.PackManifest(ctx, store, oras.PackManifestVersion1_1, ArtifactType,
		oras.PackManifestOptions{Layers: []ociv1.Descriptor{layer}})
	if err != nil {
		return fmt.Errorf("failed to pack manifest: %w", err)
	}
	if err := store.Tag(ctx, manifestDesc, tag); err != nil {
		return fmt.Errorf("failed to tag manifest in local store: %w", err)
	}

	repo, err := remote.NewRepository(registry + "/" + repository)
	if err != nil {
		return fmt.Errorf("failed to initialize remote repository: %w", err)
	}
	repo.PlainHTTP = plainHTTP
	repo.Client = ociAuthClient(registry, req.Creds, plainHTTP, req.Options.NoSSLVerify)

	desc, err := oras.Copy(ctx, store, tag, repo, tag, oras.DefaultCopyOptions)
	if err != nil {
		return fmt.Errorf("failed to push artifact to registry: %w", err)
	}
	req.sent.n.Add(fi.Size())
	req.Log.Info("pushed archive", "reference", fmt.Sprintf("%s/%s:%s", registry, repository, tag),
		"digest", desc.Digest.String())
	return nil
}

// ociAuthClient uses the upload credentials when given and the Docker
// credential store otherwise.
func ociAuthClient(registry string, creds Credentials, plainHTTP, insecure bool) *auth.Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if !plainHTTP && insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	c := &auth.Client{
		Client: &http.Client{Transport: t},
		Cache:  auth.NewCache(),
	}
	if creds.User != "" {
		c.Credential = auth.StaticCredential(registry, auth.Credential{
			Username: creds.User,
			Password: creds.Password,
		})
		return c
	}
	if store, err := credentials.NewStoreFromDocker(credentials.StoreOptions{}); err == nil {
		c.Credential = credentials.Credential(store)
	}
	return c
}
