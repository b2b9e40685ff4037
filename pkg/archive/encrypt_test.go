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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptPassphraseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sosreport-host-2026-01-02-abcde.tar.gz")
	require.NoError(t, os.WriteFile(src, []byte("archive bytes"), 0o600))

	dest, err := Encrypt(src, EncryptOptions{Passphrase: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "secured-sosreport-host-2026-01-02-abcde.tar.gz.gpg"), dest)
	assert.NoFileExists(t, src)

	plain := filepath.Join(dir, "plain")
	require.NoError(t, Decrypt(dest, plain, "s3cret"))
	got, err := os.ReadFile(plain)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(got))

	assert.Error(t, Decrypt(dest, filepath.Join(dir, "bad"), "wrong"))
}

func TestEncryptRequiresOneMode(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.tar")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	_, err := Encrypt(src, EncryptOptions{})
	assert.Error(t, err)
	_, err = Encrypt(src, EncryptOptions{KeyFile: "k", Passphrase: "p"})
	assert.Error(t, err)
	assert.FileExists(t, src)
}
