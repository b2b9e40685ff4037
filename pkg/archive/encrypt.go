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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/openpgp"        //nolint:staticcheck // deprecated upstream
	"golang.org/x/crypto/openpgp/armor"  //nolint:staticcheck
	"golang.org/x/crypto/openpgp/packet" //nolint:staticcheck

	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

// EncryptedPrefix is prepended to the name of an encrypted archive.
const EncryptedPrefix = "secured-"

// EncryptOptions selects the encryption mode. Exactly one of KeyFile and
// Passphrase is set.
type EncryptOptions struct {
	// KeyFile is a public key, armored or binary.
	KeyFile    string
	Passphrase string
}

// Encrypt writes an OpenPGP encrypted copy of src next to it, named
// secured-<base>.gpg, and removes src. It returns the new path.
func Encrypt(src string, opts EncryptOptions) (string, error) {
	if (opts.KeyFile == "") == (opts.Passphrase == "") {
		return "", errors.New("exactly one of an encryption key or passphrase is required")
	}
	dest := filepath.Join(filepath.Dir(src), EncryptedPrefix+filepath.Base(src)+".gpg")

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", sosErrors.AsFatalFS("failed to create encrypted archive", err)
	}

	cfg := &packet.Config{DefaultCompressionAlgo: packet.CompressionNone}
	hints := &openpgp.FileHints{IsBinary: true, FileName: filepath.Base(src)}
	var w io.WriteCloser
	if opts.KeyFile != "" {
		recipients, kerr := readKeyRing(opts.KeyFile)
		if kerr != nil {
			out.Close()
			os.Remove(dest)
			return "", kerr
		}
		w, err = openpgp.Encrypt(out, recipients, nil, hints, cfg)
	} else {
		w, err = openpgp.SymmetricallyEncrypt(out, []byte(opts.Passphrase), hints, cfg)
	}
	if err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("failed to start encryption: %w", err)
	}

	if _, err := io.Copy(w, in); err != nil {
		w.Close()
		out.Close()
		os.Remove(dest)
		return "", sosErrors.AsFatalFS("failed to encrypt archive", err)
	}
	if err := w.Close(); err != nil {
		out.Close()
		os.Remove(dest)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", sosErrors.AsFatalFS("failed to write encrypted archive", err)
	}
	in.Close()
	if err := os.Remove(src); err != nil {
		return dest, fmt.Errorf("encrypted archive written but %s was not removed: %w", src, err)
	}
	return dest, nil
}

// Decrypt reverses a passphrase encryption into dest.
func Decrypt(src, dest, passphrase string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tried := false
	prompt := func(_ []openpgp.Key, symmetric bool) ([]byte, error) {
		if !symmetric || tried {
			return nil, errors.New("wrong passphrase")
		}
		tried = true
		return []byte(passphrase), nil
	}
	md, err := openpgp.ReadMessage(in, nil, prompt, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt %s: %w", src, err)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, md.UnverifiedBody); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func readKeyRing(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to open encryption key", err)
	}
	defer f.Close()

	if block, err := armor.Decode(f); err == nil {
		return openpgp.ReadKeyRing(block.Body)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	el, err := openpgp.ReadKeyRing(f)
	if err != nil {
		return nil, sosErrors.Wrap(sosErrors.ErrCodeConfig, "failed to read encryption key", err)
	}
	return el, nil
}
