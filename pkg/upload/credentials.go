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
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/NVIDIA/sos/pkg/config"
	"github.com/NVIDIA/sos/pkg/defaults"
	sosErrors "github.com/NVIDIA/sos/pkg/errors"
)

// Credentials authenticate an upload.
type Credentials struct {
	User     string
	Password string
}

// Prompter reads a value from the operator. secret disables echo.
type Prompter func(prompt string, secret bool) (string, error)

// ErrNoTerminal is returned by TerminalPrompt when stdin is not a TTY.
var ErrNoTerminal = errors.New("stdin is not a terminal")

// TerminalPrompt prompts on stderr and reads the answer from stdin.
func TerminalPrompt(prompt string, secret bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNoTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	if secret {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(line), err
}

var terminalPrompt Prompter = TerminalPrompt

// resolveCredentials applies, in order: options, URL userinfo, the
// SOSUPLOADUSER/SOSUPLOADPASS environment and finally an interactive
// password prompt outside batch mode.
func resolveCredentials(u *url.URL, opts *config.UploadOptions, batch bool, prompt Prompter) (Credentials, error) {
	c := Credentials{User: opts.User, Password: opts.Pass}
	if u.User != nil {
		if c.User == "" {
			c.User = u.User.Username()
		}
		if p, ok := u.User.Password(); ok && c.Password == "" {
			c.Password = p
		}
	}
	if c.User == "" {
		c.User = os.Getenv(defaults.EnvUploadUser)
	}
	if c.Password == "" {
		c.Password = os.Getenv(defaults.EnvUploadPass)
	}
	if c.User == "" || c.Password != "" || batch {
		return c, nil
	}
	p, err := prompt(fmt.Sprintf("Please provide the upload password for %s: ", c.User), true)
	switch {
	case errors.Is(err, ErrNoTerminal):
		return c, nil
	case err != nil:
		return c, sosErrors.Wrap(sosErrors.ErrCodeUpload, "failed to read upload password", err)
	}
	c.Password = p
	return c, nil
}
