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

package policy

import (
	"context"
	"slices"
)

// Static is a Policy backed by fixed data. It describes hosts whose facts
// were gathered elsewhere, such as a remote node profiled by the collector,
// and is used by tests.
type Static struct {
	PolicyName string
	DistroName string
	Version    string
	FamilyList []string
	Hash       string
	Root       string
	Host       string
	Machine    string
	UploadURL  string
	Packages   map[string]string
	Modules    []string
	Running    []string
	Enabled    []string
}

var _ Policy = (*Static)(nil)

func (s *Static) Name() string {
	if s.PolicyName == "" {
		return "linux"
	}
	return s.PolicyName
}

func (s *Static) Distro() string  { return s.DistroName }
func (s *Static) Release() string { return s.Version }

func (s *Static) Families() []string {
	if len(s.FamilyList) == 0 {
		return []string{FamilyIndependent}
	}
	return s.FamilyList
}

func (s *Static) HashAlgorithm() string {
	if s.Hash == "" {
		return "sha256"
	}
	return s.Hash
}

func (s *Static) Sysroot() string {
	if s.Root == "" {
		return "/"
	}
	return s.Root
}

func (s *Static) Hostname() string         { return s.Host }
func (s *Static) Arch() string             { return s.Machine }
func (s *Static) DefaultUploadURL() string { return s.UploadURL }

func (s *Static) PackageVersion(_ context.Context, name string) (string, bool) {
	v, ok := s.Packages[name]
	return v, ok
}

func (s *Static) KernelModuleLoaded(_ context.Context, name string) bool {
	return slices.Contains(s.Modules, name)
}

func (s *Static) ServiceRunning(_ context.Context, name string) bool {
	return containsUnit(s.Running, name)
}

func (s *Static) ServiceEnabled(_ context.Context, name string) bool {
	return containsUnit(s.Enabled, name)
}

func containsUnit(units []string, name string) bool {
	want := unitName(name)
	return slices.ContainsFunc(units, func(u string) bool { return unitName(u) == want })
}
