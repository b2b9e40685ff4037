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
	"strings"
)

// Plugin families. A plugin declares the families it supports and only
// runs when the active policy lists one of them.
const (
	FamilyIndependent = "independent"
	FamilyRedHat      = "redhat"
	FamilyDebian      = "debian"
	FamilyUbuntu      = "ubuntu"
	FamilySuse        = "suse"
)

// Policy describes the host a report runs on: distribution, package
// manager view, kernel modules, services and preferred defaults.
type Policy interface {
	// Name is the policy identifier, e.g. "redhat" or "ubuntu".
	Name() string
	// Distro is the human readable distribution name.
	Distro() string
	// Release is the distribution version.
	Release() string
	// Families lists the plugin families valid on this host.
	Families() []string
	// HashAlgorithm is the preferred checksum algorithm.
	HashAlgorithm() string
	// Sysroot is the root of the inspected filesystem, "/" unless --sysroot is used.
	Sysroot() string
	// Hostname of the inspected host.
	Hostname() string
	// Arch is the machine architecture, e.g. x86_64.
	Arch() string
	// DefaultUploadURL is the vendor support endpoint, if any.
	DefaultUploadURL() string

	PackageVersion(ctx context.Context, name string) (string, bool)
	KernelModuleLoaded(ctx context.Context, name string) bool
	ServiceRunning(ctx context.Context, name string) bool
	ServiceEnabled(ctx context.Context, name string) bool
}

// ValidFamily reports whether any of the plugin families is valid for p.
func ValidFamily(p Policy, families []string) bool {
	if len(families) == 0 {
		return true
	}
	valid := p.Families()
	for _, f := range families {
		if slices.Contains(valid, f) {
			return true
		}
	}
	return false
}

// familiesFor maps os-release ID and ID_LIKE values to plugin families.
func familiesFor(id string, like []string) (string, []string) {
	name := "linux"
	fams := []string{FamilyIndependent}
	add := func(f string) {
		if !slices.Contains(fams, f) {
			fams = append(fams, f)
		}
	}
	for _, v := range append([]string{id}, like...) {
		switch strings.ToLower(v) {
		case "rhel", "fedora", "centos", "rocky", "almalinux", "ol", "amzn":
			add(FamilyRedHat)
			if name == "linux" {
				name = FamilyRedHat
			}
		case "ubuntu":
			add(FamilyUbuntu)
			add(FamilyDebian)
			if name == "linux" {
				name = FamilyUbuntu
			}
		case "debian":
			add(FamilyDebian)
			if name == "linux" {
				name = FamilyDebian
			}
		case "suse", "sles", "opensuse", "opensuse-leap", "opensuse-tumbleweed":
			add(FamilySuse)
			if name == "linux" {
				name = FamilySuse
			}
		}
	}
	return name, fams
}

// uploadURLs are the vendor endpoints offered when --upload-url is not given.
var uploadURLs = map[string]string{
	FamilyRedHat: "https://sftp.access.redhat.com",
	FamilyUbuntu: "https://files.support.canonical.com/uploads/",
}
