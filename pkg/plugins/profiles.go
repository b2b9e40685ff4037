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

package plugins

// Profiles used by the built-in catalog.
const (
	ProfileSystem     = "system"
	ProfileBoot       = "boot"
	ProfileNetwork    = "network"
	ProfileHardware   = "hardware"
	ProfileServices   = "services"
	ProfileStorage    = "storage"
	ProfileMemory     = "memory"
	ProfilePackages   = "packagemanager"
	ProfileSecurity   = "security"
	ProfileContainer  = "container"
	ProfileIdentity   = "identity"
	ProfileKubernetes = "openshift"
)
