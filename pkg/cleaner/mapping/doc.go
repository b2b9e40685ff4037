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

// Package mapping holds the consistent substitution maps used by the cleaner.
//
// Each kind of sensitive token (IPv4, IPv6, MAC, hostname, keyword, username)
// has its own Map. A Map allocates an obfuscated value the first time an
// original token is seen and returns that same value for every later lookup,
// in this run and in later runs that load the persisted mapping file.
//
// The mapping file is a JSON object of objects:
//
//	{
//	  "hostname_map": {"db1.example.com": "host0.obfuscateddomain0.com"},
//	  "ip_map": {"192.168.1.0/24": "100.0.0.0/24", "192.168.1.5": "100.0.0.1"}
//	}
//
// Loaded pairs are authoritative and seed the allocators, so a value already
// handed out is never proposed for a different original.
package mapping
