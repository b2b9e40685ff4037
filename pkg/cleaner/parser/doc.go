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

// Package parser recognizes sensitive tokens in lines of text and rewrites
// them through the consistent maps of package mapping.
//
// Parsers run in a fixed order (hostname, ip, ipv6, mac, keyword, username)
// and each rewrites matches left to right, so allocation order only depends
// on the order lines are fed in.
package parser
