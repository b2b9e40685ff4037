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

// Package cleaner obfuscates sos reports.
//
// A target is an sos tarball, an extracted report directory, a directory
// holding sos tarballs, or an archive of archives as written by collect.
// Each report is extracted to a private work directory, primed from its own
// well known files, rewritten line by line through the parsers in
// pkg/cleaner/parser, and repacked as <obfuscated-name>-obfuscated.tar.*
// using the compression it arrived with. A private map of every
// substitution is written next to the result and, unless disabled, merged
// back into the persistent map file so later runs reuse the same values.
//
// Usage:
//
//	c, err := cleaner.New(cleaner.Config{Options: opts})
//	if err != nil {
//	    return err
//	}
//	res, err := c.Execute(ctx, "/var/tmp/sosreport-db1-2025-01-01-abcde.tar.xz")
//
// Reports are processed concurrently up to Options.Clean.Jobs; files within
// one report are processed in walk order so allocation is deterministic for
// a given report and map file.
package cleaner
