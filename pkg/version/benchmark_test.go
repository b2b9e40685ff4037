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

package version

import (
	"testing"
)

func BenchmarkParseVersion(b *testing.B) {
	tests := []string{"4", "4.2", "4.5.6", "v4.5.6", "4.5.6-1.el9"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ParseVersion(tests[i%len(tests)])
	}
}

func BenchmarkFromOutput(b *testing.B) {
	out := "sos 4.5.6\n"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = FromOutput(out)
	}
}

func BenchmarkAtLeast(b *testing.B) {
	v := NewVersion(4, 5, 6)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = v.AtLeast("4.2")
	}
}
