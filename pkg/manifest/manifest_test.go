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

package manifest

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestJSONKeys(t *testing.T) {
	m := New("4.8.0", "run-1", "sos report --batch")
	m.CaseID = "01234"
	m.Policy = Policy{Distro: "Fedora", Release: "40", Hostname: "h1"}

	sec := m.ReportSection().Plugin("host")
	sec.TimeoutHit = true
	sec.Commands = append(sec.Commands, CommandEntry{Exec: "hostname", Filepath: "sos_commands/host/hostname"})
	m.Finish()

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "4.8.0", decoded["sos_version"])
	assert.Equal(t, "01234", decoded["case_id"])
	assert.Equal(t, "Fedora", decoded["policy"].(map[string]any)["distro"])

	plugins := decoded["components"].(map[string]any)["report"].(map[string]any)["plugins"].(map[string]any)
	host := plugins["host"].(map[string]any)
	for _, key := range []string{"start_time", "end_time", "setup_time", "files", "commands", "strings", "alerts", "notes", "timeout_hit", "setup_commands"} {
		assert.Contains(t, host, key)
	}
	assert.Equal(t, true, host["timeout_hit"])
	assert.NotContains(t, decoded["components"], "cleaner")
}

func TestReportPluginConcurrent(t *testing.T) {
	r := New("4.8.0", "", "").ReportSection()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := []string{"a", "b", "c", "d"}[i%4]
			r.Plugin(name)
			r.Skip("skipped-"+name, "not enabled")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, []string{"a", "b", "c", "d"}, r.PluginNames())
	assert.Len(t, r.SkippedPlugins, 4)
	assert.Same(t, r.Plugin("a"), r.Plugin("a"))
}

func TestCleanerAndCollectSections(t *testing.T) {
	m := New("4.8.0", "", "")
	m.CleanerSection().AddArchive(&CleanerArchive{Name: "sosreport-a", TotalSubstitutions: 3})
	m.CollectSection().AddNode(&CollectNode{Address: "10.0.0.1", Status: "ok"})

	assert.Equal(t, 3, m.Components.Cleaner.Archives["sosreport-a"].TotalSubstitutions)
	assert.Equal(t, "ok", m.Components.Collect.Nodes["10.0.0.1"].Status)
	assert.Same(t, m.CleanerSection(), m.CleanerSection())
}
