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
	"fmt"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/dbus"
)

type unitState struct {
	active  bool
	enabled bool
}

type serviceSource interface {
	units(ctx context.Context) (map[string]unitState, error)
}

// unitName appends ".service" to bare names.
func unitName(name string) string {
	if name == "" || strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

// dbusServices lists units through the systemd D-Bus API and falls back to
// systemctl when the bus is unavailable, e.g. inside containers.
type dbusServices struct {
	run Runner
}

func (d *dbusServices) units(ctx context.Context) (map[string]unitState, error) {
	conn, err := dbus.NewSystemdConnectionContext(ctx)
	if err != nil {
		return d.fromSystemctl(ctx, err)
	}
	defer conn.Close()

	out := make(map[string]unitState)
	list, err := conn.ListUnitsContext(ctx)
	if err != nil {
		return d.fromSystemctl(ctx, err)
	}
	for _, u := range list {
		st := out[u.Name]
		st.active = u.ActiveState == "active"
		out[u.Name] = st
	}

	files, err := conn.ListUnitFilesContext(ctx)
	if err != nil {
		return out, nil
	}
	for _, f := range files {
		name := filepath.Base(f.Path)
		st := out[name]
		st.enabled = f.Type == "enabled"
		out[name] = st
	}
	return out, nil
}

func (d *dbusServices) fromSystemctl(ctx context.Context, cause error) (map[string]unitState, error) {
	out := make(map[string]unitState)
	units, err := d.run(ctx, "systemctl", "list-units", "--all", "--no-legend", "--plain", "--no-pager")
	if err != nil {
		return out, fmt.Errorf("systemd unavailable (%v): %w", cause, err)
	}
	for _, line := range strings.Split(string(units), "\n") {
		f := strings.Fields(line)
		if len(f) >= 3 {
			out[f[0]] = unitState{active: f[2] == "active"}
		}
	}
	files, err := d.run(ctx, "systemctl", "list-unit-files", "--no-legend", "--plain", "--no-pager")
	if err != nil {
		return out, nil
	}
	for _, line := range strings.Split(string(files), "\n") {
		f := strings.Fields(line)
		if len(f) >= 2 {
			st := out[f[0]]
			st.enabled = f[1] == "enabled"
			out[f[0]] = st
		}
	}
	return out, nil
}
