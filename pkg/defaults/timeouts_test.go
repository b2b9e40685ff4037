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

package defaults

import (
	"testing"
	"time"
)

func TestTimeoutConstants(t *testing.T) {
	tests := []struct {
		name     string
		timeout  time.Duration
		minValue time.Duration
		maxValue time.Duration
	}{
		// Report timeouts
		{"PluginTimeout", PluginTimeout, 60 * time.Second, 30 * time.Minute},
		{"CommandTimeout", CommandTimeout, 10 * time.Second, 30 * time.Minute},
		{"TimeoutAllowance", TimeoutAllowance, 1 * time.Second, 30 * time.Second},
		{"ShutdownGrace", ShutdownGrace, 1 * time.Second, 30 * time.Second},
		{"PredicateCommandTimeout", PredicateCommandTimeout, 5 * time.Second, 60 * time.Second},

		// Collector timeouts
		{"CollectorTimeout", CollectorTimeout, 60 * time.Second, 60 * time.Minute},
		{"CollectorCommandTimeout", CollectorCommandTimeout, 10 * time.Second, 10 * time.Minute},
		{"SSHConnectTimeout", SSHConnectTimeout, 1 * time.Second, 60 * time.Second},

		// HTTP client timeouts
		{"HTTPConnectTimeout", HTTPConnectTimeout, 1 * time.Second, 15 * time.Second},
		{"HTTPTLSHandshakeTimeout", HTTPTLSHandshakeTimeout, 1 * time.Second, 30 * time.Second},
		{"HTTPResponseHeaderTimeout", HTTPResponseHeaderTimeout, 10 * time.Second, 5 * time.Minute},
		{"UploadTimeout", UploadTimeout, 5 * time.Minute, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.timeout < tt.minValue {
				t.Errorf("%s (%v) is below minimum expected value (%v)", tt.name, tt.timeout, tt.minValue)
			}
			if tt.timeout > tt.maxValue {
				t.Errorf("%s (%v) is above maximum expected value (%v)", tt.name, tt.timeout, tt.maxValue)
			}
		})
	}
}

func TestCommandTimeoutWithinPluginTimeout(t *testing.T) {
	if CommandTimeout > PluginTimeout {
		t.Errorf("CommandTimeout (%v) should not exceed PluginTimeout (%v)", CommandTimeout, PluginTimeout)
	}
}

func TestCollectorTimeoutRelationships(t *testing.T) {
	if CollectorCommandTimeout >= CollectorTimeout {
		t.Errorf("CollectorCommandTimeout (%v) should be less than CollectorTimeout (%v)",
			CollectorCommandTimeout, CollectorTimeout)
	}
	if ReconnectAttempts < 1 {
		t.Errorf("ReconnectAttempts (%d) must be positive", ReconnectAttempts)
	}
}
