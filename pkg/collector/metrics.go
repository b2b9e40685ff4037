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

package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	collectNodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_collect_nodes_total",
			Help: "Hosts handled by collect runs",
		},
		[]string{"status"}, // collected, failed or excluded
	)

	collectNodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sos_collect_node_duration_seconds",
			Help:    "Time from connecting to a host until its report was retrieved",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
	)

	collectRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sos_collect_run_duration_seconds",
			Help:    "Duration of whole collect runs",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10),
		},
	)
)
