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

package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	reportRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sos_report_run_duration_seconds",
			Help:    "Time taken to produce a complete report",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	reportRunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_report_run_total",
			Help: "Total number of report runs",
		},
		[]string{"status"}, // success, error or interrupted
	)

	// Plugin metrics
	reportPluginDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sos_report_plugin_duration_seconds",
			Help:    "Time taken by individual plugins, setup and collect",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"plugin"},
	)

	reportPluginResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_report_plugin_results_total",
			Help: "Plugin outcomes by status",
		},
		[]string{"status"}, // ok, failed or timed_out
	)

	reportPluginsEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_report_plugins_enabled",
			Help: "Number of plugins selected in the last run",
		},
	)

	reportArchiveBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sos_report_archive_bytes",
			Help: "Size of the last finalized archive",
		},
	)
)
