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

package cleaner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cleanerSubstitutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_cleaner_substitutions_total",
			Help: "Substitutions made by the cleaner, by parser",
		},
		[]string{"parser"},
	)

	cleanerRemovedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sos_cleaner_removed_files_total",
			Help: "Files removed from reports, binaries, keys and certificates",
		},
	)

	cleanerArchives = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_cleaner_archives_total",
			Help: "Reports processed by the cleaner",
		},
		[]string{"status"}, // obfuscated or failed
	)

	cleanerArchiveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sos_cleaner_archive_duration_seconds",
			Help:    "Time taken to obfuscate one report",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)
