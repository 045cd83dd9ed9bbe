// Copyright 2025 The awrdetect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package apiserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "awrdetect"

var (
	// detectionsTotal counts detection requests by endpoint and outcome
	// (ok | bad_request | timeout | failed)
	detectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "detections_total",
			Help:      "Total number of detection requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	incidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "incidents_total",
			Help:      "Total number of detected incidents by attributed cause.",
		},
		[]string{"cause"},
	)

	reportCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "report_cache",
			Name:      "requests_total",
			Help:      "Report cache lookups by result (hit | miss).",
		},
		[]string{"result"},
	)

	detectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "detection_duration_seconds",
			Help:      "Time spent on extraction, prediction and attribution.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)
)
