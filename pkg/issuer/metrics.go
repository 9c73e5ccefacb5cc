// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package issuer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	issuanceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workspaces_issuance_duration_seconds",
			Help:    "Duration of credential issuance requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	issuanceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workspaces_issuance_total",
			Help: "Total number of credential issuance requests",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(issuanceDuration, issuanceTotal)
}

func recordIssuance(status string, start time.Time) {
	status = strings.ToLower(status)
	issuanceDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	issuanceTotal.WithLabelValues(status).Inc()
}
