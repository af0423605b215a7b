// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes Prometheus counters for the acquisition
// pipeline. The registry is served on /metrics when enabled in config.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "fetcharr"

var (
	// Registry holds every fetcharr metric plus the standard process and
	// Go runtime collectors.
	Registry = prometheus.NewRegistry()

	// SearchesTotal tracks pipeline runs by their final action.
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of search pipeline runs by outcome",
		},
		[]string{"action"},
	)

	// IndexerErrorsTotal tracks failed indexer queries during fan-out.
	IndexerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexer_errors_total",
			Help:      "Total number of failed indexer queries",
		},
		[]string{"indexer"},
	)

	// GrabsTotal tracks releases sent to a download client.
	GrabsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grabs_total",
			Help:      "Total number of grab attempts by result",
		},
		[]string{"result"},
	)

	// ImportsTotal tracks completed transfers leaving the queue.
	ImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Total number of import attempts by result",
		},
		[]string{"result"},
	)

	// PendingPromotionsTotal tracks delayed releases handed to the queue.
	PendingPromotionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pending_promotions_total",
			Help:      "Total number of pending releases promoted after their delay",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SearchesTotal,
		IndexerErrorsTotal,
		GrabsTotal,
		ImportsTotal,
		PendingPromotionsTotal,
	)
}
