// Copyright (C) 2026 Memora Care (dev@memoracare.it)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the companion
// state layer and the sync gateway.
//
// # Description
//
// Counters and gauges cover the reconciliation merge path (applied,
// deduplicated, malformed, out-of-order events), the optimistic update
// lifecycle, and gateway realtime connections. Metrics are registered via
// promauto on the default registry and exposed by the gateway's /metrics
// endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "memora"

// Subsystem names.
const (
	reconcileSubsystem  = "reconcile"
	engagementSubsystem = "engagement"
	moodSubsystem       = "mood"
	gatewaySubsystem    = "gateway"
)

var (
	// MergesTotal counts remote changes applied to reconciled collections.
	// Labels: collection (messages, posts, comments), kind (insert, update, delete)
	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: reconcileSubsystem,
		Name:      "merges_total",
		Help:      "Remote changes applied to reconciled collections",
	}, []string{"collection", "kind"})

	// DuplicatesDroppedTotal counts remote inserts ignored because an entry
	// with the same id was already merged.
	DuplicatesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: reconcileSubsystem,
		Name:      "duplicates_dropped_total",
		Help:      "Duplicate remote inserts ignored during merge",
	}, []string{"collection"})

	// MalformedDroppedTotal counts events rejected at the validation boundary.
	MalformedDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: reconcileSubsystem,
		Name:      "malformed_dropped_total",
		Help:      "Malformed events dropped before merge",
	}, []string{"collection"})

	// OptimisticPending tracks optimistic entries awaiting confirmation.
	OptimisticPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: reconcileSubsystem,
		Name:      "optimistic_pending",
		Help:      "Optimistic entries not yet reconciled",
	}, []string{"collection"})

	// ToggleRejectsTotal counts like toggles rejected while a prior toggle
	// was still unconfirmed.
	ToggleRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: engagementSubsystem,
		Name:      "toggle_rejects_total",
		Help:      "Like toggles rejected as already pending",
	})

	// MoodAppendsTotal counts journal appends by mood value.
	MoodAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: moodSubsystem,
		Name:      "appends_total",
		Help:      "Mood journal appends",
	}, []string{"mood"})

	// MirrorRetriesTotal counts automatic retries of mood mirror writes.
	MirrorRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: moodSubsystem,
		Name:      "mirror_retries_total",
		Help:      "Automatic retries of best-effort mood mirror writes",
	})

	// RealtimeClients tracks connected gateway websocket clients.
	RealtimeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: gatewaySubsystem,
		Name:      "realtime_clients",
		Help:      "Connected realtime websocket clients",
	})

	// RequestsTotal counts gateway HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: gatewaySubsystem,
		Name:      "requests_total",
		Help:      "Gateway HTTP requests",
	}, []string{"route", "status"})
)
