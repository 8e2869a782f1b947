/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Core updates as it runs,
// grounded on lcalzada-xor-wmap's client_golang instrumentation.
type Metrics struct {
	Neighbors        *prometheus.GaugeVec
	HandshakesTotal  *prometheus.CounterVec
	ReplayDropped    prometheus.Counter
	TrickleInterval  prometheus.Gauge
}

// NewMetrics constructs and registers a Metrics set against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Neighbors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coresec_neighbors",
			Help: "Number of live neighbor table records, by status.",
		}, []string{"status"}),
		HandshakesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coresec_handshakes_total",
			Help: "Completed APKES handshakes, by outcome.",
		}, []string{"outcome"}),
		ReplayDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coresec_replay_dropped_total",
			Help: "Frames dropped for failing the anti-replay check.",
		}),
		TrickleInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coresec_trickle_interval_seconds",
			Help: "Current Trickle interval I, in seconds.",
		}),
	}
	reg.MustRegister(m.Neighbors, m.HandshakesTotal, m.ReplayDropped, m.TrickleInterval)
	return m
}

func (m *Metrics) observeTable(t *NeighborTable) {
	if m == nil {
		return
	}
	var tentative, awaiting, permanent float64
	for n := t.head(); n != nil; n = t.next(n) {
		switch n.Status {
		case StatusTentative:
			tentative++
		case StatusAwaitingACK:
			awaiting++
		case StatusPermanent:
			permanent++
		}
	}
	m.Neighbors.WithLabelValues("tentative").Set(tentative)
	m.Neighbors.WithLabelValues("awaiting_ack").Set(awaiting)
	m.Neighbors.WithLabelValues("permanent").Set(permanent)
}

// recordHandshake increments coresec_handshakes_total for the given
// outcome (e.g. "success") at handshake completion.
func (m *Metrics) recordHandshake(outcome string) {
	if m == nil {
		return
	}
	m.HandshakesTotal.WithLabelValues(outcome).Inc()
}
