// SPDX-License-Identifier: MIT

// Package metrics holds the bridge's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synos_bridge_published_total",
		Help: "Events accepted by the broker, by external subject",
	}, []string{"subject"})

	PublishRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synos_bridge_publish_retries_total",
		Help: "Publish attempts that failed and were retried",
	})

	ConsumedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synos_bridge_consumed_total",
		Help: "Messages fetched from the broker, by outcome (handled, skipped, failed)",
	}, []string{"outcome"})

	DeadLetterTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synos_bridge_dead_letter_total",
		Help: "Events routed to the dead-letter store, by reason",
	}, []string{"reason"})

	DecodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synos_bridge_decode_failures_total",
		Help: "Messages dropped as poison because the wire body could not be decoded",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synos_bridge_publish_queue_depth",
		Help: "Events waiting in the local publish queue",
	})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synos_bridge_fetch_duration_seconds",
		Help:    "Duration of consumer batch fetches including empty polls",
		Buckets: prometheus.DefBuckets,
	})
)

// Consumer outcome labels.
const (
	OutcomeHandled = "handled"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// IncConsumed records one consumed message with its outcome.
func IncConsumed(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	ConsumedTotal.WithLabelValues(outcome).Inc()
}

// IncDeadLetter records a dead-lettered event with a concrete reason.
func IncDeadLetter(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	DeadLetterTotal.WithLabelValues(reason).Inc()
}
