// Copyright (c) 2026 John Earle
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

// Package metrics defines the Prometheus collectors for the intake service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the intake collectors. A nil *Metrics is valid and records
// nothing.
//
// Metrics:
//   - intake_ingested_total{routed_to} - messages ingested, by outcome
//   - intake_ingest_errors_total{kind} - rejected or failed ingestions
//   - intake_reviews_total{action} - reviewer actions applied
//   - intake_side_effect_failures_total{kind} - failed exports and notifications
//   - intake_confidence - confidence of new extractions
//   - intake_ingest_duration_seconds - time spent in Ingest
type Metrics struct {
	Ingested           *prometheus.CounterVec
	IngestErrors       *prometheus.CounterVec
	Reviews            *prometheus.CounterVec
	SideEffectFailures *prometheus.CounterVec
	Confidence         prometheus.Histogram
	IngestDuration     prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_ingested_total",
				Help: "Total number of messages ingested, by routing outcome",
			},
			[]string{"routed_to"}, // "auto_approved", "human_review_queue", "idempotent_return"
		),
		IngestErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_ingest_errors_total",
				Help: "Total number of ingestions that returned an error",
			},
			[]string{"kind"}, // "validation", "extraction", "internal"
		),
		Reviews: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_reviews_total",
				Help: "Total number of reviewer actions applied",
			},
			[]string{"action"},
		),
		SideEffectFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_side_effect_failures_total",
				Help: "Total number of failed export or notification attempts",
			},
			[]string{"kind"}, // "export", "notify"
		),
		Confidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_confidence",
			Help:    "Confidence score of new extractions",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_ingest_duration_seconds",
			Help:    "Duration of ingest calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
	}
}

func (m *Metrics) ObserveIngest(routedTo string, confidence, seconds float64, fresh bool) {
	if m == nil {
		return
	}
	m.Ingested.WithLabelValues(routedTo).Inc()
	m.IngestDuration.Observe(seconds)
	if fresh {
		m.Confidence.Observe(confidence)
	}
}

func (m *Metrics) IngestError(kind string) {
	if m == nil {
		return
	}
	m.IngestErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Review(action string) {
	if m == nil {
		return
	}
	m.Reviews.WithLabelValues(action).Inc()
}

func (m *Metrics) SideEffectFailed(kind string) {
	if m == nil {
		return
	}
	m.SideEffectFailures.WithLabelValues(kind).Inc()
}
