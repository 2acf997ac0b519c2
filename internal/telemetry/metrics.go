// Copyright 2025 Kadir Pekel
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

// Package telemetry provides the Prometheus counters, histograms, and
// gauges named in the observability surface, plus thin adapters that
// let the breaker, pool, and audit packages update them without
// importing Prometheus themselves.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kadirpekel/hnsc/internal/breaker"
)

// Metrics bundles every Prometheus instrument HNSC exposes, namespaced
// under "hnsc" so multiple instances of the daemon on one host don't
// collide in a shared Prometheus.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry

	retrievalLatency *prometheus.HistogramVec
	retrievalHits    *prometheus.CounterVec

	workflowStepDuration  *prometheus.HistogramVec
	workflowCancellations *prometheus.CounterVec

	breakerState *prometheus.GaugeVec

	poolInUse   prometheus.Gauge
	poolWaiting prometheus.Gauge

	policyDenials *prometheus.CounterVec

	auditAppends *prometheus.CounterVec
}

// Config tunes the Metrics namespace.
type Config struct {
	Namespace string // defaults to "hnsc"
}

// New constructs a Metrics bundle registered against a fresh, private
// Prometheus registry (callers wire it into their own HTTP exporter;
// this package never starts a server).
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "hnsc"
	}
	m := &Metrics{namespace: cfg.Namespace, registry: prometheus.NewRegistry()}

	m.retrievalLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "retrieval",
		Name:      "latency_seconds",
		Help:      "Retrieval pipeline latency in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, nil)

	m.retrievalHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "retrieval",
		Name:      "hits_total",
		Help:      "Documents returned by the retriever.",
	}, nil)

	m.workflowStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "workflow",
		Name:      "step_duration_seconds",
		Help:      "Workflow step execution duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"step"})

	m.workflowCancellations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "workflow",
		Name:      "cancellations_total",
		Help:      "Workflow executions that observed a cancel signal.",
	}, nil)

	m.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Circuit breaker state per key (0=closed, 1=half_open, 2=open).",
	}, []string{"key"})

	m.poolInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "pool",
		Name:      "in_use",
		Help:      "Connections currently checked out of the pool.",
	})

	m.poolWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "pool",
		Name:      "waiting",
		Help:      "Acquirers currently blocked waiting for a connection.",
	})

	m.policyDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "policy",
		Name:      "denials_total",
		Help:      "Policy gateway denials by reason.",
	}, []string{"reason"})

	m.auditAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "audit",
		Name:      "append_total",
		Help:      "Audit events appended, by stream.",
	}, []string{"stream"})

	m.registry.MustRegister(
		m.retrievalLatency, m.retrievalHits,
		m.workflowStepDuration, m.workflowCancellations,
		m.breakerState, m.poolInUse, m.poolWaiting,
		m.policyDenials, m.auditAppends,
	)
	return m
}

// Registry exposes the private Prometheus registry to a caller that
// exports it; cmd/hnscd mounts no /metrics handler over it.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRetrievalLatencySeconds records one retrieval pass's duration.
func (m *Metrics) ObserveRetrievalLatencySeconds(seconds float64) {
	m.retrievalLatency.WithLabelValues().Observe(seconds)
}

// AddRetrievalHits increments the hit counter by the document count one
// retrieval pass returned.
func (m *Metrics) AddRetrievalHits(n int) {
	m.retrievalHits.WithLabelValues().Add(float64(n))
}

// ObserveWorkflowStepDurationSeconds records one workflow step's
// execution duration.
func (m *Metrics) ObserveWorkflowStepDurationSeconds(step string, seconds float64) {
	m.workflowStepDuration.WithLabelValues(step).Observe(seconds)
}

// IncWorkflowCancellations counts one execution that observed a cancel
// signal.
func (m *Metrics) IncWorkflowCancellations() {
	m.workflowCancellations.WithLabelValues().Inc()
}

// IncPolicyDenials counts one Policy Gateway denial, labeled by reason.
func (m *Metrics) IncPolicyDenials(reason string) {
	m.policyDenials.WithLabelValues(reason).Inc()
}

// breakerStateValue maps a breaker.State to the gauge value the metric
// doc promises: 0=closed, 1=half_open, 2=open.
func breakerStateValue(state breaker.State) float64 {
	switch state {
	case breaker.Closed:
		return 0
	case breaker.HalfOpen:
		return 1
	case breaker.Open:
		return 2
	default:
		return -1
	}
}

// BreakerMetrics adapts Metrics to breaker.Metrics.
type BreakerMetrics struct{ m *Metrics }

// Breaker returns a breaker.Metrics backed by this bundle.
func (m *Metrics) Breaker() BreakerMetrics { return BreakerMetrics{m: m} }

func (b BreakerMetrics) SetState(key string, state breaker.State) {
	b.m.breakerState.WithLabelValues(key).Set(breakerStateValue(state))
}

// PoolGauges adapts Metrics to pool.Gauges.
type PoolGauges struct{ m *Metrics }

// Pool returns a pool.Gauges backed by this bundle.
func (m *Metrics) Pool() PoolGauges { return PoolGauges{m: m} }

func (p PoolGauges) SetInUse(n int)   { p.m.poolInUse.Set(float64(n)) }
func (p PoolGauges) SetWaiting(n int) { p.m.poolWaiting.Set(float64(n)) }

// AuditMetrics adapts Metrics to audit.Metrics.
type AuditMetrics struct{ m *Metrics }

// Audit returns an audit.Metrics backed by this bundle.
func (m *Metrics) Audit() AuditMetrics { return AuditMetrics{m: m} }

func (a AuditMetrics) IncAppend(stream string) { a.m.auditAppends.WithLabelValues(stream).Inc() }
