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

package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/hnsc/internal/breaker"
)

func TestMetrics_BreakerAdapterUpdatesGaugeByKey(t *testing.T) {
	m := New(Config{Namespace: "hnsctest"})
	bm := m.Breaker()

	bm.SetState("vector-store", breaker.Open)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.breakerState.WithLabelValues("vector-store")))

	bm.SetState("vector-store", breaker.Closed)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.breakerState.WithLabelValues("vector-store")))
}

func TestMetrics_PoolGaugesTrackInUseAndWaiting(t *testing.T) {
	m := New(Config{Namespace: "hnsctest"})
	pg := m.Pool()

	pg.SetInUse(3)
	pg.SetWaiting(1)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.poolInUse))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.poolWaiting))
}

func TestMetrics_AuditAdapterCountsByStream(t *testing.T) {
	m := New(Config{Namespace: "hnsctest"})
	am := m.Audit()

	am.IncAppend("requests")
	am.IncAppend("requests")
	am.IncAppend("policy")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.auditAppends.WithLabelValues("requests")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.auditAppends.WithLabelValues("policy")))
}

func TestMetrics_PolicyDenialsCountedByReason(t *testing.T) {
	m := New(Config{Namespace: "hnsctest"})
	m.IncPolicyDenials("no_capability")
	m.IncPolicyDenials("no_capability")
	m.IncPolicyDenials("risk_threshold")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.policyDenials.WithLabelValues("no_capability")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.policyDenials.WithLabelValues("risk_threshold")))
}

func TestMetrics_RetrievalAndWorkflowInstrumentsDoNotPanic(t *testing.T) {
	m := New(Config{Namespace: "hnsctest"})
	m.ObserveRetrievalLatencySeconds(0.05)
	m.AddRetrievalHits(4)
	m.ObserveWorkflowStepDurationSeconds("fetch_record", 0.2)
	m.IncWorkflowCancellations()

	assert.Equal(t, float64(4), testutil.ToFloat64(m.retrievalHits.WithLabelValues()))
}
