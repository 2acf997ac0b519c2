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
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a named OpenTelemetry tracer bound to the process's
// global TracerProvider. HNSC ships no span exporter of its own: an
// embedder that cares about traces installs a provider via
// otel.SetTracerProvider before constructing the daemon, and this
// returns a correctly-shaped no-op tracer otherwise.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns a named OpenTelemetry meter bound to the process's
// global MeterProvider, for components that prefer otel instruments
// over the Prometheus bundle in Metrics (e.g. when the embedding
// process already exports via otel and would otherwise double-count).
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
