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

package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kadirpekel/hnsc/internal/breaker"
	"github.com/kadirpekel/hnsc/internal/hnsc"
	"github.com/kadirpekel/hnsc/internal/toolregistry"
	"github.com/kadirpekel/hnsc/internal/workflow"
)

// auditNote implements hnsc.AuditHandle, letting a Handler emit
// request-scoped events without holding a reference to the full sink.
// The events are collected in memory for the duration of one Dispatch
// call and are not written to the audit sink, so invariant I2 (exactly
// one terminal audit event per disposition) is unaffected by them.
type auditNote struct {
	notes []auditEntry
}

type auditEntry struct {
	category string
	fields   map[string]any
}

func (a *auditNote) Note(category string, fields map[string]any) {
	a.notes = append(a.notes, auditEntry{category: category, fields: fields})
}

// toolDispatcher adapts the tool registry and circuit breaker registry
// into a workflow.Dispatcher, and is also used directly by the
// controller's own single-tool-call path.
type toolDispatcher struct {
	tools    *toolregistry.ToolRegistry
	breakers *breaker.Registry
}

func newToolDispatcher(tools *toolregistry.ToolRegistry, breakers *breaker.Registry) *toolDispatcher {
	return &toolDispatcher{tools: tools, breakers: breakers}
}

// NewToolDispatcher exposes the controller's tool dispatcher as a
// workflow.Dispatcher for callers (cmd/hnscd) that need to build a
// workflow.Engine sharing the same tool registry and breaker registry
// the Controller dispatches single tool calls through.
func NewToolDispatcher(tools *toolregistry.ToolRegistry, breakers *breaker.Registry) workflow.Dispatcher {
	return newToolDispatcher(tools, breakers)
}

// Dispatch implements workflow.Dispatcher. The caller (the workflow
// engine, or the controller's direct tool-call path) is responsible for
// the pre-tool safety checkpoint; by the time Dispatch runs, invariant I1
// has already been satisfied upstream.
func (d *toolDispatcher) Dispatch(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	tool, ok := d.tools.Get(toolName)
	if !ok {
		return nil, hnsc.NewError(hnsc.KindToolNotFound, fmt.Sprintf("tool %q not registered", toolName), nil)
	}

	call := &hnsc.ToolCall{ToolName: toolName, Arguments: args}
	if err := d.tools.Validate(call); err != nil {
		return nil, hnsc.NewError(hnsc.KindSchemaError, err.Error(), err)
	}

	var br *breaker.Breaker
	if d.breakers != nil {
		br = d.breakers.Get(toolName)
		if err := br.Allow(time.Now()); err != nil {
			return nil, hnsc.NewError(hnsc.KindCircuitOpen, "circuit open for "+toolName, err)
		}
	}

	out, err := tool.Handler.Invoke(ctx, call, &auditNote{})
	if br != nil {
		if err != nil {
			br.Failure(time.Now())
		} else {
			br.Success(time.Now())
		}
	}
	if err != nil {
		return nil, hnsc.NewError(hnsc.KindUpstreamUnavailable, "tool "+toolName+" failed", err)
	}
	return out, nil
}

// ToolExists implements workflow.Dispatcher.
func (d *toolDispatcher) ToolExists(toolName string) (idempotent bool, ok bool) {
	t, ok := d.tools.Get(toolName)
	if !ok {
		return false, false
	}
	return t.Idempotent, true
}
