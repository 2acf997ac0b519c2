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

// Package safety implements the deny-first predicate evaluated at the
// ingress, pre-tool, and egress checkpoints of a request's lifecycle. Each
// checkpoint is a Rego policy compiled at startup and evaluated through an
// OPA prepared query, grounded on the agentguard opa.Engine pattern: one
// in-memory store, one PreparedEvalQuery per checkpoint, typed input
// structs marshaled to the query.
package safety

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"
)

// Checkpoint identifies which of the three deny-first evaluation points a
// Decision was produced for.
type Checkpoint string

const (
	CheckpointIngress Checkpoint = "ingress"
	CheckpointPreTool Checkpoint = "pre_tool"
	CheckpointEgress  Checkpoint = "egress"
)

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Allow   bool
	Reasons []string
}

// Engine evaluates the three checkpoint policies. Each checkpoint's Rego
// source is compiled independently; callers may override any of them with
// a custom policy via WithPolicy before calling Compile.
type Engine struct {
	store   storage.Store
	sources map[Checkpoint]string
	queries map[Checkpoint]*rego.PreparedEvalQuery
}

// NewEngine constructs an Engine with the built-in default policies for
// all three checkpoints. Call Compile before first use.
func NewEngine() *Engine {
	return &Engine{
		store: inmem.New(),
		sources: map[Checkpoint]string{
			CheckpointIngress: ingressPolicy,
			CheckpointPreTool: preToolPolicy,
			CheckpointEgress:  egressPolicy,
		},
		queries: make(map[Checkpoint]*rego.PreparedEvalQuery),
	}
}

// WithPolicy overrides the Rego source for one checkpoint before Compile.
func (e *Engine) WithPolicy(cp Checkpoint, source string) *Engine {
	e.sources[cp] = source
	return e
}

// Compile prepares all three checkpoint queries for evaluation.
func (e *Engine) Compile(ctx context.Context) error {
	for cp, src := range e.sources {
		r := rego.New(
			rego.Query(fmt.Sprintf("data.hnsc.safety.%s", cp)),
			rego.Store(e.store),
			rego.Module(string(cp)+".rego", src),
		)
		pq, err := r.PrepareForEval(ctx)
		if err != nil {
			return fmt.Errorf("safety: compile %s policy: %w", cp, err)
		}
		copied := pq
		e.queries[cp] = &copied
	}
	return nil
}

func (e *Engine) evaluate(ctx context.Context, cp Checkpoint, input any) (Decision, error) {
	pq, ok := e.queries[cp]
	if !ok {
		return Decision{}, fmt.Errorf("safety: %s policy not compiled", cp)
	}

	results, err := pq.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("safety: evaluate %s: %w", cp, err)
	}

	decision := Decision{Allow: false}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision, nil
	}

	resultMap, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return decision, nil
	}
	if allow, ok := resultMap["allow"].(bool); ok {
		decision.Allow = allow
	}
	if reasons, ok := resultMap["deny_reasons"].([]any); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				decision.Reasons = append(decision.Reasons, s)
			}
		}
	}
	return decision, nil
}
