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

// Package controller binds every other component into the single
// request lifecycle: rate-limit admission, ingress safety, symbolic
// routing, tool/workflow/generation dispatch, egress safety, and the
// terminal audit event. It holds no domain logic of its own beyond
// sequencing and invariant enforcement; each step is delegated to the
// component that owns it.
package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/hnsc/internal/arbitration"
	"github.com/kadirpekel/hnsc/internal/audit"
	"github.com/kadirpekel/hnsc/internal/breaker"
	"github.com/kadirpekel/hnsc/internal/driver"
	"github.com/kadirpekel/hnsc/internal/hnsc"
	"github.com/kadirpekel/hnsc/internal/pii"
	"github.com/kadirpekel/hnsc/internal/policygateway"
	"github.com/kadirpekel/hnsc/internal/ratelimiter"
	"github.com/kadirpekel/hnsc/internal/router"
	"github.com/kadirpekel/hnsc/internal/safety"
	"github.com/kadirpekel/hnsc/internal/toolregistry"
	"github.com/kadirpekel/hnsc/internal/workflow"
)

const auditStream = "requests"

// Config holds the controller's own tunables; component-specific
// tunables live with their owning component's Config.
type Config struct {
	RateLimitBucketKey string
	RateLimitCost      float64
	PIIProfile         pii.Profile
	MaxIngressBytes    int
	ProhibitedPhrases  []string
	RestrictedModes    []string
	PermittedScopes    map[hnsc.Mode][]string
}

// Controller is the C13 HNSC Controller.
type Controller struct {
	cfg Config

	limiter    *ratelimiter.Limiter
	redactor   *pii.Redactor
	safetyEng  *safety.Engine
	routerEng  *router.Router
	tools      *toolregistry.ToolRegistry
	breakers   *breaker.Registry
	policy     *policygateway.Gateway
	workflows  *workflow.Engine
	workflowBy func(name string) (*hnsc.Workflow, bool)
	gen        *driver.Driver
	auditSink  *audit.Sink
	dispatcher *toolDispatcher
}

// New constructs a Controller. workflowBy resolves a router-selected
// workflow name to its definition; policy and gen may be nil, in which
// case approval-token checks and the generate disposition are skipped
// in favor of a policy_denied/internal error respectively.
func New(
	cfg Config,
	limiter *ratelimiter.Limiter,
	redactor *pii.Redactor,
	safetyEng *safety.Engine,
	routerEng *router.Router,
	tools *toolregistry.ToolRegistry,
	breakers *breaker.Registry,
	policy *policygateway.Gateway,
	workflows *workflow.Engine,
	workflowBy func(name string) (*hnsc.Workflow, bool),
	gen *driver.Driver,
	auditSink *audit.Sink,
) *Controller {
	return &Controller{
		cfg:        cfg,
		limiter:    limiter,
		redactor:   redactor,
		safetyEng:  safetyEng,
		routerEng:  routerEng,
		tools:      tools,
		breakers:   breakers,
		policy:     policy,
		workflows:  workflows,
		workflowBy: workflowBy,
		gen:        gen,
		auditSink:  auditSink,
		dispatcher: newToolDispatcher(tools, breakers),
	}
}

// Submit runs the full request lifecycle (S1-S9) and returns exactly one
// Response, with exactly one terminal audit event appended regardless of
// which branch was taken (invariant I2).
func (c *Controller) Submit(ctx context.Context, req *hnsc.Request) (*hnsc.Response, error) {
	// S1: rate-limit admission.
	key := ratelimiter.Key{ActorID: req.ActorID, BucketKey: c.cfg.RateLimitBucketKey}
	cost := c.cfg.RateLimitCost
	if cost <= 0 {
		cost = 1
	}
	if admitted, retryAfter := c.limiter.Allow(key, cost); !admitted {
		return c.terminal(ctx, req, "rate_limited", nil, hnsc.NewRateLimited(retryAfter))
	}

	// S2: PII redaction for logging only; the redacted copy is what the
	// audit trail sees, never what downstream components reason over.
	redactedText := req.Text
	if c.redactor != nil {
		redactedText = c.redactor.Redact(req.Text, c.cfg.PIIProfile)
	}

	// S3: ingress safety check.
	ingressDecision, err := c.safetyEng.CheckIngress(ctx, req.Text, req.Mode, req.ActorID != "",
		c.cfg.MaxIngressBytes, c.cfg.ProhibitedPhrases, c.cfg.RestrictedModes)
	if err != nil {
		return c.terminal(ctx, req, "ingress_error", map[string]any{"redacted_text": redactedText},
			hnsc.NewError(hnsc.KindInternal, "ingress safety evaluation failed", err))
	}
	if !ingressDecision.Allow {
		return c.terminal(ctx, req, "policy_denied", map[string]any{"redacted_text": redactedText, "reasons": ingressDecision.Reasons},
			hnsc.NewPolicyDenied(fmt.Sprintf("ingress denied: %v", ingressDecision.Reasons)))
	}

	// S4: symbolic routing.
	disposition := c.routerEng.Route(req.Text, req.Mode)

	// S5: branch on disposition.
	switch disposition.Kind {
	case router.DispositionTool:
		return c.handleTool(ctx, req, redactedText, disposition)
	case router.DispositionWorkflow:
		return c.handleWorkflow(ctx, req, redactedText, disposition)
	default:
		return c.handleGenerate(ctx, req, redactedText)
	}
}

// handleTool implements invariant I1: a tool call never runs without
// having first passed registry validation and the pre-tool safety
// checkpoint, in that order.
func (c *Controller) handleTool(ctx context.Context, req *hnsc.Request, redactedText string, d router.Disposition) (*hnsc.Response, error) {
	tool, ok := c.tools.Get(d.ToolName)
	if !ok {
		return c.terminal(ctx, req, "tool_not_found", map[string]any{"redacted_text": redactedText, "tool": d.ToolName},
			hnsc.NewError(hnsc.KindToolNotFound, "tool "+d.ToolName+" not registered", nil))
	}

	call := &hnsc.ToolCall{ToolName: d.ToolName, Arguments: d.Args, IssuedBy: req.ActorID, CorrelationID: req.ID.String()}
	if err := c.tools.Validate(call); err != nil {
		return c.terminal(ctx, req, "schema_error", map[string]any{"redacted_text": redactedText, "tool": d.ToolName},
			hnsc.NewError(hnsc.KindSchemaError, err.Error(), err))
	}

	hasApproval := req.ApprovalToken != "" && c.approvalValid(ctx, req, tool)
	permitted := c.cfg.PermittedScopes[req.Mode]
	preDecision, err := c.safetyEng.CheckPreTool(ctx, req.Mode, tool, permitted, hasApproval)
	if err != nil {
		return c.terminal(ctx, req, "pre_tool_error", map[string]any{"redacted_text": redactedText, "tool": d.ToolName},
			hnsc.NewError(hnsc.KindInternal, "pre-tool safety evaluation failed", err))
	}
	if !preDecision.Allow {
		return c.terminal(ctx, req, "policy_denied", map[string]any{"redacted_text": redactedText, "tool": d.ToolName, "reasons": preDecision.Reasons},
			hnsc.NewPolicyDenied(fmt.Sprintf("pre-tool denied for %s: %v", d.ToolName, preDecision.Reasons)))
	}

	out, err := c.dispatcher.Dispatch(ctx, d.ToolName, d.Args)
	if err != nil {
		return c.terminal(ctx, req, "tool_error", map[string]any{"redacted_text": redactedText, "tool": d.ToolName}, err)
	}

	result := map[string]any{}
	_ = json.Unmarshal(out, &result)

	if !c.egressSafe(ctx, fmt.Sprintf("%v", result)) {
		return c.terminal(ctx, req, "policy_denied", map[string]any{"redacted_text": redactedText, "tool": d.ToolName},
			hnsc.NewPolicyDenied("egress denied: unredacted PII or policy violation in tool result"))
	}

	resp := &hnsc.Response{Kind: hnsc.ResponseTool, CorrelationID: req.ID, ToolResult: result}
	return resp, c.appendTerminal(ctx, req, "tool_result", map[string]any{"redacted_text": redactedText, "tool": d.ToolName}, nil)
}

func (c *Controller) handleWorkflow(ctx context.Context, req *hnsc.Request, redactedText string, d router.Disposition) (*hnsc.Response, error) {
	wf, ok := c.workflowBy(d.WorkflowName)
	if !ok {
		return c.terminal(ctx, req, "workflow_invalid", map[string]any{"redacted_text": redactedText, "workflow": d.WorkflowName},
			hnsc.NewError(hnsc.KindWorkflowInvalid, "workflow "+d.WorkflowName+" not found", nil))
	}

	binding, _ := json.Marshal(d.Binding)
	handle, err := c.workflows.Start(ctx, wf, binding, req.Deadline)
	if err != nil {
		return c.terminal(ctx, req, "workflow_invalid", map[string]any{"redacted_text": redactedText, "workflow": d.WorkflowName}, err)
	}

	resp := &hnsc.Response{Kind: hnsc.ResponseWorkflowHandle, CorrelationID: req.ID, WorkflowHandle: string(handle)}
	return resp, c.appendTerminal(ctx, req, "workflow_started", map[string]any{"redacted_text": redactedText, "workflow": d.WorkflowName, "handle": string(handle)}, nil)
}

func (c *Controller) handleGenerate(ctx context.Context, req *hnsc.Request, redactedText string) (*hnsc.Response, error) {
	if c.gen == nil {
		return c.terminal(ctx, req, "internal_error", map[string]any{"redacted_text": redactedText},
			hnsc.NewError(hnsc.KindInternal, "no generator configured", nil))
	}

	gen, err := c.gen.Run(ctx, req.Text)
	if err != nil {
		return c.terminal(ctx, req, "internal_error", map[string]any{"redacted_text": redactedText}, err)
	}

	if gen.Decision.Chosen == arbitration.ChosenNone {
		return c.terminal(ctx, req, "policy_denied", map[string]any{"redacted_text": redactedText},
			hnsc.NewPolicyDenied("both generation candidates failed egress safety"))
	}

	resp := &hnsc.Response{Kind: hnsc.ResponseText, CorrelationID: req.ID, Text: gen.Decision.Text}
	if !gen.Decision.Consensus {
		resp.Warning = "candidates did not reach consensus"
	}
	return resp, c.appendTerminal(ctx, req, "text_result", map[string]any{
		"redacted_text": redactedText,
		"consensus":     gen.Decision.Consensus,
		"tokens_in":     gen.TokensIn,
		"tokens_out":    gen.TokensOut,
	}, nil)
}

// egressSafe runs the final, generic egress checkpoint over a rendered
// payload (as opposed to driver.scoreCandidate's per-candidate use during
// arbitration). Only the tool disposition calls it; the workflow
// disposition returns its handle without an egress check.
func (c *Controller) egressSafe(ctx context.Context, payload string) bool {
	hasPII := false
	if c.redactor != nil {
		hasPII = c.redactor.Redact(payload, c.cfg.PIIProfile) != payload
	}
	decision, err := c.safetyEng.CheckEgress(ctx, hasPII, false)
	return err == nil && decision.Allow
}

// approvalValid verifies req.ApprovalToken against the Policy Gateway for
// the tool being invoked; with no gateway configured no token is ever
// accepted, so has_approval is always false.
func (c *Controller) approvalValid(ctx context.Context, req *hnsc.Request, tool *hnsc.Tool) bool {
	if c.policy == nil {
		return false
	}
	return c.policy.VerifyApproval(ctx, req.ApprovalToken, req.ActorID, tool.Name)
}

// terminal appends the terminal audit event for an error outcome and
// returns the corresponding error Response alongside the raw error, so
// callers at the transport layer can decide how much detail to surface.
func (c *Controller) terminal(ctx context.Context, req *hnsc.Request, category string, fields map[string]any, err error) (*hnsc.Response, error) {
	herr := asHNSCError(err)
	if ferr := c.appendTerminal(ctx, req, category, fields, herr); ferr != nil {
		herr = hnsc.NewError(hnsc.KindAuditWriteError, "audit write failed after "+category, ferr)
	}
	return &hnsc.Response{Kind: hnsc.ResponseError, CorrelationID: req.ID, Err: herr}, herr
}

func (c *Controller) appendTerminal(ctx context.Context, req *hnsc.Request, category string, fields map[string]any, err error) error {
	if fields == nil {
		fields = map[string]any{}
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	_, auditErr := c.auditSink.Append(ctx, auditStream, category, req.ActorID, req.ID.String(), fields)
	return auditErr
}

func asHNSCError(err error) *hnsc.Error {
	if err == nil {
		return nil
	}
	if herr, ok := err.(*hnsc.Error); ok {
		return herr
	}
	return hnsc.NewError(hnsc.KindInternal, err.Error(), err)
}
