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

package safety

import (
	"context"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

// IngressInput is the Rego input for the ingress checkpoint: raw text
// before routing.
type IngressInput struct {
	Text              string   `json:"text"`
	Mode              string   `json:"mode"`
	Authenticated     bool     `json:"authenticated"`
	SizeBytes         int      `json:"size_bytes"`
	MaxSizeBytes      int      `json:"max_size_bytes"`
	ProhibitedPhrases []string `json:"prohibited_phrases"`
	RestrictedModes   []string `json:"restricted_modes"`
}

// CheckIngress evaluates raw input text before the Symbolic Router sees it.
func (e *Engine) CheckIngress(ctx context.Context, text string, mode hnsc.Mode, authenticated bool, maxSizeBytes int, prohibitedPhrases, restrictedModes []string) (Decision, error) {
	input := IngressInput{
		Text:              text,
		Mode:              string(mode),
		Authenticated:     authenticated,
		SizeBytes:         len(text),
		MaxSizeBytes:      maxSizeBytes,
		ProhibitedPhrases: prohibitedPhrases,
		RestrictedModes:   restrictedModes,
	}
	return e.evaluate(ctx, CheckpointIngress, input)
}

// PreToolInput is the Rego input for the pre-tool checkpoint: a candidate
// ToolCall about to be dispatched.
type PreToolInput struct {
	Mode            string   `json:"mode"`
	ToolScopeTags   []string `json:"tool_scope_tags"`
	PermittedScopes []string `json:"permitted_scopes"`
	SideEffectClass string   `json:"side_effect_class"`
	HasApproval     bool     `json:"has_approval"`
}

// CheckPreTool evaluates a ToolCall against the request's mode and the
// tool's declared scope tags and side-effect class.
func (e *Engine) CheckPreTool(ctx context.Context, mode hnsc.Mode, tool *hnsc.Tool, permittedScopes []string, hasApproval bool) (Decision, error) {
	scopeTags := make([]string, 0, len(tool.ScopeTags))
	for tag := range tool.ScopeTags {
		scopeTags = append(scopeTags, string(tag))
	}
	input := PreToolInput{
		Mode:            string(mode),
		ToolScopeTags:   scopeTags,
		PermittedScopes: permittedScopes,
		SideEffectClass: string(tool.SideEffectClass),
		HasApproval:     hasApproval,
	}
	return e.evaluate(ctx, CheckpointPreTool, input)
}

// EgressInput is the Rego input for the egress checkpoint: the assembled
// response about to be returned to the caller.
type EgressInput struct {
	HasUnredactedPII bool `json:"has_unredacted_pii"`
	PolicyViolation  bool `json:"policy_violation"`
}

// CheckEgress evaluates the final response payload.
func (e *Engine) CheckEgress(ctx context.Context, hasUnredactedPII, policyViolation bool) (Decision, error) {
	return e.evaluate(ctx, CheckpointEgress, EgressInput{
		HasUnredactedPII: hasUnredactedPII,
		PolicyViolation:  policyViolation,
	})
}
