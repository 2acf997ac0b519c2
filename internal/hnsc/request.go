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

// Package hnsc defines the data model shared by every layer of the
// Hybrid Neuro-Symbolic Control pipeline: requests, tools, tool calls,
// workflows, and the error envelope returned to callers.
package hnsc

import (
	"time"

	"github.com/google/uuid"
)

// Mode selects which tool scopes and pipeline behaviors apply to a request.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeConcierge Mode = "concierge"
	ModeGeneral   Mode = "general"
	ModeMCP       Mode = "mcp"
	ModeDebug     Mode = "debug"
)

// Request is the unit of work submitted to the Controller.
type Request struct {
	ID            uuid.UUID
	ActorID       string
	SessionID     string
	Text          string
	Mode          Mode
	ReceivedAt    time.Time
	Deadline      time.Time
	ApprovalToken string // JWT issued by the Policy Gateway for high-risk tool calls
}

// NewRequest creates a Request with a freshly generated ID.
func NewRequest(actorID, sessionID, text string, mode Mode, ttl time.Duration) *Request {
	now := time.Now()
	return &Request{
		ID:         uuid.New(),
		ActorID:    actorID,
		SessionID:  sessionID,
		Text:       text,
		Mode:       mode,
		ReceivedAt: now,
		Deadline:   now.Add(ttl),
	}
}

// TimeRemaining returns how long the request has left before its deadline.
// Zero or negative means the deadline has passed.
func (r *Request) TimeRemaining() time.Duration {
	return time.Until(r.Deadline)
}

// SideEffectClass classifies the blast radius of a tool invocation.
type SideEffectClass string

const (
	SideEffectNone        SideEffectClass = "none"
	SideEffectRead        SideEffectClass = "read"
	SideEffectWrite       SideEffectClass = "write"
	SideEffectIrreversible SideEffectClass = "irreversible"
)

// rank orders side-effect classes from least to most severe, used for
// router tie-breaking: lower side_effect_class wins ties.
func (c SideEffectClass) rank() int {
	switch c {
	case SideEffectNone:
		return 0
	case SideEffectRead:
		return 1
	case SideEffectWrite:
		return 2
	case SideEffectIrreversible:
		return 3
	default:
		return 4
	}
}

// Less reports whether c is a strictly lower-severity class than other.
func (c SideEffectClass) Less(other SideEffectClass) bool {
	return c.rank() < other.rank()
}

// ResponseKind identifies which arm of the Response union is populated.
type ResponseKind string

const (
	ResponseText           ResponseKind = "text_result"
	ResponseTool           ResponseKind = "tool_result"
	ResponseWorkflowHandle ResponseKind = "workflow_handle"
	ResponseError          ResponseKind = "error"
)

// Response is the transport-agnostic result of submit().
type Response struct {
	Kind           ResponseKind
	CorrelationID  uuid.UUID
	Text           string
	ToolResult     map[string]any
	WorkflowHandle string
	Warning        string
	Err            *Error
}
