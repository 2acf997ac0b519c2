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

package hnsc

import (
	"fmt"
	"time"
)

// ErrorKind is the §7 error taxonomy, also used as the wire "kind" field
// of the §6 error envelope.
type ErrorKind string

const (
	KindSchemaError          ErrorKind = "schema_error"
	KindRateLimited          ErrorKind = "rate_limited"
	KindUnauthorized         ErrorKind = "unauthorized"
	KindPolicyDenied         ErrorKind = "policy_denied"
	KindTimeout              ErrorKind = "timeout"
	KindCircuitOpen          ErrorKind = "circuit_open"
	KindUpstreamUnavailable  ErrorKind = "upstream_unavailable"
	KindPoolTimeout          ErrorKind = "pool_timeout"
	KindCancelled            ErrorKind = "cancelled"
	KindWorkflowInvalid      ErrorKind = "workflow_invalid"
	KindToolNotFound         ErrorKind = "tool_not_found"
	KindDuplicateTool        ErrorKind = "duplicate_tool"
	KindAuditWriteError      ErrorKind = "audit_write_error"
	KindInvariantViolation   ErrorKind = "invariant_violation"
	KindInternal             ErrorKind = "internal"
)

// retryable marks which kinds may be retried internally by a caller that
// declared itself idempotent.
var retryable = map[ErrorKind]bool{
	KindTimeout:             true,
	KindCircuitOpen:         true,
	KindUpstreamUnavailable: true,
	KindPoolTimeout:         true,
}

// Error is the single error type returned across HNSC component
// boundaries, carrying the §6 error envelope fields directly.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether e belongs to the transient class (§7) and may
// be retried by a handler explicitly declared idempotent.
func (e *Error) Retryable() bool { return retryable[e.Kind] }

// NewError constructs an Error of the given kind.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Code: string(kind), Message: message, Cause: cause}
}

// NewRateLimited constructs the rate_limited error with its retry hint.
func NewRateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Code:       string(KindRateLimited),
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// NewPolicyDenied constructs a terminal, non-retryable policy_denied error.
func NewPolicyDenied(reason string) *Error {
	return &Error{Kind: KindPolicyDenied, Code: string(KindPolicyDenied), Message: reason}
}
