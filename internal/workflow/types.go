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

// Package workflow executes a hnsc.Workflow DAG against a live tool
// dispatcher: ready-set scheduling bounded by max_concurrent, retry with
// exponential backoff, skip/fail_workflow propagation, per-step and
// overall deadlines, and cooperative cancellation.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

// Handle identifies one in-flight or terminated workflow execution.
type Handle string

// OverallStatus is the terminal or in-progress state of an execution.
type OverallStatus string

const (
	OverallRunning   OverallStatus = "running"
	OverallCompleted OverallStatus = "completed"
	OverallFailed    OverallStatus = "failed"
	OverallCancelled OverallStatus = "cancelled"
)

// ErrWorkflowInvalid wraps a workflow validation failure (DAG shape, step
// ids, tool existence, or a non-positive max_concurrent). args_template is
// not checked against any tool schema.
type ErrWorkflowInvalid struct {
	Reason string
}

func (e *ErrWorkflowInvalid) Error() string {
	return fmt.Sprintf("workflow: invalid workflow: %s", e.Reason)
}

// Snapshot is the point-in-time answer to status(handle).
type Snapshot struct {
	Handle        Handle
	OverallStatus OverallStatus
	Steps         map[hnsc.StepID]hnsc.StepResult
	FailureReason string
}

// Dispatcher invokes one step's tool handler. Implementations wrap the
// tool registry and circuit breaker; ctx carries both the step's own
// timeout and the execution's overall deadline.
type Dispatcher interface {
	Dispatch(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error)
	ToolExists(toolName string) (idempotent bool, ok bool)
}
