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

package workflow

import (
	"fmt"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

// validateWorkflow checks the DAG shape (dependencies only reference
// earlier steps, i.e. no cycles), that step ids are non-empty and unique,
// that every step's tool exists, and that max_concurrent is positive. A
// non-idempotent tool with on_failure == retry is accepted; the execution
// loop gives such a step a single attempt.
func validateWorkflow(wf *hnsc.Workflow, dispatcher Dispatcher) error {
	if len(wf.Steps) == 0 {
		return &ErrWorkflowInvalid{Reason: "workflow has no steps"}
	}

	seen := make(map[hnsc.StepID]bool, len(wf.Steps))
	for _, step := range wf.Steps {
		if step.ID == "" {
			return &ErrWorkflowInvalid{Reason: "step with empty id"}
		}
		if seen[step.ID] {
			return &ErrWorkflowInvalid{Reason: fmt.Sprintf("duplicate step id %q", step.ID)}
		}

		for dep := range step.DependsOn {
			if !seen[dep] {
				return &ErrWorkflowInvalid{Reason: fmt.Sprintf("step %q depends on %q which is not an earlier step", step.ID, dep)}
			}
		}

		if _, ok := dispatcher.ToolExists(step.ToolName); !ok {
			return &ErrWorkflowInvalid{Reason: fmt.Sprintf("step %q references unknown tool %q", step.ID, step.ToolName)}
		}

		seen[step.ID] = true
	}

	if wf.MaxConcurrent <= 0 {
		return &ErrWorkflowInvalid{Reason: "max_concurrent must be positive"}
	}

	return nil
}
