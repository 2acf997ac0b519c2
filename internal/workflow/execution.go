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
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

const (
	defaultBaseBackoff = 200 * time.Millisecond
	maxBackoff         = 10 * time.Second
)

type execution struct {
	handle      Handle
	wf          *hnsc.Workflow
	dispatcher  Dispatcher
	cancelGrace time.Duration
	cancel      context.CancelFunc

	mu            sync.Mutex
	results       map[hnsc.StepID]hnsc.StepResult
	status        OverallStatus
	failureReason string
	cancelled     bool
}

type stepOutcome struct {
	stepID   hnsc.StepID
	output   json.RawMessage
	err      error
	attempts int
}

func (ex *execution) run(ctx context.Context, rootArgs json.RawMessage) {
	steps := make(map[hnsc.StepID]*hnsc.Step, len(ex.wf.Steps))
	order := make([]hnsc.StepID, 0, len(ex.wf.Steps))
	for _, s := range ex.wf.Steps {
		steps[s.ID] = s
		order = append(order, s.ID)
	}

	completed := make(map[hnsc.StepID]bool)
	terminalOther := make(map[hnsc.StepID]bool) // skipped or failed (non-workflow-ending)
	running := make(map[hnsc.StepID]bool)
	attempts := make(map[hnsc.StepID]int)
	retryAfter := make(map[hnsc.StepID]time.Time)

	sem := semaphore.NewWeighted(int64(ex.wf.MaxConcurrent))
	outcomes := make(chan stepOutcome, len(order))

	finish := func(status OverallStatus, reason string) {
		ex.mu.Lock()
		ex.status = status
		ex.failureReason = reason
		ex.mu.Unlock()
	}

	isReady := func(s *hnsc.Step) bool {
		if completed[s.ID] || terminalOther[s.ID] || running[s.ID] {
			return false
		}
		if until, ok := retryAfter[s.ID]; ok && time.Now().Before(until) {
			return false
		}
		for dep := range s.DependsOn {
			if !completed[dep] && !terminalOther[dep] {
				return false
			}
		}
		return true
	}

	hasBlockedDependency := func(s *hnsc.Step) bool {
		for dep := range s.DependsOn {
			if terminalOther[dep] {
				return true
			}
		}
		return false
	}

	dispatchStep := func(s *hnsc.Step) {
		running[s.ID] = true
		attempts[s.ID]++
		ex.setStepStatus(s.ID, hnsc.StepRunning, attempts[s.ID])

		stepCtx := ctx
		var stepCancel context.CancelFunc
		if s.Timeout > 0 {
			stepCtx, stepCancel = context.WithTimeout(ctx, s.Timeout)
		}

		go func() {
			if stepCancel != nil {
				defer stepCancel()
			}
			out, err := ex.dispatcher.Dispatch(stepCtx, s.ToolName, resolveArgs(s.ArgsTemplate, rootArgs, ex.snapshotResults()))
			outcomes <- stepOutcome{stepID: s.ID, output: out, err: err, attempts: attempts[s.ID]}
		}()
	}

	// cascade marks s and any step transitively depending on it as skipped,
	// without dispatching, honoring fail_workflow where it occurs.
	var cascadeSkip func(id hnsc.StepID) bool // returns true if workflow must fail
	cascadeSkip = func(id hnsc.StepID) bool {
		s := steps[id]
		if s.OnFailure == hnsc.OnFailureFailWorkflow {
			return true
		}
		terminalOther[id] = true
		ex.setStepStatus(id, hnsc.StepSkipped, attempts[id])
		return false
	}

	remaining := func() bool { return len(completed)+len(terminalOther) < len(order) }

	for remaining() {
		select {
		case <-ctx.Done():
			ex.cancelRunningAndWait(running)
			finish(deadlineOrCancelStatus(ex.wasCancelled()), deadlineOrCancelReason(ex.wasCancelled(), ctx.Err()))
			return
		default:
		}

		if ex.wasCancelled() {
			ex.cancelRunningAndWait(running)
			finish(OverallCancelled, "cancelled")
			return
		}

		for _, id := range order {
			s := steps[id]
			if completed[id] || terminalOther[id] || running[id] {
				continue
			}
			if hasBlockedDependency(s) {
				if cascadeSkip(id) {
					ex.cancelRunningAndWait(running)
					finish(OverallFailed, "ancestor failure triggered fail_workflow")
					return
				}
				continue
			}
			if isReady(s) && int64(len(running)) < int64(ex.wf.MaxConcurrent) {
				if !sem.TryAcquire(1) {
					continue
				}
				dispatchStep(s)
			}
		}

		if len(running) == 0 && !remaining() {
			break
		}
		if len(running) == 0 {
			// nothing dispatchable this instant; all remaining steps are
			// waiting out a retry backoff. Avoid a tight busy spin.
			time.Sleep(10 * time.Millisecond)
			continue
		}

		select {
		case <-ctx.Done():
			ex.cancelRunningAndWait(running)
			finish(deadlineOrCancelStatus(ex.wasCancelled()), deadlineOrCancelReason(ex.wasCancelled(), ctx.Err()))
			return
		case outcome := <-outcomes:
			sem.Release(1)
			delete(running, outcome.stepID)
			s := steps[outcome.stepID]

			if outcome.err == nil {
				completed[outcome.stepID] = true
				ex.setStepOutput(outcome.stepID, outcome.output)
				continue
			}

			// Idempotent retry is only safe for steps whose tool is declared
			// idempotent; non-idempotent tools get exactly one attempt even
			// if on_failure is retry.
			idempotent, _ := ex.dispatcher.ToolExists(s.ToolName)
			canRetry := s.OnFailure == hnsc.OnFailureRetry && idempotent && outcome.attempts <= s.MaxRetries
			switch {
			case canRetry:
				retryAfter[outcome.stepID] = time.Now().Add(backoffDelay(outcome.attempts))
				ex.setStepErr(outcome.stepID, outcome.attempts, outcome.err)
			case s.OnFailure == hnsc.OnFailureFailWorkflow:
				ex.setStepErr(outcome.stepID, outcome.attempts, outcome.err)
				ex.cancel() // propagate cancellation to still-running steps' contexts
				ex.cancelRunningAndWait(running)
				finish(OverallFailed, "step "+string(outcome.stepID)+" failed: "+outcome.err.Error())
				return
			default: // skip, or retry exhausted/non-idempotent
				terminalOther[outcome.stepID] = true
				ex.setStepErr(outcome.stepID, outcome.attempts, outcome.err)
			}
		}
	}

	finish(OverallCompleted, "")
}

func resolveArgs(template json.RawMessage, rootArgs json.RawMessage, _ map[hnsc.StepID]hnsc.StepResult) json.RawMessage {
	if len(template) > 0 {
		return template
	}
	return rootArgs
}

func backoffDelay(attempt int) time.Duration {
	d := defaultBaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func deadlineOrCancelStatus(cancelled bool) OverallStatus {
	if cancelled {
		return OverallCancelled
	}
	return OverallFailed
}

func deadlineOrCancelReason(cancelled bool, ctxErr error) string {
	if cancelled {
		return "cancelled"
	}
	return "deadline exceeded: " + ctxErr.Error()
}

func (ex *execution) wasCancelled() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.cancelled
}

func (ex *execution) requestCancel() {
	ex.mu.Lock()
	ex.cancelled = true
	ex.mu.Unlock()
	ex.cancel()
}

// cancelRunningAndWait gives running steps up to cancelGrace to exit
// cooperatively (their contexts are already cancelled via the parent
// context) before this function returns and they are marked cancelled.
func (ex *execution) cancelRunningAndWait(running map[hnsc.StepID]bool) {
	if len(running) == 0 {
		return
	}
	if ex.cancelGrace > 0 {
		time.Sleep(ex.cancelGrace)
	}
	for id := range running {
		ex.setStepStatus(id, hnsc.StepCancelled, 0)
	}
}

func (ex *execution) setStepStatus(id hnsc.StepID, status hnsc.StepStatus, attempts int) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	r := ex.results[id]
	r.Status = status
	r.Attempts = attempts
	if status == hnsc.StepRunning && r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if status == hnsc.StepCompleted || status == hnsc.StepFailed || status == hnsc.StepSkipped || status == hnsc.StepCancelled {
		r.EndedAt = time.Now()
	}
	ex.results[id] = r
}

// setStepErr records a step's failure. The scheduling loop consults
// retryAfter, not this status, to decide whether to redispatch.
func (ex *execution) setStepErr(id hnsc.StepID, attempts int, err error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	r := ex.results[id]
	r.Attempts = attempts
	r.Err = err
	r.Status = hnsc.StepFailed
	r.EndedAt = time.Now()
	ex.results[id] = r
}

func (ex *execution) setStepOutput(id hnsc.StepID, output json.RawMessage) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	r := ex.results[id]
	r.Status = hnsc.StepCompleted
	r.Output = output
	r.EndedAt = time.Now()
	ex.results[id] = r
}

func (ex *execution) snapshotResults() map[hnsc.StepID]hnsc.StepResult {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	out := make(map[hnsc.StepID]hnsc.StepResult, len(ex.results))
	for k, v := range ex.results {
		out[k] = v
	}
	return out
}

func (ex *execution) snapshot() Snapshot {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	steps := make(map[hnsc.StepID]hnsc.StepResult, len(ex.results))
	for k, v := range ex.results {
		steps[k] = v
	}
	return Snapshot{Handle: ex.handle, OverallStatus: ex.status, Steps: steps, FailureReason: ex.failureReason}
}
