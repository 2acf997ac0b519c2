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
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/kadirpekel/hnsc/internal/hnsc"
)

// Engine runs workflow executions and tracks them by Handle. Completed
// executions remain queryable for the Engine's lifetime: the Engine never
// expires them and has no method that removes one.
type Engine struct {
	dispatcher Dispatcher
	cancelGrace time.Duration

	mu         sync.Mutex
	executions map[Handle]*execution
}

// New constructs an Engine. cancelGrace is how long a cancelled step's
// handler is given to exit cooperatively before being marked cancelled
// regardless.
func New(dispatcher Dispatcher, cancelGrace time.Duration) *Engine {
	return &Engine{dispatcher: dispatcher, cancelGrace: cancelGrace, executions: make(map[Handle]*execution)}
}

// Start validates wf and begins executing it asynchronously, returning
// immediately with a Handle.
func (e *Engine) Start(ctx context.Context, wf *hnsc.Workflow, rootArgs json.RawMessage, deadline time.Time) (Handle, error) {
	if err := validateWorkflow(wf, e.dispatcher); err != nil {
		return "", err
	}

	handle := newHandle()
	execCtx, cancel := context.WithDeadline(context.Background(), deadline)

	ex := &execution{
		handle:      handle,
		wf:          wf,
		dispatcher:  e.dispatcher,
		cancelGrace: e.cancelGrace,
		cancel:      cancel,
		results:     make(map[hnsc.StepID]hnsc.StepResult, len(wf.Steps)),
		status:      OverallRunning,
	}
	for _, step := range wf.Steps {
		ex.results[step.ID] = hnsc.StepResult{StepID: step.ID, Status: hnsc.StepPending}
	}

	e.mu.Lock()
	e.executions[handle] = ex
	e.mu.Unlock()

	go ex.run(execCtx, rootArgs)

	return handle, nil
}

// Status answers status(handle).
func (e *Engine) Status(handle Handle) (Snapshot, bool) {
	e.mu.Lock()
	ex, ok := e.executions[handle]
	e.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return ex.snapshot(), true
}

// Cancel requests cancellation of a running execution. Idempotent: calling
// it again, or calling it on an already-terminated execution, is a no-op.
func (e *Engine) Cancel(handle Handle) error {
	e.mu.Lock()
	ex, ok := e.executions[handle]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	ex.requestCancel()
	return nil
}

func newHandle() Handle {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return Handle(hex.EncodeToString(buf))
}
