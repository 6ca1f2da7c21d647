// Copyright 2025 Tom Barlow
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

package manager

import (
	"context"
	"errors"
	"time"

	intlog "github.com/marktoflow/flowcore/internal/log"
	"github.com/marktoflow/flowcore/pkg/workflow"
)

// runExecution drives a freshly created run from its first step. It always
// releases m.wg and, on exit, marks the run terminal (or waiting).
func (m *Manager) runExecution(r *run) {
	defer m.wg.Done()

	m.semaphore <- struct{}{}
	defer func() { <-m.semaphore }()

	r.mu.Lock()
	r.record.Status = workflow.RunStatusRunning
	inputs := r.record.Inputs
	workflowID := r.record.WorkflowID
	r.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordRunStart(r.ctx, r.record.RunID, workflowID)
	}

	ec := workflow.NewExecutionContext(r.record.RunID, r.record.WorkflowID, inputs, r.ctx.Done())
	m.dispatchFrom(r, ec, 0)
}

// resumeFrom continues a suspended run starting at stepIndex, with
// resumeData merged into the execution context before dispatch resumes.
func (m *Manager) resumeFrom(r *run, stepIndex int, resumeData map[string]interface{}) {
	defer m.wg.Done()

	m.semaphore <- struct{}{}
	defer func() { <-m.semaphore }()

	r.mu.Lock()
	inputs := r.record.Inputs
	r.mu.Unlock()

	ec := workflow.NewExecutionContext(r.record.RunID, r.record.WorkflowID, inputs, r.ctx.Done())
	for k, v := range resumeData {
		ec.SetVariable(k, v)
	}
	m.dispatchFrom(r, ec, stepIndex+1)
}

// dispatchFrom runs def.Steps[from:] sequentially through the dispatcher,
// persisting a checkpoint after every step and updating the run record's
// CurrentStep. It marks the run terminal on completion, failure, or
// cancellation, and marks it StepStatusWaiting (without touching terminal
// state) when a Wait step suspends execution.
func (m *Manager) dispatchFrom(r *run, ec *workflow.ExecutionContext, from int) {
	steps := r.def.Steps

	for i := from; i < len(steps); i++ {
		select {
		case <-r.ctx.Done():
			m.finish(r, workflow.RunStatusCancelled, nil, "")
			return
		default:
		}

		ec.CurrentStepIndex = i
		result, err := m.dispatcher.Dispatch(r.ctx, steps[i], ec)

		r.mu.Lock()
		r.record.CurrentStep = i + 1
		workflowID := r.record.WorkflowID
		r.mu.Unlock()

		if m.metrics != nil && result != nil {
			var duration time.Duration
			if !result.StartedAt.IsZero() && !result.CompletedAt.IsZero() {
				duration = result.CompletedAt.Sub(result.StartedAt)
			}
			m.metrics.RecordStepComplete(r.ctx, workflowID, steps[i].ID, string(result.Status), duration)
		}

		if result != nil && m.backend != nil {
			cp := &workflow.Checkpoint{
				RunID:      r.record.RunID,
				StepIndex:  i,
				StepID:     steps[i].ID,
				StepName:   steps[i].Name,
				Status:     result.Status,
				StartedAt:  result.StartedAt,
				Outputs:    result.Output,
				Error:      result.Error,
				RetryCount: result.RetryCount,
			}
			if !result.CompletedAt.IsZero() {
				completedAt := result.CompletedAt
				cp.CompletedAt = &completedAt
			}
			if result.Status == workflow.StepStatusWaiting {
				applyWaitPayload(cp, result.Output)
			}
			if err := m.backend.SaveCheckpoint(r.ctx, cp); err != nil {
				m.logger.Warn("failed to save checkpoint", intlog.RunIDKey, r.record.RunID, intlog.StepIDKey, steps[i].ID, "error", err)
			}
		}

		if err != nil {
			if errors.Is(err, workflow.ErrSuspended) {
				m.suspend(r)
				return
			}
			if errors.Is(r.ctx.Err(), context.Canceled) {
				m.finish(r, workflow.RunStatusCancelled, nil, "")
				return
			}
			m.finish(r, workflow.RunStatusFailed, nil, err.Error())
			return
		}
	}

	m.finish(r, workflow.RunStatusCompleted, ec.VariablesSnapshot(), "")
}

// applyWaitPayload copies a suspended wait step's resume metadata out of its
// (untyped, executor-produced) output map and into the checkpoint's typed
// wait-mode fields, so a backend that persists checkpoints has something to
// resume from later.
func applyWaitPayload(cp *workflow.Checkpoint, output interface{}) {
	payload, ok := output.(map[string]interface{})
	if !ok {
		return
	}
	if mode, ok := payload["mode"].(string); ok {
		cp.WaitMode = mode
	}
	if resumeAt, ok := payload["resumeAt"].(time.Time); ok {
		cp.ResumeAt = &resumeAt
	}
	if token, ok := payload["resume_token"].(string); ok {
		cp.ResumeToken = token
	}
	if path, ok := payload["webhook_path"].(string); ok {
		cp.WebhookPath = path
	}
	if path, ok := payload["form_path"].(string); ok {
		cp.WebhookPath = path
	}
}

// finish marks a run terminal, persists the final record, and schedules
// its eviction from memory after the retention window.
func (m *Manager) finish(r *run, status workflow.RunStatus, outputs map[string]interface{}, errMsg string) {
	now := time.Now()

	r.mu.Lock()
	r.record.Status = status
	r.record.CompletedAt = &now
	r.record.Outputs = outputs
	r.record.Error = errMsg
	r.terminalAt = now
	rec := *r.record
	r.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.UpdateRun(context.Background(), &rec); err != nil {
			m.logger.Warn("failed to persist terminal run state", intlog.RunIDKey, rec.RunID, "error", err)
		}
	}

	if m.metrics != nil {
		m.metrics.RecordRunComplete(context.Background(), rec.RunID, rec.WorkflowID, string(status), "api", now.Sub(rec.StartedAt))
	}

	time.AfterFunc(m.retention, func() {
		m.mu.Lock()
		delete(m.runs, rec.RunID)
		m.mu.Unlock()
	})
}

// suspend records that the run is waiting on an external resume, without
// marking it terminal: it stays tracked indefinitely until resumed or
// explicitly cancelled.
func (m *Manager) suspend(r *run) {
	r.mu.Lock()
	r.record.Status = workflow.RunStatusRunning
	rec := *r.record
	r.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.UpdateRun(context.Background(), &rec); err != nil {
			m.logger.Warn("failed to persist suspended run state", intlog.RunIDKey, rec.RunID, "error", err)
		}
	}
}
