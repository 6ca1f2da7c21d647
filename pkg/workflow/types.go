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

// Package workflow implements the step dispatcher, control-flow executors,
// variable/template resolver and condition evaluator that together drive
// execution of a parsed workflow Definition.
package workflow

import (
	"sync"
	"time"
)

// RunStatus is the lifecycle state of an execution.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StepStatus is the outcome of a single step's dispatch.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusCancelled StepStatus = "cancelled"
	StepStatusWaiting   StepStatus = "waiting"
)

// StepResult is the dispatcher's return value for a single step, and the
// shape persisted (via a Checkpoint) for resumability.
type StepResult struct {
	StepID      string        `json:"step_id"`
	Status      StepStatus    `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Output      interface{}   `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	RetryCount  int           `json:"retry_count,omitempty"`
}

// LoopFields is the per-iteration metadata bound to `loop` inside for-each
// and while bodies.
type LoopFields struct {
	Index      int  `json:"index"`
	First      bool `json:"first"`
	Last       bool `json:"last"`
	Length     int  `json:"length"`
	BatchSize  int  `json:"batchSize,omitempty"`
	BatchStart int  `json:"batchStart,omitempty"`
	TotalItems int  `json:"totalItems,omitempty"`
}

// ExecutionContext is the per-run mutable state threaded through every
// dispatch call. Inputs never mutate after the run starts; Variables only
// grows or rebinds existing keys; StepMetadata is append-or-overwrite.
//
// ExecutionContext is NOT safe for concurrent mutation from multiple
// goroutines; Parallel steps clone a deep copy per branch (see Clone) and
// merge results back into the parent under parentheses.branches.<id>.
type ExecutionContext struct {
	RunID            string
	WorkflowID       string
	StartedAt        time.Time
	CurrentStepIndex int
	Status           RunStatus

	Inputs    map[string]interface{}
	Variables map[string]interface{}

	// StepMetadata holds the last observed result metadata for each step id,
	// keyed by step id: {"duration": ..., "status": ...}.
	StepMetadata map[string]map[string]interface{}

	// Cancel is closed by the Execution Manager when the run is cancelled.
	Cancel <-chan struct{}

	mu sync.Mutex
}

// NewExecutionContext constructs a fresh context for a new run. inputs is
// copied defensively so the caller's map cannot mutate it afterwards.
func NewExecutionContext(runID, workflowID string, inputs map[string]interface{}, cancel <-chan struct{}) *ExecutionContext {
	copied := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		copied[k] = v
	}
	return &ExecutionContext{
		RunID:        runID,
		WorkflowID:   workflowID,
		StartedAt:    time.Now(),
		Status:       RunStatusRunning,
		Inputs:       copied,
		Variables:    make(map[string]interface{}),
		StepMetadata: make(map[string]map[string]interface{}),
		Cancel:       cancel,
	}
}

// SetVariable binds or rebinds a variable. Safe for concurrent callers
// within a single branch; Parallel isolates branches via Clone instead of
// sharing a context.
func (c *ExecutionContext) SetVariable(name string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Variables[name] = value
}

// DeleteVariable removes a variable, used to unwind loop/try/catch locals
// on every exit path.
func (c *ExecutionContext) DeleteVariable(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Variables, name)
}

// RecordStepMetadata stores the last observed duration/status for a step id.
func (c *ExecutionContext) RecordStepMetadata(stepID string, result *StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StepMetadata[stepID] = map[string]interface{}{
		"status":   result.Status,
		"duration": result.Duration,
	}
}

// VariablesSnapshot returns a shallow copy of Variables, safe to hand to the
// template resolver without holding the context lock while rendering.
func (c *ExecutionContext) VariablesSnapshot() map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]interface{}, len(c.Variables))
	for k, v := range c.Variables {
		out[k] = v
	}
	return out
}

// Clone produces an isolated context for a Parallel branch: Variables is a
// deep copy, Inputs is shared (it is immutable by invariant), and the
// cancellation channel is shared so a run-wide cancel reaches every branch.
func (c *ExecutionContext) Clone(branchRunID string) *ExecutionContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := &ExecutionContext{
		RunID:            branchRunID,
		WorkflowID:       c.WorkflowID,
		StartedAt:        c.StartedAt,
		CurrentStepIndex: c.CurrentStepIndex,
		Status:           c.Status,
		Inputs:           c.Inputs,
		Variables:        deepCopyMap(c.Variables),
		StepMetadata:     make(map[string]map[string]interface{}, len(c.StepMetadata)),
		Cancel:           c.Cancel,
	}
	for k, v := range c.StepMetadata {
		clone.StepMetadata[k] = v
	}
	return clone
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// ExecutionRecord is the durable, top-level record of a run, persisted by
// the State Store and updated on every step transition plus termination.
type ExecutionRecord struct {
	RunID        string                 `json:"run_id"`
	WorkflowID   string                 `json:"workflow_id"`
	WorkflowPath string                 `json:"workflow_path"`
	ParentRunID  *string                `json:"parent_run_id,omitempty"`
	Status       RunStatus              `json:"status"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	CurrentStep  int                    `json:"current_step"`
	TotalSteps   int                    `json:"total_steps"`
	Inputs       map[string]interface{} `json:"inputs,omitempty"`
	Outputs      map[string]interface{} `json:"outputs,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Checkpoint is the durable per-step record, written at each step
// completion and at each wait-step suspension. At most one Checkpoint
// exists per (RunID, StepIndex); later writes replace earlier ones.
type Checkpoint struct {
	RunID       string                 `json:"run_id"`
	StepIndex   int                    `json:"step_index"`
	StepID      string                 `json:"step_id"`
	StepName    string                 `json:"step_name"`
	Status      StepStatus             `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Outputs     interface{}            `json:"outputs,omitempty"`
	Error       string                 `json:"error,omitempty"`
	RetryCount  int                    `json:"retry_count,omitempty"`

	// Wait-mode suspension payload, set only when Status == completed and
	// the step was a wait step that suspended the run.
	WaitMode    string     `json:"wait_mode,omitempty"`
	ResumeAt    *time.Time `json:"resume_at,omitempty"`
	ResumeToken string     `json:"resume_token,omitempty"`
	WebhookPath string     `json:"webhook_path,omitempty"`
}

// Stats aggregates execution statistics for a workflow (or all workflows).
type Stats struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	Running        int     `json:"running"`
	Cancelled      int     `json:"cancelled"`
	SuccessRate    float64 `json:"success_rate"`
	AvgDurationSec float64 `json:"avg_duration_seconds"`
}
