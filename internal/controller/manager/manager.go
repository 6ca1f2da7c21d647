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

// Package manager implements the Execution Manager: it owns the set of
// in-flight runs, dispatches their steps through a workflow.Dispatcher,
// persists progress to a backend.Backend, and retains terminal runs for a
// short grace period so a caller can still observe their final status.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marktoflow/flowcore/internal/controller/backend"
	intlog "github.com/marktoflow/flowcore/internal/log"
	"github.com/marktoflow/flowcore/internal/tracing"
	"github.com/marktoflow/flowcore/pkg/workflow"
)

// DefaultRetention is how long a run stays queryable after reaching a
// terminal state before the cleanup loop evicts it from memory.
const DefaultRetention = time.Minute

// Config configures the Execution Manager.
type Config struct {
	// MaxParallel bounds the number of runs executing concurrently.
	MaxParallel int
	// Retention is how long terminal runs remain in ListExecutions/
	// GetExecutionStatus after completion. Defaults to DefaultRetention.
	Retention time.Duration
	// Metrics, if set, receives run- and step-level counters and
	// histograms as executions progress. Nil disables metrics recording.
	Metrics *tracing.MetricsCollector
}

// run is the manager's internal, mutable view of an execution. Snapshot()
// produces an immutable copy for external consumption.
type run struct {
	mu sync.RWMutex

	record *workflow.ExecutionRecord
	def    *workflow.Definition

	ctx    context.Context
	cancel context.CancelFunc

	terminalAt time.Time
}

// Manager is the Execution Manager.
type Manager struct {
	mu   sync.RWMutex
	runs map[string]*run

	backend    backend.Backend
	dispatcher *workflow.Dispatcher
	logger     *slog.Logger
	metrics    *tracing.MetricsCollector

	semaphore chan struct{}
	retention time.Duration

	wg       sync.WaitGroup
	draining bool
}

// New creates an Execution Manager backed by be for persistence and d for
// step dispatch.
func New(cfg Config, be backend.Backend, d *workflow.Dispatcher, logger *slog.Logger) *Manager {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 10
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runs:       make(map[string]*run),
		backend:    be,
		dispatcher: d,
		logger:     logger,
		metrics:    cfg.Metrics,
		semaphore:  make(chan struct{}, cfg.MaxParallel),
		retention:  cfg.Retention,
	}
}

// StartExecution creates a run for def and begins executing its steps in
// the background. The returned ExecutionRecord reflects the pending state
// at creation time, before any step has run.
func (m *Manager) StartExecution(ctx context.Context, def *workflow.Definition, inputs map[string]interface{}, parentRunID *string) (*workflow.ExecutionRecord, error) {
	runID := uuid.New().String()[:12]
	runCtx, cancel := context.WithCancel(context.Background())

	rec := &workflow.ExecutionRecord{
		RunID:       runID,
		WorkflowID:  def.ID,
		ParentRunID: parentRunID,
		Status:      workflow.RunStatusPending,
		StartedAt:   time.Now(),
		TotalSteps:  len(def.Steps),
		Inputs:      inputs,
	}

	r := &run{record: rec, def: def, ctx: runCtx, cancel: cancel}

	m.mu.Lock()
	m.runs[runID] = r
	m.mu.Unlock()

	if m.backend != nil {
		if err := m.backend.CreateRun(ctx, rec); err != nil {
			m.logger.Warn("failed to persist new run", intlog.RunIDKey, runID, "error", err)
		}
	}

	m.wg.Add(1)
	go m.runExecution(r)

	return r.snapshot(), nil
}

// CancelExecution signals the run's context to stop. Steps already
// dispatched are not interrupted mid-action; the dispatcher checks
// cancellation between steps. Cancelling a run that has already reached a
// terminal state is an error, not a silent no-op, and a run this process
// lost track of (e.g. after a restart) is still cancellable as long as the
// backend still has it recorded as running.
func (m *Manager) CancelExecution(runID string) error {
	m.mu.RLock()
	r, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return m.cancelOrphan(runID)
	}

	r.mu.Lock()
	status := r.record.Status
	r.mu.Unlock()
	if isTerminalStatus(status) {
		return fmt.Errorf("execution manager: run %s is already %s", runID, status)
	}

	r.cancel()
	return nil
}

// cancelOrphan marks a run the manager has no in-memory record of as
// cancelled directly in the backend, provided the backend still shows it
// running. Used when a cancel request arrives for a run this process never
// started (or already evicted after its retention window).
func (m *Manager) cancelOrphan(runID string) error {
	if m.backend == nil {
		return &notFoundError{runID}
	}

	rec, err := m.backend.GetRun(context.Background(), runID)
	if err != nil {
		return &notFoundError{runID}
	}
	if isTerminalStatus(rec.Status) {
		return fmt.Errorf("execution manager: run %s is already %s", runID, rec.Status)
	}

	now := time.Now()
	rec.Status = workflow.RunStatusCancelled
	rec.CompletedAt = &now
	if err := m.backend.UpdateRun(context.Background(), rec); err != nil {
		return fmt.Errorf("execution manager: failed to cancel orphaned run %s: %w", runID, err)
	}
	return nil
}

func isTerminalStatus(status workflow.RunStatus) bool {
	switch status {
	case workflow.RunStatusCompleted, workflow.RunStatusFailed, workflow.RunStatusCancelled:
		return true
	}
	return false
}

// ResumeExecution is invoked by an embedder after an external event (a
// webhook call, a submitted form) satisfies a suspended Wait step. It loads
// the run's latest checkpoint, merges resumeData into the execution
// context, and continues dispatch from the following step.
func (m *Manager) ResumeExecution(ctx context.Context, runID string, resumeData map[string]interface{}) (*workflow.ExecutionRecord, error) {
	m.mu.RLock()
	r, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, &notFoundError{runID}
	}
	if m.backend == nil {
		return nil, fmt.Errorf("execution manager: cannot resume %s without a backend", runID)
	}

	cp, err := m.backend.GetLatestCheckpoint(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("execution manager: no checkpoint to resume from: %w", err)
	}
	if cp.Status != workflow.StepStatusWaiting {
		return nil, fmt.Errorf("execution manager: run %s is not suspended (last step status %s)", runID, cp.Status)
	}

	r.mu.Lock()
	r.record.Status = workflow.RunStatusRunning
	r.mu.Unlock()

	m.wg.Add(1)
	go m.resumeFrom(r, cp.StepIndex, resumeData)

	return r.snapshot(), nil
}

// GetExecutionStatus returns an immutable snapshot of a run, whether it is
// still in-flight or retained post-completion within the retention window.
func (m *Manager) GetExecutionStatus(runID string) (*workflow.ExecutionRecord, error) {
	m.mu.RLock()
	r, ok := m.runs[runID]
	m.mu.RUnlock()
	if !ok {
		return nil, &notFoundError{runID}
	}
	return r.snapshot(), nil
}

// ListExecutions returns snapshots of all runs currently tracked in memory
// (in-flight plus those still within the retention window), optionally
// filtered by status or workflow id.
func (m *Manager) ListExecutions(filter backend.RunFilter) []*workflow.ExecutionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*workflow.ExecutionRecord
	for _, r := range m.runs {
		snap := r.snapshot()
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		if filter.WorkflowID != "" && snap.WorkflowID != filter.WorkflowID {
			continue
		}
		out = append(out, snap)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// WaitForAll blocks until every tracked execution has reached a terminal
// state or ctx is done, whichever comes first.
func (m *Manager) WaitForAll(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartDraining stops accepting new work conceptually (callers should stop
// calling StartExecution); in-flight runs continue until WaitForAll returns.
func (m *Manager) StartDraining() {
	m.mu.Lock()
	m.draining = true
	m.mu.Unlock()
}

// IsDraining reports whether the manager has been marked draining.
func (m *Manager) IsDraining() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.draining
}

// ActiveCount returns the number of runs not yet in a terminal state.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, r := range m.runs {
		if r.snapshot().Status == workflow.RunStatusRunning || r.snapshot().Status == workflow.RunStatusPending {
			n++
		}
	}
	return n
}

func (r *run) snapshot() *workflow.ExecutionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := *r.record
	if r.record.Inputs != nil {
		cp.Inputs = make(map[string]interface{}, len(r.record.Inputs))
		for k, v := range r.record.Inputs {
			cp.Inputs[k] = v
		}
	}
	if r.record.Outputs != nil {
		cp.Outputs = make(map[string]interface{}, len(r.record.Outputs))
		for k, v := range r.record.Outputs {
			cp.Outputs[k] = v
		}
	}
	return &cp
}

type notFoundError struct{ runID string }

func (e *notFoundError) Error() string { return fmt.Sprintf("execution manager: run not found: %s", e.runID) }
