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

// Package memory provides an in-memory State Store backend, suitable for
// tests and single-process runs that don't need durability across restarts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marktoflow/flowcore/internal/controller/backend"
	"github.com/marktoflow/flowcore/pkg/workflow"
)

var (
	_ backend.RunStore        = (*Backend)(nil)
	_ backend.RunLister       = (*Backend)(nil)
	_ backend.CheckpointStore = (*Backend)(nil)
	_ backend.Backend         = (*Backend)(nil)
)

// Backend is an in-memory, RWMutex-guarded storage backend.
type Backend struct {
	mu sync.RWMutex

	runs map[string]*workflow.ExecutionRecord
	// checkpoints is keyed by run id, then by step index, so that every
	// step in a run keeps its own resumable checkpoint rather than only
	// the most recent one.
	checkpoints map[string]map[int]*workflow.Checkpoint
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{
		runs:        make(map[string]*workflow.ExecutionRecord),
		checkpoints: make(map[string]map[int]*workflow.Checkpoint),
	}
}

func (b *Backend) CreateRun(ctx context.Context, run *workflow.ExecutionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.RunID]; exists {
		return fmt.Errorf("run already exists: %s", run.RunID)
	}
	b.runs[run.RunID] = run
	return nil
}

func (b *Backend) GetRun(ctx context.Context, id string) (*workflow.ExecutionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, exists := b.runs[id]
	if !exists {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	return run, nil
}

func (b *Backend) UpdateRun(ctx context.Context, run *workflow.ExecutionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.runs[run.RunID]; !exists {
		return fmt.Errorf("run not found: %s", run.RunID)
	}
	b.runs[run.RunID] = run
	return nil
}

func (b *Backend) ListRuns(ctx context.Context, filter backend.RunFilter) ([]*workflow.ExecutionRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []*workflow.ExecutionRecord
	for _, run := range b.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		result = append(result, run)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if filter.Offset > 0 && filter.Offset < len(result) {
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (b *Backend) DeleteRun(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.runs, id)
	delete(b.checkpoints, id)
	return nil
}

func (b *Backend) SaveCheckpoint(ctx context.Context, checkpoint *workflow.Checkpoint) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.checkpoints[checkpoint.RunID] == nil {
		b.checkpoints[checkpoint.RunID] = make(map[int]*workflow.Checkpoint)
	}
	b.checkpoints[checkpoint.RunID][checkpoint.StepIndex] = checkpoint
	return nil
}

func (b *Backend) GetCheckpoint(ctx context.Context, runID string, stepIndex int) (*workflow.Checkpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byIndex, exists := b.checkpoints[runID]
	if !exists {
		return nil, fmt.Errorf("no checkpoints for run: %s", runID)
	}
	cp, exists := byIndex[stepIndex]
	if !exists {
		return nil, fmt.Errorf("checkpoint not found for run %s step %d", runID, stepIndex)
	}
	return cp, nil
}

func (b *Backend) GetLatestCheckpoint(ctx context.Context, runID string) (*workflow.Checkpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byIndex, exists := b.checkpoints[runID]
	if !exists || len(byIndex) == 0 {
		return nil, fmt.Errorf("no checkpoints for run: %s", runID)
	}

	var latest *workflow.Checkpoint
	for _, cp := range byIndex {
		if latest == nil || cp.StepIndex > latest.StepIndex {
			latest = cp
		}
	}
	return latest, nil
}

func (b *Backend) ListCheckpoints(ctx context.Context, runID string) ([]*workflow.Checkpoint, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byIndex := b.checkpoints[runID]
	out := make([]*workflow.Checkpoint, 0, len(byIndex))
	for _, cp := range byIndex {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func (b *Backend) Close() error {
	return nil
}
