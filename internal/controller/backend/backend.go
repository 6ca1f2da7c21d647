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

// Package backend provides storage backends for execution records and
// checkpoints: the State Store.
//
// # Interface Hierarchy
//
//   - RunStore (core, required): CreateRun, GetRun, UpdateRun
//   - RunLister (optional): ListRuns, DeleteRun
//   - CheckpointStore (optional): SaveCheckpoint, GetCheckpoint, GetLatestCheckpoint, ListCheckpoints
//   - io.Closer (optional): Close
//
// Backend composes all of these for full-featured implementations.
// Components can accept RunStore for minimal requirements and use type
// assertions to detect optional capabilities at runtime.
package backend

import (
	"context"
	"io"

	"github.com/marktoflow/flowcore/pkg/workflow"
)

// RunStore is the core interface for execution-record storage.
type RunStore interface {
	CreateRun(ctx context.Context, run *workflow.ExecutionRecord) error
	GetRun(ctx context.Context, id string) (*workflow.ExecutionRecord, error)
	UpdateRun(ctx context.Context, run *workflow.ExecutionRecord) error
}

// RunLister is an optional interface for listing and deleting runs.
//
//	if lister, ok := store.(RunLister); ok {
//	    runs, err := lister.ListRuns(ctx, filter)
//	}
type RunLister interface {
	ListRuns(ctx context.Context, filter RunFilter) ([]*workflow.ExecutionRecord, error)
	DeleteRun(ctx context.Context, id string) error
}

// CheckpointStore is an optional interface for per-step checkpoint
// persistence. At most one Checkpoint exists per (RunID, StepIndex); a later
// SaveCheckpoint call for the same pair replaces the earlier one.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, checkpoint *workflow.Checkpoint) error
	GetCheckpoint(ctx context.Context, runID string, stepIndex int) (*workflow.Checkpoint, error)
	GetLatestCheckpoint(ctx context.Context, runID string) (*workflow.Checkpoint, error)
	ListCheckpoints(ctx context.Context, runID string) ([]*workflow.Checkpoint, error)
}

// Backend defines the full interface for State Store storage. Existing
// backends (memory, sqlite) implement all methods and satisfy this
// interface; new minimal backends can implement just RunStore.
type Backend interface {
	RunStore
	RunLister
	CheckpointStore
	io.Closer
}

// RunFilter contains filtering options for listing runs.
type RunFilter struct {
	Status     workflow.RunStatus
	WorkflowID string
	Limit      int
	Offset     int
}
