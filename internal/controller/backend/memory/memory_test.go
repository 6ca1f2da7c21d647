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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marktoflow/flowcore/internal/controller/backend"
	"github.com/marktoflow/flowcore/pkg/workflow"
)

func TestBackend_CreateAndGetRun(t *testing.T) {
	be := New()
	ctx := context.Background()

	run := &workflow.ExecutionRecord{RunID: "run-1", WorkflowID: "wf", Status: workflow.RunStatusRunning, StartedAt: time.Now()}
	require.NoError(t, be.CreateRun(ctx, run))

	require.Error(t, be.CreateRun(ctx, run), "creating the same run id twice should fail")

	got, err := be.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "wf", got.WorkflowID)
}

func TestBackend_UpdateRun_RequiresExisting(t *testing.T) {
	be := New()
	ctx := context.Background()

	err := be.UpdateRun(ctx, &workflow.ExecutionRecord{RunID: "missing"})
	assert.Error(t, err)
}

func TestBackend_ListRuns_Filters(t *testing.T) {
	be := New()
	ctx := context.Background()

	require.NoError(t, be.CreateRun(ctx, &workflow.ExecutionRecord{RunID: "r1", WorkflowID: "a", Status: workflow.RunStatusRunning, StartedAt: time.Now()}))
	require.NoError(t, be.CreateRun(ctx, &workflow.ExecutionRecord{RunID: "r2", WorkflowID: "b", Status: workflow.RunStatusCompleted, StartedAt: time.Now()}))

	all, err := be.ListRuns(ctx, backend.RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byWorkflow, err := be.ListRuns(ctx, backend.RunFilter{WorkflowID: "a"})
	require.NoError(t, err)
	assert.Len(t, byWorkflow, 1)

	byStatus, err := be.ListRuns(ctx, backend.RunFilter{Status: workflow.RunStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)
	assert.Equal(t, "r2", byStatus[0].RunID)
}

func TestBackend_DeleteRun_RemovesCheckpoints(t *testing.T) {
	be := New()
	ctx := context.Background()

	require.NoError(t, be.CreateRun(ctx, &workflow.ExecutionRecord{RunID: "r1", WorkflowID: "a", Status: workflow.RunStatusRunning, StartedAt: time.Now()}))
	require.NoError(t, be.SaveCheckpoint(ctx, &workflow.Checkpoint{RunID: "r1", StepIndex: 0, StepID: "s1", Status: workflow.StepStatusCompleted, StartedAt: time.Now()}))

	require.NoError(t, be.DeleteRun(ctx, "r1"))

	_, err := be.GetRun(ctx, "r1")
	assert.Error(t, err)
	_, err = be.GetCheckpoint(ctx, "r1", 0)
	assert.Error(t, err)
}

func TestBackend_Checkpoints_KeyedByStepIndex(t *testing.T) {
	be := New()
	ctx := context.Background()

	require.NoError(t, be.SaveCheckpoint(ctx, &workflow.Checkpoint{RunID: "r1", StepIndex: 0, StepID: "s0", Status: workflow.StepStatusCompleted, StartedAt: time.Now()}))
	require.NoError(t, be.SaveCheckpoint(ctx, &workflow.Checkpoint{RunID: "r1", StepIndex: 1, StepID: "s1", Status: workflow.StepStatusCompleted, StartedAt: time.Now()}))
	require.NoError(t, be.SaveCheckpoint(ctx, &workflow.Checkpoint{RunID: "r1", StepIndex: 2, StepID: "s2", Status: workflow.StepStatusWaiting, StartedAt: time.Now()}))

	cp0, err := be.GetCheckpoint(ctx, "r1", 0)
	require.NoError(t, err)
	assert.Equal(t, "s0", cp0.StepID)

	latest, err := be.GetLatestCheckpoint(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.StepID)

	all, err := be.ListCheckpoints(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 0, all[0].StepIndex)
	assert.Equal(t, 1, all[1].StepIndex)
	assert.Equal(t, 2, all[2].StepIndex)
}

func TestBackend_GetCheckpoint_NotFound(t *testing.T) {
	be := New()
	ctx := context.Background()

	_, err := be.GetCheckpoint(ctx, "nope", 0)
	assert.Error(t, err)

	_, err = be.GetLatestCheckpoint(ctx, "nope")
	assert.Error(t, err)
}

func TestBackend_Close(t *testing.T) {
	be := New()
	assert.NoError(t, be.Close())
}
