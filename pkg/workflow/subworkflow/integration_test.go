package subworkflow_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marktoflow/flowcore/pkg/workflow"
	"github.com/marktoflow/flowcore/pkg/workflow/subworkflow"
)

// TestSubworkflowWithParallel tests sub-workflows inside parallel branches.
func TestSubworkflowWithParallel(t *testing.T) {
	tmpDir := t.TempDir()

	subWorkflowYAML := `id: sub-task
name: sub-task
inputs:
  - name: item
    type: string
    required: true
outputs:
  - name: result
    type: string
    value: "{{ inputs.item }}"
steps:
  - id: process
    type: action
    action: log
    inputs:
      message: "Process {{ inputs.item }}"
`
	subWorkflowPath := filepath.Join(tmpDir, "sub-task.yaml")
	if err := os.WriteFile(subWorkflowPath, []byte(subWorkflowYAML), 0644); err != nil {
		t.Fatalf("Failed to write sub-workflow file: %v", err)
	}

	mainWorkflowYAML := `id: parallel-sub-workflows
name: parallel-sub-workflows
steps:
  - id: parallel_tasks
    type: parallel
    branches:
      - - id: run_task1
          type: workflow
          workflow: ./sub-task.yaml
          workflow_inputs:
            item: "task1"
      - - id: run_task2
          type: workflow
          workflow: ./sub-task.yaml
          workflow_inputs:
            item: "task2"
`
	mainWorkflowPath := filepath.Join(tmpDir, "main.yaml")
	if err := os.WriteFile(mainWorkflowPath, []byte(mainWorkflowYAML), 0644); err != nil {
		t.Fatalf("Failed to write main workflow file: %v", err)
	}

	data, err := os.ReadFile(mainWorkflowPath)
	if err != nil {
		t.Fatalf("Failed to read main workflow: %v", err)
	}

	def, err := workflow.ParseDefinition(data)
	if err != nil {
		t.Fatalf("Failed to parse main workflow: %v", err)
	}

	if len(def.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(def.Steps))
	}

	parallelStep := def.Steps[0]
	if parallelStep.Kind != workflow.StepKindParallel {
		t.Fatalf("Expected parallel step, got %v", parallelStep.Kind)
	}

	if len(parallelStep.Branches) != 2 {
		t.Fatalf("Expected 2 branches in parallel, got %d", len(parallelStep.Branches))
	}

	workflowStep := parallelStep.Branches[0][0]
	if workflowStep.Kind != workflow.StepKindWorkflow {
		t.Fatalf("Expected workflow step, got %v", workflowStep.Kind)
	}

	loader := subworkflow.NewLoader()
	subDef, err := loader.Load(tmpDir, workflowStep.Workflow, nil)
	if err != nil {
		t.Fatalf("Failed to load sub-workflow: %v", err)
	}

	if subDef.Name != "sub-task" {
		t.Errorf("Expected sub-workflow name 'sub-task', got %s", subDef.Name)
	}
}

// TestSubworkflowWithLoop tests a sub-workflow invoked as a single step in
// a sequential workflow (the shape a for_each or while body also produces).
func TestSubworkflowWithLoop(t *testing.T) {
	tmpDir := t.TempDir()

	refineWorkflowYAML := `id: refine-code
name: refine-code
inputs:
  - name: code
    type: string
    required: true
outputs:
  - name: improved_code
    type: string
    value: "{{ stepMetadata.improve.output }}"
steps:
  - id: improve
    type: action
    action: log
    inputs:
      message: "Improve this code: {{ inputs.code }}"
`
	refinePath := filepath.Join(tmpDir, "refine.yaml")
	if err := os.WriteFile(refinePath, []byte(refineWorkflowYAML), 0644); err != nil {
		t.Fatalf("Failed to write refine workflow: %v", err)
	}

	mainWorkflowYAML := `id: sequential-with-sub-workflow
name: sequential-with-sub-workflow
inputs:
  - name: initial_code
    type: string
    required: true
steps:
  - id: refine
    type: workflow
    workflow: ./refine.yaml
    workflow_inputs:
      code: "{{ inputs.initial_code }}"
`
	mainWorkflowPath := filepath.Join(tmpDir, "main.yaml")
	if err := os.WriteFile(mainWorkflowPath, []byte(mainWorkflowYAML), 0644); err != nil {
		t.Fatalf("Failed to write main workflow: %v", err)
	}

	data, err := os.ReadFile(mainWorkflowPath)
	if err != nil {
		t.Fatalf("Failed to read main workflow: %v", err)
	}

	def, err := workflow.ParseDefinition(data)
	if err != nil {
		t.Fatalf("Failed to parse main workflow: %v", err)
	}

	if len(def.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(def.Steps))
	}

	loader := subworkflow.NewLoader()
	workflowStep := def.Steps[0]
	subDef, err := loader.Load(tmpDir, workflowStep.Workflow, nil)
	if err != nil {
		t.Fatalf("Failed to load sub-workflow: %v", err)
	}

	if subDef.Name != "refine-code" {
		t.Errorf("Expected sub-workflow name 'refine-code', got %s", subDef.Name)
	}
}

// TestSubworkflowWithCondition tests conditional sub-workflow dispatch.
func TestSubworkflowWithCondition(t *testing.T) {
	tmpDir := t.TempDir()

	deepAnalysisYAML := `id: deep-analysis
name: deep-analysis
inputs:
  - name: code
    type: string
    required: true
outputs:
  - name: result
    type: string
    value: "Deep analysis complete"
steps:
  - id: analyze
    type: action
    action: log
    inputs:
      message: "Perform deep analysis on: {{ inputs.code }}"
`
	deepAnalysisPath := filepath.Join(tmpDir, "deep-analysis.yaml")
	if err := os.WriteFile(deepAnalysisPath, []byte(deepAnalysisYAML), 0644); err != nil {
		t.Fatalf("Failed to write deep-analysis workflow: %v", err)
	}

	quickCheckYAML := `id: quick-check
name: quick-check
inputs:
  - name: code
    type: string
    required: true
outputs:
  - name: result
    type: string
    value: "Quick check complete"
steps:
  - id: check
    type: action
    action: log
    inputs:
      message: "Quick check: {{ inputs.code }}"
`
	quickCheckPath := filepath.Join(tmpDir, "quick-check.yaml")
	if err := os.WriteFile(quickCheckPath, []byte(quickCheckYAML), 0644); err != nil {
		t.Fatalf("Failed to write quick-check workflow: %v", err)
	}

	mainWorkflowYAML := `id: conditional-sub-workflows
name: conditional-sub-workflows
inputs:
  - name: priority
    type: string
    required: true
  - name: code
    type: string
    required: true
steps:
  - id: deep_analysis
    type: workflow
    workflow: ./deep-analysis.yaml
    condition: 'inputs.priority == "high"'
    workflow_inputs:
      code: "{{ inputs.code }}"

  - id: quick_check
    type: workflow
    workflow: ./quick-check.yaml
    condition: 'inputs.priority == "low"'
    workflow_inputs:
      code: "{{ inputs.code }}"
`
	mainWorkflowPath := filepath.Join(tmpDir, "main.yaml")
	if err := os.WriteFile(mainWorkflowPath, []byte(mainWorkflowYAML), 0644); err != nil {
		t.Fatalf("Failed to write main workflow: %v", err)
	}

	data, err := os.ReadFile(mainWorkflowPath)
	if err != nil {
		t.Fatalf("Failed to read main workflow: %v", err)
	}

	def, err := workflow.ParseDefinition(data)
	if err != nil {
		t.Fatalf("Failed to parse main workflow: %v", err)
	}

	if len(def.Steps) != 2 {
		t.Fatalf("Expected 2 steps, got %d", len(def.Steps))
	}

	step1 := def.Steps[0]
	if step1.Kind != workflow.StepKindWorkflow {
		t.Fatalf("Expected workflow step, got %v", step1.Kind)
	}
	if step1.Condition == "" {
		t.Fatal("Expected condition on first workflow step")
	}
	if step1.Condition != `inputs.priority == "high"` {
		t.Errorf("Expected condition 'inputs.priority == \"high\"', got %s", step1.Condition)
	}

	step2 := def.Steps[1]
	if step2.Kind != workflow.StepKindWorkflow {
		t.Fatalf("Expected workflow step, got %v", step2.Kind)
	}
	if step2.Condition == "" {
		t.Fatal("Expected condition on second workflow step")
	}

	loader := subworkflow.NewLoader()

	subDef1, err := loader.Load(tmpDir, step1.Workflow, nil)
	if err != nil {
		t.Fatalf("Failed to load deep-analysis sub-workflow: %v", err)
	}
	if subDef1.Name != "deep-analysis" {
		t.Errorf("Expected sub-workflow name 'deep-analysis', got %s", subDef1.Name)
	}

	subDef2, err := loader.Load(tmpDir, step2.Workflow, nil)
	if err != nil {
		t.Fatalf("Failed to load quick-check sub-workflow: %v", err)
	}
	if subDef2.Name != "quick-check" {
		t.Errorf("Expected sub-workflow name 'quick-check', got %s", subDef2.Name)
	}
}

// TestSubworkflowRetryConfiguration tests that retry config is parsed
// independently for a workflow step and its referenced sub-workflow.
func TestSubworkflowRetryConfiguration(t *testing.T) {
	tmpDir := t.TempDir()

	subWorkflowYAML := `id: flaky-task
name: flaky-task
inputs:
  - name: data
    type: string
    required: true
outputs:
  - name: result
    type: string
    value: "{{ stepMetadata.process.output }}"
steps:
  - id: process
    type: action
    action: log
    inputs:
      message: "Process: {{ inputs.data }}"
    retry:
      max_retries: 2
      base_delay: "1s"
      multiplier: 2.0
`
	subWorkflowPath := filepath.Join(tmpDir, "flaky-task.yaml")
	if err := os.WriteFile(subWorkflowPath, []byte(subWorkflowYAML), 0644); err != nil {
		t.Fatalf("Failed to write sub-workflow: %v", err)
	}

	mainWorkflowYAML := `id: main-with-retry
name: main-with-retry
steps:
  - id: run_flaky
    type: workflow
    workflow: ./flaky-task.yaml
    workflow_inputs:
      data: "test"
    retry:
      max_retries: 3
      base_delay: "1s"
      multiplier: 2.0
`
	mainWorkflowPath := filepath.Join(tmpDir, "main.yaml")
	if err := os.WriteFile(mainWorkflowPath, []byte(mainWorkflowYAML), 0644); err != nil {
		t.Fatalf("Failed to write main workflow: %v", err)
	}

	data, err := os.ReadFile(mainWorkflowPath)
	if err != nil {
		t.Fatalf("Failed to read main workflow: %v", err)
	}

	def, err := workflow.ParseDefinition(data)
	if err != nil {
		t.Fatalf("Failed to parse main workflow: %v", err)
	}

	if len(def.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(def.Steps))
	}

	step := def.Steps[0]
	if step.Kind != workflow.StepKindWorkflow {
		t.Fatalf("Expected workflow step, got %v", step.Kind)
	}

	if step.Retry == nil {
		t.Fatal("Expected retry configuration on workflow step")
	}

	if step.Retry.MaxRetries != 3 {
		t.Errorf("Expected max_retries=3, got %d", step.Retry.MaxRetries)
	}

	loader := subworkflow.NewLoader()
	subDef, err := loader.Load(tmpDir, step.Workflow, nil)
	if err != nil {
		t.Fatalf("Failed to load sub-workflow: %v", err)
	}

	if len(subDef.Steps) != 1 {
		t.Fatalf("Expected 1 step in sub-workflow, got %d", len(subDef.Steps))
	}

	subStep := subDef.Steps[0]
	if subStep.Retry == nil {
		t.Fatal("Expected retry configuration on sub-workflow step")
	}

	if subStep.Retry.MaxRetries != 2 {
		t.Errorf("Expected max_retries=2 in sub-workflow, got %d", subStep.Retry.MaxRetries)
	}
}
