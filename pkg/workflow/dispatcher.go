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

package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	werrors "github.com/marktoflow/flowcore/pkg/errors"
)

// Dispatcher is the single entry point every control-flow executor calls
// recursively: it never special-cases a Kind itself beyond routing, leaving
// per-kind semantics to the executor functions in this package.
type Dispatcher struct {
	Registry  ActionRegistry
	Cond      *ConditionEvaluator
	SubLoader SubworkflowLoader
	Events    *EventSink
	BasePath  string

	// ResumeSigningKey signs/verifies Wait-step resume tokens (executors.go).
	// Lazily generated if nil; set explicitly to survive process restarts.
	ResumeSigningKey []byte

	// rateLimiters backs per-step RateLimit enforcement (ratelimit.go).
	rateLimiters *rateLimiterGroup
}

// NewDispatcher constructs a Dispatcher. cond may be nil, in which case a
// fresh ConditionEvaluator is created.
func NewDispatcher(registry ActionRegistry, subLoader SubworkflowLoader, events *EventSink, basePath string) *Dispatcher {
	return &Dispatcher{
		Registry:     registry,
		Cond:         NewConditionEvaluator(),
		SubLoader:    subLoader,
		Events:       events,
		BasePath:     basePath,
		rateLimiters: newRateLimiterGroup(),
	}
}

// Dispatch executes a single step: condition gating, retry-with-backoff,
// timeout enforcement, output-variable binding, event emission, and routing
// to the kind-specific executor. It never panics on a malformed step;
// structural problems surface as an error-status StepResult.
func (d *Dispatcher) Dispatch(ctx context.Context, step Step, ec *ExecutionContext) (*StepResult, error) {
	select {
	case <-ec.Cancel:
		return nil, &werrors.CancellationError{RunID: ec.RunID, Step: step.ID}
	default:
	}

	for _, cond := range step.Conditions {
		ok, err := d.Cond.Evaluate(cond, ec)
		if err != nil {
			return d.fail(step, ec, err), err
		}
		if !ok {
			result := &StepResult{
				StepID:    step.ID,
				Status:    StepStatusSkipped,
				StartedAt: time.Now(),
			}
			result.CompletedAt = result.StartedAt
			ec.RecordStepMetadata(step.ID, result)
			d.emit(EventStepComplete, ec, &step, result, nil)
			return result, nil
		}
	}

	d.emit(EventStepStart, ec, &step, nil, nil)

	stepCtx := ctx
	var cancel context.CancelFunc
	if step.Timeout != "" {
		timeout, err := time.ParseDuration(step.Timeout)
		if err != nil {
			res := d.fail(step, ec, fmt.Errorf("invalid timeout %q: %w", step.Timeout, err))
			ec.RecordStepMetadata(step.ID, res)
			return res, err
		}
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, execErr := d.runWithRetry(stepCtx, step, ec)
	result.StepID = step.ID
	ec.RecordStepMetadata(step.ID, result)

	if execErr != nil {
		d.emit(EventStepError, ec, &step, result, execErr)
	} else {
		if step.OutputVariable != "" {
			ec.SetVariable(step.OutputVariable, result.Output)
		}
		d.emit(EventStepComplete, ec, &step, result, nil)
	}
	return result, execErr
}

// runWithRetry invokes execute once, then retries per step.Retry on failure
// with exponential backoff plus jitter, up to MaxRetries additional attempts.
func (d *Dispatcher) runWithRetry(ctx context.Context, step Step, ec *ExecutionContext) (*StepResult, error) {
	policy := step.Retry
	maxAttempts := 1
	if policy != nil && policy.MaxRetries > 0 {
		maxAttempts += policy.MaxRetries
	}

	var lastErr error
	var lastResult *StepResult
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt)
			select {
			case <-ctx.Done():
				return d.timeoutResult(step, ctx.Err()), ctx.Err()
			case <-ec.Cancel:
				return d.fail(step, ec, &werrors.CancellationError{RunID: ec.RunID, Step: step.ID}), &werrors.CancellationError{RunID: ec.RunID, Step: step.ID}
			case <-time.After(delay):
			}
		}

		started := time.Now()
		output, err := d.execute(ctx, step, ec)
		completed := time.Now()

		if err == nil {
			return &StepResult{
				Status:      StepStatusCompleted,
				StartedAt:   started,
				CompletedAt: completed,
				Duration:    completed.Sub(started),
				Output:      output,
				RetryCount:  attempt,
			}, nil
		}

		if errors.Is(err, ErrSuspended) {
			return &StepResult{
				Status:      StepStatusWaiting,
				StartedAt:   started,
				CompletedAt: completed,
				Duration:    completed.Sub(started),
				Output:      output,
			}, err
		}

		lastErr = err
		lastResult = &StepResult{
			Status:      StepStatusFailed,
			StartedAt:   started,
			CompletedAt: completed,
			Duration:    completed.Sub(started),
			Error:       err.Error(),
			RetryCount:  attempt,
		}

		if ctx.Err() != nil {
			return d.timeoutResult(step, ctx.Err()), ctx.Err()
		}
	}

	if maxAttempts > 1 {
		wrapped := &werrors.RetryExhaustedError{Step: step.ID, Attempts: maxAttempts, Cause: lastErr}
		lastResult.Error = wrapped.Error()
		return lastResult, wrapped
	}
	return lastResult, lastErr
}

func backoffDelay(policy *RetryPolicy, attempt int) time.Duration {
	base := 500 * time.Millisecond
	max := 30 * time.Second
	mult := 2.0

	if policy != nil {
		if d, err := time.ParseDuration(policy.BaseDelay); err == nil && d > 0 {
			base = d
		}
		if d, err := time.ParseDuration(policy.MaxDelay); err == nil && d > 0 {
			max = d
		}
		if policy.Multiplier > 0 {
			mult = policy.Multiplier
		}
	}

	delay := time.Duration(float64(base) * math.Pow(mult, float64(attempt-1)))
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// execute routes a step to the executor matching its Kind. Leaf kinds call
// out through the Registry/SubLoader; control-flow kinds recurse back into
// Dispatch via the executor functions in executors.go.
func (d *Dispatcher) execute(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	switch step.Kind {
	case StepKindAction:
		return d.executeAction(ctx, step, ec)
	case StepKindWorkflow:
		return d.executeSubworkflow(ctx, step, ec)
	case StepKindIf:
		return d.executeIf(ctx, step, ec)
	case StepKindSwitch:
		return d.executeSwitch(ctx, step, ec)
	case StepKindForEach:
		return d.executeForEach(ctx, step, ec)
	case StepKindWhile:
		return d.executeWhile(ctx, step, ec)
	case StepKindMap:
		return d.executeMap(ctx, step, ec)
	case StepKindFilter:
		return d.executeFilter(ctx, step, ec)
	case StepKindReduce:
		return d.executeReduce(ctx, step, ec)
	case StepKindParallel:
		return d.executeParallel(ctx, step, ec)
	case StepKindTryCatchFinally:
		return d.executeTryCatchFinally(ctx, step, ec)
	case StepKindScript:
		return d.executeScript(ctx, step, ec)
	case StepKindWait:
		return d.executeWait(ctx, step, ec)
	case StepKindMerge:
		return d.executeMerge(ctx, step, ec)
	default:
		return nil, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

func (d *Dispatcher) executeAction(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	fn, err := d.Registry.Load(step.Action)
	if err != nil {
		return nil, err
	}
	if err := d.waitRateLimit(ctx, step); err != nil {
		return nil, err
	}
	resolved, err := ResolveTemplates(map[string]interface{}(step.ActionInputs), ec)
	if err != nil {
		return nil, &werrors.TemplateError{Template: step.Action, Reason: err.Error(), Cause: err}
	}
	inputs, _ := resolved.(map[string]interface{})

	sec := StepExecutorContext{
		RunID:       ec.RunID,
		StepID:      step.ID,
		BasePath:    d.BasePath,
		Permissions: step.Permissions,
	}
	return fn(ctx, sec, inputs)
}

func (d *Dispatcher) executeSubworkflow(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	if d.SubLoader == nil {
		return nil, fmt.Errorf("step %s: no sub-workflow loader configured", step.ID)
	}
	def, err := d.SubLoader.Load(d.BasePath, step.Workflow, nil)
	if err != nil {
		return nil, err
	}

	resolved, err := ResolveTemplates(map[string]interface{}(step.WorkflowInputs), ec)
	if err != nil {
		return nil, &werrors.TemplateError{Template: step.Workflow, Reason: err.Error(), Cause: err}
	}
	inputs, _ := resolved.(map[string]interface{})

	childID := ec.RunID + "/" + step.ID
	child := NewExecutionContext(childID, def.Name, inputs, ec.Cancel)
	var lastOutput interface{}
	for _, s := range def.Steps {
		res, err := d.Dispatch(ctx, s, child)
		if err != nil {
			return nil, err
		}
		lastOutput = res.Output
	}
	return lastOutput, nil
}

func (d *Dispatcher) fail(step Step, ec *ExecutionContext, err error) *StepResult {
	now := time.Now()
	return &StepResult{
		StepID:      step.ID,
		Status:      StepStatusFailed,
		StartedAt:   now,
		CompletedAt: now,
		Error:       err.Error(),
	}
}

func (d *Dispatcher) timeoutResult(step Step, err error) *StepResult {
	now := time.Now()
	wrapped := &werrors.TimeoutError{Operation: step.ID, Duration: 0, Cause: err}
	return &StepResult{
		StepID:      step.ID,
		Status:      StepStatusFailed,
		StartedAt:   now,
		CompletedAt: now,
		Error:       wrapped.Error(),
	}
}

func (d *Dispatcher) emit(kind EventKind, ec *ExecutionContext, step *Step, result *StepResult, err error) {
	if d.Events == nil {
		return
	}
	e := Event{Kind: kind, RunID: ec.RunID, Result: result, Err: err}
	if step != nil {
		e.StepID = step.ID
		e.Step = step
	}
	d.Events.Publish(e)
}
