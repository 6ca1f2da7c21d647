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
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	werrors "github.com/marktoflow/flowcore/pkg/errors"
)

// ErrSuspended is returned by a Wait step that cannot complete synchronously
// (webhook or form mode). Dispatch's caller (the Execution Manager) checks
// errors.Is(err, ErrSuspended) to distinguish "pause the run" from "the run
// failed".
var ErrSuspended = errors.New("workflow: execution suspended pending external resume")

// runSteps executes a sequence of nested steps in order, returning the last
// non-skipped output. It stops at the first error.
func (d *Dispatcher) runSteps(ctx context.Context, steps []Step, ec *ExecutionContext) (interface{}, error) {
	var last interface{}
	for _, s := range steps {
		res, err := d.Dispatch(ctx, s, ec)
		if err != nil {
			return last, err
		}
		if res.Status != StepStatusSkipped {
			last = res.Output
		}
	}
	return last, nil
}

func (d *Dispatcher) executeIf(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	ok, err := d.Cond.Evaluate(step.Condition, ec)
	if err != nil {
		return nil, &werrors.ConditionError{Step: step.ID, Message: err.Error()}
	}
	if ok {
		return d.runSteps(ctx, step.Then, ec)
	}
	return d.runSteps(ctx, step.Else, ec)
}

func (d *Dispatcher) executeSwitch(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	val, err := evalValueExpr(step.Expression, ec)
	if err != nil {
		return nil, &werrors.ConditionError{Step: step.ID, Message: err.Error()}
	}
	key := stringify(val)
	if branch, ok := step.Cases[key]; ok {
		return d.runSteps(ctx, branch, ec)
	}
	return d.runSteps(ctx, step.Default, ec)
}

func (d *Dispatcher) resolveItems(step Step, ec *ExecutionContext) ([]interface{}, error) {
	resolved, err := ResolveTemplates(step.Items, ec)
	if err == nil {
		if items, ok := toSlice(resolved); ok {
			return items, nil
		}
	}
	val, err := evalValueExpr(step.Items, ec)
	if err != nil {
		return nil, err
	}
	items, _ := toSlice(val)
	return items, nil
}

func (d *Dispatcher) executeForEach(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	items, err := d.resolveItems(step, ec)
	if err != nil {
		return nil, fmt.Errorf("step %s: resolving items: %w", step.ID, err)
	}

	itemVar := step.ItemVariable
	if itemVar == "" {
		itemVar = "item"
	}
	batchSize := step.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	var outputs []interface{}
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		for i := start; i < end; i++ {
			ec.SetVariable(itemVar, items[i])
			if step.IndexVariable != "" {
				ec.SetVariable(step.IndexVariable, i)
			}
			ec.SetVariable("loop", LoopFields{
				Index: i, First: i == 0, Last: i == len(items)-1,
				Length: len(items), BatchSize: batchSize, BatchStart: start, TotalItems: len(items),
			})

			out, err := d.runSteps(ctx, step.Steps, ec)

			ec.DeleteVariable(itemVar)
			if step.IndexVariable != "" {
				ec.DeleteVariable(step.IndexVariable)
			}
			ec.DeleteVariable("loop")

			if err != nil {
				if step.ErrorHandlingPolicy != nil && step.ErrorHandlingPolicy.Action == ErrorActionContinue {
					continue
				}
				return outputs, err
			}
			outputs = append(outputs, out)
		}
		if start+batchSize < len(items) && step.PauseBetweenBatches != "" {
			if pause, perr := time.ParseDuration(step.PauseBetweenBatches); perr == nil {
				select {
				case <-ctx.Done():
					return outputs, ctx.Err()
				case <-time.After(pause):
				}
			}
		}
	}
	return outputs, nil
}

const defaultWhileMaxIterations = 1000

func (d *Dispatcher) executeWhile(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	maxIter := defaultWhileMaxIterations
	if step.MaxIterations != nil {
		maxIter = *step.MaxIterations
		if maxIter <= 0 {
			return nil, &werrors.MaxIterationsError{Step: step.ID, MaxIterations: maxIter}
		}
	}

	var last interface{}
	for i := 0; i < maxIter; i++ {
		ok, err := d.Cond.Evaluate(step.Condition, ec)
		if err != nil {
			return last, &werrors.ConditionError{Step: step.ID, Message: err.Error()}
		}
		if !ok {
			return last, nil
		}

		ec.SetVariable("loop", LoopFields{Index: i, First: i == 0})
		out, err := d.runSteps(ctx, step.Steps, ec)
		ec.DeleteVariable("loop")
		if err != nil {
			return last, err
		}
		last = out
	}
	return last, &werrors.MaxIterationsError{Step: step.ID, MaxIterations: maxIter}
}

func (d *Dispatcher) executeMap(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	items, err := d.resolveItems(step, ec)
	if err != nil {
		return nil, fmt.Errorf("step %s: resolving items: %w", step.ID, err)
	}

	itemVar := step.ItemVariable
	if itemVar == "" {
		itemVar = "item"
	}

	out := make([]interface{}, 0, len(items))
	for i, item := range items {
		ec.SetVariable(itemVar, item)
		ec.SetVariable("loop", LoopFields{Index: i, First: i == 0, Last: i == len(items)-1, Length: len(items)})

		val, err := evalValueExpr(step.Expression, ec)

		ec.DeleteVariable(itemVar)
		ec.DeleteVariable("loop")
		if err != nil {
			return out, fmt.Errorf("step %s: mapping item %d: %w", step.ID, i, err)
		}
		out = append(out, val)
	}
	return out, nil
}

func (d *Dispatcher) executeFilter(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	items, err := d.resolveItems(step, ec)
	if err != nil {
		return nil, fmt.Errorf("step %s: resolving items: %w", step.ID, err)
	}

	itemVar := step.ItemVariable
	if itemVar == "" {
		itemVar = "item"
	}

	out := make([]interface{}, 0, len(items))
	for i, item := range items {
		ec.SetVariable(itemVar, item)
		ec.SetVariable("loop", LoopFields{Index: i, First: i == 0, Last: i == len(items)-1, Length: len(items)})

		val, err := evalValueExpr(step.Expression, ec)

		ec.DeleteVariable(itemVar)
		ec.DeleteVariable("loop")
		if err != nil {
			return out, fmt.Errorf("step %s: filtering item %d: %w", step.ID, i, err)
		}
		if keep, ok := val.(bool); ok && keep {
			out = append(out, item)
		}
	}
	return out, nil
}

func (d *Dispatcher) executeReduce(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	items, err := d.resolveItems(step, ec)
	if err != nil {
		return nil, fmt.Errorf("step %s: resolving items: %w", step.ID, err)
	}

	accVar := step.AccumulatorVariable
	if accVar == "" {
		accVar = "accumulator"
	}
	itemVar := step.ItemVariable
	if itemVar == "" {
		itemVar = "item"
	}

	acc := step.InitialValue
	ec.SetVariable(accVar, acc)
	defer ec.DeleteVariable(accVar)

	for i, item := range items {
		ec.SetVariable(itemVar, item)
		ec.SetVariable("loop", LoopFields{Index: i, First: i == 0, Last: i == len(items)-1, Length: len(items)})

		val, err := evalValueExpr(step.Expression, ec)

		ec.DeleteVariable(itemVar)
		ec.DeleteVariable("loop")
		if err != nil {
			return acc, fmt.Errorf("step %s: reducing item %d: %w", step.ID, i, err)
		}
		acc = val
		ec.SetVariable(accVar, acc)
	}
	return acc, nil
}

func (d *Dispatcher) executeParallel(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	maxConcurrent := step.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = len(step.Branches)
	}
	if maxConcurrent <= 0 {
		return nil, nil
	}
	sem := make(chan struct{}, maxConcurrent)

	type branchResult struct {
		index  int
		output interface{}
		err    error
	}
	results := make(chan branchResult, len(step.Branches))

	for i, branch := range step.Branches {
		i, branch := i, branch
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			branchCtx := ec.Clone(fmt.Sprintf("%s/branch-%d", ec.RunID, i))
			out, err := d.runSteps(ctx, branch, branchCtx)
			results <- branchResult{index: i, output: out, err: err}
		}()
	}

	outputs := make([]interface{}, len(step.Branches))
	var firstErr error
	for range step.Branches {
		r := <-results
		outputs[r.index] = r.output
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}

	if firstErr != nil && step.OnError != "continue" {
		return outputs, firstErr
	}
	return outputs, nil
}

func (d *Dispatcher) executeTryCatchFinally(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	out, tryErr := d.runSteps(ctx, step.Try, ec)

	if tryErr != nil {
		ec.SetVariable("error", map[string]interface{}{"message": tryErr.Error()})
		catchOut, catchErr := d.runSteps(ctx, step.Catch, ec)
		ec.DeleteVariable("error")
		if catchErr != nil {
			out = catchOut
			tryErr = catchErr
		} else {
			out = catchOut
			tryErr = nil
		}
	}

	if len(step.Finally) > 0 {
		if _, finErr := d.runSteps(ctx, step.Finally, ec); finErr != nil && tryErr == nil {
			tryErr = finErr
		}
	}

	return out, tryErr
}

func (d *Dispatcher) executeScript(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	val, err := evalValueExpr(step.Code, ec)
	if err != nil {
		return nil, &werrors.ScriptError{Step: step.ID, Message: err.Error(), Cause: err}
	}
	return val, nil
}

func (d *Dispatcher) executeMerge(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	var sources [][]interface{}
	for _, src := range step.Sources {
		val, err := evalValueExpr(src, ec)
		if err != nil {
			return nil, fmt.Errorf("step %s: resolving source %q: %w", step.ID, src, err)
		}
		items, _ := toSlice(val)
		sources = append(sources, items)
	}

	if step.MergeMode != MergeModeAppend && step.MergeMode != "" && step.MatchField == "" {
		return nil, fmt.Errorf("step %s: match_field is required for merge mode %q", step.ID, step.MergeMode)
	}

	switch step.MergeMode {
	case MergeModeAppend, "":
		var out []interface{}
		for _, s := range sources {
			out = append(out, s...)
		}
		return out, nil

	case MergeModeMatch:
		return mergeMatch(sources, step.MatchField), nil

	case MergeModeDiff:
		return mergeDiff(sources, step.MatchField), nil

	case MergeModeCombineByField:
		return mergeCombineByField(sources, step.MatchField, step.OnConflict)

	default:
		return nil, fmt.Errorf("step %s: unknown merge mode %q", step.ID, step.MergeMode)
	}
}

// matchFieldValue resolves field (a dotted path) against item, which must
// be a map for the lookup to succeed.
func matchFieldValue(item interface{}, field string) (interface{}, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return resolvePath(m, field)
}

// mergeMatch keeps the elements of sources[0] whose matchField value also
// appears, by matchField value, in every other source.
func mergeMatch(sources [][]interface{}, field string) []interface{} {
	if len(sources) == 0 {
		return nil
	}
	if len(sources) == 1 {
		return sources[0]
	}

	valueSets := make([]map[string]bool, len(sources)-1)
	for i, s := range sources[1:] {
		set := make(map[string]bool, len(s))
		for _, item := range s {
			if v, ok := matchFieldValue(item, field); ok {
				set[stringify(v)] = true
			}
		}
		valueSets[i] = set
	}

	var out []interface{}
	for _, item := range sources[0] {
		v, ok := matchFieldValue(item, field)
		if !ok {
			continue
		}
		key := stringify(v)
		inAll := true
		for _, set := range valueSets {
			if !set[key] {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, item)
		}
	}
	return out
}

// mergeDiff keeps the elements of sources[0] whose matchField value is
// absent from every other source.
func mergeDiff(sources [][]interface{}, field string) []interface{} {
	if len(sources) == 0 {
		return nil
	}
	if len(sources) == 1 {
		return sources[0]
	}

	present := make(map[string]bool)
	for _, s := range sources[1:] {
		for _, item := range s {
			if v, ok := matchFieldValue(item, field); ok {
				present[stringify(v)] = true
			}
		}
	}

	var out []interface{}
	for _, item := range sources[0] {
		v, ok := matchFieldValue(item, field)
		if !ok || !present[stringify(v)] {
			out = append(out, item)
		}
	}
	return out
}

func mergeCombineByField(sources [][]interface{}, field string, conflict ConflictPolicy) (interface{}, error) {
	byKey := make(map[string]map[string]interface{})
	var order []string

	for _, source := range sources {
		for _, item := range source {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			key := stringify(m[field])
			existing, ok := byKey[key]
			if !ok {
				clone := make(map[string]interface{}, len(m))
				for k, v := range m {
					clone[k] = v
				}
				byKey[key] = clone
				order = append(order, key)
				continue
			}
			for k, v := range m {
				if _, has := existing[k]; has && conflict == ConflictKeepFirst {
					continue
				}
				existing[k] = v
			}
		}
	}

	sort.Strings(order)
	out := make([]interface{}, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}

// --- Wait ---

// maxInProcessWait is the longest duration a wait:duration step will block
// the dispatching goroutine for. Anything longer suspends the run instead,
// the same way a webhook or form wait does, so a run is never pinned to a
// worker for the length of a multi-minute sleep.
const maxInProcessWait = 300 * time.Second

func (d *Dispatcher) executeWait(ctx context.Context, step Step, ec *ExecutionContext) (interface{}, error) {
	switch step.WaitMode {
	case WaitModeDuration, "":
		dur, err := time.ParseDuration(step.Duration)
		if err != nil {
			return nil, &werrors.WaitError{Step: step.ID, Mode: string(step.WaitMode), Message: err.Error()}
		}

		if dur > maxInProcessWait {
			resumeAt := time.Now().Add(dur)
			return map[string]interface{}{
				"waiting":     true,
				"mode":        string(WaitModeDuration),
				"resumeAt":    resumeAt,
				"durationMs":  dur.Milliseconds(),
			}, ErrSuspended
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ec.Cancel:
			return nil, &werrors.CancellationError{RunID: ec.RunID, Step: step.ID}
		case <-time.After(dur):
			return map[string]interface{}{"waited": dur.String()}, nil
		}

	case WaitModeWebhook:
		token, err := d.signResumeToken(ec.RunID, step.ID)
		if err != nil {
			return nil, &werrors.WaitError{Step: step.ID, Mode: string(step.WaitMode), Message: err.Error()}
		}
		return map[string]interface{}{
			"resume_token": token,
			"webhook_path": step.WebhookPath,
		}, ErrSuspended

	case WaitModeForm:
		token, err := d.signResumeToken(ec.RunID, step.ID)
		if err != nil {
			return nil, &werrors.WaitError{Step: step.ID, Mode: string(step.WaitMode), Message: err.Error()}
		}
		return map[string]interface{}{
			"resume_token": token,
			"form_path":    step.FormPath,
			"fields":       step.Fields,
		}, ErrSuspended

	default:
		return nil, &werrors.WaitError{Step: step.ID, Mode: string(step.WaitMode), Message: "unknown wait mode"}
	}
}

type resumeClaims struct {
	RunID  string `json:"run_id"`
	StepID string `json:"step_id"`
	jwt.RegisteredClaims
}

// signResumeToken mints a bearer token a caller must present to resume a
// suspended run at exactly the step that suspended it. The signing key is
// per-Dispatcher-instance; a long-lived deployment should persist it
// alongside its state store so tokens survive a process restart.
func (d *Dispatcher) signResumeToken(runID, stepID string) (string, error) {
	if len(d.resumeSigningKey()) == 0 {
		return "", errors.New("no resume signing key configured")
	}
	claims := resumeClaims{
		RunID:  runID,
		StepID: stepID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.resumeSigningKey())
}

func (d *Dispatcher) resumeSigningKey() []byte {
	if d.ResumeSigningKey == nil {
		d.ResumeSigningKey = []byte(uuid.NewString())
	}
	return d.ResumeSigningKey
}

// VerifyResumeToken validates a token minted by signResumeToken and returns
// the run/step identifiers it was bound to.
func (d *Dispatcher) VerifyResumeToken(tokenStr string) (runID, stepID string, err error) {
	claims := &resumeClaims{}
	_, err = jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return d.resumeSigningKey(), nil
	})
	if err != nil {
		return "", "", err
	}
	return claims.RunID, claims.StepID, nil
}
