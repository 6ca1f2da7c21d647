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

import "context"

// StepExecutorContext is handed to every leaf action invocation: the
// effective permissions (workflow permissions intersected with step
// permissions), the base path for resolving relative file references, and
// identifying metadata for logging/tracing.
type StepExecutorContext struct {
	RunID       string
	StepID      string
	BasePath    string
	Permissions *PermissionDefinition
}

// ActionFunc is the contract the engine uses to invoke a leaf action
// (component C). It is provided by the adapter layer — the engine never
// interprets the returned value beyond binding it into a variable.
type ActionFunc func(ctx context.Context, sec StepExecutorContext, inputs map[string]interface{}) (interface{}, error)

// ActionRegistry resolves an action name (e.g. "log", "http.get") to the
// function that implements it. Consumed exclusively by the Step
// Dispatcher; never implemented inside this package.
type ActionRegistry interface {
	Load(name string) (ActionFunc, error)
	Has(name string) bool
}

// SubworkflowLoader parses a sub-workflow file referenced by a
// StepKindWorkflow step. Implemented by pkg/workflow/subworkflow to avoid
// an import cycle (this package cannot import its own subpackage).
type SubworkflowLoader interface {
	Load(parentDir, path string, loadCtx interface{}) (*Definition, error)
}

var defaultSubworkflowLoaderFactory func() SubworkflowLoader

// SetDefaultSubworkflowLoaderFactory registers the concrete loader
// constructor. Called from subworkflow's init() so NewExecutor can obtain
// a loader without an import-cycle-inducing direct dependency.
func SetDefaultSubworkflowLoaderFactory(factory func() SubworkflowLoader) {
	defaultSubworkflowLoaderFactory = factory
}

// NewDefaultSubworkflowLoader builds a SubworkflowLoader using the factory
// registered by importing pkg/workflow/subworkflow. Returns nil if that
// package was never imported, so callers that don't need sub-workflow
// support aren't forced to pull it in.
func NewDefaultSubworkflowLoader() SubworkflowLoader {
	if defaultSubworkflowLoaderFactory == nil {
		return nil
	}
	return defaultSubworkflowLoaderFactory()
}
