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

// Definition is the read-only, parser-produced representation of a
// workflow. It is never mutated during execution.
type Definition struct {
	ID      string                     `yaml:"id" json:"id"`
	Name    string                     `yaml:"name" json:"name"`
	Version string                     `yaml:"version,omitempty" json:"version,omitempty"`
	Inputs  []InputDefinition          `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Tools   map[string]ToolBinding     `yaml:"tools,omitempty" json:"tools,omitempty"`
	Outputs []OutputDefinition         `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Steps   []Step                     `yaml:"steps" json:"steps"`
}

// InputDefinition declares one workflow input parameter.
type InputDefinition struct {
	Name        string      `yaml:"name" json:"name"`
	Type        string      `yaml:"type" json:"type"`
	Required    bool        `yaml:"required,omitempty" json:"required,omitempty"`
	Default     interface{} `yaml:"default,omitempty" json:"default,omitempty"`
	Pattern     string      `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
}

// OutputDefinition declares one workflow-level output, computed from an
// expression over the final ExecutionContext.
type OutputDefinition struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// ToolBinding maps a workflow-declared tool name to an adapter config,
// consumed exclusively by the Action Executor / Adapter Registry (§6,
// external to this package).
type ToolBinding struct {
	Adapter string                 `yaml:"adapter" json:"adapter"`
	Config  map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
}

// StepKind discriminates the tagged variant a Step carries. Leaf kinds
// (Action, Workflow) invoke external work; every other kind is a
// control-flow construct handled by its own executor in this package.
type StepKind string

const (
	StepKindAction   StepKind = "action"
	StepKindWorkflow StepKind = "workflow"

	StepKindIf               StepKind = "if"
	StepKindSwitch            StepKind = "switch"
	StepKindForEach           StepKind = "for_each"
	StepKindWhile             StepKind = "while"
	StepKindMap               StepKind = "map"
	StepKindFilter            StepKind = "filter"
	StepKindReduce            StepKind = "reduce"
	StepKindParallel          StepKind = "parallel"
	StepKindTryCatchFinally   StepKind = "try_catch_finally"
	StepKindScript            StepKind = "script"
	StepKindWait              StepKind = "wait"
	StepKindMerge             StepKind = "merge"
)

// ErrorHandlingAction is the per-item/per-iteration failure policy for
// For-Each and While bodies.
type ErrorHandlingAction string

const (
	// ErrorActionStop aborts the loop immediately on the first child failure
	// (the default).
	ErrorActionStop ErrorHandlingAction = "stop"
	// ErrorActionContinue absorbs the failure and advances to the next
	// item/iteration.
	ErrorActionContinue ErrorHandlingAction = "continue"
)

// ErrorHandling configures how a For-Each or While body reacts to a
// child-step failure.
type ErrorHandling struct {
	Action ErrorHandlingAction `yaml:"action,omitempty" json:"action,omitempty"`
}

// RetryPolicy configures step-level retry with exponential backoff.
type RetryPolicy struct {
	MaxRetries int     `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	BaseDelay  string  `yaml:"base_delay,omitempty" json:"base_delay,omitempty"`
	MaxDelay   string  `yaml:"max_delay,omitempty" json:"max_delay,omitempty"`
	Multiplier float64 `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
}

// WaitMode selects the suspension semantics of a Wait step.
type WaitMode string

const (
	WaitModeDuration WaitMode = "duration"
	WaitModeWebhook  WaitMode = "webhook"
	WaitModeForm     WaitMode = "form"
)

// FieldDescriptor describes one field of a wait:form step.
type FieldDescriptor struct {
	Type     string `yaml:"type" json:"type"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Label    string `yaml:"label,omitempty" json:"label,omitempty"`
}

// MergeMode selects how Merge combines its resolved sources.
type MergeMode string

const (
	MergeModeAppend        MergeMode = "append"
	MergeModeMatch         MergeMode = "match"
	MergeModeDiff          MergeMode = "diff"
	MergeModeCombineByField MergeMode = "combine_by_field"
)

// ConflictPolicy resolves field collisions for MergeModeCombineByField.
type ConflictPolicy string

const (
	ConflictKeepFirst ConflictPolicy = "keep_first"
	ConflictKeepLast  ConflictPolicy = "keep_last"
)

// Step is a single node in the workflow tree. It is a flat, tagged-variant
// struct: Kind selects which of the kind-specific field groups below are
// populated, and Dispatch (dispatcher.go) is the single function that
// pattern-matches on Kind to route to the right executor — there is no
// runtime type-guard chain anywhere in this package.
type Step struct {
	ID             string   `yaml:"id" json:"id"`
	Name           string   `yaml:"name,omitempty" json:"name,omitempty"`
	Kind           StepKind `yaml:"type" json:"type"`
	OutputVariable string   `yaml:"output,omitempty" json:"output,omitempty"`

	// Conditions gate whether this step runs at all; any false skips it.
	Conditions []string `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	Retry       *RetryPolicy         `yaml:"retry,omitempty" json:"retry,omitempty"`
	Timeout     string               `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Permissions *PermissionDefinition `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	RateLimit   *RateLimitConfig     `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`

	// --- Leaf: action ---
	Action       string                 `yaml:"action,omitempty" json:"action,omitempty"`
	ActionInputs map[string]interface{} `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// --- Leaf: workflow (sub-invocation) ---
	Workflow       string                 `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	WorkflowInputs map[string]interface{} `yaml:"workflow_inputs,omitempty" json:"workflow_inputs,omitempty"`

	// --- If ---
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
	Then      []Step `yaml:"then,omitempty" json:"then,omitempty"`
	Else      []Step `yaml:"else,omitempty" json:"else,omitempty"`

	// --- Switch ---
	Expression string          `yaml:"expression,omitempty" json:"expression,omitempty"`
	Cases      map[string][]Step `yaml:"cases,omitempty" json:"cases,omitempty"`
	Default    []Step          `yaml:"default,omitempty" json:"default,omitempty"`

	// --- For-Each (incl. batched), While, Map, Filter, Reduce share Items/Steps ---
	Items         string `yaml:"items,omitempty" json:"items,omitempty"`
	ItemVariable  string `yaml:"item_variable,omitempty" json:"item_variable,omitempty"`
	IndexVariable string `yaml:"index_variable,omitempty" json:"index_variable,omitempty"`
	Steps         []Step `yaml:"steps,omitempty" json:"steps,omitempty"`

	BatchSize           int    `yaml:"batch_size,omitempty" json:"batch_size,omitempty"`
	PauseBetweenBatches string `yaml:"pause_between_batches,omitempty" json:"pause_between_batches,omitempty"`

	// MaxIterations caps a while-loop's iteration count. nil means "use the
	// default cap"; an explicit 0 means the loop must not run at all.
	MaxIterations *int `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`

	ErrorHandlingPolicy *ErrorHandling `yaml:"error_handling,omitempty" json:"error_handling,omitempty"`

	// --- Map ---
	// Expression (shared field above) is evaluated per item.

	// --- Reduce ---
	AccumulatorVariable string      `yaml:"accumulator_variable,omitempty" json:"accumulator_variable,omitempty"`
	InitialValue        interface{} `yaml:"initial_value,omitempty" json:"initial_value,omitempty"`

	// --- Parallel ---
	Branches      [][]Step `yaml:"branches,omitempty" json:"branches,omitempty"`
	MaxConcurrent int      `yaml:"max_concurrent,omitempty" json:"max_concurrent,omitempty"`
	OnError       string   `yaml:"on_error,omitempty" json:"on_error,omitempty"`

	// --- Try/Catch/Finally ---
	Try     []Step `yaml:"try,omitempty" json:"try,omitempty"`
	Catch   []Step `yaml:"catch,omitempty" json:"catch,omitempty"`
	Finally []Step `yaml:"finally,omitempty" json:"finally,omitempty"`

	// --- Script ---
	Code string `yaml:"code,omitempty" json:"code,omitempty"`

	// --- Wait ---
	WaitMode       WaitMode                   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Duration       string                     `yaml:"duration,omitempty" json:"duration,omitempty"`
	WebhookPath    string                     `yaml:"webhook_path,omitempty" json:"webhook_path,omitempty"`
	Fields         map[string]FieldDescriptor `yaml:"fields,omitempty" json:"fields,omitempty"`
	FormPath       string                     `yaml:"form_path,omitempty" json:"form_path,omitempty"`

	// --- Merge ---
	Sources    []string       `yaml:"sources,omitempty" json:"sources,omitempty"`
	MergeMode  MergeMode      `yaml:"merge_mode,omitempty" json:"merge_mode,omitempty"`
	MatchField string         `yaml:"match_field,omitempty" json:"match_field,omitempty"`
	OnConflict ConflictPolicy `yaml:"on_conflict,omitempty" json:"on_conflict,omitempty"`
}

// IsLeaf reports whether Kind invokes external work rather than recursing
// into nested steps via the dispatcher.
func (s Step) IsLeaf() bool {
	return s.Kind == StepKindAction || s.Kind == StepKindWorkflow
}

// PermissionDefinition constrains what a step (or the workflow as a whole)
// may access. Step-level permissions intersect with workflow-level ones
// via permissions.Merge; the more restrictive setting wins.
type PermissionDefinition struct {
	Paths   *PathPermissions    `yaml:"paths,omitempty" json:"paths,omitempty"`
	Network *NetworkPermissions `yaml:"network,omitempty" json:"network,omitempty"`
	Secrets *SecretPermissions  `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	Tools   *ToolPermissions    `yaml:"tools,omitempty" json:"tools,omitempty"`
	Shell   *ShellPermissions   `yaml:"shell,omitempty" json:"shell,omitempty"`
	Env     *EnvPermissions     `yaml:"env,omitempty" json:"env,omitempty"`
}

// PathPermissions constrains filesystem access by glob pattern (doublestar
// syntax, so "**/*.txt" etc. are valid).
type PathPermissions struct {
	Read  []string `yaml:"read,omitempty" json:"read,omitempty"`
	Write []string `yaml:"write,omitempty" json:"write,omitempty"`
}

// NetworkPermissions constrains outbound network access by host pattern.
// AllowedHosts empty means all hosts are allowed except BlockedHosts.
type NetworkPermissions struct {
	AllowedHosts []string `yaml:"allowed_hosts,omitempty" json:"allowed_hosts,omitempty"`
	BlockedHosts []string `yaml:"blocked_hosts,omitempty" json:"blocked_hosts,omitempty"`
}

// SecretPermissions constrains which named secrets a step's action may
// resolve.
type SecretPermissions struct {
	Allowed []string `yaml:"allowed,omitempty" json:"allowed,omitempty"`
}

// ToolPermissions constrains which adapter tools a step may invoke.
type ToolPermissions struct {
	Allowed []string `yaml:"allowed,omitempty" json:"allowed,omitempty"`
	Blocked []string `yaml:"blocked,omitempty" json:"blocked,omitempty"`
}

// ShellPermissions gates whether a step may invoke the shell action, and
// if so which command prefixes are allowed.
type ShellPermissions struct {
	Enabled         *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	AllowedCommands []string `yaml:"allowed_commands,omitempty" json:"allowed_commands,omitempty"`
}

// EnvPermissions constrains which environment variable names a step's
// action may read.
type EnvPermissions struct {
	Inherit bool     `yaml:"inherit,omitempty" json:"inherit,omitempty"`
	Allowed []string `yaml:"allowed,omitempty" json:"allowed,omitempty"`
}
