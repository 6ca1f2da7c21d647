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
	"github.com/marktoflow/flowcore/pkg/workflow/expression"
)

// ConditionEvaluator evaluates boolean expressions over an ExecutionContext
// without ever escaping into host-language execution: any `{{ }}`
// references embedded in the condition text are first resolved to literal
// values, then the remaining text is run through a sandboxed expr-lang
// program that can only read the evaluation environment it is given.
type ConditionEvaluator struct {
	eval *expression.Evaluator
}

// NewConditionEvaluator constructs a ConditionEvaluator with its own
// compiled-program cache.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{eval: expression.New()}
}

// Evaluate renders text against ec then evaluates the result as a boolean
// expression. An empty text defaults to true.
func (c *ConditionEvaluator) Evaluate(text string, ec *ExecutionContext) (bool, error) {
	if text == "" {
		return true, nil
	}

	root := buildRenderContext(ec)
	rendered, err := expression.PreprocessTemplate(text, root)
	if err != nil {
		// A reference a human clearly meant as a template failed to
		// resolve; fall back to the raw text so plain expr-lang
		// expressions (no {{ }} at all) keep working unmodified.
		rendered = text
	}

	evalCtx := map[string]interface{}{
		"inputs": root["inputs"],
		"steps":  root["stepMetadata"],
	}
	if vars, ok := root["variables"].(map[string]interface{}); ok {
		evalCtx["variables"] = vars
	}
	return c.eval.Evaluate(rendered, evalCtx)
}
