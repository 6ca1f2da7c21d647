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
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/marktoflow/flowcore/internal/jq"
)

// jqPrefix escapes a Map/Filter/Reduce expression field into jq syntax,
// for path expressions expr-lang's dotted-path syntax can't express (e.g.
// `.[] | select(.active)`).
const jqPrefix = "jq:"

var sharedJQ = jq.NewExecutor(0, 0)

// valueEvaluator evaluates an expr-lang expression to an arbitrary value,
// for the non-boolean expressions used by Switch, Map, Filter, Reduce and
// Merge steps. It mirrors pkg/workflow/expression.Evaluator's compiled
// program cache but drops the expr.AsBool() constraint.
type valueEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

var globalValueEvaluator = &valueEvaluator{cache: make(map[string]*vm.Program)}

func (v *valueEvaluator) eval(source string, env map[string]interface{}) (interface{}, error) {
	v.mu.RLock()
	prog, ok := v.cache[source]
	v.mu.RUnlock()

	if !ok {
		var err error
		prog, err = expr.Compile(source, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.cache[source] = prog
		v.mu.Unlock()
	}

	return expr.Run(prog, env)
}

// evalValueExpr evaluates source against the given ExecutionContext, first
// resolving any {{ }} templates embedded in it. A "jq:" prefix escapes into
// gojq path syntax instead of expr-lang, for queries dotted-path templates
// can't express.
func evalValueExpr(source string, ec *ExecutionContext) (interface{}, error) {
	root := buildRenderContext(ec)
	env := map[string]interface{}{
		"inputs":    root["inputs"],
		"variables": root["variables"],
		"steps":     root["stepMetadata"],
	}
	for k, v := range root {
		if k == "inputs" || k == "variables" || k == "stepMetadata" {
			continue
		}
		env[k] = v
	}

	if query, ok := strings.CutPrefix(source, jqPrefix); ok {
		return sharedJQ.Execute(context.Background(), strings.TrimSpace(query), env)
	}

	return globalValueEvaluator.eval(source, env)
}

// toSlice coerces an evaluated value into a []interface{} suitable for
// iteration by For-Each/Map/Filter/Reduce, accepting both expr-lang's native
// slices and JSON-decoded []interface{}.
func toSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case nil:
		return nil, false
	default:
		return nil, false
	}
}
