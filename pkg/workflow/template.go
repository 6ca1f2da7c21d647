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
	"fmt"
	"strconv"
	"strings"
)

// TemplateContext is the layered lookup environment offered to every
// `{{ ... }}` interpolation: inputs, variables, per-step metadata, and
// (courtesy of buildRenderContext) variables are also spread unqualified
// so `{{x}}` and `{{variables.x}}` both resolve.
type TemplateContext struct {
	Inputs       map[string]interface{}
	Variables    map[string]interface{}
	StepMetadata map[string]map[string]interface{}
}

// buildRenderContext flattens an ExecutionContext into the map a template
// expression walks paths against.
func buildRenderContext(ec *ExecutionContext) map[string]interface{} {
	vars := ec.VariablesSnapshot()

	steps := make(map[string]interface{}, len(ec.StepMetadata))
	for k, v := range ec.StepMetadata {
		steps[k] = v
	}

	root := map[string]interface{}{
		"inputs":      ec.Inputs,
		"variables":   vars,
		"stepMetadata": steps,
	}
	// Spread variables unqualified so bare references like {{x}} work.
	for k, v := range vars {
		root[k] = v
	}
	return root
}

// ResolveTemplates walks value recursively (maps and slices), applying the
// template engine to every string it finds. Resolution is pure: it never
// mutates ec, and it never errors on an undefined path — an undefined
// dotted-path reference renders as empty string (or, for a template string
// that is solely a single `{{ path }}` reference, yields the raw undefined
// value: nil).
func ResolveTemplates(value interface{}, ec *ExecutionContext) (interface{}, error) {
	root := buildRenderContext(ec)
	return resolveValue(value, root)
}

func resolveValue(value interface{}, root map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return renderString(v, root)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			resolved, err := resolveValue(val, root)
			if err != nil {
				return nil, fmt.Errorf("in field %q: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			resolved, err := resolveValue(val, root)
			if err != nil {
				return nil, fmt.Errorf("at index %d: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// renderString renders a single template string. A string that is
// nothing but one `{{ expr }}` reference preserves the referenced value's
// type (including nil for an undefined path); anything else always
// renders to a string, with undefined references substituted as "".
func renderString(s string, root map[string]interface{}) (interface{}, error) {
	if ref, ok := asPureReference(s); ok {
		val, _ := evalExpr(ref, root)
		return val, nil
	}

	var buf strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "{{")
		if start < 0 {
			buf.WriteString(s[i:])
			break
		}
		start += i
		buf.WriteString(s[i:start])

		end := strings.Index(s[start:], "}}")
		if end < 0 {
			// Unterminated tag: treat the rest as literal text rather than error.
			buf.WriteString(s[start:])
			break
		}
		end += start

		expr := strings.TrimSpace(s[start+2 : end])
		val, found := evalExpr(expr, root)
		if found {
			buf.WriteString(stringify(val))
		}
		i = end + 2
	}
	return buf.String(), nil
}

// asPureReference reports whether s is exactly one `{{ ... }}` span with
// no other text before or after it.
func asPureReference(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if len(t) < 5 || !strings.HasPrefix(t, "{{") || !strings.HasSuffix(t, "}}") {
		return "", false
	}
	inner := t[2 : len(t)-2]
	if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// evalExpr evaluates a single `{{ }}` body: a dotted path optionally
// followed by one or more `| filter` pipeline stages. found is false only
// when the base path could not be resolved; filters never turn a found
// value into not-found.
func evalExpr(expr string, root map[string]interface{}) (val interface{}, found bool) {
	stages := strings.Split(expr, "|")
	path := strings.TrimSpace(stages[0])

	val, found = resolvePath(root, path)
	for _, stage := range stages[1:] {
		val = applyFilter(strings.TrimSpace(stage), val)
	}
	return val, found
}

// resolvePath walks a dotted path (with optional [N] array indices) over
// root. Any missing intermediate key, or a non-integer index applied to a
// slice, yields (nil, false) rather than an error.
func resolvePath(root map[string]interface{}, path string) (interface{}, bool) {
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil, false
	}

	segments := splitPathSegments(path)
	var current interface{} = root
	for _, seg := range segments {
		name, index, hasIndex := splitIndex(seg)

		if name != "" {
			m, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			next, ok := m[name]
			if !ok {
				return nil, false
			}
			current = next
		}

		if hasIndex {
			arr, ok := current.([]interface{})
			if !ok {
				return nil, false
			}
			if index < 0 || index >= len(arr) {
				return nil, false
			}
			current = arr[index]
		}
	}
	return current, true
}

// splitPathSegments splits "a.b[2].c" into ["a", "b[2]", "c"].
func splitPathSegments(path string) []string {
	var segs []string
	var cur strings.Builder
	for _, r := range path {
		if r == '.' {
			if cur.Len() > 0 {
				segs = append(segs, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		segs = append(segs, cur.String())
	}
	return segs
}

// splitIndex splits "name[3]" into ("name", 3, true), "[3]" into
// ("", 3, true), and "name" into ("name", 0, false). A non-integer
// bracket body is treated as no index at all (tolerated, not an error).
func splitIndex(seg string) (name string, index int, hasIndex bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 || !strings.HasSuffix(seg, "]") {
		return seg, 0, false
	}
	name = seg[:open]
	inner := seg[open+1 : len(seg)-1]
	n, err := strconv.Atoi(inner)
	if err != nil {
		return name, 0, false
	}
	return name, n, true
}

func applyFilter(stage string, val interface{}) interface{} {
	name, arg := parseFilterCall(stage)
	switch name {
	case "upper":
		return strings.ToUpper(stringify(val))
	case "lower":
		return strings.ToLower(stringify(val))
	case "trim":
		return strings.TrimSpace(stringify(val))
	case "default":
		if val == nil {
			return strings.Trim(arg, `"'`)
		}
		return val
	default:
		return val
	}
}

// parseFilterCall splits "default(\"x\")" into ("default", "x") and a
// bare "upper" into ("upper", "").
func parseFilterCall(stage string) (name, arg string) {
	open := strings.IndexByte(stage, '(')
	if open < 0 || !strings.HasSuffix(stage, ")") {
		return strings.TrimSpace(stage), ""
	}
	return strings.TrimSpace(stage[:open]), strings.TrimSpace(stage[open+1 : len(stage)-1])
}

func stringify(val interface{}) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
