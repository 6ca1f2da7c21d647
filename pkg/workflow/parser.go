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
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	werrors "github.com/marktoflow/flowcore/pkg/errors"
)

// ParseDefinition unmarshals a YAML-encoded workflow document into a
// Definition and validates the structural invariants the dispatcher relies
// on (every step has an id, every Kind is recognized, and for-each/while/
// map/filter/reduce bodies are non-empty).
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &werrors.ValidationError{Field: "workflow", Message: fmt.Sprintf("invalid YAML: %s", err)}
	}
	if def.ID == "" {
		return nil, &werrors.ValidationError{Field: "id", Message: "workflow id is required"}
	}
	if err := validateSteps(def.Steps); err != nil {
		return nil, err
	}
	return &def, nil
}

func validateSteps(steps []Step) error {
	for i := range steps {
		s := &steps[i]
		if s.ID == "" {
			return &werrors.ValidationError{Field: "steps", Message: fmt.Sprintf("step at index %d is missing an id", i)}
		}
		if !isKnownKind(s.Kind) {
			return &werrors.ValidationError{Field: "steps." + s.ID + ".type", Message: fmt.Sprintf("unknown step kind %q", s.Kind)}
		}

		nested := [][]Step{s.Then, s.Else, s.Default, s.Steps, s.Try, s.Catch, s.Finally}
		for _, group := range nested {
			if err := validateSteps(group); err != nil {
				return err
			}
		}
		for _, branch := range s.Branches {
			if err := validateSteps(branch); err != nil {
				return err
			}
		}
		for _, branch := range s.Cases {
			if err := validateSteps(branch); err != nil {
				return err
			}
		}
	}
	return nil
}

func isKnownKind(k StepKind) bool {
	switch k {
	case StepKindAction, StepKindWorkflow, StepKindIf, StepKindSwitch, StepKindForEach,
		StepKindWhile, StepKindMap, StepKindFilter, StepKindReduce, StepKindParallel,
		StepKindTryCatchFinally, StepKindScript, StepKindWait, StepKindMerge:
		return true
	default:
		return false
	}
}

// ValidateWorkflowPath rejects a sub-workflow reference that is absolute, or
// that escapes its parent directory via "..", or that does not name a YAML
// file. It does not touch the filesystem; callers resolve and symlink-check
// the path separately.
func ValidateWorkflowPath(path string) error {
	if path == "" {
		return &werrors.ValidationError{Field: "workflow", Message: "sub-workflow path is empty"}
	}
	if filepath.IsAbs(path) {
		return &werrors.ValidationError{Field: "workflow", Message: "sub-workflow path must be relative"}
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return &werrors.ValidationError{Field: "workflow", Message: "sub-workflow path must not contain '..'"}
		}
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return &werrors.ValidationError{Field: "workflow", Message: "sub-workflow path must reference a .yaml/.yml file"}
	}
	return nil
}
