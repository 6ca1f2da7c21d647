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

package run

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marktoflow/flowcore/pkg/workflow"
)

// loadInputFile loads inputs from a JSON file, or from stdin when path is "-".
func loadInputFile(path string) (map[string]interface{}, error) {
	var data []byte
	var err error

	if path == "-" {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return nil, fmt.Errorf("--input-file - requires input on stdin (pipe or redirect)")
		}
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
	}

	var inputs map[string]interface{}
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON input: %w", err)
	}
	return inputs, nil
}

// parseInputs merges an optional --input-file with repeated key=value
// --input flags, the flags taking precedence.
func parseInputs(inputArgs []string, inputFile string) (map[string]interface{}, error) {
	var inputs map[string]interface{}
	if inputFile != "" {
		var err error
		inputs, err = loadInputFile(inputFile)
		if err != nil {
			return nil, err
		}
	} else {
		inputs = make(map[string]interface{})
	}

	for _, arg := range inputArgs {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid input format %q (expected key=value)", arg)
		}
		inputs[parts[0]] = parts[1]
	}
	return inputs, nil
}

// applyDefaults fills missing optional inputs from the definition's declared
// defaults and reports which required inputs are still unset.
func applyDefaults(def *workflow.Definition, inputs map[string]interface{}) (missing []workflow.InputDefinition) {
	for _, in := range def.Inputs {
		if _, ok := inputs[in.Name]; ok {
			continue
		}
		if in.Default != nil {
			inputs[in.Name] = in.Default
			continue
		}
		if in.Required {
			missing = append(missing, in)
		}
	}
	return missing
}

// formatMissingInputsError renders missing as a human-readable error body.
func formatMissingInputsError(missing []workflow.InputDefinition) string {
	var sb strings.Builder
	sb.WriteString("Missing required inputs:\n")
	for _, in := range missing {
		sb.WriteString(fmt.Sprintf("  - %s (%s): %s\n", in.Name, in.Type, in.Description))
	}
	sb.WriteString("\nRun with --help-inputs to see all workflow inputs.")
	return sb.String()
}

// printWorkflowInputs lists def's declared inputs for --help-inputs.
func printWorkflowInputs(def *workflow.Definition) {
	if len(def.Inputs) == 0 {
		fmt.Println("This workflow has no defined inputs.")
		return
	}

	fmt.Println("Workflow Inputs:")
	fmt.Println()
	for _, in := range def.Inputs {
		required := "optional"
		if in.Required {
			required = "required"
		}
		fmt.Printf("  %s (%s, %s)\n", in.Name, in.Type, required)
		if in.Description != "" {
			fmt.Printf("    %s\n", in.Description)
		}
		if in.Default != nil {
			fmt.Printf("    Default: %v\n", in.Default)
		}
		if in.Pattern != "" {
			fmt.Printf("    Pattern: %s\n", in.Pattern)
		}
		fmt.Println()
	}
}
