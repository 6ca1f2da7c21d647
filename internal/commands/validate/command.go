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

// Package validate implements "flowctl validate": check that a workflow
// file has valid YAML syntax and conforms to the workflow schema, without
// executing it.
package validate

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marktoflow/flowcore/internal/cli"
	"github.com/marktoflow/flowcore/pkg/workflow"
)

// summary is the JSON shape printed by --json; the human-readable path
// renders the same fields as plain text.
type summary struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Steps   int      `json:"steps"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
	Valid   bool     `json:"valid"`
}

// NewCommand creates the validate command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate workflow YAML syntax and schema",
		Args:  cobra.ExactArgs(1),
		Long: `Validate checks that a workflow file has valid YAML syntax and conforms
to the workflow schema: every step declares a recognized type, required
fields are present, and nested step groups (then/else/cases/steps) are
structurally sound. It does not execute the workflow.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateWorkflow(cmd, args[0])
		},
	}
	return cmd
}

func validateWorkflow(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cli.NewInvalidWorkflowError(fmt.Sprintf("reading %s", path), err)
	}

	def, err := workflow.ParseDefinition(data)
	if err != nil {
		if cli.Flags.JSON {
			enc, _ := json.MarshalIndent(map[string]interface{}{
				"valid": false,
				"error": err.Error(),
			}, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(enc))
		}
		return cli.NewInvalidWorkflowError(fmt.Sprintf("%s is not a valid workflow", path), err)
	}

	s := summary{
		ID:      def.ID,
		Name:    def.Name,
		Version: def.Version,
		Steps:   len(def.Steps),
		Valid:   true,
	}
	for _, in := range def.Inputs {
		s.Inputs = append(s.Inputs, in.Name)
	}
	for _, out := range def.Outputs {
		s.Outputs = append(s.Outputs, out.Name)
	}

	if cli.Flags.JSON {
		enc, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return cli.NewExecutionError("formatting validation result", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(enc))
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
	fmt.Fprintf(cmd.OutOrStdout(), "  id: %s\n  name: %s\n  version: %s\n  steps: %d\n", s.ID, s.Name, s.Version, s.Steps)
	if len(s.Inputs) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  inputs: %v\n", s.Inputs)
	}
	if len(s.Outputs) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  outputs: %v\n", s.Outputs)
	}
	return nil
}
