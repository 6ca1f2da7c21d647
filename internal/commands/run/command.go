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

// Package run implements "flowctl run": parse a workflow definition, start
// it on an in-process Execution Manager, and report its final record.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/marktoflow/flowcore/internal/action/builtin"
	"github.com/marktoflow/flowcore/internal/cli"
	"github.com/marktoflow/flowcore/internal/controller/backend/memory"
	"github.com/marktoflow/flowcore/internal/controller/manager"
	_ "github.com/marktoflow/flowcore/pkg/workflow/subworkflow" // registers the default sub-workflow loader
	"github.com/marktoflow/flowcore/pkg/workflow"
)

// pollInterval is how often a running execution's status is polled while
// flowctl run waits for it to reach a terminal state.
const pollInterval = 50 * time.Millisecond

// NewCommand creates the run command.
func NewCommand() *cobra.Command {
	var (
		inputArgs   []string
		inputFile   string
		outputFile  string
		timeoutStr  string
		dryRun      bool
		helpInputs  bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow",
		Args:  cobra.ExactArgs(1),
		Long: `Run parses a workflow definition and executes it to completion,
reporting the final execution record (status, outputs, and any error).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], runOptions{
				inputArgs:  inputArgs,
				inputFile:  inputFile,
				outputFile: outputFile,
				timeoutStr: timeoutStr,
				dryRun:     dryRun,
				helpInputs: helpInputs,
			})
		},
	}

	cmd.Flags().StringSliceVarP(&inputArgs, "input", "i", nil, "Workflow input in key=value format (repeatable)")
	cmd.Flags().StringVar(&inputFile, "input-file", "", "JSON file with inputs (use '-' for stdin)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the final execution record to file instead of stdout")
	cmd.Flags().StringVar(&timeoutStr, "timeout", "", "Maximum time to wait for the workflow to finish (e.g. \"5m\")")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Parse and validate the workflow, then exit without running it")
	cmd.Flags().BoolVar(&helpInputs, "help-inputs", false, "List the workflow's declared inputs and exit")

	return cmd
}

type runOptions struct {
	inputArgs  []string
	inputFile  string
	outputFile string
	timeoutStr string
	dryRun     bool
	helpInputs bool
}

func runWorkflow(cmd *cobra.Command, path string, opts runOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return cli.NewInvalidWorkflowError(fmt.Sprintf("reading %s", path), err)
	}

	def, err := workflow.ParseDefinition(data)
	if err != nil {
		return cli.NewInvalidWorkflowError(fmt.Sprintf("parsing %s", path), err)
	}

	if opts.helpInputs {
		printWorkflowInputs(def)
		return nil
	}

	inputs, err := parseInputs(opts.inputArgs, opts.inputFile)
	if err != nil {
		return cli.NewMissingInputError("parsing inputs", err)
	}
	if missing := applyDefaults(def, inputs); len(missing) > 0 {
		return cli.NewMissingInputError(formatMissingInputsError(missing), nil)
	}

	if opts.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %d step(s) validated, not executed\n", def.ID, def.Name, len(def.Steps))
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeoutStr != "" {
		d, err := time.ParseDuration(opts.timeoutStr)
		if err != nil {
			return cli.NewMissingInputError(fmt.Sprintf("invalid --timeout %q", opts.timeoutStr), err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	registry, err := builtin.NewRegistry(nil)
	if err != nil {
		return cli.NewExecutionError("building action registry", err)
	}

	events := workflow.NewEventSink()
	dispatcher := workflow.NewDispatcher(registry, workflow.NewDefaultSubworkflowLoader(), events, filepath.Dir(path))
	be := memory.New()
	mgr := manager.New(manager.Config{MaxParallel: 10}, be, dispatcher, nil)

	rec, err := mgr.StartExecution(ctx, def, inputs, nil)
	if err != nil {
		return cli.NewExecutionError("starting execution", err)
	}

	rec, err = waitForTerminal(ctx, mgr, rec.RunID)
	if err != nil {
		return cli.NewExecutionError("waiting for execution", err)
	}

	if err := reportExecution(cmd, rec, opts.outputFile); err != nil {
		return err
	}
	if rec.Status == workflow.RunStatusFailed {
		return cli.NewExecutionError(fmt.Sprintf("workflow %s failed", rec.RunID), fmt.Errorf("%s", rec.Error))
	}
	return nil
}

// waitForTerminal polls the manager until runID's status is terminal or ctx
// is done. StartExecution runs the workflow in a background goroutine, so
// polling GetExecutionStatus is how a synchronous CLI invocation observes
// completion.
func waitForTerminal(ctx context.Context, mgr *manager.Manager, runID string) (*workflow.ExecutionRecord, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		rec, err := mgr.GetExecutionStatus(runID)
		if err != nil {
			return nil, err
		}
		switch rec.Status {
		case workflow.RunStatusCompleted, workflow.RunStatusFailed, workflow.RunStatusCancelled:
			return rec, nil
		}

		select {
		case <-ctx.Done():
			_ = mgr.CancelExecution(runID)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func reportExecution(cmd *cobra.Command, rec *workflow.ExecutionRecord, outputFile string) error {
	var data []byte
	var err error
	if cli.Flags.JSON {
		data, err = json.MarshalIndent(rec, "", "  ")
	} else {
		data = []byte(formatExecutionRecord(rec))
	}
	if err != nil {
		return cli.NewExecutionError("formatting execution record", err)
	}

	if outputFile != "" {
		return os.WriteFile(outputFile, append(data, '\n'), 0o644)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func formatExecutionRecord(rec *workflow.ExecutionRecord) string {
	status := string(rec.Status)
	summary := fmt.Sprintf("run %s: %s (%d/%d steps)", rec.RunID, status, rec.CurrentStep, rec.TotalSteps)
	if rec.Error != "" {
		summary += fmt.Sprintf("\nerror: %s", rec.Error)
	}
	for name, value := range rec.Outputs {
		summary += fmt.Sprintf("\n%s: %v", name, value)
	}
	return summary
}
