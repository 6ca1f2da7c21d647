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

// Package cli wires the flowctl root command: global flags, version
// metadata, and exit-code handling shared by every subcommand.
package cli

import (
	"github.com/spf13/cobra"
)

// Flags holds the global, persistent flag values every subcommand reads.
var Flags = struct {
	Verbose bool
	Quiet   bool
	JSON    bool
	Config  string
}{}

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// SetVersion records build-time version metadata, set from main via ldflags.
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns the recorded build-time version metadata.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// NewRootCommand creates the root flowctl command with its persistent flags.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowctl",
		Short: "flowctl - declarative workflow execution",
		Long: `flowctl runs and inspects declarative, YAML-defined workflows: a
directed sequence of steps (actions, branches, loops, sub-workflows) executed
by the flowcore engine.

Run 'flowctl run <workflow.yaml>' to execute a workflow.
Run 'flowctl validate <workflow.yaml>' to check one without running it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&Flags.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(&Flags.Quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(&Flags.JSON, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(&Flags.Config, "config", "", "Path to config file (default: ./flowcore.yaml)")

	return cmd
}
