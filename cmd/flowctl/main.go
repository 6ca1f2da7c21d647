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

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marktoflow/flowcore/internal/cli"
	"github.com/marktoflow/flowcore/internal/commands/run"
	"github.com/marktoflow/flowcore/internal/commands/validate"
)

// Version information, injected via ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(validate.NewCommand())
	rootCmd.AddCommand(newVersionCommand())

	cli.HandleExitError(rootCmd.Execute())
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the flowctl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, c, b := cli.GetVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "flowctl %s (commit %s, built %s)\n", v, c, b)
			return nil
		},
	}
}
