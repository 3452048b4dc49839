// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// checkCmd validates all-pairs reachability over topology fixtures.
var checkCmd = &cobra.Command{
	Use:   "check FIXTURE [FIXTURE...]",
	Short: "Validate all-pairs reachability on each fixture.",
	Long: `check reserves a network for each fixture in turn, launches the
bridging agents, waits out convergence, and probes every host pair.
A fixture passes when all pairs complete with zero loss.  The exit
status is zero only when every fixture passes.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r, err := newRunner()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(finish(r.RunCorrectness(cmd.Context(), args)))
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
