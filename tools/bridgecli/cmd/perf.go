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

// perfCmd measures TCP throughput between two hosts of a fixture.
var perfCmd = &cobra.Command{
	Use:   "perf FIXTURE CLIENT SERVER",
	Short: "Measure TCP throughput between two hosts of a fixture.",
	Long: `perf reserves the fixture's network, launches the bridging agents,
waits out convergence, then runs a timed bulk transfer from CLIENT to
SERVER and reports the achieved rate.  The run fails when the
measurement cannot complete; the rate itself is reported, not judged.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		r, err := newRunner()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(finish(r.RunPerformance(cmd.Context(), args[0], args[1], args[2])))
	},
}

func init() {
	rootCmd.AddCommand(perfCmd)
}
