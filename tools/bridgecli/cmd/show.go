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
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/exp/maps"

	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

// showCmd groups the inspection subcommands.  They parse fixtures
// without reserving a testbed.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Inspect topology fixtures without reserving a testbed.",
}

// showTopologyCmd summarizes parsed fixtures.
var showTopologyCmd = &cobra.Command{
	Use:   "topology FIXTURE [FIXTURE...]",
	Short: "Summarize parsed topology fixtures.",
	Long: `show topology parses each fixture and prints its size, connectivity,
and per-switch degree.  With --document the canonical re-serialized
document follows, which is also how malformed fixtures are diagnosed
before a suite run.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		document, _ := cmd.Flags().GetBool("document")
		for _, path := range args {
			topo, err := topology.ParseFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				os.Exit(1)
			}
			printTopology(topo, document)
		}
	},
}

func printTopology(topo *topology.Topology, document bool) {
	fmt.Printf("%s: %s\n", topo.Name(), topo.Summary())
	fmt.Printf("  connected %v, redundant links %d, host pairs %d\n",
		topo.Connected(), topo.RedundantLinks(), len(topo.HostPairs()))

	degrees := make(map[string]int, len(topo.Switches()))
	for _, s := range topo.Switches() {
		degrees[s] = topo.Degree(s)
	}
	names := maps.Keys(degrees)
	topology.SortIDs(names)
	parts := make([]string, 0, len(names))
	for _, s := range names {
		parts = append(parts, fmt.Sprintf("%s:%d", s, degrees[s]))
	}
	fmt.Printf("  switch degrees %s\n", strings.Join(parts, " "))

	if document {
		data, err := topo.Marshal(topology.JSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot re-serialize %s: %v\n", topo.Name(), err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showTopologyCmd)
	showTopologyCmd.Flags().BoolP("document", "d", false, "Print the canonical re-serialized document after the summary.")
}
