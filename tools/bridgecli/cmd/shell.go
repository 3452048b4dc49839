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
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opennetlab/bridgeprofiles/internal/supervisor"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

// shellCmd holds a live network open for manual inspection.
var shellCmd = &cobra.Command{
	Use:   "shell FIXTURE",
	Short: "Hold a live network with running agents until interrupted.",
	Long: `Shell reserves the fixture's network, launches the bridging agents,
prints the reserved hosts and switches, and then holds the network
open.  On the netns testbed the namespaces stay live, so hosts and
switches can be inspected with ip netns exec while the agents
converge.  Interrupt to stop the agents and release the network.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(ctx context.Context, fixture string) error {
	topo, err := topology.ParseFile(fixture)
	if err != nil {
		return err
	}
	b, err := newBinding()
	if err != nil {
		return err
	}
	net, err := b.Reserve(ctx, topo)
	if err != nil {
		return err
	}
	// Teardown runs on a fresh context: by the time the deferred
	// calls fire, the command context is usually already canceled.
	defer func() {
		if err := b.Release(context.Background()); err != nil {
			glog.Errorf("shell %s: release: %v", topo.Name(), err)
		}
	}()

	agents, err := supervisor.Start(ctx, net, supervisor.Config{
		AgentBin: viper.GetString("agent-bin"),
		LogDir:   viper.GetString("log-dir"),
	})
	defer func() {
		if err := agents.Stop(context.Background()); err != nil {
			glog.Errorf("shell %s: stopping agents: %v", topo.Name(), err)
		}
	}()
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s on the %s testbed, reservation %s\n",
		topo.Name(), topo.Summary(), b.Name(), net.ReservationID())
	for _, h := range net.Hosts() {
		fmt.Printf("  host   %-10s %s\n", h.Name(), h.Addr())
	}
	for _, sw := range net.Switches() {
		fmt.Printf("  switch %-10s %s\n", sw.Name(), strings.Join(sw.Ports(), " "))
	}
	fmt.Printf("%d agents running, interrupt to tear down\n", len(agents.Running()))

	<-ctx.Done()
	fmt.Println("tearing down")
	return nil
}
