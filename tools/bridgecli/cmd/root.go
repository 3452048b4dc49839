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

// Package cmd implements the bridgecli commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opennetlab/bridgeprofiles/internal/converge"
	"github.com/opennetlab/bridgeprofiles/internal/suite"
	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/testbed/netnsbind"
	"github.com/opennetlab/bridgeprofiles/internal/testbed/simbind"
	"github.com/opennetlab/bridgeprofiles/internal/validate"
)

// rootCmd represents the base command when called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "bridgecli",
	Short: "Run bridging validation suites against emulated networks.",
	Long: `bridgecli reserves an emulated network for each topology fixture,
launches one bridging agent per switch, waits out convergence, and
validates the result: every host pair reachable without loss, or
measurable TCP throughput between two chosen hosts.

The sim testbed emulates the network in memory and runs anywhere.
The netns testbed builds it from Linux network namespaces and veth
pairs and requires root.`,
}

// Execute runs the selected command.  The context it installs is
// canceled on SIGINT and SIGTERM so a canceled run still releases its
// testbed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("testbed", "sim", "Testbed binding: sim or netns (requires root).")
	pf.String("agent-bin", "bridged", "Bridging agent binary launched on every switch.")
	pf.String("log-dir", "logs", "Directory receiving agent and workload logs.")
	pf.Duration("convergence-wait", converge.DefaultWait, "Fixed delay between agent launch and validation.")
	pf.Int("probe-count", testbed.DefaultProbeCount, "Echo requests per host pair.")
	pf.Duration("probe-timeout", testbed.DefaultProbeTimeout, "Bound on one reachability probe.")
	pf.Int("traffic-port", validate.DefaultTrafficPort, "TCP port for throughput measurements.")
	pf.Duration("traffic-duration", validate.DefaultTrafficDuration, "Length of the timed bulk transfer.")
	pf.Duration("traffic-bind-wait", validate.DefaultBindWait, "Delay between server start and client connect.")
	pf.String("reachprobe-bin", "reachprobe", "Prober binary for the netns testbed.")
	pf.String("loadgen-bin", "loadgen", "Bulk-transfer binary for the netns testbed.")
	pf.String("json", "", "Write the machine-readable suite report to this file.")
	viper.BindPFlags(pf)
}

// newBinding returns the testbed binding selected by the bound flags.
func newBinding() (testbed.Binding, error) {
	switch name := viper.GetString("testbed"); name {
	case "sim":
		return simbind.New(nil), nil
	case "netns":
		return netnsbind.New(&netnsbind.Options{
			ReachprobeBin: viper.GetString("reachprobe-bin"),
			LoadgenBin:    viper.GetString("loadgen-bin"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown testbed %q, want sim or netns", name)
	}
}

// newRunner assembles a suite runner from the bound flags.
func newRunner() (*suite.Runner, error) {
	b, err := newBinding()
	if err != nil {
		return nil, err
	}
	return &suite.Runner{
		Binding:  b,
		AgentBin: viper.GetString("agent-bin"),
		LogDir:   viper.GetString("log-dir"),
		Converge: converge.Fixed(viper.GetDuration("convergence-wait")),
		Probe: testbed.ProbeSpec{
			Count:   viper.GetInt("probe-count"),
			Timeout: viper.GetDuration("probe-timeout"),
		},
		Traffic: validate.TrafficSpec{
			Port:     viper.GetInt("traffic-port"),
			Duration: viper.GetDuration("traffic-duration"),
			BindWait: viper.GetDuration("traffic-bind-wait"),
		},
	}, nil
}

// finish prints the suite report, writes the JSON copy when asked,
// and returns the process exit code.
func finish(rep *suite.Report) int {
	fmt.Println(rep.String())
	if path := viper.GetString("json"); path != "" {
		if err := rep.WriteJSON(path); err != nil {
			fmt.Fprintf(os.Stderr, "cannot write report to %s: %v\n", path, err)
			return 1
		}
	}
	if !rep.Passed {
		return 1
	}
	return 0
}
