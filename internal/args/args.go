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

// Package args defines the harness arguments shared by every test
// suite.  Having these at the project level lets the whole suite run
// against one testbed and agent without defining flags per test.
package args

import (
	"flag"

	"github.com/opennetlab/bridgeprofiles/internal/converge"
	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/validate"
)

// Global harness flags.
var (
	Testbed         = flag.String("testbed", "sim", "Testbed binding to run against: sim (in-memory emulation) or netns (Linux network namespaces, requires root).")
	AgentBin        = flag.String("agent_bin", "bridged", "Bridging agent binary launched on every switch. Resolved against PATH unless the value contains a path separator.")
	LogDir          = flag.String("log_dir", "logs", "Directory receiving per-agent and per-workload log files.")
	ConvergenceWait = flag.Duration("convergence_wait", converge.DefaultWait, "Fixed delay between launching the agents and the first validation probe. The protocol must block redundant paths within this window.")
	ProbeCount      = flag.Int("probe_count", testbed.DefaultProbeCount, "Echo requests issued per host pair when probing reachability.")
	ProbeTimeout    = flag.Duration("probe_timeout", testbed.DefaultProbeTimeout, "Upper bound on one reachability probe. Exceeding it counts as total loss for the pair.")
	TrafficPort     = flag.Int("traffic_port", validate.DefaultTrafficPort, "TCP port the throughput server workload listens on.")
	TrafficDuration = flag.Duration("traffic_duration", validate.DefaultTrafficDuration, "Length of the timed bulk transfer in a throughput measurement.")
	TrafficBindWait = flag.Duration("traffic_bind_wait", validate.DefaultBindWait, "Delay between starting the throughput server and connecting the client.")
	ReachprobeBin   = flag.String("reachprobe_bin", "reachprobe", "Prober binary the netns testbed runs inside host namespaces.")
	LoadgenBin      = flag.String("loadgen_bin", "loadgen", "Bulk-transfer binary the netns testbed runs inside host namespaces.")
)
