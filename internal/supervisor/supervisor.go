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

// Package supervisor owns the lifecycle of the bridging agent
// processes: one agent per switch, launched inside the switch's
// execution context with its output in a per-switch log file, and
// terminated as a group at teardown.  Stop tolerates agents that have
// already exited and is safe to call on every exit path.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/golang/glog"

	"github.com/opennetlab/bridgeprofiles/internal/testbed"
)

// Config locates the agent binary and its log destination.
type Config struct {
	// AgentBin is the agent binary path, or a bare name resolved
	// through PATH.  The agent is invoked with the switch identifier
	// as its only argument.
	AgentBin string
	// LogDir receives one "<switch>-log.txt" file per switch; it is
	// created if absent.  Defaults to "logs".
	LogDir string
}

// LaunchError reports that an agent could not be started.  It is an
// infrastructure failure: the fixture aborts before validation, but
// teardown of whatever was partially started still runs.
type LaunchError struct {
	// Switch is the switch whose launch failed, or empty when the
	// failure precedes any launch (bad binary path, log directory).
	Switch string
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Switch == "" {
		return fmt.Sprintf("agent launch: %v", e.Err)
	}
	return fmt.Sprintf("launching agent on %s: %v", e.Switch, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// State is an agent's lifecycle state.
type State int

const (
	// NotStarted means no agent was bound to the switch.
	NotStarted State = iota
	// Running means the agent process was launched and not yet
	// stopped through the supervisor.
	Running
	// Stopped means the supervisor terminated the agent.
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "not_started"
	}
}

type agent struct {
	proc  testbed.Process
	state State
}

// Agents tracks the launched agent processes of one live network,
// plus any auxiliary processes adopted for teardown.
type Agents struct {
	mu      sync.Mutex
	agents  map[string]*agent
	order   []string
	aux     map[string]testbed.Process
	stopped bool
}

// Start launches one agent per switch, in the topology's
// deterministic order.  On failure the returned Agents holds whatever
// was already launched so the caller can still tear it down; the
// error is always a *LaunchError.
func Start(ctx context.Context, net *testbed.Network, cfg Config) (*Agents, error) {
	a := &Agents{agents: make(map[string]*agent), aux: make(map[string]testbed.Process)}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
	if cfg.AgentBin == "" {
		return a, &LaunchError{Err: errors.New("agent binary path is empty")}
	}
	if _, err := exec.LookPath(cfg.AgentBin); err != nil {
		return a, &LaunchError{Err: err}
	}
	if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
		return a, &LaunchError{Err: err}
	}

	for _, sw := range net.Switches() {
		if err := ctx.Err(); err != nil {
			return a, &LaunchError{Switch: sw.Name(), Err: err}
		}
		logPath := filepath.Join(cfg.LogDir, sw.Name()+"-log.txt")
		proc, err := sw.Start([]string{cfg.AgentBin, sw.Name()}, logPath)
		if err != nil {
			return a, &LaunchError{Switch: sw.Name(), Err: err}
		}
		a.agents[sw.Name()] = &agent{proc: proc, state: Running}
		a.order = append(a.order, sw.Name())
		glog.V(1).Infof("Started agent on %s, log %s", sw.Name(), logPath)
	}
	glog.Infof("Started %d bridging agents", len(a.order))
	return a, nil
}

// Adopt registers an auxiliary long-running process, such as the
// throughput server workload, so that Stop reaps it with the agents.
func (a *Agents) Adopt(name string, p testbed.Process) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aux[name] = p
}

// Stop terminates every adopted process and every running agent.
// Agents that already exited are treated as stopped; calling Stop
// again is a no-op.
func (a *Agents) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.stopped = true

	var errs []error
	for name, p := range a.aux {
		if err := p.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", name, err))
		}
	}
	for _, sw := range a.order {
		ag := a.agents[sw]
		if err := ag.proc.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping agent on %s: %w", sw, err))
			continue
		}
		ag.state = Stopped
	}
	if len(a.order) > 0 {
		glog.Infof("Stopped %d bridging agents", len(a.order))
	}
	return errors.Join(errs...)
}

// State reports the lifecycle state of the named switch's agent.
func (a *Agents) State(sw string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if ag, ok := a.agents[sw]; ok {
		return ag.state
	}
	return NotStarted
}

// Running lists switches whose agents are in the running state, in
// launch order.
func (a *Agents) Running() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, sw := range a.order {
		if a.agents[sw].state == Running {
			out = append(out, sw)
		}
	}
	return out
}
