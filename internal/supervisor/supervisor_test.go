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

package supervisor

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/testbed/simbind"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

// agentBin returns a path that is guaranteed to exist: the test
// binary itself.  The simulated testbed never executes it.
func agentBin(t *testing.T) string {
	t.Helper()
	bin, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable(): %v", err)
	}
	return bin
}

func reserve(t *testing.T, b *simbind.Bind, topo *topology.Topology) *testbed.Network {
	t.Helper()
	net, err := b.Reserve(context.Background(), topo)
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	t.Cleanup(func() { b.Release(context.Background()) })
	return net
}

func TestStartAndStop(t *testing.T) {
	b := simbind.New(nil)
	net := reserve(t, b, topology.Triangle())

	agents, err := Start(context.Background(), net, Config{AgentBin: agentBin(t), LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start() returned unexpected error: %v", err)
	}
	want := []string{"s1", "s2", "s3"}
	if diff := cmp.Diff(want, agents.Running()); diff != "" {
		t.Errorf("Running() returned diff (-want +got):\n%s", diff)
	}
	for _, sw := range want {
		if got := agents.State(sw); got != Running {
			t.Errorf("State(%s) got %v, want running", sw, got)
		}
	}

	if err := agents.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() returned unexpected error: %v", err)
	}
	for _, sw := range want {
		if got := agents.State(sw); got != Stopped {
			t.Errorf("State(%s) after Stop() got %v, want stopped", sw, got)
		}
	}
	if got := agents.Running(); len(got) != 0 {
		t.Errorf("Running() after Stop() got %v, want none", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	b := simbind.New(nil)
	net := reserve(t, b, topology.Single(2))

	agents, err := Start(context.Background(), net, Config{AgentBin: agentBin(t), LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start() returned unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := agents.Stop(context.Background()); err != nil {
			t.Errorf("Stop() call %d returned unexpected error: %v", i+1, err)
		}
	}
}

func TestStopToleratesExitedAgent(t *testing.T) {
	b := simbind.New(nil)
	net := reserve(t, b, topology.Triangle())

	agents, err := Start(context.Background(), net, Config{AgentBin: agentBin(t), LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start() returned unexpected error: %v", err)
	}
	// Release kills every agent process out from under the
	// supervisor; Stop must treat them as already terminated.
	b.Release(context.Background())
	if err := agents.Stop(context.Background()); err != nil {
		t.Errorf("Stop() with exited agents returned unexpected error: %v", err)
	}
	for _, sw := range []string{"s1", "s2", "s3"} {
		if got := agents.State(sw); got != Stopped {
			t.Errorf("State(%s) got %v, want stopped", sw, got)
		}
	}
}

func TestStartMissingBinary(t *testing.T) {
	b := simbind.New(nil)
	net := reserve(t, b, topology.Single(2))

	agents, err := Start(context.Background(), net, Config{AgentBin: "/no/such/agentd", LogDir: t.TempDir()})
	if err == nil {
		t.Fatal("Start() with a missing binary succeeded, want LaunchError")
	}
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("Start() returned %T, want *LaunchError", err)
	}
	if le.Switch != "" {
		t.Errorf("LaunchError.Switch got %q, want empty: failure precedes any launch", le.Switch)
	}
	if got := agents.State("s1"); got != NotStarted {
		t.Errorf("State(s1) got %v, want not_started", got)
	}
	// Teardown of the empty set must still be safe.
	if err := agents.Stop(context.Background()); err != nil {
		t.Errorf("Stop() after failed Start() returned unexpected error: %v", err)
	}
}

func TestStartPartialLaunchFailure(t *testing.T) {
	b := simbind.New(&simbind.Options{FailLaunch: map[string]bool{"s2": true}})
	net := reserve(t, b, topology.Triangle())

	agents, err := Start(context.Background(), net, Config{AgentBin: agentBin(t), LogDir: t.TempDir()})
	if err == nil {
		t.Fatal("Start() succeeded, want LaunchError for s2")
	}
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("Start() returned %T, want *LaunchError", err)
	}
	if le.Switch != "s2" {
		t.Errorf("LaunchError.Switch got %q, want s2", le.Switch)
	}
	// s1 launched before the failure and must be stoppable.
	if got := agents.State("s1"); got != Running {
		t.Errorf("State(s1) got %v, want running", got)
	}
	if err := agents.Stop(context.Background()); err != nil {
		t.Errorf("Stop() after partial launch returned unexpected error: %v", err)
	}
	if got := agents.State("s1"); got != Stopped {
		t.Errorf("State(s1) after Stop() got %v, want stopped", got)
	}
}

func TestAdoptedProcessReapedAtStop(t *testing.T) {
	b := simbind.New(nil)
	net := reserve(t, b, topology.Single(2))

	agents, err := Start(context.Background(), net, Config{AgentBin: agentBin(t), LogDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start() returned unexpected error: %v", err)
	}
	h1, err := net.Host("h1")
	if err != nil {
		t.Fatalf("Host(h1): %v", err)
	}
	srv, err := h1.ServeTraffic(5001, "")
	if err != nil {
		t.Fatalf("ServeTraffic() returned unexpected error: %v", err)
	}
	agents.Adopt("loadgen-server", srv)

	if err := agents.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() returned unexpected error: %v", err)
	}
	if !srv.Exited() {
		t.Error("adopted server still running after Stop(), want it reaped")
	}
}
