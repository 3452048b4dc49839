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

package simbind

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

// startAgents starts a placeholder agent process on every switch, the
// way the supervisor would.
func startAgents(t *testing.T, net *testbed.Network) []testbed.Process {
	t.Helper()
	var procs []testbed.Process
	for _, sw := range net.Switches() {
		p, err := sw.Start([]string{"agent", sw.Name()}, "")
		if err != nil {
			t.Fatalf("Start(agent) on %s returned unexpected error: %v", sw.Name(), err)
		}
		procs = append(procs, p)
	}
	return procs
}

func mustProbe(t *testing.T, net *testbed.Network, src, dst string) float64 {
	t.Helper()
	hs, err := net.Host(src)
	if err != nil {
		t.Fatalf("Host(%s): %v", src, err)
	}
	hd, err := net.Host(dst)
	if err != nil {
		t.Fatalf("Host(%s): %v", dst, err)
	}
	loss, err := hs.Probe(context.Background(), hd, testbed.ProbeSpec{})
	if err != nil {
		t.Fatalf("Probe(%s, %s) returned unexpected error: %v", src, dst, err)
	}
	return loss
}

func TestReserveAssignsAddresses(t *testing.T) {
	b := New(nil)
	net, err := b.Reserve(context.Background(), topology.Triangle())
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())

	var got []string
	for _, h := range net.Hosts() {
		got = append(got, h.Addr())
	}
	want := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("host addresses returned diff (-want +got):\n%s", diff)
	}
}

func TestReserveHonorsAddressOverride(t *testing.T) {
	data := `{"hosts": {"h1": {"ip": "192.0.2.7"}, "h2": {}}, "switches": ["s1"], "links": [["h1", "s1"], ["h2", "s1"]]}`
	topo, err := topology.Parse("override", []byte(data), topology.JSON)
	if err != nil {
		t.Fatalf("Parse() returned unexpected error: %v", err)
	}
	b := New(nil)
	net, err := b.Reserve(context.Background(), topo)
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())

	h1, err := net.Host("h1")
	if err != nil {
		t.Fatalf("Host(h1): %v", err)
	}
	if got, want := h1.Addr(), "192.0.2.7"; got != want {
		t.Errorf("h1 address got %q, want %q", got, want)
	}
}

func TestReserveIsExclusive(t *testing.T) {
	b := New(nil)
	if _, err := b.Reserve(context.Background(), topology.Single(2)); err != nil {
		t.Fatalf("first Reserve() returned unexpected error: %v", err)
	}
	if _, err := b.Reserve(context.Background(), topology.Single(2)); err == nil {
		t.Error("second Reserve() succeeded, want reservation error")
	}
	if err := b.Release(context.Background()); err != nil {
		t.Fatalf("Release() returned unexpected error: %v", err)
	}
	// A released binding accepts a fresh reservation, and a second
	// release is a no-op.
	if _, err := b.Reserve(context.Background(), topology.Single(2)); err != nil {
		t.Errorf("Reserve() after Release() returned unexpected error: %v", err)
	}
	b.Release(context.Background())
	if err := b.Release(context.Background()); err != nil {
		t.Errorf("repeated Release() returned unexpected error: %v", err)
	}
}

func TestProbeRequiresLiveAgents(t *testing.T) {
	b := New(nil)
	net, err := b.Reserve(context.Background(), topology.Triangle())
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())

	if got := mustProbe(t, net, "h1", "h2"); got != 1.0 {
		t.Errorf("loss before agents started got %v, want 1.0", got)
	}
	procs := startAgents(t, net)
	if got := mustProbe(t, net, "h1", "h2"); got != 0.0 {
		t.Errorf("loss with agents running got %v, want 0.0", got)
	}
	// Killing one switch's agent takes the component down again.
	if err := procs[0].Stop(context.Background()); err != nil {
		t.Fatalf("Stop() returned unexpected error: %v", err)
	}
	if got := mustProbe(t, net, "h1", "h2"); got != 1.0 {
		t.Errorf("loss after an agent died got %v, want 1.0", got)
	}
}

func TestProbeDisconnectedComponents(t *testing.T) {
	data := `{
  "hosts": {"h1": {}, "h2": {}, "h3": {}},
  "switches": ["s1", "s2"],
  "links": [["h1", "s1"], ["h2", "s1"], ["h3", "s2"]]
}`
	topo, err := topology.Parse("split", []byte(data), topology.JSON)
	if err != nil {
		t.Fatalf("Parse() returned unexpected error: %v", err)
	}
	b := New(nil)
	net, err := b.Reserve(context.Background(), topo)
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())
	startAgents(t, net)

	if got := mustProbe(t, net, "h1", "h2"); got != 0.0 {
		t.Errorf("intra-component loss got %v, want 0.0", got)
	}
	if got := mustProbe(t, net, "h1", "h3"); got != 1.0 {
		t.Errorf("cross-component loss got %v, want 1.0", got)
	}
}

func TestProbeFaultInjection(t *testing.T) {
	b := New(&Options{
		PairLoss: map[string]float64{"h1<>h3": 0.25},
		Partitioned: func(a, b string) bool {
			return a == "h2" && b == "h3"
		},
	})
	net, err := b.Reserve(context.Background(), topology.Triangle())
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())
	startAgents(t, net)

	if got := mustProbe(t, net, "h1", "h2"); got != 0.0 {
		t.Errorf("untouched pair loss got %v, want 0.0", got)
	}
	if got := mustProbe(t, net, "h1", "h3"); got != 0.25 {
		t.Errorf("injected pair loss got %v, want 0.25", got)
	}
	if got := mustProbe(t, net, "h2", "h3"); got != 1.0 {
		t.Errorf("partitioned pair loss got %v, want 1.0", got)
	}
	if got := mustProbe(t, net, "h3", "h2"); got != 1.0 {
		t.Errorf("partitioned pair reverse loss got %v, want 1.0", got)
	}
}

func TestStartLaunchRefusal(t *testing.T) {
	b := New(&Options{FailLaunch: map[string]bool{"s2": true}})
	net, err := b.Reserve(context.Background(), topology.Triangle())
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())

	s1, err := net.Switch("s1")
	if err != nil {
		t.Fatalf("Switch(s1): %v", err)
	}
	if _, err := s1.Start([]string{"agent", "s1"}, ""); err != nil {
		t.Errorf("Start() on s1 returned unexpected error: %v", err)
	}
	s2, err := net.Switch("s2")
	if err != nil {
		t.Fatalf("Switch(s2): %v", err)
	}
	if _, err := s2.Start([]string{"agent", "s2"}, ""); err == nil {
		t.Error("Start() on s2 succeeded, want launch refusal")
	}
}

func TestSwitchPorts(t *testing.T) {
	b := New(nil)
	net, err := b.Reserve(context.Background(), topology.Triangle())
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())

	s1, err := net.Switch("s1")
	if err != nil {
		t.Fatalf("Switch(s1): %v", err)
	}
	want := []string{"s1-eth1", "s1-eth2", "s1-eth3"}
	if diff := cmp.Diff(want, s1.Ports()); diff != "" {
		t.Errorf("s1 ports returned diff (-want +got):\n%s", diff)
	}
}

func TestTrafficMeasurement(t *testing.T) {
	b := New(nil)
	net, err := b.Reserve(context.Background(), topology.Single(2))
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())
	startAgents(t, net)

	h1, _ := net.Host("h1")
	h2, _ := net.Host("h2")

	// No listener yet: the client must be refused.
	if _, err := h1.MeasureTraffic(context.Background(), h2, 5001, 50*time.Millisecond); err == nil {
		t.Error("MeasureTraffic() without a server succeeded, want connection error")
	} else if !strings.Contains(err.Error(), "refused") {
		t.Errorf("MeasureTraffic() error %q, want connection refused", err)
	}

	srv, err := h2.ServeTraffic(5001, "")
	if err != nil {
		t.Fatalf("ServeTraffic() returned unexpected error: %v", err)
	}
	res, err := h1.MeasureTraffic(context.Background(), h2, 5001, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("MeasureTraffic() returned unexpected error: %v", err)
	}
	if res.Bytes <= 0 {
		t.Errorf("transfer bytes got %d, want > 0", res.Bytes)
	}
	if res.BitsPerSecond <= 0 {
		t.Errorf("throughput got %v, want > 0", res.BitsPerSecond)
	}
	if res.Elapsed < 50*time.Millisecond {
		t.Errorf("elapsed got %v, want at least the configured duration", res.Elapsed)
	}
	// The server workload keeps running until stopped.
	if srv.Exited() {
		t.Error("server exited after client completion, want it still running")
	}
	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() returned unexpected error: %v", err)
	}
	if _, err := h1.MeasureTraffic(context.Background(), h2, 5001, 50*time.Millisecond); err == nil {
		t.Error("MeasureTraffic() after server stop succeeded, want connection error")
	}
}

func TestTrafficBindRefusal(t *testing.T) {
	b := New(&Options{RefuseTraffic: true})
	net, err := b.Reserve(context.Background(), topology.Single(2))
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())

	h2, _ := net.Host("h2")
	if _, err := h2.ServeTraffic(5001, ""); err == nil {
		t.Error("ServeTraffic() succeeded, want bind refusal")
	}
}

func TestProcessStopIdempotent(t *testing.T) {
	b := New(nil)
	net, err := b.Reserve(context.Background(), topology.Single(2))
	if err != nil {
		t.Fatalf("Reserve() returned unexpected error: %v", err)
	}
	defer b.Release(context.Background())

	sw, err := net.Switch("s1")
	if err != nil {
		t.Fatalf("Switch(s1): %v", err)
	}
	p, err := sw.Start([]string{"agent", "s1"}, "")
	if err != nil {
		t.Fatalf("Start() returned unexpected error: %v", err)
	}
	if p.Exited() {
		t.Error("Exited() got true before Stop()")
	}
	for i := 0; i < 3; i++ {
		if err := p.Stop(context.Background()); err != nil {
			t.Errorf("Stop() call %d returned unexpected error: %v", i+1, err)
		}
	}
	if !p.Exited() {
		t.Error("Exited() got false after Stop()")
	}
}
