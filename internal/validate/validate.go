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

// Package validate runs correctness and performance checks against a
// live network.  Correctness probes every unordered host pair and
// accepts the network only when no pair loses packets; performance
// measures bulk-transfer throughput between a designated client and
// server pair.  Neither check restarts agents or retries probes.
package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

// Default traffic parameters, applied when a TrafficSpec field is
// zero.
const (
	DefaultTrafficPort     = 5001
	DefaultTrafficDuration = 10 * time.Second
	DefaultBindWait        = time.Second
)

// Report modes.
const (
	ModeCorrectness = "correctness"
	ModePerformance = "performance"
)

// MeasurementError stages.
const (
	StageServe    = "serve"
	StageTransfer = "transfer"
)

// PairResult records the outcome of one reachability probe.
// Reachable means at least one reply arrived; a pair only counts
// toward a passing report with zero loss.
type PairResult struct {
	Reachable    bool    `json:"reachable"`
	LossFraction float64 `json:"loss_fraction"`
}

// Report is the outcome of one validation run against a live network.
// Pairs is populated in correctness mode, keyed "a<>b"; the traffic
// fields are populated in performance mode.
type Report struct {
	Mode           string                `json:"mode"`
	Fixture        string                `json:"fixture"`
	Pairs          map[string]PairResult `json:"pairs,omitempty"`
	Client         string                `json:"client,omitempty"`
	Server         string                `json:"server,omitempty"`
	Bytes          int64                 `json:"bytes,omitempty"`
	ThroughputBps  float64               `json:"throughput_bps,omitempty"`
	ElapsedSeconds float64               `json:"elapsed_seconds,omitempty"`
	Passed         bool                  `json:"passed"`
}

// FailedPairs returns the keys of pairs with nonzero loss in
// deterministic order.
func (r *Report) FailedPairs() []string {
	var out []string
	for k, pr := range r.Pairs {
		if pr.LossFraction != 0 {
			out = append(out, k)
		}
	}
	topology.SortIDs(out)
	return out
}

// MeasurementError reports a throughput measurement that could not
// complete: the server workload failed to start (StageServe) or the
// client transfer failed (StageTransfer).  It marks a failed
// performance run, not a harness defect.
type MeasurementError struct {
	Stage string
	Err   error
}

func (e *MeasurementError) Error() string {
	return fmt.Sprintf("throughput measurement (%s): %v", e.Stage, e.Err)
}

func (e *MeasurementError) Unwrap() error { return e.Err }

// Registry adopts long-running helper processes so they are reaped
// together with the fixture's agents at teardown.
type Registry interface {
	Adopt(name string, p testbed.Process)
}

// CheckAllPairs probes every unordered pair among the given hosts,
// or among all topology hosts when hosts is empty, and returns the
// complete per-pair report.  The matrix is never cut short: a probe
// error or timeout is recorded as total loss for that pair and the
// remaining pairs still run.  The report passes only when every pair
// observed zero loss.  An unknown host name is a ConfigError.
func CheckAllPairs(ctx context.Context, net *testbed.Network, hosts []string, spec testbed.ProbeSpec) (*Report, error) {
	topo := net.Topology()
	names, err := hostSubset(topo, hosts)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]testbed.Host, len(names))
	for _, n := range names {
		h, err := net.Host(n)
		if err != nil {
			return nil, err
		}
		byName[n] = h
	}
	spec = spec.WithDefaults()

	rep := &Report{
		Mode:    ModeCorrectness,
		Fixture: topo.Name(),
		Pairs:   make(map[string]PairResult),
		Passed:  true,
	}
	lossless := 0
	for i, src := range names {
		for _, dst := range names[i+1:] {
			key := topology.PairKey(src, dst)
			loss, err := byName[src].Probe(ctx, byName[dst], spec)
			if err != nil {
				glog.Warningf("probe %s: %v", key, err)
				loss = 1.0
			}
			if loss == 0 {
				lossless++
			} else {
				rep.Passed = false
			}
			rep.Pairs[key] = PairResult{Reachable: loss < 1, LossFraction: loss}
			glog.V(1).Infof("probe %s: loss %.2f", key, loss)
		}
	}
	glog.Infof("all-pairs reachability on %s: %d/%d pairs lossless", topo.Name(), lossless, len(rep.Pairs))
	return rep, nil
}

// hostSubset resolves the probed host set: all topology hosts when
// empty, otherwise the given names deduplicated, each validated
// against the topology.
func hostSubset(topo *topology.Topology, hosts []string) ([]string, error) {
	if len(hosts) == 0 {
		return topo.HostNames(), nil
	}
	known := make(map[string]bool)
	for _, h := range topo.HostNames() {
		known[h] = true
	}
	seen := make(map[string]bool, len(hosts))
	var out []string
	for _, h := range hosts {
		if !known[h] {
			return nil, topology.NewConfigError("host %q not in topology %s", h, topo.Name())
		}
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	topology.SortIDs(out)
	return out, nil
}

// TrafficSpec bounds one throughput measurement.
type TrafficSpec struct {
	// Port the server workload listens on.
	Port int
	// Duration of the timed client transfer.
	Duration time.Duration
	// BindWait is how long to wait for the server to bind before
	// connecting.
	BindWait time.Duration
	// ServerLog is the file the server workload's output is appended
	// to; empty discards it.
	ServerLog string
}

// WithDefaults fills zero fields with the package defaults.
func (s TrafficSpec) WithDefaults() TrafficSpec {
	if s.Port <= 0 {
		s.Port = DefaultTrafficPort
	}
	if s.Duration <= 0 {
		s.Duration = DefaultTrafficDuration
	}
	if s.BindWait <= 0 {
		s.BindWait = DefaultBindWait
	}
	return s
}

// MeasureThroughput starts a bulk-traffic listener on the server
// host, waits for it to bind, then drives a timed transfer from the
// client host and reports the achieved rate.  No throughput threshold
// is applied: the report passes whenever the measurement completes,
// and threshold policy stays with the caller.  The server workload
// keeps running after the transfer and is handed to reg, when
// non-nil, for teardown with the fixture.
func MeasureThroughput(ctx context.Context, net *testbed.Network, client, server string, spec TrafficSpec, reg Registry) (*Report, error) {
	topo := net.Topology()
	if client == server {
		return nil, topology.NewConfigError("throughput client and server are both %q", client)
	}
	cli, err := net.Host(client)
	if err != nil {
		return nil, topology.NewConfigError("throughput client: %v", err)
	}
	srv, err := net.Host(server)
	if err != nil {
		return nil, topology.NewConfigError("throughput server: %v", err)
	}
	spec = spec.WithDefaults()

	proc, err := srv.ServeTraffic(spec.Port, spec.ServerLog)
	if err != nil {
		return nil, &MeasurementError{Stage: StageServe, Err: err}
	}
	if reg != nil {
		reg.Adopt(server+"-traffic", proc)
	}
	glog.V(1).Infof("traffic server on %s:%d, waiting %v for it to bind", server, spec.Port, spec.BindWait)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(spec.BindWait):
	}

	res, err := cli.MeasureTraffic(ctx, srv, spec.Port, spec.Duration)
	if err != nil {
		return nil, &MeasurementError{Stage: StageTransfer, Err: err}
	}
	glog.Infof("throughput %s -> %s: %.1f Mbit/s over %v",
		client, server, res.BitsPerSecond/1e6, res.Elapsed.Round(time.Millisecond))
	return &Report{
		Mode:           ModePerformance,
		Fixture:        topo.Name(),
		Client:         client,
		Server:         server,
		Bytes:          res.Bytes,
		ThroughputBps:  res.BitsPerSecond,
		ElapsedSeconds: res.Elapsed.Seconds(),
		Passed:         true,
	}, nil
}
