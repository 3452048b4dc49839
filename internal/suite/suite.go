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

// Package suite drives topology fixtures through the full qualifying
// sequence: parse, reserve the testbed, launch one bridging agent per
// switch, wait for the protocol to converge, validate, tear down.
// Fixtures run strictly sequentially and teardown runs on every exit
// path.  A fixture whose infrastructure broke is errored; a fixture
// whose network misbehaved is failed; the suite passes only when
// every fixture passed.
package suite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/opennetlab/bridgeprofiles/internal/converge"
	"github.com/opennetlab/bridgeprofiles/internal/rundata"
	"github.com/opennetlab/bridgeprofiles/internal/supervisor"
	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
	"github.com/opennetlab/bridgeprofiles/internal/validate"
)

// Outcome classifies how one fixture run ended.
type Outcome string

const (
	// Passed means the fixture ran to completion and validation found
	// no defect.
	Passed Outcome = "passed"
	// Failed means the network misbehaved: validation found loss, or
	// a measurement could not complete.
	Failed Outcome = "failed"
	// Errored means harness infrastructure broke before validation
	// could judge the network.
	Errored Outcome = "errored"
)

// FixtureReport is the outcome of one fixture run.
type FixtureReport struct {
	Fixture        string           `json:"fixture"`
	Path           string           `json:"path,omitempty"`
	Summary        string           `json:"summary,omitempty"`
	Reservation    string           `json:"reservation,omitempty"`
	Outcome        Outcome          `json:"outcome"`
	Error          string           `json:"error,omitempty"`
	Validation     *validate.Report `json:"validation,omitempty"`
	ElapsedSeconds float64          `json:"elapsed_seconds"`
}

// Report aggregates one suite run.
type Report struct {
	RunID      string            `json:"run_id"`
	Binding    string            `json:"binding"`
	Start      time.Time         `json:"start"`
	End        time.Time         `json:"end"`
	Fixtures   []*FixtureReport  `json:"fixtures"`
	Properties map[string]string `json:"properties,omitempty"`
	Passed     bool              `json:"passed"`
}

// String renders the report as an aligned verdict table.
func (rep *Report) String() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "FIXTURE\tTOPOLOGY\tOUTCOME\tELAPSED\tDETAIL\n")
	for _, fr := range rep.Fixtures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1fs\t%s\n",
			fr.Fixture, fr.Summary, fr.Outcome, fr.ElapsedSeconds, fr.detail())
	}
	tw.Flush()
	verdict := "FAILED"
	if rep.Passed {
		verdict = "PASSED"
	}
	fmt.Fprintf(&b, "suite %s on %s binding: %s\n", rep.RunID, rep.Binding, verdict)
	return b.String()
}

// detail is the human-readable explanation column of the verdict
// table.
func (fr *FixtureReport) detail() string {
	if fr.Error != "" {
		return fr.Error
	}
	v := fr.Validation
	if v == nil {
		return ""
	}
	switch v.Mode {
	case validate.ModeCorrectness:
		if failed := v.FailedPairs(); len(failed) > 0 {
			return "loss on " + strings.Join(failed, " ")
		}
		return fmt.Sprintf("%d pairs lossless", len(v.Pairs))
	case validate.ModePerformance:
		return fmt.Sprintf("%s -> %s: %.1f Mbit/s", v.Client, v.Server, v.ThroughputBps/1e6)
	}
	return ""
}

// WriteJSON writes the report to path as indented JSON.
func (rep *Report) WriteJSON(path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Runner drives fixtures against one binding.  The zero value is not
// usable; Binding and AgentBin must be set.
type Runner struct {
	// Binding builds the live network for each fixture.
	Binding testbed.Binding
	// AgentBin is the bridging agent binary launched on every switch.
	AgentBin string
	// LogDir receives per-agent and traffic logs.  Empty means
	// "logs".
	LogDir string
	// Converge is the barrier between agent launch and validation.
	// Nil applies the default fixed delay.
	Converge converge.Policy
	// Probe bounds each reachability probe.
	Probe testbed.ProbeSpec
	// Traffic bounds each throughput measurement.
	Traffic validate.TrafficSpec
}

// RunCorrectness runs the all-pairs reachability check over the given
// fixture files, in order.
func (r *Runner) RunCorrectness(ctx context.Context, fixtures []string) *Report {
	rep := r.newReport()
	for _, path := range fixtures {
		fr := r.runFixture(ctx, path, func(ctx context.Context, net *testbed.Network, reg validate.Registry) (*validate.Report, error) {
			return validate.CheckAllPairs(ctx, net, nil, r.Probe)
		})
		rep.Fixtures = append(rep.Fixtures, fr)
	}
	return r.finish(rep)
}

// RunPerformance measures throughput from client to server on one
// fixture.
func (r *Runner) RunPerformance(ctx context.Context, fixture, client, server string) *Report {
	rep := r.newReport()
	fr := r.runFixture(ctx, fixture, func(ctx context.Context, net *testbed.Network, reg validate.Registry) (*validate.Report, error) {
		spec := r.Traffic
		if spec.ServerLog == "" {
			spec.ServerLog = filepath.Join(r.logDir(), server+"-traffic-log.txt")
		}
		return validate.MeasureThroughput(ctx, net, client, server, spec, reg)
	})
	rep.Fixtures = append(rep.Fixtures, fr)
	return r.finish(rep)
}

func (r *Runner) logDir() string {
	if r.LogDir == "" {
		return "logs"
	}
	return r.LogDir
}

func (r *Runner) newReport() *Report {
	return &Report{
		RunID:   uuid.New().String(),
		Binding: r.Binding.Name(),
		Start:   time.Now(),
	}
}

// finish stamps the report and derives the suite verdict: every
// fixture must have passed, and an empty run never passes.
func (r *Runner) finish(rep *Report) *Report {
	rep.End = time.Now()
	rep.Properties = rundata.Properties(nil)
	rep.Passed = len(rep.Fixtures) > 0
	for _, fr := range rep.Fixtures {
		if fr.Outcome != Passed {
			rep.Passed = false
		}
	}
	glog.Info(rep.String())
	return rep
}

// checkFunc is the validation step of a fixture run.  reg receives
// helper processes that must be reaped at teardown.
type checkFunc func(ctx context.Context, net *testbed.Network, reg validate.Registry) (*validate.Report, error)

// runFixture takes one fixture through parse, reserve, agent launch,
// convergence wait, and validation.  The network and agents are torn
// down on every exit path, with a fresh context so a canceled run
// still cleans up.
func (r *Runner) runFixture(ctx context.Context, path string, check checkFunc) (fr *FixtureReport) {
	start := time.Now()
	fr = &FixtureReport{Path: path}
	defer func() { fr.ElapsedSeconds = time.Since(start).Seconds() }()

	topo, err := topology.ParseFile(path)
	if err != nil {
		base := filepath.Base(path)
		fr.Fixture = strings.TrimSuffix(base, filepath.Ext(base))
		fr.Outcome, fr.Error = Errored, err.Error()
		glog.Errorf("fixture %s: %v", fr.Fixture, err)
		return fr
	}
	fr.Fixture = topo.Name()
	fr.Summary = topo.Summary()
	glog.Infof("fixture %s (%s): reserving %s testbed", fr.Fixture, fr.Summary, r.Binding.Name())

	net, err := r.Binding.Reserve(ctx, topo)
	if err != nil {
		fr.Outcome, fr.Error = Errored, err.Error()
		glog.Errorf("fixture %s: reserve: %v", fr.Fixture, err)
		return fr
	}
	defer func() {
		if err := r.Binding.Release(context.Background()); err != nil {
			glog.Errorf("fixture %s: release: %v", fr.Fixture, err)
		}
	}()
	fr.Reservation = net.ReservationID()

	agents, err := supervisor.Start(ctx, net, supervisor.Config{AgentBin: r.AgentBin, LogDir: r.logDir()})
	defer func() {
		if err := agents.Stop(context.Background()); err != nil {
			glog.Errorf("fixture %s: stopping agents: %v", fr.Fixture, err)
		}
	}()
	if err != nil {
		fr.Outcome, fr.Error = Errored, err.Error()
		glog.Errorf("fixture %s: %v", fr.Fixture, err)
		return fr
	}

	policy := r.Converge
	if policy == nil {
		policy = converge.Fixed(converge.DefaultWait)
	}
	glog.V(1).Infof("fixture %s: waiting for convergence: %v", fr.Fixture, policy)
	if err := policy.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			fr.Outcome, fr.Error = Errored, err.Error()
			return fr
		}
		// Unconverged agents surface as probe loss, not as a harness
		// error.
		glog.Warningf("fixture %s: %v; validating anyway", fr.Fixture, err)
	}

	vrep, err := check(ctx, net, agents)
	fr.Validation = vrep
	switch {
	case err != nil:
		var mErr *validate.MeasurementError
		if errors.As(err, &mErr) {
			fr.Outcome = Failed
		} else {
			fr.Outcome = Errored
		}
		fr.Error = err.Error()
	case vrep.Passed:
		fr.Outcome = Passed
	default:
		fr.Outcome = Failed
	}
	glog.Infof("fixture %s: %s", fr.Fixture, fr.Outcome)
	return fr
}
