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

package suite

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/opennetlab/bridgeprofiles/internal/converge"
	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/testbed/simbind"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
	"github.com/opennetlab/bridgeprofiles/internal/validate"
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

// writeFixture writes the topology to a JSON fixture file and returns
// its path.
func writeFixture(t *testing.T, dir string, topo *topology.Topology) string {
	t.Helper()
	path := filepath.Join(dir, topo.Name()+".json")
	if err := topo.WriteFile(path); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	return path
}

// newRunner returns a Runner on the given binding with waits tuned
// for unit tests.
func newRunner(t *testing.T, b testbed.Binding) *Runner {
	t.Helper()
	return &Runner{
		Binding:  b,
		AgentBin: agentBin(t),
		LogDir:   t.TempDir(),
		Converge: converge.Fixed(time.Millisecond),
		Probe:    testbed.ProbeSpec{Timeout: 100 * time.Millisecond},
		Traffic:  validate.TrafficSpec{Duration: 30 * time.Millisecond, BindWait: time.Millisecond},
	}
}

func outcomes(rep *Report) []Outcome {
	var out []Outcome
	for _, fr := range rep.Fixtures {
		out = append(out, fr.Outcome)
	}
	return out
}

func TestRunCorrectnessPasses(t *testing.T) {
	dir := t.TempDir()
	fixtures := []string{
		writeFixture(t, dir, topology.Single(2)),
		writeFixture(t, dir, topology.Triangle()),
	}
	r := newRunner(t, simbind.New(nil))

	rep := r.RunCorrectness(context.Background(), fixtures)
	if !rep.Passed {
		t.Errorf("suite did not pass: %s", rep)
	}
	if diff := cmp.Diff([]Outcome{Passed, Passed}, outcomes(rep)); diff != "" {
		t.Errorf("outcomes returned diff (-want +got):\n%s", diff)
	}
	want := []string{"single", "triangle"}
	for i, fr := range rep.Fixtures {
		if fr.Fixture != want[i] {
			t.Errorf("fixture %d name got %q, want %q", i, fr.Fixture, want[i])
		}
		if fr.Reservation == "" {
			t.Errorf("fixture %s has no reservation id", fr.Fixture)
		}
	}
	if rep.RunID == "" {
		t.Error("report has no run id")
	}
	if _, ok := rep.Properties["time.begin"]; !ok {
		t.Error("report properties missing time.begin")
	}
}

func TestRunCorrectnessRecordsLoss(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, topology.Triangle())
	b := simbind.New(&simbind.Options{PairLoss: map[string]float64{"h1<>h2": 0.5}})
	r := newRunner(t, b)

	rep := r.RunCorrectness(context.Background(), []string{fixture})
	if rep.Passed {
		t.Error("suite passed despite a lossy pair")
	}
	fr := rep.Fixtures[0]
	if fr.Outcome != Failed {
		t.Errorf("fixture outcome got %s, want %s", fr.Outcome, Failed)
	}
	// Validation findings are data, not infrastructure errors.
	if fr.Error != "" {
		t.Errorf("failed fixture carries an infra error: %q", fr.Error)
	}
	if diff := cmp.Diff([]string{"h1<>h2"}, fr.Validation.FailedPairs()); diff != "" {
		t.Errorf("FailedPairs() returned diff (-want +got):\n%s", diff)
	}
}

func TestRunCorrectnessContinuesPastErroredFixture(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "badlink.json")
	if err := os.WriteFile(bad, []byte(`{"hosts": {"h1": {}}, "switches": ["s1"], "links": [["h1"]]}`), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	good := writeFixture(t, dir, topology.Triangle())
	r := newRunner(t, simbind.New(nil))

	rep := r.RunCorrectness(context.Background(), []string{bad, good})
	if diff := cmp.Diff([]Outcome{Errored, Passed}, outcomes(rep)); diff != "" {
		t.Errorf("outcomes returned diff (-want +got):\n%s", diff)
	}
	if rep.Passed {
		t.Error("suite passed despite an errored fixture")
	}
	fr := rep.Fixtures[0]
	if fr.Fixture != "badlink" {
		t.Errorf("errored fixture name got %q, want %q", fr.Fixture, "badlink")
	}
	if !strings.Contains(fr.Error, "link") {
		t.Errorf("errored fixture error %q does not mention the bad link", fr.Error)
	}
}

func TestRunCorrectnessLaunchFailureTearsDown(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, topology.Triangle())
	b := simbind.New(&simbind.Options{FailLaunch: map[string]bool{"s2": true}})
	r := newRunner(t, b)

	rep := r.RunCorrectness(context.Background(), []string{fixture})
	fr := rep.Fixtures[0]
	if fr.Outcome != Errored {
		t.Errorf("fixture outcome got %s, want %s", fr.Outcome, Errored)
	}
	if !strings.Contains(fr.Error, "s2") {
		t.Errorf("fixture error %q does not name the failed switch", fr.Error)
	}
	// The testbed was released despite the launch failure.
	if _, err := b.Reserve(context.Background(), topology.Triangle()); err != nil {
		t.Errorf("Reserve() after errored run returned %v, want release to have freed the testbed", err)
	}
	b.Release(context.Background())
}

func TestRunPerformance(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, topology.Triangle())
	r := newRunner(t, simbind.New(nil))

	rep := r.RunPerformance(context.Background(), fixture, "h1", "h2")
	if !rep.Passed {
		t.Fatalf("suite did not pass: %s", rep)
	}
	fr := rep.Fixtures[0]
	if fr.Validation == nil || fr.Validation.Mode != validate.ModePerformance {
		t.Fatalf("fixture validation = %+v, want a performance report", fr.Validation)
	}
	if fr.Validation.ThroughputBps <= 0 {
		t.Errorf("throughput got %v bps, want > 0", fr.Validation.ThroughputBps)
	}
}

func TestRunPerformanceMeasurementFailureIsFailed(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, topology.Triangle())
	b := simbind.New(&simbind.Options{RefuseTraffic: true})
	r := newRunner(t, b)

	rep := r.RunPerformance(context.Background(), fixture, "h1", "h2")
	fr := rep.Fixtures[0]
	// A measurement that could not complete is a failed run, not
	// broken infrastructure.
	if fr.Outcome != Failed {
		t.Errorf("fixture outcome got %s, want %s", fr.Outcome, Failed)
	}
	if !strings.Contains(fr.Error, "serve") {
		t.Errorf("fixture error %q does not mention the serve stage", fr.Error)
	}
}

func TestRunPerformanceUnknownHostIsErrored(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, topology.Triangle())
	r := newRunner(t, simbind.New(nil))

	rep := r.RunPerformance(context.Background(), fixture, "h9", "h2")
	if got := rep.Fixtures[0].Outcome; got != Errored {
		t.Errorf("fixture outcome got %s, want %s", got, Errored)
	}
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, topology.Triangle())
	r := newRunner(t, simbind.New(nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := r.RunCorrectness(ctx, []string{fixture})
	if got := rep.Fixtures[0].Outcome; got != Errored {
		t.Errorf("fixture outcome got %s, want %s", got, Errored)
	}
}

func TestReportRendering(t *testing.T) {
	dir := t.TempDir()
	fixture := writeFixture(t, dir, topology.Single(2))
	r := newRunner(t, simbind.New(nil))
	rep := r.RunCorrectness(context.Background(), []string{fixture})

	out := rep.String()
	for _, want := range []string{"FIXTURE", "single", "hosts:2,switches:1,links:2", "passed", "PASSED"} {
		if !strings.Contains(out, want) {
			t.Errorf("report table %q does not contain %q", out, want)
		}
	}

	path := filepath.Join(dir, "report.json")
	if err := rep.WriteJSON(path); err != nil {
		t.Fatalf("WriteJSON() returned unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	var back Report
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal(report) returned unexpected error: %v", err)
	}
	if back.RunID != rep.RunID || len(back.Fixtures) != 1 || !back.Passed {
		t.Errorf("round-tripped report got run %s with %d fixtures (passed=%v), want run %s with 1 fixture passed",
			back.RunID, len(back.Fixtures), back.Passed, rep.RunID)
	}
}

func TestEmptyRunDoesNotPass(t *testing.T) {
	r := newRunner(t, simbind.New(nil))
	rep := r.RunCorrectness(context.Background(), nil)
	if rep.Passed {
		t.Error("empty suite run passed")
	}
}
