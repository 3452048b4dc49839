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

// Package bptest bootstraps bridging validation tests: it selects the
// testbed binding from the harness flags and assembles suite runners
// for them.
package bptest

import (
	"flag"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/golang/glog"

	"github.com/opennetlab/bridgeprofiles/internal/args"
	"github.com/opennetlab/bridgeprofiles/internal/converge"
	"github.com/opennetlab/bridgeprofiles/internal/suite"
	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/testbed/netnsbind"
	"github.com/opennetlab/bridgeprofiles/internal/testbed/simbind"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
	"github.com/opennetlab/bridgeprofiles/internal/validate"
)

// RunTests parses the harness flags and runs the tests.
// It should be called from every bridgeprofiles test like this:
//
//	package test
//
//	import "github.com/opennetlab/bridgeprofiles/internal/bptest"
//
//	func TestMain(m *testing.M) {
//		bptest.RunTests(m)
//	}
func RunTests(m *testing.M) {
	flag.Parse()
	code := m.Run()
	glog.Flush()
	os.Exit(code)
}

// NewBinding returns the binding selected by the -testbed flag.
// Tests are skipped when the selected testbed cannot run in this
// environment.
func NewBinding(t testing.TB) testbed.Binding {
	t.Helper()
	switch *args.Testbed {
	case "sim":
		return simbind.New(nil)
	case "netns":
		if runtime.GOOS != "linux" {
			t.Skipf("netns testbed requires Linux, running on %s", runtime.GOOS)
		}
		if os.Geteuid() != 0 {
			t.Skip("netns testbed requires root")
		}
		return netnsbind.New(&netnsbind.Options{
			ReachprobeBin: *args.ReachprobeBin,
			LoadgenBin:    *args.LoadgenBin,
		})
	default:
		t.Fatalf("unknown testbed %q, want sim or netns", *args.Testbed)
		return nil
	}
}

// AgentBin resolves the bridging agent binary for the selected
// testbed.  The sim testbed never executes the binary, so when the
// flag value does not resolve the test binary stands in for it; on
// the netns testbed the test is skipped when the binary cannot be
// found.
func AgentBin(t testing.TB) string {
	t.Helper()
	bin := *args.AgentBin
	if *args.Testbed != "netns" {
		if _, err := exec.LookPath(bin); err == nil {
			return bin
		}
		self, err := os.Executable()
		if err != nil {
			t.Fatalf("os.Executable(): %v", err)
		}
		return self
	}
	if strings.ContainsRune(bin, os.PathSeparator) {
		if _, err := os.Stat(bin); err != nil {
			t.Skipf("agent binary %s: %v", bin, err)
		}
		return bin
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		t.Skipf("agent binary %q not in PATH: %v", bin, err)
	}
	return path
}

// NewRunner assembles a suite runner from the harness flags.
func NewRunner(t testing.TB) *suite.Runner {
	t.Helper()
	return &suite.Runner{
		Binding:  NewBinding(t),
		AgentBin: AgentBin(t),
		LogDir:   *args.LogDir,
		Converge: converge.Fixed(*args.ConvergenceWait),
		Probe: testbed.ProbeSpec{
			Count:   *args.ProbeCount,
			Timeout: *args.ProbeTimeout,
		},
		Traffic: validate.TrafficSpec{
			Port:     *args.TrafficPort,
			Duration: *args.TrafficDuration,
			BindWait: *args.TrafficBindWait,
		},
	}
}

// FixturePath locates a checked-in topology fixture by walking from
// the working directory toward the filesystem root until a topologies
// directory holds the name.
func FixturePath(t testing.TB, name string) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getting working directory: %v", err)
	}
	for {
		p := filepath.Join(dir, "topologies", name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("fixture %s not found in a topologies directory above %s", name, dir)
			return ""
		}
		dir = parent
	}
}

// MustTopology parses the checked-in fixture with the given file
// name.
func MustTopology(t testing.TB, name string) *topology.Topology {
	t.Helper()
	topo, err := topology.ParseFile(FixturePath(t, name))
	if err != nil {
		t.Fatalf("parsing fixture %s: %v", name, err)
	}
	return topo
}
