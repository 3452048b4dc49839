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

// Package rundata collects metadata about a harness run for inclusion
// in suite reports.
//
// The values collected are:
//
//   - build.go_version, build.path, build.main.* - from
//     runtime/debug.BuildInfo, plus build.settings.* for each build
//     setting.  Note: vcs settings are missing when the harness runs
//     from a local working directory, which is why the git properties
//     below exist.
//   - git.commit - commit hash of the harness working tree at HEAD.
//   - git.commit_timestamp - commit timestamp at HEAD, in Unix epoch
//     seconds.
//   - git.origin - fetch URL of the "origin" remote.
//   - git.clean - true if the working tree has no local modifications.
//   - git.status - short status of the working tree, empty when clean.
//   - host - hostname the harness ran on.
//   - time.begin, time.end - Unix timestamps bracketing the run.
//   - reservation - the live network's reservation id.
//   - topology - the reserved topology's summary, formatted like
//     "hosts:3,switches:3,links:6".
//   - topology.name - the reserved topology's fixture name.
package rundata

import (
	"os"

	"github.com/opennetlab/bridgeprofiles/internal/testbed"
)

// Properties builds the run metadata map recorded in suite reports.
// The reservation and topology properties are omitted when net is
// nil.
func Properties(net *testbed.Network) map[string]string {
	m := make(map[string]string)
	local(m)
	if hn, err := os.Hostname(); err == nil {
		m["host"] = hn
	}
	if net == nil {
		return m
	}
	m["reservation"] = net.ReservationID()
	m["topology"] = net.Topology().Summary()
	m["topology.name"] = net.Topology().Name()
	return m
}

// Timing returns just the timestamps bracketing the run, for stamping
// reports that never reserved a network.
func Timing() map[string]string {
	m := make(map[string]string)
	timing(m)
	return m
}
