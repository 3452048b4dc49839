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

// Binary reachprobe sends ICMP echo probes to a single target and
// prints the loss statistics as one JSON object on stdout.  The netns
// testbed runs it inside host namespaces, so the probes cross the
// emulated network.  Raw ICMP sockets require root.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"k8s.io/klog/v2"
)

var (
	target   = flag.String("target", "", "IPv4 address to probe.")
	count    = flag.Int("count", 3, "Echo requests to send.")
	timeout  = flag.Duration("timeout", 3*time.Second, "Bound on the whole probe. Requests unanswered at expiry count as lost.")
	interval = flag.Duration("interval", 200*time.Millisecond, "Delay between echo requests.")
)

// result is the wire form the harness parses from stdout.
type result struct {
	Target       string  `json:"target"`
	Sent         int     `json:"sent"`
	Received     int     `json:"received"`
	LossFraction float64 `json:"loss_fraction"`
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *target == "" {
		klog.Exitf("Target is required.")
	}

	pr := probing.New(*target)
	if err := pr.Resolve(); err != nil {
		klog.Exitf("Cannot resolve target %s, err: %v", *target, err)
	}
	pr.Count = *count
	pr.Timeout = *timeout
	pr.Interval = *interval
	pr.RecordRtts = false
	pr.SetPrivileged(true)
	pr.SetLogger(nil)

	// Run returns an error only when the probe could not be sent at
	// all; an unreachable target simply times out with zero replies.
	if err := pr.Run(); err != nil {
		klog.Exitf("Cannot probe %s (ip %s), err: %v", pr.Addr(), pr.IPAddr(), err)
	}

	stats := pr.Statistics()
	res := result{
		Target:       stats.Addr,
		Sent:         stats.PacketsSent,
		Received:     stats.PacketsRecv,
		LossFraction: 1,
	}
	if stats.PacketsSent > 0 {
		res.LossFraction = 1 - float64(stats.PacketsRecv)/float64(stats.PacketsSent)
	}
	if err := json.NewEncoder(os.Stdout).Encode(res); err != nil {
		klog.Exitf("Cannot write result, err: %v", err)
	}
}
