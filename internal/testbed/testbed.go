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

// Package testbed defines the boundary to the network-emulation
// testbed.  A binding turns a validated topology into a live emulated
// network of hosts and switches, each exposing an execution context
// for commands and long-running processes; hosts additionally carry an
// address and support reachability probes and bulk-traffic workloads.
//
// Two bindings implement this interface: simbind emulates the network
// in memory and is the default for tests and dry runs, and netnsbind
// builds real Linux network namespaces connected by veth pairs.
package testbed

import (
	"context"
	"fmt"
	"time"

	"github.com/pborman/uuid"

	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

// Default probe parameters, applied when a ProbeSpec field is zero.
const (
	DefaultProbeCount   = 3
	DefaultProbeTimeout = 3 * time.Second
)

// Binding constructs and releases live networks.  A binding owns at
// most one live network at a time; Release must be safe to call on
// every exit path, including after a failed Reserve.
type Binding interface {
	// Name identifies the binding in logs and reports.
	Name() string
	// Reserve builds the emulated network for the topology and starts
	// it.  A failed Reserve leaves nothing behind.
	Reserve(ctx context.Context, topo *topology.Topology) (*Network, error)
	// Release tears the network down: every process started through a
	// node is terminated and every emulated node is removed.  Release
	// on a binding with no live network is a no-op.
	Release(ctx context.Context) error
}

// Node is the execution context of one emulated host or switch.
type Node interface {
	// Name returns the node's topology identifier.
	Name() string
	// Run executes argv inside the node and returns its standard
	// output once it exits.  Standard error travels with the error.
	Run(ctx context.Context, argv []string) (string, error)
	// Start launches argv inside the node as a long-running process
	// with stdout and stderr appended to the file at logPath.
	Start(argv []string, logPath string) (Process, error)
}

// Host is a node with an address that can source probe and bulk
// traffic toward other hosts.
type Host interface {
	Node
	// Addr returns the host's IPv4 address.
	Addr() string
	// Probe sends spec.Count bounded echo requests to target and
	// returns the observed loss fraction in [0, 1].  An error means
	// the probe could not be issued at all, not that packets were
	// lost.
	Probe(ctx context.Context, target Host, spec ProbeSpec) (float64, error)
	// ServeTraffic starts a bulk-traffic listener workload on the
	// given port.  The workload runs until explicitly stopped.
	ServeTraffic(port int, logPath string) (Process, error)
	// MeasureTraffic runs a timed bulk transfer against a listener
	// previously started on target and reports the achieved rate.
	MeasureTraffic(ctx context.Context, target Host, port int, duration time.Duration) (*TrafficResult, error)
}

// Switch is a node that runs one bridging agent.
type Switch interface {
	Node
	// Ports returns the switch's interface names in creation order.
	Ports() []string
}

// Process is a handle on a long-running process started through a
// node's execution context.
type Process interface {
	// Stop terminates the process and reaps it.  Stopping a process
	// that already exited, or stopping twice, is a no-op.
	Stop(ctx context.Context) error
	// Exited reports whether the process has exited.
	Exited() bool
}

// ProbeSpec bounds one reachability probe.
type ProbeSpec struct {
	// Count is the number of echo requests per probe.
	Count int
	// Timeout bounds the whole probe; exceeding it counts as total
	// loss.
	Timeout time.Duration
}

// WithDefaults fills zero fields with the package defaults.
func (s ProbeSpec) WithDefaults() ProbeSpec {
	if s.Count <= 0 {
		s.Count = DefaultProbeCount
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultProbeTimeout
	}
	return s
}

// TrafficResult reports one bulk-transfer measurement.
type TrafficResult struct {
	// Bytes moved during the transfer.
	Bytes int64
	// Elapsed is the wall-clock duration of the transfer.
	Elapsed time.Duration
	// BitsPerSecond is the achieved application-level rate.
	BitsPerSecond float64
}

// PortNames assigns interface names to every link endpoint in link
// declaration order: hosts number from eth0 and switches from eth1.
// Both bindings use this naming so fixtures behave identically on
// either testbed.
func PortNames(topo *topology.Topology) map[string][]string {
	next := make(map[string]int)
	for _, s := range topo.Switches() {
		next[s] = 1
	}
	out := make(map[string][]string)
	claim := func(n string) {
		out[n] = append(out[n], fmt.Sprintf("%s-eth%d", n, next[n]))
		next[n]++
	}
	for _, l := range topo.Links() {
		claim(l.A)
		claim(l.B)
	}
	return out
}

// Network is a live emulated network built by a binding.
type Network struct {
	resID    string
	topo     *topology.Topology
	hosts    map[string]Host
	switches map[string]Switch
}

// NewNetwork assembles a Network from a binding's node handles.  Every
// host and switch of the topology must be present.
func NewNetwork(topo *topology.Topology, hosts map[string]Host, switches map[string]Switch) (*Network, error) {
	for _, h := range topo.HostNames() {
		if hosts[h] == nil {
			return nil, fmt.Errorf("binding did not provide host %q", h)
		}
	}
	for _, s := range topo.Switches() {
		if switches[s] == nil {
			return nil, fmt.Errorf("binding did not provide switch %q", s)
		}
	}
	return &Network{resID: uuid.New(), topo: topo, hosts: hosts, switches: switches}, nil
}

// ReservationID returns the unique id stamped on this live network at
// reservation time.
func (n *Network) ReservationID() string { return n.resID }

// Topology returns the validated topology this network realizes.
func (n *Network) Topology() *topology.Topology { return n.topo }

// Host returns the named host.
func (n *Network) Host(name string) (Host, error) {
	h, ok := n.hosts[name]
	if !ok {
		return nil, fmt.Errorf("no host %q in live network", name)
	}
	return h, nil
}

// Switch returns the named switch.
func (n *Network) Switch(name string) (Switch, error) {
	s, ok := n.switches[name]
	if !ok {
		return nil, fmt.Errorf("no switch %q in live network", name)
	}
	return s, nil
}

// Hosts returns all hosts in the topology's deterministic order.
func (n *Network) Hosts() []Host {
	out := make([]Host, 0, len(n.hosts))
	for _, name := range n.topo.HostNames() {
		out = append(out, n.hosts[name])
	}
	return out
}

// Switches returns all switches in the topology's deterministic order.
func (n *Network) Switches() []Switch {
	out := make([]Switch, 0, len(n.switches))
	for _, name := range n.topo.Switches() {
		out = append(out, n.switches[name])
	}
	return out
}
