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

// Package simbind emulates the testbed in memory.  Reachability is
// derived from the topology graph under the assumption of a correctly
// converged bridging layer: a host pair is lossless when both hosts
// share a connected component and every switch in that component has a
// live agent process.  Faults (pair loss, partitions, launch refusal)
// are injectable through Options, which is how the harness's own
// failure handling is tested without a real network.
package simbind

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opennetlab/bridgeprofiles/internal/netutil"
	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

// Options inject faults into the emulated network.  The zero value
// emulates a healthy testbed.
type Options struct {
	// PairLoss overrides the loss fraction for a host pair, keyed
	// "a<>b" with the endpoints in sorted order.
	PairLoss map[string]float64
	// Partitioned cuts traffic between two nodes when it returns
	// true; it is consulted in both orders.
	Partitioned func(a, b string) bool
	// FailLaunch lists nodes whose process launches are refused.
	FailLaunch map[string]bool
	// RefuseTraffic makes traffic listeners fail to bind.
	RefuseTraffic bool
}

// Bind implements testbed.Binding in memory.
type Bind struct {
	opts Options

	mu        sync.Mutex
	topo      *topology.Topology
	net       *testbed.Network
	nodes     map[string]*simNode
	listeners map[string]map[int]bool
}

var _ testbed.Binding = (*Bind)(nil)

// New returns an in-memory binding.  A nil opts emulates a healthy
// testbed.
func New(opts *Options) *Bind {
	b := &Bind{}
	if opts != nil {
		b.opts = *opts
	}
	return b
}

// Name implements testbed.Binding.
func (b *Bind) Name() string { return "sim" }

// Reserve implements testbed.Binding.
func (b *Bind) Reserve(ctx context.Context, topo *topology.Topology) (*testbed.Network, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.net != nil {
		return nil, fmt.Errorf("only one reservation is allowed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hostNames := topo.HostNames()
	ips, err := netutil.IPs("10.0.0.1", len(hostNames))
	if err != nil {
		return nil, err
	}

	b.nodes = make(map[string]*simNode)
	b.listeners = make(map[string]map[int]bool)

	hosts := make(map[string]testbed.Host, len(hostNames))
	for i, h := range topo.Hosts() {
		addr := ips[i]
		if h.Attrs.IP != "" {
			addr = h.Attrs.IP
		}
		node := &simNode{name: h.Name, bind: b}
		b.nodes[h.Name] = node
		hosts[h.Name] = &simHost{simNode: node, addr: addr}
	}

	ports := testbed.PortNames(topo)
	switches := make(map[string]testbed.Switch, len(topo.Switches()))
	for _, s := range topo.Switches() {
		node := &simNode{name: s, bind: b}
		b.nodes[s] = node
		switches[s] = &simSwitch{simNode: node, ports: ports[s]}
	}

	n, err := testbed.NewNetwork(topo, hosts, switches)
	if err != nil {
		return nil, err
	}
	b.topo = topo
	b.net = n
	return n, nil
}

// Release implements testbed.Binding.  All simulated processes are
// stopped; releasing with no live network is a no-op.
func (b *Bind) Release(ctx context.Context) error {
	b.mu.Lock()
	nodes := b.nodes
	b.topo = nil
	b.net = nil
	b.nodes = nil
	b.listeners = nil
	b.mu.Unlock()
	for _, node := range nodes {
		node.stopAll()
	}
	return nil
}

// cut reports whether the injected partition separates a and b.
func (b *Bind) cut(a, c string) bool {
	p := b.opts.Partitioned
	return p != nil && (p(a, c) || p(c, a))
}

// bridged reports whether traffic can flow between two hosts: same
// connected component, no partition, and a live agent process on
// every switch of that component.
func (b *Bind) bridged(src, dst string) bool {
	b.mu.Lock()
	topo := b.topo
	b.mu.Unlock()
	if topo == nil {
		return false
	}
	if !topo.SameComponent(src, dst) || b.cut(src, dst) {
		return false
	}
	for _, s := range topo.Switches() {
		if !topo.SameComponent(src, s) {
			continue
		}
		if node := b.node(s); node == nil || !node.alive() {
			return false
		}
	}
	return true
}

func (b *Bind) node(name string) *simNode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodes[name]
}

type simNode struct {
	name string
	bind *Bind

	mu    sync.Mutex
	procs []*simProcess
}

func (n *simNode) Name() string { return n.name }

// Run implements testbed.Node.  Commands have nowhere to execute in
// the simulated network, so Run records nothing and succeeds.
func (n *simNode) Run(ctx context.Context, argv []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("sim:%s: %s\n", n.name, strings.Join(argv, " ")), nil
}

// Start implements testbed.Node.
func (n *simNode) Start(argv []string, logPath string) (testbed.Process, error) {
	if n.bind.opts.FailLaunch[n.name] {
		return nil, fmt.Errorf("sim: launch refused on %s: %s", n.name, strings.Join(argv, " "))
	}
	p := &simProcess{node: n}
	n.mu.Lock()
	n.procs = append(n.procs, p)
	n.mu.Unlock()
	return p, nil
}

// alive reports whether the node has at least one running process.
func (n *simNode) alive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.procs {
		if !p.Exited() {
			return true
		}
	}
	return false
}

func (n *simNode) stopAll() {
	n.mu.Lock()
	procs := append([]*simProcess(nil), n.procs...)
	n.mu.Unlock()
	for _, p := range procs {
		p.markExited()
	}
}

type simProcess struct {
	node *simNode
	port int

	mu     sync.Mutex
	exited bool
}

// Stop implements testbed.Process.
func (p *simProcess) Stop(ctx context.Context) error {
	p.markExited()
	return nil
}

func (p *simProcess) markExited() {
	p.mu.Lock()
	already := p.exited
	p.exited = true
	p.mu.Unlock()
	if already || p.port == 0 {
		return
	}
	b := p.node.bind
	b.mu.Lock()
	if m := b.listeners[p.node.name]; m != nil {
		delete(m, p.port)
	}
	b.mu.Unlock()
}

// Exited implements testbed.Process.
func (p *simProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

type simSwitch struct {
	*simNode
	ports []string
}

// Ports implements testbed.Switch.
func (s *simSwitch) Ports() []string {
	out := make([]string, len(s.ports))
	copy(out, s.ports)
	return out
}

type simHost struct {
	*simNode
	addr string
}

// Addr implements testbed.Host.
func (h *simHost) Addr() string { return h.addr }

// Probe implements testbed.Host.
func (h *simHost) Probe(ctx context.Context, target testbed.Host, spec testbed.ProbeSpec) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b := h.bind
	if loss, ok := b.opts.PairLoss[topology.PairKey(h.name, target.Name())]; ok {
		return loss, nil
	}
	if !b.bridged(h.name, target.Name()) {
		return 1.0, nil
	}
	return 0.0, nil
}

// ServeTraffic implements testbed.Host.
func (h *simHost) ServeTraffic(port int, logPath string) (testbed.Process, error) {
	b := h.bind
	if b.opts.RefuseTraffic {
		return nil, fmt.Errorf("sim: refusing to bind %s:%d", h.name, port)
	}
	p := &simProcess{node: h.simNode, port: port}
	h.mu.Lock()
	h.procs = append(h.procs, p)
	h.mu.Unlock()
	b.mu.Lock()
	if b.listeners[h.name] == nil {
		b.listeners[h.name] = make(map[int]bool)
	}
	b.listeners[h.name][port] = true
	b.mu.Unlock()
	return p, nil
}

// MeasureTraffic implements testbed.Host.  The transfer moves real
// bytes through an in-memory pipe so the reported rate is a genuine
// nonzero measurement.
func (h *simHost) MeasureTraffic(ctx context.Context, target testbed.Host, port int, duration time.Duration) (*testbed.TrafficResult, error) {
	b := h.bind
	b.mu.Lock()
	serving := b.listeners[target.Name()][port]
	b.mu.Unlock()
	if !serving {
		return nil, fmt.Errorf("sim: connect %s:%d: connection refused", target.Addr(), port)
	}
	if !b.bridged(h.name, target.Name()) {
		return nil, fmt.Errorf("sim: connect %s:%d: no route from %s", target.Addr(), port, h.name)
	}

	client, server := net.Pipe()
	start := time.Now()
	var bytes int64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer client.Close()
		buf := make([]byte, 64<<10)
		for time.Since(start) < duration {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := client.Write(buf); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		n, err := io.Copy(io.Discard, server)
		bytes = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sim: transfer %s -> %s: %w", h.name, target.Name(), err)
	}
	elapsed := time.Since(start)
	return &testbed.TrafficResult{
		Bytes:         bytes,
		Elapsed:       elapsed,
		BitsPerSecond: float64(bytes*8) / elapsed.Seconds(),
	}, nil
}
