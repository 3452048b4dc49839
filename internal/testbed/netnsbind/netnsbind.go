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

// Package netnsbind builds real emulated networks from Linux network
// namespaces connected by veth pairs, one namespace per topology
// node.  Switch ports get deterministic MAC addresses with the first
// switch holding the lowest block, so root election inside the
// bridging protocol resolves identically across runs.  Reachability
// probes and traffic workloads run inside the host namespaces through
// the reachprobe and loadgen helper binaries.
//
// The binding shells out to the ip(8) tool and therefore needs root
// on Linux.
package netnsbind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/opennetlab/bridgeprofiles/internal/netutil"
	"github.com/opennetlab/bridgeprofiles/internal/testbed"
	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

// MAC blocks for generated port addresses.  Switch ports count up
// from the zero block so the first switch always carries the lowest
// bridge address; host ports live far above in the locally
// administered range and never win root election.
const (
	switchMACBase = "00:00:00:00:00:00"
	hostMACBase   = "aa:00:00:00:00:00"
)

var (
	// To be stubbed out by unit tests.
	runCommandFn   = runCommand
	startCommandFn = startCommand

	// killDelay is the grace between SIGTERM and SIGKILL when
	// stopping a process.
	killDelay = 5 * time.Second
)

// Options configure the namespace testbed.  Zero values resolve the
// helper binaries against PATH by their default names.
type Options struct {
	// ReachprobeBin is the prober run inside host namespaces.
	ReachprobeBin string
	// LoadgenBin is the bulk-transfer workload run inside host
	// namespaces.
	LoadgenBin string
}

// Bind implements testbed.Binding on Linux network namespaces.
type Bind struct {
	opts Options

	mu    sync.Mutex
	topo  *topology.Topology
	net   *testbed.Network
	nodes map[string]*nsNode
	order []string
}

var _ testbed.Binding = (*Bind)(nil)

// New returns a network-namespace binding.
func New(opts *Options) *Bind {
	b := &Bind{}
	if opts != nil {
		b.opts = *opts
	}
	return b
}

// Name implements testbed.Binding.
func (b *Bind) Name() string { return "netns" }

func (b *Bind) prober() string {
	if b.opts.ReachprobeBin != "" {
		return b.opts.ReachprobeBin
	}
	return "reachprobe"
}

func (b *Bind) loadgen() string {
	if b.opts.LoadgenBin != "" {
		return b.opts.LoadgenBin
	}
	return "loadgen"
}

func nsName(node string) string { return "bp-" + node }

// Reserve implements testbed.Binding.  Namespaces are created for
// hosts then switches in deterministic order, veth pairs in link
// declaration order; a failure tears down everything created so far.
func (b *Bind) Reserve(ctx context.Context, topo *topology.Topology) (*testbed.Network, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.net != nil {
		return nil, fmt.Errorf("only one reservation is allowed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.nodes = make(map[string]*nsNode)
	b.order = nil
	fail := func(err error) (*testbed.Network, error) {
		b.unwind()
		return nil, err
	}

	names := append(append([]string{}, topo.HostNames()...), topo.Switches()...)
	for _, name := range names {
		ns := nsName(name)
		if _, err := runCommandFn(ctx, []string{"ip", "netns", "add", ns}); err != nil {
			return fail(fmt.Errorf("creating namespace %s: %w", ns, err))
		}
		b.nodes[name] = &nsNode{name: name, bind: b}
		b.order = append(b.order, name)
		if _, err := runCommandFn(ctx, []string{"ip", "-n", ns, "link", "set", "lo", "up"}); err != nil {
			return fail(fmt.Errorf("raising loopback in %s: %w", ns, err))
		}
	}

	if err := b.plumbLinks(ctx, topo); err != nil {
		return fail(err)
	}

	hostNames := topo.HostNames()
	ips, err := netutil.IPs("10.0.0.1", len(hostNames))
	if err != nil {
		return fail(err)
	}
	hosts := make(map[string]testbed.Host, len(hostNames))
	for i, h := range topo.Hosts() {
		addr := ips[i]
		if h.Attrs.IP != "" {
			addr = h.Attrs.IP
		}
		if topo.Degree(h.Name) > 0 {
			cmd := []string{"ip", "-n", nsName(h.Name), "addr", "add", addr + "/8", "dev", h.Name + "-eth0"}
			if _, err := runCommandFn(ctx, cmd); err != nil {
				return fail(fmt.Errorf("addressing %s: %w", h.Name, err))
			}
		}
		hosts[h.Name] = &nsHost{nsNode: b.nodes[h.Name], addr: addr}
	}

	ports := testbed.PortNames(topo)
	switches := make(map[string]testbed.Switch, len(topo.Switches()))
	for _, s := range topo.Switches() {
		switches[s] = &nsSwitch{nsNode: b.nodes[s], ports: ports[s]}
	}

	n, err := testbed.NewNetwork(topo, hosts, switches)
	if err != nil {
		return fail(err)
	}
	b.topo = topo
	b.net = n
	glog.Infof("reserved %d namespaces for %s (%s): reservation %s",
		len(b.order), topo.Name(), topo.Summary(), n.ReservationID())
	return n, nil
}

// plumbLinks creates one veth pair per link, moves the ends into
// their namespaces, assigns port MACs, and raises the interfaces.
func (b *Bind) plumbLinks(ctx context.Context, topo *topology.Topology) error {
	next := make(map[string]int)
	for _, s := range topo.Switches() {
		next[s] = 1
	}
	hostPos := make(map[string]int)
	for i, h := range topo.HostNames() {
		hostPos[h] = i
	}
	swPos := make(map[string]int)
	for i, s := range topo.Switches() {
		swPos[s] = i
	}

	portMAC := func(node string, idx int) (string, error) {
		if topo.Kind(node) == topology.KindSwitch {
			return netutil.MACAt(switchMACBase, swPos[node]*0x100+idx)
		}
		if idx == 0 {
			if mac := hostAttrMAC(topo, node); mac != "" {
				return mac, nil
			}
		}
		return netutil.MACAt(hostMACBase, hostPos[node]*0x100+idx+1)
	}

	for _, l := range topo.Links() {
		ia, ib := next[l.A], next[l.B]
		pa := fmt.Sprintf("%s-eth%d", l.A, ia)
		pb := fmt.Sprintf("%s-eth%d", l.B, ib)
		next[l.A]++
		next[l.B]++

		macA, err := portMAC(l.A, ia)
		if err != nil {
			return err
		}
		macB, err := portMAC(l.B, ib)
		if err != nil {
			return err
		}

		nsA, nsB := nsName(l.A), nsName(l.B)
		for _, cmd := range [][]string{
			{"ip", "link", "add", pa, "type", "veth", "peer", "name", pb},
			{"ip", "link", "set", pa, "netns", nsA},
			{"ip", "link", "set", pb, "netns", nsB},
			{"ip", "-n", nsA, "link", "set", pa, "address", macA},
			{"ip", "-n", nsB, "link", "set", pb, "address", macB},
			{"ip", "-n", nsA, "link", "set", pa, "up"},
			{"ip", "-n", nsB, "link", "set", pb, "up"},
		} {
			if _, err := runCommandFn(ctx, cmd); err != nil {
				return fmt.Errorf("plumbing link %s: %w", topology.PairKey(l.A, l.B), err)
			}
		}
		glog.V(1).Infof("link %s: %s (%s) <-> %s (%s)", topology.PairKey(l.A, l.B), pa, macA, pb, macB)
	}
	return nil
}

func hostAttrMAC(topo *topology.Topology, name string) string {
	for _, h := range topo.Hosts() {
		if h.Name == name {
			return h.Attrs.MAC
		}
	}
	return ""
}

// unwind deletes every namespace created by a failed Reserve.  The
// caller holds b.mu.
func (b *Bind) unwind() {
	for _, name := range b.order {
		if _, err := runCommandFn(context.Background(), []string{"ip", "netns", "del", nsName(name)}); err != nil {
			glog.Warningf("unwinding namespace %s: %v", nsName(name), err)
		}
	}
	b.nodes = nil
	b.order = nil
}

// Release implements testbed.Binding.  Processes started through the
// nodes are stopped first, then every namespace is deleted.  Release
// with no live network is a no-op.
func (b *Bind) Release(ctx context.Context) error {
	b.mu.Lock()
	nodes := b.nodes
	order := b.order
	b.topo = nil
	b.net = nil
	b.nodes = nil
	b.order = nil
	b.mu.Unlock()

	var errs []error
	for _, name := range order {
		if err := nodes[name].stopAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range order {
		if _, err := runCommandFn(ctx, []string{"ip", "netns", "del", nsName(name)}); err != nil {
			errs = append(errs, fmt.Errorf("deleting namespace %s: %w", nsName(name), err))
		}
	}
	if len(order) > 0 {
		glog.Infof("released %d namespaces", len(order))
	}
	return errors.Join(errs...)
}

type nsNode struct {
	name string
	bind *Bind

	mu    sync.Mutex
	procs []*nsProcess
}

func (n *nsNode) Name() string { return n.name }

func (n *nsNode) ns() string { return nsName(n.name) }

// Run implements testbed.Node.
func (n *nsNode) Run(ctx context.Context, argv []string) (string, error) {
	full := append([]string{"ip", "netns", "exec", n.ns()}, argv...)
	return runCommandFn(ctx, full)
}

// Start implements testbed.Node.
func (n *nsNode) Start(argv []string, logPath string) (testbed.Process, error) {
	full := append([]string{"ip", "netns", "exec", n.ns()}, argv...)
	h, err := startCommandFn(full, logPath)
	if err != nil {
		return nil, fmt.Errorf("starting %s in %s: %w", argv[0], n.ns(), err)
	}
	p := &nsProcess{h: h, done: make(chan struct{})}
	go p.reap()
	n.mu.Lock()
	n.procs = append(n.procs, p)
	n.mu.Unlock()
	glog.V(1).Infof("%s: started %s", n.ns(), strings.Join(argv, " "))
	return p, nil
}

func (n *nsNode) stopAll(ctx context.Context) error {
	n.mu.Lock()
	procs := append([]*nsProcess(nil), n.procs...)
	n.procs = nil
	n.mu.Unlock()
	var errs []error
	for _, p := range procs {
		if err := p.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type nsSwitch struct {
	*nsNode
	ports []string
}

// Ports implements testbed.Switch.
func (s *nsSwitch) Ports() []string {
	out := make([]string, len(s.ports))
	copy(out, s.ports)
	return out
}

type nsHost struct {
	*nsNode
	addr string
}

// Addr implements testbed.Host.
func (h *nsHost) Addr() string { return h.addr }

// Probe implements testbed.Host by running the prober inside the
// host's namespace.  The prober reports loss as data and exits
// nonzero only when it could not probe at all.
func (h *nsHost) Probe(ctx context.Context, target testbed.Host, spec testbed.ProbeSpec) (float64, error) {
	spec = spec.WithDefaults()
	// Outer guard in case the prober itself hangs.
	ctx, cancel := context.WithTimeout(ctx, spec.Timeout+time.Second)
	defer cancel()
	out, err := h.Run(ctx, []string{
		h.bind.prober(),
		"-target", target.Addr(),
		"-count", strconv.Itoa(spec.Count),
		"-timeout", spec.Timeout.String(),
	})
	if err != nil {
		return 0, fmt.Errorf("probing %s from %s: %w", target.Addr(), h.name, err)
	}
	var res struct {
		LossFraction float64 `json:"loss_fraction"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &res); err != nil {
		return 0, fmt.Errorf("parsing prober output %q: %w", out, err)
	}
	return res.LossFraction, nil
}

// ServeTraffic implements testbed.Host.
func (h *nsHost) ServeTraffic(port int, logPath string) (testbed.Process, error) {
	return h.Start([]string{h.bind.loadgen(), "-mode", "server", "-listen", ":" + strconv.Itoa(port)}, logPath)
}

// MeasureTraffic implements testbed.Host.
func (h *nsHost) MeasureTraffic(ctx context.Context, target testbed.Host, port int, duration time.Duration) (*testbed.TrafficResult, error) {
	ctx, cancel := context.WithTimeout(ctx, duration+10*time.Second)
	defer cancel()
	out, err := h.Run(ctx, []string{
		h.bind.loadgen(),
		"-mode", "client",
		"-connect", net.JoinHostPort(target.Addr(), strconv.Itoa(port)),
		"-duration", duration.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("bulk transfer %s -> %s: %w", h.name, target.Name(), err)
	}
	var res struct {
		Bytes         int64   `json:"bytes"`
		Seconds       float64 `json:"seconds"`
		BitsPerSecond float64 `json:"bits_per_second"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &res); err != nil {
		return nil, fmt.Errorf("parsing loadgen output %q: %w", out, err)
	}
	return &testbed.TrafficResult{
		Bytes:         res.Bytes,
		Elapsed:       time.Duration(res.Seconds * float64(time.Second)),
		BitsPerSecond: res.BitsPerSecond,
	}, nil
}

// cmdHandle is the started-process surface of exec.Cmd used by the
// binding, abstracted for unit tests.
type cmdHandle interface {
	Signal(sig os.Signal) error
	Wait() error
}

type nsProcess struct {
	h    cmdHandle
	done chan struct{}
}

// reap waits for the process and publishes its exit.
func (p *nsProcess) reap() {
	if err := p.h.Wait(); err != nil {
		glog.V(1).Infof("process exited: %v", err)
	}
	close(p.done)
}

// Exited implements testbed.Process.
func (p *nsProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Stop implements testbed.Process: SIGTERM, a grace period, then
// SIGKILL.  Stopping an exited process is a no-op.
func (p *nsProcess) Stop(ctx context.Context) error {
	if p.Exited() {
		return nil
	}
	if err := p.h.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return err
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
	case <-time.After(killDelay):
	}
	if err := p.h.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCommand executes argv and returns its standard output.  Standard
// error travels with the error on failure.
func runCommand(ctx context.Context, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr strings.Builder
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// startCommand launches argv with stdout and stderr appended to the
// file at logPath, or discarded when logPath is empty.
func startCommand(argv []string, logPath string) (cmdHandle, error) {
	cmd := exec.Command(argv[0], argv[1:]...)
	var log *os.File
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		cmd.Stdout, cmd.Stderr = f, f
		log = f
	}
	if err := cmd.Start(); err != nil {
		if log != nil {
			log.Close()
		}
		return nil, err
	}
	return &execHandle{cmd: cmd, log: log}, nil
}

type execHandle struct {
	cmd *exec.Cmd
	log *os.File
}

func (h *execHandle) Signal(sig os.Signal) error { return h.cmd.Process.Signal(sig) }

func (h *execHandle) Wait() error {
	err := h.cmd.Wait()
	if h.log != nil {
		h.log.Close()
	}
	return err
}
