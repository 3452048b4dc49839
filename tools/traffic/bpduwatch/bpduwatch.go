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

// Binary bpduwatch captures bridging protocol BPDUs on a specified
// interface and logs the claimed root and topology change flags.
// Pointed at a veth inside a switch namespace, it shows the protocol
// converging in real time.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"k8s.io/klog/v2"
)

var (
	intf = flag.String("interface", "", "Interface to capture BPDUs on.")
	// timeout is the default timeout for opening a pcap session.
	timeout = 30 * time.Second
)

// switchID renders a bridge identifier as priority/address.
func switchID(id layers.STPSwitchID) string {
	return fmt.Sprintf("%d/%s", id.Priority, id.HwAddr)
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *intf == "" {
		klog.Exitf("Interface is required.")
	}

	handle, err := pcap.OpenLive(*intf,
		512,     // BPDUs are tiny, capture headroom only.
		true,    // promiscuous mode, BPDUs are not addressed to us.
		timeout, // time to wait before timing out opening connections.
	)
	if err != nil {
		klog.Exitf("Cannot open interface %s, err: %v", *intf, err)
	}
	defer handle.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	go func() {
		sig := <-sigs
		klog.Infof("Received signal %v", sig)
		os.Exit(0)
	}()

	var root string
	ps := gopacket.NewPacketSource(handle, handle.LinkType())
	for p := range ps.Packets() {
		layer := p.Layer(layers.LayerTypeSTP)
		if layer == nil {
			continue
		}
		bpdu := layer.(*layers.STP)
		klog.V(1).Infof("%s: BPDU root=%s cost=%d bridge=%s port=0x%04x age=%d",
			time.Now().Format(time.RFC3339Nano), switchID(bpdu.RouteID), bpdu.Cost,
			switchID(bpdu.BridgeID), bpdu.PortID, bpdu.MessageAge)
		if claimed := switchID(bpdu.RouteID); claimed != root {
			klog.Infof("Claimed root now %s (was %q)", claimed, root)
			root = claimed
		}
		if bpdu.TC {
			klog.Infof("Topology change flagged by %s port 0x%04x", switchID(bpdu.BridgeID), bpdu.PortID)
		}
	}
}
