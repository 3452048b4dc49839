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

// Package netutil generates deterministic IPv4 and MAC address
// sequences for testbed nodes.  Addresses are assigned by ordinal
// position in the topology's sorted node order, so the same fixture
// always produces the same addressing.
package netutil

import (
	"fmt"
	"net"
)

func ipToInt(ip net.IP) uint32 {
	return uint32(ip[0])<<24 + uint32(ip[1])<<16 + uint32(ip[2])<<8 + uint32(ip[3])
}

func intToIP(n uint32) net.IP {
	return net.IPv4(
		byte(n>>24),
		byte((n>>16)&0xFF),
		byte((n>>8)&0xFF),
		byte(n&0xFF),
	)
}

// IPs returns count consecutive IPv4 addresses beginning at start.
func IPs(start string, count int) ([]string, error) {
	ip := net.ParseIP(start).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid start IPv4 address %q", start)
	}
	base := ipToInt(ip)
	ips := make([]string, count)
	for i := 0; i < count; i++ {
		ips[i] = intToIP(base + uint32(i)).String()
	}
	return ips, nil
}

func macToInt(mac net.HardwareAddr) uint64 {
	var n uint64
	for _, b := range mac {
		n = n<<8 | uint64(b)
	}
	return n
}

func intToMAC(n uint64) net.HardwareAddr {
	mac := make(net.HardwareAddr, 6)
	for i := 5; i >= 0; i-- {
		mac[i] = byte(n)
		n >>= 8
	}
	return mac
}

// MACAt returns the MAC address offset positions after base.
func MACAt(base string, offset int) (string, error) {
	mac, err := net.ParseMAC(base)
	if err != nil {
		return "", fmt.Errorf("invalid base MAC %q: %w", base, err)
	}
	if len(mac) != 6 {
		return "", fmt.Errorf("base MAC %q is not 48 bits", base)
	}
	return intToMAC(macToInt(mac) + uint64(offset)).String(), nil
}

// MACs returns count consecutive MAC addresses beginning at base.
func MACs(base string, count int) ([]string, error) {
	macs := make([]string, count)
	for i := 0; i < count; i++ {
		m, err := MACAt(base, i)
		if err != nil {
			return nil, err
		}
		macs[i] = m
	}
	return macs, nil
}
