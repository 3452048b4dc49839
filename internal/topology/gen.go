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

package topology

import "fmt"

// The generators below produce the canonical qualification fixtures.
// They build the same documents that are checked in under topologies/
// and are what tools/topogen writes.

// Single returns a single-switch star: one switch s1 with n hosts
// attached.  The smallest usable fixture has two hosts.
func Single(n int) *Topology {
	d := &desc{Hosts: map[string]*HostAttrs{}, Switches: []string{"s1"}}
	for i := 1; i <= n; i++ {
		h := fmt.Sprintf("h%d", i)
		d.Hosts[h] = nil
		d.Links = append(d.Links, []string{h, "s1"})
	}
	return mustBuild("single", d)
}

// Triangle returns three switches linked in a cycle, each with one
// attached host.  The switch ring is the minimal redundant topology:
// frames loop forever unless one segment is logically blocked.
func Triangle() *Topology {
	d := &desc{Hosts: map[string]*HostAttrs{}}
	for i := 1; i <= 3; i++ {
		h, s := fmt.Sprintf("h%d", i), fmt.Sprintf("s%d", i)
		d.Hosts[h] = nil
		d.Switches = append(d.Switches, s)
		d.Links = append(d.Links, []string{h, s})
	}
	d.Links = append(d.Links,
		[]string{"s1", "s2"},
		[]string{"s1", "s3"},
		[]string{"s2", "s3"},
	)
	return mustBuild("triangle", d)
}

// Grid returns a rows-by-cols switch mesh with one host per switch.
// Switches are numbered row-major; every switch links to its right and
// lower neighbor, so any grid larger than a single row or column
// contains redundant paths.
func Grid(rows, cols int) *Topology {
	d := &desc{Hosts: map[string]*HostAttrs{}}
	sw := func(r, c int) string { return fmt.Sprintf("s%d", r*cols+c+1) }
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			s := sw(r, c)
			h := fmt.Sprintf("h%d", r*cols+c+1)
			d.Switches = append(d.Switches, s)
			d.Hosts[h] = nil
			d.Links = append(d.Links, []string{h, s})
			if c+1 < cols {
				d.Links = append(d.Links, []string{s, sw(r, c+1)})
			}
			if r+1 < rows {
				d.Links = append(d.Links, []string{s, sw(r+1, c)})
			}
		}
	}
	return mustBuild("grid", d)
}

// FatTree16 returns a k=4 fat tree: 16 hosts, 8 edge switches (es*),
// 8 aggregation switches (as*), and 4 core switches (cs*) in four
// pods.  Every aggregation layer adds redundant paths between pods.
func FatTree16() *Topology {
	d := &desc{Hosts: map[string]*HostAttrs{}}
	for i := 1; i <= 8; i++ {
		d.Switches = append(d.Switches, fmt.Sprintf("es%d", i))
	}
	for i := 1; i <= 8; i++ {
		d.Switches = append(d.Switches, fmt.Sprintf("as%d", i))
	}
	for i := 1; i <= 4; i++ {
		d.Switches = append(d.Switches, fmt.Sprintf("cs%d", i))
	}

	// Two hosts per edge switch.
	for e := 1; e <= 8; e++ {
		for _, h := range []string{fmt.Sprintf("h%d", 2*e-1), fmt.Sprintf("h%d", 2*e)} {
			d.Hosts[h] = nil
			d.Links = append(d.Links, []string{h, fmt.Sprintf("es%d", e)})
		}
	}
	// Full edge/aggregation mesh within each pod.
	for p := 0; p < 4; p++ {
		for _, e := range []int{2*p + 1, 2*p + 2} {
			for _, a := range []int{2*p + 1, 2*p + 2} {
				d.Links = append(d.Links, []string{fmt.Sprintf("es%d", e), fmt.Sprintf("as%d", a)})
			}
		}
	}
	// First aggregation switch of each pod to cores 1 and 2, second to
	// cores 3 and 4.
	for p := 0; p < 4; p++ {
		d.Links = append(d.Links,
			[]string{fmt.Sprintf("as%d", 2*p+1), "cs1"},
			[]string{fmt.Sprintf("as%d", 2*p+1), "cs2"},
			[]string{fmt.Sprintf("as%d", 2*p+2), "cs3"},
			[]string{fmt.Sprintf("as%d", 2*p+2), "cs4"},
		)
	}
	return mustBuild("ftree16", d)
}

func mustBuild(name string, d *desc) *Topology {
	t, err := build(name, d)
	if err != nil {
		panic(fmt.Sprintf("generated topology %s is invalid: %v", name, err))
	}
	return t
}
