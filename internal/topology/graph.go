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

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	gtopo "gonum.org/v1/gonum/graph/topo"
)

// analyze builds the undirected graph over hosts and switches and
// records its connected components.  Parallel links collapse to a
// single edge; self links were rejected during validation.
func (t *Topology) analyze() {
	g := simple.NewUndirectedGraph()
	id := make(map[string]int64)
	name := make(map[int64]string)

	add := func(n string) {
		nid := int64(len(id))
		id[n] = nid
		name[nid] = n
		g.AddNode(simple.Node(nid))
	}
	for _, h := range t.hosts {
		add(h.Name)
	}
	for _, s := range t.switches {
		add(s)
	}
	for _, l := range t.links {
		f, to := simple.Node(id[l.A]), simple.Node(id[l.B])
		if !g.HasEdgeBetween(int64(f), int64(to)) {
			g.SetEdge(simple.Edge{F: f, T: to})
		}
	}

	t.comp = make(map[string]int, len(id))
	comps := gtopo.ConnectedComponents(g)
	for i, comp := range comps {
		for _, n := range comp {
			t.comp[name[n.ID()]] = i
		}
	}
	t.ncmp = len(comps)
	t.edges = g.Edges().Len()
}

// SameComponent reports whether a and b lie in the same connected
// component of the topology, ignoring link direction.  A correctly
// converged network makes exactly these pairs mutually reachable.
func (t *Topology) SameComponent(a, b string) bool {
	ca, oka := t.comp[a]
	cb, okb := t.comp[b]
	return oka && okb && ca == cb
}

// Components returns the connected components as sorted identifier
// lists, ordered deterministically by each component's first member.
func (t *Topology) Components() [][]string {
	byIdx := make([][]string, t.ncmp)
	for n, i := range t.comp {
		byIdx[i] = append(byIdx[i], n)
	}
	for _, comp := range byIdx {
		SortIDs(comp)
	}
	sort.Slice(byIdx, func(i, j int) bool { return idLess(byIdx[i][0], byIdx[j][0]) })
	return byIdx
}

// Connected reports whether the whole topology is one component.
func (t *Topology) Connected() bool {
	return t.ncmp <= 1
}

// RedundantLinks counts distinct edges beyond a spanning forest of the
// topology.  Any value above zero means the graph contains cycles that
// the bridging agents must prune.
func (t *Topology) RedundantLinks() int {
	n := len(t.hosts) + len(t.switches)
	return t.edges - (n - t.ncmp)
}

// Degree counts link endpoints attached to the named node, counting
// parallel links individually.  This is the number of ports the
// testbed will create for the node.
func (t *Topology) Degree(name string) int {
	d := 0
	for _, l := range t.links {
		if l.A == name {
			d++
		}
		if l.B == name {
			d++
		}
	}
	return d
}

// PairKey returns the canonical "a<>b" key for an unordered node
// pair, with the endpoints in deterministic order.
func PairKey(a, b string) string {
	if idLess(b, a) {
		a, b = b, a
	}
	return a + "<>" + b
}

// HostPairs returns every unordered pair of hosts in deterministic
// order; the first element of each pair sorts before the second.
func (t *Topology) HostPairs() [][2]string {
	names := t.HostNames()
	var pairs [][2]string
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			pairs = append(pairs, [2]string{names[i], names[j]})
		}
	}
	return pairs
}
