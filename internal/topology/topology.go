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

// Package topology parses and validates declarative topology
// descriptions into an immutable graph of hosts, switches, and links.
//
// A description names three collections: hosts (identifier to optional
// attributes), switches (sequence of identifiers), and links (sequence
// of two-element endpoint pairs).  Links may form cycles among
// switches; topologies are deliberately built with redundant paths that
// the bridging agent under test must prune logically.  Parsing is a
// pure transformation and never touches the network.
package topology

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the encoding of a topology document.
type Format int

const (
	// JSON is the fixture encoding used by the checked-in topologies.
	JSON Format = iota
	// YAML is accepted as an alternative fixture encoding.
	YAML
)

// ConfigError reports a malformed topology description: a duplicate
// identifier, a link referencing an undeclared node, or a request
// naming a host the topology does not contain.  It always fails a run
// before any process is launched.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "topology config: " + e.Reason
}

// NewConfigError returns a ConfigError with the formatted reason.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// HostAttrs are the optional per-host attributes of a description.
// Unset fields are assigned by the testbed; unknown document fields
// are ignored.
type HostAttrs struct {
	IP  string `json:"ip,omitempty" yaml:"ip,omitempty"`
	MAC string `json:"mac,omitempty" yaml:"mac,omitempty"`
}

// Host is a declared host and its attributes.
type Host struct {
	Name  string
	Attrs HostAttrs
}

// Link is an unordered pair of declared endpoints.
type Link struct {
	A, B string
}

// Kind distinguishes the two node variants of a topology.
type Kind int

const (
	// KindUnknown is reported for identifiers not in the topology.
	KindUnknown Kind = iota
	// KindHost nodes carry an address and source traffic.
	KindHost
	// KindSwitch nodes run one bridging agent each.
	KindSwitch
)

// desc is the wire form of a topology document.
type desc struct {
	Hosts    map[string]*HostAttrs `json:"hosts" yaml:"hosts"`
	Switches []string              `json:"switches" yaml:"switches"`
	Links    [][]string            `json:"links" yaml:"links"`
}

// Topology is a validated, immutable topology description.  Hosts and
// switches are exposed in a deterministic order (shorter identifiers
// first, then lexicographic) so that ordinal-dependent assignment such
// as addressing is reproducible across runs.
type Topology struct {
	name     string
	hosts    []Host
	switches []string
	links    []Link
	kind     map[string]Kind

	comp  map[string]int
	ncmp  int
	edges int
}

// ParseFile reads and parses the topology document at path.  The
// format is chosen by file extension: ".yaml" and ".yml" are YAML,
// anything else is JSON.  The topology name is the file base name
// without its extension.
func ParseFile(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return Parse(strings.TrimSuffix(base, ext), data, formatForExt(ext))
}

func formatForExt(ext string) Format {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return YAML
	default:
		return JSON
	}
}

// Parse validates a topology document and returns the topology, or a
// ConfigError describing the first violation found.  Validation order:
// duplicate identifiers, then dangling or degenerate link endpoints.
// Cycles are permitted and expected.
func Parse(name string, data []byte, f Format) (*Topology, error) {
	var d desc
	var err error
	switch f {
	case YAML:
		err = yaml.Unmarshal(data, &d)
	default:
		err = json.Unmarshal(data, &d)
	}
	if err != nil {
		return nil, NewConfigError("%s: cannot decode description: %v", name, err)
	}
	return build(name, &d)
}

func build(name string, d *desc) (*Topology, error) {
	t := &Topology{
		name: name,
		kind: make(map[string]Kind),
	}

	for id, attrs := range d.Hosts {
		if id == "" {
			return nil, NewConfigError("%s: host identifier must not be empty", name)
		}
		h := Host{Name: id}
		if attrs != nil {
			h.Attrs = *attrs
		}
		if h.Attrs.IP != "" && net.ParseIP(h.Attrs.IP) == nil {
			return nil, NewConfigError("%s: host %q has invalid ip %q", name, id, h.Attrs.IP)
		}
		if h.Attrs.MAC != "" {
			if _, err := net.ParseMAC(h.Attrs.MAC); err != nil {
				return nil, NewConfigError("%s: host %q has invalid mac %q", name, id, h.Attrs.MAC)
			}
		}
		t.hosts = append(t.hosts, h)
		t.kind[id] = KindHost
	}

	for _, id := range d.Switches {
		if id == "" {
			return nil, NewConfigError("%s: switch identifier must not be empty", name)
		}
		switch t.kind[id] {
		case KindHost:
			return nil, NewConfigError("%s: identifier %q declared as both host and switch", name, id)
		case KindSwitch:
			return nil, NewConfigError("%s: switch %q declared more than once", name, id)
		}
		t.switches = append(t.switches, id)
		t.kind[id] = KindSwitch
	}

	for i, ends := range d.Links {
		if len(ends) != 2 {
			return nil, NewConfigError("%s: link %d has %d endpoints, want 2", name, i, len(ends))
		}
		a, b := ends[0], ends[1]
		for _, end := range ends {
			if t.kind[end] == KindUnknown {
				return nil, NewConfigError("%s: link %d endpoint %q is not a declared host or switch", name, i, end)
			}
		}
		if a == b {
			return nil, NewConfigError("%s: link %d connects %q to itself", name, i, a)
		}
		t.links = append(t.links, Link{A: a, B: b})
	}

	sort.Slice(t.hosts, func(i, j int) bool { return idLess(t.hosts[i].Name, t.hosts[j].Name) })
	SortIDs(t.switches)
	t.analyze()
	return t, nil
}

// idLess orders identifiers shorter-first, then lexicographic, so
// that h2 sorts before h10.
func idLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// SortIDs sorts node identifiers in the topology's deterministic
// order: shorter identifiers first, then lexicographic.
func SortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })
}

// Name returns the topology name, typically the fixture base name.
func (t *Topology) Name() string { return t.name }

// Hosts returns the declared hosts in deterministic order.
func (t *Topology) Hosts() []Host {
	out := make([]Host, len(t.hosts))
	copy(out, t.hosts)
	return out
}

// HostNames returns the declared host identifiers in deterministic order.
func (t *Topology) HostNames() []string {
	out := make([]string, len(t.hosts))
	for i, h := range t.hosts {
		out[i] = h.Name
	}
	return out
}

// Switches returns the declared switch identifiers in deterministic order.
func (t *Topology) Switches() []string {
	out := make([]string, len(t.switches))
	copy(out, t.switches)
	return out
}

// Links returns the links in declaration order.
func (t *Topology) Links() []Link {
	out := make([]Link, len(t.links))
	copy(out, t.links)
	return out
}

// Kind reports whether name is a host, a switch, or absent.
func (t *Topology) Kind(name string) Kind {
	return t.kind[name]
}

// Summary renders the topology sizes in a compact fixed order, e.g.
// "hosts:3,switches:3,links:6".
func (t *Topology) Summary() string {
	return fmt.Sprintf("hosts:%d,switches:%d,links:%d", len(t.hosts), len(t.switches), len(t.links))
}

// Marshal re-serializes the topology in the given format.  The host,
// switch, and link sets round-trip through Parse; ordering within the
// document is not preserved.
func (t *Topology) Marshal(f Format) ([]byte, error) {
	d := &desc{
		Hosts:    make(map[string]*HostAttrs, len(t.hosts)),
		Switches: t.Switches(),
		Links:    make([][]string, 0, len(t.links)),
	}
	for _, h := range t.hosts {
		attrs := h.Attrs
		d.Hosts[h.Name] = &attrs
	}
	for _, l := range t.links {
		d.Links = append(d.Links, []string{l.A, l.B})
	}
	if f == YAML {
		return yaml.Marshal(d)
	}
	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// WriteFile writes the topology to path, choosing the format by file
// extension as in ParseFile.
func (t *Topology) WriteFile(path string) error {
	data, err := t.Marshal(formatForExt(filepath.Ext(path)))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
