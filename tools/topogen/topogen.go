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

// Command topogen regenerates the canonical topology fixtures checked
// in under topologies/.  Run it from the repository root after
// changing the generators:
//
//	go run ./tools/topogen
package main

import (
	goflag "flag"
	"os"
	"path/filepath"

	log "github.com/golang/glog"
	flag "github.com/spf13/pflag"

	"github.com/opennetlab/bridgeprofiles/internal/topology"
)

var (
	outDir    = flag.String("out_dir", "topologies", "Directory receiving the fixture documents.")
	format    = flag.String("format", "json", "Fixture format, json or yaml.")
	starHosts = flag.Int("star_hosts", 2, "Hosts attached to the single-switch fixture.")
	gridSize  = flag.Int("grid_size", 3, "Rows and columns of the grid fixture.")
)

func main() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine) // for compatibility with glog
	flag.Parse()

	if *format != "json" && *format != "yaml" {
		log.Exitf("unknown format %q, want json or yaml", *format)
	}
	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Exitf("cannot create output directory, err: %v", err)
	}

	for _, topo := range []*topology.Topology{
		topology.Single(*starHosts),
		topology.Triangle(),
		topology.Grid(*gridSize, *gridSize),
		topology.FatTree16(),
	} {
		path := filepath.Join(*outDir, topo.Name()+"."+*format)
		if err := topo.WriteFile(path); err != nil {
			log.Exitf("cannot write %s, err: %v", path, err)
		}
		log.Infof("wrote %s (%s)", path, topo.Summary())
	}
}
