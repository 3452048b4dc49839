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

package netutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIPs(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		count   int
		want    []string
		wantErr bool
	}{{
		name:  "sequential",
		start: "10.0.0.1",
		count: 3,
		want:  []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"},
	}, {
		name:  "octet rollover",
		start: "10.0.0.254",
		count: 3,
		want:  []string{"10.0.0.254", "10.0.0.255", "10.0.1.0"},
	}, {
		name:    "invalid start",
		start:   "10.0.0.999",
		count:   2,
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IPs(tt.start, tt.count)
			if (err != nil) != tt.wantErr {
				t.Fatalf("IPs(%q, %d) error got %v, wantErr %v", tt.start, tt.count, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IPs(%q, %d) returned diff (-want +got):\n%s", tt.start, tt.count, diff)
			}
		})
	}
}

func TestMACAt(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		offset  int
		want    string
		wantErr bool
	}{{
		name:   "zero offset",
		base:   "00:00:00:00:00:01",
		offset: 0,
		want:   "00:00:00:00:00:01",
	}, {
		name:   "port block offset",
		base:   "00:00:00:00:01:00",
		offset: 258,
		want:   "00:00:00:00:02:02",
	}, {
		name:   "byte rollover",
		base:   "00:00:00:00:00:ff",
		offset: 1,
		want:   "00:00:00:00:01:00",
	}, {
		name:    "invalid base",
		base:    "not-a-mac",
		offset:  1,
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MACAt(tt.base, tt.offset)
			if (err != nil) != tt.wantErr {
				t.Fatalf("MACAt(%q, %d) error got %v, wantErr %v", tt.base, tt.offset, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("MACAt(%q, %d) got %q, want %q", tt.base, tt.offset, got, tt.want)
			}
		})
	}
}

func TestMACs(t *testing.T) {
	got, err := MACs("aa:00:00:00:00:01", 3)
	if err != nil {
		t.Fatalf("MACs() returned unexpected error: %v", err)
	}
	want := []string{"aa:00:00:00:00:01", "aa:00:00:00:00:02", "aa:00:00:00:00:03"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MACs() returned diff (-want +got):\n%s", diff)
	}
}
