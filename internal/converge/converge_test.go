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

package converge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestFixedElapses(t *testing.T) {
	start := time.Now()
	if err := Fixed(20 * time.Millisecond).Wait(context.Background()); err != nil {
		t.Fatalf("Wait() returned unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait() returned after %v, want at least 20ms", elapsed)
	}
}

func TestFixedHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Fixed(5 * time.Second).Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error got %v, want context.Canceled", err)
	}
}

func TestPollSucceedsOnceReady(t *testing.T) {
	calls := 0
	ready := func(ctx context.Context) (bool, error) {
		calls++
		return calls >= 3, nil
	}
	p := Poll(ready, &Opts{Interval: time.Millisecond, Timeout: time.Second})
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() returned unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("ready evaluated %d times, want 3", calls)
	}
}

func TestPollRetriesErrors(t *testing.T) {
	calls := 0
	ready := func(ctx context.Context) (bool, error) {
		calls++
		if calls < 2 {
			return false, errors.New("probe not available yet")
		}
		return true, nil
	}
	p := Poll(ready, &Opts{Interval: time.Millisecond, Timeout: time.Second})
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() returned unexpected error: %v", err)
	}
}

func TestPollTimesOut(t *testing.T) {
	probeErr := errors.New("still dark")
	ready := func(ctx context.Context) (bool, error) { return false, probeErr }
	p := Poll(ready, &Opts{Interval: time.Millisecond, Timeout: 10 * time.Millisecond})
	err := p.Wait(context.Background())
	if err == nil {
		t.Fatal("Wait() succeeded, want timeout error")
	}
	if !errors.Is(err, probeErr) {
		t.Errorf("Wait() error %v does not wrap the last probe error", err)
	}
	if want := "convergence not reached"; !strings.Contains(err.Error(), want) {
		t.Errorf("Wait() error %q, want it to contain %q", err, want)
	}
}

func TestSettledResetsOnFlap(t *testing.T) {
	// Ready flaps once, then holds; the hold window must restart
	// after the flap.
	calls := 0
	ready := func(ctx context.Context) (bool, error) {
		calls++
		return calls != 3, nil
	}
	p := Settled(ready, 5*time.Millisecond, &Opts{Interval: time.Millisecond, Timeout: time.Second})
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() returned unexpected error: %v", err)
	}
	if calls < 5 {
		t.Errorf("ready evaluated %d times, want at least 5 after the flap reset", calls)
	}
}

func TestSettledTimesOut(t *testing.T) {
	ready := func(ctx context.Context) (bool, error) { return false, nil }
	p := Settled(ready, time.Millisecond, &Opts{Interval: time.Millisecond, Timeout: 10 * time.Millisecond})
	if err := p.Wait(context.Background()); err == nil {
		t.Fatal("Wait() succeeded, want timeout error")
	}
}

func TestPolicyStrings(t *testing.T) {
	tests := []struct {
		policy Policy
		want   string
	}{{
		policy: Fixed(10 * time.Second),
		want:   "fixed 10s",
	}, {
		policy: Poll(func(context.Context) (bool, error) { return true, nil }, nil),
		want:   "poll every 500ms for up to 2m0s",
	}, {
		policy: Settled(func(context.Context) (bool, error) { return true, nil }, 2*time.Second, nil),
		want:   "settled for 2s, polling every 500ms for up to 2m0s",
	}}
	for _, tt := range tests {
		if got := tt.policy.String(); got != tt.want {
			t.Errorf("String() got %q, want %q", got, tt.want)
		}
	}
}
