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

// Package converge bridges asynchronous protocol convergence and
// synchronous validation.  The agents expose no readiness signal at
// their boundary, so the default policy is a fixed delay chosen as a
// conservative upper bound; polling policies are provided for
// deployments that can observe a readiness indicator, such as a canary
// probe turning lossless.
package converge

import (
	"context"
	"fmt"
	"time"
)

// Default polling cadence, matching the harness-wide wait helpers.
const (
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 2 * time.Minute
)

// DefaultWait is the fixed delay applied when a caller configures no
// policy of its own.  Ten seconds covers worst-case timer expiry of
// the bridging protocol on the largest checked-in fixture.
const DefaultWait = 10 * time.Second

// Policy is one convergence wait strategy.  Wait blocks until the
// network may be treated as stable, the policy gives up, or the
// context is canceled.
type Policy interface {
	Wait(ctx context.Context) error
	String() string
}

// Opts tune a polling policy.  Zero fields take the package defaults.
type Opts struct {
	// Interval between readiness checks.
	Interval time.Duration
	// Timeout bounds the whole wait.
	Timeout time.Duration
}

func (o *Opts) withDefaults() Opts {
	out := Opts{Interval: DefaultInterval, Timeout: DefaultTimeout}
	if o != nil && o.Interval > 0 {
		out.Interval = o.Interval
	}
	if o != nil && o.Timeout > 0 {
		out.Timeout = o.Timeout
	}
	return out
}

type fixed struct {
	d time.Duration
}

// Fixed returns the fixed-delay policy: wait exactly d, observing
// nothing.  This is the default; an agent that has not converged when
// the delay elapses shows up as probe loss, not as a harness error.
func Fixed(d time.Duration) Policy { return fixed{d: d} }

func (f fixed) Wait(ctx context.Context) error {
	t := time.NewTimer(f.d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f fixed) String() string { return fmt.Sprintf("fixed %v", f.d) }

type poll struct {
	ready func(ctx context.Context) (bool, error)
	opts  Opts
}

// Poll returns a policy that repeatedly evaluates ready until it
// reports true.  Errors from ready are treated as "not yet" and
// retried; they surface only if the timeout expires first.
func Poll(ready func(ctx context.Context) (bool, error), opts *Opts) Policy {
	return poll{ready: ready, opts: opts.withDefaults()}
}

func (p poll) Wait(ctx context.Context) error {
	deadline := time.Now().Add(p.opts.Timeout)
	var lastErr error
	for {
		ok, err := p.ready(ctx)
		if err == nil && ok {
			return nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			if lastErr != nil {
				return fmt.Errorf("convergence not reached within %v: %w", p.opts.Timeout, lastErr)
			}
			return fmt.Errorf("convergence not reached within %v", p.opts.Timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.opts.Interval):
		}
	}
}

func (p poll) String() string {
	return fmt.Sprintf("poll every %v for up to %v", p.opts.Interval, p.opts.Timeout)
}

type settled struct {
	ready   func(ctx context.Context) (bool, error)
	holdFor time.Duration
	opts    Opts
}

// Settled returns a policy that waits until ready holds continuously
// for holdFor.  A single false or errored check resets the hold
// window, which filters out transiently forwarding states while the
// agents are still electing.
func Settled(ready func(ctx context.Context) (bool, error), holdFor time.Duration, opts *Opts) Policy {
	return settled{ready: ready, holdFor: holdFor, opts: opts.withDefaults()}
}

func (s settled) Wait(ctx context.Context) error {
	deadline := time.Now().Add(s.opts.Timeout)
	var since time.Time
	for {
		ok, err := s.ready(ctx)
		now := time.Now()
		switch {
		case err != nil || !ok:
			since = time.Time{}
		case since.IsZero():
			since = now
		}
		if !since.IsZero() && now.Sub(since) >= s.holdFor {
			return nil
		}
		if now.After(deadline) {
			return fmt.Errorf("network did not settle for %v within %v", s.holdFor, s.opts.Timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.Interval):
		}
	}
}

func (s settled) String() string {
	return fmt.Sprintf("settled for %v, polling every %v for up to %v", s.holdFor, s.opts.Interval, s.opts.Timeout)
}
