// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hotstuff

import "time"

// pacemaker is the leader-failure detector: a view timer whose duration
// doubles with each consecutive failure and resets on progress.
type pacemaker struct {
	base time.Duration
	max  time.Duration

	failures int
	timer    *time.Timer
}

func newPacemaker(base, max time.Duration) *pacemaker {
	return &pacemaker{
		base:  base,
		max:   max,
		timer: time.NewTimer(base),
	}
}

// C fires when the current view times out.
func (p *pacemaker) C() <-chan time.Time {
	return p.timer.C
}

// duration returns the timeout for the current failure streak.
func (p *pacemaker) duration() time.Duration {
	d := p.base
	for i := 0; i < p.failures; i++ {
		d *= 2
		if d >= p.max {
			return p.max
		}
	}
	return d
}

// resetOnProgress clears the failure streak after a view completes.
func (p *pacemaker) resetOnProgress() {
	p.failures = 0
	p.rearm()
}

// onTimeout records a leader failure and rearms with backoff, returning the
// consecutive failure count.
func (p *pacemaker) onTimeout() int {
	p.failures++
	p.rearm()
	return p.failures
}

func (p *pacemaker) rearm() {
	if !p.timer.Stop() {
		select {
		case <-p.timer.C:
		default:
		}
	}
	p.timer.Reset(p.duration())
}

func (p *pacemaker) stop() {
	p.timer.Stop()
}
