/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"math/rand"
	"time"
)

// trickleState is C4's Trickle cadence controller, grounded on
// original_source/core/net/llsec/coresec/apkes-trickle.c and spec
// §4.4's interval-doubling/reset/bootstrap rules. Trickle's jitter is
// not security-sensitive (RFC 6206), so it is drawn from math/rand
// rather than the PRNG collaborator used for cryptographic material.
type trickleState struct {
	core *Core
	cfg  *Config

	i              time.Duration
	doublings      int
	newNeighbors   int
	resetThreshold int
	bootstrapDone  bool
	onBootstrapped func()
	running        bool

	helloTimer    *time.Timer
	intervalTimer *time.Timer
}

func newTrickleState(core *Core, cfg *Config) *trickleState {
	return &trickleState{core: core, cfg: cfg, resetThreshold: cfg.MaxTentative}
}

// bootstrap starts the Trickle cadence, per spec §4.4/§4.5's
// bootstrap(on_bootstrapped) entry point.
func (t *trickleState) bootstrap(cb func()) {
	if t.running {
		return
	}
	t.i = t.cfg.TrickleImin
	t.doublings = 0
	t.newNeighbors = 0
	t.bootstrapDone = false
	t.onBootstrapped = cb
	t.running = true
	t.scheduleInterval()
}

// stop halts the bootstrap cadence; in-flight handshakes still run to
// their timer-driven conclusion (spec §5).
func (t *trickleState) stop() {
	t.running = false
	if t.helloTimer != nil {
		t.helloTimer.Stop()
	}
	if t.intervalTimer != nil {
		t.intervalTimer.Stop()
	}
}

func (t *trickleState) bootstrapped() bool {
	return t.bootstrapDone
}

// scheduleInterval picks a random emission point t in [I/2, I), then
// applies spec §4.4's scheduling-precision round-up: t is pulled
// earlier as needed so that I - t is never less than
// MAX_WAITING_PERIOD + ACK_DELAY, the time an in-flight HELLO/HELLOACK/
// ACK cycle started at t needs before the interval expires out from
// under it (apkes-trickle.c's round_up(interval_size() - t)).
func (t *trickleState) scheduleInterval() {
	if !t.running {
		return
	}
	half := t.i / 2
	span := t.i - half
	jitter := time.Duration(0)
	if span > 0 {
		jitter = time.Duration(rand.Int63n(int64(span)))
	}
	margin := t.cfg.MaxWaitingPeriod + t.cfg.AckDelay
	fireAt := clampEmissionPoint(t.i, margin, half+jitter)

	t.helloTimer = time.AfterFunc(fireAt, func() {
		t.core.run(func() { t.fireHello() })
	})
	t.intervalTimer = time.AfterFunc(t.i, func() {
		t.core.run(func() { t.intervalExpired() })
	})
	if t.core.metrics != nil {
		t.core.metrics.TrickleInterval.Set(t.i.Seconds())
	}
}

// clampEmissionPoint pulls fireAt earlier, if needed, so that i-fireAt
// is never less than margin; it never goes negative.
func clampEmissionPoint(i, margin, fireAt time.Duration) time.Duration {
	if i-fireAt < margin {
		fireAt = i - margin
		if fireAt < 0 {
			fireAt = 0
		}
	}
	return fireAt
}

func (t *trickleState) fireHello() {
	if !t.running {
		return
	}
	t.core.apkesSendHello()
}

// intervalExpired implements the doubling/keep decision and the
// bootstrap-completion callback firing, per spec §4.4.
func (t *trickleState) intervalExpired() {
	if !t.running {
		return
	}
	if t.doublings < t.cfg.TrickleImaxDoubl && t.newNeighbors < t.cfg.TrickleK {
		t.doublings++
		t.i *= 2
	}
	acquired := t.newNeighbors > 0
	t.newNeighbors = 0

	if !t.bootstrapDone && acquired {
		t.bootstrapDone = true
		cb := t.onBootstrapped
		t.onBootstrapped = nil
		if cb != nil {
			cb()
		}
	}
	t.scheduleInterval()
}

// onNeighborAcquired records one new PERMANENT neighbor acquired
// during the current interval. Reaching resetThreshold exactly
// throttles repeated handshakes under churn by resetting doublings to
// K (and the interval to Imin doubled K times) and restarting the
// interval immediately, per spec §4.4's reset
// event (apkes-trickle.c:161's `++count == RESET_THRESHOLD`). The
// count is zeroed when the reset fires so further acquisitions in the
// same (now-restarted) interval don't re-trigger it on every neighbor.
func (t *trickleState) onNeighborAcquired() {
	if !t.running {
		return
	}
	t.newNeighbors++
	if t.newNeighbors == t.resetThreshold {
		t.newNeighbors = 0
		t.doublings = t.cfg.TrickleK
		t.i = t.cfg.TrickleImin
		for d := 0; d < t.doublings; d++ {
			t.i *= 2
		}
		if t.helloTimer != nil {
			t.helloTimer.Stop()
		}
		if t.intervalTimer != nil {
			t.intervalTimer.Stop()
		}
		t.scheduleInterval()
	}
}
