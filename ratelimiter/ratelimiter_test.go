/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package ratelimiter

import (
	"testing"
	"time"
)

func TestRatelimiterAllowsBurstThenThrottles(t *testing.T) {
	var rate Ratelimiter
	now := time.Now()
	rate.timeNow = func() time.Time { return now }
	rate.Init()
	defer rate.Close()

	addr := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}

	allowed := 0
	for i := 0; i < packetsBurstable+5; i++ {
		if rate.Allow(addr) {
			allowed++
		}
	}
	if allowed == 0 {
		t.Fatalf("expected at least the initial burst to be allowed")
	}
	if allowed >= packetsBurstable+5 {
		t.Fatalf("expected throttling once the burst allowance is exhausted, got %d allowed", allowed)
	}
}

func TestRatelimiterRefillsOverTime(t *testing.T) {
	var rate Ratelimiter
	now := time.Now()
	rate.timeNow = func() time.Time { return now }
	rate.Init()
	defer rate.Close()

	addr := [8]byte{9}
	for rate.Allow(addr) {
		// drain the bucket
	}

	now = now.Add(time.Second) // a full second of refill
	if !rate.Allow(addr) {
		t.Fatalf("expected a token to be available after a second of refill")
	}
}

func TestRatelimiterTracksDistinctAddressesIndependently(t *testing.T) {
	var rate Ratelimiter
	now := time.Now()
	rate.timeNow = func() time.Time { return now }
	rate.Init()
	defer rate.Close()

	addrA := [8]byte{1}
	addrB := [8]byte{2}

	for rate.Allow(addrA) {
	}
	if !rate.Allow(addrB) {
		t.Fatalf("a distinct address should have its own independent token bucket")
	}
}
