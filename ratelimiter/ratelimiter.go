/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// Package ratelimiter provides a token-bucket limiter keyed by IEEE
// 802.15.4 extended address, used to bound the rate of HELLO frames
// accepted from any one sender before they reach APKES's handshake
// crypto. Adapted from the teacher's IP-keyed limiter (grounded on its
// own positioning: a cheap check ahead of expensive per-packet work).
package ratelimiter

import (
	"sync"
	"time"
)

const (
	packetsPerSecond   = 20
	packetsBurstable   = 5
	garbageCollectTime = time.Second
	packetCost         = 1000000000 / packetsPerSecond
	maxTokens          = packetCost * packetsBurstable
)

type entry struct {
	mu       sync.Mutex
	lastTime time.Time
	tokens   int64
}

// Ratelimiter bounds the rate of HELLOs (or any other frame type the
// caller chooses to gate) accepted per sender extended address.
type Ratelimiter struct {
	mu      sync.RWMutex
	timeNow func() time.Time

	stopReset chan struct{} // send to reset, close to stop
	table     map[[8]byte]*entry
}

func (rate *Ratelimiter) Close() {
	rate.mu.Lock()
	defer rate.mu.Unlock()

	if rate.stopReset != nil {
		close(rate.stopReset)
	}
}

func (rate *Ratelimiter) Init() {
	rate.mu.Lock()
	defer rate.mu.Unlock()

	if rate.timeNow == nil {
		rate.timeNow = time.Now
	}

	if rate.stopReset != nil {
		close(rate.stopReset)
	}

	rate.stopReset = make(chan struct{})
	rate.table = make(map[[8]byte]*entry)

	stopReset := rate.stopReset

	go func() {
		ticker := time.NewTicker(time.Second)
		ticker.Stop()
		for {
			select {
			case _, ok := <-stopReset:
				ticker.Stop()
				if !ok {
					return
				}
				ticker = time.NewTicker(time.Second)
			case <-ticker.C:
				if rate.cleanup() {
					ticker.Stop()
				}
			}
		}
	}()
}

func (rate *Ratelimiter) cleanup() (empty bool) {
	rate.mu.Lock()
	defer rate.mu.Unlock()

	for key, e := range rate.table {
		e.mu.Lock()
		if rate.timeNow().Sub(e.lastTime) > garbageCollectTime {
			delete(rate.table, key)
		}
		e.mu.Unlock()
	}

	return len(rate.table) == 0
}

// Allow reports whether a frame from addr may proceed, consuming one
// token if so.
func (rate *Ratelimiter) Allow(addr [8]byte) bool {
	rate.mu.RLock()
	e := rate.table[addr]
	rate.mu.RUnlock()

	if e == nil {
		e = new(entry)
		e.tokens = maxTokens - packetCost
		e.lastTime = rate.timeNow()
		rate.mu.Lock()
		rate.table[addr] = e
		if len(rate.table) == 1 {
			rate.stopReset <- struct{}{}
		}
		rate.mu.Unlock()
		return true
	}

	e.mu.Lock()
	now := rate.timeNow()
	e.tokens += now.Sub(e.lastTime).Nanoseconds()
	e.lastTime = now
	if e.tokens > maxTokens {
		e.tokens = maxTokens
	}

	if e.tokens > packetCost {
		e.tokens -= packetCost
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()
	return false
}
