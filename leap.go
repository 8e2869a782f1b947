/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"sync"
	"time"
)

// LEAPScheme derives per-peer individual keys from a single master key
// and erases the master key after a fixed delay, so that a node
// compromised after erasure cannot mount new handshakes — the
// "compromise resilience" property named in spec §1. Grounded on
// original_source/core/net/llsec/coresec/leap.c.
type LEAPScheme struct {
	mu       sync.Mutex
	master   []byte // zeroised after KeyErasureDelay
	ownAddr  [8]byte
	cipher   BlockCipher
	keyLen   int
	erasure  *time.Timer
	eraseLog *Logger
}

// NewLEAPScheme constructs a LEAPScheme from a master key restored
// from the KeyStore collaborator, scheduling erasure after delay.
// Grounded on the teacher's timer.zeroAllKeys /
// TimerEphemeralKeyCreated idiom (other_examples/548c9f6a timers.go):
// schedule destruction of transient key material, applied here to the
// LEAP master key instead of WireGuard ephemeral keys.
func NewLEAPScheme(master []byte, ownAddr [8]byte, keyLen int, delay time.Duration, log *Logger) *LEAPScheme {
	s := &LEAPScheme{
		master:   append([]byte(nil), master...),
		ownAddr:  ownAddr,
		cipher:   NewBlockCipher(),
		keyLen:   keyLen,
		eraseLog: log,
	}
	if delay > 0 {
		s.erasure = time.AfterFunc(delay, s.erase)
	}
	return s
}

func (s *LEAPScheme) erase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.master {
		s.master[i] = 0
	}
	s.master = nil
	s.eraseLog.Verbosef("leap: master key erased")
}

// Stop cancels the pending erasure timer (used by tests).
func (s *LEAPScheme) Stop() {
	if s.erasure != nil {
		s.erasure.Stop()
	}
}

func (s *LEAPScheme) individualKey(addr [8]byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.master == nil {
		return nil
	}
	return paddedEncrypt(s.cipher, s.master, addr[:], s.keyLen)
}

// SecretWithHelloSender returns our own individual key, derived from
// the master key and our own address: this is what the HELLO sender
// will independently derive as secret_with_helloack(us), so both
// sides land on the same value without either ever transmitting it.
func (s *LEAPScheme) SecretWithHelloSender(sender [8]byte) []byte {
	return s.individualKey(s.ownAddr)
}

// SecretWithHelloackSender derives the HELLOACK sender's individual
// key from the master key and their address.
func (s *LEAPScheme) SecretWithHelloackSender(sender [8]byte) []byte {
	return s.individualKey(sender)
}
