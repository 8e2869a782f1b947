/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import "sync"

// FullyScheme is a per-node preloaded pairwise-secret table, indexed
// by extended address; returns nil ("out of range") for unknown
// peers. Grounded on original_source/core/net/llsec/coresec/fully.c
// and fully.h.
type FullyScheme struct {
	mu    sync.RWMutex
	table map[[8]byte][]byte
}

// NewFullyScheme builds a FullyScheme from a preloaded table, e.g.
// restored from a KeyStore collaborator at provisioning time.
func NewFullyScheme(table map[[8]byte][]byte) *FullyScheme {
	t := make(map[[8]byte][]byte, len(table))
	for k, v := range table {
		t[k] = append([]byte(nil), v...)
	}
	return &FullyScheme{table: t}
}

func (s *FullyScheme) lookup(addr [8]byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table[addr] // nil on miss, matching the map zero value
}

func (s *FullyScheme) SecretWithHelloSender(sender [8]byte) []byte {
	return s.lookup(sender)
}

func (s *FullyScheme) SecretWithHelloackSender(sender [8]byte) []byte {
	return s.lookup(sender)
}
