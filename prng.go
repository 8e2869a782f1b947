/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

// PRNG is the collaborator from spec §6, grounded on
// original_source/core/lib/prng.c: Read fills out of any length, one
// 16-byte AES-128(seed, ++nonce) block at a time.
type PRNG interface {
	Read(out []byte)
}

type aesCounterPRNG struct {
	seed  [16]byte
	nonce uint32
	block BlockCipher
}

// NewPRNG builds a PRNG seeded from a 16-byte persisted value, per
// spec §3's PRNG state (16-byte persisted seed, in-memory nonce).
func NewPRNG(seed [16]byte) PRNG {
	bc := NewBlockCipher()
	bc.SetKey(seed[:])
	return &aesCounterPRNG{seed: seed, block: bc}
}

func (p *aesCounterPRNG) Read(out []byte) {
	for len(out) > 0 {
		p.nonce++
		var ctr [16]byte
		ctr[12] = byte(p.nonce >> 24)
		ctr[13] = byte(p.nonce >> 16)
		ctr[14] = byte(p.nonce >> 8)
		ctr[15] = byte(p.nonce)
		var block [16]byte
		p.block.Encrypt(block[:], ctr[:])
		n := copy(out, block[:])
		out = out[n:]
	}
}
