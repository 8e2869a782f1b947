/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"bytes"
	"testing"
)

func TestPRNGProducesDistinctOutputsAcrossCalls(t *testing.T) {
	var seed [16]byte
	copy(seed[:], []byte("0123456789abcdef"))
	p := NewPRNG(seed)

	var a, b [16]byte
	p.Read(a[:])
	p.Read(b[:])

	if bytes.Equal(a[:], b[:]) {
		t.Fatalf("successive PRNG reads must differ (counter must advance)")
	}
}

func TestPRNGHandlesArbitraryLengths(t *testing.T) {
	var seed [16]byte
	copy(seed[:], []byte("0123456789abcdef"))
	p := NewPRNG(seed)

	out := make([]byte, 37) // spans multiple 16-byte blocks, not aligned
	p.Read(out)

	allZero := true
	for _, b := range out {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		t.Fatalf("PRNG output should not be all zero")
	}
}

func TestPRNGDifferentSeedsDiffer(t *testing.T) {
	var seedA, seedB [16]byte
	copy(seedA[:], []byte("aaaaaaaaaaaaaaaa"))
	copy(seedB[:], []byte("bbbbbbbbbbbbbbbb"))

	pa := NewPRNG(seedA)
	pb := NewPRNG(seedB)

	var outA, outB [16]byte
	pa.Read(outA[:])
	pb.Read(outB[:])

	if bytes.Equal(outA[:], outB[:]) {
		t.Fatalf("different seeds must produce different output")
	}
}
