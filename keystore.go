/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/blake2s"
)

// KeyStore is the non-volatile key-material collaborator from spec
// §6: node_id_restore_data(dst, len, offset) / node_id_erase_data(),
// grounded on original_source apkes.h/coresec.h's restore/erase
// contract.
type KeyStore interface {
	Restore(dst []byte, offset int) error
	Erase() error
}

// memKeyStore is an in-memory reference KeyStore for tests and the
// demo harness. It checksums its blob with blake2s-256 on load and
// logs a mismatch, the same integrity-over-persisted-bytes role the
// teacher's device/cookie.go gives blake2s for MAC1/MAC2, applied here
// to storage instead of to wire authentication.
type memKeyStore struct {
	blob     []byte
	checksum [32]byte
	log      *Logger
}

// NewMemKeyStore seeds a KeyStore with blob, the persisted
// key-material image (master key, preloaded pairwise table, etc.),
// laid out at whatever offsets the caller's keying scheme expects.
func NewMemKeyStore(blob []byte, log *Logger) KeyStore {
	return &memKeyStore{
		blob:     append([]byte(nil), blob...),
		checksum: blake2s.Sum256(blob),
		log:      log,
	}
}

func (k *memKeyStore) Restore(dst []byte, offset int) error {
	if offset < 0 || offset+len(dst) > len(k.blob) {
		return fmt.Errorf("coresec: keystore read out of bounds (offset=%d len=%d blob=%d)", offset, len(dst), len(k.blob))
	}
	if sum := blake2s.Sum256(k.blob); !bytes.Equal(sum[:], k.checksum[:]) {
		k.log.Errorf("keystore: checksum mismatch, refusing restore")
		return fmt.Errorf("coresec: keystore checksum mismatch")
	}
	copy(dst, k.blob[offset:offset+len(dst)])
	return nil
}

func (k *memKeyStore) Erase() error {
	for i := range k.blob {
		k.blob[i] = 0
	}
	k.checksum = blake2s.Sum256(k.blob)
	return nil
}
