/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import "crypto/aes"

// BlockCipher is the AES-128 collaborator interface from spec §6:
// AES_128.set_key / AES_128.encrypt, plus the zero-padded variant used
// whenever a key shorter than 16 bytes (PAIRWISE_KEY_LEN ∈ {10,12,16})
// is loaded, per leap.c's aes_128_set_padded_key/aes_128_padded_encrypt.
type BlockCipher interface {
	SetKey(key []byte)
	Encrypt(dst, src []byte)
}

// stdAES wraps crypto/aes. Keys shorter than 16 bytes are zero-padded
// on the right, matching the padded-key convention the keying schemes
// rely on to support PAIRWISE_KEY_LEN values below 16.
type stdAES struct {
	block [16]byte
	set   bool
}

func NewBlockCipher() BlockCipher {
	return &stdAES{}
}

func (c *stdAES) SetKey(key []byte) {
	var padded [16]byte
	copy(padded[:], key)
	c.block = padded
	c.set = true
}

func (c *stdAES) Encrypt(dst, src []byte) {
	if !c.set {
		panic("coresec: Encrypt called before SetKey")
	}
	cipher, err := aes.NewCipher(c.block[:])
	if err != nil {
		// aes.NewCipher only errors on bad key length; our key is
		// always exactly 16 bytes after padding.
		panic(err)
	}
	cipher.Encrypt(dst, src)
}

// paddedEncrypt implements aes_128_padded_encrypt(buf, len): encrypt
// one zero-padded 16-byte block under key and truncate the result to
// outLen bytes (outLen may be less than 16, e.g. for CHALLENGE_LEN).
func paddedEncrypt(cipher BlockCipher, key, plaintext []byte, outLen int) []byte {
	var block [16]byte
	copy(block[:], plaintext)
	cipher.SetKey(key)
	var out [16]byte
	cipher.Encrypt(out[:], block[:])
	return append([]byte(nil), out[:outLen]...)
}
