/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

// Scheme is the pluggable keying-scheme capability set from spec §9:
// get_secret_with_hello_sender and get_secret_with_helloack_sender.
// The interface has no init method; each implementation is set up by
// its constructor (NewLEAPScheme, NewFullyScheme). Two reference
// implementations are provided: LEAPScheme and FullyScheme, grounded
// on original_source leap.c and fully.c/h.
type Scheme interface {
	// SecretWithHelloSender returns the shared secret to use when we
	// are about to answer a HELLO from sender (we derive the
	// individual key for ourselves as the recipient). Returns nil if
	// no secret is available.
	SecretWithHelloSender(sender [8]byte) []byte
	// SecretWithHelloackSender returns the shared secret to use when
	// verifying a HELLOACK from sender. Returns nil if no secret is
	// available (e.g. master key already erased).
	SecretWithHelloackSender(sender [8]byte) []byte
}
