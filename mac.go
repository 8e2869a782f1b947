/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

// MACDriver is the channel-access collaborator from spec §6: the core
// hands it already-framed wire bytes and a completion callback,
// mirroring NETSTACK_MAC.send. Grounded on the teacher's conn.Bind
// abstraction (device/peer.go's peer.device.net.bind.Send) generalized
// from UDP sockets to 802.15.4 frames. Operating on wire bytes rather
// than *Frame keeps the Framer collaborator on the actual send/receive
// path instead of beside it.
type MACDriver interface {
	Send(wire []byte, sent func(error))
}

// FrameSink receives wire bytes delivered by a MACDriver. *Core
// implements FrameSink via its Input method, which runs every delivery
// through its Framer before any APKES/EBEAP logic sees it, matching
// spec §2's "inbound frames enter C5 from the framer".
type FrameSink interface {
	Input(wire []byte)
}

// LoopbackMAC connects two in-process cores directly, without a real
// radio, for tests and cmd/coresec-sim. Each Send hops through its own
// goroutine before reaching the peer's sink, so callers see the same
// asynchronous completion semantics a real driver would give.
type LoopbackMAC struct {
	ExtAddr [8]byte
	peer    *LoopbackMAC
	sink    FrameSink
}

// NewLoopbackPair builds two MAC drivers wired to each other.
func NewLoopbackPair(addrA, addrB [8]byte) (a, b *LoopbackMAC) {
	a = &LoopbackMAC{ExtAddr: addrA}
	b = &LoopbackMAC{ExtAddr: addrB}
	a.peer = b
	b.peer = a
	return a, b
}

// AttachSink wires the sink (normally a *Core) that receives frames
// forwarded from the peer driver.
func (m *LoopbackMAC) AttachSink(sink FrameSink) {
	m.sink = sink
}

func (m *LoopbackMAC) Send(wire []byte, sent func(error)) {
	if m.peer == nil || m.peer.sink == nil {
		if sent != nil {
			sent(ErrTxError)
		}
		return
	}
	clone := append([]byte(nil), wire...)
	peer := m.peer
	go func() {
		peer.sink.Input(clone)
		if sent != nil {
			sent(nil)
		}
	}()
}
