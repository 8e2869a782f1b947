/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import "bytes"

// ebeapState is C3: the bounded, FIFO-evicted stored-MIC ring used on
// the broadcast-receive path, grounded on
// original_source/core/net/llsec/coresec/ebeap.c's list_chop-based
// eviction of the stored MIC list.
type ebeapState struct {
	ring   [][]byte
	maxLen int
}

func newEBEAPState(maxLen int) *ebeapState {
	return &ebeapState{maxLen: maxLen}
}

func (e *ebeapState) contains(mic []byte) bool {
	for _, m := range e.ring {
		if bytes.Equal(m, mic) {
			return true
		}
	}
	return false
}

// insert is a no-op (R2) when mic is already stored; otherwise appends
// it, evicting the oldest entry once the ring is full.
func (e *ebeapState) insert(mic []byte) {
	if e.contains(mic) {
		return
	}
	if len(e.ring) >= e.maxLen {
		e.ring = e.ring[1:]
	}
	e.ring = append(e.ring, append([]byte(nil), mic...))
}

// ebeapBroadcastSend implements spec §4.3's broadcast-send path: save
// the outbound data frame, compute one CCM*-MIC per PERMANENT
// neighbor under its pairwise key, pack them into an ANNOUNCE command
// frame (0x0D), send it, then restore and (optionally) CTR-encrypt and
// broadcast the original data frame.
func (c *Core) ebeapBroadcastSend(payload []byte, sent func(error)) {
	f := &Frame{Type: FrameTypeData, Payload: append([]byte(nil), payload...)}
	f.MAC.DestBroadcast = true
	f.MAC.SrcShort = c.ownShort
	f.MAC.SrcExtended = c.ownAddr
	f.Security = &SecurityHeader{SecurityLevel: c.cfg.SecurityLevel}
	c.replay.setCounter(f.Security)

	// Force the sequence-number byte to 0 before MIC computation so
	// the MIC is invariant under any later radio-driver rewriting of
	// that byte (spec §4.3, DESIGN.md's resolved open question).
	f.zeroSeqNum()

	maxIdx, any := c.table.maxPermanentIndex()
	if !any {
		// No PERMANENT neighbors yet: nothing to announce. The data
		// frame still goes out (e.g. for a lone bootstrapping node),
		// simply unauthenticated to any future listener.
		c.ebeapSendData(f, sent)
		return
	}

	micLen := c.cfg.BroadcastMICLen()
	announcePayload := make([]byte, 2+(int(maxIdx)+1)*micLen)
	announcePayload[0] = cmdAnnounce
	announcePayload[1] = 0x00

	nonce := buildNonce13(c.ownAddr, f.Security.FrameCounter, f.Security.SecurityLevel)
	micInput := f.micInput()
	c.table.forEachPermanent(func(n *Neighbor) {
		mic := c.ccm.MIC(n.PairwiseKey(), nonce, micInput, micLen)
		off := 2 + int(n.LocalIndex)*micLen
		copy(announcePayload[off:off+micLen], mic)
	})

	announce := &Frame{Type: FrameTypeCommand, Payload: announcePayload}
	announce.MAC.DestBroadcast = true
	announce.MAC.SrcShort = c.ownShort
	announce.MAC.SrcExtended = c.ownAddr

	c.sendFrame(announce, func(err error) {
		c.run(func() {
			if err != nil {
				sent(err)
				return
			}
			c.ebeapSendData(f, sent)
		})
	})
}

// ebeapSendData restores/encrypts and broadcasts the saved data frame
// after its announce has gone out.
func (c *Core) ebeapSendData(f *Frame, sent func(error)) {
	if c.cfg.BroadcastKeyLen > 0 && c.ownBroadcastKey != nil {
		nonce := buildNonce13(c.ownAddr, f.Security.FrameCounter, f.Security.SecurityLevel)
		c.ccm.CTR(c.ownBroadcastKey, nonce, f.Payload)
	}
	c.sendFrame(f, sent)
}

// ebeapOnAnnounce implements spec §4.3's announce-receive path:
// locate the sender (must be PERMANENT), locate the candidate MIC at
// the sender's foreign_index, and insert it into the stored-MIC ring
// (duplicates are a no-op, per R2).
func (c *Core) ebeapOnAnnounce(f *Frame) {
	sender, err := c.table.get(f.MAC.SrcExtended)
	if err != nil || sender.Status != StatusPermanent {
		c.log.Verbosef("ebeap: announce from unknown/non-permanent sender, dropped")
		return
	}
	micLen := c.cfg.BroadcastMICLen()
	// Offset 2 accounts for the command id and the reserved 0x00
	// byte that precede the MIC vector in the wire layout (spec §6).
	off := 2 + int(sender.ForeignIndex)*micLen
	if off+micLen > len(f.Payload) {
		c.log.Verbosef("ebeap: announce MIC offset out of bounds")
		return
	}
	mic := f.Payload[off : off+micLen]
	c.ebeap.insert(mic)
}

// ebeapVerifyBroadcast implements spec §4.3's broadcast-data-frame
// receive path: normalize the mutable header bytes, optionally
// decrypt, recompute the MIC under the sender's pairwise key, and test
// for membership in the stored-MIC ring.
func (c *Core) ebeapVerifyBroadcast(f *Frame, sender *Neighbor) bool {
	f.zeroSeqNum()
	f.clearFramePending()

	if c.cfg.BroadcastKeyLen > 0 && sender.BroadcastKey != nil && f.Security != nil {
		nonce := buildNonce13(sender.ExtendedAddr, f.Security.FrameCounter, f.Security.SecurityLevel)
		c.ccm.CTR(sender.BroadcastKey, nonce, f.Payload)
	}

	if f.Security == nil {
		return false
	}
	micLen := c.cfg.BroadcastMICLen()
	nonce := buildNonce13(sender.ExtendedAddr, f.Security.FrameCounter, f.Security.SecurityLevel)
	mic := c.ccm.MIC(sender.PairwiseKey(), nonce, f.micInput(), micLen)
	return c.ebeap.contains(mic)
}
