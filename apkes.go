/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"bytes"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// apkesState is C4's handshake-side state: the cached challenge we
// last broadcast in a HELLO (needed to reconstruct the pairwise key
// once a HELLOACK arrives), the per-tentative-neighbor wait-timer
// pool, and a correlation id per in-flight handshake used only for
// logging. Grounded on original_source apkes.c/h.
type apkesState struct {
	ourChallenge []byte
	waitTimers   map[*Neighbor]*time.Timer
	correlation  map[*Neighbor]uuid.UUID
}

func newAPKESState() *apkesState {
	return &apkesState{
		waitTimers:  make(map[*Neighbor]*time.Timer),
		correlation: make(map[*Neighbor]uuid.UUID),
	}
}

// apkesSendHello draws a fresh challenge from the PRNG, caches it for
// later HELLOACK processing, and broadcasts a HELLO command frame, per
// spec §4.4.
func (c *Core) apkesSendHello() {
	challenge := make([]byte, c.cfg.ChallengeLen())
	c.prng.Read(challenge)
	c.apkes.ourChallenge = challenge

	body := make([]byte, 0, 1+len(challenge)+2)
	body = append(body, cmdHello)
	body = append(body, challenge...)
	body = append(body, byte(c.ownShort), byte(c.ownShort>>8))

	f := &Frame{Type: FrameTypeCommand, Payload: body}
	f.MAC.DestBroadcast = true
	f.MAC.SrcShort = c.ownShort
	f.MAC.SrcExtended = c.ownAddr

	c.sendFrame(f, func(err error) {
		if err != nil {
			c.log.Verbosef("apkes: hello send failed: %v", err)
		}
	})
}

// apkesHandleCommand dispatches an inbound APKES command frame to the
// matching handler by command identifier, per spec §4.5's C5→C4
// routing.
func (c *Core) apkesHandleCommand(f *Frame) {
	switch f.CommandID() {
	case cmdHello:
		c.apkesOnHello(f)
	case cmdHelloAck:
		c.apkesOnHelloAck(f)
	case cmdAck:
		c.apkesOnAck(f)
	default:
		c.log.Verbosef("apkes: unrecognized command id 0x%02x", f.CommandID())
	}
}

// apkesOnHello implements the HELLO-receive path of spec §4.4: drop if
// the sender already has a record (duplicate) or no TENTATIVE slot is
// free (I4); otherwise allocate a TENTATIVE record, store both
// challenges, and schedule the waiting-period timer.
func (c *Core) apkesOnHello(f *Frame) {
	sender := f.MAC.SrcExtended
	if !c.helloLimiter.Allow(sender) {
		c.log.Verbosef("apkes: hello rate-limited, dropped")
		return
	}
	if _, err := c.table.get(sender); err == nil {
		c.log.Verbosef("apkes: hello from already-known sender, dropped")
		return
	}
	if c.table.countTentative() >= c.cfg.MaxTentative {
		c.log.Verbosef("apkes: tentative table full, hello dropped")
		return
	}

	challengeLen := c.cfg.ChallengeLen()
	if len(f.Payload) < 1+challengeLen+2 {
		c.log.Verbosef("apkes: malformed hello, dropped")
		return
	}
	peerChallenge := append([]byte(nil), f.Payload[1:1+challengeLen]...)
	shortAddrBytes := f.Payload[1+challengeLen : 3+challengeLen]

	rec, err := c.table.new()
	if err != nil {
		c.log.Verbosef("apkes: neighbor table full, hello dropped")
		return
	}
	c.table.updateIDs(rec, sender, shortAddrBytes)

	ourChallenge := make([]byte, challengeLen)
	c.prng.Read(ourChallenge)
	rec.Payload = tentativePayload{peerChallenge: peerChallenge, ourChallenge: ourChallenge}
	rec.Status = StatusTentative
	rec.Expiration = time.Now().Add(c.cfg.MaxWaitingPeriod + c.cfg.AckDelay)

	id := uuid.New()
	c.apkes.correlation[rec] = id
	c.log.Verbosef("apkes[%s]: hello from new sender, waiting to helloack", id)

	waitPeriod := time.Duration(0)
	if c.cfg.MaxWaitingPeriod > 0 {
		waitPeriod = time.Duration(rand.Int63n(int64(c.cfg.MaxWaitingPeriod)))
	}
	c.apkes.waitTimers[rec] = time.AfterFunc(waitPeriod, func() {
		c.run(func() { c.apkesWaitExpired(rec) })
	})
}

// apkesWaitExpired fires at the end of a TENTATIVE neighbor's random
// waiting period: if the record is still TENTATIVE (not reclaimed in
// the meantime), promote it to AWAITING_ACK and emit the HELLOACK.
func (c *Core) apkesWaitExpired(rec *Neighbor) {
	delete(c.apkes.waitTimers, rec)
	if _, err := c.table.get(rec.ExtendedAddr); err != nil {
		return // reclaimed before the timer fired
	}
	if rec.Status != StatusTentative {
		return
	}
	rec.Status = StatusAwaitingACK
	c.apkesSendHelloAck(rec)
}

// apkesSendHelloAck derives the pairwise key from the keying scheme's
// shared secret and both cached challenges, and emits the HELLOACK
// command frame, per spec §4.4/§6.
func (c *Core) apkesSendHelloAck(rec *Neighbor) {
	tp, ok := rec.Payload.(tentativePayload)
	if !ok {
		c.log.Verbosef("apkes: helloack requested for non-tentative record")
		return
	}
	secret := c.scheme.SecretWithHelloSender(rec.ExtendedAddr)
	if secret == nil {
		c.log.Verbosef("apkes: no secret for hello sender, abandoning handshake")
		c.table.remove(rec)
		delete(c.apkes.correlation, rec)
		return
	}

	keyInput := append(append([]byte(nil), tp.peerChallenge...), tp.ourChallenge...)
	pairwiseKey := paddedEncrypt(c.cipher, secret, keyInput, c.cfg.PairwiseKeyLen)
	rec.Payload = keyedPayload{pairwiseKey: pairwiseKey}

	body := []byte{cmdHelloAck, rec.LocalIndex}
	if c.cfg.BroadcastKeyLen > 0 {
		body = append(body, c.ownBroadcastKey...)
	} else {
		body = append(body, byte(c.ownShort), byte(c.ownShort>>8))
	}

	f := &Frame{Type: FrameTypeCommand, Payload: body}
	f.MAC.DestShort = rec.ShortAddr
	f.MAC.SrcShort = c.ownShort
	f.MAC.SrcExtended = c.ownAddr
	f.Security = &SecurityHeader{SecurityLevel: c.cfg.SecurityLevel}
	if c.cfg.BroadcastKeyLen > 0 {
		f.Security.KeyIDMode = 1
		f.Security.KeySource = []byte{byte(c.ownShort), byte(c.ownShort >> 8)}
	}
	c.replay.setCounter(f.Security)

	nonce := buildNonce13(c.ownAddr, f.Security.FrameCounter, f.Security.SecurityLevel)
	mic := c.ccm.MIC(pairwiseKey, nonce, f.micInput(), c.cfg.UnicastMICLen)
	f.Payload = append(f.Payload, mic...)
	f.Payload = append(f.Payload, tp.ourChallenge...) // clear-text, needed by peer to derive the same key

	c.sendFrame(f, func(err error) {
		if err != nil {
			c.log.Verbosef("apkes: helloack send failed: %v", err)
		}
	})
}

// apkesOnHelloAck implements the HELLOACK-receive path of spec §4.4:
// the original HELLO sender reconstructs the pairwise key from its own
// cached challenge and the peer's challenge carried in clear, verifies
// the MIC, and on success jumps straight to PERMANENT (no TENTATIVE
// step on this side).
func (c *Core) apkesOnHelloAck(f *Frame) {
	challengeLen := c.cfg.ChallengeLen()
	micLen := c.cfg.UnicastMICLen
	minLen := 1 + 1 + micLen + challengeLen
	if c.cfg.BroadcastKeyLen > 0 {
		minLen += c.cfg.BroadcastKeyLen
	} else {
		minLen += 2
	}
	if len(f.Payload) < minLen || f.Security == nil {
		c.log.Verbosef("apkes: malformed helloack, dropped")
		return
	}

	recvLocalIndex := f.Payload[1]
	var broadcastKey []byte
	var senderShort uint16
	if c.cfg.BroadcastKeyLen > 0 {
		broadcastKey = append([]byte(nil), f.Payload[2:2+c.cfg.BroadcastKeyLen]...)
		if len(f.Security.KeySource) >= 2 {
			senderShort = uint16(f.Security.KeySource[0]) | uint16(f.Security.KeySource[1])<<8
		}
	} else {
		senderShort = uint16(f.Payload[2]) | uint16(f.Payload[3])<<8
	}

	theirChallenge := f.Payload[len(f.Payload)-challengeLen:]
	mic := f.Payload[len(f.Payload)-challengeLen-micLen : len(f.Payload)-challengeLen]
	secured := f.Payload[:len(f.Payload)-challengeLen-micLen]

	secret := c.scheme.SecretWithHelloackSender(f.MAC.SrcExtended)
	if secret == nil {
		c.log.Verbosef("apkes: no secret for helloack sender, dropped")
		return
	}
	keyInput := append(append([]byte(nil), c.apkes.ourChallenge...), theirChallenge...)
	pairwiseKey := paddedEncrypt(c.cipher, secret, keyInput, c.cfg.PairwiseKeyLen)

	verifyFrame := &Frame{MAC: f.MAC, Security: f.Security, Payload: secured}
	nonce := buildNonce13(f.MAC.SrcExtended, f.Security.FrameCounter, f.Security.SecurityLevel)
	expected := c.ccm.MIC(pairwiseKey, nonce, verifyFrame.micInput(), micLen)
	if !bytes.Equal(expected, mic) {
		c.log.Verbosef("apkes: helloack mic mismatch, dropped")
		return
	}

	rec, err := c.table.get(f.MAC.SrcExtended)
	if err == nil {
		if rec.Status == StatusPermanent && wasReplayed(&rec.Replay, f.Security.FrameCounter) {
			c.log.Verbosef("apkes: replayed helloack, dropped")
			return
		}
	} else {
		rec, err = c.table.new()
		if err != nil {
			c.log.Verbosef("apkes: neighbor table full, helloack dropped")
			return
		}
		rec.ExtendedAddr = f.MAC.SrcExtended
	}
	rec.ShortAddr = senderShort
	rec.Payload = keyedPayload{pairwiseKey: pairwiseKey}

	data := append([]byte{recvLocalIndex}, broadcastKey...)
	c.table.promote(rec, data)
	c.trickle.onNeighborAcquired()
	c.metrics.observeTable(c.table)
	c.metrics.recordHandshake("success")

	c.apkesSendAck(rec)
}

// apkesSendAck emits the ACK command frame, secured under the
// newly-derived pairwise key, per spec §4.4/§6.
func (c *Core) apkesSendAck(rec *Neighbor) {
	body := []byte{cmdAck, rec.LocalIndex}
	if c.cfg.BroadcastKeyLen > 0 {
		body = append(body, c.ownBroadcastKey...)
	}
	body = append(body, byte(c.ownShort), byte(c.ownShort>>8))

	f := &Frame{Type: FrameTypeCommand, Payload: body}
	f.MAC.DestShort = rec.ShortAddr
	f.MAC.SrcShort = c.ownShort
	f.MAC.SrcExtended = c.ownAddr
	f.Security = &SecurityHeader{SecurityLevel: c.cfg.SecurityLevel}
	c.replay.setCounter(f.Security)

	nonce := buildNonce13(c.ownAddr, f.Security.FrameCounter, f.Security.SecurityLevel)
	mic := c.ccm.MIC(rec.PairwiseKey(), nonce, f.micInput(), c.cfg.UnicastMICLen)
	f.Payload = append(f.Payload, mic...)

	c.sendFrame(f, func(err error) {
		if err != nil {
			c.log.Verbosef("apkes: ack send failed: %v", err)
		}
	})
}

// apkesOnAck implements the ACK-receive path of spec §4.4: the record
// must be AWAITING_ACK; verify the MIC under its stored pairwise key,
// then promote to PERMANENT.
func (c *Core) apkesOnAck(f *Frame) {
	rec, err := c.table.get(f.MAC.SrcExtended)
	if err != nil || rec.Status != StatusAwaitingACK || f.Security == nil {
		c.log.Verbosef("apkes: ack from unknown/wrong-state sender, dropped")
		return
	}

	micLen := c.cfg.UnicastMICLen
	if len(f.Payload) < 2+c.cfg.BroadcastKeyLen+2+micLen {
		c.log.Verbosef("apkes: malformed ack, dropped")
		return
	}
	mic := f.Payload[len(f.Payload)-micLen:]
	secured := f.Payload[:len(f.Payload)-micLen]

	verifyFrame := &Frame{MAC: f.MAC, Security: f.Security, Payload: secured}
	nonce := buildNonce13(f.MAC.SrcExtended, f.Security.FrameCounter, f.Security.SecurityLevel)
	expected := c.ccm.MIC(rec.PairwiseKey(), nonce, verifyFrame.micInput(), micLen)
	if !bytes.Equal(expected, mic) {
		c.log.Verbosef("apkes: ack mic mismatch, dropped")
		return
	}

	recvLocalIndex := secured[1]
	var broadcastKey []byte
	var senderShort uint16
	cursor := 2
	if c.cfg.BroadcastKeyLen > 0 {
		broadcastKey = append([]byte(nil), secured[cursor:cursor+c.cfg.BroadcastKeyLen]...)
		cursor += c.cfg.BroadcastKeyLen
	}
	senderShort = uint16(secured[cursor]) | uint16(secured[cursor+1])<<8

	rec.ShortAddr = senderShort
	data := append([]byte{recvLocalIndex}, broadcastKey...)
	c.table.promote(rec, data)
	c.trickle.onNeighborAcquired()
	c.metrics.observeTable(c.table)
	c.metrics.recordHandshake("success")

	if id, ok := c.apkes.correlation[rec]; ok {
		c.log.Verbosef("apkes[%s]: handshake complete", id)
		delete(c.apkes.correlation, rec)
	}
	delete(c.apkes.waitTimers, rec)
}
