/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// Package coresec implements a compromise-resilient link-layer
// security core for IEEE 802.15.4 wireless mesh devices: the APKES
// pairwise-key handshake, EBEAP broadcast-MIC authentication, a dense
// neighbor table, and a Trickle-driven bootstrap scheduler.
package coresec

import (
	"bytes"

	"github.com/krentz-mesh/coresec/ratelimiter"
)

// Core is C5: the single ingress/egress funnel described in spec §4.5.
// It owns every other component and serializes all state transitions
// onto one event-loop goroutine, matching spec §5's single-logical-
// task-context model (ingress from the MAC driver, timer callbacks,
// and egress requests are the only three kinds of wakeup).
type Core struct {
	cfg     *Config
	log     *Logger
	metrics *Metrics
	mac     MACDriver
	framer  Framer
	prng    PRNG
	ccm     CCM
	cipher  BlockCipher
	scheme  Scheme

	ownAddr         [8]byte
	ownShort        uint16
	ownBroadcastKey []byte

	table       *NeighborTable
	replay      *antiReplay
	ebeap       *ebeapState
	apkes       *apkesState
	trickle     *trickleState
	helloLimiter *ratelimiter.Ratelimiter

	onData func(sender *Neighbor, payload []byte)

	eventCh chan func()
	closeCh chan struct{}
}

// NewCore constructs a Core. persistedCounter seeds the anti-replay
// send counter (spec §4.2: must strictly increase across reboots).
// ownBroadcastKey may be nil when cfg.BroadcastKeyLen == 0.
func NewCore(cfg *Config, log *Logger, metrics *Metrics, mac MACDriver, framer Framer, scheme Scheme, prngSeed [16]byte, ownAddr [8]byte, ownShort uint16, ownBroadcastKey []byte, persistedCounter uint32) *Core {
	c := &Core{
		cfg:             cfg,
		log:             log,
		metrics:         metrics,
		mac:             mac,
		framer:          framer,
		prng:            NewPRNG(prngSeed),
		ccm:             NewCCM(),
		cipher:          NewBlockCipher(),
		scheme:          scheme,
		ownAddr:         ownAddr,
		ownShort:        ownShort,
		ownBroadcastKey: ownBroadcastKey,
		table:           NewNeighborTable(cfg),
		replay:          newAntiReplay(persistedCounter),
		ebeap:           newEBEAPState(cfg.MaxBufferedMICs),
		apkes:           newAPKESState(),
		eventCh:         make(chan func()),
		closeCh:         make(chan struct{}),
		helloLimiter:    new(ratelimiter.Ratelimiter),
	}
	c.trickle = newTrickleState(c, cfg)
	c.helloLimiter.Init()
	return c
}

// OnData registers the callback invoked for every successfully
// verified inbound data frame.
func (c *Core) OnData(fn func(sender *Neighbor, payload []byte)) {
	c.onData = fn
}

// Start spins up the event-loop goroutine. Nothing runs until Start
// is called.
func (c *Core) Start() {
	go c.loop()
}

// Close halts the event loop and the Trickle cadence. In-flight
// handshakes are abandoned rather than drained, matching spec §5's
// "no cancellation API except apkes_trickle_stop" model extended to
// full shutdown.
func (c *Core) Close() {
	c.run(func() { c.trickle.stop() })
	c.helloLimiter.Close()
	close(c.closeCh)
}

func (c *Core) loop() {
	for {
		select {
		case fn := <-c.eventCh:
			fn()
		case <-c.closeCh:
			return
		}
	}
}

// run posts fn onto the event loop and blocks until it has been
// accepted (not until it completes). External entry points (Input,
// Send, Bootstrap, and every timer callback) go through run; code that
// executes on the loop itself calls sibling methods directly.
func (c *Core) run(fn func()) {
	select {
	case c.eventCh <- fn:
	case <-c.closeCh:
	}
}

// Bootstrap is the public driver entry point from spec §4.5: start the
// Trickle cadence and invoke onBootstrapped at most once, per P6.
func (c *Core) Bootstrap(onBootstrapped func()) {
	c.run(func() { c.trickle.bootstrap(onBootstrapped) })
}

// Send is the public driver entry point from spec §4.5: a broadcast
// destination hands off to EBEAP; a unicast destination is secured and
// handed to the MAC driver directly.
func (c *Core) Send(dest [8]byte, broadcast bool, payload []byte, sent func(error)) {
	c.run(func() {
		if broadcast {
			c.ebeapBroadcastSend(payload, sent)
			return
		}
		c.sendUnicast(dest, payload, sent)
	})
}

// sendUnicast implements the unicast half of spec §4.5's `send` +
// `on_frame_created`: look up the destination, add the security
// header, compute and append the MIC, optionally CTR-encrypt, and hand
// off to the MAC driver.
func (c *Core) sendUnicast(dest [8]byte, payload []byte, sent func(error)) {
	neighbor, err := c.table.get(dest)
	if err != nil || neighbor.Status != StatusPermanent {
		sent(ErrNoNeighbor)
		return
	}

	f := &Frame{Type: FrameTypeData, Payload: append([]byte(nil), payload...)}
	f.MAC.DestShort = neighbor.ShortAddr
	f.MAC.SrcShort = c.ownShort
	f.MAC.SrcExtended = c.ownAddr
	f.Security = &SecurityHeader{SecurityLevel: c.cfg.SecurityLevel}
	c.replay.setCounter(f.Security)

	nonce := buildNonce13(c.ownAddr, f.Security.FrameCounter, f.Security.SecurityLevel)
	mic := c.ccm.MIC(neighbor.PairwiseKey(), nonce, f.micInput(), c.cfg.UnicastMICLen)
	plaintextLen := len(f.Payload)
	f.Payload = append(f.Payload, mic...)

	if f.Security.SecurityLevel >= 5 {
		c.ccm.CTR(neighbor.PairwiseKey(), nonce, f.Payload[:plaintextLen])
	}

	c.sendFrame(f, sent)
}

// sendFrame is the single point where every outbound Frame crosses
// from its structured form to wire bytes via the Framer collaborator,
// before reaching the MACDriver, per spec §6.
func (c *Core) sendFrame(f *Frame, sent func(error)) {
	wire, err := c.framer.Encode(f)
	if err != nil {
		c.log.Verbosef("coresec: frame encode failed: %v", err)
		if sent != nil {
			sent(err)
		}
		return
	}
	c.mac.Send(wire, sent)
}

// GetOverhead implements spec §4.5's get_overhead: the fixed security
// header plus, for unicast frames only, the MIC length.
func (c *Core) GetOverhead(broadcast bool) int {
	h := SecurityHeader{SecurityLevel: c.cfg.SecurityLevel}
	n := h.Size()
	if !broadcast {
		n += c.cfg.UnicastMICLen
	}
	return n
}

// Input is the FrameSink entry point called by the MAC driver: it
// decodes the wire bytes through the Framer collaborator, then posts
// the resulting Frame onto the event loop and classifies/dispatches it
// per spec §4.5's `input` operation, matching spec §2's "inbound
// frames enter C5 from the framer".
func (c *Core) Input(wire []byte) {
	f, err := c.framer.Decode(wire)
	if err != nil {
		c.log.Verbosef("coresec: frame decode failed: %v", err)
		return
	}
	c.run(func() { c.handleInbound(f) })
}

func (c *Core) handleInbound(f *Frame) {
	if f.MAC.SrcExtended == c.ownAddr {
		return // never process our own frames
	}

	if f.Type == FrameTypeCommand {
		if f.CommandID() == cmdAnnounce {
			c.ebeapOnAnnounce(f)
			return
		}
		c.apkesHandleCommand(f)
		return
	}

	// Data frame: bootstrap must be complete and the sender must
	// already be PERMANENT.
	if !c.trickle.bootstrapped() {
		c.log.Verbosef("coresec: data frame before bootstrap complete, dropped")
		return
	}
	sender, err := c.table.get(f.MAC.SrcExtended)
	if err != nil || sender.Status != StatusPermanent {
		c.log.Verbosef("coresec: data frame from unknown/non-permanent sender, dropped")
		return
	}

	var ok bool
	if f.MAC.DestBroadcast {
		ok = c.ebeapVerifyBroadcast(f, sender)
	} else {
		ok = c.verifyUnicast(f, sender)
	}
	if !ok {
		c.log.Verbosef("coresec: data frame failed verification, dropped")
		return
	}

	if f.Security != nil {
		if wasReplayed(&sender.Replay, f.Security.FrameCounter) {
			if c.metrics != nil {
				c.metrics.ReplayDropped.Inc()
			}
			c.log.Verbosef("coresec: replayed frame counter, dropped")
			return
		}
	}

	if c.onData != nil {
		c.onData(sender, f.Payload)
	}
}

// verifyUnicast implements the unicast half of spec §4.5's `input`:
// decrypt (if applicable) and verify the MIC under the sender's
// pairwise key.
func (c *Core) verifyUnicast(f *Frame, sender *Neighbor) bool {
	if f.Security == nil || len(f.Payload) < c.cfg.UnicastMICLen {
		return false
	}
	micLen := c.cfg.UnicastMICLen
	mic := f.Payload[len(f.Payload)-micLen:]
	body := f.Payload[:len(f.Payload)-micLen]

	nonce := buildNonce13(sender.ExtendedAddr, f.Security.FrameCounter, f.Security.SecurityLevel)
	if f.Security.SecurityLevel >= 5 {
		c.ccm.CTR(sender.PairwiseKey(), nonce, body)
	}

	verifyFrame := &Frame{MAC: f.MAC, Security: f.Security, Payload: body}
	expected := c.ccm.MIC(sender.PairwiseKey(), nonce, verifyFrame.micInput(), micLen)
	if !bytes.Equal(expected, mic) {
		return false
	}
	f.Payload = body
	return true
}
