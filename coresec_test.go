/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// buildTestPair constructs two Cores sharing a LEAP master key over a
// LoopbackMAC, with Trickle/APKES timing shortened for fast tests.
func buildTestPair(t *testing.T) (a, b *Core) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TrickleImin = 15 * time.Millisecond
	cfg.TrickleImaxDoubl = 2
	cfg.MaxWaitingPeriod = 5 * time.Millisecond
	cfg.AckDelay = 5 * time.Millisecond

	addrA := [8]byte{0xAA}
	addrB := [8]byte{0xBB}
	master := bytesRepeat(0x5A, 16)

	logA := NewLogger(false)
	logB := NewLogger(false)
	schemeA := NewLEAPScheme(master, addrA, cfg.PairwiseKeyLen, 0, logA)
	schemeB := NewLEAPScheme(master, addrB, cfg.PairwiseKeyLen, 0, logB)

	macA, macB := NewLoopbackPair(addrA, addrB)

	var seedA, seedB [16]byte
	seedA[0] = 1
	seedB[0] = 2

	metricsA := NewMetrics(prometheus.NewRegistry())
	metricsB := NewMetrics(prometheus.NewRegistry())

	a = NewCore(cfg, logA, metricsA, macA, NewFramer(), schemeA, seedA, addrA, 0x0001, nil, 1)
	b = NewCore(cfg, logB, metricsB, macB, NewFramer(), schemeB, seedB, addrB, 0x0002, nil, 1)
	macA.AttachSink(a)
	macB.AttachSink(b)
	a.Start()
	b.Start()

	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func bytesRepeat(v byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func bootstrapBoth(t *testing.T, a, b *Core) {
	t.Helper()
	doneA := make(chan struct{})
	doneB := make(chan struct{})
	a.Bootstrap(func() { close(doneA) })
	b.Bootstrap(func() { close(doneB) })

	select {
	case <-doneA:
	case <-time.After(2 * time.Second):
		t.Fatalf("bootstrap did not complete on A in time")
	}
	select {
	case <-doneB:
	case <-time.After(2 * time.Second):
		t.Fatalf("bootstrap did not complete on B in time")
	}
}

func waitForPermanentNeighbor(t *testing.T, c *Core, addr [8]byte) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status := c.Status()
		for _, n := range status.Neighbors {
			if n.Status == "PERMANENT" && n.ExtendedAddr == hex.EncodeToString(addr[:]) {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("never observed %x as a PERMANENT neighbor", addr)
}

func TestAPKESHandshakeEstablishesPermanentNeighbors(t *testing.T) {
	a, b := buildTestPair(t)
	bootstrapBoth(t, a, b)

	waitForPermanentNeighbor(t, a, [8]byte{0xBB})
	waitForPermanentNeighbor(t, b, [8]byte{0xAA})
}

func TestUnicastDataRoundTrips(t *testing.T) {
	a, b := buildTestPair(t)
	bootstrapBoth(t, a, b)
	waitForPermanentNeighbor(t, a, [8]byte{0xBB})
	waitForPermanentNeighbor(t, b, [8]byte{0xAA})

	received := make(chan string, 1)
	b.OnData(func(sender *Neighbor, payload []byte) {
		received <- string(payload)
	})

	sendErr := make(chan error, 1)
	a.Send([8]byte{0xBB}, false, []byte("unicast payload"), func(err error) {
		sendErr <- err
	})

	select {
	case err := <-sendErr:
		if err != nil {
			t.Fatalf("Send completion error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("send completion callback never fired")
	}

	select {
	case got := <-received:
		if got != "unicast payload" {
			t.Fatalf("received %q, want %q", got, "unicast payload")
		}
	case <-time.After(time.Second):
		t.Fatalf("unicast payload never arrived at B")
	}
}

func TestBroadcastDataRoundTrips(t *testing.T) {
	a, b := buildTestPair(t)
	bootstrapBoth(t, a, b)
	waitForPermanentNeighbor(t, a, [8]byte{0xBB})
	waitForPermanentNeighbor(t, b, [8]byte{0xAA})

	received := make(chan string, 1)
	b.OnData(func(sender *Neighbor, payload []byte) {
		received <- string(payload)
	})

	a.Send([8]byte{}, true, []byte("broadcast payload"), func(err error) {
		if err != nil {
			t.Errorf("broadcast send error: %v", err)
		}
	})

	select {
	case got := <-received:
		if got != "broadcast payload" {
			t.Fatalf("received %q, want %q", got, "broadcast payload")
		}
	case <-time.After(time.Second):
		t.Fatalf("broadcast payload never arrived at B")
	}
}

func TestHandshakeCompletionIncrementsMetric(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrickleImin = 15 * time.Millisecond
	cfg.TrickleImaxDoubl = 2
	cfg.MaxWaitingPeriod = 5 * time.Millisecond
	cfg.AckDelay = 5 * time.Millisecond

	addrA := [8]byte{0xCC}
	addrB := [8]byte{0xDD}
	master := bytesRepeat(0x5A, 16)

	logA := NewLogger(false)
	logB := NewLogger(false)
	schemeA := NewLEAPScheme(master, addrA, cfg.PairwiseKeyLen, 0, logA)
	schemeB := NewLEAPScheme(master, addrB, cfg.PairwiseKeyLen, 0, logB)

	macA, macB := NewLoopbackPair(addrA, addrB)

	var seedA, seedB [16]byte
	seedA[0] = 3
	seedB[0] = 4

	metricsA := NewMetrics(prometheus.NewRegistry())
	metricsB := NewMetrics(prometheus.NewRegistry())

	a := NewCore(cfg, logA, metricsA, macA, NewFramer(), schemeA, seedA, addrA, 0x0003, nil, 1)
	b := NewCore(cfg, logB, metricsB, macB, NewFramer(), schemeB, seedB, addrB, 0x0004, nil, 1)
	macA.AttachSink(a)
	macB.AttachSink(b)
	a.Start()
	b.Start()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	bootstrapBoth(t, a, b)
	waitForPermanentNeighbor(t, a, addrB)
	waitForPermanentNeighbor(t, b, addrA)

	if got := testutil.ToFloat64(metricsA.HandshakesTotal.WithLabelValues("success")); got != 1 {
		t.Fatalf("metricsA handshakes total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metricsB.HandshakesTotal.WithLabelValues("success")); got != 1 {
		t.Fatalf("metricsB handshakes total = %v, want 1", got)
	}
}

func TestSendToUnknownNeighborFails(t *testing.T) {
	a, _ := buildTestPair(t)
	errCh := make(chan error, 1)
	a.Send([8]byte{0xFF}, false, []byte("nobody"), func(err error) {
		errCh <- err
	})
	select {
	case err := <-errCh:
		if err != ErrNoNeighbor {
			t.Fatalf("expected ErrNoNeighbor, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("send callback never fired")
	}
}
