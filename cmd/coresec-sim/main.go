/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

// Command coresec-sim wires two in-process coresec cores together over
// a loopback MAC, drives a real APKES handshake and one EBEAP
// broadcast round, and prints the resulting neighbor tables. Grounded
// on the teacher's demo/ directory: a small, standalone illustration
// of one subsystem, here exercising a full two-node handshake instead
// of a raw UDP echo.
package main

import (
	"fmt"
	"time"

	"github.com/krentz-mesh/coresec"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := coresec.DefaultConfig()
	cfg.TrickleImin = 200 * time.Millisecond
	cfg.MaxWaitingPeriod = 50 * time.Millisecond
	cfg.AckDelay = 20 * time.Millisecond

	addrA := [8]byte{1, 0, 0, 0, 0, 0, 0, 0}
	addrB := [8]byte{2, 0, 0, 0, 0, 0, 0, 0}

	master := []byte{
		0x11, 0x11, 0x11, 0x11, 0x22, 0x22, 0x22, 0x22,
		0x33, 0x33, 0x33, 0x33, 0x44, 0x44, 0x44, 0x44,
	}
	logA := coresec.NewLogger(true)
	logB := coresec.NewLogger(true)

	schemeA := coresec.NewLEAPScheme(master, addrA, cfg.PairwiseKeyLen, 0, logA)
	schemeB := coresec.NewLEAPScheme(master, addrB, cfg.PairwiseKeyLen, 0, logB)

	macA, macB := coresec.NewLoopbackPair(addrA, addrB)

	regA := prometheus.NewRegistry()
	regB := prometheus.NewRegistry()
	metricsA := coresec.NewMetrics(regA)
	metricsB := coresec.NewMetrics(regB)

	var seedA, seedB [16]byte
	copy(seedA[:], []byte("AAAAAAAAAAAAAAAA"))
	copy(seedB[:], []byte("BBBBBBBBBBBBBBBB"))

	coreA := coresec.NewCore(cfg, logA, metricsA, macA, coresec.NewFramer(), schemeA, seedA, addrA, 0x0001, nil, 1)
	coreB := coresec.NewCore(cfg, logB, metricsB, macB, coresec.NewFramer(), schemeB, seedB, addrB, 0x0002, nil, 1)
	macA.AttachSink(coreA)
	macB.AttachSink(coreB)

	coreA.OnData(func(sender *coresec.Neighbor, payload []byte) {
		fmt.Printf("A received %q\n", payload)
	})
	coreB.OnData(func(sender *coresec.Neighbor, payload []byte) {
		fmt.Printf("B received %q\n", payload)
	})

	coreA.Start()
	coreB.Start()

	bootA := make(chan struct{})
	bootB := make(chan struct{})
	coreA.Bootstrap(func() { close(bootA) })
	coreB.Bootstrap(func() { close(bootB) })

	<-bootA
	<-bootB
	fmt.Println("both nodes bootstrapped")

	time.Sleep(100 * time.Millisecond)

	coreA.Send(addrB, false, []byte("hello from A"), func(err error) {
		if err != nil {
			fmt.Println("A->B send error:", err)
		}
	})
	coreB.Send(addrA, false, []byte("hello from B"), func(err error) {
		if err != nil {
			fmt.Println("B->A send error:", err)
		}
	})
	coreA.Send([8]byte{}, true, []byte("broadcast from A"), func(err error) {
		if err != nil {
			fmt.Println("A broadcast error:", err)
		}
	})
	coreB.Send([8]byte{}, true, []byte("broadcast from B"), func(err error) {
		if err != nil {
			fmt.Println("B broadcast error:", err)
		}
	})

	time.Sleep(100 * time.Millisecond)

	statusA := coreA.Status()
	statusB := coreB.Status()
	fmt.Printf("A's neighbors: %+v\n", statusA.Neighbors)
	fmt.Printf("B's neighbors: %+v\n", statusB.Neighbors)

	coreA.Close()
	coreB.Close()
}
