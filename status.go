/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
)

// neighborStatus is the JSON-facing projection of a Neighbor, grounded
// on the introspection shape of the teacher's device/uapi.go and
// manager/webui.go, reduced to what a headless sensor node can afford:
// a single read-only endpoint instead of a control-protocol parser.
type neighborStatus struct {
	ExtendedAddr string `json:"extended_addr"`
	ShortAddr    uint16 `json:"short_addr"`
	LocalIndex   uint8  `json:"local_index"`
	ForeignIndex uint8  `json:"foreign_index,omitempty"`
	Status       string `json:"status"`
}

type statusReport struct {
	Neighbors     []neighborStatus `json:"neighbors"`
	Bootstrapped  bool             `json:"bootstrapped"`
	TrickleIMs    int64            `json:"trickle_interval_ms"`
	TentativeHeld int              `json:"tentative_held"`
}

// Status snapshots the current neighbor table and Trickle state. It
// is safe to call from any goroutine: it hops onto the event loop and
// blocks for the result.
func (c *Core) Status() statusReport {
	done := make(chan statusReport, 1)
	c.run(func() {
		var report statusReport
		for n := c.table.head(); n != nil; n = c.table.next(n) {
			report.Neighbors = append(report.Neighbors, neighborStatus{
				ExtendedAddr: hex.EncodeToString(n.ExtendedAddr[:]),
				ShortAddr:    n.ShortAddr,
				LocalIndex:   n.LocalIndex,
				ForeignIndex: n.ForeignIndex,
				Status:       n.Status.String(),
			})
		}
		report.Bootstrapped = c.trickle.bootstrapped()
		report.TrickleIMs = c.trickle.i.Milliseconds()
		report.TentativeHeld = c.table.countTentative()
		done <- report
	})
	return <-done
}

// StatusHandler serves the current Status() as JSON, the read-only
// introspection surface spec §1 explicitly keeps outside the core's
// "CLI/example preload utilities" non-goal (this just exposes
// already-computed state, it does not provision anything).
func (c *Core) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c.Status())
	})
}
