/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStatusReportsBootstrapAndNeighbors(t *testing.T) {
	a, b := buildTestPair(t)
	bootstrapBoth(t, a, b)
	waitForPermanentNeighbor(t, a, [8]byte{0xBB})

	report := a.Status()
	if !report.Bootstrapped {
		t.Fatalf("expected Bootstrapped=true after bootstrap completed")
	}
	found := false
	for _, n := range report.Neighbors {
		if n.Status == "PERMANENT" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a PERMANENT neighbor in the status report, got %+v", report.Neighbors)
	}
}

func TestStatusHandlerServesJSON(t *testing.T) {
	a, b := buildTestPair(t)
	bootstrapBoth(t, a, b)
	waitForPermanentNeighbor(t, a, [8]byte{0xBB})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	a.StatusHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status handler returned %d, want 200", rec.Code)
	}

	var report statusReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("failed to decode status JSON: %v", err)
	}
	if !report.Bootstrapped {
		t.Fatalf("expected Bootstrapped=true in decoded JSON")
	}
}

func TestStatusConcurrentCallsDoNotRace(t *testing.T) {
	a, _ := buildTestPair(t)
	a.Bootstrap(func() {})

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			a.Status()
			done <- struct{}{}
		}()
	}
	timeout := time.After(2 * time.Second)
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-timeout:
			t.Fatalf("concurrent Status() calls did not all complete")
		}
	}
}
