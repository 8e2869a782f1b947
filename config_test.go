/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"path/filepath"
	"testing"
)

func TestConfigDerivedLengths(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ChallengeLen(); got != cfg.PairwiseKeyLen/2 {
		t.Fatalf("ChallengeLen() = %d, want %d", got, cfg.PairwiseKeyLen/2)
	}
	if got := cfg.BroadcastMICLen(); got != cfg.UnicastMICLen+1 {
		t.Fatalf("BroadcastMICLen() = %d, want %d", got, cfg.UnicastMICLen+1)
	}
	wantMax := (127 - 19) / cfg.BroadcastMICLen()
	if got := cfg.NeighborMax(); got != wantMax {
		t.Fatalf("NeighborMax() = %d, want %d", got, wantMax)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PairwiseKeyLen = 15
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for invalid pairwise_key_len")
	}

	cfg = DefaultConfig()
	cfg.BroadcastKeyLen = 5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for invalid broadcast_key_len")
	}

	cfg = DefaultConfig()
	cfg.UnicastMICLen = 3
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for invalid unicast_mic_len")
	}

	cfg = DefaultConfig()
	cfg.MaxTentative = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected an error for non-positive max_tentative_neighbors")
	}
}

func TestConfigValidateAcceptsDefault(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig() should validate cleanly: %v", err)
	}
}

func TestSaveAndLoadConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coresec.json")

	cfg := DefaultConfig()
	cfg.UnicastMICLen = 8
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.UnicastMICLen != 8 {
		t.Fatalf("loaded UnicastMICLen = %d, want 8", loaded.UnicastMICLen)
	}
	if loaded.TrickleImin != cfg.TrickleImin {
		t.Fatalf("loaded TrickleImin = %v, want %v", loaded.TrickleImin, cfg.TrickleImin)
	}
}

func TestLoadConfigMissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(filepath.Join(dir, "does-not-exist.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PairwiseKeyLen != DefaultConfig().PairwiseKeyLen {
		t.Fatalf("expected default config when file is missing")
	}
}
