/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config carries the cipher-length parameters (invariant I2), the
// APKES/Trickle timing constants (§4.4), and the table-size bounds
// (I3/I4) that are fixed once at initialization and held for the
// lifetime of the process. Grounded on manager/config.go's
// LoadConfig/SaveConfig: RWMutex-guarded package state, atomic
// temp-file-then-rename persistence, JSON encoding.
type Config struct {
	PairwiseKeyLen   int           `json:"pairwise_key_len"`
	BroadcastKeyLen  int           `json:"broadcast_key_len"`
	UnicastMICLen    int           `json:"unicast_mic_len"`
	MaxTentative     int           `json:"max_tentative_neighbors"`
	MaxBufferedMICs  int           `json:"max_buffered_ccm_mics"`
	TrickleImin      time.Duration `json:"trickle_imin"`
	TrickleImaxDoubl int           `json:"trickle_imax_doublings"`
	TrickleK         int           `json:"trickle_k"`
	MaxWaitingPeriod time.Duration `json:"apkes_max_waiting_period"`
	AckDelay         time.Duration `json:"apkes_ack_delay"`
	SecurityLevel    byte          `json:"security_level"`
}

// ChallengeLen is PAIRWISE_KEY_LEN/2, per spec §4.4.
func (c *Config) ChallengeLen() int { return c.PairwiseKeyLen / 2 }

// BroadcastMICLen is UNICAST_MIC+1, per invariant I2.
func (c *Config) BroadcastMICLen() int { return c.UnicastMICLen + 1 }

// NeighborMax derives NEIGHBOR_MAX = floor((127-19)/BROADCAST_MIC),
// per invariant I3 (one MAC frame must carry the full MIC vector).
func (c *Config) NeighborMax() int {
	return (127 - 19) / c.BroadcastMICLen()
}

// Validate enforces invariant I2's closed value sets.
func (c *Config) Validate() error {
	switch c.PairwiseKeyLen {
	case 10, 12, 16:
	default:
		return fmt.Errorf("coresec: invalid pairwise_key_len %d (must be 10, 12 or 16)", c.PairwiseKeyLen)
	}
	switch c.BroadcastKeyLen {
	case 0, 8, 12:
	default:
		return fmt.Errorf("coresec: invalid broadcast_key_len %d (must be 0, 8 or 12)", c.BroadcastKeyLen)
	}
	switch c.UnicastMICLen {
	case 4, 6, 8:
	default:
		return fmt.Errorf("coresec: invalid unicast_mic_len %d (must be 4, 6 or 8)", c.UnicastMICLen)
	}
	if c.MaxTentative <= 0 {
		return fmt.Errorf("coresec: max_tentative_neighbors must be positive")
	}
	return nil
}

// DefaultConfig matches the concrete scenario constants in spec §4.4/§8:
// Imin=30s, Imax=8 doublings, K=2.
func DefaultConfig() *Config {
	return &Config{
		PairwiseKeyLen:   16,
		BroadcastKeyLen:  0,
		UnicastMICLen:    4,
		MaxTentative:     8,
		MaxBufferedMICs:  16,
		TrickleImin:      30 * time.Second,
		TrickleImaxDoubl: 8,
		TrickleK:         2,
		MaxWaitingPeriod: 4 * time.Second,
		AckDelay:         2 * time.Second,
		SecurityLevel:    5,
	}
}

var configLock sync.RWMutex

// LoadConfig loads a Config from path, or returns DefaultConfig() if
// the file does not exist yet.
func LoadConfig(path string) (*Config, error) {
	configLock.RLock()
	defer configLock.RUnlock()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coresec: failed to read config: %w", err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("coresec: failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveConfig atomically persists c to path: write to a temp file in
// the same directory, then rename over the destination.
func SaveConfig(path string, c *Config) error {
	configLock.Lock()
	defer configLock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
