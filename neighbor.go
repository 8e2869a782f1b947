/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import "time"

// NeighborStatus is the three-state APKES lifecycle from spec §3.
type NeighborStatus uint8

const (
	StatusTentative NeighborStatus = iota
	StatusAwaitingACK
	StatusPermanent
)

func (s NeighborStatus) String() string {
	switch s {
	case StatusTentative:
		return "TENTATIVE"
	case StatusAwaitingACK:
		return "AWAITING_ACK"
	case StatusPermanent:
		return "PERMANENT"
	default:
		return "UNKNOWN"
	}
}

// neighborPayload is the sum type spec §9's DESIGN NOTES call for
// instead of overlapping storage: a TENTATIVE record holds a challenge
// pair, an AWAITING_ACK/PERMANENT record holds a derived pairwise key.
type neighborPayload interface {
	isNeighborPayload()
}

// tentativePayload holds the two challenges exchanged before a
// pairwise key exists, per spec §3(a).
type tentativePayload struct {
	peerChallenge []byte
	ourChallenge  []byte
}

func (tentativePayload) isNeighborPayload() {}

// keyedPayload holds the derived pairwise key, per spec §3(b).
type keyedPayload struct {
	pairwiseKey []byte
}

func (keyedPayload) isNeighborPayload() {}

// replayInfo is the per-neighbor anti-replay state from spec §4.2: a
// minimal highest-counter-seen implementation is sufficient.
type replayInfo struct {
	highest uint32
}

// Neighbor is one record in the neighbor table (spec §3).
type Neighbor struct {
	ExtendedAddr [8]byte
	ShortAddr    uint16
	LocalIndex   uint8
	Status       NeighborStatus
	ForeignIndex uint8
	Replay       replayInfo
	Expiration   time.Time
	Payload      neighborPayload
	BroadcastKey []byte // present only when broadcast encryption is enabled

	sendCounter uint32 // not read or written; outbound frame counters come from the process-wide antiReplay counter
}

// PairwiseKey returns the neighbor's pairwise key, valid only in
// AWAITING_ACK/PERMANENT; returns nil in TENTATIVE.
func (n *Neighbor) PairwiseKey() []byte {
	if kp, ok := n.Payload.(keyedPayload); ok {
		return kp.pairwiseKey
	}
	return nil
}

// NeighborTable is C1: a dense, bounded set of neighbor records,
// ordered by strictly ascending local_index (invariant I1), grounded
// on spec §4.1.
type NeighborTable struct {
	cfg       *Config
	neighbors []*Neighbor // kept sorted ascending by LocalIndex at all times
	now       func() time.Time
}

func NewNeighborTable(cfg *Config) *NeighborTable {
	return &NeighborTable{cfg: cfg, now: time.Now}
}

// head returns the first live record in ascending local_index order,
// or nil if the table is empty.
func (t *NeighborTable) head() *Neighbor {
	if len(t.neighbors) == 0 {
		return nil
	}
	return t.neighbors[0]
}

// next returns the record immediately after r in ascending
// local_index order, or nil if r is the last (or absent).
func (t *NeighborTable) next(r *Neighbor) *Neighbor {
	for i, n := range t.neighbors {
		if n == r {
			if i+1 < len(t.neighbors) {
				return t.neighbors[i+1]
			}
			return nil
		}
	}
	return nil
}

// reclaimExpiredTentative sweeps the table and destroys every
// TENTATIVE record whose expiration has lapsed, per spec §4.1's
// `new()` precondition and invariant I5. A record whose Expiration was
// never set (the zero time) has no deadline and is kept.
func (t *NeighborTable) reclaimExpiredTentative() {
	now := t.now()
	live := t.neighbors[:0]
	for _, n := range t.neighbors {
		if n.Status == StatusTentative && !n.Expiration.IsZero() && !now.Before(n.Expiration) {
			continue // reclaimed
		}
		live = append(live, n)
	}
	t.neighbors = live
}

// new allocates a fresh record at the smallest unused non-negative
// local_index, per spec §4.1.
func (t *NeighborTable) new() (*Neighbor, error) {
	t.reclaimExpiredTentative()

	max := t.cfg.NeighborMax()
	if len(t.neighbors) >= max {
		return nil, ErrTableFull
	}

	idx := uint8(0)
	pos := 0
	for pos < len(t.neighbors) {
		if t.neighbors[pos].LocalIndex > idx {
			break
		}
		idx = t.neighbors[pos].LocalIndex + 1
		pos++
	}

	n := &Neighbor{LocalIndex: idx}
	t.neighbors = append(t.neighbors, nil)
	copy(t.neighbors[pos+1:], t.neighbors[pos:])
	t.neighbors[pos] = n
	return n, nil
}

// get performs the linear scan from spec §4.1.
func (t *NeighborTable) get(addr [8]byte) (*Neighbor, error) {
	for _, n := range t.neighbors {
		if n.ExtendedAddr == addr {
			return n, nil
		}
	}
	return nil, ErrNoNeighbor
}

// countTentative counts currently-live TENTATIVE records, enforcing
// invariant I4 at the call site in apkes.go.
func (t *NeighborTable) countTentative() int {
	n := 0
	for _, nb := range t.neighbors {
		if nb.Status == StatusTentative {
			n++
		}
	}
	return n
}

// updateIDs copies the sender extended address (from the current
// ingress frame) and the short address (from the caller-supplied
// bytes) into record, per spec §4.1.
func (t *NeighborTable) updateIDs(record *Neighbor, extAddr [8]byte, shortAddrBytes []byte) {
	record.ExtendedAddr = extAddr
	record.ShortAddr = uint16(shortAddrBytes[0]) | uint16(shortAddrBytes[1])<<8
}

// promote transitions record to PERMANENT, resetting anti-replay state
// and copying foreign_index / broadcast key from data, per spec §4.1.
func (t *NeighborTable) promote(record *Neighbor, data []byte) {
	record.Status = StatusPermanent
	record.Replay = replayInfo{}
	record.ForeignIndex = data[0]
	if t.cfg.BroadcastKeyLen > 0 && len(data) >= 1+t.cfg.BroadcastKeyLen {
		record.BroadcastKey = append([]byte(nil), data[1:1+t.cfg.BroadcastKeyLen]...)
	}
}

// remove unlinks record from the table, per spec §4.1, and zeroises its
// pairwise and broadcast key buffers.
func (t *NeighborTable) remove(record *Neighbor) {
	for i, n := range t.neighbors {
		if n == record {
			if kp, ok := n.Payload.(keyedPayload); ok {
				for j := range kp.pairwiseKey {
					kp.pairwiseKey[j] = 0
				}
			}
			for j := range n.BroadcastKey {
				n.BroadcastKey[j] = 0
			}
			t.neighbors = append(t.neighbors[:i], t.neighbors[i+1:]...)
			return
		}
	}
}

// forEachPermanent iterates live PERMANENT neighbors in ascending
// local_index order, the traversal EBEAP's broadcast send needs.
func (t *NeighborTable) forEachPermanent(fn func(*Neighbor)) {
	for n := t.head(); n != nil; n = t.next(n) {
		if n.Status == StatusPermanent {
			fn(n)
		}
	}
}

// maxPermanentIndex returns the highest local_index among live
// PERMANENT neighbors, and whether any exist.
func (t *NeighborTable) maxPermanentIndex() (uint8, bool) {
	found := false
	var max uint8
	t.forEachPermanent(func(n *Neighbor) {
		if !found || n.LocalIndex > max {
			max = n.LocalIndex
		}
		found = true
	})
	return max, found
}
