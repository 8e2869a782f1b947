/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"bytes"
	"testing"
)

func TestGopacketFramerRoundTripsMACHeaderAndPayload(t *testing.T) {
	f := &Frame{
		MAC: MACHeader{
			SeqNum:       17,
			FramePending: true,
			DestPANID:    0xABCD,
			DestShort:    0x1234,
			SrcShort:     0x5678,
			SrcExtended:  [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
		},
		Payload: []byte("payload bytes"),
	}

	framer := NewFramer()
	wire, err := framer.Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := framer.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.MAC.SeqNum != f.MAC.SeqNum {
		t.Fatalf("SeqNum = %d, want %d", decoded.MAC.SeqNum, f.MAC.SeqNum)
	}
	if decoded.MAC.FramePending != f.MAC.FramePending {
		t.Fatalf("FramePending = %v, want %v", decoded.MAC.FramePending, f.MAC.FramePending)
	}
	if decoded.MAC.DestPANID != f.MAC.DestPANID {
		t.Fatalf("DestPANID = %x, want %x", decoded.MAC.DestPANID, f.MAC.DestPANID)
	}
	if decoded.MAC.SrcExtended != f.MAC.SrcExtended {
		t.Fatalf("SrcExtended = %v, want %v", decoded.MAC.SrcExtended, f.MAC.SrcExtended)
	}
	if !bytes.Equal(decoded.Payload, f.Payload) {
		t.Fatalf("Payload = %q, want %q", decoded.Payload, f.Payload)
	}
	if decoded.Type != FrameTypeData {
		t.Fatalf("Type = %v, want FrameTypeData", decoded.Type)
	}
	if decoded.MAC.DestBroadcast {
		t.Fatalf("DestBroadcast = true, want false")
	}
	if decoded.Security != nil {
		t.Fatalf("Security = %+v, want nil", decoded.Security)
	}
}

func TestGopacketFramerRoundTripsCommandBroadcastAndSecurity(t *testing.T) {
	f := &Frame{
		Type: FrameTypeCommand,
		MAC: MACHeader{
			SeqNum:        3,
			DestBroadcast: true,
			SrcShort:      0x1111,
			SrcExtended:   [8]byte{9, 9, 9, 9, 9, 9, 9, 9},
		},
		Security: &SecurityHeader{
			SecurityLevel: 5,
			KeyIDMode:     1,
			FrameCounter:  0x01020304,
			KeySource:     []byte{0xAA, 0xBB},
			KeyIndex:      7,
		},
		Payload: []byte{0x0D, 0x00, 0x11, 0x22, 0x33, 0x44},
	}

	framer := NewFramer()
	wire, err := framer.Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(wire) != macHeaderLen+f.Security.Size()+len(f.Payload) {
		t.Fatalf("wire length = %d, want %d", len(wire), macHeaderLen+f.Security.Size()+len(f.Payload))
	}

	decoded, err := framer.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Type != FrameTypeCommand {
		t.Fatalf("Type = %v, want FrameTypeCommand", decoded.Type)
	}
	if !decoded.MAC.DestBroadcast {
		t.Fatalf("DestBroadcast = false, want true")
	}
	if decoded.Security == nil {
		t.Fatalf("Security = nil, want a decoded security header")
	}
	if decoded.Security.SecurityLevel != 5 || decoded.Security.KeyIDMode != 1 {
		t.Fatalf("security level/mode = %d/%d, want 5/1", decoded.Security.SecurityLevel, decoded.Security.KeyIDMode)
	}
	if decoded.Security.FrameCounter != 0x01020304 {
		t.Fatalf("FrameCounter = %#x, want %#x", decoded.Security.FrameCounter, 0x01020304)
	}
	if !bytes.Equal(decoded.Security.KeySource, f.Security.KeySource) {
		t.Fatalf("KeySource = %v, want %v", decoded.Security.KeySource, f.Security.KeySource)
	}
	if decoded.Security.KeyIndex != 7 {
		t.Fatalf("KeyIndex = %d, want 7", decoded.Security.KeyIndex)
	}
	if !bytes.Equal(decoded.Payload, f.Payload) {
		t.Fatalf("Payload = %q, want %q", decoded.Payload, f.Payload)
	}
}

func TestGopacketFramerRejectsShortInput(t *testing.T) {
	framer := NewFramer()
	if _, err := framer.Decode([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error decoding a too-short frame")
	}
}
