/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2017-2025 WireGuard LLC. All Rights Reserved.
 */

package coresec

import (
	"encoding/binary"
	"fmt"

	"github.com/google/gopacket"
)

// LayerTypeIEEE802154MAC registers a custom gopacket layer for the
// 802.15.4 MAC header coresec cares about. gopacket ships no 802.15.4
// layer out of the box (grounded on lcalzada-xor-wmap's go.mod, the
// only retrieved example with a gopacket dependency), so this is a
// minimal custom DecodingLayer/SerializableLayer rather than a
// complete 802.15.4 stack.
var LayerTypeIEEE802154MAC = gopacket.RegisterLayerType(
	1701,
	gopacket.LayerTypeMetadata{Name: "IEEE802154MAC", Decoder: gopacket.DecodeFunc(decodeIEEE802154MAC)},
)

// flags byte bits packed alongside the MAC header, spec §6.
const (
	flagFramePending byte = 1 << 0
	flagIsCommand    byte = 1 << 1
	flagDestBcast    byte = 1 << 2
	flagHasSecurity  byte = 1 << 3
)

const macHeaderLen = 16 // SeqNum, flags, DestPANID, DestShort, SrcShort, SrcExtended

// macLayer is the gopacket layer carrying every field of Frame except
// the payload: the MAC header, the frame type / broadcast flags, and
// the security auxiliary header (spec §6), so the wire form actually
// carries what CCM*-MIC verification and APKES/EBEAP parsing need
// rather than just the MAC addressing fields.
type macLayer struct {
	layerContents []byte
	layerPayload  []byte
	header        MACHeader
	frameType     FrameType
	destBroadcast bool
	security      *SecurityHeader
}

func (l *macLayer) LayerType() gopacket.LayerType { return LayerTypeIEEE802154MAC }
func (l *macLayer) LayerContents() []byte         { return l.layerContents }
func (l *macLayer) LayerPayload() []byte          { return l.layerPayload }
func (l *macLayer) Payload() []byte               { return l.layerPayload }

func (l *macLayer) DecodeFromBytes(data []byte, _ gopacket.DecodeFeedback) error {
	if len(data) < macHeaderLen {
		return fmt.Errorf("coresec: short IEEE802154MAC header (%d bytes)", len(data))
	}
	flags := data[1]
	l.header.SeqNum = data[0]
	l.header.FramePending = flags&flagFramePending != 0
	l.header.DestPANID = binary.LittleEndian.Uint16(data[2:4])
	l.header.DestShort = binary.LittleEndian.Uint16(data[4:6])
	l.header.SrcShort = binary.LittleEndian.Uint16(data[6:8])
	copy(l.header.SrcExtended[:], data[8:16])
	l.header.DestBroadcast = flags&flagDestBcast != 0
	l.destBroadcast = l.header.DestBroadcast

	if flags&flagIsCommand != 0 {
		l.frameType = FrameTypeCommand
	} else {
		l.frameType = FrameTypeData
	}

	cursor := macHeaderLen
	l.security = nil
	if flags&flagHasSecurity != 0 {
		if len(data) < cursor+5 {
			return fmt.Errorf("coresec: short security header (%d bytes)", len(data)-cursor)
		}
		control := data[cursor]
		sec := &SecurityHeader{
			SecurityLevel: control & 0x07,
			KeyIDMode:     (control >> 3) & 0x03,
			FrameCounter:  binary.LittleEndian.Uint32(data[cursor+1 : cursor+5]),
		}
		cursor += 5
		if sec.KeyIDMode != 0 {
			if len(data) < cursor+1 {
				return fmt.Errorf("coresec: truncated key identifier length")
			}
			ksLen := int(data[cursor])
			cursor++
			if len(data) < cursor+ksLen+1 {
				return fmt.Errorf("coresec: truncated key identifier (%d bytes)", ksLen)
			}
			sec.KeySource = append([]byte(nil), data[cursor:cursor+ksLen]...)
			cursor += ksLen
			sec.KeyIndex = data[cursor]
			cursor++
		}
		l.security = sec
	}

	l.layerContents = data[:cursor]
	l.layerPayload = data[cursor:]
	return nil
}

func (l *macLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	secLen := 0
	if l.security != nil {
		secLen = l.security.Size()
	}
	bytes, err := b.PrependBytes(macHeaderLen + secLen)
	if err != nil {
		return err
	}

	flags := byte(0)
	if l.header.FramePending {
		flags |= flagFramePending
	}
	if l.frameType == FrameTypeCommand {
		flags |= flagIsCommand
	}
	if l.destBroadcast {
		flags |= flagDestBcast
	}
	if l.security != nil {
		flags |= flagHasSecurity
	}

	bytes[0] = l.header.SeqNum
	bytes[1] = flags
	binary.LittleEndian.PutUint16(bytes[2:4], l.header.DestPANID)
	binary.LittleEndian.PutUint16(bytes[4:6], l.header.DestShort)
	binary.LittleEndian.PutUint16(bytes[6:8], l.header.SrcShort)
	copy(bytes[8:16], l.header.SrcExtended[:])

	if l.security != nil {
		cursor := macHeaderLen
		control := (l.security.SecurityLevel & 0x07) | ((l.security.KeyIDMode & 0x03) << 3)
		bytes[cursor] = control
		binary.LittleEndian.PutUint32(bytes[cursor+1:cursor+5], l.security.FrameCounter)
		cursor += 5
		if l.security.KeyIDMode != 0 {
			bytes[cursor] = byte(len(l.security.KeySource))
			cursor++
			copy(bytes[cursor:cursor+len(l.security.KeySource)], l.security.KeySource)
			cursor += len(l.security.KeySource)
			bytes[cursor] = l.security.KeyIndex
		}
	}
	return nil
}

func decodeIEEE802154MAC(data []byte, p gopacket.PacketBuilder) error {
	l := &macLayer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return p.NextDecoder(gopacket.LayerTypePayload)
}

// Framer is the 802.15.4 framer collaborator from spec §6: it
// serializes/parses MAC headers, turning a structured Frame into wire
// bytes and back. Every Core send path runs its outbound Frame through
// Encode before handing bytes to the MACDriver, and Core.Input runs
// every inbound MACDriver delivery through Decode before any APKES/
// EBEAP/anti-replay logic sees it — the framer sits on the wire path,
// not beside it.
type Framer interface {
	Encode(f *Frame) ([]byte, error)
	Decode(wire []byte) (*Frame, error)
}

// gopacketFramer implements Framer with gopacket's SerializeBuffer /
// SerializeLayers machinery.
type gopacketFramer struct{}

func NewFramer() Framer { return &gopacketFramer{} }

func (gopacketFramer) Encode(f *Frame) ([]byte, error) {
	layer := &macLayer{
		header:        f.MAC,
		frameType:     f.Type,
		destBroadcast: f.MAC.DestBroadcast,
		security:      f.Security,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{}
	if err := gopacket.SerializeLayers(buf, opts, layer, gopacket.Payload(f.Payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gopacketFramer) Decode(wire []byte) (*Frame, error) {
	pkt := gopacket.NewPacket(wire, LayerTypeIEEE802154MAC, gopacket.NoCopy)
	layer := pkt.Layer(LayerTypeIEEE802154MAC)
	if layer == nil {
		return nil, ErrOutOfBounds
	}
	ml, ok := layer.(*macLayer)
	if !ok {
		return nil, ErrOutOfBounds
	}
	return &Frame{
		Type:     ml.frameType,
		MAC:      ml.header,
		Security: ml.security,
		Payload:  append([]byte(nil), ml.layerPayload...),
	}, nil
}
