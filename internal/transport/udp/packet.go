// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"soundreactive/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+------------------------------------------------------------------------------+
| Field             | Data Type    | Size (Bytes) | Description                  |
|-------------------|--------------|--------------|------------------------------|
| Sequence Number   | uint32       | 4            | Monotonically increasing     |
| Timestamp         | int64        | 8            | Capture time in milliseconds |
| Flags             | uint8        | 1            | Beat, onset, gate open       |
| Levels            | [8]float32   | 32           | See Packet field order       |
| Bin Count         | uint16       | 2            | Number of bins (N)           |
| Bins              | []float32    | N * 4        | Logarithmic spectrum bins    |
+------------------------------------------------------------------------------+
*/

// HeaderSize is the packet length without bins.
const HeaderSize = 4 + 8 + 1 + 8*4 + 2

// Flag bits.
const (
	FlagBeat uint8 = 1 << iota
	FlagOnset
	FlagGateOpen
)

// Packet is the decoded form of one datagram.
type Packet struct {
	Seq           uint32
	Timestamp     int64
	Flags         uint8
	Loudness      float32
	Bass          float32
	Mid           float32
	Treble        float32
	Energy        float32
	Peak          float32
	OnsetStrength float32
	BPM           float32
	Bins          []float32
}

// Encoder packs messages into reusable buffers. Not safe for concurrent use.
type Encoder struct {
	buf  bytes.Buffer
	bins []float32
}

// Encode packs m. The returned slice is valid until the next call.
func (e *Encoder) Encode(m transport.FeatureMessage) ([]byte, error) {
	if len(m.Bins) > math.MaxUint16 {
		return nil, fmt.Errorf("too many bins for one packet: %d", len(m.Bins))
	}
	var flags uint8
	if m.Beat {
		flags |= FlagBeat
	}
	if m.Onset {
		flags |= FlagOnset
	}
	if m.GateOpen {
		flags |= FlagGateOpen
	}
	levels := [8]float32{
		float32(m.Loudness), float32(m.Bass), float32(m.Mid), float32(m.Treble),
		float32(m.Energy), float32(m.Peak), float32(m.OnsetStrength), float32(m.BPM),
	}

	e.bins = e.bins[:0]
	for _, v := range m.Bins {
		e.bins = append(e.bins, float32(v))
	}

	e.buf.Reset()
	e.buf.Grow(HeaderSize + 4*len(e.bins))
	err := binary.Write(&e.buf, binary.BigEndian, m.Seq)
	if err == nil {
		err = binary.Write(&e.buf, binary.BigEndian, m.Timestamp)
	}
	if err == nil {
		err = e.buf.WriteByte(flags)
	}
	if err == nil {
		err = binary.Write(&e.buf, binary.BigEndian, levels)
	}
	if err == nil {
		err = binary.Write(&e.buf, binary.BigEndian, uint16(len(e.bins)))
	}
	if err == nil {
		err = binary.Write(&e.buf, binary.BigEndian, e.bins)
	}
	if err != nil {
		return nil, fmt.Errorf("packing feature packet: %w", err)
	}
	return e.buf.Bytes(), nil
}

// Decode parses a datagram produced by Encode.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	var p Packet
	r := bytes.NewReader(b)
	var levels [8]float32
	var count uint16
	err := binary.Read(r, binary.BigEndian, &p.Seq)
	if err == nil {
		err = binary.Read(r, binary.BigEndian, &p.Timestamp)
	}
	if err == nil {
		p.Flags, err = r.ReadByte()
	}
	if err == nil {
		err = binary.Read(r, binary.BigEndian, &levels)
	}
	if err == nil {
		err = binary.Read(r, binary.BigEndian, &count)
	}
	if err != nil {
		return Packet{}, fmt.Errorf("reading packet header: %w", err)
	}
	if r.Len() != int(count)*4 {
		return Packet{}, fmt.Errorf("packet announces %d bins but carries %d bytes", count, r.Len())
	}
	p.Bins = make([]float32, count)
	if err := binary.Read(r, binary.BigEndian, p.Bins); err != nil {
		return Packet{}, fmt.Errorf("reading bins: %w", err)
	}
	p.Loudness, p.Bass, p.Mid, p.Treble = levels[0], levels[1], levels[2], levels[3]
	p.Energy, p.Peak, p.OnsetStrength, p.BPM = levels[4], levels[5], levels[6], levels[7]
	return p, nil
}
