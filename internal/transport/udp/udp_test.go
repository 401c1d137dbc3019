// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"testing"
	"time"

	"soundreactive/internal/transport"
)

func testMessage() transport.FeatureMessage {
	return transport.FeatureMessage{
		Seq:           42,
		Timestamp:     1234,
		Loudness:      1800,
		Bass:          0.5,
		Mid:           0.25,
		Treble:        0.125,
		Energy:        0.3,
		Peak:          0.9,
		Beat:          true,
		GateOpen:      true,
		OnsetStrength: 2.5,
		BPM:           128,
		Bins:          []float64{0.1, 0.2, 0.4, 0.8},
	}
}

func TestEncodeDecode(t *testing.T) {
	var enc Encoder
	b, err := enc.Encode(testMessage())
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != HeaderSize+4*4 {
		t.Fatalf("packet length = %d, want %d", len(b), HeaderSize+16)
	}

	p, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if p.Seq != 42 || p.Timestamp != 1234 || p.BPM != 128 || p.Bass != 0.5 || p.Peak != 0.9 {
		t.Errorf("decoded %+v", p)
	}
	if p.Flags != FlagBeat|FlagGateOpen {
		t.Errorf("flags = %03b, want beat and gate", p.Flags)
	}
	if len(p.Bins) != 4 || p.Bins[3] != 0.8 {
		t.Errorf("bins = %v", p.Bins)
	}

	m := testMessage()
	m.Bins = nil
	if b, _ := enc.Encode(m); len(b) != HeaderSize {
		t.Errorf("empty-bin packet length = %d, want %d", len(b), HeaderSize)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	var enc Encoder
	good, _ := enc.Encode(testMessage())
	good = append([]byte(nil), good...)

	tests := []struct {
		name string
		b    []byte
	}{
		{"Empty", nil},
		{"Short Header", good[:HeaderSize-1]},
		{"Truncated Bins", good[:len(good)-2]},
		{"Trailing Bytes", append(append([]byte(nil), good...), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.b); err == nil {
				t.Error("Decode accepted a malformed packet")
			}
		})
	}
}

func TestUDPTransportDelivers(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ut, err := NewUDPTransport(ln.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	if ut.Target() != ln.LocalAddr().String() {
		t.Errorf("Target() = %q, want %q", ut.Target(), ln.LocalAddr())
	}
	m := testMessage()
	if err := ut.Send(&m); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 2048)
	_ = ln.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := ln.ReadFromUDP(buf)
	if err != nil {
		t.Fatal(err)
	}
	p, err := Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if p.Seq != m.Seq || len(p.Bins) != len(m.Bins) {
		t.Errorf("received %+v", p)
	}
	if ut.Sent() != 1 {
		t.Errorf("Sent() = %d, want 1", ut.Sent())
	}

	if err := ut.Send("not a message"); err == nil {
		t.Error("Send accepted an unsupported type")
	}
	if err := ut.Close(); err != nil {
		t.Fatal(err)
	}
	if err := ut.Send(m); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v, want ErrSenderClosed", err)
	}
	if err := ut.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewUDPTransportBadAddress(t *testing.T) {
	if _, err := NewUDPTransport("not-an-address"); err == nil {
		t.Error("expected resolve error")
	}
}

func BenchmarkEncode(b *testing.B) {
	var enc Encoder
	m := testMessage()
	m.Bins = make([]float64, 16)
	b.ReportAllocs()
	for b.Loop() {
		_, _ = enc.Encode(m)
	}
}
