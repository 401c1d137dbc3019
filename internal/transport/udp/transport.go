// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"

	applog "soundreactive/internal/log"
	"soundreactive/internal/transport"
)

// UDPTransport encodes feature messages into packets and sends them with a
// UDPSender.
type UDPTransport struct {
	sender *UDPSender
	mu     sync.Mutex
	enc    Encoder
	sent   uint64
}

// NewUDPTransport dials targetAddress.
func NewUDPTransport(targetAddress string) (*UDPTransport, error) {
	sender, err := NewUDPSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &UDPTransport{sender: sender}, nil
}

// Target is the address packets are sent to.
func (t *UDPTransport) Target() string {
	return t.sender.Target()
}

// Send accepts a transport.FeatureMessage or a pointer to one.
func (t *UDPTransport) Send(data any) error {
	var m transport.FeatureMessage
	switch v := data.(type) {
	case transport.FeatureMessage:
		m = v
	case *transport.FeatureMessage:
		m = *v
	default:
		return fmt.Errorf("udp transport cannot send %T", data)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	packet, err := t.enc.Encode(m)
	if err != nil {
		return err
	}
	if err := t.sender.Send(packet); err != nil {
		return err
	}
	t.sent++
	applog.Debugf("UDPTransport: Sent packet %d (%d bytes)", m.Seq, len(packet))
	return nil
}

// Sent is the number of packets written.
func (t *UDPTransport) Sent() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

func (t *UDPTransport) Close() error {
	return t.sender.Close()
}

var _ transport.Transport = (*UDPTransport)(nil)
