// SPDX-License-Identifier: MIT
/*
Package transport pushes pipeline features to consumers outside the
process. A Publisher polls the pipeline at a fixed rate, turns each new
snapshot into a FeatureMessage and hands it to every configured Transport:

  - WebSocketTransport: JSON broadcast to browser clients
  - udp.UDPTransport: compact binary packets for lighting controllers
  - LoggingTransport: debug output
*/
package transport

import (
	"errors"

	"soundreactive/internal/pipeline"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// SnapshotSource is the read side of the pipeline.
type SnapshotSource interface {
	Snapshot() pipeline.Snapshot
}

var _ SnapshotSource = (*pipeline.Pipeline)(nil)
