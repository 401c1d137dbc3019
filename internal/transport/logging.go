// SPDX-License-Identifier: MIT
package transport

import (
	applog "soundreactive/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs a one-line summary of data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	switch m := data.(type) {
	case FeatureMessage:
		applog.Debugf("LOG_TRANSPORT: #%d t=%dms loud=%.0f bass=%.3f mid=%.3f treble=%.3f beat=%v onset=%v bpm=%.1f",
			m.Seq, m.Timestamp, m.Loudness, m.Bass, m.Mid, m.Treble, m.Beat, m.Onset, m.BPM)
	default:
		applog.Debugf("LOG_TRANSPORT: Received (%T): %+v", data, data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
