// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	applog "soundreactive/internal/log"
)

// DefaultInterval is used when a Publisher is given a non-positive interval.
const DefaultInterval = 33 * time.Millisecond

// Publisher periodically snapshots the pipeline and sends a FeatureMessage
// to each transport. A tick with no new frame since the last send is
// skipped. It runs in a separate goroutine managed by Start and Stop.
type Publisher struct {
	source     SnapshotSource
	transports []Transport
	interval   time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	seq        uint32
	prev       *FeatureMessage
	lastFrames uint64
}

// NewPublisher creates a publisher sending source snapshots to transports
// every interval.
func NewPublisher(interval time.Duration, source SnapshotSource, transports ...Transport) (*Publisher, error) {
	if source == nil {
		return nil, errors.New("publisher: snapshot source cannot be nil")
	}
	if len(transports) == 0 {
		return nil, errors.New("publisher: at least one transport is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("Publisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("Publisher: Initializing (Interval: %s, Transports: %d)", interval, len(transports))
	return &Publisher{
		source:     source,
		transports: transports,
		interval:   interval,
	}, nil
}

// Start begins the periodic publishing process. Calling Start on a running
// publisher is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("Publisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Local copies keep the goroutine off p.ticker and p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("Publisher: Goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.Publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it. It is
// safe to call more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("Publisher: Stopped after %d messages", p.seq)
	return nil
}

// Publish sends the current snapshot now. It reports whether a message was
// sent and joins the errors of failing transports. Publish is called from
// the ticker goroutine; call it directly only while stopped.
func (p *Publisher) Publish() (bool, error) {
	snap := p.source.Snapshot()
	if snap.Frames == p.lastFrames {
		return false, nil
	}
	p.lastFrames = snap.Frames
	p.seq++

	msg := NewFeatureMessage(p.seq, snap, p.prev)
	p.prev = &msg

	var errs []error
	for _, t := range p.transports {
		if err := t.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", t, err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		applog.Debugf("Publisher: Message %d: %v", p.seq, err)
	}
	return true, err
}

// Close stops the publisher and closes every transport.
func (p *Publisher) Close() error {
	errs := []error{p.Stop()}
	for _, t := range p.transports {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

var _ interface{ Close() error } = (*Publisher)(nil)
