// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"sync"
	"time"

	applog "passthru/internal/log"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 33 * time.Millisecond

// Publisher periodically samples a Source and sends the frame to every
// transport. It runs in a separate goroutine managed by Start and Stop.
type Publisher struct {
	source     Source
	transports []Transport
	interval   time.Duration

	ticker   *time.Ticker   // Ticker that triggers sampling.
	doneChan chan struct{}  // Signals the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	seq uint32
}

// NewPublisher creates a publisher sampling source every interval.
// If the interval is invalid (<= 0), it defaults to DefaultInterval.
func NewPublisher(interval time.Duration, source Source, transports ...Transport) (*Publisher, error) {
	if source == nil {
		return nil, errors.New("publisher: source cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultInterval
		applog.Warnf("publisher: invalid interval, defaulting to %s", interval)
	}
	return &Publisher{
		source:     source,
		transports: transports,
		interval:   interval,
	}, nil
}

// Start begins the periodic publishing process.
// It is safe to call Start multiple times; subsequent calls are no-ops if already started.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("publisher: Start called but already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Locals avoid racing on p.ticker/p.doneChan.
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("publisher: started (interval %s, %d transports)", p.interval, len(p.transports))
		for {
			select {
			case now := <-ticker.C:
				p.publish(now)
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// It is safe to call Stop multiple times; subsequent calls are no-ops.
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
	applog.Debugf("publisher: stopped after %d frames", p.seq)
	return nil
}

// Close stops publishing and closes every transport.
func (p *Publisher) Close() error {
	errs := []error{p.Stop()}
	for _, t := range p.transports {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

// publish samples the source once and fans the frame out. Only the
// publisher goroutine calls it.
func (p *Publisher) publish(now time.Time) {
	p.seq++
	f := NewFrame(p.source, p.seq, now)
	for _, t := range p.transports {
		if err := t.Send(f); err != nil {
			applog.Debugf("publisher: frame %d dropped: %v", f.Seq, err)
		}
	}
}
