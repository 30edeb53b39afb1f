// SPDX-License-Identifier: MIT

// Package catalog enumerates audio endpoints and reports hardware changes.
// Listings are never cached; every iteration asks the platform again.
package catalog

import (
	"errors"
	"iter"
	"sync"
	"time"

	"passthru/internal/audio"
	"passthru/internal/log"

	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is used when the platform cannot push change
// notifications.
const DefaultPollInterval = 2 * time.Second

// Catalog is the device catalog over a platform DeviceService.
type Catalog struct {
	devices      audio.DeviceService
	pollInterval time.Duration
	log          *logrus.Entry

	subMu  sync.Mutex // serializes Subscribe and Unsubscribe
	cancel func()

	mu       sync.Mutex
	onChange func()
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPollInterval sets the fingerprint poll interval. Ignored when the
// platform pushes its own notifications.
func WithPollInterval(d time.Duration) Option {
	return func(c *Catalog) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// New returns a catalog backed by devices.
func New(devices audio.DeviceService, opts ...Option) *Catalog {
	c := &Catalog{
		devices:      devices,
		pollInterval: DefaultPollInterval,
		log:          log.Component("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListInputs lazily enumerates input endpoints.
func (c *Catalog) ListInputs() iter.Seq[audio.Endpoint] {
	return c.list(audio.Input)
}

// ListOutputs lazily enumerates output endpoints.
func (c *Catalog) ListOutputs() iter.Seq[audio.Endpoint] {
	return c.list(audio.Output)
}

func (c *Catalog) list(dir audio.Direction) iter.Seq[audio.Endpoint] {
	return func(yield func(audio.Endpoint) bool) {
		endpoints, err := c.devices.Endpoints(dir)
		if err != nil {
			c.log.WithError(err).Debugf("enumerate %s endpoints", dir)
			return
		}
		for _, e := range endpoints {
			if !yield(audio.Classify(e)) {
				return
			}
		}
	}
}

// DefaultInput returns the system default input, if any.
func (c *Catalog) DefaultInput() (audio.Endpoint, bool) {
	return c.defaultFor(audio.Input)
}

// DefaultOutput returns the system default output, if any.
func (c *Catalog) DefaultOutput() (audio.Endpoint, bool) {
	return c.defaultFor(audio.Output)
}

// Default returns the system default for dir.
func (c *Catalog) Default(dir audio.Direction) (audio.Endpoint, bool) {
	return c.defaultFor(dir)
}

func (c *Catalog) defaultFor(dir audio.Direction) (audio.Endpoint, bool) {
	e, err := c.devices.DefaultEndpoint(dir)
	if err != nil {
		if !errors.Is(err, audio.ErrDeviceNotFound) {
			c.log.WithError(err).Debugf("default %s endpoint", dir)
		}
		return audio.Endpoint{}, false
	}
	if e.IsZero() {
		return audio.Endpoint{}, false
	}
	return audio.Classify(e), true
}

// Lookup re-resolves a possibly stale endpoint against a fresh
// enumeration. The returned copy carries current metadata.
func (c *Catalog) Lookup(e audio.Endpoint) (audio.Endpoint, bool) {
	if e.IsZero() {
		return audio.Endpoint{}, false
	}
	for cur := range c.list(e.Direction) {
		if cur.Equal(e) {
			return cur, true
		}
	}
	return audio.Endpoint{}, false
}

// Subscribe registers the single change callback, replacing any previous
// one. onChange may be called from any goroutine and must not block.
func (c *Catalog) Subscribe(onChange func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.stopLocked()
	c.setCallback(onChange)
	if onChange == nil {
		return
	}

	if n, ok := c.devices.(audio.ChangeNotifier); ok {
		c.cancel = n.NotifyChanges(c.fire)
		c.log.Debug("subscribed to platform change notifications")
		return
	}

	w := newWatcher(c, c.pollInterval)
	c.cancel = w.stop
	c.log.Debugf("polling for device changes every %s", c.pollInterval)
}

// Unsubscribe removes the change callback. Safe to call when not
// subscribed.
func (c *Catalog) Unsubscribe() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.setCallback(nil)
	c.stopLocked()
}

func (c *Catalog) setCallback(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// stopLocked requires subMu. It may wait for an in-flight poll, which
// only takes mu.
func (c *Catalog) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Catalog) fire() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
