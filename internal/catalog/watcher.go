// SPDX-License-Identifier: MIT
package catalog

import (
	"strings"
	"sync"
	"time"

	"passthru/internal/audio"
)

// watcher polls the platform and fires the catalog callback when the
// endpoint lists or defaults differ from the previous poll.
type watcher struct {
	c        *Catalog
	interval time.Duration
	last     string

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newWatcher(c *Catalog, interval time.Duration) *watcher {
	w := &watcher{
		c:        c,
		interval: interval,
		done:     make(chan struct{}),
	}
	w.last = w.fingerprint()

	w.wg.Add(1)
	go w.run()
	return w
}

func (w *watcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *watcher) poll() {
	fp := w.fingerprint()
	if fp == w.last {
		return
	}
	w.last = fp
	w.c.fire()
}

// stop must not be called from the callback, it waits for run to exit.
func (w *watcher) stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

// fingerprint summarises everything a change notification would report:
// arrivals, removals and default changes.
func (w *watcher) fingerprint() string {
	var b strings.Builder
	for _, dir := range []audio.Direction{audio.Input, audio.Output} {
		b.WriteString(dir.String())
		b.WriteByte('|')
		if e, ok := w.c.defaultFor(dir); ok {
			b.WriteString(e.ID)
		}
		b.WriteByte('|')
		for e := range w.c.list(dir) {
			b.WriteString(e.ID)
			b.WriteByte(';')
		}
		b.WriteByte('\n')
	}
	return b.String()
}
