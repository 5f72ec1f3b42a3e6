/**
 * @description
 * This file implements the polling fallback strategy used when no push channel
 * is configured: while the hosting dashboard is visible, refresh every context
 * on a fixed interval; pause entirely while hidden; refresh immediately once on
 * becoming visible again.
 *
 * @notes
 * - The timer is stopped and recreated on every visibility transition rather
 *   than left running and ignored, so overlapping timers cannot accumulate.
 */

package realtime

import (
	"context"
	"sync"
	"time"
)

// Poller drives periodic InvalidateAll calls while visible.
type Poller struct {
	registry *Registry
	interval time.Duration

	mu      sync.Mutex
	visible bool
	stopped bool
	timer   *time.Timer
	done    chan struct{}
}

// NewPoller creates a poller; it starts hidden until SetVisible(true).
func NewPoller(registry *Registry, interval time.Duration) *Poller {
	return &Poller{
		registry: registry,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start arms the poller until the context is cancelled or Stop is called.
// The initial state is visible: dashboards poll as soon as they load.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			p.Stop()
		case <-p.done:
		}
	}()
	p.SetVisible(true)
}

// Stop cancels any pending tick. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.stopTimerLocked()
	close(p.done)
}

// SetVisible reports a visibility transition of the hosting document. Becoming
// visible refreshes once immediately, then resumes the interval; becoming
// hidden cancels the timer outright.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	if p.stopped || p.visible == visible {
		p.mu.Unlock()
		return
	}
	p.visible = visible
	p.stopTimerLocked()
	if visible {
		p.armLocked()
	}
	p.mu.Unlock()

	if visible {
		p.registry.InvalidateAll()
	}
}

// armLocked schedules the next tick. Caller holds p.mu.
func (p *Poller) armLocked() {
	p.timer = time.AfterFunc(p.interval, p.tick)
}

func (p *Poller) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller) tick() {
	p.mu.Lock()
	if p.stopped || !p.visible {
		p.mu.Unlock()
		return
	}
	p.armLocked()
	p.mu.Unlock()

	p.registry.InvalidateAll()
}
