/**
 * @description
 * This file implements the notification fan-out registry: a process-wide table
 * mapping synchronization contexts to the refetch subscribers registered by
 * live dashboard views. The registry is an explicitly constructed instance
 * passed by reference; there is no package-level global.
 *
 * Key features:
 * - Set semantics per context: registering the same subscriber twice is a no-op.
 * - Invalidate is synchronous and isolates subscriber panics, so one failing
 *   view cannot starve the others.
 * - Unsubscribe is immediate: once it returns, the subscriber will not be
 *   invoked again.
 *
 * @dependencies
 * - sync: Standard Go library, for the registry's internal lock.
 * - internal/domain: For the closed context enum.
 */

package realtime

import (
	"log"
	"sync"

	"github.com/littlesteps/booking-service/internal/domain"
)

// Subscriber is a view-owned refetch hook. Implementations must be comparable
// (typically a pointer type) so the registry can keep set semantics.
type Subscriber interface {
	Refetch()
}

// Registry routes context invalidations to locally registered subscribers.
// All mutation and notification goes through the registry's internal lock; no
// caller may iterate the subscriber sets directly.
type Registry struct {
	mu   sync.RWMutex
	subs map[domain.SyncContext]map[Subscriber]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[domain.SyncContext]map[Subscriber]struct{})}
}

// Subscribe registers a subscriber for one context and returns its unsubscribe
// function. Subscribing the same subscriber to the same context twice is a
// no-op; the returned function is idempotent and safe to call concurrently.
//
// Unsubscribe acquires the registry's write lock, so it blocks until any
// in-flight Invalidate has finished notifying: after it returns the subscriber
// is guaranteed not to be called again. Subscribers must therefore not call
// Subscribe or Unsubscribe from inside Refetch.
func (r *Registry) Subscribe(c domain.SyncContext, s Subscriber) (unsubscribe func()) {
	r.mu.Lock()
	set, ok := r.subs[c]
	if !ok {
		set = make(map[Subscriber]struct{})
		r.subs[c] = set
	}
	set[s] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if set, ok := r.subs[c]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(r.subs, c)
				}
			}
		})
	}
}

// Invalidate synchronously notifies every subscriber registered for the
// context. A panicking subscriber is logged and skipped; the rest still run.
func (r *Registry) Invalidate(c domain.SyncContext) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for s := range r.subs[c] {
		notify(c, s)
	}
}

// InvalidateAll notifies the subscribers of every known context. Used for the
// manual "refresh everything" action and after a push channel reconnects.
func (r *Registry) InvalidateAll() {
	for _, c := range domain.AllContexts {
		r.Invalidate(c)
	}
}

// SubscriberCount reports how many subscribers a context currently has.
func (r *Registry) SubscriberCount(c domain.SyncContext) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[c])
}

func notify(c domain.SyncContext, s Subscriber) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("level=error component=realtime msg=\"subscriber panic isolated\" context=%s panic=%v", c, rec)
		}
	}()
	s.Refetch()
}
