// Package idempotency de-duplicates side-effecting calls that share a caller-chosen key.
package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is how long a finished or in-flight call stays shared
const DefaultTTL = 60 * time.Second

// Promise is the shared result of one call. Every caller that used the same key
// while the entry was cached receives the same *Promise.
type Promise[T any] struct {
	done      chan struct{}
	value     T
	err       error
	startedAt time.Time
}

// Done is closed once the call has finished
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the call finishes or ctx is done. Abandoning the wait does not
// cancel the call.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *Promise[T]) run(fn func() (T, error)) {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.err = fmt.Errorf("idempotent call panicked: %v", r)
		}
	}()
	p.value, p.err = fn()
}

// Handler owns the promise cache. It is scoped to the process; concurrent replicas
// do not share entries.
type Handler[T any] struct {
	mu      sync.Mutex
	entries map[string]*Promise[T]
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Handler
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock sets the time source used for ages
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewHandler creates an empty promise cache
func NewHandler[T any](opts ...Option) *Handler[T] {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Handler[T]{
		entries: make(map[string]*Promise[T]),
		ttl:     o.ttl,
		now:     o.now,
	}
}

// Handle returns the cached promise for identifier, or caches a new promise and runs fn
// on its own goroutine. fn may not have started yet when Handle returns; use Wait or Done
// to observe it. Entries older than the TTL are swept on every call.
func (h *Handler[T]) Handle(identifier string, fn func() (T, error)) *Promise[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	promise, ok := h.entries[identifier]
	if !ok {
		promise = &Promise[T]{done: make(chan struct{}), startedAt: h.now()}
		h.entries[identifier] = promise
		go promise.run(fn)
	}

	h.sweepLocked()
	return promise
}

// Len returns the number of cached entries
func (h *Handler[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *Handler[T]) sweepLocked() {
	now := h.now()
	for identifier, promise := range h.entries {
		if now.Sub(promise.startedAt) > h.ttl {
			delete(h.entries, identifier)
		}
	}
}
