// Package respool implements a bounded, context-aware allocator over a
// fixed number of slots, used to arbitrate hardware resources (endpoint
// buffers, interrupt pipes) that exist in small fixed quantities.
//
// Pool stands in for the source stack's single-threaded, ISR-driven
// allocator: release may race with allocation from a different goroutine
// (modeling release from an interrupt handler), so the bitmap is guarded
// by a mutex. Parked waiters share one wake channel, which the next release
// closes; every woken waiter retries, and at most one of them gets the
// released slot. There is no FIFO ordering guarantee among waiters.
package respool

import (
	"context"
	"sync"

	"github.com/ardnew/usbhost/pkg"
	"github.com/ardnew/usbhost/pkg/bitset"
)

// Pool is a bounded allocator over n <= bitset.Size slots.
type Pool struct {
	mu    sync.Mutex
	n     int
	used  bitset.BitSet
	waker chan struct{} // non-nil while a waiter is parked
}

// New creates a Pool with n available slots. n must be in (0, bitset.Size].
func New(n int) *Pool {
	if n <= 0 || n > bitset.Size {
		panic("respool: invalid pool size")
	}
	return &Pool{n: n}
}

// Lease represents one allocated slot. Close releases it back to the pool.
// Close is idempotent and safe to call from a deferred cleanup, including
// on a cancelled allocation path.
type Lease struct {
	pool *Pool
	slot int
	once sync.Once
}

// Slot returns the allocated slot index.
func (l *Lease) Slot() int { return l.slot }

// Close releases the slot. Safe to call multiple times.
func (l *Lease) Close() error {
	l.once.Do(func() {
		l.pool.release(l.slot)
	})
	return nil
}

// Alloc acquires a slot, suspending the caller until one is free or ctx is
// done. On success the caller owns the returned Lease and must Close it
// exactly once (a deferred Close is the idiomatic pattern) to return the
// slot to the pool.
func (p *Pool) Alloc(ctx context.Context) (*Lease, error) {
	for {
		p.mu.Lock()
		if slot, ok := p.allocLocked(); ok {
			p.mu.Unlock()
			return &Lease{pool: p, slot: slot}, nil
		}
		if p.waker == nil {
			p.waker = make(chan struct{})
		}
		ch := p.waker
		p.mu.Unlock()

		select {
		case <-ch:
			// A slot was released; retry allocation.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryAlloc attempts a single non-blocking allocation.
func (p *Pool) TryAlloc() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot, ok := p.allocLocked()
	if !ok {
		return nil, pkg.ErrNoResources
	}
	return &Lease{pool: p, slot: slot}, nil
}

// allocLocked finds and claims the lowest unused slot within [0, n). Must be
// called with mu held.
func (p *Pool) allocLocked() (int, bool) {
	for i := 0; i < p.n; i++ {
		if !p.used.Contains(i) {
			p.used.Set(i)
			return i, true
		}
	}
	return 0, false
}

func (p *Pool) release(slot int) {
	p.mu.Lock()
	p.used.Clear(slot)
	waker := p.waker
	p.waker = nil
	p.mu.Unlock()

	if waker != nil {
		close(waker)
	}
}

// InUse returns the number of currently allocated slots.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used.Len()
}

// Capacity returns the total number of slots.
func (p *Pool) Capacity() int {
	return p.n
}
