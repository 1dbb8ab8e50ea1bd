package comm

import (
	"sync"
	"time"
)

// Barrier is a reusable N-party rendezvous point: every call to Wait blocks
// until parties calls have been made, then all of them return together and
// the barrier resets for the next round.
//
// Waiters block on a per-generation channel, so they yield the OS thread
// while waiting and all wake atomically on release. Calling Wait from more
// goroutines than parties within one round is a caller contract violation
// with undefined behavior.
type Barrier struct {
	mu      sync.Mutex
	parties int
	count   int
	gen     *generation
}

// generation is one round of the barrier. A fresh generation replaces it the
// moment the previous one releases, so late arrivals of round k+1 can never
// steal a release meant for round k.
type generation struct {
	release  chan struct{}
	err      error // set before release is closed
	released bool  // guarded by Barrier.mu
}

// NewBarrier creates a barrier for the given number of participants.
// It panics if parties < 1.
func NewBarrier(parties int) *Barrier {
	if parties < 1 {
		panic("comm: barrier requires at least one party")
	}
	return &Barrier{
		parties: parties,
		gen:     &generation{release: make(chan struct{})},
	}
}

// Parties returns the number of participants the barrier was created for.
func (b *Barrier) Parties() int { return b.parties }

// Wait blocks the calling goroutine until parties goroutines have called
// Wait since the barrier was last released, then returns on all of them.
// It never returns early; if a participant is missing, Wait blocks forever.
func (b *Barrier) Wait() {
	g, last := b.arrive()
	if last {
		return
	}
	<-g.release
}

// WaitTimeout is Wait bounded by d: if the remaining participants do not
// arrive in time, the current generation is broken and every goroutine
// blocked on it receives ErrStalledRound. Stragglers arriving after the
// break join a fresh generation and, short of a full complement, will time
// out the same way. The barrier itself stays usable for later rounds.
func (b *Barrier) WaitTimeout(d time.Duration) error {
	g, last := b.arrive()
	if last {
		return g.err
	}
	select {
	case <-g.release:
		return g.err
	case <-time.After(d):
	}

	b.mu.Lock()
	if !g.released {
		// First waiter to time out breaks the generation for everyone.
		g.err = ErrStalledRound
		g.released = true
		b.count = 0
		b.gen = &generation{release: make(chan struct{})}
		close(g.release)
	}
	b.mu.Unlock()
	return g.err
}

// arrive registers one arrival. If it completes the round, it releases the
// generation and reports last=true; otherwise the caller must block on
// g.release.
func (b *Barrier) arrive() (g *generation, last bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g = b.gen
	b.count++
	if b.count == b.parties {
		b.count = 0
		b.gen = &generation{release: make(chan struct{})}
		g.released = true
		close(g.release)
		return g, true
	}
	return g, false
}
