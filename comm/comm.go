// Package comm implements the cross-device synchronization primitive behind
// synchronized batch normalization: a keyed rendezvous that lets N worker
// goroutines (one per device) exchange per-device partial statistics, block
// until all N have arrived, aggregate exactly once, and hand each worker its
// copy of the result.
//
// The primitive is intra-process only. Every device that participates in a
// round must use an equal types.Key and declare the same group size; rounds
// for one key are strictly sequential, and any number of independently keyed
// rounds may run concurrently in the same Communicator.
//
// A typical training step performs four rounds per normalization layer: mean
// and variance in the forward pass, gradient-sum and gradient-product in the
// backward pass, each under its own Key so the rounds can never interleave.
package comm

import (
	"time"

	"github.com/gomlx/syncnorm/types"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Communicator owns the shared state of all synchronization groups in one
// training job: a registry of barriers, a registry of exchange buffers, and
// the rank allocator. Create one per job and hand the same instance (it is
// cheap, a few pointers) to every device worker.
//
// Its registries live until the Communicator itself is dropped; there is no
// per-key teardown, matching the fixed-membership model where a key's group
// exists for the whole run.
type Communicator struct {
	barriers *Registry[Barrier]
	buffers  *Registry[ExchangeBuffer]
	ranks    *RankAllocator

	// stallTimeout, if non-zero, bounds the barrier wait of every round.
	stallTimeout time.Duration
}

// Option configures a Communicator created with New.
type Option func(*Communicator)

// WithStallTimeout makes every round fail with ErrStalledRound if not all
// participants arrive within d, instead of blocking forever.
//
// A stalled round leaves the key's group in an undefined state (some slots
// may hold unconsumed data); it exists to turn a silent hang into a
// diagnosable error, not to make rounds retryable.
func WithStallTimeout(d time.Duration) Option {
	return func(c *Communicator) {
		c.stallTimeout = d
	}
}

// New creates an empty Communicator. Barriers, buffers and ranks are created
// lazily, on the first round of each key.
func New(options ...Option) *Communicator {
	c := &Communicator{
		barriers: NewRegistry[Barrier](),
		buffers:  NewRegistry[ExchangeBuffer](),
		ranks:    NewRankAllocator(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Reduce globalizes one per-channel statistic across all devices of the key's
// group: it blocks until every one of the groupSize participants has called
// Reduce with the same key, then returns the elementwise arithmetic mean of
// all submitted vectors to every caller.
//
// All participants must submit vectors of equal length (fixed at the key's
// first round) and agree on groupSize; violations return ErrShapeMismatch or
// ErrGroupSizeMismatch respectively without disturbing the other
// participants' slots.
func (c *Communicator) Reduce(key types.Key, groupSize int, local []float32) ([]float32, error) {
	return c.ReduceWith(key, groupSize, local, MeanReducer)
}

// ReduceWith is Reduce with an explicit reducer. The reducer is bound to the
// key's exchange buffer on the first round and reused for every subsequent
// round of that key; all participants should therefore pass the same one.
func (c *Communicator) ReduceWith(key types.Key, groupSize int, local []float32, reducer Reducer) ([]float32, error) {
	if groupSize < 1 {
		return nil, errors.Errorf("group size must be at least 1, got %d", groupSize)
	}
	name := key.String()

	rank, err := c.ranks.Assign(name, groupSize)
	if err != nil {
		return nil, errors.WithMessagef(err, "key %s", name)
	}
	buffer := c.buffers.GetOrCreate(name, func() *ExchangeBuffer {
		return NewExchangeBuffer(groupSize, reducer)
	})
	if buffer.Parties() != groupSize {
		return nil, errors.Wrapf(ErrGroupSizeMismatch,
			"key %s: declared group size %d, but the buffer was created for %d",
			name, groupSize, buffer.Parties())
	}

	klog.V(2).Infof("comm: key %s rank %d/%d entering round", name, rank, groupSize)
	if err := buffer.Submit(rank, local); err != nil {
		return nil, errors.WithMessagef(err, "key %s", name)
	}

	// The rendezvous guarantees every participant has submitted before any
	// proceeds to collect the aggregate.
	barrier := c.barriers.GetOrCreate(name, func() *Barrier {
		return NewBarrier(groupSize)
	})
	if c.stallTimeout > 0 {
		if err := barrier.WaitTimeout(c.stallTimeout); err != nil {
			klog.Warningf("comm: key %s rank %d: %v", name, rank, err)
			return nil, errors.WithMessagef(err, "key %s", name)
		}
	} else {
		barrier.Wait()
	}

	global, err := buffer.Take(rank)
	if err != nil {
		return nil, errors.WithMessagef(err, "key %s", name)
	}
	klog.V(2).Infof("comm: key %s rank %d released", name, rank)
	return global, nil
}
