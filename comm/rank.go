package comm

import (
	"sync"

	"github.com/pkg/errors"
)

// RankAllocator assigns each worker a stable integer rank in [0, groupSize)
// for a given key, without any out-of-band registration: the first call for a
// key gets rank 0 and records the group size, each subsequent call gets
// (previous+1) mod groupSize.
//
// Round-robin identity is only correct because all participants call exactly
// once per round, in lockstep — the rendezvous in Communicator.Reduce
// enforces that. It is not a general thread-identity mechanism.
type RankAllocator struct {
	mu     sync.Mutex
	groups map[string]*rankGroup
}

type rankGroup struct {
	size int
	last int
}

// NewRankAllocator creates an empty allocator.
func NewRankAllocator() *RankAllocator {
	return &RankAllocator{groups: make(map[string]*rankGroup)}
}

// Assign returns the caller's rank for the key's current round.
// It fails with ErrGroupSizeMismatch if groupSize disagrees with the value
// recorded on the key's first call. Calls for different keys never interfere.
func (a *RankAllocator) Assign(key string, groupSize int) (int, error) {
	if groupSize < 1 {
		return 0, errors.Errorf("group size must be at least 1, got %d", groupSize)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	group, ok := a.groups[key]
	if !ok {
		a.groups[key] = &rankGroup{size: groupSize, last: 0}
		return 0, nil
	}
	if group.size != groupSize {
		return 0, errors.Wrapf(ErrGroupSizeMismatch,
			"declared group size %d, recorded %d", groupSize, group.size)
	}
	group.last = (group.last + 1) % group.size
	return group.last, nil
}
