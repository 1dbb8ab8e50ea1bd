package comm

import (
	"sync"

	"github.com/pkg/errors"
)

// ExchangeBuffer is the per-key N-slot exchange at the heart of a round: each
// rank submits its local vector into its own slot, the aggregate is computed
// exactly once when the last slot fills, and each rank then takes its private
// copy. When the last rank has taken, the buffer resets for the next round.
//
// Rounds are strictly sequential: Submit for round k+1 blocks until round k's
// aggregate has been consumed by every rank, so a fast device can never
// overwrite state a slow one still needs. Slot storage is allocated once and
// reused across rounds.
//
// The vector length is established by the first submission ever and enforced
// for the buffer's lifetime.
type ExchangeBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	parties int
	reducer Reducer

	// width is the established vector length, 0 until the first submission.
	width  int
	slots  [][]float32
	filled []bool
	nFill  int

	aggregated bool
	aggregate  []float32

	taken []bool
	nTake int
}

// NewExchangeBuffer creates a buffer for the given number of participants.
// A nil reducer defaults to MeanReducer. It panics if parties < 1.
func NewExchangeBuffer(parties int, reducer Reducer) *ExchangeBuffer {
	if parties < 1 {
		panic("comm: exchange buffer requires at least one party")
	}
	if reducer == nil {
		reducer = MeanReducer
	}
	b := &ExchangeBuffer{
		parties: parties,
		reducer: reducer,
		slots:   make([][]float32, parties),
		filled:  make([]bool, parties),
		taken:   make([]bool, parties),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Parties returns the number of participants the buffer was created for.
func (b *ExchangeBuffer) Parties() int { return b.parties }

// Submit stores value into the rank's slot for the current round. The value
// is copied, the caller keeps ownership of its slice.
//
// It fails with ErrDuplicateSubmission if the rank's slot is already filled
// this round, and with ErrShapeMismatch if the length disagrees with the
// established one; neither failure disturbs the other ranks' slots.
func (b *ExchangeBuffer) Submit(rank int, value []float32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rank < 0 || rank >= b.parties {
		return errors.Errorf("rank %d outside group of size %d", rank, b.parties)
	}
	if len(value) == 0 {
		return errors.Errorf("cannot submit an empty vector")
	}

	// Wait out the previous round's drain, if any.
	for b.aggregated {
		b.cond.Wait()
	}

	if b.filled[rank] {
		return errors.Wrapf(ErrDuplicateSubmission, "rank %d", rank)
	}
	if b.width == 0 {
		b.width = len(value)
	} else if len(value) != b.width {
		return errors.Wrapf(ErrShapeMismatch, "rank %d submitted length %d, established length is %d",
			rank, len(value), b.width)
	}

	if b.slots[rank] == nil {
		b.slots[rank] = make([]float32, b.width)
	}
	copy(b.slots[rank], value)
	b.filled[rank] = true
	b.nFill++
	b.tryAggregateLocked()
	return nil
}

// TryAggregate returns a copy of the current round's aggregate if every slot
// is filled, computing it on the first such call. It is idempotent: repeated
// calls return the cached aggregate without recomputation. The second result
// is false while slots are still missing.
func (b *ExchangeBuffer) TryAggregate() ([]float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.tryAggregateLocked() {
		return nil, false
	}
	out := make([]float32, len(b.aggregate))
	copy(out, b.aggregate)
	return out, true
}

// tryAggregateLocked computes the aggregate once all slots are filled.
// Reports whether the aggregate is available. b.mu must be held.
func (b *ExchangeBuffer) tryAggregateLocked() bool {
	if b.aggregated {
		return true
	}
	if b.nFill < b.parties {
		return false
	}
	b.aggregate = b.reducer(b.slots)
	b.aggregated = true
	b.cond.Broadcast()
	return true
}

// Take returns the rank's copy of the round's aggregate, blocking until it is
// available. The last rank to take resets all slots and flags, opening the
// buffer for the next round's submissions.
//
// In the usual orchestration the caller's barrier wait already guarantees
// availability and Take returns immediately.
func (b *ExchangeBuffer) Take(rank int) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rank < 0 || rank >= b.parties {
		return nil, errors.Errorf("rank %d outside group of size %d", rank, b.parties)
	}
	for !b.aggregated {
		b.cond.Wait()
	}
	if b.taken[rank] {
		return nil, errors.Errorf("rank %d already consumed the aggregate this round", rank)
	}

	out := make([]float32, len(b.aggregate))
	copy(out, b.aggregate)
	b.taken[rank] = true
	b.nTake++
	if b.nTake == b.parties {
		b.resetLocked()
	}
	return out, nil
}

// resetLocked clears all per-round state. Slot storage is kept for reuse;
// the contents are dead until overwritten by the next round's submissions.
// b.mu must be held.
func (b *ExchangeBuffer) resetLocked() {
	for i := range b.filled {
		b.filled[i] = false
		b.taken[i] = false
	}
	b.nFill = 0
	b.nTake = 0
	b.aggregated = false
	b.cond.Broadcast()
}
