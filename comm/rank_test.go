package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankAllocator(t *testing.T) {
	t.Run("sequential permutation and wraparound", func(t *testing.T) {
		a := NewRankAllocator()
		const g = 5
		for i := 0; i < g; i++ {
			rank, err := a.Assign("layer1.Forward.Mean", g)
			require.NoError(t, err)
			assert.Equal(t, i, rank)
		}
		// The g+1-th call wraps back to rank 0.
		rank, err := a.Assign("layer1.Forward.Mean", g)
		require.NoError(t, err)
		assert.Equal(t, 0, rank)
	})

	t.Run("keys are independent", func(t *testing.T) {
		a := NewRankAllocator()
		r1, err := a.Assign("k1", 2)
		require.NoError(t, err)
		r2, err := a.Assign("k2", 3)
		require.NoError(t, err)
		assert.Equal(t, 0, r1)
		assert.Equal(t, 0, r2)

		r1, err = a.Assign("k1", 2)
		require.NoError(t, err)
		assert.Equal(t, 1, r1)
	})

	t.Run("group size mismatch", func(t *testing.T) {
		a := NewRankAllocator()
		_, err := a.Assign("k", 4)
		require.NoError(t, err)
		_, err = a.Assign("k", 2)
		require.ErrorIs(t, err, ErrGroupSizeMismatch)
	})

	t.Run("invalid group size", func(t *testing.T) {
		a := NewRankAllocator()
		_, err := a.Assign("k", 0)
		require.Error(t, err)
	})
}
