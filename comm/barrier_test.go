package comm

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarrier(t *testing.T) {
	t.Run("releases all n waiters", func(t *testing.T) {
		const n = 8
		b := NewBarrier(n)
		var released atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Wait()
				released.Add(1)
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(n), released.Load())
	})

	t.Run("no release before the n-th arrival", func(t *testing.T) {
		const n = 4
		b := NewBarrier(n)
		var released atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < n-1; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Wait()
				released.Add(1)
			}()
		}
		// With one participant missing, nobody may be released.
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(0), released.Load())

		b.Wait() // the n-th arrival releases everyone
		wg.Wait()
		assert.Equal(t, int32(n-1), released.Load())
	})

	t.Run("reusable across rounds", func(t *testing.T) {
		const n = 3
		const rounds = 5
		b := NewBarrier(n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for r := 0; r < rounds; r++ {
					b.Wait()
				}
			}()
		}
		wg.Wait() // would hang if any round lost a waiter
	})

	t.Run("single party", func(t *testing.T) {
		b := NewBarrier(1)
		b.Wait()
		b.Wait() // both rounds return immediately
	})

	t.Run("panics on zero parties", func(t *testing.T) {
		require.Panics(t, func() { NewBarrier(0) })
	})
}

func TestBarrierWaitTimeout(t *testing.T) {
	t.Run("stalls when a participant is missing", func(t *testing.T) {
		const n = 3
		b := NewBarrier(n)
		errs := make(chan error, n-1)
		for i := 0; i < n-1; i++ {
			go func() {
				errs <- b.WaitTimeout(20 * time.Millisecond)
			}()
		}
		for i := 0; i < n-1; i++ {
			require.ErrorIs(t, <-errs, ErrStalledRound)
		}
	})

	t.Run("complete round does not time out", func(t *testing.T) {
		const n = 4
		b := NewBarrier(n)
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			go func() {
				errs <- b.WaitTimeout(time.Second)
			}()
		}
		for i := 0; i < n; i++ {
			require.NoError(t, <-errs)
		}
	})

	t.Run("usable again after a broken round", func(t *testing.T) {
		b := NewBarrier(2)
		require.ErrorIs(t, b.WaitTimeout(10*time.Millisecond), ErrStalledRound)

		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				errs <- b.WaitTimeout(time.Second)
			}()
		}
		require.NoError(t, <-errs)
		require.NoError(t, <-errs)
	})
}
