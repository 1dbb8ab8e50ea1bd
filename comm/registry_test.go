package comm

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	t.Run("same instance for the same key", func(t *testing.T) {
		r := NewRegistry[Barrier]()
		b1 := r.GetOrCreate("k", func() *Barrier { return NewBarrier(2) })
		b2 := r.GetOrCreate("k", func() *Barrier { return NewBarrier(2) })
		assert.Same(t, b1, b2)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("factory runs exactly once under contention", func(t *testing.T) {
		r := NewRegistry[int]()
		var constructions atomic.Int32
		const k = 64
		results := make([]*int, k)
		var wg sync.WaitGroup
		for i := 0; i < k; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = r.GetOrCreate("contended", func() *int {
					n := int(constructions.Add(1))
					return &n
				})
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), constructions.Load())
		for _, got := range results[1:] {
			assert.Same(t, results[0], got)
		}
	})

	t.Run("different keys get different instances", func(t *testing.T) {
		r := NewRegistry[ExchangeBuffer]()
		b1 := r.GetOrCreate("a", func() *ExchangeBuffer { return NewExchangeBuffer(2, nil) })
		b2 := r.GetOrCreate("b", func() *ExchangeBuffer { return NewExchangeBuffer(3, nil) })
		assert.NotSame(t, b1, b2)
		assert.Equal(t, 2, r.Len())
	})
}
