package idgenerator

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdGenerator(t *testing.T) {
	t.Run("first id follows the start value", func(t *testing.T) {
		gen := NewIdGenerator(41)
		require.NotNil(t, gen)
		assert.Equal(t, uint64(41), gen.Last())
		assert.Equal(t, uint64(42), gen.Id())
		assert.Equal(t, uint64(42), gen.Last())
	})

	t.Run("zero is skipped on wrap", func(t *testing.T) {
		gen := NewIdGenerator(math.MaxUint64)
		assert.Equal(t, uint64(1), gen.Id())
	})
}

func TestIdGenerator_Id_sequential(t *testing.T) {
	gen := NewIdGenerator(0)
	for want := uint64(1); want <= 10; want++ {
		assert.Equal(t, want, gen.Id())
	}
}

func TestIdGenerator_Id_concurrent(t *testing.T) {
	gen := NewIdGenerator(0)
	const n = 500
	ids := make([]uint64, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			ids[idx] = gen.Id()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		assert.NotZero(t, id)
		assert.LessOrEqual(t, id, uint64(n))
		seen[id] = true
	}
	assert.Len(t, seen, n)
}
