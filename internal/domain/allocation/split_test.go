package allocation

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
)

func TestSplit(t *testing.T) {
	assert.Equal(t, []int64{26, 25, 25, 25}, Split(101, 4))
	assert.Equal(t, []int64{40, 40, 40}, Split(120, 3))
	assert.Equal(t, []int64{1, 1, 0, 0}, Split(2, 4))
	assert.Equal(t, []int64{7}, Split(7, 1))
	assert.Nil(t, Split(10, 0))
}

func TestSplit_SumsAndBalance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		total := rng.Int63n(1_000_000)
		k := rng.Intn(16) + 1

		shares := Split(total, k)

		require.Len(t, shares, k)
		var sum int64
		for j, s := range shares {
			sum += s
			assert.LessOrEqual(t, shares[0]-s, int64(1))
			if j > 0 {
				assert.LessOrEqual(t, s, shares[j-1], "larger shares come first")
			}
		}
		assert.Equal(t, total, sum)
	}
}

func TestLocationLocks_OppositeOrderDoesNotDeadlock(t *testing.T) {
	locks := NewLocationLocks()
	a, b := id.New(), id.New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(a, b)
			counter++
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := locks.Lock(b, a, b)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestLocationLocks_IgnoresNil(t *testing.T) {
	locks := NewLocationLocks()
	unlock := locks.Lock(id.Nil(), id.New())
	unlock()
}
