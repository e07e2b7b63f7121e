package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCacheMissAndOverwrite(t *testing.T) {
	c := NewPriceCache()

	_, ok := c.Get("AAPL")
	assert.False(t, ok)

	t0 := time.Unix(100, 0)
	c.Set("AAPL", decimal.NewFromFloat(175.2), t0)
	c.Set("AAPL", decimal.NewFromInt(180), t0.Add(time.Second))

	p, ok := c.Get("AAPL")
	require.True(t, ok)
	assert.True(t, p.Value.Equal(decimal.NewFromInt(180)))
	assert.Equal(t, t0.Add(time.Second), p.ObservedAt)
	assert.Equal(t, 1, c.Len())
}

func TestPriceCacheSnapshotIsACopy(t *testing.T) {
	c := NewPriceCache()
	c.Set("MSFT", decimal.NewFromInt(320), time.Now())
	c.Set("AAPL", decimal.NewFromInt(150), time.Now())

	snap := c.Snapshot()
	delete(snap, "MSFT")

	assert.Equal(t, []string{"AAPL", "MSFT"}, c.Symbols())
}

func TestPriceCacheConcurrentReaders(t *testing.T) {
	c := NewPriceCache()
	c.Set("TSLA", decimal.NewFromInt(180), time.Now())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			c.Set("TSLA", decimal.NewFromInt(int64(100+i)), time.Now())
		}
	}()
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				p, ok := c.Get("TSLA")
				assert.True(t, ok)
				assert.True(t, p.Value.IsPositive())
			}
		}()
	}
	wg.Wait()
}
