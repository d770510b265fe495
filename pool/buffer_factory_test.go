package pool_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-netio/pool"
)

func TestBufferFactoryReuse(t *testing.T) {
	f := pool.NewBufferFactory(128, 0)
	b1 := f.NewBuffer()
	require.NotNil(t, b1)
	assert.Equal(t, 128, b1.Cap())
	b1.Bytes()[0] = 0xAA
	b1.Release()
	b1.Release()

	b2 := f.NewBuffer()
	require.NotNil(t, b2)
	assert.Same(t, b1, b2)
	assert.Equal(t, int64(1), f.Stats().Allocated)
	assert.Equal(t, int64(1), f.Stats().InUse)
}

func TestBufferFactoryExhaustion(t *testing.T) {
	f := pool.NewBufferFactory(16, 2)
	a := f.NewBuffer()
	b := f.NewBuffer()
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Nil(t, f.NewBuffer())
	assert.Equal(t, uint64(1), f.Stats().Exhausted)

	a.Release()
	assert.NotNil(t, f.NewBuffer())
}

func TestBufferFactoryConcurrent(t *testing.T) {
	f := pool.NewBufferFactory(32, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if b := f.NewBuffer(); b != nil {
					b.Release()
				}
			}
		}()
	}
	wg.Wait()
	st := f.Stats()
	assert.Equal(t, int64(0), st.InUse)
	assert.LessOrEqual(t, st.Allocated, int64(8))
}

func TestSyncPoolReset(t *testing.T) {
	p := pool.NewSyncPool(func() *[]byte {
		b := make([]byte, 0, 8)
		return &b
	}, func(b *[]byte) { *b = (*b)[:0] })

	b := p.Get()
	*b = append(*b, 1, 2, 3)
	p.Put(b)
	assert.Len(t, *b, 0)
}
