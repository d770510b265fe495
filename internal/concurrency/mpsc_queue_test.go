package concurrency_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-netio/internal/concurrency"
)

type item struct {
	producer int
	seq      int
	node     concurrency.MpscNode[item]
}

func TestMpscQueueFIFO(t *testing.T) {
	q := concurrency.NewMpscQueue[item]()
	assert.Nil(t, q.PopFront())

	items := make([]item, 5)
	for i := range items {
		items[i].seq = i
		q.Push(&items[i], &items[i].node)
	}
	for i := range items {
		got := q.PopFrontExclusive()
		require.NotNil(t, got)
		assert.Equal(t, i, got.seq)
		assert.False(t, got.node.Enqueued())
	}
	assert.Nil(t, q.PopFrontExclusive())
}

func TestMpscQueueDoublePushPanics(t *testing.T) {
	q := concurrency.NewMpscQueue[item]()
	var it item
	q.Push(&it, &it.node)
	assert.Panics(t, func() { q.Push(&it, &it.node) })

	require.Same(t, &it, q.PopFront())
	assert.NotPanics(t, func() { q.Push(&it, &it.node) })
}

func TestMpscQueueConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 2000

	q := concurrency.NewMpscQueue[item]()
	items := make([][]item, producers)
	for p := range items {
		items[p] = make([]item, perProducer)
	}

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range items[p] {
				it := &items[p][i]
				it.producer, it.seq = p, i
				q.Push(it, &it.node)
			}
		}(p)
	}

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	total := 0
	deadline := time.Now().Add(10 * time.Second)
	for total < producers*perProducer {
		it := q.PopFrontExclusive()
		if it == nil {
			require.True(t, time.Now().Before(deadline), "timed out after %d items", total)
			continue
		}
		require.Greater(t, it.seq, last[it.producer], "per-producer order violated")
		last[it.producer] = it.seq
		total++
	}
	wg.Wait()
	assert.Nil(t, q.PopFrontExclusive())
}

func TestSemaphore(t *testing.T) {
	s := concurrency.NewSemaphore()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.WaitContext(ctx), context.DeadlineExceeded)

	go s.Post()
	s.Wait()
	s.Post()
	s.Wait()
	assert.NoError(t, s.WaitContext(context.Background()))
}

func TestGoroutineID(t *testing.T) {
	id := concurrency.GoroutineID()
	require.NotZero(t, id)
	assert.Equal(t, id, concurrency.GoroutineID())

	other := make(chan uint64)
	go func() { other <- concurrency.GoroutineID() }()
	assert.NotEqual(t, id, <-other)
}
