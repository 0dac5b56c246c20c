package utils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	q := NewQueue("a", "b")
	assert.True(t, q.Enqueue("c"))
	assert.Equal(t, 3, q.Size())

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.TryDequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := q.TryDequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	q := NewQueue(1)
	q.Close()
	assert.False(t, q.Enqueue(2))

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, err = q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
	_, err = q.TryDequeue()
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueueDequeueWaitsForProducer(t *testing.T) {
	q := NewQueue[int]()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(42)
	}()

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestQueueDequeueHonoursContext(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueDequeueStopsOnCancelWithItemsLeft(t *testing.T) {
	q := NewQueue("a", "b")
	q.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, q.Size())
}

func TestQueueCloseWakesAllConsumers(t *testing.T) {
	q := NewQueue[int]()
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
}
