package rwcoord

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedReaders(t *testing.T) {
	c := New(2)
	ctx := context.Background()

	rel1, err := c.AcquireRead(ctx)
	require.NoError(t, err)
	rel2, err := c.AcquireRead(ctx)
	require.NoError(t, err)

	// A third reader should not be able to acquire immediately.
	acquired := make(chan struct{})
	go func() {
		rel3, err := c.AcquireRead(ctx)
		require.NoError(t, err)
		close(acquired)
		rel3()
	}()

	select {
	case <-acquired:
		t.Fatal("third reader acquired before any release")
	case <-time.After(50 * time.Millisecond):
	}

	rel1()
	<-acquired
	rel2()
}

func TestWriterExcludesReaders(t *testing.T) {
	c := New(4)
	ctx := context.Background()

	relW, err := c.AcquireWrite(ctx)
	require.NoError(t, err)

	readerBlocked := make(chan struct{})
	go func() {
		rel, err := c.AcquireRead(ctx)
		require.NoError(t, err)
		close(readerBlocked)
		rel()
	}()

	select {
	case <-readerBlocked:
		t.Fatal("reader acquired while writer held exclusivity")
	case <-time.After(50 * time.Millisecond):
	}

	relW()
	<-readerBlocked
}

func TestWriterDoesNotStarveIndefinitely(t *testing.T) {
	c := New(1)
	ctx := context.Background()

	relR, err := c.AcquireRead(ctx)
	require.NoError(t, err)

	writerDone := make(chan struct{})
	go func() {
		relW, err := c.AcquireWrite(ctx)
		require.NoError(t, err)
		close(writerDone)
		relW()
	}()

	// Give the writer a chance to queue behind the active reader.
	time.Sleep(20 * time.Millisecond)
	relR()

	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired exclusivity")
	}
}

func TestConcurrentMixDoesNotRace(t *testing.T) {
	c := New(8)
	var counter int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			if i%5 == 0 {
				rel, err := c.AcquireWrite(ctx)
				require.NoError(t, err)
				atomic.AddInt64(&counter, 1)
				rel()
			} else {
				rel, err := c.AcquireRead(ctx)
				require.NoError(t, err)
				atomic.AddInt64(&counter, 1)
				rel()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(50), counter)
}

func TestContextCancelUnblocksAcquire(t *testing.T) {
	c := New(1)
	relW, err := c.AcquireWrite(context.Background())
	require.NoError(t, err)
	defer relW()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.AcquireRead(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
