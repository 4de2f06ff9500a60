package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shortWait = 5 * time.Millisecond

func TestRequestCoalesces(t *testing.T) {
	g := NewRequest()
	require.Equal(t, 0, Value(g))

	assert.True(t, g.Grant(), "first grant changes the value")
	for i := 0; i < 10; i++ {
		assert.False(t, g.Grant(), "repeated grant must coalesce")
		assert.Equal(t, 1, Value(g))
	}

	ctx := context.Background()
	assert.True(t, g.TryAcquire(ctx, shortWait))
	assert.Equal(t, Clear, g.State())
	assert.False(t, g.TryAcquire(ctx, shortWait), "only one permit after a burst")
}

func TestRequestTryAcquireTimesOut(t *testing.T) {
	g := NewRequest()
	start := time.Now()
	assert.False(t, g.TryAcquire(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRequestTryAcquireZeroTimeout(t *testing.T) {
	g := NewRequest()
	assert.False(t, g.TryAcquire(context.Background(), 0))
	g.Grant()
	assert.True(t, g.TryAcquire(context.Background(), 0))
}

func TestRequestGrantWakesWaiter(t *testing.T) {
	g := NewRequest()
	done := make(chan bool, 1)
	go func() { done <- g.TryAcquire(context.Background(), time.Second) }()

	time.Sleep(10 * time.Millisecond)
	g.Grant()
	assert.True(t, <-done)
}

func TestRequestContextCancel(t *testing.T) {
	g := NewRequest()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, g.TryAcquire(ctx, time.Second))
}

func TestRequestValueStaysBinary(t *testing.T) {
	g := NewRequest()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				g.Grant()
				v := Value(g)
				if v != 0 && v != 1 {
					t.Errorf("gate value %d out of range", v)
				}
			}
		}()
	}
	wg.Wait()

	acquired := 0
	for g.TryAcquire(context.Background(), 0) {
		acquired++
	}
	assert.Equal(t, 1, acquired)
}

func TestReadyIsLevelTriggered(t *testing.T) {
	g := NewReady()
	ctx := context.Background()

	assert.False(t, g.TryAcquire(ctx, shortWait))
	assert.True(t, g.Grant())
	assert.False(t, g.Grant(), "grant is idempotent")

	for i := 0; i < 3; i++ {
		assert.True(t, g.TryAcquire(ctx, shortWait), "acquire leaves the level set")
	}
	assert.Equal(t, Granted, g.State())

	assert.True(t, g.Revoke())
	assert.False(t, g.Revoke())
	assert.False(t, g.TryAcquire(ctx, shortWait))
	assert.Equal(t, 0, Value(g))
}

func TestReadyGrantWakesWaiter(t *testing.T) {
	g := NewReady()
	done := make(chan bool, 1)
	go func() { done <- g.TryAcquire(context.Background(), time.Second) }()

	time.Sleep(10 * time.Millisecond)
	g.Grant()
	assert.True(t, <-done)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "clear", Clear.String())
	assert.Equal(t, "granted", Granted.String())
}
