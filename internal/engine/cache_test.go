package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurod/internal/tensor"
)

type fakeSession struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeSession) Inputs() []IOSpec  { return nil }
func (f *fakeSession) Outputs() []IOSpec { return nil }
func (f *fakeSession) Run(ctx context.Context, outputNames []string, inputs map[string]tensor.Tensor) (map[string]tensor.Tensor, error) {
	return nil, nil
}
func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type countingEngine struct {
	mu      sync.Mutex
	opens   int
	bySess  map[string]*fakeSession
}

func newCountingEngine() *countingEngine {
	return &countingEngine{bySess: make(map[string]*fakeSession)}
}

func (c *countingEngine) OpenSession(ctx context.Context, path string) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	s := &fakeSession{}
	c.bySess[path] = s
	return s, nil
}

func TestCache_ReusesSessionWithinTTL(t *testing.T) {
	eng := newCountingEngine()
	cache := NewCache(eng, time.Minute, 4)

	_, err := cache.Get(context.Background(), "/model/a")
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), "/model/a")
	require.NoError(t, err)

	require.Equal(t, 1, eng.opens)
}

func TestCache_ReopensAfterTTLExpiry(t *testing.T) {
	eng := newCountingEngine()
	cache := NewCache(eng, time.Millisecond, 4)

	_, err := cache.Get(context.Background(), "/model/a")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = cache.Get(context.Background(), "/model/a")
	require.NoError(t, err)

	require.Equal(t, 2, eng.opens)
}

func TestCache_EvictsLeastRecentlyUsedWhenFull(t *testing.T) {
	eng := newCountingEngine()
	cache := NewCache(eng, time.Minute, 2)

	_, _ = cache.Get(context.Background(), "/model/a")
	_, _ = cache.Get(context.Background(), "/model/b")
	_, _ = cache.Get(context.Background(), "/model/a") // refresh a's recency
	_, _ = cache.Get(context.Background(), "/model/c") // evicts b

	eng.mu.Lock()
	bEvicted := eng.bySess["/model/b"].isClosed()
	aAlive := !eng.bySess["/model/a"].isClosed()
	eng.mu.Unlock()

	require.True(t, bEvicted)
	require.True(t, aAlive)
}

func TestCache_InvalidateClosesAndDrops(t *testing.T) {
	eng := newCountingEngine()
	cache := NewCache(eng, time.Minute, 4)

	_, _ = cache.Get(context.Background(), "/model/a")
	cache.Invalidate("/model/a")

	eng.mu.Lock()
	closed := eng.bySess["/model/a"].isClosed()
	eng.mu.Unlock()
	require.True(t, closed)

	_, err := cache.Get(context.Background(), "/model/a")
	require.NoError(t, err)
	require.Equal(t, 2, eng.opens)
}
