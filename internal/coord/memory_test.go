package coord

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newMemory() (*Memory, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := NewMemory(DefaultOptions())
	m.SetClock(clk.Now)
	return m, clk
}

func TestMemoryLotLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemory()

	l1, ok, err := m.AcquireLotLock(ctx, "lot-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = m.AcquireLotLock(ctx, "lot-1")
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be denied")

	_, ok, _ = m.AcquireLotLock(ctx, "lot-2")
	assert.True(t, ok, "locks are per lot")

	require.NoError(t, m.ReleaseLotLock(ctx, l1))
	require.NoError(t, m.ReleaseLotLock(ctx, l1), "release is idempotent")

	_, ok, _ = m.AcquireLotLock(ctx, "lot-1")
	assert.True(t, ok)
}

func TestMemoryExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory()

	stale, ok, _ := m.AcquireLotLock(ctx, "lot-1")
	require.True(t, ok)

	clk.Advance(6 * time.Second)
	fresh, ok, _ := m.AcquireLotLock(ctx, "lot-1")
	require.True(t, ok, "ttl must free a crashed holder's lock")

	require.NoError(t, m.ReleaseLotLock(ctx, stale))
	_, ok, _ = m.AcquireLotLock(ctx, "lot-1")
	assert.False(t, ok, "stale release must not drop the new holder")

	require.NoError(t, m.ReleaseLotLock(ctx, fresh))
	_, ok, _ = m.AcquireLotLock(ctx, "lot-1")
	assert.True(t, ok)
}

func TestMemoryCooldown(t *testing.T) {
	ctx := context.Background()
	m, clk := newMemory()

	ok, _ := m.TryBidCooldown(ctx, "b1", "lot-1")
	assert.True(t, ok)
	ok, _ = m.TryBidCooldown(ctx, "b1", "lot-1")
	assert.False(t, ok)
	ok, _ = m.TryBidCooldown(ctx, "b1", "lot-2")
	assert.True(t, ok, "cooldown is per (bidder, lot)")

	clk.Advance(2 * time.Second)
	ok, _ = m.TryBidCooldown(ctx, "b1", "lot-1")
	assert.True(t, ok)
}

func TestMemoryConcurrentAcquireHasOneWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(DefaultOptions())

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := m.AcquireLotLock(ctx, "lot-1"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryPointerAndRunState(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemory()

	s, _ := m.GetRunState(ctx, "a1")
	assert.Equal(t, engine.AuctionStatus(""), s)

	require.NoError(t, m.SetRunState(ctx, "a1", engine.AuctionLive))
	require.NoError(t, m.SetActiveLot(ctx, "a1", "lot-1"))

	s, _ = m.GetRunState(ctx, "a1")
	assert.Equal(t, engine.AuctionLive, s)
	id, _ := m.GetActiveLot(ctx, "a1")
	assert.Equal(t, "lot-1", id)

	require.NoError(t, m.SetActiveLot(ctx, "a1", ""))
	id, _ = m.GetActiveLot(ctx, "a1")
	assert.Empty(t, id)
}

func TestWarm(t *testing.T) {
	ctx := context.Background()
	m, _ := newMemory()

	a := engine.Auction{
		ID:     "a1",
		Status: engine.AuctionPaused,
		Lots: []engine.Lot{
			{ID: "l1", OrderIndex: 0, Status: engine.LotAdjudicated},
			{ID: "l2", OrderIndex: 1, Status: engine.LotActive},
		},
	}
	require.NoError(t, Warm(ctx, m, a))

	s, _ := m.GetRunState(ctx, "a1")
	assert.Equal(t, engine.AuctionPaused, s)
	id, _ := m.GetActiveLot(ctx, "a1")
	assert.Equal(t, "l2", id)
}
