package bidding

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/martillo-live/internal/coord"
	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/store"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recordingPublisher) Publish(_ context.Context, subject string, _ any) error {
	r.mu.Lock()
	r.subjects = append(r.subjects, subject)
	r.mu.Unlock()
	return nil
}

type fixture struct {
	coord *coord.Memory
	store *store.Memory
	pipe  *Pipeline
}

// newFixture builds a LIVE auction whose lot l1 is ACTIVE at 100000 with a
// 5000 increment, and three bidders: two approved, one pending.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemory()
	st.PutAuction(engine.Auction{
		ID:     "a1",
		Status: engine.AuctionLive,
		Lots: []engine.Lot{
			{ID: "l1", OrderIndex: 0, Status: engine.LotActive, BasePrice: 100000, MinIncrement: 5000, CurrentPrice: 100000},
			{ID: "l2", OrderIndex: 1, Status: engine.LotPublished, BasePrice: 200000, MinIncrement: 10000},
		},
	})
	st.PutBidder(engine.Bidder{ID: "b1", AuctionID: "a1", UserID: "u1", PaddleNumber: 11, Status: engine.BidderApproved})
	st.PutBidder(engine.Bidder{ID: "b2", AuctionID: "a1", UserID: "u2", PaddleNumber: 12, Status: engine.BidderApproved})
	st.PutBidder(engine.Bidder{ID: "b3", AuctionID: "a1", UserID: "u3", PaddleNumber: 13, Status: engine.BidderPending})

	c := coord.NewMemory(coord.DefaultOptions())
	require.NoError(t, c.SetRunState(ctx, "a1", engine.AuctionLive))
	require.NoError(t, c.SetActiveLot(ctx, "a1", "l1"))

	return &fixture{coord: c, store: st, pipe: New(c, st, &recordingPublisher{}, zaptest.NewLogger(t))}
}

func online(user string, amount int64) Request {
	return Request{AuctionID: "a1", LotID: "l1", UserID: user, Amount: amount, Source: engine.SourceOnline}
}

func TestPlaceBidScenarios(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.pipe.PlaceBid(ctx, online("u1", 104000), nil)
	require.ErrorIs(t, err, engine.ErrBelowMinimum)

	// The rejected bid above consumed u1's cooldown, so the next one comes
	// from u2.
	acc, err := f.pipe.PlaceBid(ctx, online("u2", 105000), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(105000), acc.Lot.CurrentPrice)
	assert.Equal(t, 12, acc.Paddle)
	assert.Equal(t, engine.SourceOnline, acc.Bid.Source)

	_, err = f.pipe.PlaceBid(ctx, online("u2", 120000), nil)
	require.ErrorIs(t, err, engine.ErrRateLimited)

	lot, err := f.store.GetLot(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(105000), lot.CurrentPrice)

	bids, _ := f.store.ListBids(ctx, "l1")
	require.Len(t, bids, 1)
	assert.Equal(t, "b2", bids[0].BidderID)

	audit := f.store.Audit()
	require.Len(t, audit, 1)
	assert.Equal(t, "bid.placed", audit[0].Action)
}

func TestPlaceBidSamePriceNeverWinsTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// A lot stored with a zero increment after it opened.
	f.store.PutAuction(engine.Auction{
		ID:     "a1",
		Status: engine.AuctionLive,
		Lots: []engine.Lot{
			{ID: "l1", OrderIndex: 0, Status: engine.LotActive, BasePrice: 100000, MinIncrement: 0, CurrentPrice: 100000},
		},
	})

	_, err := f.pipe.PlaceBid(ctx, online("u1", 100000), nil)
	require.ErrorIs(t, err, engine.ErrBelowMinimum)

	_, err = f.pipe.PlaceBid(ctx, online("u2", 100500), nil)
	require.NoError(t, err)

	_, err = f.pipe.PlaceBid(ctx, Request{AuctionID: "a1", LotID: "l1", Paddle: 11, Amount: 100500, Source: engine.SourcePresencial}, nil)
	require.ErrorIs(t, err, engine.ErrBelowMinimum)

	bids, _ := f.store.ListBids(ctx, "l1")
	require.Len(t, bids, 1)
	assert.Equal(t, "b2", bids[0].BidderID)
}

func TestPlaceBidRejectionOrder(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		setup   func(f *fixture)
		req     Request
		wantErr error
	}{
		{
			name: "paused auction",
			setup: func(f *fixture) {
				require.NoError(t, f.coord.SetRunState(ctx, "a1", engine.AuctionPaused))
			},
			req:     online("u1", 500000),
			wantErr: engine.ErrAuctionNotLive,
		},
		{
			name:    "lot that is not the active one",
			req:     Request{AuctionID: "a1", LotID: "l2", UserID: "u1", Amount: 500000},
			wantErr: engine.ErrLotNotActive,
		},
		{
			name: "no active lot",
			setup: func(f *fixture) {
				require.NoError(t, f.coord.SetActiveLot(ctx, "a1", ""))
			},
			req:     online("u1", 500000),
			wantErr: engine.ErrLotNotActive,
		},
		{
			name:    "pending bidder",
			req:     online("u3", 500000),
			wantErr: engine.ErrBidderNotApproved,
		},
		{
			name:    "unknown user",
			req:     online("nobody", 500000),
			wantErr: engine.ErrBidderNotApproved,
		},
		{
			name: "lock held elsewhere",
			setup: func(f *fixture) {
				_, ok, _ := f.coord.AcquireLotLock(ctx, "l1")
				require.True(t, ok)
			},
			req:     online("u1", 500000),
			wantErr: engine.ErrConcurrentBid,
		},
		{
			name:    "unknown paddle",
			req:     Request{AuctionID: "a1", LotID: "l1", Paddle: 99, Amount: 500000, Source: engine.SourcePresencial},
			wantErr: engine.ErrPaddleNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			called := false
			_, err := f.pipe.PlaceBid(ctx, tc.req, func(Accepted) { called = true })
			require.ErrorIs(t, err, tc.wantErr)
			assert.False(t, called)

			lot, _ := f.store.GetLot(ctx, "l1")
			assert.Equal(t, int64(100000), lot.CurrentPrice)
		})
	}
}

func TestPresencialBidSkipsCooldown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	floor := func(amount int64) Request {
		return Request{AuctionID: "a1", LotID: "l1", Paddle: 11, Amount: amount, Source: engine.SourcePresencial, ActorID: "auctioneer-1"}
	}
	_, err := f.pipe.PlaceBid(ctx, floor(105000), nil)
	require.NoError(t, err)
	acc, err := f.pipe.PlaceBid(ctx, floor(110000), nil)
	require.NoError(t, err)
	assert.Equal(t, engine.SourcePresencial, acc.Bid.Source)

	audit := f.store.Audit()
	require.Len(t, audit, 2)
	assert.Equal(t, "auctioneer-1", audit[1].ActorID)
}

func TestPlaceBidColdSharedStateIsWarmedFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipe.coord = coord.NewMemory(coord.DefaultOptions())

	_, err := f.pipe.PlaceBid(ctx, online("u1", 105000), nil)
	require.NoError(t, err)

	active, _ := f.pipe.coord.GetActiveLot(ctx, "a1")
	assert.Equal(t, "l1", active)
}

type failingStore struct {
	store.Store
}

func (failingStore) Atomically(context.Context, func(store.Store) error) error {
	return errors.New("connection reset")
}

func TestPlaceBidStoreFailureReleasesLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.pipe.store = failingStore{Store: f.store}

	_, err := f.pipe.PlaceBid(ctx, online("u1", 105000), nil)
	require.ErrorIs(t, err, engine.ErrUnavailable)
	assert.False(t, engine.IsRejection(err))

	_, ok, _ := f.coord.AcquireLotLock(ctx, "l1")
	assert.True(t, ok, "lock must be released on failure")
}

func TestConcurrentBidsNeverBothWinAtOldPrice(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		f := newFixture(t)

		var (
			mu       sync.Mutex
			accepted []Accepted
			wg       sync.WaitGroup
		)
		for _, r := range []Request{online("u1", 105000), online("u2", 110000)} {
			wg.Add(1)
			go func(r Request) {
				defer wg.Done()
				_, err := f.pipe.PlaceBid(ctx, r, func(a Accepted) {
					mu.Lock()
					accepted = append(accepted, a)
					mu.Unlock()
				})
				if err != nil {
					assert.True(t, errors.Is(err, engine.ErrConcurrentBid) || errors.Is(err, engine.ErrBelowMinimum), "unexpected: %v", err)
				}
			}(r)
		}
		wg.Wait()

		require.NotEmpty(t, accepted)
		bids, _ := f.store.ListBids(ctx, "l1")
		require.Len(t, bids, len(accepted))

		for j := 1; j < len(accepted); j++ {
			assert.Greater(t, accepted[j].Bid.Amount, accepted[j-1].Bid.Amount, "callback order is acceptance order")
		}

		amounts := make([]int64, len(bids))
		for j, b := range bids {
			amounts[j] = b.Amount
		}
		sort.Slice(amounts, func(a, b int) bool { return amounts[a] < amounts[b] })
		lot, _ := f.store.GetLot(ctx, "l1")
		assert.Equal(t, amounts[len(amounts)-1], lot.CurrentPrice)
	}
}

func TestDisconnectDoesNotUndoAcceptedBid(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.pipe.PlaceBid(ctx, online("u1", 105000), func(Accepted) { cancel() })
	require.NoError(t, err)

	lot, _ := f.store.GetLot(context.Background(), "l1")
	assert.Equal(t, int64(105000), lot.CurrentPrice)
	_, ok, _ := f.coord.AcquireLotLock(context.Background(), "l1")
	assert.True(t, ok)
}
