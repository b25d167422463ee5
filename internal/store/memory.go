package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

type dataset struct {
	auctions      map[string]engine.Auction
	lots          map[string]engine.Lot
	bidders       map[string]engine.Bidder
	bids          map[string][]engine.Bid
	adjudications map[string]engine.Adjudication
	adjByLot      map[string]string
	audit         []engine.AuditEntry
	payments      map[string]PaymentOrder
}

func newDataset() *dataset {
	return &dataset{
		auctions:      map[string]engine.Auction{},
		lots:          map[string]engine.Lot{},
		bidders:       map[string]engine.Bidder{},
		bids:          map[string][]engine.Bid{},
		adjudications: map[string]engine.Adjudication{},
		adjByLot:      map[string]string{},
		payments:      map[string]PaymentOrder{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *dataset) clone() *dataset {
	bids := make(map[string][]engine.Bid, len(d.bids))
	for k, v := range d.bids {
		bids[k] = append([]engine.Bid(nil), v...)
	}
	return &dataset{
		auctions:      cloneMap(d.auctions),
		lots:          cloneMap(d.lots),
		bidders:       cloneMap(d.bidders),
		bids:          bids,
		adjudications: cloneMap(d.adjudications),
		adjByLot:      cloneMap(d.adjByLot),
		audit:         append([]engine.AuditEntry(nil), d.audit...),
		payments:      cloneMap(d.payments),
	}
}

// Memory keeps everything in process. A transaction works on a copy that
// replaces the live data only when the callback succeeds.
type Memory struct {
	mu   sync.Mutex
	data *dataset
}

func NewMemory() *Memory {
	return &Memory{data: newDataset()}
}

// PutAuction seeds an auction and its lots.
func (m *Memory) PutAuction(a engine.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range a.Lots {
		l.AuctionID = a.ID
		m.data.lots[l.ID] = l
	}
	a.Lots = nil
	m.data.auctions[a.ID] = a
}

func (m *Memory) PutBidder(b engine.Bidder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.bidders[b.ID] = b
}

// Audit returns a copy of every audit row written so far.
func (m *Memory) Audit() []engine.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]engine.AuditEntry(nil), m.data.audit...)
}

func (m *Memory) Atomically(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *Memory) view() *memTx { return &memTx{d: m.data} }

func (m *Memory) GetAuction(ctx context.Context, id string) (engine.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetAuction(ctx, id)
}

func (m *Memory) UpdateAuctionStatus(ctx context.Context, id string, s engine.AuctionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateAuctionStatus(ctx, id, s)
}

func (m *Memory) GetLot(ctx context.Context, id string) (engine.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetLot(ctx, id)
}

func (m *Memory) GetLotForUpdate(ctx context.Context, id string) (engine.Lot, error) {
	return m.GetLot(ctx, id)
}

func (m *Memory) UpdateLot(ctx context.Context, l engine.Lot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().UpdateLot(ctx, l)
}

func (m *Memory) GetBidder(ctx context.Context, id string) (engine.Bidder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetBidder(ctx, id)
}

func (m *Memory) FindBidder(ctx context.Context, auctionID, userID string) (engine.Bidder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindBidder(ctx, auctionID, userID)
}

func (m *Memory) FindBidderByPaddle(ctx context.Context, auctionID string, paddle int) (engine.Bidder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindBidderByPaddle(ctx, auctionID, paddle)
}

func (m *Memory) ListBids(ctx context.Context, lotID string) ([]engine.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().ListBids(ctx, lotID)
}

func (m *Memory) CountBids(ctx context.Context, lotID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().CountBids(ctx, lotID)
}

func (m *Memory) InsertBid(ctx context.Context, b engine.Bid) error {
	return m.Atomically(ctx, func(tx Store) error { return tx.InsertBid(ctx, b) })
}

func (m *Memory) InsertAdjudication(ctx context.Context, a engine.Adjudication) error {
	return m.Atomically(ctx, func(tx Store) error { return tx.InsertAdjudication(ctx, a) })
}

func (m *Memory) GetAdjudication(ctx context.Context, id string) (engine.Adjudication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().GetAdjudication(ctx, id)
}

func (m *Memory) InsertAudit(ctx context.Context, e engine.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().InsertAudit(ctx, e)
}

func (m *Memory) FindPaymentOrder(ctx context.Context, adjudicationID string) (PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().FindPaymentOrder(ctx, adjudicationID)
}

func (m *Memory) SavePaymentOrder(ctx context.Context, o PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view().SavePaymentOrder(ctx, o)
}

// memTx operates on a dataset without locking; its owner holds Memory.mu.
type memTx struct {
	d *dataset
}

func (t *memTx) Atomically(_ context.Context, fn func(tx Store) error) error {
	return fn(t)
}

func (t *memTx) GetAuction(_ context.Context, id string) (engine.Auction, error) {
	a, ok := t.d.auctions[id]
	if !ok {
		return engine.Auction{}, fmt.Errorf("auction %s: %w", id, ErrNotFound)
	}
	var lots []engine.Lot
	for _, l := range t.d.lots {
		if l.AuctionID == id {
			lots = append(lots, l)
		}
	}
	a.Lots = engine.SortLots(lots)
	return a, nil
}

func (t *memTx) UpdateAuctionStatus(_ context.Context, id string, s engine.AuctionStatus) error {
	a, ok := t.d.auctions[id]
	if !ok {
		return fmt.Errorf("auction %s: %w", id, ErrNotFound)
	}
	a.Status = s
	t.d.auctions[id] = a
	return nil
}

func (t *memTx) GetLot(_ context.Context, id string) (engine.Lot, error) {
	l, ok := t.d.lots[id]
	if !ok {
		return engine.Lot{}, fmt.Errorf("lot %s: %w", id, ErrNotFound)
	}
	return l, nil
}

func (t *memTx) GetLotForUpdate(ctx context.Context, id string) (engine.Lot, error) {
	return t.GetLot(ctx, id)
}

func (t *memTx) UpdateLot(_ context.Context, l engine.Lot) error {
	if _, ok := t.d.lots[l.ID]; !ok {
		return fmt.Errorf("lot %s: %w", l.ID, ErrNotFound)
	}
	t.d.lots[l.ID] = l
	return nil
}

func (t *memTx) GetBidder(_ context.Context, id string) (engine.Bidder, error) {
	b, ok := t.d.bidders[id]
	if !ok {
		return engine.Bidder{}, fmt.Errorf("bidder %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (t *memTx) FindBidder(_ context.Context, auctionID, userID string) (engine.Bidder, error) {
	for _, b := range t.d.bidders {
		if b.AuctionID == auctionID && b.UserID == userID {
			return b, nil
		}
	}
	return engine.Bidder{}, fmt.Errorf("bidder for user %s: %w", userID, ErrNotFound)
}

func (t *memTx) FindBidderByPaddle(_ context.Context, auctionID string, paddle int) (engine.Bidder, error) {
	for _, b := range t.d.bidders {
		if b.AuctionID == auctionID && b.PaddleNumber == paddle {
			return b, nil
		}
	}
	return engine.Bidder{}, fmt.Errorf("paddle %d: %w", paddle, ErrNotFound)
}

func (t *memTx) ListBids(_ context.Context, lotID string) ([]engine.Bid, error) {
	return append([]engine.Bid(nil), t.d.bids[lotID]...), nil
}

func (t *memTx) CountBids(_ context.Context, lotID string) (int, error) {
	return len(t.d.bids[lotID]), nil
}

func (t *memTx) InsertBid(_ context.Context, b engine.Bid) error {
	t.d.bids[b.LotID] = append(t.d.bids[b.LotID], b)
	return nil
}

func (t *memTx) InsertAdjudication(_ context.Context, a engine.Adjudication) error {
	if _, dup := t.d.adjByLot[a.LotID]; dup {
		return fmt.Errorf("adjudication for lot %s: %w", a.LotID, ErrConflict)
	}
	t.d.adjudications[a.ID] = a
	t.d.adjByLot[a.LotID] = a.ID
	return nil
}

func (t *memTx) GetAdjudication(_ context.Context, id string) (engine.Adjudication, error) {
	a, ok := t.d.adjudications[id]
	if !ok {
		return engine.Adjudication{}, fmt.Errorf("adjudication %s: %w", id, ErrNotFound)
	}
	return a, nil
}

func (t *memTx) InsertAudit(_ context.Context, e engine.AuditEntry) error {
	t.d.audit = append(t.d.audit, e)
	return nil
}

func (t *memTx) FindPaymentOrder(_ context.Context, adjudicationID string) (PaymentOrder, error) {
	o, ok := t.d.payments[adjudicationID]
	if !ok {
		return PaymentOrder{}, fmt.Errorf("payment for %s: %w", adjudicationID, ErrNotFound)
	}
	return o, nil
}

func (t *memTx) SavePaymentOrder(_ context.Context, o PaymentOrder) error {
	t.d.payments[o.AdjudicationID] = o
	return nil
}
