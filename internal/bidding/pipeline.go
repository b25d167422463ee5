// Package bidding accepts or rejects bids. It is the only code that moves a
// lot's price.
package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/coord"
	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/notify"
	"github.com/DoyleJ11/martillo-live/internal/store"
)

type Request struct {
	AuctionID string
	LotID     string
	Amount    int64
	Source    engine.BidSource

	// UserID identifies an ONLINE bidder; Paddle a PRESENCIAL one.
	UserID string
	Paddle int

	// ActorID is recorded in the audit row. For floor bids it is the
	// operator who keyed the bid in.
	ActorID string
}

type Accepted struct {
	AuctionID string
	Bid       engine.Bid
	Paddle    int
	Lot       engine.Lot
}

type Pipeline struct {
	coord  coord.Service
	store  store.Store
	events notify.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func New(c coord.Service, s store.Store, events notify.Publisher, log *zap.Logger) *Pipeline {
	return &Pipeline{
		coord:  c,
		store:  s,
		events: events,
		log:    log.Named("bidding"),
		now:    time.Now,
	}
}

// PlaceBid runs the acceptance checks in order and, if they all pass,
// commits the new price and bid together. onAccepted runs while the lot lock
// is still held, so calls for one lot happen in acceptance order.
func (p *Pipeline) PlaceBid(ctx context.Context, req Request, onAccepted func(Accepted)) (Accepted, error) {
	acc, err := p.placeBid(ctx, req, onAccepted)
	if err != nil {
		fields := []zap.Field{
			zap.String("auction", req.AuctionID),
			zap.String("lot", req.LotID),
			zap.Int64("amount", req.Amount),
			zap.Error(err),
		}
		if engine.IsRejection(err) {
			p.log.Debug("bid rejected", fields...)
		} else {
			p.log.Error("bid failed", fields...)
		}
	}
	return acc, err
}

func (p *Pipeline) placeBid(ctx context.Context, req Request, onAccepted func(Accepted)) (Accepted, error) {
	if err := p.checkLive(ctx, req.AuctionID); err != nil {
		return Accepted{}, err
	}
	if err := p.checkActiveLot(ctx, req.AuctionID, req.LotID); err != nil {
		return Accepted{}, err
	}
	bidder, err := p.resolveBidder(ctx, req)
	if err != nil {
		return Accepted{}, err
	}

	if req.Source != engine.SourcePresencial {
		ok, err := p.coord.TryBidCooldown(ctx, bidder.ID, req.LotID)
		if err != nil {
			return Accepted{}, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
		}
		if !ok {
			return Accepted{}, engine.ErrRateLimited
		}
	}

	lock, ok, err := p.coord.AcquireLotLock(ctx, req.LotID)
	if err != nil {
		return Accepted{}, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if !ok {
		return Accepted{}, engine.ErrConcurrentBid
	}
	defer p.release(ctx, lock)

	bid := engine.Bid{
		ID:        uuid.Must(uuid.NewV7()).String(),
		LotID:     req.LotID,
		BidderID:  bidder.ID,
		Amount:    req.Amount,
		Source:    sourceOrOnline(req.Source),
		CreatedAt: p.now().UTC(),
	}
	var updated engine.Lot
	err = p.store.Atomically(ctx, func(tx store.Store) error {
		lot, err := tx.GetLotForUpdate(ctx, req.LotID)
		if err != nil {
			return err
		}
		updated, err = engine.ApplyBid(lot, req.Amount)
		if err != nil {
			return err
		}
		if err := tx.UpdateLot(ctx, updated); err != nil {
			return err
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, engine.AuditEntry{
			ID:        uuid.NewString(),
			Entity:    "bid",
			EntityID:  bid.ID,
			Action:    "bid.placed",
			ActorID:   actorOf(req, bidder),
			Data:      map[string]any{"lotId": req.LotID, "amount": req.Amount, "source": string(bid.Source), "paddle": bidder.PaddleNumber},
			CreatedAt: bid.CreatedAt,
		})
	})
	if err != nil {
		if engine.IsRejection(err) {
			return Accepted{}, err
		}
		return Accepted{}, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}

	acc := Accepted{AuctionID: req.AuctionID, Bid: bid, Paddle: bidder.PaddleNumber, Lot: updated}
	if onAccepted != nil {
		onAccepted(acc)
	}
	p.archive(acc)
	return acc, nil
}

func (p *Pipeline) checkLive(ctx context.Context, auctionID string) error {
	status, err := p.coord.GetRunState(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if status == "" {
		a, err := p.store.GetAuction(ctx, auctionID)
		if errors.Is(err, store.ErrNotFound) {
			return engine.ErrAuctionNotLive
		}
		if err != nil {
			return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
		}
		if err := coord.Warm(ctx, p.coord, a); err != nil {
			p.log.Warn("warm shared state", zap.String("auction", auctionID), zap.Error(err))
		}
		status = a.Status
	}
	if !engine.AcceptsBids(status) {
		return engine.ErrAuctionNotLive
	}
	return nil
}

func (p *Pipeline) checkActiveLot(ctx context.Context, auctionID, lotID string) error {
	active, err := p.coord.GetActiveLot(ctx, auctionID)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if active == "" || active != lotID {
		return engine.ErrLotNotActive
	}
	lot, err := p.store.GetLot(ctx, lotID)
	if errors.Is(err, store.ErrNotFound) {
		return engine.ErrLotNotActive
	}
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if lot.AuctionID != auctionID || lot.Status != engine.LotActive {
		return engine.ErrLotNotActive
	}
	return nil
}

func (p *Pipeline) resolveBidder(ctx context.Context, req Request) (engine.Bidder, error) {
	var (
		b   engine.Bidder
		err error
	)
	if req.Source == engine.SourcePresencial {
		b, err = p.store.FindBidderByPaddle(ctx, req.AuctionID, req.Paddle)
		if errors.Is(err, store.ErrNotFound) {
			return b, fmt.Errorf("%w: paddle %d", engine.ErrPaddleNotFound, req.Paddle)
		}
	} else {
		if req.UserID == "" {
			return b, engine.ErrBidderNotApproved
		}
		b, err = p.store.FindBidder(ctx, req.AuctionID, req.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return b, engine.ErrBidderNotApproved
		}
	}
	if err != nil {
		return b, fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
	}
	if b.Status != engine.BidderApproved {
		return b, engine.ErrBidderNotApproved
	}
	return b, nil
}

// release runs even when ctx was cancelled mid-bid.
func (p *Pipeline) release(ctx context.Context, l coord.Lock) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.coord.ReleaseLotLock(rctx, l); err != nil {
		p.log.Warn("release lot lock", zap.String("key", l.Key), zap.Error(err))
	}
}

func (p *Pipeline) archive(acc Accepted) {
	if p.events == nil {
		return
	}
	ev := notify.BidAccepted{
		AuctionID: acc.AuctionID,
		LotID:     acc.Bid.LotID,
		BidID:     acc.Bid.ID,
		BidderID:  acc.Bid.BidderID,
		Paddle:    acc.Paddle,
		Amount:    acc.Bid.Amount,
		Source:    string(acc.Bid.Source),
		At:        acc.Bid.CreatedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.events.Publish(ctx, notify.BidSubject(ev.AuctionID), ev); err != nil {
			p.log.Warn("archive bid", zap.String("bid", ev.BidID), zap.Error(err))
		}
	}()
}

func sourceOrOnline(s engine.BidSource) engine.BidSource {
	if s == "" {
		return engine.SourceOnline
	}
	return s
}

func actorOf(req Request, b engine.Bidder) string {
	if req.ActorID != "" {
		return req.ActorID
	}
	return b.UserID
}
