// Package orchestrator drives an auction forward: going live, opening the
// next lot, adjudicating or skipping it, and pausing, resuming or ending
// the auction. Commands for one auction run one at a time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/coord"
	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/notify"
	"github.com/DoyleJ11/martillo-live/internal/payment"
	"github.com/DoyleJ11/martillo-live/internal/store"
)

// Rooms delivers outbound events to the connections of an auction.
type Rooms interface {
	Broadcast(auctionID, typ string, payload any)
	SendToUser(auctionID, userID, typ string, payload any)
}

type PaymentCreator interface {
	CreatePaymentOrder(ctx context.Context, adjudicationID string) (payment.Order, error)
}

type Options struct {
	// Permissive lets DRAFT lots be opened. Dev and test only.
	Permissive     bool
	LockWait       time.Duration
	PaymentTimeout time.Duration
	PaymentRetries int
	RetryBackoff   time.Duration
}

func (o Options) withDefaults() Options {
	if o.LockWait <= 0 {
		o.LockWait = 2 * time.Second
	}
	if o.PaymentTimeout <= 0 {
		o.PaymentTimeout = 5 * time.Second
	}
	if o.PaymentRetries <= 0 {
		o.PaymentRetries = 5
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	return o
}

type Orchestrator struct {
	coord    coord.Service
	store    store.Store
	payments PaymentCreator
	events   notify.Publisher
	rooms    Rooms
	opts     Options
	log      *zap.Logger
	now      func() time.Time

	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

func New(c coord.Service, s store.Store, payments PaymentCreator, events notify.Publisher, rooms Rooms, opts Options, log *zap.Logger) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		coord:    c,
		store:    s,
		payments: payments,
		events:   events,
		rooms:    rooms,
		opts:     opts.withDefaults(),
		log:      log.Named("orchestrator"),
		now:      time.Now,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Close stops pending payment retries and waits for them to return.
func (o *Orchestrator) Close() {
	o.bgCancel()
	o.bg.Wait()
}

// withAuctionLock runs fn holding the auction's command lock. It waits up to
// LockWait for another command to finish.
func (o *Orchestrator) withAuctionLock(ctx context.Context, auctionID string, fn func() error) error {
	return o.withLock(ctx, auctionID, o.coord.AcquireAuctionLock, o.coord.ReleaseAuctionLock, fn)
}

// withLotLocks runs fn holding the price lock of every lot in ids. A bid
// sends its update while holding that lock, so once a close commits under
// it every earlier update is already queued for the room.
func (o *Orchestrator) withLotLocks(ctx context.Context, ids []string, fn func() error) error {
	if len(ids) == 0 {
		return fn()
	}
	return o.withLock(ctx, ids[0], o.coord.AcquireLotLock, o.coord.ReleaseLotLock, func() error {
		return o.withLotLocks(ctx, ids[1:], fn)
	})
}

func (o *Orchestrator) withLock(
	ctx context.Context,
	id string,
	acquire func(context.Context, string) (coord.Lock, bool, error),
	release func(context.Context, coord.Lock) error,
	fn func() error,
) error {
	deadline := time.Now().Add(o.opts.LockWait)
	for {
		lock, ok, err := acquire(ctx, id)
		if err != nil {
			return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
		}
		if ok {
			defer func() {
				rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				if err := release(rctx, lock); err != nil {
					o.log.Warn("release lock", zap.String("key", lock.Key), zap.Error(err))
				}
			}()
			return fn()
		}
		if time.Now().After(deadline) {
			return engine.ErrCommandInProgress
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func (o *Orchestrator) audit(ctx context.Context, tx store.Store, entity, id, action, actor string, data map[string]any) error {
	return tx.InsertAudit(ctx, engine.AuditEntry{
		ID:        uuid.NewString(),
		Entity:    entity,
		EntityID:  id,
		Action:    action,
		ActorID:   actor,
		Data:      data,
		CreatedAt: o.now().UTC(),
	})
}

// storeErr turns repository faults into ErrUnavailable and lets rejections
// through unchanged.
func storeErr(err error) error {
	if err == nil || engine.IsRejection(err) || errors.Is(err, engine.ErrUnavailable) {
		return err
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", engine.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", engine.ErrUnavailable, err)
}

func (o *Orchestrator) logResult(op, auctionID string, err error) {
	switch {
	case err == nil:
	case engine.IsRejection(err):
		o.log.Debug(op+" rejected", zap.String("auction", auctionID), zap.Error(err))
	default:
		o.log.Error(op+" failed", zap.String("auction", auctionID), zap.Error(err))
	}
}

// clearPointerIf clears the active-lot pointer when it still names lotID.
func (o *Orchestrator) clearPointerIf(ctx context.Context, auctionID, lotID string) {
	cur, err := o.coord.GetActiveLot(ctx, auctionID)
	if err != nil {
		o.log.Error("read active lot", zap.String("auction", auctionID), zap.Error(err))
		return
	}
	if cur != lotID && cur != "" {
		return
	}
	if err := o.coord.SetActiveLot(ctx, auctionID, ""); err != nil {
		o.log.Error("clear active lot", zap.String("auction", auctionID), zap.Error(err))
	}
}

func (o *Orchestrator) publish(subject string, v any) {
	if o.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.events.Publish(ctx, subject, v); err != nil {
		o.log.Warn("publish", zap.String("subject", subject), zap.Error(err))
	}
}
