package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/notify"
	"github.com/DoyleJ11/martillo-live/internal/payment"
	"github.com/DoyleJ11/martillo-live/internal/store"
	"github.com/DoyleJ11/martillo-live/internal/types"
	wire "github.com/DoyleJ11/martillo-live/pkg/types"
)

type Progress struct {
	Closed    *engine.Lot // previous lot, closed UNSOLD for lack of bids
	Activated *engine.Lot
	NoMore    bool
}

// ActivateNext closes the current lot if nobody bid on it and opens the next
// one in order. A current lot that has bids must be adjudicated or skipped
// first.
func (o *Orchestrator) ActivateNext(ctx context.Context, actorID, auctionID string) (Progress, error) {
	var res Progress
	err := o.withAuctionLock(ctx, auctionID, func() error {
		pointer, err := o.coord.GetActiveLot(ctx, auctionID)
		if err != nil {
			return storeErr(err)
		}
		current, err := o.heal(ctx, actorID, auctionID, pointer)
		if err != nil {
			return err
		}

		err = o.store.Atomically(ctx, func(tx store.Store) error {
			a, err := tx.GetAuction(ctx, auctionID)
			if err != nil {
				return err
			}
			if !engine.IsRunning(a.Status) {
				return engine.ErrAuctionNotLive
			}

			after := lastClosedIndex(a.Lots)
			if current != "" {
				l, err := tx.GetLotForUpdate(ctx, current)
				if err != nil {
					return err
				}
				if l.Status == engine.LotActive {
					n, err := tx.CountBids(ctx, l.ID)
					if err != nil {
						return err
					}
					if n > 0 {
						return engine.ErrLotHasBids
					}
					closed, err := engine.Close(l, engine.OutcomeUnsold)
					if err != nil {
						return err
					}
					if err := tx.UpdateLot(ctx, closed); err != nil {
						return err
					}
					if err := o.audit(ctx, tx, "lot", closed.ID, "lot.unsold", actorID, map[string]any{"reason": "no bids"}); err != nil {
						return err
					}
					res.Closed = &closed
				}
				after = l.OrderIndex
			}

			next, ok := engine.NextLot(a.Lots, after, o.opts.Permissive)
			if !ok {
				res.NoMore = true
				return nil
			}
			l, err := tx.GetLotForUpdate(ctx, next.ID)
			if err != nil {
				return err
			}
			activated, err := engine.Activate(l, o.opts.Permissive)
			if err != nil {
				return err
			}
			if err := tx.UpdateLot(ctx, activated); err != nil {
				return err
			}
			res.Activated = &activated
			return o.audit(ctx, tx, "lot", activated.ID, "lot.activated", actorID, map[string]any{"price": activated.CurrentPrice})
		})
		if err != nil {
			res = Progress{}
			return storeErr(err)
		}

		active := ""
		if res.Activated != nil {
			active = res.Activated.ID
		}
		if err := o.coord.SetActiveLot(ctx, auctionID, active); err != nil {
			o.log.Error("set active lot", zap.String("auction", auctionID), zap.String("lot", active), zap.Error(err))
		}
		return nil
	})
	o.logResult("activate next", auctionID, err)
	if err != nil {
		return Progress{}, err
	}

	if res.Closed != nil {
		o.rooms.Broadcast(auctionID, wire.EventLotSkipped, wire.LotSkipped{LotID: res.Closed.ID})
		o.publish(notify.LotSubject(auctionID), notify.LotClosed{
			AuctionID: auctionID, LotID: res.Closed.ID, Status: string(res.Closed.Status), Price: res.Closed.CurrentPrice, At: o.now().UTC(),
		})
	}
	if res.Activated != nil {
		o.rooms.Broadcast(auctionID, wire.EventLotActive, wire.LotActive{Lot: types.LotView(*res.Activated), StartedAt: o.now().UTC()})
	} else {
		o.rooms.Broadcast(auctionID, wire.EventNoMoreLots, struct{}{})
	}
	return res, nil
}

// heal force-closes every ACTIVE lot except one and returns the survivor's
// id. The pointer's lot wins when it is ACTIVE.
func (o *Orchestrator) heal(ctx context.Context, actorID, auctionID, pointer string) (string, error) {
	a, err := o.store.GetAuction(ctx, auctionID)
	if err != nil {
		return "", storeErr(err)
	}
	actives := engine.ActiveLots(a.Lots)
	if len(actives) == 0 {
		return "", nil
	}
	keep := actives[0].ID
	if _, ok := engine.FindLot(actives, pointer); ok {
		keep = pointer
	}
	if len(actives) == 1 {
		return keep, nil
	}

	var closed []string
	err = o.store.Atomically(ctx, func(tx store.Store) error {
		for _, l := range actives {
			if l.ID == keep {
				continue
			}
			cur, err := tx.GetLotForUpdate(ctx, l.ID)
			if err != nil {
				return err
			}
			c, err := engine.Close(cur, engine.OutcomeUnsold)
			if err != nil {
				continue
			}
			if err := tx.UpdateLot(ctx, c); err != nil {
				return err
			}
			if err := o.audit(ctx, tx, "lot", c.ID, "lot.force-closed", actorID, map[string]any{"kept": keep}); err != nil {
				return err
			}
			closed = append(closed, c.ID)
		}
		return nil
	})
	if err != nil {
		return "", storeErr(err)
	}
	o.log.Warn("invariant violation: several lots active, closed extras",
		zap.String("auction", auctionID), zap.String("kept", keep), zap.Strings("closed", closed))
	for _, id := range closed {
		o.rooms.Broadcast(auctionID, wire.EventLotSkipped, wire.LotSkipped{LotID: id})
	}
	return keep, nil
}

func lastClosedIndex(lots []engine.Lot) int {
	idx := -1
	for _, l := range lots {
		if engine.IsTerminal(l.Status) && l.OrderIndex > idx {
			idx = l.OrderIndex
		}
	}
	return idx
}

// Skip closes an ACTIVE lot as UNSOLD, bids or not.
func (o *Orchestrator) Skip(ctx context.Context, actorID, auctionID, lotID string) error {
	err := o.withAuctionLock(ctx, auctionID, func() error {
		err := o.withLotLocks(ctx, []string{lotID}, func() error {
			return o.store.Atomically(ctx, func(tx store.Store) error {
				l, err := tx.GetLotForUpdate(ctx, lotID)
				if err != nil {
					return err
				}
				if l.AuctionID != auctionID {
					return engine.ErrLotNotActive
				}
				c, err := engine.Close(l, engine.OutcomeUnsold)
				if err != nil {
					return err
				}
				if err := tx.UpdateLot(ctx, c); err != nil {
					return err
				}
				return o.audit(ctx, tx, "lot", c.ID, "lot.skipped", actorID, nil)
			})
		})
		if err != nil {
			return storeErr(err)
		}
		o.clearPointerIf(ctx, auctionID, lotID)
		return nil
	})
	o.logResult("skip", auctionID, err)
	if err != nil {
		return err
	}
	o.rooms.Broadcast(auctionID, wire.EventLotSkipped, wire.LotSkipped{LotID: lotID})
	o.publish(notify.LotSubject(auctionID), notify.LotClosed{
		AuctionID: auctionID, LotID: lotID, Status: string(engine.LotUnsold), At: o.now().UTC(),
	})
	return nil
}

type Outcome struct {
	Adjudication engine.Adjudication
	Winner       engine.Bidder
	Lot          engine.Lot
	Payment      *payment.Order
}

// Adjudicate awards an ACTIVE lot to its highest bid. The payment order is
// requested after the lot is closed and the command lock released; if that
// fails the adjudication stands and the order is retried in the background.
func (o *Orchestrator) Adjudicate(ctx context.Context, actorID, auctionID, lotID string) (Outcome, error) {
	var out Outcome
	var tied bool
	err := o.withAuctionLock(ctx, auctionID, func() error {
		err := o.withLotLocks(ctx, []string{lotID}, func() error {
			return o.store.Atomically(ctx, func(tx store.Store) error {
				l, err := tx.GetLotForUpdate(ctx, lotID)
				if err != nil {
					return err
				}
				if l.AuctionID != auctionID || l.Status != engine.LotActive {
					return engine.ErrLotNotActive
				}
				bids, err := tx.ListBids(ctx, lotID)
				if err != nil {
					return err
				}
				win, t, ok := engine.SelectWinner(bids)
				if !ok {
					return engine.ErrNoBidsOnLot
				}
				tied = t
				bidder, err := tx.GetBidder(ctx, win.BidderID)
				if err != nil {
					return err
				}

				closed, err := engine.Close(l, engine.OutcomeAdjudicated)
				if err != nil {
					return err
				}
				closed.WinnerID = bidder.ID
				if err := tx.UpdateLot(ctx, closed); err != nil {
					return err
				}
				adj := engine.Adjudication{
					ID:           uuid.NewString(),
					AuctionID:    auctionID,
					LotID:        lotID,
					WinningBidID: win.ID,
					BidderID:     bidder.ID,
					FinalPrice:   win.Amount,
					CreatedAt:    o.now().UTC(),
				}
				if err := tx.InsertAdjudication(ctx, adj); err != nil {
					return err
				}
				out = Outcome{Adjudication: adj, Winner: bidder, Lot: closed}
				return o.audit(ctx, tx, "lot", lotID, "lot.adjudicated", actorID, map[string]any{
					"adjudicationId": adj.ID, "bidId": win.ID, "paddle": bidder.PaddleNumber, "price": win.Amount,
				})
			})
		})
		if err != nil {
			return storeErr(err)
		}
		o.clearPointerIf(ctx, auctionID, lotID)
		return nil
	})
	o.logResult("adjudicate", auctionID, err)
	if err != nil {
		return Outcome{}, err
	}

	if tied {
		o.log.Warn("invariant violation: equal top bids, earliest wins",
			zap.String("lot", lotID), zap.String("bid", out.Adjudication.WinningBidID))
	}
	if out.Adjudication.FinalPrice != out.Lot.CurrentPrice {
		o.log.Warn("invariant violation: winning bid differs from lot price",
			zap.String("lot", lotID), zap.Int64("bid", out.Adjudication.FinalPrice), zap.Int64("price", out.Lot.CurrentPrice))
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PaymentTimeout)
	order, perr := o.payments.CreatePaymentOrder(pctx, out.Adjudication.ID)
	cancel()
	if perr != nil {
		o.log.Error("payment order failed, retrying in background",
			zap.String("adjudication", out.Adjudication.ID), zap.Error(perr))
		o.retryPayment(out)
	} else {
		out.Payment = &order
	}

	ev := wire.LotAdjudicated{
		LotID:        lotID,
		WinnerPaddle: out.Winner.PaddleNumber,
		FinalPrice:   out.Adjudication.FinalPrice,
	}
	if out.Payment != nil {
		exp := out.Payment.ExpiresAt
		ev.PaymentID, ev.PaymentURL, ev.ExpiresAt = out.Payment.ID, out.Payment.URL, &exp
	}
	o.rooms.Broadcast(auctionID, wire.EventLotAdjudicated, ev)
	o.publish(notify.LotSubject(auctionID), notify.LotClosed{
		AuctionID: auctionID, LotID: lotID, Status: string(engine.LotAdjudicated), Price: out.Adjudication.FinalPrice, At: o.now().UTC(),
	})
	if out.Payment != nil {
		o.notifyWinner(out, out.Payment)
	} else {
		o.rooms.SendToUser(auctionID, out.Winner.UserID, wire.EventLotWon, o.lotWon(out, nil))
	}
	return out, nil
}

func (o *Orchestrator) lotWon(out Outcome, order *payment.Order) wire.LotWon {
	w := wire.LotWon{LotID: out.Lot.ID, LotTitle: out.Lot.Title, FinalPrice: out.Adjudication.FinalPrice}
	if order != nil {
		exp := order.ExpiresAt
		w.PaymentID, w.PaymentURL, w.ExpiresAt = order.ID, order.URL, &exp
	}
	return w
}

// notifyWinner tells the winner's open connections and the mailer.
func (o *Orchestrator) notifyWinner(out Outcome, order *payment.Order) {
	o.rooms.SendToUser(out.Adjudication.AuctionID, out.Winner.UserID, wire.EventLotWon, o.lotWon(out, order))
	ev := notify.LotWon{
		AuctionID:  out.Adjudication.AuctionID,
		LotID:      out.Lot.ID,
		LotTitle:   out.Lot.Title,
		BidderID:   out.Winner.ID,
		UserID:     out.Winner.UserID,
		Paddle:     out.Winner.PaddleNumber,
		FinalPrice: out.Adjudication.FinalPrice,
	}
	if order != nil {
		ev.PaymentURL, ev.ExpiresAt = order.URL, order.ExpiresAt
	}
	o.publish(notify.LotWonSubject, ev)
}

func (o *Orchestrator) retryPayment(out Outcome) {
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		backoff := o.opts.RetryBackoff
		for attempt := 1; attempt <= o.opts.PaymentRetries; attempt++ {
			select {
			case <-o.bgCtx.Done():
				return
			case <-time.After(backoff):
			}
			ctx, cancel := context.WithTimeout(o.bgCtx, o.opts.PaymentTimeout)
			order, err := o.payments.CreatePaymentOrder(ctx, out.Adjudication.ID)
			cancel()
			if err == nil {
				o.log.Info("payment order created on retry",
					zap.String("adjudication", out.Adjudication.ID), zap.Int("attempt", attempt))
				o.notifyWinner(out, &order)
				return
			}
			o.log.Warn("payment retry failed",
				zap.String("adjudication", out.Adjudication.ID), zap.Int("attempt", attempt), zap.Error(err))
			backoff *= 2
		}
		o.log.Error("payment order abandoned, needs manual follow-up",
			zap.String("adjudication", out.Adjudication.ID))
		o.publish(notify.LotWonSubject, notify.LotWon{
			AuctionID:  out.Adjudication.AuctionID,
			LotID:      out.Lot.ID,
			LotTitle:   out.Lot.Title,
			BidderID:   out.Winner.ID,
			UserID:     out.Winner.UserID,
			Paddle:     out.Winner.PaddleNumber,
			FinalPrice: out.Adjudication.FinalPrice,
		})
	}()
}
