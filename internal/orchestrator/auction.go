package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/coord"
	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/store"
	wire "github.com/DoyleJ11/martillo-live/pkg/types"
)

// Start takes a published auction live. Lots are opened separately with
// ActivateNext.
func (o *Orchestrator) Start(ctx context.Context, actorID, auctionID string) error {
	return o.transition(ctx, actorID, auctionID, "auction.started", engine.GoLive, wire.EventAuctionStarted, "")
}

func (o *Orchestrator) Pause(ctx context.Context, actorID, auctionID, reason string) error {
	return o.transition(ctx, actorID, auctionID, "auction.paused", engine.Pause, wire.EventAuctionPaused, reason)
}

func (o *Orchestrator) Resume(ctx context.Context, actorID, auctionID string) error {
	return o.transition(ctx, actorID, auctionID, "auction.resumed", engine.Resume, wire.EventAuctionResumed, "")
}

func (o *Orchestrator) transition(
	ctx context.Context,
	actorID, auctionID, action string,
	apply func(engine.AuctionStatus) (engine.AuctionStatus, error),
	event, reason string,
) error {
	var next engine.Auction
	err := o.withAuctionLock(ctx, auctionID, func() error {
		err := o.store.Atomically(ctx, func(tx store.Store) error {
			a, err := tx.GetAuction(ctx, auctionID)
			if err != nil {
				return err
			}
			s, err := apply(a.Status)
			if err != nil {
				return err
			}
			if err := tx.UpdateAuctionStatus(ctx, auctionID, s); err != nil {
				return err
			}
			a.Status = s
			next = a
			var data map[string]any
			if reason != "" {
				data = map[string]any{"reason": reason}
			}
			return o.audit(ctx, tx, "auction", auctionID, action, actorID, data)
		})
		if err != nil {
			return storeErr(err)
		}
		if err := coord.Warm(ctx, o.coord, next); err != nil {
			o.log.Error("publish run state", zap.String("auction", auctionID), zap.Error(err))
		}
		return nil
	})
	o.logResult(action, auctionID, err)
	if err != nil {
		return err
	}
	o.rooms.Broadcast(auctionID, event, wire.AuctionStatus{Status: string(next.Status), Reason: reason})
	return nil
}

// End finishes the auction. The open lot closes UNSOLD and lots that never
// opened are withdrawn.
func (o *Orchestrator) End(ctx context.Context, actorID, auctionID string) error {
	var closedActive []string
	err := o.withAuctionLock(ctx, auctionID, func() error {
		// Lock the open lots so bids already accepted reach the room before
		// the lots are reported closed.
		snapshot, err := o.store.GetAuction(ctx, auctionID)
		if err != nil {
			return storeErr(err)
		}
		var open []string
		for _, l := range engine.ActiveLots(snapshot.Lots) {
			open = append(open, l.ID)
		}
		err = o.withLotLocks(ctx, open, func() error {
			return o.store.Atomically(ctx, func(tx store.Store) error {
				a, err := tx.GetAuction(ctx, auctionID)
				if err != nil {
					return err
				}
				s, err := engine.End(a.Status)
				if err != nil {
					return err
				}
				withdrawn := 0
				for _, l := range a.Lots {
					var next engine.Lot
					switch l.Status {
					case engine.LotActive:
						cur, err := tx.GetLotForUpdate(ctx, l.ID)
						if err != nil {
							return err
						}
						if next, err = engine.Close(cur, engine.OutcomeUnsold); err != nil {
							return err
						}
						closedActive = append(closedActive, l.ID)
					case engine.LotDraft, engine.LotPublished:
						if next, err = engine.Withdraw(l); err != nil {
							return err
						}
						withdrawn++
					default:
						continue
					}
					if err := tx.UpdateLot(ctx, next); err != nil {
						return err
					}
				}
				if err := tx.UpdateAuctionStatus(ctx, auctionID, s); err != nil {
					return err
				}
				return o.audit(ctx, tx, "auction", auctionID, "auction.ended", actorID, map[string]any{
					"closedActive": len(closedActive), "withdrawn": withdrawn,
				})
			})
		})
		if err != nil {
			closedActive = nil
			return storeErr(err)
		}
		if err := o.coord.SetActiveLot(ctx, auctionID, ""); err != nil {
			o.log.Error("clear active lot", zap.String("auction", auctionID), zap.Error(err))
		}
		if err := o.coord.SetRunState(ctx, auctionID, engine.AuctionFinished); err != nil {
			o.log.Error("publish run state", zap.String("auction", auctionID), zap.Error(err))
		}
		return nil
	})
	o.logResult("end", auctionID, err)
	if err != nil {
		return err
	}
	for _, id := range closedActive {
		o.rooms.Broadcast(auctionID, wire.EventLotSkipped, wire.LotSkipped{LotID: id})
	}
	o.rooms.Broadcast(auctionID, wire.EventAuctionEnded, wire.AuctionStatus{Status: string(engine.AuctionFinished)})
	return nil
}

// Sync copies the durable run-state and active lot into the shared store.
func (o *Orchestrator) Sync(ctx context.Context, auctionID string) error {
	a, err := o.store.GetAuction(ctx, auctionID)
	if err != nil {
		return storeErr(err)
	}
	return coord.Warm(ctx, o.coord, a)
}

type State struct {
	AuctionID string
	RunState  engine.AuctionStatus
	ActiveLot *engine.Lot
}

// State is the authoritative view a client resyncs from. A cold shared
// store is warmed from the repository first.
func (o *Orchestrator) State(ctx context.Context, auctionID string) (State, error) {
	run, err := o.coord.GetRunState(ctx, auctionID)
	if err != nil {
		return State{}, storeErr(err)
	}
	if run == "" {
		if err := o.Sync(ctx, auctionID); err != nil {
			return State{}, err
		}
		if run, err = o.coord.GetRunState(ctx, auctionID); err != nil {
			return State{}, storeErr(err)
		}
	}
	st := State{AuctionID: auctionID, RunState: run}

	lotID, err := o.coord.GetActiveLot(ctx, auctionID)
	if err != nil {
		return State{}, storeErr(err)
	}
	if lotID == "" {
		return st, nil
	}
	l, err := o.store.GetLot(ctx, lotID)
	if err != nil {
		o.log.Warn("active lot missing from store", zap.String("auction", auctionID), zap.String("lot", lotID), zap.Error(err))
		return st, nil
	}
	st.ActiveLot = &l
	return st, nil
}
