// Package coord holds the short-lived shared state that every instance of
// the service must agree on: per-lot bid locks, per-auction command locks,
// bidder cooldowns, the active-lot pointer and the auction run-state.
package coord

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

// RunStateUnknown is reported when the run-state could not be read. It is
// never LIVE, so bids are denied while the backing store is down.
const RunStateUnknown engine.AuctionStatus = "UNKNOWN"

var ErrBackend = errors.New("coord backend unavailable")

// Lock is a held lock. Token identifies the holder so a release never
// removes a lock that has since been acquired by someone else.
type Lock struct {
	Key   string
	Token string
}

type Service interface {
	AcquireLotLock(ctx context.Context, lotID string) (Lock, bool, error)
	ReleaseLotLock(ctx context.Context, l Lock) error
	AcquireAuctionLock(ctx context.Context, auctionID string) (Lock, bool, error)
	ReleaseAuctionLock(ctx context.Context, l Lock) error

	// TryBidCooldown reports true when the bidder may bid on the lot now,
	// and starts a new cooldown window in the same step.
	TryBidCooldown(ctx context.Context, bidderID, lotID string) (bool, error)

	// SetActiveLot with an empty lotID clears the pointer.
	SetActiveLot(ctx context.Context, auctionID, lotID string) error
	GetActiveLot(ctx context.Context, auctionID string) (string, error)

	// GetRunState returns "" when nothing has been recorded for the auction.
	SetRunState(ctx context.Context, auctionID string, s engine.AuctionStatus) error
	GetRunState(ctx context.Context, auctionID string) (engine.AuctionStatus, error)
}

type Options struct {
	LotLockTTL     time.Duration
	AuctionLockTTL time.Duration
	BidCooldown    time.Duration
}

func DefaultOptions() Options {
	return Options{
		LotLockTTL:     5 * time.Second,
		AuctionLockTTL: 10 * time.Second,
		BidCooldown:    2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LotLockTTL <= 0 {
		o.LotLockTTL = d.LotLockTTL
	}
	if o.AuctionLockTTL <= 0 {
		o.AuctionLockTTL = d.AuctionLockTTL
	}
	if o.BidCooldown <= 0 {
		o.BidCooldown = d.BidCooldown
	}
	return o
}

func lotLockKey(lotID string) string         { return "lock:lot:" + lotID }
func auctionLockKey(auctionID string) string { return "lock:auction:" + auctionID }
func cooldownKey(bidderID, lotID string) string {
	return "bid-rate:" + bidderID + ":" + lotID
}
func activeLotKey(auctionID string) string { return "auction:" + auctionID + ":activeLot" }
func runStateKey(auctionID string) string  { return "auction:" + auctionID + ":status" }

// Warm records the auction's durable run-state and active lot in s. Used
// after a restart, when the shared store no longer has them.
func Warm(ctx context.Context, s Service, a engine.Auction) error {
	active := ""
	if lots := engine.ActiveLots(a.Lots); len(lots) > 0 {
		active = lots[0].ID
	}
	if err := s.SetActiveLot(ctx, a.ID, active); err != nil {
		return err
	}
	return s.SetRunState(ctx, a.ID, a.Status)
}
