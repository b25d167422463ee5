// Package store is the durable repository for auctions, lots, bidders, bids,
// adjudications, audit rows and payment orders.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

var ErrNotFound = errors.New("record not found")
var ErrConflict = errors.New("record already exists")

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

// PaymentOrder is the persisted form of a checkout created for an
// adjudication. Money amounts are decimal strings with two places.
type PaymentOrder struct {
	ID             string
	AdjudicationID string
	BidderID       string
	Price          string
	Commission     string
	Tax            string
	Total          string
	Status         PaymentStatus
	ProviderRef    string
	URL            string
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

// Store is implemented by Memory and Postgres. Calls made on the Store
// passed to Atomically's callback run in one transaction.
type Store interface {
	Atomically(ctx context.Context, fn func(tx Store) error) error

	// GetAuction returns the auction with its lots sorted by OrderIndex.
	GetAuction(ctx context.Context, id string) (engine.Auction, error)
	UpdateAuctionStatus(ctx context.Context, id string, s engine.AuctionStatus) error

	GetLot(ctx context.Context, id string) (engine.Lot, error)
	// GetLotForUpdate row-locks the lot until the transaction ends.
	GetLotForUpdate(ctx context.Context, id string) (engine.Lot, error)
	UpdateLot(ctx context.Context, l engine.Lot) error

	GetBidder(ctx context.Context, id string) (engine.Bidder, error)
	FindBidder(ctx context.Context, auctionID, userID string) (engine.Bidder, error)
	FindBidderByPaddle(ctx context.Context, auctionID string, paddle int) (engine.Bidder, error)

	// ListBids returns bids in acceptance order.
	ListBids(ctx context.Context, lotID string) ([]engine.Bid, error)
	CountBids(ctx context.Context, lotID string) (int, error)
	InsertBid(ctx context.Context, b engine.Bid) error

	InsertAdjudication(ctx context.Context, a engine.Adjudication) error
	GetAdjudication(ctx context.Context, id string) (engine.Adjudication, error)

	InsertAudit(ctx context.Context, e engine.AuditEntry) error

	FindPaymentOrder(ctx context.Context, adjudicationID string) (PaymentOrder, error)
	SavePaymentOrder(ctx context.Context, o PaymentOrder) error
}
