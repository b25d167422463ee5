// Package payment turns an adjudication into a payable order: it computes
// commission and tax and opens a checkout with the payment provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/store"
)

type Repository interface {
	GetAdjudication(ctx context.Context, id string) (engine.Adjudication, error)
	GetLot(ctx context.Context, id string) (engine.Lot, error)
	GetAuction(ctx context.Context, id string) (engine.Auction, error)
	FindPaymentOrder(ctx context.Context, adjudicationID string) (store.PaymentOrder, error)
	SavePaymentOrder(ctx context.Context, o store.PaymentOrder) error
}

type Order struct {
	ID             string
	AdjudicationID string
	BidderID       string
	Charges        Charges
	Status         store.PaymentStatus
	ProviderRef    string
	URL            string
	ExpiresAt      time.Time
}

// Options.TaxRate is used as given; zero means untaxed.
type Options struct {
	TaxRate decimal.Decimal
	TTL     time.Duration
}

type Service struct {
	repo Repository
	gw   Gateway
	opts Options
	now  func() time.Time
	log  *zap.Logger
}

func NewService(repo Repository, gw Gateway, opts Options, log *zap.Logger) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 48 * time.Hour
	}
	return &Service{repo: repo, gw: gw, opts: opts, now: time.Now, log: log.Named("payment")}
}

// CreatePaymentOrder returns the order for an adjudication, opening a new
// checkout only when none exists or the previous one has expired.
func (s *Service) CreatePaymentOrder(ctx context.Context, adjudicationID string) (Order, error) {
	adj, err := s.repo.GetAdjudication(ctx, adjudicationID)
	if err != nil {
		return Order{}, fmt.Errorf("load adjudication: %w", err)
	}

	existing, err := s.repo.FindPaymentOrder(ctx, adjudicationID)
	switch {
	case err == nil:
		if existing.URL != "" && s.now().Before(existing.ExpiresAt) {
			return orderFromRecord(existing)
		}
	case errors.Is(err, store.ErrNotFound):
	default:
		return Order{}, fmt.Errorf("load payment: %w", err)
	}

	lot, err := s.repo.GetLot(ctx, adj.LotID)
	if err != nil {
		return Order{}, fmt.Errorf("load lot: %w", err)
	}
	auction, err := s.repo.GetAuction(ctx, adj.AuctionID)
	if err != nil {
		return Order{}, fmt.Errorf("load auction: %w", err)
	}

	charges := Compute(adj.FinalPrice, auction.CommissionPct, s.opts.TaxRate)
	now := s.now()
	rec := store.PaymentOrder{
		ID:             existing.ID,
		AdjudicationID: adj.ID,
		BidderID:       adj.BidderID,
		Price:          charges.Price.StringFixed(2),
		Commission:     charges.Commission.StringFixed(2),
		Tax:            charges.Tax.StringFixed(2),
		Total:          charges.Total.StringFixed(2),
		Status:         store.PaymentPending,
		ExpiresAt:      now.Add(s.opts.TTL),
		CreatedAt:      now,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	res, err := s.gw.CreateCheckout(ctx, Checkout{
		Reference: adj.ID,
		Title:     "Martillo - Pago lote " + lot.Title,
		Amount:    charges.Total,
		ExpiresAt: rec.ExpiresAt,
	})
	if err != nil {
		return Order{}, fmt.Errorf("create checkout: %w", err)
	}
	rec.ProviderRef = res.ProviderRef
	rec.URL = res.URL

	if err := s.repo.SavePaymentOrder(ctx, rec); err != nil {
		return Order{}, fmt.Errorf("save payment: %w", err)
	}
	s.log.Info("payment order created",
		zap.String("adjudication", adj.ID),
		zap.String("order", rec.ID),
		zap.String("total", rec.Total))

	return Order{
		ID:             rec.ID,
		AdjudicationID: rec.AdjudicationID,
		BidderID:       rec.BidderID,
		Charges:        charges,
		Status:         rec.Status,
		ProviderRef:    rec.ProviderRef,
		URL:            rec.URL,
		ExpiresAt:      rec.ExpiresAt,
	}, nil
}

func orderFromRecord(r store.PaymentOrder) (Order, error) {
	var c Charges
	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&c.Price, r.Price}, {&c.Commission, r.Commission}, {&c.Tax, r.Tax}, {&c.Total, r.Total}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return Order{}, fmt.Errorf("payment %s amounts: %w", r.ID, err)
		}
	}
	return Order{
		ID:             r.ID,
		AdjudicationID: r.AdjudicationID,
		BidderID:       r.BidderID,
		Charges:        c,
		Status:         r.Status,
		ProviderRef:    r.ProviderRef,
		URL:            r.URL,
		ExpiresAt:      r.ExpiresAt,
	}, nil
}
