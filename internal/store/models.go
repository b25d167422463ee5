package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

type auctionRow struct {
	ID            string          `gorm:"type:varchar(36);primaryKey"`
	Title         string          `gorm:"type:varchar(255);not null"`
	Status        string          `gorm:"type:varchar(16);not null"`
	CommissionPct decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (auctionRow) TableName() string { return "auctions" }

type lotRow struct {
	ID           string         `gorm:"type:varchar(36);primaryKey"`
	AuctionID    string         `gorm:"type:varchar(36);not null;index:idx_lot_order,priority:1"`
	OrderIndex   int            `gorm:"not null;index:idx_lot_order,priority:2"`
	Title        string         `gorm:"type:varchar(255);not null"`
	Description  string         `gorm:"type:text"`
	Media        []engine.Media `gorm:"type:jsonb;serializer:json"`
	Status       string         `gorm:"type:varchar(16);not null"`
	BasePrice    int64          `gorm:"not null"`
	MinIncrement int64          `gorm:"not null"`
	CurrentPrice int64          `gorm:"not null"`
	WinnerID     string         `gorm:"type:varchar(36)"`
	UpdatedAt    time.Time
}

func (lotRow) TableName() string { return "lots" }

type bidderRow struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	AuctionID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_bidder_user;uniqueIndex:idx_bidder_paddle"`
	UserID       string `gorm:"type:varchar(36);not null;uniqueIndex:idx_bidder_user"`
	PaddleNumber int    `gorm:"not null;uniqueIndex:idx_bidder_paddle"`
	Status       string `gorm:"type:varchar(16);not null"`
}

func (bidderRow) TableName() string { return "bidders" }

type bidRow struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	LotID     string    `gorm:"type:varchar(36);not null;index"`
	BidderID  string    `gorm:"type:varchar(36);not null;index"`
	Amount    int64     `gorm:"not null"`
	Source    string    `gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `gorm:"type:timestamp with time zone;not null"`
}

func (bidRow) TableName() string { return "bids" }

type adjudicationRow struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	AuctionID    string    `gorm:"type:varchar(36);not null;index"`
	LotID        string    `gorm:"type:varchar(36);not null;uniqueIndex"`
	WinningBidID string    `gorm:"type:varchar(36);not null"`
	BidderID     string    `gorm:"type:varchar(36);not null"`
	FinalPrice   int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"type:timestamp with time zone;not null"`
}

func (adjudicationRow) TableName() string { return "adjudications" }

type auditRow struct {
	ID        string         `gorm:"type:varchar(36);primaryKey"`
	Entity    string         `gorm:"type:varchar(32);not null;index:idx_audit_entity,priority:1"`
	EntityID  string         `gorm:"type:varchar(36);not null;index:idx_audit_entity,priority:2"`
	Action    string         `gorm:"type:varchar(64);not null"`
	ActorID   string         `gorm:"type:varchar(36)"`
	Data      map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt time.Time      `gorm:"type:timestamp with time zone;not null;index"`
}

func (auditRow) TableName() string { return "audit_logs" }

type paymentRow struct {
	ID             string          `gorm:"type:varchar(36);primaryKey"`
	AdjudicationID string          `gorm:"type:varchar(36);not null;uniqueIndex"`
	BidderID       string          `gorm:"type:varchar(36);not null"`
	Price          decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Commission     decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Tax            decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Total          decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Status         string          `gorm:"type:varchar(16);not null"`
	ProviderRef    string          `gorm:"type:varchar(128)"`
	URL            string          `gorm:"type:text"`
	ExpiresAt      time.Time       `gorm:"type:timestamp with time zone"`
	CreatedAt      time.Time
}

func (paymentRow) TableName() string { return "payment_orders" }

func allModels() []any {
	return []any{&auctionRow{}, &lotRow{}, &bidderRow{}, &bidRow{}, &adjudicationRow{}, &auditRow{}, &paymentRow{}}
}

func lotFromRow(r lotRow) engine.Lot {
	return engine.Lot{
		ID:           r.ID,
		AuctionID:    r.AuctionID,
		OrderIndex:   r.OrderIndex,
		Title:        r.Title,
		Description:  r.Description,
		Media:        r.Media,
		Status:       engine.LotStatus(r.Status),
		BasePrice:    r.BasePrice,
		MinIncrement: r.MinIncrement,
		CurrentPrice: r.CurrentPrice,
		WinnerID:     r.WinnerID,
	}
}

func lotToRow(l engine.Lot) lotRow {
	return lotRow{
		ID:           l.ID,
		AuctionID:    l.AuctionID,
		OrderIndex:   l.OrderIndex,
		Title:        l.Title,
		Description:  l.Description,
		Media:        l.Media,
		Status:       string(l.Status),
		BasePrice:    l.BasePrice,
		MinIncrement: l.MinIncrement,
		CurrentPrice: l.CurrentPrice,
		WinnerID:     l.WinnerID,
	}
}

func bidderFromRow(r bidderRow) engine.Bidder {
	return engine.Bidder{
		ID:           r.ID,
		AuctionID:    r.AuctionID,
		UserID:       r.UserID,
		PaddleNumber: r.PaddleNumber,
		Status:       engine.BidderStatus(r.Status),
	}
}

func paymentFromRow(r paymentRow) PaymentOrder {
	return PaymentOrder{
		ID:             r.ID,
		AdjudicationID: r.AdjudicationID,
		BidderID:       r.BidderID,
		Price:          r.Price.StringFixed(2),
		Commission:     r.Commission.StringFixed(2),
		Tax:            r.Tax.StringFixed(2),
		Total:          r.Total.StringFixed(2),
		Status:         PaymentStatus(r.Status),
		ProviderRef:    r.ProviderRef,
		URL:            r.URL,
		ExpiresAt:      r.ExpiresAt,
		CreatedAt:      r.CreatedAt,
	}
}

func paymentToRow(o PaymentOrder) (paymentRow, error) {
	amounts := make([]decimal.Decimal, 4)
	for i, s := range []string{o.Price, o.Commission, o.Tax, o.Total} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return paymentRow{}, err
		}
		amounts[i] = d
	}
	return paymentRow{
		ID:             o.ID,
		AdjudicationID: o.AdjudicationID,
		BidderID:       o.BidderID,
		Price:          amounts[0],
		Commission:     amounts[1],
		Tax:            amounts[2],
		Total:          amounts[3],
		Status:         string(o.Status),
		ProviderRef:    o.ProviderRef,
		URL:            o.URL,
		ExpiresAt:      o.ExpiresAt,
		CreatedAt:      o.CreatedAt,
	}, nil
}
