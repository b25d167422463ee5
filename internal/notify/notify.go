// Package notify publishes auction events to the event bus for archival and
// for out-of-band consumers such as the winner mailer.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const StreamName = "AUCTION_EVENTS"

func BidSubject(auctionID string) string { return "auction." + auctionID + ".bid" }
func LotSubject(auctionID string) string { return "auction." + auctionID + ".lot" }

// LotWonSubject is consumed by the mailer that emails winners.
const LotWonSubject = "auction.notify.lot-won"

type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

type BidAccepted struct {
	AuctionID string    `json:"auctionId"`
	LotID     string    `json:"lotId"`
	BidID     string    `json:"bidId"`
	BidderID  string    `json:"bidderId"`
	Paddle    int       `json:"paddleNumber"`
	Amount    int64     `json:"amount"`
	Source    string    `json:"source"`
	At        time.Time `json:"at"`
}

type LotClosed struct {
	AuctionID string    `json:"auctionId"`
	LotID     string    `json:"lotId"`
	Status    string    `json:"status"`
	Price     int64     `json:"price"`
	At        time.Time `json:"at"`
}

type LotWon struct {
	AuctionID  string    `json:"auctionId"`
	LotID      string    `json:"lotId"`
	LotTitle   string    `json:"lotTitle"`
	BidderID   string    `json:"bidderId"`
	UserID     string    `json:"userId"`
	Paddle     int       `json:"paddleNumber"`
	FinalPrice int64     `json:"finalPrice"`
	PaymentURL string    `json:"paymentUrl,omitempty"`
	ExpiresAt  time.Time `json:"expiresAt,omitempty"`
}

// Log only writes events to the logger. Used when no bus is configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log.Named("notify")}
}

func (l *Log) Publish(_ context.Context, subject string, v any) error {
	l.log.Info("event", zap.String("subject", subject), zap.Any("data", v))
	return nil
}
