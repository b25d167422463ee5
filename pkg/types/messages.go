// Package types is the public wire protocol spoken over /ws. Every frame is
// an envelope {"type", "auctionId", "payload"}.
package types

import "time"

// Client -> Server
const (
	EventJoin          = "join"
	EventLeave         = "leave"
	EventBidPlace      = "bid:place"
	EventStart         = "start"
	EventNextLot       = "next-lot"
	EventAdjudicate    = "adjudicate"
	EventSkipLot       = "skip-lot"
	EventPause         = "pause"
	EventResume        = "resume"
	EventEnd           = "end"
	EventBidPresencial = "bid-presencial"
)

// Server -> Client
const (
	EventJoined          = "joined"
	EventPresenceCount   = "presence-count"
	EventBidUpdate       = "bid:update"
	EventBidRejected     = "bid:rejected"
	EventLotActive       = "lot:active"
	EventLotAdjudicated  = "lot:adjudicated"
	EventLotWon          = "lot:won"
	EventLotSkipped      = "lot:skipped"
	EventNoMoreLots      = "no-more-lots"
	EventAuctionStarted  = "auction:started"
	EventAuctionPaused   = "auction:paused"
	EventAuctionResumed  = "auction:resumed"
	EventAuctionEnded    = "auction:ended"
	EventCommandRejected = "command:rejected"
	EventError           = "error"
)

// OperatorEvents may only be sent by an ADMIN or AUCTIONEER.
var OperatorEvents = map[string]bool{
	EventStart:         true,
	EventNextLot:       true,
	EventAdjudicate:    true,
	EventSkipLot:       true,
	EventPause:         true,
	EventResume:        true,
	EventEnd:           true,
	EventBidPresencial: true,
}

type BidPlace struct {
	LotID  string `json:"lotId"`
	Amount int64  `json:"amount"`
}

type BidPresencial struct {
	LotID        string `json:"lotId"`
	PaddleNumber int    `json:"paddleNumber"`
	Amount       int64  `json:"amount"`
}

// LotCommand carries the lot an adjudicate or skip-lot refers to.
type LotCommand struct {
	LotID string `json:"lotId"`
}

type PresenceCount struct {
	Count int `json:"count"`
}

type BidUpdate struct {
	LotID        string    `json:"lotId"`
	BidID        string    `json:"bidId"`
	NewAmount    int64     `json:"newAmount"`
	PaddleNumber int       `json:"paddleNumber"`
	Source       string    `json:"source"`
	MinimumNext  int64     `json:"minimumNext"`
	Timestamp    time.Time `json:"timestamp"`
}

type BidRejected struct {
	LotID   string `json:"lotId,omitempty"`
	Amount  int64  `json:"amount,omitempty"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type LotActive struct {
	Lot       LotView   `json:"lot"`
	StartedAt time.Time `json:"startedAt"`
}

type LotAdjudicated struct {
	LotID        string     `json:"lotId"`
	WinnerPaddle int        `json:"winnerPaddle"`
	FinalPrice   int64      `json:"finalPrice"`
	PaymentID    string     `json:"paymentId,omitempty"`
	PaymentURL   string     `json:"paymentUrl,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

type LotWon struct {
	LotID      string     `json:"lotId"`
	PaymentID  string     `json:"paymentId,omitempty"`
	LotTitle   string     `json:"lotTitle"`
	FinalPrice int64      `json:"finalPrice"`
	PaymentURL string     `json:"paymentUrl,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

type LotSkipped struct {
	LotID string `json:"lotId"`
}

// Pause is both the inbound pause payload and the auction:paused payload.
type Pause struct {
	Reason string `json:"reason,omitempty"`
}

type AuctionStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type CommandRejected struct {
	Event   string `json:"event"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type Error struct {
	Message string `json:"message"`
}
