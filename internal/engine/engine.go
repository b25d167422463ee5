package engine

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Rejections. These are expected outcomes returned to a single caller and
// never broadcast.
var ErrAuctionNotLive = errors.New("auction not live")
var ErrLotNotActive = errors.New("lot not active")
var ErrBidderNotApproved = errors.New("bidder not approved")
var ErrRateLimited = errors.New("rate limited")
var ErrConcurrentBid = errors.New("concurrent bid in progress")
var ErrBelowMinimum = errors.New("bid below minimum")
var ErrUnauthorized = errors.New("unauthorized")
var ErrNoBidsOnLot = errors.New("no bids on lot")
var ErrPaddleNotFound = errors.New("paddle not found")
var ErrLotHasBids = errors.New("active lot has bids")
var ErrCommandInProgress = errors.New("command in progress")
var ErrInvalidTransition = errors.New("invalid transition")
var ErrNotFound = errors.New("not found")

// ErrUnavailable marks an infrastructure fault on the write path. Callers
// see it as a generic rejection.
var ErrUnavailable = errors.New("service unavailable")

type Reason string

const (
	ReasonAuctionNotLive    Reason = "AuctionNotLive"
	ReasonLotNotActive      Reason = "LotNotActive"
	ReasonBidderNotApproved Reason = "BidderNotApproved"
	ReasonRateLimited       Reason = "RateLimited"
	ReasonConcurrentBid     Reason = "ConcurrentBidInProgress"
	ReasonBelowMinimum      Reason = "BelowMinimum"
	ReasonUnauthorized      Reason = "Unauthorized"
	ReasonNoBidsOnLot       Reason = "NoBidsOnLot"
	ReasonPaddleNotFound    Reason = "PaddleNotFound"
	ReasonLotHasBids        Reason = "LotHasBids"
	ReasonCommandInProgress Reason = "CommandInProgress"
	ReasonInvalidTransition Reason = "InvalidTransition"
	ReasonNotFound          Reason = "NotFound"
	ReasonUnavailable       Reason = "Unavailable"
)

var reasons = []struct {
	err    error
	reason Reason
}{
	{ErrAuctionNotLive, ReasonAuctionNotLive},
	{ErrLotNotActive, ReasonLotNotActive},
	{ErrBidderNotApproved, ReasonBidderNotApproved},
	{ErrRateLimited, ReasonRateLimited},
	{ErrConcurrentBid, ReasonConcurrentBid},
	{ErrBelowMinimum, ReasonBelowMinimum},
	{ErrUnauthorized, ReasonUnauthorized},
	{ErrNoBidsOnLot, ReasonNoBidsOnLot},
	{ErrPaddleNotFound, ReasonPaddleNotFound},
	{ErrLotHasBids, ReasonLotHasBids},
	{ErrCommandInProgress, ReasonCommandInProgress},
	{ErrInvalidTransition, ReasonInvalidTransition},
	{ErrNotFound, ReasonNotFound},
}

// ReasonOf maps an error to its wire code. The second result is false for
// anything that is not a rejection; those map to ReasonUnavailable.
func ReasonOf(err error) (Reason, bool) {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason, true
		}
	}
	return ReasonUnavailable, false
}

// IsRejection reports whether err is an expected, per-caller outcome.
func IsRejection(err error) bool {
	_, ok := ReasonOf(err)
	return ok
}

type AuctionStatus string

const (
	AuctionDraft     AuctionStatus = "DRAFT"
	AuctionPublished AuctionStatus = "PUBLISHED"
	AuctionLive      AuctionStatus = "LIVE"
	AuctionPaused    AuctionStatus = "PAUSED"
	AuctionFinished  AuctionStatus = "FINISHED"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

type LotStatus string

const (
	LotDraft       LotStatus = "DRAFT"
	LotPublished   LotStatus = "PUBLISHED"
	LotActive      LotStatus = "ACTIVE"
	LotAdjudicated LotStatus = "ADJUDICATED"
	LotUnsold      LotStatus = "UNSOLD"
)

type BidderStatus string

const (
	BidderPending  BidderStatus = "PENDING"
	BidderApproved BidderStatus = "APPROVED"
	BidderRejected BidderStatus = "REJECTED"
	BidderBanned   BidderStatus = "BANNED"
)

type BidSource string

const (
	SourceOnline     BidSource = "ONLINE"
	SourcePresencial BidSource = "PRESENCIAL"
)

type Auction struct {
	ID            string
	Title         string
	Status        AuctionStatus
	CommissionPct decimal.Decimal
	Lots          []Lot
}

type Media struct {
	URL  string
	Type string // "IMAGE" | "DOCUMENT"
}

type Lot struct {
	ID           string
	AuctionID    string
	OrderIndex   int
	Title        string
	Description  string
	Media        []Media
	Status       LotStatus
	BasePrice    int64
	MinIncrement int64
	CurrentPrice int64
	WinnerID     string // bidder id, set on adjudication
}

type Bidder struct {
	ID           string
	AuctionID    string
	UserID       string
	PaddleNumber int
	Status       BidderStatus
}

type Bid struct {
	ID        string
	LotID     string
	BidderID  string
	Amount    int64
	Source    BidSource
	CreatedAt time.Time
}

type Adjudication struct {
	ID           string
	AuctionID    string
	LotID        string
	WinningBidID string
	BidderID     string
	FinalPrice   int64
	CreatedAt    time.Time
}

type AuditEntry struct {
	ID        string
	Entity    string
	EntityID  string
	Action    string
	ActorID   string
	Data      map[string]any
	CreatedAt time.Time
}
