// Package identity resolves who is calling. Authentication happens upstream;
// the gateway forwards the user id and role as request headers.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/store"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleAuctioneer Role = "AUCTIONEER"
	RoleBidder     Role = "BIDDER"
)

type Identity struct {
	UserID string
	Role   Role
}

func (i Identity) Authenticated() bool { return i.UserID != "" }

func (i Identity) IsOperator() bool {
	return i.Authenticated() && (i.Role == RoleAdmin || i.Role == RoleAuctioneer)
}

func FromRequest(r *http.Request) Identity {
	return Identity{
		UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Role:   Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderRole)))),
	}
}

type Kind int

const (
	Unauthenticated Kind = iota
	Operator
	ApprovedBidder
)

func (k Kind) String() string {
	switch k {
	case Operator:
		return "operator"
	case ApprovedBidder:
		return "bidder"
	default:
		return "unauthenticated"
	}
}

// Caller is the identity resolved against one auction. Bidder is set only
// for ApprovedBidder.
type Caller struct {
	Kind     Kind
	Identity Identity
	Bidder   engine.Bidder
}

type BidderFinder interface {
	FindBidder(ctx context.Context, auctionID, userID string) (engine.Bidder, error)
}

// Resolve classifies id for auctionID. A user with no bidder record, or one
// that is not APPROVED, resolves to Unauthenticated without error.
func Resolve(ctx context.Context, id Identity, auctionID string, bidders BidderFinder) (Caller, error) {
	if id.IsOperator() {
		return Caller{Kind: Operator, Identity: id}, nil
	}
	if !id.Authenticated() {
		return Caller{Kind: Unauthenticated, Identity: id}, nil
	}
	b, err := bidders.FindBidder(ctx, auctionID, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return Caller{Kind: Unauthenticated, Identity: id}, nil
	}
	if err != nil {
		return Caller{}, err
	}
	if b.Status != engine.BidderApproved {
		return Caller{Kind: Unauthenticated, Identity: id}, nil
	}
	return Caller{Kind: ApprovedBidder, Identity: id, Bidder: b}, nil
}
