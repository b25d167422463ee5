package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func newLot(id string, idx int, status LotStatus) Lot {
	return Lot{
		ID:           id,
		AuctionID:    "a1",
		OrderIndex:   idx,
		Status:       status,
		BasePrice:    100000,
		MinIncrement: 5000,
	}
}

func withIncrement(l Lot, inc int64) Lot {
	l.MinIncrement = inc
	return l
}

func TestApplyBid(t *testing.T) {
	active := newLot("l1", 0, LotActive)
	active.CurrentPrice = 100000

	cases := []struct {
		name      string
		lot       Lot
		amount    int64
		wantErr   error
		wantPrice int64
	}{
		{name: "below minimum", lot: active, amount: 104000, wantErr: ErrBelowMinimum, wantPrice: 100000},
		{name: "exactly minimum", lot: active, amount: 105000, wantPrice: 105000},
		{name: "above minimum", lot: active, amount: 150000, wantPrice: 150000},
		{name: "lot not active", lot: newLot("l2", 1, LotPublished), amount: 500000, wantErr: ErrLotNotActive},
		{name: "lot already sold", lot: newLot("l3", 2, LotAdjudicated), amount: 500000, wantErr: ErrLotNotActive},
		{name: "zero increment same price", lot: withIncrement(active, 0), amount: 100000, wantErr: ErrBelowMinimum, wantPrice: 100000},
		{name: "zero increment higher price", lot: withIncrement(active, 0), amount: 100001, wantPrice: 100001},
		{name: "negative increment lower price", lot: withIncrement(active, -5000), amount: 95000, wantErr: ErrBelowMinimum, wantPrice: 100000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyBid(tc.lot, tc.amount)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if got.CurrentPrice != tc.lot.CurrentPrice {
					t.Fatalf("price changed on rejection: %d", got.CurrentPrice)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.CurrentPrice != tc.wantPrice {
				t.Fatalf("price = %d, want %d", got.CurrentPrice, tc.wantPrice)
			}
		})
	}
}

func TestActivate(t *testing.T) {
	cases := []struct {
		name       string
		lot        Lot
		permissive bool
		wantErr    bool
	}{
		{name: "published", lot: newLot("l1", 0, LotPublished)},
		{name: "draft strict", lot: newLot("l1", 0, LotDraft), wantErr: true},
		{name: "draft permissive", lot: newLot("l1", 0, LotDraft), permissive: true},
		{name: "already active", lot: newLot("l1", 0, LotActive), wantErr: true},
		{name: "unsold", lot: newLot("l1", 0, LotUnsold), permissive: true, wantErr: true},
		{name: "zero increment", lot: withIncrement(newLot("l1", 0, LotPublished), 0), wantErr: true},
		{name: "negative increment", lot: withIncrement(newLot("l1", 0, LotPublished), -5000), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Activate(tc.lot, tc.permissive)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected invalid transition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.Status != LotActive {
				t.Fatalf("status = %s", got.Status)
			}
			if got.CurrentPrice != got.BasePrice {
				t.Fatalf("price = %d, want base %d", got.CurrentPrice, got.BasePrice)
			}
		})
	}
}

func TestCloseAndWithdraw(t *testing.T) {
	l := newLot("l1", 0, LotActive)
	l.CurrentPrice = 120000

	sold, err := Close(l, OutcomeAdjudicated)
	if err != nil || sold.Status != LotAdjudicated || sold.CurrentPrice != 120000 {
		t.Fatalf("adjudicate: %+v %v", sold, err)
	}
	if _, err := ApplyBid(sold, 200000); !errors.Is(err, ErrLotNotActive) {
		t.Fatalf("terminal lot accepted bid: %v", err)
	}
	if _, err := Close(sold, OutcomeUnsold); !errors.Is(err, ErrLotNotActive) {
		t.Fatalf("closed twice: %v", err)
	}

	unsold, err := Close(l, OutcomeUnsold)
	if err != nil || unsold.Status != LotUnsold {
		t.Fatalf("unsold: %+v %v", unsold, err)
	}

	w, err := Withdraw(newLot("l2", 1, LotPublished))
	if err != nil || w.Status != LotUnsold {
		t.Fatalf("withdraw: %+v %v", w, err)
	}
	if _, err := Withdraw(l); err == nil {
		t.Fatalf("withdrew an active lot")
	}
}

func TestAuctionTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    AuctionStatus
		apply   func(AuctionStatus) (AuctionStatus, error)
		want    AuctionStatus
		wantErr bool
	}{
		{"go live", AuctionPublished, GoLive, AuctionLive, false},
		{"go live from draft", AuctionDraft, GoLive, AuctionDraft, true},
		{"pause", AuctionLive, Pause, AuctionPaused, false},
		{"pause twice", AuctionPaused, Pause, AuctionPaused, true},
		{"resume", AuctionPaused, Resume, AuctionLive, false},
		{"resume live", AuctionLive, Resume, AuctionLive, true},
		{"end live", AuctionLive, End, AuctionFinished, false},
		{"end paused", AuctionPaused, End, AuctionFinished, false},
		{"end finished", AuctionFinished, End, AuctionFinished, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.apply(tc.from)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tc.want {
				t.Fatalf("status = %s, want %s", got, tc.want)
			}
		})
	}

	if !AcceptsBids(AuctionLive) || AcceptsBids(AuctionPaused) {
		t.Fatalf("only LIVE accepts bids")
	}
}

func TestNextLot(t *testing.T) {
	lots := []Lot{
		newLot("c", 2, LotPublished),
		newLot("a", 0, LotAdjudicated),
		newLot("b", 1, LotDraft),
		newLot("d", 3, LotPublished),
	}

	next, ok := NextLot(lots, 0, false)
	if !ok || next.ID != "c" {
		t.Fatalf("strict next = %q %v, want c", next.ID, ok)
	}
	next, ok = NextLot(lots, 0, true)
	if !ok || next.ID != "b" {
		t.Fatalf("permissive next = %q %v, want b", next.ID, ok)
	}
	next, ok = NextLot(lots, -1, false)
	if !ok || next.ID != "c" {
		t.Fatalf("first = %q %v, want c", next.ID, ok)
	}
	if _, ok := NextLot(lots, 3, true); ok {
		t.Fatalf("expected no lot after last index")
	}
}

func TestSelectWinner(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bids := []Bid{
		{ID: "b1", Amount: 105000, CreatedAt: t0},
		{ID: "b2", Amount: 110000, CreatedAt: t0.Add(2 * time.Second)},
		{ID: "b3", Amount: 110000, CreatedAt: t0.Add(time.Second)},
	}

	w, tied, ok := SelectWinner(bids)
	if !ok || w.ID != "b3" || !tied {
		t.Fatalf("winner = %s tied=%v ok=%v", w.ID, tied, ok)
	}

	w, tied, _ = SelectWinner(bids[:2])
	if w.ID != "b2" || tied {
		t.Fatalf("winner = %s tied=%v", w.ID, tied)
	}

	if _, _, ok := SelectWinner(nil); ok {
		t.Fatalf("expected no winner")
	}
}

func TestReasonOf(t *testing.T) {
	wrapped := fmt.Errorf("%w: need >= 105000", ErrBelowMinimum)
	if r, ok := ReasonOf(wrapped); !ok || r != ReasonBelowMinimum {
		t.Fatalf("reason = %s %v", r, ok)
	}
	if r, ok := ReasonOf(errors.New("dial tcp: refused")); ok || r != ReasonUnavailable {
		t.Fatalf("infra error mapped to %s %v", r, ok)
	}
	if IsRejection(ErrUnavailable) {
		t.Fatalf("unavailable is not a rejection")
	}
}
