package engine

import "fmt"

type Outcome string

const (
	OutcomeAdjudicated Outcome = "ADJUDICATED"
	OutcomeUnsold      Outcome = "UNSOLD"
)

// CanActivate is true for PUBLISHED lots, and for DRAFT lots when running
// permissive (dev/test) rules.
func CanActivate(lot Lot, permissive bool) bool {
	switch lot.Status {
	case LotPublished:
		return true
	case LotDraft:
		return permissive
	default:
		return false
	}
}

func MinimumNextBid(lot Lot) int64 {
	return lot.CurrentPrice + lot.MinIncrement
}

// Activate opens a lot for bidding. The price starts at the base price
// unless an earlier value is already higher. The increment must be positive.
func Activate(lot Lot, permissive bool) (Lot, error) {
	if !CanActivate(lot, permissive) {
		return lot, fmt.Errorf("%w: lot %s is %s", ErrInvalidTransition, lot.ID, lot.Status)
	}
	if lot.MinIncrement <= 0 {
		return lot, fmt.Errorf("%w: lot %s has increment %d", ErrInvalidTransition, lot.ID, lot.MinIncrement)
	}
	next := lot
	next.Status = LotActive
	if next.CurrentPrice < next.BasePrice {
		next.CurrentPrice = next.BasePrice
	}
	return next, nil
}

func ApplyBid(lot Lot, amount int64) (Lot, error) {
	if lot.Status != LotActive {
		return lot, ErrLotNotActive
	}
	// The price never stands still or moves down, whatever the increment.
	if min := MinimumNextBid(lot); amount < min || amount <= lot.CurrentPrice {
		return lot, fmt.Errorf("%w: need >= %d", ErrBelowMinimum, max(min, lot.CurrentPrice+1))
	}
	next := lot
	next.CurrentPrice = amount
	return next, nil
}

// Close moves an ACTIVE lot to a terminal status. The price stays frozen at
// its last value.
func Close(lot Lot, outcome Outcome) (Lot, error) {
	if lot.Status != LotActive {
		return lot, ErrLotNotActive
	}
	next := lot
	switch outcome {
	case OutcomeAdjudicated:
		next.Status = LotAdjudicated
	case OutcomeUnsold:
		next.Status = LotUnsold
		next.WinnerID = ""
	default:
		return lot, fmt.Errorf("%w: unknown outcome %q", ErrInvalidTransition, outcome)
	}
	return next, nil
}

// Withdraw marks a lot that never opened as UNSOLD. Used when the auction
// ends with lots still pending.
func Withdraw(lot Lot) (Lot, error) {
	if lot.Status != LotDraft && lot.Status != LotPublished {
		return lot, fmt.Errorf("%w: lot %s is %s", ErrInvalidTransition, lot.ID, lot.Status)
	}
	next := lot
	next.Status = LotUnsold
	return next, nil
}

func IsTerminal(s LotStatus) bool {
	return s == LotAdjudicated || s == LotUnsold
}
