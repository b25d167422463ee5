package engine

import "sort"

// SortLots orders lots by OrderIndex, breaking ties on ID so the order is
// stable across reads.
func SortLots(lots []Lot) []Lot {
	out := make([]Lot, len(lots))
	copy(out, lots)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NextLot returns the first activatable lot strictly after afterIndex.
// Pass -1 to start from the beginning.
func NextLot(lots []Lot, afterIndex int, permissive bool) (Lot, bool) {
	for _, l := range SortLots(lots) {
		if l.OrderIndex <= afterIndex {
			continue
		}
		if CanActivate(l, permissive) {
			return l, true
		}
	}
	return Lot{}, false
}

// ActiveLots lists every lot currently ACTIVE. More than one means the
// auction needs repair.
func ActiveLots(lots []Lot) []Lot {
	var out []Lot
	for _, l := range SortLots(lots) {
		if l.Status == LotActive {
			out = append(out, l)
		}
	}
	return out
}

// SelectWinner picks the highest amount, the earliest bid winning a tie.
// tied is true when another bid matched the winning amount.
func SelectWinner(bids []Bid) (winner Bid, tied bool, ok bool) {
	if len(bids) == 0 {
		return Bid{}, false, false
	}
	winner = bids[0]
	for _, b := range bids[1:] {
		switch {
		case b.Amount > winner.Amount:
			winner, tied = b, false
		case b.Amount == winner.Amount:
			tied = true
			if b.CreatedAt.Before(winner.CreatedAt) {
				winner = b
			}
		}
	}
	return winner, tied, true
}
