package engine

func FindLot(lots []Lot, id string) (Lot, bool) {
	for _, l := range lots {
		if l.ID == id {
			return l, true
		}
	}
	return Lot{}, false
}

func CountLots(lots []Lot, status LotStatus) int {
	n := 0
	for _, l := range lots {
		if l.Status == status {
			n++
		}
	}
	return n
}

// Activatable reports whether any lot could still be opened.
func Activatable(lots []Lot, permissive bool) bool {
	for _, l := range lots {
		if CanActivate(l, permissive) {
			return true
		}
	}
	return false
}
