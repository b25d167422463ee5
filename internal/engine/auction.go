package engine

import "fmt"

func AcceptsBids(s AuctionStatus) bool {
	return s == AuctionLive
}

// GoLive opens a published auction.
func GoLive(s AuctionStatus) (AuctionStatus, error) {
	if s != AuctionPublished {
		return s, fmt.Errorf("%w: cannot go live from %s", ErrInvalidTransition, s)
	}
	return AuctionLive, nil
}

func Pause(s AuctionStatus) (AuctionStatus, error) {
	if s != AuctionLive {
		return s, fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, s)
	}
	return AuctionPaused, nil
}

func Resume(s AuctionStatus) (AuctionStatus, error) {
	if s != AuctionPaused {
		return s, fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, s)
	}
	return AuctionLive, nil
}

// End is valid from any state but FINISHED and is terminal.
func End(s AuctionStatus) (AuctionStatus, error) {
	if s == AuctionFinished {
		return s, fmt.Errorf("%w: auction already finished", ErrInvalidTransition)
	}
	return AuctionFinished, nil
}

// IsRunning is true while the auctioneer may drive lots.
func IsRunning(s AuctionStatus) bool {
	return s == AuctionLive || s == AuctionPaused
}
