package types

type MediaView struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type LotView struct {
	ID           string      `json:"id"`
	OrderIndex   int         `json:"orderIndex"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Media        []MediaView `json:"media,omitempty"`
	Status       string      `json:"status"`
	BasePrice    int64       `json:"basePrice"`
	MinIncrement int64       `json:"minIncrement"`
	CurrentPrice int64       `json:"currentPrice"`
	MinimumNext  int64       `json:"minimumNext"`
}

// Joined is the authoritative snapshot sent on every join. Clients that
// reconnect replace their local state with it.
type Joined struct {
	AuctionID     string   `json:"auctionId"`
	RunState      string   `json:"runState"`
	ActiveLotID   string   `json:"activeLotId,omitempty"`
	Lot           *LotView `json:"lot,omitempty"`
	PresenceCount int      `json:"presenceCount"`
	PaddleNumber  *int     `json:"paddleNumber,omitempty"`
	Role          string   `json:"role"`
}
