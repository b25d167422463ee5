package types

import (
	"encoding/json"

	"github.com/DoyleJ11/martillo-live/internal/engine"
	wire "github.com/DoyleJ11/martillo-live/pkg/types"
)

type ClientMessage struct {
	Type      string          `json:"type"`
	AuctionID string          `json:"auctionId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type ServerMessage struct {
	Type      string `json:"type"`
	AuctionID string `json:"auctionId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

func Encode(typ, auctionID string, payload any) ([]byte, error) {
	return json.Marshal(ServerMessage{Type: typ, AuctionID: auctionID, Payload: payload})
}

func LotView(l engine.Lot) wire.LotView {
	v := wire.LotView{
		ID:           l.ID,
		OrderIndex:   l.OrderIndex,
		Title:        l.Title,
		Description:  l.Description,
		Status:       string(l.Status),
		BasePrice:    l.BasePrice,
		MinIncrement: l.MinIncrement,
		CurrentPrice: l.CurrentPrice,
		MinimumNext:  engine.MinimumNextBid(l),
	}
	for _, m := range l.Media {
		v.Media = append(v.Media, wire.MediaView{URL: m.URL, Type: m.Type})
	}
	return v
}
