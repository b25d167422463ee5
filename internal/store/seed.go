package store

import (
	"github.com/shopspring/decimal"

	"github.com/DoyleJ11/martillo-live/internal/engine"
)

const DemoAuctionID = "demo"

// SeedDemo loads a small published auction with two approved bidders.
// Users "u-ana" and "u-ben" hold paddles 101 and 102.
func SeedDemo(m *Memory) {
	m.PutAuction(engine.Auction{
		ID:            DemoAuctionID,
		Title:         "Remate de muestra",
		Status:        engine.AuctionPublished,
		CommissionPct: decimal.NewFromInt(10),
		Lots: []engine.Lot{
			{ID: "demo-lot-1", OrderIndex: 0, Title: "Reloj de pared", Status: engine.LotPublished, BasePrice: 100000, MinIncrement: 5000},
			{ID: "demo-lot-2", OrderIndex: 1, Title: "Lámpara de bronce", Status: engine.LotPublished, BasePrice: 250000, MinIncrement: 10000},
			{ID: "demo-lot-3", OrderIndex: 2, Title: "Óleo sobre tela", Status: engine.LotPublished, BasePrice: 800000, MinIncrement: 50000,
				Media: []engine.Media{{URL: "https://example.com/oleo.jpg", Type: "IMAGE"}}},
		},
	})
	m.PutBidder(engine.Bidder{ID: "demo-bidder-1", AuctionID: DemoAuctionID, UserID: "u-ana", PaddleNumber: 101, Status: engine.BidderApproved})
	m.PutBidder(engine.Bidder{ID: "demo-bidder-2", AuctionID: DemoAuctionID, UserID: "u-ben", PaddleNumber: 102, Status: engine.BidderApproved})
}
