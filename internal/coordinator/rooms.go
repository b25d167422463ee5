package coordinator

import (
	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/hub"
	"github.com/DoyleJ11/martillo-live/internal/lobby"
	"github.com/DoyleJ11/martillo-live/internal/types"
)

// Rooms encodes outbound events and hands them to the auction's lobby on
// this instance. Auctions nobody joined here are skipped.
type Rooms struct {
	hub *hub.Hub
	log *zap.Logger
}

func NewRooms(h *hub.Hub, log *zap.Logger) *Rooms {
	return &Rooms{hub: h, log: log.Named("rooms")}
}

func (r *Rooms) Broadcast(auctionID, typ string, payload any) {
	frame, err := types.Encode(typ, auctionID, payload)
	if err != nil {
		r.log.Error("encode broadcast", zap.String("type", typ), zap.Error(err))
		return
	}
	r.hub.Publish(auctionID, lobby.Broadcast{Frame: frame})
}

func (r *Rooms) SendToUser(auctionID, userID, typ string, payload any) {
	frame, err := types.Encode(typ, auctionID, payload)
	if err != nil {
		r.log.Error("encode private", zap.String("type", typ), zap.Error(err))
		return
	}
	r.hub.Publish(auctionID, lobby.ToUser{UserID: userID, Frame: frame})
}
