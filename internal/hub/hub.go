// Package hub keeps one lobby actor per auction.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

type GetLobby struct {
	AuctionID string
	Reply     chan *lobby.Lobby
}

type EnsureLobby struct {
	AuctionID string
	Reply     chan *lobby.Lobby
}

// RemoveLobby stops an auction's lobby unless it still has members.
type RemoveLobby struct {
	AuctionID string
}

type ShutdownHub struct{}

func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetLobby:
				msg.Reply <- h.lobbies[msg.AuctionID] // may be nil

			case EnsureLobby:
				if lb := h.lobbies[msg.AuctionID]; lb != nil {
					msg.Reply <- lb
					break
				}
				lb := lobby.NewLobby(h.ctx, msg.AuctionID, h.log)
				h.lobbies[msg.AuctionID] = lb
				msg.Reply <- lb

			case RemoveLobby:
				lb := h.lobbies[msg.AuctionID]
				if lb == nil {
					break
				}
				if h.stopIfEmpty(lb) {
					delete(h.lobbies, msg.AuctionID)
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// stopIfEmpty asks the lobby to stop unless it has members. Lobbies never
// call back into the hub, so waiting here cannot deadlock.
func (h *Hub) stopIfEmpty(lb *lobby.Lobby) bool {
	reply := make(chan bool, 1)
	if !lb.Post(lobby.Shutdown{IfEmpty: true, Reply: reply}) {
		return true
	}
	select {
	case stopped := <-reply:
		return stopped
	case <-lb.Done():
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Post(lobby.Shutdown{})
	}
	clear(h.lobbies)
	h.cancel()
}

// Ensure returns the auction's lobby, creating it on first use. It returns
// nil once the hub has shut down.
func (h *Hub) Ensure(auctionID string) *lobby.Lobby {
	return h.ask(EnsureLobby{AuctionID: auctionID, Reply: make(chan *lobby.Lobby, 1)})
}

// Get returns nil when no one has joined the auction on this instance.
func (h *Hub) Get(auctionID string) *lobby.Lobby {
	return h.ask(GetLobby{AuctionID: auctionID, Reply: make(chan *lobby.Lobby, 1)})
}

func (h *Hub) ask(msg HubMsg) *lobby.Lobby {
	var reply chan *lobby.Lobby
	switch m := msg.(type) {
	case EnsureLobby:
		reply = m.Reply
	case GetLobby:
		reply = m.Reply
	}
	select {
	case h.inbox <- msg:
	case <-h.ctx.Done():
		return nil
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.ctx.Done():
		return nil
	}
}

// Publish posts msg to the auction's lobby if it exists here.
func (h *Hub) Publish(auctionID string, msg lobby.Msg) {
	if lb := h.Get(auctionID); lb != nil {
		lb.Post(msg)
	}
}

// RemoveIfEmpty drops the auction's lobby if nobody is connected to it.
func (h *Hub) RemoveIfEmpty(auctionID string) {
	select {
	case h.inbox <- RemoveLobby{AuctionID: auctionID}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}
