// Package coordinator admits connections into auction rooms and routes
// their inbound events to the bid pipeline or the orchestrator.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/bidding"
	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/hub"
	"github.com/DoyleJ11/martillo-live/internal/identity"
	"github.com/DoyleJ11/martillo-live/internal/lobby"
	"github.com/DoyleJ11/martillo-live/internal/orchestrator"
	"github.com/DoyleJ11/martillo-live/internal/types"
	wire "github.com/DoyleJ11/martillo-live/pkg/types"
)

var errMalformed = errors.New("malformed payload")

// OutboxSize is the per-connection frame buffer. A connection that falls
// this far behind is evicted.
const OutboxSize = 64

type Coordinator struct {
	hub     *hub.Hub
	rooms   *Rooms
	bids    *bidding.Pipeline
	orch    *orchestrator.Orchestrator
	bidders identity.BidderFinder
	log     *zap.Logger
}

func New(h *hub.Hub, rooms *Rooms, bids *bidding.Pipeline, orch *orchestrator.Orchestrator, bidders identity.BidderFinder, log *zap.Logger) *Coordinator {
	return &Coordinator{
		hub:     h,
		rooms:   rooms,
		bids:    bids,
		orch:    orch,
		bidders: bidders,
		log:     log.Named("coordinator"),
	}
}

// NewSession starts a connection in the Connecting state. evict is called
// at most once per slow-consumer eviction and should close the transport.
func NewSession(id string, ident identity.Identity, evict func()) *Session {
	return &Session{
		ID:       id,
		Identity: ident,
		outbox:   make(chan []byte, OutboxSize),
		evict:    evict,
		state:    Connecting,
		joined:   make(map[string]identity.Caller),
	}
}

// Receive decodes a raw frame and dispatches it.
func (c *Coordinator) Receive(ctx context.Context, s *Session, data []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.private(s, "", wire.EventError, wire.Error{Message: "bad json"})
		return
	}
	c.Dispatch(ctx, s, msg)
}

// Dispatch handles one inbound frame. It blocks until the event has been
// applied, so a connection's events are processed in the order received.
func (c *Coordinator) Dispatch(ctx context.Context, s *Session, msg types.ClientMessage) {
	if msg.AuctionID == "" {
		c.private(s, "", wire.EventError, wire.Error{Message: "auctionId required"})
		return
	}
	switch {
	case msg.Type == wire.EventJoin:
		c.join(ctx, s, msg.AuctionID)
	case msg.Type == wire.EventLeave:
		c.leave(s, msg.AuctionID)
	case msg.Type == wire.EventBidPlace:
		c.placeBid(ctx, s, msg)
	case wire.OperatorEvents[msg.Type]:
		c.command(ctx, s, msg)
	default:
		c.private(s, msg.AuctionID, wire.EventError, wire.Error{Message: "unknown event " + msg.Type})
	}
}

// Disconnect leaves every room the session joined.
func (c *Coordinator) Disconnect(s *Session) {
	for _, id := range s.rooms() {
		c.leaveRoom(s, id)
	}
	s.setState(Disconnected)
}

func (c *Coordinator) join(ctx context.Context, s *Session, auctionID string) {
	caller, err := identity.Resolve(ctx, s.Identity, auctionID, c.bidders)
	if err != nil {
		c.log.Error("resolve caller", zap.String("auction", auctionID), zap.Error(err))
		c.rejectCommand(s, auctionID, wire.EventJoin, engine.ErrUnavailable)
		return
	}
	if caller.Kind == identity.Unauthenticated {
		reason := engine.ErrBidderNotApproved
		if !s.Identity.Authenticated() {
			reason = engine.ErrUnauthorized
		}
		c.rejectCommand(s, auctionID, wire.EventJoin, reason)
		return
	}

	st, err := c.orch.State(ctx, auctionID)
	if err != nil {
		c.rejectCommand(s, auctionID, wire.EventJoin, err)
		return
	}
	reply := make(chan int, 1)
	join := lobby.Join{
		ConnID:  s.ID,
		UserID:  s.Identity.UserID,
		Outbox:  s.outbox,
		Evict:   s.evict,
		Welcome: func(n int) []byte { return c.joinedFrame(st, caller, n) },
		Reply:   reply,
	}
	// The room may be dropped as its last member leaves; one retry lands
	// in the replacement.
	var lb *lobby.Lobby
	for attempt := 0; attempt < 2 && lb == nil; attempt++ {
		lb = c.hub.Ensure(auctionID)
		if lb != nil && !lb.Post(join) {
			lb = nil
		}
	}
	if lb == nil {
		c.rejectCommand(s, auctionID, wire.EventJoin, engine.ErrUnavailable)
		return
	}
	var presence int
	select {
	case presence = <-reply:
	case <-lb.Done():
		return
	case <-ctx.Done():
		return
	}
	s.addRoom(auctionID, caller)

	// An event may have been broadcast between the snapshot read and the
	// registration; resend the snapshot if anything moved.
	latest, err := c.orch.State(ctx, auctionID)
	if err != nil || sameState(st, latest) {
		return
	}
	lb.Post(lobby.ToConn{ConnID: s.ID, Frame: c.joinedFrame(latest, caller, presence)})
}

func (c *Coordinator) leave(s *Session, auctionID string) {
	if _, ok := s.caller(auctionID); !ok {
		return
	}
	c.leaveRoom(s, auctionID)
}

// leaveRoom removes the session from the room and drops the room once it
// is empty.
func (c *Coordinator) leaveRoom(s *Session, auctionID string) {
	s.dropRoom(auctionID)
	lb := c.hub.Get(auctionID)
	if lb == nil {
		return
	}
	if lb.Post(lobby.Leave{ConnID: s.ID}) {
		c.hub.RemoveIfEmpty(auctionID)
	}
}

// Presence is the number of connections in the auction's room on this
// instance.
func (c *Coordinator) Presence(auctionID string) int {
	lb := c.hub.Get(auctionID)
	if lb == nil {
		return 0
	}
	reply := make(chan lobby.View, 1)
	if !lb.Post(lobby.GetView{Reply: reply}) {
		return 0
	}
	select {
	case v := <-reply:
		return v.Members
	case <-lb.Done():
		return 0
	}
}

func (c *Coordinator) joinedFrame(st orchestrator.State, caller identity.Caller, presence int) []byte {
	j := wire.Joined{
		AuctionID:     st.AuctionID,
		RunState:      string(st.RunState),
		PresenceCount: presence,
		Role:          caller.Kind.String(),
	}
	if st.ActiveLot != nil {
		v := types.LotView(*st.ActiveLot)
		j.ActiveLotID = v.ID
		j.Lot = &v
	}
	if caller.Kind == identity.ApprovedBidder {
		paddle := caller.Bidder.PaddleNumber
		j.PaddleNumber = &paddle
	}
	frame, err := types.Encode(wire.EventJoined, st.AuctionID, j)
	if err != nil {
		c.log.Error("encode joined", zap.Error(err))
		return nil
	}
	return frame
}

func sameState(a, b orchestrator.State) bool {
	if a.RunState != b.RunState {
		return false
	}
	if (a.ActiveLot == nil) != (b.ActiveLot == nil) {
		return false
	}
	if a.ActiveLot == nil {
		return true
	}
	return a.ActiveLot.ID == b.ActiveLot.ID &&
		a.ActiveLot.Status == b.ActiveLot.Status &&
		a.ActiveLot.CurrentPrice == b.ActiveLot.CurrentPrice
}

func (c *Coordinator) placeBid(ctx context.Context, s *Session, msg types.ClientMessage) {
	var p wire.BidPlace
	if err := decode(msg.Payload, &p); err != nil {
		c.private(s, msg.AuctionID, wire.EventError, wire.Error{Message: err.Error()})
		return
	}
	caller, ok := s.caller(msg.AuctionID)
	if !ok {
		c.rejectBid(s, msg.AuctionID, p.LotID, p.Amount, engine.ErrUnauthorized)
		return
	}
	if caller.Kind != identity.ApprovedBidder {
		c.rejectBid(s, msg.AuctionID, p.LotID, p.Amount, engine.ErrBidderNotApproved)
		return
	}
	_, err := c.bids.PlaceBid(ctx, bidding.Request{
		AuctionID: msg.AuctionID,
		LotID:     p.LotID,
		Amount:    p.Amount,
		Source:    engine.SourceOnline,
		UserID:    s.Identity.UserID,
	}, c.bidAccepted)
	if err != nil {
		c.rejectBid(s, msg.AuctionID, p.LotID, p.Amount, err)
	}
}

// bidAccepted runs under the lot lock, so updates for a lot reach the room
// in acceptance order.
func (c *Coordinator) bidAccepted(acc bidding.Accepted) {
	c.rooms.Broadcast(acc.AuctionID, wire.EventBidUpdate, wire.BidUpdate{
		LotID:        acc.Bid.LotID,
		BidID:        acc.Bid.ID,
		NewAmount:    acc.Bid.Amount,
		PaddleNumber: acc.Paddle,
		Source:       string(acc.Bid.Source),
		MinimumNext:  engine.MinimumNextBid(acc.Lot),
		Timestamp:    acc.Bid.CreatedAt,
	})
}

func (c *Coordinator) command(ctx context.Context, s *Session, msg types.ClientMessage) {
	caller, err := identity.Resolve(ctx, s.Identity, msg.AuctionID, c.bidders)
	if err != nil {
		c.log.Error("resolve caller", zap.String("auction", msg.AuctionID), zap.Error(err))
		c.rejectCommand(s, msg.AuctionID, msg.Type, engine.ErrUnavailable)
		return
	}
	if caller.Kind != identity.Operator {
		c.rejectCommand(s, msg.AuctionID, msg.Type, engine.ErrUnauthorized)
		return
	}

	actor := caller.Identity.UserID
	auctionID := msg.AuctionID
	switch msg.Type {
	case wire.EventStart:
		err = c.orch.Start(ctx, actor, auctionID)
	case wire.EventNextLot:
		_, err = c.orch.ActivateNext(ctx, actor, auctionID)
	case wire.EventAdjudicate:
		var p wire.LotCommand
		if err = decode(msg.Payload, &p); err == nil {
			_, err = c.orch.Adjudicate(ctx, actor, auctionID, p.LotID)
		}
	case wire.EventSkipLot:
		var p wire.LotCommand
		if err = decode(msg.Payload, &p); err == nil {
			err = c.orch.Skip(ctx, actor, auctionID, p.LotID)
		}
	case wire.EventPause:
		var p wire.Pause
		if err = decode(msg.Payload, &p); err == nil {
			err = c.orch.Pause(ctx, actor, auctionID, p.Reason)
		}
	case wire.EventResume:
		err = c.orch.Resume(ctx, actor, auctionID)
	case wire.EventEnd:
		err = c.orch.End(ctx, actor, auctionID)
	case wire.EventBidPresencial:
		c.floorBid(ctx, s, actor, msg)
		return
	}
	if errors.Is(err, errMalformed) {
		c.private(s, auctionID, wire.EventError, wire.Error{Message: err.Error()})
		return
	}
	if err != nil {
		c.rejectCommand(s, auctionID, msg.Type, err)
	}
}

// floorBid records a bid the auctioneer keys in for a paddle in the room.
func (c *Coordinator) floorBid(ctx context.Context, s *Session, actor string, msg types.ClientMessage) {
	var p wire.BidPresencial
	if err := decode(msg.Payload, &p); err != nil {
		c.private(s, msg.AuctionID, wire.EventError, wire.Error{Message: err.Error()})
		return
	}
	_, err := c.bids.PlaceBid(ctx, bidding.Request{
		AuctionID: msg.AuctionID,
		LotID:     p.LotID,
		Amount:    p.Amount,
		Source:    engine.SourcePresencial,
		Paddle:    p.PaddleNumber,
		ActorID:   actor,
	}, c.bidAccepted)
	if err != nil {
		c.rejectBid(s, msg.AuctionID, p.LotID, p.Amount, err)
	}
}

func (c *Coordinator) rejectBid(s *Session, auctionID, lotID string, amount int64, err error) {
	reason, _ := engine.ReasonOf(err)
	c.private(s, auctionID, wire.EventBidRejected, wire.BidRejected{
		LotID:   lotID,
		Amount:  amount,
		Reason:  string(reason),
		Message: message(err),
	})
}

func (c *Coordinator) rejectCommand(s *Session, auctionID, event string, err error) {
	reason, _ := engine.ReasonOf(err)
	c.private(s, auctionID, wire.EventCommandRejected, wire.CommandRejected{
		Event:   event,
		Reason:  string(reason),
		Message: message(err),
	})
}

func (c *Coordinator) private(s *Session, auctionID, typ string, payload any) {
	frame, err := types.Encode(typ, auctionID, payload)
	if err != nil {
		c.log.Error("encode private", zap.String("type", typ), zap.Error(err))
		return
	}
	s.send(frame)
}

// message hides infrastructure detail from clients.
func message(err error) string {
	if engine.IsRejection(err) {
		return err.Error()
	}
	return engine.ErrUnavailable.Error()
}

// decode accepts an empty payload as the zero value.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errMalformed
	}
	return nil
}
