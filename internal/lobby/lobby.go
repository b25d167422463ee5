// Package lobby runs one actor per auction room. The actor owns the room's
// membership and fans frames out to every connected member.
package lobby

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/types"
	wire "github.com/DoyleJ11/martillo-live/pkg/types"
)

type Msg interface{ isLobbyMsg() }

// Join registers a connection. Welcome, when set, builds the first frame the
// member receives and is given the presence count including the new member.
type Join struct {
	ConnID  string
	UserID  string
	Outbox  chan<- []byte
	Evict   func()
	Welcome func(presence int) []byte
	Reply   chan int
}

func (Join) isLobbyMsg() {}

type Leave struct{ ConnID string }

func (Leave) isLobbyMsg() {}

// Broadcast sends Frame to every member.
type Broadcast struct{ Frame []byte }

func (Broadcast) isLobbyMsg() {}

// ToUser sends Frame to every connection of one user.
type ToUser struct {
	UserID string
	Frame  []byte
}

func (ToUser) isLobbyMsg() {}

// ToConn sends Frame to a single connection.
type ToConn struct {
	ConnID string
	Frame  []byte
}

func (ToConn) isLobbyMsg() {}

// Shutdown stops the room. With IfEmpty set it only stops when nobody is
// connected; Reply, when set, reports whether it stopped.
type Shutdown struct {
	IfEmpty bool
	Reply   chan bool
}

func (Shutdown) isLobbyMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isLobbyMsg() {}

type View struct {
	AuctionID string
	Members   int
	Users     int
}

type member struct {
	userID string
	outbox chan<- []byte
	evict  func()
}

type Lobby struct {
	auctionID string
	inbox     chan Msg
	members   map[string]member
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewLobby(parent context.Context, auctionID string, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		auctionID: auctionID,
		inbox:     make(chan Msg, 256),
		members:   make(map[string]member),
		log:       log.Named("lobby").With(zap.String("auction", auctionID)),
		ctx:       ctx,
		cancel:    cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.members[msg.ConnID] = member{userID: msg.UserID, outbox: msg.Outbox, evict: msg.Evict}
				if msg.Welcome != nil {
					l.send(msg.ConnID, msg.Welcome(len(l.members)))
				}
				if msg.Reply != nil {
					msg.Reply <- len(l.members)
				}
				l.presence()

			case Leave:
				if _, ok := l.members[msg.ConnID]; ok {
					delete(l.members, msg.ConnID)
					l.presence()
				}

			case Broadcast:
				if l.broadcast(msg.Frame) > 0 {
					l.presence()
				}

			case ToUser:
				evicted := 0
				for id, m := range l.members {
					if m.userID == msg.UserID && !l.send(id, msg.Frame) {
						evicted++
					}
				}
				if evicted > 0 {
					l.presence()
				}

			case ToConn:
				if _, ok := l.members[msg.ConnID]; ok && !l.send(msg.ConnID, msg.Frame) {
					l.presence()
				}

			case GetView:
				users := map[string]struct{}{}
				for _, m := range l.members {
					users[m.userID] = struct{}{}
				}
				msg.Reply <- View{AuctionID: l.auctionID, Members: len(l.members), Users: len(users)}

			case Shutdown:
				if msg.IfEmpty && len(l.members) > 0 {
					if msg.Reply != nil {
						msg.Reply <- false
					}
					break
				}
				if msg.Reply != nil {
					msg.Reply <- true
				}
				l.shutdown()
				return
			}
		}
	}
}

// Outboxes belong to the connection, which may be in several rooms, so the
// room never closes them.
func (l *Lobby) shutdown() {
	clear(l.members)
	l.cancel()
}

// send delivers without blocking. A member whose outbox is full is dropped
// and evicted; send reports false in that case.
func (l *Lobby) send(connID string, frame []byte) bool {
	m, ok := l.members[connID]
	if !ok {
		return false
	}
	select {
	case m.outbox <- frame:
		return true
	default:
		delete(l.members, connID)
		l.log.Warn("evicting slow member", zap.String("conn", connID), zap.String("user", m.userID))
		if m.evict != nil {
			m.evict()
		}
		return false
	}
}

func (l *Lobby) broadcast(frame []byte) int {
	evicted := 0
	for id := range l.members {
		if !l.send(id, frame) {
			evicted++
		}
	}
	return evicted
}

// presence broadcasts the member count until it stops changing.
func (l *Lobby) presence() {
	for {
		frame, err := types.Encode(wire.EventPresenceCount, l.auctionID, wire.PresenceCount{Count: len(l.members)})
		if err != nil {
			l.log.Error("encode presence", zap.Error(err))
			return
		}
		if l.broadcast(frame) == 0 {
			return
		}
	}
}

func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) AuctionID() string { return l.auctionID }

// Post delivers msg unless the room has shut down.
func (l *Lobby) Post(msg Msg) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.inbox <- msg:
		return true
	case <-l.ctx.Done():
		return false
	}
}

func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }
