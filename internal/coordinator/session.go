package coordinator

import (
	"sync"

	"github.com/DoyleJ11/martillo-live/internal/identity"
)

type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Joined
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Joined:
		return "joined"
	default:
		return "disconnected"
	}
}

// Session is one client connection. Frames written to Outbox are sent by
// the transport's writer; Evict asks the transport to drop the connection.
type Session struct {
	ID       string
	Identity identity.Identity
	outbox   chan []byte
	evict    func()

	mu     sync.Mutex
	state  ConnState
	joined map[string]identity.Caller
}

func (s *Session) Outbox() <-chan []byte { return s.outbox }

func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) caller(auctionID string) (identity.Caller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.joined[auctionID]
	return c, ok
}

func (s *Session) addRoom(auctionID string, c identity.Caller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joined[auctionID] = c
	s.state = Joined
}

func (s *Session) dropRoom(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.joined, auctionID)
	if len(s.joined) == 0 && s.state == Joined {
		s.state = Connecting
	}
}

func (s *Session) rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.joined))
	for id := range s.joined {
		out = append(out, id)
	}
	return out
}

// send queues a frame without blocking. A full outbox means the client is
// not keeping up, so it is evicted.
func (s *Session) send(frame []byte) {
	select {
	case s.outbox <- frame:
	default:
		if s.evict != nil {
			s.evict()
		}
	}
}
