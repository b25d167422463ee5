package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/martillo-live/internal/lobby"
)

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, zap.NewNop())
	defer h.Shutdown()

	if lb := h.Get("A1"); lb != nil {
		t.Fatalf("expected no lobby before first ensure")
	}

	lb1 := h.Ensure("A1")
	lb2 := h.Get("A1")
	lb3 := h.Ensure("A1")

	if lb1 == nil || lb1 != lb2 || lb1 != lb3 {
		t.Fatalf("expected same lobby pointer")
	}
	if h.Ensure("A2") == lb1 {
		t.Fatalf("auctions must not share a lobby")
	}
}

func TestHub_RemoveStopsEmptyLobby(t *testing.T) {
	h := NewHub(context.Background(), zap.NewNop())
	defer h.Shutdown()

	lb := h.Ensure("A1")
	h.RemoveIfEmpty("A1")

	select {
	case <-lb.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("lobby still running after remove")
	}
	if h.Get("A1") != nil {
		t.Fatalf("lobby still registered")
	}
}

func TestHub_PublishReachesMembers(t *testing.T) {
	h := NewHub(context.Background(), zap.NewNop())
	defer h.Shutdown()

	out := make(chan []byte, 8)
	h.Ensure("A1").Post(lobby.Join{ConnID: "c1", UserID: "u1", Outbox: out})
	<-out // presence

	h.Publish("A1", lobby.Broadcast{Frame: []byte("hello")})
	select {
	case b := <-out:
		if string(b) != "hello" {
			t.Fatalf("got %q", b)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("broadcast not delivered")
	}

	h.Publish("nobody-here", lobby.Broadcast{Frame: []byte("x")})
}

func TestHub_ShutdownReturnsNil(t *testing.T) {
	h := NewHub(context.Background(), zap.NewNop())
	lb := h.Ensure("A1")
	h.Shutdown()

	select {
	case <-lb.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("lobby not shut down with hub")
	}
	if h.Ensure("A1") != nil {
		t.Fatalf("expected nil after shutdown")
	}
}

func TestHub_RemoveIfEmptyKeepsOccupiedLobby(t *testing.T) {
	h := NewHub(context.Background(), zap.NewNop())
	defer h.Shutdown()

	out := make(chan []byte, 8)
	lb := h.Ensure("A1")
	lb.Post(lobby.Join{ConnID: "c1", UserID: "u1", Outbox: out})

	h.RemoveIfEmpty("A1")
	if h.Get("A1") != lb {
		t.Fatalf("occupied lobby was removed")
	}

	lb.Post(lobby.Leave{ConnID: "c1"})
	h.RemoveIfEmpty("A1")
	select {
	case <-lb.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("empty lobby still running")
	}
	if h.Get("A1") != nil {
		t.Fatalf("empty lobby still registered")
	}
}
