package lobby

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	wire "github.com/DoyleJ11/martillo-live/pkg/types"
)

type frame struct {
	Type      string          `json:"type"`
	AuctionID string          `json:"auctionId"`
	Payload   json.RawMessage `json:"payload"`
}

// helper: receive one frame with a timeout so tests never hang
func recvFrame(t *testing.T, ch <-chan []byte, within time.Duration) frame {
	t.Helper()
	select {
	case b := <-ch:
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			t.Fatalf("bad frame %q: %v", b, err)
		}
		return f
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return frame{} // unreachable
	}
}

func recvNoFrame(t *testing.T, ch <-chan []byte, within time.Duration) {
	t.Helper()
	select {
	case b := <-ch:
		t.Fatalf("expected no frame within %v, got %s", within, b)
	case <-time.After(within):
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func presenceOf(t *testing.T, f frame) int {
	t.Helper()
	if f.Type != wire.EventPresenceCount {
		t.Fatalf("want presence-count, got %s", f.Type)
	}
	var p wire.PresenceCount
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	return p.Count
}

func TestLobby_JoinSendsWelcomeThenPresence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLobby(ctx, "a1", zap.NewNop())

	out1 := make(chan []byte, 8)
	reply := make(chan int, 1)
	l.Inbox() <- Join{
		ConnID: "c1", UserID: "u1", Outbox: out1, Reply: reply,
		Welcome: func(n int) []byte { return []byte(`{"type":"joined","auctionId":"a1","payload":{}}`) },
	}
	if n := <-reply; n != 1 {
		t.Fatalf("presence after first join: want 1, got %d", n)
	}
	if f := recvFrame(t, out1, 100*time.Millisecond); f.Type != wire.EventJoined {
		t.Fatalf("first frame must be joined, got %s", f.Type)
	}
	if n := presenceOf(t, recvFrame(t, out1, 100*time.Millisecond)); n != 1 {
		t.Fatalf("want presence 1, got %d", n)
	}

	out2 := make(chan []byte, 8)
	l.Inbox() <- Join{ConnID: "c2", UserID: "u2", Outbox: out2}
	if n := presenceOf(t, recvFrame(t, out1, 100*time.Millisecond)); n != 2 {
		t.Fatalf("existing member: want presence 2, got %d", n)
	}
	if n := presenceOf(t, recvFrame(t, out2, 100*time.Millisecond)); n != 2 {
		t.Fatalf("new member: want presence 2, got %d", n)
	}

	l.Inbox() <- Leave{ConnID: "c2"}
	if n := presenceOf(t, recvFrame(t, out1, 100*time.Millisecond)); n != 1 {
		t.Fatalf("after leave: want presence 1, got %d", n)
	}
	recvNoFrame(t, out2, 50*time.Millisecond)
}

func TestLobby_BroadcastAndToUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLobby(ctx, "a1", zap.NewNop())

	outA := make(chan []byte, 8)
	outB := make(chan []byte, 8)
	outA2 := make(chan []byte, 8)
	l.Inbox() <- Join{ConnID: "a", UserID: "winner", Outbox: outA}
	l.Inbox() <- Join{ConnID: "b", UserID: "other", Outbox: outB}
	l.Inbox() <- Join{ConnID: "a2", UserID: "winner", Outbox: outA2}

	reply := make(chan View, 1)
	l.Inbox() <- GetView{Reply: reply}
	v := recvView(t, reply, 100*time.Millisecond)
	if v.Members != 3 || v.Users != 2 {
		t.Fatalf("view: %+v", v)
	}
	for _, ch := range []chan []byte{outA, outB, outA2} {
		for len(ch) > 0 {
			<-ch
		}
	}

	l.Inbox() <- Broadcast{Frame: []byte(`{"type":"bid:update"}`)}
	for _, ch := range []chan []byte{outA, outB, outA2} {
		if f := recvFrame(t, ch, 100*time.Millisecond); f.Type != wire.EventBidUpdate {
			t.Fatalf("want bid:update, got %s", f.Type)
		}
	}

	l.Inbox() <- ToUser{UserID: "winner", Frame: []byte(`{"type":"lot:won"}`)}
	recvFrame(t, outA, 100*time.Millisecond)
	recvFrame(t, outA2, 100*time.Millisecond)
	recvNoFrame(t, outB, 50*time.Millisecond)
}

func TestLobby_SlowMemberIsEvictedWithoutBlockingOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLobby(ctx, "a1", zap.NewNop())

	var evicted atomic.Bool
	slow := make(chan []byte) // unbuffered and never read
	fast := make(chan []byte, 16)

	l.Inbox() <- Join{ConnID: "fast", UserID: "u1", Outbox: fast}
	l.Inbox() <- Join{ConnID: "slow", UserID: "u2", Outbox: slow, Evict: func() { evicted.Store(true) }}

	// fast sees its own join first; the slow member is dropped on the
	// presence broadcast for its join.
	if n := presenceOf(t, recvFrame(t, fast, 100*time.Millisecond)); n != 1 {
		t.Fatalf("want 1, got %d", n)
	}

	deadline := time.After(200 * time.Millisecond)
	for !evicted.Load() {
		select {
		case <-deadline:
			t.Fatalf("slow member was not evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	reply := make(chan View, 1)
	l.Inbox() <- GetView{Reply: reply}
	if v := recvView(t, reply, 100*time.Millisecond); v.Members != 1 {
		t.Fatalf("want 1 member after eviction, got %d", v.Members)
	}
}

func TestLobby_ShutdownStopsPosting(t *testing.T) {
	l := NewLobby(context.Background(), "a1", zap.NewNop())
	l.Inbox() <- Shutdown{}

	select {
	case <-l.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("lobby did not stop")
	}
	if l.Post(Leave{ConnID: "x"}) {
		t.Fatalf("post accepted after shutdown")
	}
}
