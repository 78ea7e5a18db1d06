package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"questline/core"
	"questline/realtime"
	"questline/router"
)

type fakeTarget struct {
	applied chan core.Action
}

func (f *fakeTarget) Apply(_ context.Context, a core.Action) (core.Outcome, error) {
	f.applied <- a
	return core.Outcome{}, nil
}

type staticRouters map[core.UserID]*router.Router

func (s staticRouters) Router(user core.UserID) (*router.Router, bool) {
	r, ok := s[user]
	return r, ok
}

func dial(t *testing.T, url string) *gorillaws.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") // convert http->ws
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	return conn
}

func waitForSubscribers(t *testing.T, hub *realtime.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Subscribers() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandlerStreamsUserEvents(t *testing.T) {
	hub := realtime.NewHub()
	server := httptest.NewServer(Handler(hub, nil, nil))
	defer server.Close()

	conn := dial(t, server.URL+"?user=Alice")
	defer conn.Close()
	waitForSubscribers(t, hub, 1)

	hub.Broadcast(context.Background(), core.NewXPGained("bob", "quiz", 1, 1))
	hub.Broadcast(context.Background(), core.NewXPGained("alice", "quiz", 5, 5))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}

	var received core.Event
	if err := json.Unmarshal(msg, &received); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if received.UserID != "alice" || received.Delta != 5 {
		t.Fatalf("unexpected event: %+v", received)
	}
}

func TestHandlerDeliversInboundFrames(t *testing.T) {
	hub := realtime.NewHub()
	target := &fakeTarget{applied: make(chan core.Action, 1)}
	rt := router.New(target)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rt.Run(ctx) }()

	server := httptest.NewServer(Handler(hub, staticRouters{"alice": rt}, nil))
	defer server.Close()

	conn := dial(t, server.URL+"?user=alice")
	defer conn.Close()

	if err := conn.WriteJSON(Frame{Event: router.EventXPGained, Payload: json.RawMessage(`{"amount":25,"source":"quiz"}`)}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	select {
	case a := <-target.applied:
		if a != (core.XPGained{Amount: 25, Source: "quiz"}) {
			t.Fatalf("unexpected action: %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestHandlerRejectsMalformedFrames(t *testing.T) {
	hub := realtime.NewHub()
	rt := router.New(&fakeTarget{applied: make(chan core.Action, 1)})
	defer rt.Close()
	server := httptest.NewServer(Handler(hub, staticRouters{"alice": rt}, nil))
	defer server.Close()

	conn := dial(t, server.URL+"?user=alice")
	defer conn.Close()

	if err := conn.WriteJSON(Frame{Event: router.EventAchievementUnlocked, Payload: json.RawMessage(`{"title":"no id"}`)}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rej map[string]string
	if err := conn.ReadJSON(&rej); err != nil {
		t.Fatalf("read reject: %v", err)
	}
	if rej["type"] != "error" || rej["event"] != router.EventAchievementUnlocked {
		t.Fatalf("unexpected reject frame: %+v", rej)
	}
	if rt.Stats().Dropped != 1 {
		t.Fatalf("expected 1 dropped event, got %d", rt.Stats().Dropped)
	}
}
