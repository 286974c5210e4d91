package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/dividend-exchange/internal/model"
	"github.com/atmx/dividend-exchange/internal/num"
)

type recorder struct {
	got []model.Event
}

func (r *recorder) Publish(_ context.Context, events []model.Event) {
	r.got = append(r.got, events...)
}

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := Fanout{a, nil, b, Discard{}}

	f.Publish(context.Background(), []model.Event{{ID: "1"}, {ID: "2"}})

	if len(a.got) != 2 || len(b.got) != 2 {
		t.Fatalf("expected both publishers to get 2 events, got %d and %d", len(a.got), len(b.got))
	}
	if a.got[1].ID != "2" {
		t.Errorf("expected order preserved, got %s", a.got[1].ID)
	}
}

func TestSubject(t *testing.T) {
	if got := Subject(model.EventPurchase); got != "exchange.events.purchase" {
		t.Errorf("expected exchange.events.purchase, got %s", got)
	}
}

func TestWSHub_PublishDropsWhenFull(t *testing.T) {
	hub := NewWSHub() // not running: nothing drains the buffer
	events := make([]model.Event, 300)
	hub.Publish(context.Background(), events)
	if n := len(hub.broadcast); n != cap(hub.broadcast) {
		t.Errorf("expected buffer filled to %d, got %d", cap(hub.broadcast), n)
	}
}

func TestWSHub_DeliversEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWSHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	event := model.Event{ID: "e1", Kind: model.EventSale, Account: "alice", Tokens: num.NewUint(5)}

	// Wait for the hub to register the connection before broadcasting.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(ctx, []model.Event{event})
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if msg.Type != "sale" {
		t.Fatalf("expected a sale message, got %+v", msg)
	}
	if msg.Event.Tokens.String() != "5" {
		t.Errorf("expected tokens=5, got %s", msg.Event.Tokens)
	}
}

func TestWSHub_StoppedHubClosesNewClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewWSHub()
	go hub.Run(ctx)
	cancel()

	select {
	case <-hub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the stopped hub to close the connection")
	}
	if ne, ok := err.(interface{ Timeout() bool }); ok && ne.Timeout() {
		t.Fatalf("connection left open: %v", err)
	}
}
