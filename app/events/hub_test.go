package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"tasklog/app/services"
)

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) Event {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	return ev
}

func TestHub_BroadcastsInvalidation(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	if ev := readEvent(t, ctx, conn); ev.Type != TypeHello {
		t.Fatalf("first event type = %s, want %s", ev.Type, TypeHello)
	}
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}

	hub.Invalidate(services.WithOrigin(ctx, "client-1"), services.IndexRoute)

	ev := readEvent(t, ctx, conn)
	if ev.Type != TypeInvalidate {
		t.Errorf("Type = %s, want %s", ev.Type, TypeInvalidate)
	}
	if ev.Route != services.IndexRoute {
		t.Errorf("Route = %q, want %q", ev.Route, services.IndexRoute)
	}
	if ev.Origin != "client-1" {
		t.Errorf("Origin = %q, want client-1", ev.Origin)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestHub_MultipleClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, ctx, srv)
		readEvent(t, ctx, conns[i])
	}
	if got := hub.ClientCount(); got != len(conns) {
		t.Fatalf("ClientCount() = %d, want %d", got, len(conns))
	}

	hub.Invalidate(ctx, services.IndexRoute)

	for i, conn := range conns {
		if ev := readEvent(t, ctx, conn); ev.Type != TypeInvalidate {
			t.Errorf("client %d got %s, want %s", i, ev.Type, TypeInvalidate)
		}
	}
}

func TestHub_ListenersRunBeforeInvalidateReturns(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(hub.Close)

	var got []Event
	hub.OnInvalidate(func(ev Event) { got = append(got, ev) })
	hub.OnInvalidate(func(ev Event) { got = append(got, ev) })

	hub.Invalidate(services.WithOrigin(context.Background(), "c"), "/")

	if len(got) != 2 {
		t.Fatalf("listener calls = %d, want 2", len(got))
	}
	for _, ev := range got {
		if ev.Route != "/" || ev.Origin != "c" {
			t.Errorf("listener got %+v", ev)
		}
	}
}

func TestHub_BroadcastAfterClose(t *testing.T) {
	hub := NewHub(nil)
	hub.Close()

	// Must not block or panic.
	hub.Broadcast(Event{Type: TypeInvalidate})
	hub.Invalidate(context.Background(), "/")
}
