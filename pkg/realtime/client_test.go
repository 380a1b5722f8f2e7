package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// eventServer emits count frames and then holds the connection open
// until the client side closes it.
func eventServer(t *testing.T, count int) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for i := 0; i < count; i++ {
			frame := map[string]any{
				"type":     "response.created",
				"response": map[string]any{"id": fmt.Sprintf("resp_%d", i)},
			}
			if err := ws.WriteJSON(frame); err != nil {
				return
			}
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func dialTest(t *testing.T, ts *httptest.Server, buffer int) *Conn {
	t.Helper()

	cfg := Config{
		URL:              "ws" + strings.TrimPrefix(ts.URL, "http"),
		APIKey:           "test-key",
		Model:            "gpt-realtime",
		HandshakeTimeout: time.Second,
		EventBuffer:      buffer,
	}
	conn, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestEventsDelivered(t *testing.T) {
	t.Parallel()

	conn := dialTest(t, eventServer(t, 3), 16)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		select {
		case ev, ok := <-conn.Events():
			if !ok {
				t.Fatal("stream ended early")
			}
			if ev.Type != EventResponseCreated {
				t.Fatalf("unexpected event type: %q", ev.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestCloseReleasesReadLoopWithFullBuffer(t *testing.T) {
	t.Parallel()

	// A buffer of one and nothing consuming: the read loop is parked on
	// the channel send when Close arrives.
	conn := dialTest(t, eventServer(t, 10), 1)
	time.Sleep(50 * time.Millisecond)
	_ = conn.Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-conn.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel never closed after Close")
		}
	}
}
