package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	realtimex "github.com/mediminds/voicerelay/pkg/realtime"
	bridgex "github.com/mediminds/voicerelay/relay/bridge"
	contractx "github.com/mediminds/voicerelay/relay/contract"
	toolx "github.com/mediminds/voicerelay/relay/tool"
)

type stubUpstream struct{}

func (stubUpstream) UpdateSession(context.Context, map[string]any) error { return nil }
func (stubUpstream) AppendAudio(context.Context, string) error           { return nil }
func (stubUpstream) CommitAudio(context.Context) error                   { return nil }
func (stubUpstream) ClearAudio(context.Context) error                    { return nil }
func (stubUpstream) CancelResponse(context.Context) error                { return nil }
func (stubUpstream) CreateResponse(context.Context, string) error        { return nil }
func (stubUpstream) SubmitToolOutputs(context.Context, []realtimex.ToolOutput) error {
	return nil
}
func (stubUpstream) CreateFunctionCallOutput(context.Context, string, string) error { return nil }
func (stubUpstream) Close() error                                                   { return nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dial := func(context.Context) (contractx.Upstream, <-chan realtimex.ServerEvent, error) {
		events := make(chan realtimex.ServerEvent)
		return stubUpstream{}, events, nil
	}
	registry := toolx.NewRegistry()
	if err := toolx.RegisterMultiply(registry); err != nil {
		t.Fatalf("register multiply: %v", err)
	}
	manager := bridgex.NewManager(bridgex.Config{CancelGrace: time.Millisecond}, registry, dial)

	cfg := Config{Listen: ":0", AllowOrigins: "http://localhost:5173"}
	ts := httptest.NewServer(New(cfg, manager).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func readMessage(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	if err := ws.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	return msg
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	for _, path := range []string{"/", "/health"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d, body %s", path, resp.StatusCode, body)
		}
	}
}

func TestWebSocketCommandRoundTrip(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/client-1"

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	ready := readMessage(t, ws)
	if ready["type"] != contractx.MsgConnectionReady {
		t.Fatalf("unexpected first message: %v", ready)
	}

	if err := ws.WriteJSON(map[string]any{"type": contractx.CmdStartRecording}); err != nil {
		t.Fatalf("write start_recording: %v", err)
	}
	started := readMessage(t, ws)
	if started["type"] != contractx.MsgRecordingStarted {
		t.Fatalf("unexpected message: %v", started)
	}

	if err := ws.WriteJSON(map[string]any{"type": contractx.CmdStopRecording}); err != nil {
		t.Fatalf("write stop_recording: %v", err)
	}
	stopped := readMessage(t, ws)
	if stopped["type"] != contractx.MsgRecordingStopped {
		t.Fatalf("unexpected message: %v", stopped)
	}
}

func TestWebSocketRejectsDisallowedOrigin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/client-1"

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected handshake rejection")
	}
	if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketAllowsConfiguredOrigin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/client-2"

	header := http.Header{}
	header.Set("Origin", "http://localhost:5173")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial with allowed origin: %v", err)
	}
	defer ws.Close()

	ready := readMessage(t, ws)
	if ready["type"] != contractx.MsgConnectionReady {
		t.Fatalf("unexpected first message: %v", ready)
	}
}
