// Package realtime speaks the upstream assistant's realtime WebSocket
// protocol: a JSON event stream inbound and typed command frames
// outbound.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL              string        `envconfig:"URL" split_words:"true" default:"wss://api.openai.com/v1/realtime"`
	APIKey           string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model            string        `envconfig:"MODEL" split_words:"true" default:"gpt-realtime"`
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" split_words:"true" default:"10s"`
	EventBuffer      int           `envconfig:"EVENT_BUFFER" split_words:"true" default:"64"`
}

// Conn is one realtime connection. Reads are delivered on Events();
// the channel closes when the upstream closes the stream or Close is
// called. Command methods are safe for concurrent use.
type Conn struct {
	ws     *websocket.Conn
	model  string
	events chan ServerEvent

	done      chan struct{}
	closeOnce sync.Once

	writeMu sync.Mutex
}

func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("realtime: api key is required")
	}

	base := strings.TrimSpace(cfg.URL)
	if base == "" {
		return nil, errors.New("realtime: url is required")
	}
	query := url.Values{}
	query.Set("model", cfg.Model)
	endpoint := base + "?" + query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	ws, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("realtime: dial %s: %w", base, err)
	}

	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 64
	}
	c := &Conn{
		ws:     ws,
		model:  cfg.Model,
		events: make(chan ServerEvent, buffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) Events() <-chan ServerEvent {
	return c.events
}

// Close releases the read loop even when Events() has unconsumed
// backlog, so a consumer may stop reading before closing.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("realtime stream closed")
			}
			return
		}
		ev, err := ParseServerEvent(payload)
		if err != nil {
			log.Warn().Err(err).Msg("dropping undecodable realtime frame")
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) send(payload map[string]any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(payload)
}

// UpdateSession configures the upstream session. The connection's model
// name and session type are stamped onto the payload so callers only
// describe behavior (instructions, voice, tools, turn detection).
func (c *Conn) UpdateSession(ctx context.Context, session map[string]any) error {
	merged := make(map[string]any, len(session)+2)
	for k, v := range session {
		merged[k] = v
	}
	merged["model"] = c.model
	merged["type"] = "realtime"
	return c.send(map[string]any{"type": "session.update", "session": merged})
}

func (c *Conn) AppendAudio(ctx context.Context, audio string) error {
	return c.send(map[string]any{"type": "input_audio_buffer.append", "audio": audio})
}

func (c *Conn) CommitAudio(ctx context.Context) error {
	return c.send(map[string]any{"type": "input_audio_buffer.commit"})
}

func (c *Conn) ClearAudio(ctx context.Context) error {
	return c.send(map[string]any{"type": "input_audio_buffer.clear"})
}

func (c *Conn) CancelResponse(ctx context.Context) error {
	return c.send(map[string]any{"type": "response.cancel"})
}

func (c *Conn) CreateResponse(ctx context.Context, instructions string) error {
	if instructions == "" {
		return c.send(map[string]any{"type": "response.create"})
	}
	return c.send(map[string]any{
		"type":     "response.create",
		"response": map[string]any{"instructions": instructions},
	})
}

// ToolOutput is one tool result submitted back upstream.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}

func (c *Conn) SubmitToolOutputs(ctx context.Context, outputs []ToolOutput) error {
	encoded := make([]map[string]any, 0, len(outputs))
	for _, out := range outputs {
		encoded = append(encoded, map[string]any{
			"tool_call_id": out.ToolCallID,
			"output":       out.Output,
		})
	}
	return c.send(map[string]any{
		"type":         "response.submit_tool_outputs",
		"tool_outputs": encoded,
	})
}

// CreateFunctionCallOutput records a completed function call as a
// conversation item, the submission path used by the
// function_call_arguments.done shape.
func (c *Conn) CreateFunctionCallOutput(ctx context.Context, callID, output string) error {
	return c.send(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}
