// Package bridge multiplexes each client connection against its upstream
// assistant connection: session table, upstream event routing, and
// client command dispatch.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	realtimex "github.com/mediminds/voicerelay/pkg/realtime"
	contractx "github.com/mediminds/voicerelay/relay/contract"
	sessionx "github.com/mediminds/voicerelay/relay/session"
	toolx "github.com/mediminds/voicerelay/relay/tool"
)

type Config struct {
	Instructions       string        `envconfig:"INSTRUCTIONS" split_words:"true" default:"You are a warm, professional voice assistant. Use the registered tools for any calculation the user asks for."`
	Voice              string        `envconfig:"VOICE" split_words:"true" default:"sage"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	MaxOutputTokens    int           `envconfig:"MAX_OUTPUT_TOKENS" split_words:"true" default:"4096"`
	InputAudioFormat   string        `envconfig:"INPUT_AUDIO_FORMAT" split_words:"true" default:"pcm16"`
	TranscriptionModel string        `envconfig:"TRANSCRIPTION_MODEL" split_words:"true" default:"whisper-1"`
	CancelGrace        time.Duration `envconfig:"CANCEL_GRACE" split_words:"true" default:"50ms"`
}

// UpstreamDialer establishes one upstream connection and hands back its
// command surface plus its event stream.
type UpstreamDialer func(ctx context.Context) (contractx.Upstream, <-chan realtimex.ServerEvent, error)

// RealtimeDialer adapts a realtime client config into an UpstreamDialer.
func RealtimeDialer(cfg realtimex.Config) UpstreamDialer {
	return func(ctx context.Context) (contractx.Upstream, <-chan realtimex.ServerEvent, error) {
		conn, err := realtimex.Dial(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Events(), nil
	}
}

type active struct {
	sess   *sessionx.ClientSession
	cancel context.CancelFunc
}

// Manager owns the client-id-keyed session table. Each connect spawns an
// independent upstream task so inbound client commands are processed
// concurrently with upstream event consumption.
type Manager struct {
	cfg   Config
	tools *toolx.Registry
	dial  UpstreamDialer

	mu      sync.Mutex
	clients map[string]*active
}

func NewManager(cfg Config, tools *toolx.Registry, dial UpstreamDialer) *Manager {
	return &Manager{
		cfg:     cfg,
		tools:   tools,
		dial:    dial,
		clients: make(map[string]*active),
	}
}

// Connect registers the client and starts its upstream task. A second
// connect under the same id replaces the first.
func (m *Manager) Connect(ctx context.Context, clientID string, client contractx.ClientConn) *sessionx.ClientSession {
	m.Disconnect(clientID)

	sess := sessionx.New(clientID, client)
	runCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.clients[clientID] = &active{sess: sess, cancel: cancel}
	m.mu.Unlock()

	go m.runUpstream(runCtx, sess)
	return sess
}

// Disconnect tears down all state for the client in one removal. Safe to
// call for ids that were never connected or were already removed.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	entry, ok := m.clients[clientID]
	if ok {
		delete(m.clients, clientID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	entry.cancel()
	if up, ok := entry.sess.Upstream(); ok {
		_ = up.Close()
	}
	_ = entry.sess.CloseClient()
	log.Debug().Str("client_id", clientID).Msg("client disconnected")
}

// Send forwards a message to the client transport; a no-op when the
// client is no longer connected.
func (m *Manager) Send(clientID string, msg any) error {
	sess, ok := m.session(clientID)
	if !ok {
		return nil
	}
	return sess.WriteJSON(msg)
}

func (m *Manager) session(clientID string) (*sessionx.ClientSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.clients[clientID]
	if !ok {
		return nil, false
	}
	return entry.sess, true
}

// Connected reports whether any state remains for the client id.
func (m *Manager) Connected(clientID string) bool {
	_, ok := m.session(clientID)
	return ok
}

func (m *Manager) runUpstream(ctx context.Context, sess *sessionx.ClientSession) {
	up, events, err := m.dial(ctx)
	if err != nil {
		m.failUpstream(sess, fmt.Errorf("%w: %v", contractx.ErrUpstreamHandshake, err))
		return
	}
	sess.BindUpstream(up)

	if err := up.UpdateSession(ctx, m.sessionPayload()); err != nil {
		m.failUpstream(sess, fmt.Errorf("%w: session update: %v", contractx.ErrUpstreamHandshake, err))
		return
	}

	if err := sess.WriteJSON(map[string]any{
		"type":   contractx.MsgConnectionReady,
		"status": "connected",
	}); err != nil {
		m.Disconnect(sess.ID())
		return
	}

	r := &router{sess: sess, tools: m.tools, instructions: m.cfg.Instructions}
	r.run(ctx, events)

	// The event stream only ends on upstream closure or cancellation;
	// for closure the client still holds a live socket, so tear it down.
	if ctx.Err() == nil {
		m.Disconnect(sess.ID())
	}
}

func (m *Manager) failUpstream(sess *sessionx.ClientSession, err error) {
	log.Error().Err(err).Str("client_id", sess.ID()).Msg("upstream connection failed")
	_ = sess.WriteJSON(map[string]any{
		"type":  contractx.MsgConnectionError,
		"error": "upstream connection failed",
	})
	m.Disconnect(sess.ID())
}

func (m *Manager) sessionPayload() map[string]any {
	tools, err := m.tools.Definitions()
	if err != nil {
		// Definitions only fails on unencodable schemas, which Define
		// would have rejected; keep the session usable without tools.
		log.Error().Err(err).Msg("rendering tool definitions failed")
		tools = nil
	}
	return map[string]any{
		"instructions":               m.cfg.Instructions,
		"voice":                      m.cfg.Voice,
		"temperature":                m.cfg.Temperature,
		"max_response_output_tokens": m.cfg.MaxOutputTokens,
		"tools":                      tools,
		"tool_choice":                "auto",
		"turn_detection":             map[string]any{"type": "server_vad"},
		"input_audio_transcription":  map[string]any{"model": m.cfg.TranscriptionModel},
		"input_audio_format":         m.cfg.InputAudioFormat,
	}
}
