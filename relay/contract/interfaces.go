package contract

import (
	"context"

	realtimex "github.com/mediminds/voicerelay/pkg/realtime"
)

// ClientConn is the outbound message sink for one connected client.
// *websocket.Conn satisfies it directly.
type ClientConn interface {
	WriteJSON(v any) error
	Close() error
}

// Upstream is the command surface of one realtime assistant connection.
// *realtime.Conn satisfies it; tests substitute recorders.
type Upstream interface {
	UpdateSession(ctx context.Context, session map[string]any) error
	AppendAudio(ctx context.Context, audio string) error
	CommitAudio(ctx context.Context) error
	ClearAudio(ctx context.Context) error
	CancelResponse(ctx context.Context) error
	CreateResponse(ctx context.Context, instructions string) error
	SubmitToolOutputs(ctx context.Context, outputs []realtimex.ToolOutput) error
	CreateFunctionCallOutput(ctx context.Context, callID, output string) error
	Close() error
}
