package contract

// Server-to-client message kinds.
const (
	MsgConnectionReady  = "connection_ready"
	MsgConnectionError  = "connection_error"
	MsgSessionCreated   = "session_created"
	MsgAudioDelta       = "audio_delta"
	MsgTranscriptDelta  = "transcript_delta"
	MsgRecordingStarted = "recording_started"
	MsgRecordingStopped = "recording_stopped"
	MsgHardStopped      = "hard_stopped"
	MsgRealtimeEvent    = "realtime_event"
)

// Client-to-server command kinds.
const (
	CmdAudioChunk     = "audio_chunk"
	CmdStartRecording = "start_recording"
	CmdStopRecording  = "stop_recording"
	CmdHardStop       = "hard_stop"
)

// ClientCommand is one inbound control frame from the browser client.
// Audio is base64-encoded PCM and only set for audio_chunk.
type ClientCommand struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
}

// ToolResult is the outcome of executing one registered tool. Output is
// the string submitted back upstream; Result keeps the structured value
// for logging and tests. A non-empty Error means the tool itself
// declined the call; transport-level failures are returned as Go errors
// instead.
type ToolResult struct {
	Tool   string `json:"tool"`
	Output string `json:"output,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
