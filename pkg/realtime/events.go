package realtime

import (
	"encoding/json"
	"fmt"
)

// Server event type tags. The upstream service has emitted both the
// current and the older audio tags depending on model version, so both
// are recognized.
const (
	EventSessionCreated        = "session.created"
	EventSessionUpdated        = "session.updated"
	EventAudioDelta            = "response.output_audio.delta"
	EventAudioDeltaLegacy      = "response.audio.delta"
	EventTranscriptDelta       = "response.output_audio_transcript.delta"
	EventTranscriptDeltaLegacy = "response.audio.transcript.delta"
	EventResponseCreated       = "response.created"
	EventContentPartAdded      = "response.content_part.added"
	EventRequiresAction        = "response.requires_action"
	EventFunctionCallDone      = "response.function_call_arguments.done"
	EventError                 = "error"
)

// ServerEvent is the tagged union of upstream events this relay reacts
// to. Exactly one variant pointer is set for recognized types; Raw always
// holds the full decoded payload so unrecognized events can be forwarded
// unmodified.
type ServerEvent struct {
	Type string
	Raw  map[string]any

	SessionCreated   *SessionEvent
	SessionUpdated   *SessionEvent
	AudioDelta       *AudioDeltaEvent
	TranscriptDelta  *TranscriptDeltaEvent
	ResponseCreated  *ResponseCreatedEvent
	ContentPartAdded *ContentPartAddedEvent
	RequiresAction   *RequiresActionEvent
	FunctionCallDone *FunctionCallDoneEvent
	Error            *ErrorEvent
}

type SessionEvent struct {
	ID      string
	Session map[string]any
}

type AudioDeltaEvent struct {
	ItemID string
	Delta  string
}

type TranscriptDeltaEvent struct {
	ItemID string
	Delta  string
}

type ResponseCreatedEvent struct {
	ResponseID string
}

type ContentPartAddedEvent struct {
	ItemID string
	Part   map[string]any
}

type RequiresActionEvent struct {
	ToolCalls []ToolCall
}

type FunctionCallDoneEvent struct {
	ItemID string
	CallID string
	Name   string
	Args   string
}

type ErrorEvent struct {
	Code    string
	Message string
}

// ToolCall is one tool invocation extracted from an upstream event.
// Args is the raw argument encoding, usually a JSON object string.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// ParseServerEvent decodes one upstream frame. It is total over event
// types: anything it does not model comes back with only Type and Raw
// set, never an error, so the consumption loop can forward it verbatim.
func ParseServerEvent(payload []byte) (ServerEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ServerEvent{}, fmt.Errorf("realtime: decode server event: %w", err)
	}

	ev := ServerEvent{Raw: raw}
	ev.Type, _ = raw["type"].(string)

	switch ev.Type {
	case EventSessionCreated:
		ev.SessionCreated = parseSessionEvent(raw)
	case EventSessionUpdated:
		ev.SessionUpdated = parseSessionEvent(raw)
	case EventAudioDelta, EventAudioDeltaLegacy:
		ev.AudioDelta = &AudioDeltaEvent{
			ItemID: stringField(raw, "item_id"),
			Delta:  stringField(raw, "delta"),
		}
	case EventTranscriptDelta, EventTranscriptDeltaLegacy:
		ev.TranscriptDelta = &TranscriptDeltaEvent{
			ItemID: stringField(raw, "item_id"),
			Delta:  stringField(raw, "delta"),
		}
	case EventResponseCreated:
		created := &ResponseCreatedEvent{}
		if response, ok := mapField(raw, "response"); ok {
			created.ResponseID = stringField(response, "id")
		}
		ev.ResponseCreated = created
	case EventContentPartAdded:
		part, _ := mapField(raw, "part")
		if part == nil {
			part, _ = mapField(raw, "content_part")
		}
		ev.ContentPartAdded = &ContentPartAddedEvent{
			ItemID: stringField(raw, "item_id"),
			Part:   part,
		}
	case EventRequiresAction:
		ev.RequiresAction = &RequiresActionEvent{ToolCalls: parseRequiredAction(raw)}
	case EventFunctionCallDone:
		ev.FunctionCallDone = &FunctionCallDoneEvent{
			ItemID: stringField(raw, "item_id"),
			CallID: stringField(raw, "call_id"),
			Name:   stringField(raw, "name"),
			Args:   stringField(raw, "arguments"),
		}
	case EventError:
		detail, _ := mapField(raw, "error")
		ev.Error = &ErrorEvent{
			Code:    stringField(detail, "code"),
			Message: stringField(detail, "message"),
		}
	}

	return ev, nil
}

func parseSessionEvent(raw map[string]any) *SessionEvent {
	session, _ := mapField(raw, "session")
	return &SessionEvent{
		ID:      stringField(session, "id"),
		Session: session,
	}
}

// FunctionCall extracts an embedded function call from a content-part
// payload. The upstream service has shipped this in several shapes, so
// the call id, name, and arguments are each probed along every path the
// protocol has been observed to use. Returns false when the part carries
// no resolvable call.
func (e *ContentPartAddedEvent) FunctionCall() (ToolCall, bool) {
	if e == nil || e.Part == nil {
		return ToolCall{}, false
	}

	var fn map[string]any
	switch {
	case stringField(e.Part, "type") == "function_call":
		if inner, ok := mapField(e.Part, "function_call"); ok {
			fn = inner
		} else {
			fn = e.Part
		}
	default:
		if inner, ok := mapField(e.Part, "function_call"); ok {
			fn = inner
		}
	}
	if fn == nil {
		return ToolCall{}, false
	}

	call := ToolCall{
		Name: firstString(fn, "name", "function_name"),
		Args: argsField(fn, "arguments", "args"),
		ID:   firstString(fn, "id", "tool_call_id"),
	}
	if call.Name == "" {
		call.Name = stringField(e.Part, "name")
	}
	if call.ID == "" {
		call.ID = firstString(e.Part, "id", "tool_call_id")
	}
	if call.Name == "" || call.ID == "" {
		return ToolCall{}, false
	}
	return call, true
}

func parseRequiredAction(raw map[string]any) []ToolCall {
	var entries []any
	if action, ok := mapField(raw, "required_action"); ok {
		if submit, ok := mapField(action, "submit_tool_outputs"); ok {
			entries, _ = submit["tool_calls"].([]any)
		}
	}
	if entries == nil {
		entries, _ = raw["tool_calls"].([]any)
	}

	var calls []ToolCall
	for _, entry := range entries {
		tc, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		call := ToolCall{ID: firstString(tc, "id", "tool_call_id")}
		if fn, ok := mapField(tc, "function"); ok {
			call.Name = stringField(fn, "name")
			call.Args = argsField(fn, "arguments")
		}
		if call.Name == "" {
			call.Name = stringField(tc, "name")
		}
		if call.Args == "" {
			call.Args = argsField(tc, "arguments")
		}
		calls = append(calls, call)
	}
	return calls
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := stringField(m, key); s != "" {
			return s
		}
	}
	return ""
}

func mapField(m map[string]any, key string) (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	inner, ok := m[key].(map[string]any)
	return inner, ok
}

// argsField reads tool-call arguments, re-encoding to a JSON string when
// the upstream sent them as a structured object instead of a string.
func argsField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch args := v.(type) {
		case string:
			return args
		case map[string]any:
			encoded, err := json.Marshal(args)
			if err != nil {
				continue
			}
			return string(encoded)
		}
	}
	return ""
}
