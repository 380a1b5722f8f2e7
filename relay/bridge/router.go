package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	realtimex "github.com/mediminds/voicerelay/pkg/realtime"
	contractx "github.com/mediminds/voicerelay/relay/contract"
	sessionx "github.com/mediminds/voicerelay/relay/session"
	toolx "github.com/mediminds/voicerelay/relay/tool"
)

const toolErrorInstructions = "Inform the user that there was an error while running the tool."

// router consumes the upstream event stream for one client and
// dispatches each event to session bookkeeping, audio/transcript
// forwarding, tool execution, or pass-through.
type router struct {
	sess         *sessionx.ClientSession
	tools        *toolx.Registry
	instructions string
}

// run loops until the event stream closes or the context is cancelled.
// Per-event failures are contained here and never end the loop.
func (r *router) run(ctx context.Context, events <-chan realtimex.ServerEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := r.route(ctx, ev); err != nil {
				log.Warn().Err(err).
					Str("client_id", r.sess.ID()).
					Str("event_type", ev.Type).
					Msg("upstream event handling failed")
			}
		}
	}
}

func (r *router) route(ctx context.Context, ev realtimex.ServerEvent) error {
	switch {
	case ev.SessionCreated != nil:
		r.sess.SetInfo(ev.SessionCreated.Session)
		if ev.SessionCreated.ID == "" {
			return nil
		}
		return r.sess.WriteJSON(map[string]any{
			"type":       contractx.MsgSessionCreated,
			"session_id": ev.SessionCreated.ID,
		})

	case ev.SessionUpdated != nil:
		r.sess.SetInfo(ev.SessionUpdated.Session)
		return nil

	case ev.AudioDelta != nil:
		if !r.sess.AdmitAudio(ev.AudioDelta.ItemID) {
			// Audio from a canceled turn; drop silently.
			return nil
		}
		return r.sess.WriteJSON(map[string]any{
			"type":    contractx.MsgAudioDelta,
			"item_id": ev.AudioDelta.ItemID,
			"delta":   ev.AudioDelta.Delta,
		})

	case ev.TranscriptDelta != nil:
		if !r.sess.TranscriptEligible(ev.TranscriptDelta.ItemID) {
			return nil
		}
		text := r.sess.AppendTranscript(ev.TranscriptDelta.ItemID, ev.TranscriptDelta.Delta)
		return r.sess.WriteJSON(map[string]any{
			"type":    contractx.MsgTranscriptDelta,
			"item_id": ev.TranscriptDelta.ItemID,
			"text":    text,
		})

	case ev.ResponseCreated != nil:
		log.Debug().
			Str("client_id", r.sess.ID()).
			Str("response_id", ev.ResponseCreated.ResponseID).
			Msg("new response; trust window reset")
		r.sess.ResetTrust()
		return nil

	case ev.ContentPartAdded != nil:
		call, ok := ev.ContentPartAdded.FunctionCall()
		if !ok || !r.tools.Has(call.Name) {
			return r.passThrough(ev)
		}
		return r.submitDirect(ctx, []realtimex.ToolCall{call})

	case ev.RequiresAction != nil:
		var resolvable []realtimex.ToolCall
		for _, call := range ev.RequiresAction.ToolCalls {
			if call.ID != "" && r.tools.Has(call.Name) {
				resolvable = append(resolvable, call)
			}
		}
		if len(resolvable) == 0 {
			return r.passThrough(ev)
		}
		return r.submitDirect(ctx, resolvable)

	case ev.Error != nil:
		log.Warn().
			Str("client_id", r.sess.ID()).
			Str("code", ev.Error.Code).
			Str("message", ev.Error.Message).
			Msg("upstream reported an error")
		return r.passThrough(ev)

	case ev.FunctionCallDone != nil:
		done := ev.FunctionCallDone
		if done.CallID == "" || !r.tools.Has(done.Name) {
			return r.passThrough(ev)
		}
		return r.submitAsConversationItem(ctx, realtimex.ToolCall{
			ID:   done.CallID,
			Name: done.Name,
			Args: done.Args,
		})

	default:
		return r.passThrough(ev)
	}
}

func (r *router) passThrough(ev realtimex.ServerEvent) error {
	return r.sess.WriteJSON(map[string]any{
		"type":  contractx.MsgRealtimeEvent,
		"event": ev.Raw,
	})
}

// execute runs one tool call and renders the output string submitted
// upstream; failures become an error string rather than propagating.
func (r *router) execute(ctx context.Context, call realtimex.ToolCall) (output string, failed bool) {
	args, err := toolx.ParseArgs(call.Args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), true
	}
	res, err := r.tools.Execute(ctx, call.Name, args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), true
	}
	if res.Error != "" {
		return fmt.Sprintf("Error: %s", res.Error), true
	}
	return res.Output, false
}

// submitDirect answers tool calls through the direct tool-output
// submission mechanism (the content-part and requires-action shapes).
func (r *router) submitDirect(ctx context.Context, calls []realtimex.ToolCall) error {
	up, ok := r.sess.Upstream()
	if !ok {
		return nil
	}
	outputs := make([]realtimex.ToolOutput, 0, len(calls))
	for _, call := range calls {
		output, failed := r.execute(ctx, call)
		if failed {
			log.Warn().Str("client_id", r.sess.ID()).Str("tool", call.Name).Str("output", output).
				Msg("tool call failed")
		}
		outputs = append(outputs, realtimex.ToolOutput{ToolCallID: call.ID, Output: output})
	}
	return up.SubmitToolOutputs(ctx, outputs)
}

// submitAsConversationItem answers a tool call by creating a
// function-call-output conversation item and triggering a new response
// (the function_call_arguments.done shape).
func (r *router) submitAsConversationItem(ctx context.Context, call realtimex.ToolCall) error {
	up, ok := r.sess.Upstream()
	if !ok {
		return nil
	}
	output, failed := r.execute(ctx, call)
	if err := up.CreateFunctionCallOutput(ctx, call.ID, output); err != nil {
		return err
	}
	if failed {
		log.Warn().Str("client_id", r.sess.ID()).Str("tool", call.Name).Str("output", output).
			Msg("tool call failed")
		return up.CreateResponse(ctx, toolErrorInstructions)
	}
	return up.CreateResponse(ctx, r.instructions)
}
