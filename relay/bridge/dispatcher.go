package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/mediminds/voicerelay/relay/contract"
)

// HandleClientCommand applies one inbound client control frame. Commands
// for unknown client ids are dropped; the caller's read loop races the
// manager's teardown and losing that race is not an error.
func (m *Manager) HandleClientCommand(ctx context.Context, clientID string, cmd contractx.ClientCommand) error {
	sess, ok := m.session(clientID)
	if !ok {
		return nil
	}

	switch cmd.Type {
	case contractx.CmdAudioChunk:
		if !sess.AcceptingAudio() {
			return nil
		}
		up, ok := sess.Upstream()
		if !ok {
			return nil
		}
		return up.AppendAudio(ctx, cmd.Audio)

	case contractx.CmdStartRecording:
		up, ok := sess.Upstream()
		if !ok {
			return nil
		}
		gen := sess.Interrupt()
		if err := up.CancelResponse(ctx); err != nil {
			return err
		}
		// Give the cancel a moment to land before clearing the input
		// buffer, so stray post-cancel appends do not survive the clear.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.cfg.CancelGrace):
		}
		if err := up.ClearAudio(ctx); err != nil {
			log.Debug().Err(err).Str("client_id", clientID).Msg("input buffer clear failed")
		}
		sess.ClearAccumulators()
		sess.SetAcceptingAudio(true)
		log.Debug().Str("client_id", clientID).Uint64("generation", gen).Msg("recording started")
		return sess.WriteJSON(map[string]any{"type": contractx.MsgRecordingStarted})

	case contractx.CmdStopRecording:
		sess.SetAcceptingAudio(false)
		up, ok := sess.Upstream()
		if !ok {
			return sess.WriteJSON(map[string]any{"type": contractx.MsgRecordingStopped})
		}
		if err := up.CommitAudio(ctx); err != nil {
			return err
		}
		if err := up.CreateResponse(ctx, m.cfg.Instructions); err != nil {
			return err
		}
		return sess.WriteJSON(map[string]any{"type": contractx.MsgRecordingStopped})

	case contractx.CmdHardStop:
		// Stop admitting audio before anything else so chunks racing the
		// stop cannot slip through mid-teardown.
		sess.SetAcceptingAudio(false)
		if up, ok := sess.Upstream(); ok {
			if err := up.CancelResponse(ctx); err != nil {
				return err
			}
			if err := up.ClearAudio(ctx); err != nil {
				log.Debug().Err(err).Str("client_id", clientID).Msg("input buffer clear failed")
			}
		}
		sess.ClearAccumulators()
		return sess.WriteJSON(map[string]any{"type": contractx.MsgHardStopped})

	default:
		log.Debug().Str("client_id", clientID).Str("command", cmd.Type).Msg("unknown client command")
		return nil
	}
}
