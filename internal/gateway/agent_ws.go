package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/turns"
)

// Reply stream message types
const (
	AgentDelta    = "delta"
	AgentComplete = "complete"
	AgentPause    = "pause"
	AgentStop     = "stop"
	AgentMode     = "mode"
	AgentAck      = "ack"
	AgentError    = "error"
)

// AgentMessage is exchanged on the reply stream in both directions
type AgentMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Persisted bool   `json:"persisted,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleAgentStream records a streamed AI reply. Deltas accumulate into a
// turn; complete persists it; pause, stop and disconnect flush whatever is
// buffered.
func (s *Server) handleAgentStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	logger := observability.WithSession(id).With().Str("stream", "agent").Logger()

	rec, created := s.turns.Acquire(id)
	if created {
		ids, err := s.records.TurnIDs(r.Context(), id)
		if err != nil {
			s.turns.Release(id, rec)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		rec.RestoreConfirmedTurnIDs(ids)
		logger.Debug().Int("confirmed", len(ids)).Msg("Restored persisted turn ids")
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade agent stream")
		s.turns.Release(id, rec)
		return
	}
	defer conn.Close()

	logger.Info().Msg("Agent stream connected")
	stopped := s.readAgentMessages(r.Context(), conn, rec, logger)

	// the request context is cancelled once the client is gone
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.PersistTimeout)
	defer cancel()
	if _, err := rec.Flush(ctx); err != nil {
		logger.Error().Err(err).Msg("Final flush failed, buffered reply text dropped")
	}

	s.turns.Release(id, rec)
	logger.Info().Bool("stopped", stopped).Msg("Agent stream closed")
}

// readAgentMessages handles messages until the client disconnects or sends
// stop. It reports whether the stream ended with stop.
func (s *Server) readAgentMessages(ctx context.Context, conn *websocket.Conn, rec *turns.SyncRecorder, logger zerolog.Logger) bool {
	for {
		var msg AgentMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("Agent stream read error")
			}
			return false
		}

		var reply AgentMessage
		switch msg.Type {
		case AgentDelta:
			rec.AppendChunk(msg.Text)
			continue
		case AgentMode:
			rec.SetMode(msg.Mode)
			reply = AgentMessage{Type: AgentAck, Mode: msg.Mode}
		case AgentComplete:
			reply = persistReply(rec.CompleteTurn(ctx))
		case AgentPause, AgentStop:
			reply = persistReply(rec.Flush(ctx))
		default:
			reply = AgentMessage{Type: AgentError, Error: "unknown message type " + msg.Type}
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			return false
		}

		if msg.Type == AgentStop {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, AgentStop),
				time.Now().Add(writeWait))
			return true
		}
	}
}

func persistReply(persisted bool, err error) AgentMessage {
	if err != nil {
		return AgentMessage{Type: AgentError, Error: err.Error()}
	}
	return AgentMessage{Type: AgentAck, Persisted: persisted}
}
