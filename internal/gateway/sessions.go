package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lexiqai/conversation-pipeline/internal/audio"
	"github.com/lexiqai/conversation-pipeline/internal/conversation"
	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/protocol"
	"github.com/lexiqai/conversation-pipeline/internal/session"
	"github.com/lexiqai/conversation-pipeline/internal/turns"
	"github.com/lexiqai/conversation-pipeline/internal/uploader"
)

// Frame upload headers
const (
	HeaderFrameSequence = "X-Frame-Sequence"
	HeaderFrameEncoding = "X-Frame-Encoding"
)

// maxFrameBody bounds a single HTTP frame upload. Larger bodies are
// rejected whole, never truncated.
const maxFrameBody = 1 << 20

type sessionResponse struct {
	SessionID string    `json:"session_id"`
	Created   bool      `json:"created"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var participant models.Participant
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&participant); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid participant: %w", err))
			return
		}
	}

	sess, created, err := s.sessions.Create(r.Context(), id, participant)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, sessionResponse{SessionID: sess.ID, Created: created, CreatedAt: sess.CreatedAt})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !s.sessions.Terminate(id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	var seq uint64
	if raw := r.Header.Get(HeaderFrameSequence); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s: %w", HeaderFrameSequence, err))
			return
		}
		seq = v
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBody))
	if err != nil {
		code := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeError(w, code, fmt.Errorf("read frame: %w", err))
		return
	}

	encoding := protocol.EncodingPCM16LE
	if strings.EqualFold(r.Header.Get(HeaderFrameEncoding), protocol.EncodingMulaw.String()) {
		encoding = protocol.EncodingMulaw
		if body, err = audio.DecodeMulaw(body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	observability.RecordFrameReceived(encoding.String())

	if err := s.sessions.Upload(r.Context(), id, seq, body); err != nil {
		writeError(w, uploadStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, uploader.ErrStreamWriteFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type flushResponse struct {
	SessionID string `json:"session_id"`
	Persisted bool   `json:"persisted"`
}

func (s *Server) handleFlushTurn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	rec, ok := s.turns.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no live reply stream for session %s", id))
		return
	}

	persisted, err := rec.Flush(r.Context())
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, turns.ErrPersistenceFailed) {
			code = http.StatusBadGateway
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, flushResponse{SessionID: id, Persisted: persisted})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	mode, err := conversation.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	transcripts, err := s.records.ListTranscripts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	aiTurns, err := s.records.ListAITurns(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, conversation.Merge(transcripts, aiTurns, mode))
}
