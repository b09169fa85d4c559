package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/lexiqai/conversation-pipeline/internal/models"
	"github.com/lexiqai/conversation-pipeline/internal/observability"
	"github.com/lexiqai/conversation-pipeline/internal/protocol"
	"github.com/lexiqai/conversation-pipeline/internal/session"
	"github.com/lexiqai/conversation-pipeline/internal/stt"
)

// TranscriptMessage is sent to audio stream clients for every recognition event
type TranscriptMessage struct {
	Type       string    `json:"type"`
	Text       string    `json:"text,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// TranscriptMessageError reports a rejected frame; the stream stays open
const TranscriptMessageError = "frame_error"

const writeWait = 10 * time.Second

func transcriptMessage(ev stt.Event) TranscriptMessage {
	msg := TranscriptMessage{
		Type:       string(ev.Type),
		Text:       ev.Text,
		Confidence: ev.Confidence,
		At:         ev.At,
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	return msg
}

// handleAudioStream accepts binary protocol frames and streams recognition
// events back as JSON. The session is created on connect if needed and
// terminated when the client disconnects.
func (s *Server) handleAudioStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	logger := observability.WithSession(id)

	participant := models.Participant{
		ID:   r.URL.Query().Get("participant_id"),
		Name: r.URL.Query().Get("participant_name"),
	}
	if _, _, err := s.sessions.Create(r.Context(), id, participant); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to upgrade audio stream")
		s.sessions.Terminate(id)
		return
	}
	defer conn.Close()

	// out is never closed: the subscriber may still fire after unsubscribe
	out := make(chan TranscriptMessage, 64)
	done := make(chan struct{})

	unsubscribe, err := s.sessions.Subscribe(id, func(ev stt.Event) {
		msg := transcriptMessage(ev)
		if ev.Type == stt.EventPartial {
			select {
			case out <- msg:
			default:
				// partials are superseded by later events
			}
			return
		}
		select {
		case out <- msg:
		case <-done:
		}
	})
	if err != nil {
		// the stream ended between create and subscribe
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, err.Error()))
		close(done)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeTranscripts(conn, out, done)
	}()

	logger.Info().Msg("Audio stream connected")
	s.readFrames(r.Context(), conn, id, out, done)

	unsubscribe()
	close(done)
	<-writerDone

	if s.sessions.Terminate(id) {
		logger.Info().Msg("Audio stream disconnected, session terminated")
	}
}

// readFrames forwards frames until the client disconnects or the session is
// gone. Frame errors are reported to the client without closing the stream.
func (s *Server) readFrames(ctx context.Context, conn *websocket.Conn, id string, out chan<- TranscriptMessage, done <-chan struct{}) {
	logger := observability.WithSession(id)
	report := func(err error) {
		select {
		case out <- TranscriptMessage{Type: TranscriptMessageError, Error: err.Error(), At: time.Now()}:
		case <-done:
		}
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("Audio stream read error")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			report(fmt.Errorf("expected binary frame, got message type %d", msgType))
			continue
		}

		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			report(err)
			continue
		}
		if frame.SessionID != "" && frame.SessionID != id {
			report(fmt.Errorf("frame for session %q sent on stream %q", frame.SessionID, id))
			continue
		}
		observability.RecordFrameReceived(frame.Encoding.String())

		pcm, err := frame.PCM()
		if err != nil {
			report(err)
			continue
		}

		if err := s.sessions.Upload(ctx, id, frame.Sequence, pcm); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, stt.ErrStreamClosed) {
				return
			}
			// only this chunk is lost; later frames still go through
			report(err)
		}
	}
}

// writeTranscripts is the connection's only writer. After a terminal event
// it sends a close frame and bounds the reader's wait for the client's reply.
// Once done is closed it writes what is queued and stops.
func (s *Server) writeTranscripts(conn *websocket.Conn, out <-chan TranscriptMessage, done <-chan struct{}) {
	for {
		select {
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if stt.EventType(msg.Type).Terminal() {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, msg.Type),
					time.Now().Add(writeWait))
				conn.SetReadDeadline(time.Now().Add(writeWait))
				return
			}
		case <-done:
			flushQueued(conn, out)
			return
		}
	}
}

// flushQueued writes messages already queued without waiting for more
func flushQueued(conn *websocket.Conn, out <-chan TranscriptMessage) {
	for {
		select {
		case msg := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
