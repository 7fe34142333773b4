package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"scribe-mcp-gateway/internal/mcp"
	"scribe-mcp-gateway/internal/observability/logging"
	"scribe-mcp-gateway/internal/service/session"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  32 << 10,
	WriteBufferSize: 32 << 10,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stream is one WebSocket transcription session. Binary frames carry audio;
// a text frame holding a Stop message ends the stream.
type stream struct {
	api    *API
	conn   *websocket.Conn
	id     string
	sess   *session.Session
	logger zerolog.Logger

	writeMu sync.Mutex
	seq     int64
}

func (a *API) streamTranscribe(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		id = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := logging.WithSession(id)
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	started := time.Now()
	a.metrics.RecordStreamStart()
	defer func() { a.metrics.RecordStreamEnd(time.Since(started).Seconds()) }()

	s := &stream{api: a, conn: conn, id: id, logger: logging.WithSession(id)}
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket stream opened")

	s.serve(r.Context())

	s.logger.Info().Dur("duration", time.Since(started)).Msg("WebSocket stream closed")
}

func (s *stream) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if reply := s.handle(ctx, mcp.KindInit, nil); reply.Kind == mcp.KindError {
		s.send(reply)
		return
	}
	sess, ok := s.api.handler.Session(s.id)
	if !ok {
		return
	}
	s.sess = sess
	// Teardown only touches the session this connection created; a newer
	// Init for the same id owns its own session and task.
	defer func() {
		s.api.pipeline.StopSessionFor(sess)
		s.api.handler.Release(sess)
	}()

	if reply := s.handle(ctx, mcp.KindStart, nil); reply.Kind == mcp.KindError {
		s.send(reply)
		return
	}
	if err := s.api.pipeline.StartSession(sess); err != nil {
		s.send(s.errorMessage(err.Error()))
		return
	}

	// The writer ends when the session closes or a write fails; either way
	// the read side is unblocked through the read deadline.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		for res := range sess.ConsumeResults(ctx) {
			if err := s.send(sess.CreateMessage(mcp.KindTranscription, res)); err != nil {
				s.logger.Debug().Err(err).Msg("Result write failed")
				return
			}
		}
	}()
	go func() {
		<-ctx.Done()
		_ = s.conn.SetReadDeadline(time.Now())
	}()

	s.readLoop(ctx)

	cancel()
	<-writerDone
}

func (s *stream) readLoop(ctx context.Context) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn().Err(err).Msg("WebSocket read failed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			if !s.sess.IsActive() {
				// Replaced by a newer Init for the same id.
				return
			}
			if reply := s.handle(ctx, mcp.KindAudio, mcp.AudioPayload{Data: data}); reply.Kind == mcp.KindError {
				if err := s.send(reply); err != nil {
					return
				}
			}
		case websocket.TextMessage:
			var msg mcp.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				s.send(s.errorMessage("invalid control message: " + err.Error()))
				continue
			}
			if msg.Kind == mcp.KindStop {
				s.closeNormally()
				return
			}
			s.send(s.errorMessage("unsupported message type on stream: " + msg.Kind.String()))
		}
	}
}

func (s *stream) handle(ctx context.Context, kind mcp.Kind, payload mcp.Payload) mcp.Message {
	reply := s.api.handler.Handle(ctx, mcp.NewMessage(kind, s.id, s.seq, payload))
	s.seq++
	return reply
}

func (s *stream) errorMessage(text string) mcp.Message {
	return mcp.NewMessage(mcp.KindError, s.id, s.seq, mcp.Error{Code: mcp.ErrorCodeProtocol, Message: text})
}

// send writes v as a JSON text frame. Safe for concurrent use.
func (s *stream) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *stream) closeNormally() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stopped"),
		time.Now().Add(writeWait))
}
