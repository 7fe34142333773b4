// Package protocol dispatches protocol messages to session lifecycle
// operations and owns the session registry.
package protocol

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"scribe-mcp-gateway/internal/mcp"
	"scribe-mcp-gateway/internal/observability/logging"
	"scribe-mcp-gateway/internal/observability/metrics"
	"scribe-mcp-gateway/internal/schema"
	"scribe-mcp-gateway/internal/service/session"
)

var (
	// ErrSessionNotFound is returned for messages addressed to an unknown session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAudioMissing is returned for Audio messages without data.
	ErrAudioMissing = errors.New("missing audio data")
	// ErrUnsupportedKind is returned for kinds the handler does not dispatch.
	ErrUnsupportedKind = errors.New("unsupported message type")
)

// Handler dispatches inbound messages. Every failure becomes an Error-kind
// reply; Handle never returns an error.
type Handler struct {
	registry  *Registry
	validator *schema.Validator
	metrics   *metrics.Metrics
}

// Option configures the handler.
type Option func(*Handler)

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a handler over registry.
func NewHandler(registry *Registry, opts ...Option) *Handler {
	h := &Handler{
		registry:  registry,
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry returns the registry the handler dispatches against.
func (h *Handler) Registry() *Registry {
	return h.registry
}

// Session returns the live session registered under id.
func (h *Handler) Session(id string) (*session.Session, bool) {
	return h.registry.Get(id)
}

// Handle dispatches msg and returns the reply.
func (h *Handler) Handle(ctx context.Context, msg mcp.Message) mcp.Message {
	_, span := otel.Tracer("scribe-mcp-gateway/protocol").Start(ctx, "protocol.handle")
	span.SetAttributes(
		attribute.String("mcp.kind", msg.Kind.String()),
		attribute.String("mcp.session_id", msg.SessionID),
	)
	defer span.End()

	reply, err := h.dispatch(msg)
	h.metrics.RecordMessage(msg.Kind.String(), err != nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logger := logging.WithMessage(msg)
		logger.Warn().Err(err).Msg("Protocol message rejected")
		return errorReply(msg, err)
	}
	return reply
}

func (h *Handler) dispatch(msg mcp.Message) (mcp.Message, error) {
	switch msg.Kind {
	case mcp.KindInit:
		return h.handleInit(msg)
	case mcp.KindStart:
		return h.handleStart(msg)
	case mcp.KindAudio:
		return h.handleAudio(msg)
	case mcp.KindStop:
		return h.handleStop(msg)
	default:
		return mcp.Message{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, msg.Kind)
	}
}

func (h *Handler) handleInit(msg mcp.Message) (mcp.Message, error) {
	format := mcp.DefaultAudioFormat()
	cfg := mcp.DefaultTranscriptionConfig()

	switch p := msg.Payload.(type) {
	case nil:
	case mcp.InitPayload:
		if p.AudioFormat != nil {
			format = *p.AudioFormat
		}
		if p.Config != nil {
			cfg = *p.Config
		}
	default:
		return mcp.Message{}, fmt.Errorf("unexpected init payload %T", msg.Payload)
	}

	if err := h.validator.ValidateAudioFormat(format); err != nil {
		return mcp.Message{}, err
	}
	if err := h.validator.ValidateConfig(cfg); err != nil {
		return mcp.Message{}, err
	}

	s := session.New(msg.SessionID, format, cfg)
	if prev := h.registry.Put(s); prev != nil {
		// Last writer wins; the replaced session is closed so its consumers end.
		prev.Close()
		h.metrics.RecordSessionRemoved()
		log.Info().Str("sessionId", s.ID()).Msg("Session replaced by new init")
	}
	h.metrics.RecordSessionCreated()

	log.Info().
		Str("sessionId", s.ID()).
		Int("sampleRate", format.SampleRate).
		Int("channels", format.Channels).
		Str("modelId", cfg.ModelID).
		Msg("Session initialized")

	return s.CreateMessage(mcp.KindInit, mcp.StatusPayload{Status: mcp.StatusReady}), nil
}

func (h *Handler) handleStart(msg mcp.Message) (mcp.Message, error) {
	s, err := h.lookup(msg.SessionID)
	if err != nil {
		return mcp.Message{}, err
	}
	if err := s.Start(); err != nil {
		return mcp.Message{}, err
	}
	return s.CreateMessage(mcp.KindStart, mcp.StatusPayload{Status: mcp.StatusStarted}), nil
}

func (h *Handler) handleAudio(msg mcp.Message) (mcp.Message, error) {
	s, err := h.lookup(msg.SessionID)
	if err != nil {
		return mcp.Message{}, err
	}
	p, ok := msg.Payload.(mcp.AudioPayload)
	if !ok || p.Data == nil {
		return mcp.Message{}, ErrAudioMissing
	}
	if err := s.PushAudio(p.Data); err != nil {
		return mcp.Message{}, err
	}
	h.metrics.RecordAudioReceived(len(p.Data))
	return s.CreateMessage(mcp.KindAudio, mcp.StatusPayload{Status: mcp.StatusReceived}), nil
}

func (h *Handler) handleStop(msg mcp.Message) (mcp.Message, error) {
	s, ok := h.registry.Delete(msg.SessionID)
	if !ok {
		return mcp.Message{}, fmt.Errorf("%w: %s", ErrSessionNotFound, msg.SessionID)
	}
	s.Close()
	h.metrics.RecordSessionRemoved()

	log.Info().Str("sessionId", s.ID()).Msg("Session stopped")
	return s.CreateMessage(mcp.KindStop, mcp.StatusPayload{Status: mcp.StatusStopped}), nil
}

// Release ends sess on behalf of the connection that created it. When a
// newer Init has already replaced sess under the same id, the registered
// session is left alone. Reports whether sess was still registered.
func (h *Handler) Release(sess *session.Session) bool {
	removed := h.registry.Remove(sess)
	sess.Close()
	if removed {
		h.metrics.RecordSessionRemoved()
		log.Info().Str("sessionId", sess.ID()).Msg("Session released")
	}
	return removed
}

func (h *Handler) lookup(id string) (*session.Session, error) {
	s, ok := h.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func errorReply(msg mcp.Message, err error) mcp.Message {
	return mcp.Message{
		Kind:      mcp.KindError,
		SessionID: msg.SessionID,
		Sequence:  msg.Sequence,
		Timestamp: mcp.Now(),
		Payload:   mcp.Error{Code: mcp.ErrorCodeProtocol, Message: err.Error()},
	}
}
