// Package pipeline runs one background transcription task per session. Each
// task drains the session's audio queue in order, converts every chunk to
// WAV, calls the STT provider and pushes results to the session's result
// queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scribe-mcp-gateway/internal/audio"
	"scribe-mcp-gateway/internal/mcp"
	"scribe-mcp-gateway/internal/models"
	"scribe-mcp-gateway/internal/observability/logging"
	"scribe-mcp-gateway/internal/observability/metrics"
	"scribe-mcp-gateway/internal/service/session"
	"scribe-mcp-gateway/internal/service/stt"
)

var (
	// ErrSessionAlreadyRunning is returned when a task already owns the session.
	ErrSessionAlreadyRunning = errors.New("transcription already running for session")
	// ErrServiceClosed is returned by StartSession after Close.
	ErrServiceClosed = errors.New("pipeline service closed")
)

// Chunk skip reasons reported to metrics.
const (
	skipEmpty      = "empty"
	skipTooLarge   = "too_large"
	skipConversion = "conversion"
	skipProvider   = "provider"
	skipNoOutput   = "no_output"
)

const publishTimeout = 5 * time.Second

// Publisher receives results and lifecycle events for fan-out.
type Publisher interface {
	PublishResult(ctx context.Context, ev models.TranscriptionEvent) error
	PublishSession(ctx context.Context, ev models.SessionEvent) error
}

// Limits bounds what a single task will send to the provider.
type Limits struct {
	// MaxChunkBytes skips chunks larger than this. Zero means no limit.
	MaxChunkBytes int
}

// Service supervises the per-session tasks.
type Service struct {
	provider  stt.Provider
	publisher Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	limits    Limits

	root   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	tasks  map[string]*task
	closed bool
}

type task struct {
	session *session.Session
	cancel  context.CancelFunc
	done    chan struct{}

	chunks  atomic.Int64
	results atomic.Int64
}

// Option configures the service.
type Option func(*Service)

// WithPublisher fans results out through p.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLimits sets per-chunk limits.
func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

// New creates a pipeline service calling provider.
func New(provider stt.Provider, opts ...Option) *Service {
	root, cancel := context.WithCancel(context.Background())
	s := &Service{
		provider: provider,
		metrics:  metrics.DefaultMetrics,
		tracer:   otel.Tracer("scribe-mcp-gateway/pipeline"),
		root:     root,
		cancel:   cancel,
		tasks:    make(map[string]*task),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession spawns the background task for sess. It fails with
// ErrSessionAlreadyRunning while another live task owns the session id. A
// task left behind by a closed session of the same id is cancelled and
// joined first.
func (s *Service) StartSession(sess *session.Session) error {
	id := sess.ID()
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrServiceClosed
		}
		existing, ok := s.tasks[id]
		if !ok {
			ctx, cancel := context.WithCancel(s.root)
			t := &task{session: sess, cancel: cancel, done: make(chan struct{})}
			s.tasks[id] = t
			s.mu.Unlock()

			go s.run(ctx, t)
			return nil
		}
		if existing.session == sess || existing.session.IsActive() {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrSessionAlreadyRunning, id)
		}
		s.mu.Unlock()

		existing.cancel()
		<-existing.done
	}
}

// StopSession cancels the task for id, if any, and waits for it to exit.
func (s *Service) StopSession(id string) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

// StopSessionFor cancels and joins the task running sess. A task that
// belongs to a newer session with the same id is left running.
func (s *Service) StopSessionFor(sess *session.Session) {
	s.mu.Lock()
	t, ok := s.tasks[sess.ID()]
	if ok && t.session == sess {
		delete(s.tasks, sess.ID())
	} else {
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

// Running reports whether a task is registered for id.
func (s *Service) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Len returns the number of registered tasks.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Close cancels every task and waits for all of them to exit. Later
// StartSession calls fail with ErrServiceClosed.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*task, 0, len(s.tasks))
	for id, t := range s.tasks {
		tasks = append(tasks, t)
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	s.cancel()
	for _, t := range tasks {
		<-t.done
	}
	log.Info().Int("tasks", len(tasks)).Msg("Pipeline service closed")
}

func (s *Service) remove(t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[t.session.ID()]; ok && cur == t {
		delete(s.tasks, t.session.ID())
	}
}

func (s *Service) run(ctx context.Context, t *task) {
	sess := t.session
	logger := logging.WithStream(sess.ID(), s.provider.Name())
	started := time.Now()

	defer close(t.done)
	defer s.remove(t)
	defer sess.Close()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Pipeline task panicked")
		}
	}()

	s.metrics.RecordPipelineStart()
	defer s.metrics.RecordPipelineEnd()

	logger.Info().Msg("Pipeline started")
	s.publishSession(sess, models.SessionEvent{
		EventType:   models.EventTypeSessionStarted,
		SessionID:   sess.ID(),
		Timestamp:   started.UnixMilli(),
		AudioFormat: sess.AudioFormat(),
		ModelID:     sess.Config().ModelID,
	})

	for chunk := range sess.ConsumeAudio(ctx) {
		idx := t.chunks.Add(1) - 1
		if s.process(ctx, logger, sess, idx, chunk) {
			t.results.Add(1)
		}
	}

	logger.Info().
		Int64("chunks", t.chunks.Load()).
		Int64("results", t.results.Load()).
		Dur("duration", time.Since(started)).
		Bool("cancelled", ctx.Err() != nil).
		Msg("Pipeline stopped")

	s.publishSession(sess, models.SessionEvent{
		EventType:       models.EventTypeSessionStopped,
		SessionID:       sess.ID(),
		Timestamp:       time.Now().UnixMilli(),
		AudioFormat:     sess.AudioFormat(),
		ModelID:         sess.Config().ModelID,
		ChunksProcessed: t.chunks.Load(),
		ResultsProduced: t.results.Load(),
		DurationMs:      time.Since(started).Milliseconds(),
	})
}

// process handles one chunk and reports whether a result was pushed. Every
// failure is confined to the chunk.
func (s *Service) process(ctx context.Context, logger zerolog.Logger, sess *session.Session, idx int64, chunk []byte) bool {
	if len(chunk) == 0 {
		s.metrics.RecordChunkSkipped(skipEmpty)
		return false
	}
	if s.limits.MaxChunkBytes > 0 && len(chunk) > s.limits.MaxChunkBytes {
		logger.Warn().
			Int64("chunk", idx).
			Int("bytes", len(chunk)).
			Int("maxBytes", s.limits.MaxChunkBytes).
			Msg("Audio chunk exceeds limit, skipped")
		s.metrics.RecordChunkSkipped(skipTooLarge)
		return false
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.chunk", trace.WithAttributes(
		attribute.String("mcp.session_id", sess.ID()),
		attribute.Int64("pipeline.chunk_index", idx),
		attribute.Int("pipeline.chunk_bytes", len(chunk)),
	))
	defer span.End()

	wav, err := audio.ConvertPCMToWAV(chunk, sess.AudioFormat())
	if err != nil {
		logger.Error().Err(err).Int64("chunk", idx).Int("bytes", len(chunk)).Msg("Audio conversion failed, chunk skipped")
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversion")
		s.metrics.RecordChunkSkipped(skipConversion)
		return false
	}

	res, err := s.provider.Transcribe(ctx, wav, sess.Config())
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logger.Error().Err(err).Int64("chunk", idx).Int("bytes", len(chunk)).Msg("Transcription failed, chunk skipped")
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider")
		s.metrics.RecordChunkSkipped(skipProvider)
		return false
	}
	if res == nil {
		s.metrics.RecordChunkSkipped(skipNoOutput)
		return false
	}

	for i := range res.Words {
		if res.Words[i].Type == "" {
			res.Words[i].Type = mcp.DefaultWordType
		}
	}

	if err := sess.PushResult(*res); err != nil {
		return false
	}
	s.metrics.RecordResult()
	if res.Text != "" {
		sess.UpdateContext(res.Text)
	}

	logger.Debug().Int64("chunk", idx).Int("words", len(res.Words)).Msg("Transcription result queued")

	if s.publisher != nil {
		ev := models.TranscriptionEvent{
			EventType:           models.EventTypeTranscriptionResult,
			SessionID:           sess.ID(),
			ChunkIndex:          idx,
			Timestamp:           time.Now().UnixMilli(),
			ModelID:             sess.Config().ModelID,
			Text:                res.Text,
			LanguageCode:        res.LanguageCode,
			LanguageProbability: res.LanguageProbability,
			Words:               res.Words,
		}
		if err := s.publisher.PublishResult(ctx, ev); err != nil {
			logger.Warn().Err(err).Int64("chunk", idx).Msg("Failed to publish result")
		}
	}
	return true
}

func (s *Service) publishSession(sess *session.Session, ev models.SessionEvent) {
	if s.publisher == nil {
		return
	}
	// Detached from the task context so the stop event survives cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.publisher.PublishSession(ctx, ev); err != nil {
		log.Warn().Err(err).Str("sessionId", sess.ID()).Str("eventType", ev.EventType).Msg("Failed to publish session event")
	}
}
