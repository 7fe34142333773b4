// Package session holds per-conversation state: the inbound audio queue, the
// outbound result queue, the rolling transcript context and the message
// sequence counter.
package session

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribe-mcp-gateway/internal/mcp"
)

// Session is one transcription conversation.
//
// The audio queue has a single producer (the protocol handler) and a single
// consumer (the pipeline). The result queue has a single producer (the
// pipeline) and a single consumer (the transport).
type Session struct {
	id          string
	audioFormat mcp.AudioFormat
	config      mcp.TranscriptionConfig
	createdAt   time.Time

	seq       Sequencer
	lifecycle *Lifecycle

	audio   *Queue[[]byte]
	results *Queue[mcp.TranscriptionResult]

	mu            sync.Mutex
	contextBuf    []string
	contextTokens []int
	tokenTotal    int
}

// New creates an active session. An empty id is replaced by a random UUID.
func New(id string, format mcp.AudioFormat, cfg mcp.TranscriptionConfig) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{
		id:          id,
		audioFormat: format,
		config:      cfg,
		createdAt:   time.Now(),
		lifecycle:   NewLifecycle(),
		audio:       NewQueue[[]byte](),
		results:     NewQueue[mcp.TranscriptionResult](),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// AudioFormat returns the immutable audio format.
func (s *Session) AudioFormat() mcp.AudioFormat { return s.audioFormat }

// Config returns the immutable transcription config.
func (s *Session) Config() mcp.TranscriptionConfig { return s.config }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the lifecycle state.
func (s *Session) State() State { return s.lifecycle.State() }

// IsActive reports whether the session has not been closed.
func (s *Session) IsActive() bool { return !s.lifecycle.IsClosed() }

// NextSequence returns the sequence number the next created message will carry.
func (s *Session) NextSequence() int64 { return s.seq.Peek() }

// CreateMessage builds a message stamped with this session's id, the next
// sequence number and the seconds elapsed since the session was created.
func (s *Session) CreateMessage(kind mcp.Kind, payload mcp.Payload) mcp.Message {
	return mcp.Message{
		Kind:      kind,
		SessionID: s.id,
		Sequence:  s.seq.Next(),
		Timestamp: time.Since(s.createdAt).Seconds(),
		Payload:   payload,
	}
}

// Start marks transcription as requested. Idempotent while active.
func (s *Session) Start() error {
	return s.lifecycle.Start()
}

// PushAudio enqueues a raw audio chunk. It never blocks.
func (s *Session) PushAudio(chunk []byte) error {
	if !s.audio.Push(chunk) {
		return ErrClosed
	}
	return nil
}

// NextAudio waits for the next audio chunk.
func (s *Session) NextAudio(ctx context.Context) ([]byte, error) {
	return s.audio.Pop(ctx)
}

// ConsumeAudio yields audio chunks in arrival order until the session closes
// or ctx is done.
func (s *Session) ConsumeAudio(ctx context.Context) iter.Seq[[]byte] {
	return drain(ctx, s.audio)
}

// PushResult enqueues a transcription result.
func (s *Session) PushResult(r mcp.TranscriptionResult) error {
	if !s.results.Push(r) {
		return ErrClosed
	}
	return nil
}

// NextResult waits for the next transcription result.
func (s *Session) NextResult(ctx context.Context) (mcp.TranscriptionResult, error) {
	return s.results.Pop(ctx)
}

// ConsumeResults yields results in production order until the session closes
// or ctx is done.
func (s *Session) ConsumeResults(ctx context.Context) iter.Seq[mcp.TranscriptionResult] {
	return drain(ctx, s.results)
}

func drain[T any](ctx context.Context, q *Queue[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			v, err := q.Pop(ctx)
			if err != nil {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// UpdateContext appends text to the context buffer, then drops whole entries,
// oldest first, until the buffered token count is within MaxContextLength.
// Tokens are whitespace-separated words. A MaxContextLength of zero keeps
// everything.
func (s *Session) UpdateContext(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(strings.Fields(text))
	s.contextBuf = append(s.contextBuf, text)
	s.contextTokens = append(s.contextTokens, n)
	s.tokenTotal += n

	limit := s.config.MaxContextLength
	if limit <= 0 {
		return
	}
	for s.tokenTotal > limit && len(s.contextBuf) > 0 {
		s.tokenTotal -= s.contextTokens[0]
		s.contextBuf = s.contextBuf[1:]
		s.contextTokens = s.contextTokens[1:]
	}
}

// Context returns the buffered transcript joined by single spaces.
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.contextBuf, " ")
}

// ContextEntries returns a copy of the buffered transcript entries.
func (s *Session) ContextEntries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.contextBuf...)
}

// ContextTokens returns the number of tokens currently buffered.
func (s *Session) ContextTokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenTotal
}

// Close deactivates the session and terminates both queues, discarding any
// unconsumed data. Safe to call more than once and from several goroutines.
// Returns true for the call that actually closed the session.
func (s *Session) Close() bool {
	closed := s.lifecycle.Close()
	s.audio.Close()
	s.results.Close()
	return closed
}

// IsClosedErr reports whether err signals a closed session.
func IsClosedErr(err error) bool {
	return errors.Is(err, ErrClosed)
}
