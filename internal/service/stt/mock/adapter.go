// Package mock provides a scripted STT provider for tests and offline runs.
// Without a script it cycles through canned utterances, one per chunk.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"scribe-mcp-gateway/internal/mcp"
)

// Name is reported by the mock provider.
const Name = "mock"

// SimulatedUtterance is a canned transcript returned for one chunk.
type SimulatedUtterance struct {
	Text         string
	LanguageCode string
	Probability  float64
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{Text: "I want to cancel my subscription", LanguageCode: "en", Probability: 0.94},
	{Text: "Yes please go ahead", LanguageCode: "en", Probability: 0.97},
	{Text: "Can you help me with my account", LanguageCode: "en", Probability: 0.91},
	{Text: "I've been waiting for over an hour", LanguageCode: "en", Probability: 0.89},
	{Text: "Thank you very much", LanguageCode: "en", Probability: 0.98},
}

// Response is one scripted answer. A nil Result with a nil Err simulates a
// backend that produced no output.
type Response struct {
	Result *mcp.TranscriptionResult
	Err    error
}

// Call records one Transcribe invocation.
type Call struct {
	WAV    []byte
	Config mcp.TranscriptionConfig
}

// Adapter implements stt.Provider with canned or scripted responses.
type Adapter struct {
	mu     sync.Mutex
	script []Response
	calls  []Call
	next   int
	delay  time.Duration
}

// Option configures the mock adapter.
type Option func(*Adapter)

// WithScript makes the adapter answer the n-th call with script[n]. Calls
// past the end of the script fall back to the default utterances.
func WithScript(script ...Response) Option {
	return func(a *Adapter) { a.script = script }
}

// WithDelay simulates backend latency.
func WithDelay(d time.Duration) Option {
	return func(a *Adapter) { a.delay = d }
}

// New creates a new mock STT adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return Name }

// Transcribe returns the next scripted response or canned utterance.
func (a *Adapter) Transcribe(ctx context.Context, wav []byte, cfg mcp.TranscriptionConfig) (*mcp.TranscriptionResult, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, Call{WAV: append([]byte(nil), wav...), Config: cfg})
	n := a.next
	a.next++

	if n < len(a.script) {
		return a.script[n].Result, a.script[n].Err
	}
	utt := DefaultUtterances[(n-len(a.script))%len(DefaultUtterances)]
	return Result(utt.Text, utt.LanguageCode, utt.Probability), nil
}

// Calls returns a copy of the recorded invocations.
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// Result builds a TranscriptionResult with evenly spaced word timings.
func Result(text, languageCode string, probability float64) *mcp.TranscriptionResult {
	fields := strings.Fields(text)
	words := make([]mcp.Word, 0, len(fields))
	for i, w := range fields {
		start := float64(i) * 0.4
		words = append(words, mcp.Word{
			Text:  w,
			Start: start,
			End:   start + 0.35,
			Type:  mcp.DefaultWordType,
		})
	}
	p := probability
	return &mcp.TranscriptionResult{
		Text:                text,
		LanguageCode:        languageCode,
		LanguageProbability: &p,
		Words:               words,
	}
}
