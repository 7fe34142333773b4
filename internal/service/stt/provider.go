// Package stt defines the contract between the transcription pipeline and
// speech-to-text providers.
package stt

import (
	"context"
	"errors"
	"fmt"

	"scribe-mcp-gateway/internal/mcp"
)

// Provider transcribes one WAV-encoded chunk.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe sends wav to the backend and parses its answer. A nil
	// result with a nil error means the backend produced no output.
	Transcribe(ctx context.Context, wav []byte, cfg mcp.TranscriptionConfig) (*mcp.TranscriptionResult, error)
}

// ProviderError is returned when the backend answers with a non-success status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// ErrorType classifies err for metrics labels.
func ErrorType(err error) string {
	var perr *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &perr):
		if perr.StatusCode >= 500 {
			return "server"
		}
		return "client"
	default:
		return "transport"
	}
}
