// Package models defines the data structures for published gateway events.
package models

import "scribe-mcp-gateway/internal/mcp"

// Event types carried in the eventType field and Kafka header.
const (
	EventTypeTranscriptionResult = "scribe.transcription.result"
	EventTypeSessionStarted      = "scribe.session.started"
	EventTypeSessionStopped      = "scribe.session.stopped"
)

// TranscriptionEvent is one provider result produced for a session chunk.
type TranscriptionEvent struct {
	EventType           string     `json:"eventType"`
	SessionID           string     `json:"sessionId"`
	ChunkIndex          int64      `json:"chunkIndex"`
	Timestamp           int64      `json:"timestamp"`
	ModelID             string     `json:"modelId"`
	Text                string     `json:"text"`
	LanguageCode        string     `json:"languageCode,omitempty"`
	LanguageProbability *float64   `json:"languageProbability,omitempty"`
	Words               []mcp.Word `json:"words"`
}

// SessionEvent marks a pipeline starting or stopping for a session.
type SessionEvent struct {
	EventType       string          `json:"eventType"`
	SessionID       string          `json:"sessionId"`
	Timestamp       int64           `json:"timestamp"`
	AudioFormat     mcp.AudioFormat `json:"audioFormat"`
	ModelID         string          `json:"modelId"`
	ChunksProcessed int64           `json:"chunksProcessed,omitempty"`
	ResultsProduced int64           `json:"resultsProduced,omitempty"`
	DurationMs      int64           `json:"durationMs,omitempty"`
}
