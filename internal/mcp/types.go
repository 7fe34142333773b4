// Package mcp defines the message envelope, message kinds and payload shapes
// exchanged between transports and the transcription core.
package mcp

import "encoding/json"

// Kind identifies the purpose of a Message.
type Kind string

const (
	KindInit          Kind = "init"
	KindStart         Kind = "start"
	KindAudio         Kind = "audio"
	KindTranscription Kind = "transcription"
	KindError         Kind = "error"
	KindStop          Kind = "stop"
	KindDone          Kind = "done"
)

// Valid reports whether k is one of the known message kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindInit, KindStart, KindAudio, KindTranscription, KindError, KindStop, KindDone:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Default audio and transcription settings.
const (
	DefaultSampleRate       = 16000
	DefaultChannels         = 1
	DefaultSampleWidth      = 2
	DefaultEncoding         = "pcm"
	DefaultModelID          = "scribe_v1"
	DefaultMaxContextLength = 1000
	DefaultWordType         = "speech"
)

// AudioFormat describes raw audio delivered in Audio messages.
type AudioFormat struct {
	SampleRate  int    `json:"sample_rate" validate:"gt=0,lte=192000"`
	Channels    int    `json:"channels" validate:"gte=1,lte=8"`
	SampleWidth int    `json:"sample_width" validate:"oneof=1 2 3 4"`
	Encoding    string `json:"encoding" validate:"oneof=pcm"`
}

// DefaultAudioFormat returns 16 kHz mono 16-bit PCM.
func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate:  DefaultSampleRate,
		Channels:    DefaultChannels,
		SampleWidth: DefaultSampleWidth,
		Encoding:    DefaultEncoding,
	}
}

// UnmarshalJSON fills fields missing from data with their defaults.
func (f *AudioFormat) UnmarshalJSON(data []byte) error {
	type plain AudioFormat
	p := plain(DefaultAudioFormat())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = AudioFormat(p)
	return nil
}

// FrameSize is the number of bytes in one sample across all channels.
func (f AudioFormat) FrameSize() int {
	return f.SampleWidth * f.Channels
}

// TranscriptionConfig controls how a session is transcribed.
type TranscriptionConfig struct {
	ModelID  string `json:"model_id" validate:"required"`
	Language string `json:"language,omitempty" validate:"omitempty,min=2,max=8"`
	// MaxContextLength bounds the context buffer in whitespace-separated
	// tokens. Zero disables trimming.
	MaxContextLength int  `json:"max_context_length" validate:"gte=0"`
	DetectLanguage   bool `json:"detect_language"`
	DetectEvents     bool `json:"detect_events"`
}

// DefaultTranscriptionConfig returns the scribe_v1 defaults.
func DefaultTranscriptionConfig() TranscriptionConfig {
	return TranscriptionConfig{
		ModelID:          DefaultModelID,
		MaxContextLength: DefaultMaxContextLength,
		DetectLanguage:   true,
		DetectEvents:     true,
	}
}

// UnmarshalJSON fills fields missing from data with their defaults.
func (c *TranscriptionConfig) UnmarshalJSON(data []byte) error {
	type plain TranscriptionConfig
	p := plain(DefaultTranscriptionConfig())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = TranscriptionConfig(p)
	return nil
}

// Word is a timed span of a transcript.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Type  string  `json:"type"`
}

// TranscriptionResult is one provider answer for one audio chunk.
type TranscriptionResult struct {
	Text                string   `json:"text"`
	LanguageCode        string   `json:"language_code,omitempty"`
	LanguageProbability *float64 `json:"language_probability,omitempty"`
	Words               []Word   `json:"words"`
}

// Error is the payload of an Error-kind message.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return e.Code + ": " + e.Message
}

// ErrorCodeProtocol is attached to every failure raised while dispatching a message.
const ErrorCodeProtocol = "protocol_error"
