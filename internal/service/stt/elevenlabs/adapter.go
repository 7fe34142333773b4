// Package elevenlabs implements stt.Provider against the ElevenLabs Scribe
// speech-to-text REST API.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scribe-mcp-gateway/internal/mcp"
	"scribe-mcp-gateway/internal/observability/metrics"
	"scribe-mcp-gateway/internal/service/stt"
)

// ProviderName is reported in logs and metrics.
const ProviderName = "elevenlabs"

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.elevenlabs.io/v1"

	defaultTimeout     = 60 * time.Second
	defaultBackoffBase = 500 * time.Millisecond
	maxBackoff         = 10 * time.Second
	maxErrorBody       = 4 << 10
)

var errDecode = errors.New("decode elevenlabs response")

// Config holds the ElevenLabs client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// Adapter implements stt.Provider.
type Adapter struct {
	cfg     Config
	client  *http.Client
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures the adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// New creates an ElevenLabs adapter.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	a := &Adapter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		metrics: metrics.DefaultMetrics,
		tracer:  otel.Tracer("scribe-mcp-gateway/stt/elevenlabs"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) Name() string { return ProviderName }

// apiResponse is the subset of the speech-to-text response the gateway uses.
type apiResponse struct {
	LanguageCode        string   `json:"language_code"`
	LanguageProbability *float64 `json:"language_probability"`
	Text                string   `json:"text"`
	Words               []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Type  string  `json:"type"`
	} `json:"words"`
}

// Transcribe posts wav to /speech-to-text, retrying transport failures and
// temporary statuses with exponential backoff.
func (a *Adapter) Transcribe(ctx context.Context, wav []byte, cfg mcp.TranscriptionConfig) (*mcp.TranscriptionResult, error) {
	ctx, span := a.tracer.Start(ctx, "elevenlabs.transcribe",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("stt.model_id", cfg.ModelID),
			attribute.Int("stt.audio_bytes", len(wav)),
		))
	defer span.End()

	body, contentType, err := buildForm(wav, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, err
	}

	var lastErr error
retry:
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			a.metrics.RecordProviderRetry()
			backoff := a.cfg.BackoffBase << (attempt - 1)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying ElevenLabs request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			}
		}

		start := time.Now()
		result, err := a.do(ctx, body, contentType)
		a.metrics.RecordProviderCall(ProviderName, time.Since(start).Seconds())
		if err == nil {
			span.SetAttributes(attribute.Int("stt.attempts", attempt+1))
			return result, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}

	a.metrics.RecordProviderError(ProviderName, stt.ErrorType(lastErr))
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "transcription failed")
	return nil, lastErr
}

func (a *Adapter) do(ctx context.Context, body []byte, contentType string) (*mcp.TranscriptionResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/speech-to-text", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("xi-api-key", a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &stt.ProviderError{
			Provider:   ProviderName,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	return toResult(out), nil
}

func buildForm(wav []byte, cfg mcp.TranscriptionConfig) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="audio.wav"`)
	h.Set("Content-Type", "audio/wav")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, "", fmt.Errorf("write audio: %w", err)
	}

	_ = w.WriteField("model_id", cfg.ModelID)
	if cfg.Language != "" {
		_ = w.WriteField("language_code", cfg.Language)
	}
	_ = w.WriteField("tag_audio_events", strconv.FormatBool(cfg.DetectEvents))

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func toResult(r apiResponse) *mcp.TranscriptionResult {
	words := make([]mcp.Word, 0, len(r.Words))
	for _, w := range r.Words {
		typ := w.Type
		if typ == "" {
			typ = mcp.DefaultWordType
		}
		words = append(words, mcp.Word{Text: w.Text, Start: w.Start, End: w.End, Type: typ})
	}
	return &mcp.TranscriptionResult{
		Text:                r.Text,
		LanguageCode:        r.LanguageCode,
		LanguageProbability: r.LanguageProbability,
		Words:               words,
	}
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, errDecode) {
		return false
	}
	var perr *stt.ProviderError
	if errors.As(err, &perr) {
		return perr.Temporary()
	}
	return true
}
