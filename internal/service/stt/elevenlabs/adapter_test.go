package elevenlabs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"scribe-mcp-gateway/internal/mcp"
	"scribe-mcp-gateway/internal/observability/metrics"
	"scribe-mcp-gateway/internal/service/stt"
)

const okBody = `{
	"language_code": "en",
	"language_probability": 0.98,
	"text": "hello world",
	"words": [
		{"text": "hello", "start": 0.0, "end": 0.4, "type": "word"},
		{"text": "world", "start": 0.5, "end": 0.9}
	]
}`

func newTestAdapter(t *testing.T, url string, retries int) (*Adapter, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	a, err := New(Config{
		APIKey:      "test-key",
		BaseURL:     url + "/",
		Timeout:     2 * time.Second,
		MaxRetries:  retries,
		BackoffBase: time.Millisecond,
	}, WithMetrics(m))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, m
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestTranscribe_Request(t *testing.T) {
	wav := []byte("RIFF----WAVEfmt data")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/speech-to-text" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("model_id = %q", got)
		}
		if got := r.FormValue("language_code"); got != "fr" {
			t.Errorf("language_code = %q", got)
		}
		if got := r.FormValue("tag_audio_events"); got != "true" {
			t.Errorf("tag_audio_events = %q", got)
		}

		file, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if hdr.Filename != "audio.wav" || hdr.Header.Get("Content-Type") != "audio/wav" {
			t.Errorf("unexpected file header: %q %q", hdr.Filename, hdr.Header.Get("Content-Type"))
		}
		data, _ := io.ReadAll(file)
		if string(data) != string(wav) {
			t.Errorf("file body = %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	a, m := newTestAdapter(t, srv.URL, 0)
	cfg := mcp.DefaultTranscriptionConfig()
	cfg.Language = "fr"

	res, err := a.Transcribe(context.Background(), wav, cfg)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "hello world" || res.LanguageCode != "en" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.LanguageProbability == nil || *res.LanguageProbability != 0.98 {
		t.Errorf("language probability = %v", res.LanguageProbability)
	}
	if len(res.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(res.Words))
	}
	if res.Words[0].Type != "word" {
		t.Errorf("word type = %q, want word", res.Words[0].Type)
	}
	if res.Words[1].Type != mcp.DefaultWordType {
		t.Errorf("missing word type should default to %q, got %q", mcp.DefaultWordType, res.Words[1].Type)
	}
	if got := testutil.CollectAndCount(m.ProviderLatency); got != 1 {
		t.Errorf("expected latency series, got %d", got)
	}
}

func TestTranscribe_OmitsEmptyLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if _, ok := r.MultipartForm.Value["language_code"]; ok {
			t.Error("language_code should be omitted when unset")
		}
		if got := r.FormValue("tag_audio_events"); got != "false" {
			t.Errorf("tag_audio_events = %q", got)
		}
		io.WriteString(w, `{"text": ""}`)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, srv.URL, 0)
	cfg := mcp.DefaultTranscriptionConfig()
	cfg.DetectEvents = false

	res, err := a.Transcribe(context.Background(), []byte("x"), cfg)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "" || len(res.Words) != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestTranscribe_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"detail":"invalid api key"}`)
	}))
	defer srv.Close()

	a, m := newTestAdapter(t, srv.URL, 3)
	_, err := a.Transcribe(context.Background(), []byte("x"), mcp.DefaultTranscriptionConfig())

	var perr *stt.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusUnauthorized || perr.Body != `{"detail":"invalid api key"}` {
		t.Errorf("unexpected provider error: %+v", perr)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if got := testutil.ToFloat64(m.ProviderErrors.WithLabelValues(ProviderName, "client")); got != 1 {
		t.Errorf("client error counter = %v, want 1", got)
	}
}

func TestTranscribe_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, okBody)
	}))
	defer srv.Close()

	a, m := newTestAdapter(t, srv.URL, 2)
	res, err := a.Transcribe(context.Background(), []byte("x"), mcp.DefaultTranscriptionConfig())
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q", res.Text)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
	if got := testutil.ToFloat64(m.ProviderRetries); got != 2 {
		t.Errorf("retry counter = %v, want 2", got)
	}
}

func TestTranscribe_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, srv.URL, 1)
	_, err := a.Transcribe(context.Background(), []byte("x"), mcp.DefaultTranscriptionConfig())

	var perr *stt.ProviderError
	if !errors.As(err, &perr) || perr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 ProviderError, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestTranscribe_MalformedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	a, _ := newTestAdapter(t, srv.URL, 2)
	if _, err := a.Transcribe(context.Background(), []byte("x"), mcp.DefaultTranscriptionConfig()); err == nil {
		t.Fatal("expected decode error")
	}
	if calls.Load() != 1 {
		t.Errorf("decode failures should not be retried, got %d calls", calls.Load())
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	a, err := New(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 5, BackoffBase: time.Hour}, WithMetrics(m))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = a.Transcribe(ctx, []byte("x"), mcp.DefaultTranscriptionConfig())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff did not honour context cancellation")
	}
}
