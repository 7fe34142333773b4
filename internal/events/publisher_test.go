package events

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"scribe-mcp-gateway/internal/models"
	"scribe-mcp-gateway/internal/observability/metrics"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerResults != nil {
				t.Error("expected nil results writer when disabled")
			}
			if p.writerSessions != nil {
				t.Error("expected nil sessions writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:       false,
		Brokers:       []string{"localhost:9092"},
		TopicResults:  "test.results",
		TopicSessions: "test.sessions",
		Principal:     "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicResults != "test.results" {
		t.Errorf("expected results topic 'test.results', got %s", p.topicResults)
	}
	if p.topicSessions != "test.sessions" {
		t.Errorf("expected sessions topic 'test.sessions', got %s", p.topicSessions)
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicResults: "test.results",
		Metrics:      metrics.NewMetricsWith(prometheus.NewRegistry()),
	})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected publisher to be enabled")
	}
	if p.writerResults == nil || p.writerResults.Topic != "test.results" {
		t.Error("expected results writer for test.results")
	}
	if p.writerSessions != nil {
		t.Error("expected no sessions writer without a sessions topic")
	}
}

func TestPublisher_PublishResult_Disabled(t *testing.T) {
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	p := New(&Config{Enabled: false, TopicResults: "test.results", Metrics: m})

	ev := models.TranscriptionEvent{
		EventType: models.EventTypeTranscriptionResult,
		SessionID: "sess-1",
		Text:      "hello world",
	}
	if err := p.PublishResult(context.Background(), ev); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}

	got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.results", models.EventTypeTranscriptionResult))
	if got != 1 {
		t.Errorf("expected publish counter 1, got %v", got)
	}
}

func TestPublisher_PublishSession_NoTopic(t *testing.T) {
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	p := New(&Config{Enabled: false, Metrics: m})

	ev := models.SessionEvent{EventType: models.EventTypeSessionStarted, SessionID: "sess-1"}
	if err := p.PublishSession(context.Background(), ev); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if got := testutil.CollectAndCount(m.KafkaPublishTotal); got != 0 {
		t.Errorf("expected no publish without a sessions topic, got %d series", got)
	}
}

func TestPublisher_Close_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})
	if err := p.Close(); err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
