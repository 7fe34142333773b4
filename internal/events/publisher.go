// Package events publishes transcription results and session lifecycle
// events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"scribe-mcp-gateway/internal/models"
	"scribe-mcp-gateway/internal/observability/metrics"
)

// Publisher publishes gateway events to separate Kafka topics.
type Publisher struct {
	writerResults  *kafka.Writer
	writerSessions *kafka.Writer
	principal      string
	topicResults   string
	topicSessions  string
	enabled        bool
	metrics        *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicResults  string
	TopicSessions string
	Principal     string
	Enabled       bool
	Metrics       *metrics.Metrics
}

// New creates a Kafka event publisher. A nil or disabled config yields a
// publisher that only logs.
func New(cfg *Config) *Publisher {
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: metrics.DefaultMetrics,
		}
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:     cfg.Principal,
			topicResults:  cfg.TopicResults,
			topicSessions: cfg.TopicSessions,
			enabled:       false,
			metrics:       m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	p := &Publisher{
		writerResults: newWriter(cfg.TopicResults),
		principal:     cfg.Principal,
		topicResults:  cfg.TopicResults,
		topicSessions: cfg.TopicSessions,
		enabled:       true,
		metrics:       m,
	}
	if cfg.TopicSessions != "" {
		p.writerSessions = newWriter(cfg.TopicSessions)
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicResults", cfg.TopicResults).
		Str("topicSessions", cfg.TopicSessions).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

// Enabled reports whether events are written to Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishResult publishes a transcription result keyed by session id.
func (p *Publisher) PublishResult(ctx context.Context, ev models.TranscriptionEvent) error {
	return p.publish(ctx, p.writerResults, p.topicResults, ev.EventType, ev.SessionID, ev)
}

// PublishSession publishes a session lifecycle event keyed by session id.
// It is a no-op when no sessions topic is configured.
func (p *Publisher) PublishSession(ctx context.Context, ev models.SessionEvent) error {
	if p.topicSessions == "" {
		return nil
	}
	return p.publish(ctx, p.writerSessions, p.topicSessions, ev.EventType, ev.SessionID, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// Disabled: log only
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes the Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerResults != nil {
		if e := p.writerResults.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing results writer")
			err = e
		}
	}
	if p.writerSessions != nil {
		if e := p.writerSessions.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing sessions writer")
			err = e
		}
	}
	return err
}
