package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSessionLifecycle(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordSessionCreated()
	m.RecordSessionCreated()
	m.RecordSessionRemoved()

	if got := testutil.ToFloat64(m.SessionsTotal); got != 2 {
		t.Errorf("expected 2 sessions total, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("expected 1 active session, got %v", got)
	}
}

func TestRecordMessage(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordMessage("audio", false)
	m.RecordMessage("audio", true)
	m.RecordMessage("stop", true)

	if got := testutil.ToFloat64(m.MessagesTotal.WithLabelValues("audio")); got != 2 {
		t.Errorf("expected 2 audio messages, got %v", got)
	}
	if got := testutil.ToFloat64(m.ProtocolErrors.WithLabelValues("audio")); got != 1 {
		t.Errorf("expected 1 audio error, got %v", got)
	}
	if got := testutil.ToFloat64(m.ProtocolErrors.WithLabelValues("stop")); got != 1 {
		t.Errorf("expected 1 stop error, got %v", got)
	}
}

func TestRecordKafkaPublish(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordKafkaPublish("results", "transcription", nil, 0.01)
	m.RecordKafkaPublish("results", "transcription", errors.New("boom"), 0.02)

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("results", "transcription")); got != 2 {
		t.Errorf("expected 2 publishes, got %v", got)
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("results", "transcription")); got != 1 {
		t.Errorf("expected 1 publish error, got %v", got)
	}
}

func TestRecordAudioReceived(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordAudioReceived(1024)
	m.RecordAudioReceived(512)

	if got := testutil.ToFloat64(m.AudioBytesReceived); got != 1536 {
		t.Errorf("expected 1536 bytes, got %v", got)
	}
	if got := testutil.ToFloat64(m.AudioChunksReceived); got != 2 {
		t.Errorf("expected 2 chunks, got %v", got)
	}
}
