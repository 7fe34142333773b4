package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"scribe-mcp-gateway/internal/mcp"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	return entry
}

func TestInitWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "debug", Format: "json"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := WithSession("sess-42")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["sessionId"] != "sess-42" {
		t.Errorf("expected sessionId field, got %v", entry["sessionId"])
	}
	if entry["message"] != "hello" {
		t.Errorf("expected message hello, got %v", entry["message"])
	}
}

func TestInitWithWriter_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "loud"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", zerolog.GlobalLevel())
	}

	l := WithComponent("test")
	l.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug line to be filtered, got %q", buf.String())
	}
}

func TestInitWithWriter_ServiceAndCaller(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "info", Service: "gateway"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := Logger()
	l.Info().Msg("up")
	entry := decodeLine(t, &buf)
	if entry["service"] != "gateway" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
	if _, ok := entry[zerolog.CallerFieldName]; ok {
		t.Error("caller should only be recorded at debug level")
	}

	buf.Reset()
	InitWithWriter(Config{Level: "debug"}, &buf)
	l = Logger()
	l.Debug().Msg("detail")
	if _, ok := decodeLine(t, &buf)[zerolog.CallerFieldName]; !ok {
		t.Error("expected caller at debug level")
	}
}

func TestWithMessage(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "info"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := WithMessage(mcp.Message{Kind: mcp.KindAudio, SessionID: "s1", Sequence: 7})
	l.Warn().Msg("rejected")

	entry := decodeLine(t, &buf)
	if entry["sessionId"] != "s1" || entry["kind"] != "audio" || entry["sequence"] != float64(7) {
		t.Errorf("unexpected fields %v", entry)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(Config{Level: "info"}, &buf)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	l := FromContext(context.Background())
	l.Info().Msg("global")
	if buf.Len() == 0 {
		t.Fatal("expected the global logger without a context logger")
	}

	buf.Reset()
	scoped := WithSession("s9")
	l = FromContext(scoped.WithContext(context.Background()))
	l.Info().Msg("scoped")
	if decodeLine(t, &buf)["sessionId"] != "s9" {
		t.Errorf("expected the context logger, got %q", buf.String())
	}
}
