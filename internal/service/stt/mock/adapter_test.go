package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"scribe-mcp-gateway/internal/mcp"
)

func TestAdapter_CyclesDefaultUtterances(t *testing.T) {
	a := New()
	cfg := mcp.DefaultTranscriptionConfig()

	for i := 0; i < len(DefaultUtterances)+1; i++ {
		r, err := a.Transcribe(context.Background(), []byte("RIFF"), cfg)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		want := DefaultUtterances[i%len(DefaultUtterances)].Text
		if r.Text != want {
			t.Errorf("call %d: text = %q, want %q", i, r.Text, want)
		}
	}

	if got := len(a.Calls()); got != len(DefaultUtterances)+1 {
		t.Errorf("expected %d recorded calls, got %d", len(DefaultUtterances)+1, got)
	}
}

func TestAdapter_Script(t *testing.T) {
	boom := errors.New("boom")
	a := New(WithScript(
		Response{Result: Result("hello world", "en", 0.9)},
		Response{Err: boom},
		Response{},
	))
	ctx := context.Background()
	cfg := mcp.DefaultTranscriptionConfig()

	r, err := a.Transcribe(ctx, nil, cfg)
	if err != nil || r.Text != "hello world" {
		t.Fatalf("first call = %+v, %v", r, err)
	}
	if len(r.Words) != 2 || r.Words[1].Type != mcp.DefaultWordType {
		t.Errorf("unexpected words: %+v", r.Words)
	}

	if _, err := a.Transcribe(ctx, nil, cfg); !errors.Is(err, boom) {
		t.Errorf("second call error = %v, want boom", err)
	}

	r, err = a.Transcribe(ctx, nil, cfg)
	if err != nil || r != nil {
		t.Errorf("third call = %+v, %v; want nil, nil", r, err)
	}

	r, err = a.Transcribe(ctx, nil, cfg)
	if err != nil || r.Text != DefaultUtterances[0].Text {
		t.Errorf("past script = %+v, %v; want first default utterance", r, err)
	}
}

func TestAdapter_DelayHonoursContext(t *testing.T) {
	a := New(WithDelay(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Transcribe(ctx, nil, mcp.DefaultTranscriptionConfig())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if len(a.Calls()) != 0 {
		t.Error("cancelled call should not be recorded")
	}
}

func TestAdapter_RecordsConfig(t *testing.T) {
	a := New()
	cfg := mcp.DefaultTranscriptionConfig()
	cfg.Language = "de"

	if _, err := a.Transcribe(context.Background(), []byte{1, 2}, cfg); err != nil {
		t.Fatal(err)
	}
	calls := a.Calls()
	if calls[0].Config.Language != "de" || len(calls[0].WAV) != 2 {
		t.Errorf("unexpected recorded call: %+v", calls[0])
	}
}
