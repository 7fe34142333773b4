package tracing

import (
	"context"
	"testing"
)

func TestSetup_NoneIsNoop(t *testing.T) {
	for _, name := range []string{"", "none", " NONE "} {
		shutdown, err := Setup(context.Background(), Config{ServiceName: "test", Exporter: name})
		if err != nil {
			t.Fatalf("exporter %q: unexpected error: %v", name, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("exporter %q: shutdown error: %v", name, err)
		}
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	if _, err := Setup(context.Background(), Config{ServiceName: "test", Exporter: "zipkin"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}

func TestSetup_Stdout(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "test", Exporter: ExporterStdout})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error: %v", err)
	}
}
