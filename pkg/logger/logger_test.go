package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestFromContextCarriesIDs(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "debug", "json")

	ctx := WithRunID(WithRequestID(context.Background(), "req-1"), "run-1")
	FromContext(ctx).Debug("query evaluated")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decoding log line %q: %v", buf.String(), err)
	}
	if line["request_id"] != "req-1" || line["run_id"] != "run-1" {
		t.Errorf("log line = %v", line)
	}
}

func TestSetupWriterLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "text")
	slog.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
	slog.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn not logged")
	}
	if RunID(context.Background()) != "" {
		t.Error("empty context has a run id")
	}
}
