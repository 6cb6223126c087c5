package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestWriteKeepsReservedKeys(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	Warn("engine.slow", map[string]any{"msg": "overridden", "duration_ms": 12.5})

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["msg"] != "engine.slow" {
		t.Fatalf("msg = %v", payload["msg"])
	}
	if payload["level"] != "warn" {
		t.Fatalf("level = %v", payload["level"])
	}
	if payload["duration_ms"] != 12.5 {
		t.Fatalf("duration_ms = %v", payload["duration_ms"])
	}
}
