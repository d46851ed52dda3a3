package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestFromContext_AddsRequestAndActor(t *testing.T) {
	var buf bytes.Buffer
	base, err := New(Config{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithActor(ctx, "p-7", "control")
	FromContext(ctx, base).Info("hola")
	_ = base.Sync()

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	for key, want := range map[string]string{"request_id": "req-1", "persona_id": "p-7", "rol": "control", "msg": "hola"} {
		if line[key] != want {
			t.Errorf("%s = %v, want %s", key, line[key], want)
		}
	}
	if _, ok := line["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	base, _ := New(Config{Level: "warn", Output: &buf})
	base.Info("oculto")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}

	buf.Reset()
	base, _ = New(Config{Level: "nope", Output: &buf})
	base.Info("visible")
	if buf.Len() == 0 {
		t.Error("invalid level should fall back to info")
	}
}

func TestFromContext_NoFieldsReturnsBase(t *testing.T) {
	base, _ := New(Config{Output: &bytes.Buffer{}})
	if got := FromContext(context.Background(), base); got != base {
		t.Error("expected base logger unchanged")
	}
}
