package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"cpeconnect.org/internal/auth"
	"cpeconnect.org/internal/grants"
	"cpeconnect.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithUser(ctx, &grants.User{Email: "officer@cpe.example", Role: grants.RoleOfficer})

	if err := LogEvent(ctx, "project.approve", map[string]any{"project_id": "p-1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "project.approve" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["actor"] != "officer@cpe.example" {
		t.Fatalf("unexpected actor: %v", entry["actor"])
	}
	if entry["actor_role"] != "officer" {
		t.Fatalf("unexpected actor role: %v", entry["actor_role"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["project_id"] != "p-1" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}
