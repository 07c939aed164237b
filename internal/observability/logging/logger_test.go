package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "notary-api", "info", "json")
	logger.Info("document_created", "document_id", "doc-1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["service"] != "notary-api" || line["document_id"] != "doc-1" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "notary-worker", "warn", "text")
	logger.Info("dropped")
	logger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=kept") {
		t.Fatalf("expected text-format warn line, got %q", out)
	}
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	if got := parseLevel("verbose"); got.String() != "INFO" {
		t.Fatalf("expected INFO, got %s", got)
	}
}
