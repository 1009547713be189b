package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandleFormatsSemicolonDelimitedLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("import finished", "files", 3)

	line := strings.TrimRight(buf.String(), "\n")
	parts := strings.SplitN(line, ";", 3)
	if len(parts) != 3 {
		t.Fatalf("expected 3 semicolon-delimited fields, got %q", line)
	}
	if parts[1] != "INFO" {
		t.Errorf("expected level INFO, got %q", parts[1])
	}
	if !strings.HasPrefix(parts[2], "import finished") {
		t.Errorf("expected message prefix, got %q", parts[2])
	}
	if !strings.Contains(parts[2], "files=3") {
		t.Errorf("expected attribute rendered in message field, got %q", parts[2])
	}
}

func TestEnabledRespectsMinimumLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("should be dropped")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Error("expected info-level line to be filtered out below warn threshold")
	}
	if !strings.Contains(out, "should appear") {
		t.Error("expected warn-level line to be written")
	}
}

func TestWithAttrsAppendsToEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("component", "importer")

	logger.Info("hello")

	if !strings.Contains(buf.String(), "component=importer") {
		t.Errorf("expected persistent attribute in output, got %q", buf.String())
	}
}
