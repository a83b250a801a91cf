package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWritesToStderrByDefault(t *testing.T) {
	if New(Config{}) == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})

	logger.Debug("turn started", "session", "abc", "agent", "assistant")

	line := buf.String()
	for _, want := range []string{"turn started", "session=abc", "agent=assistant"} {
		if !strings.Contains(line, want) {
			t.Errorf("text output missing %q: %s", want, line)
		}
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("reconciled stream", "tools", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not one JSON object: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "reconciled stream" {
		t.Errorf("msg = %v, want reconciled stream", entry["msg"])
	}
	if entry["tools"] != float64(2) {
		t.Errorf("tools = %v, want 2", entry["tools"])
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Debug("noise")
	logger.Info("also noise")
	logger.Warn("breaker opened")

	out := buf.String()
	if strings.Contains(out, "noise") {
		t.Errorf("sub-warn entries leaked through: %s", out)
	}
	if !strings.Contains(out, "breaker opened") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestNewWithWriter_AddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{AddSource: true})

	logger.Info("with source")

	if !strings.Contains(buf.String(), "log_test.go") {
		t.Errorf("expected source attribution in output: %s", buf.String())
	}
}

func TestNewNopDiscardsEverything(t *testing.T) {
	logger := NewNop()
	if logger == nil {
		t.Fatal("NewNop() returned nil")
	}
	logger.Info("discarded")
	logger.Error("also discarded")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{name: "empty defaults to info", input: "", want: slog.LevelInfo},
		{name: "debug", input: "debug", want: slog.LevelDebug},
		{name: "mixed case", input: "Warn", want: slog.LevelWarn},
		{name: "warning alias", input: "warning", want: slog.LevelWarn},
		{name: "error", input: "error", want: slog.LevelError},
		{name: "padded", input: "  info  ", want: slog.LevelInfo},
		{name: "unknown", input: "verbose", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
