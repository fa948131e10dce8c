package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// TestParseLevel はレベル文字列の変換と未知値のフォールバックを検証する。
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestSetup_JSONOutput はJSON形式で出力されレベルで絞り込まれることを検証する。
func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf, "warn")

	log.Info("情報ログは出力されない")
	log.Warn("警告ログ", slog.String("key", "value"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("出力はJSON 1行であるべき: %v", err)
	}
	if record["msg"] != "警告ログ" {
		t.Errorf("msg = %v, want 警告ログ", record["msg"])
	}
	if record["key"] != "value" {
		t.Errorf("key = %v, want value", record["key"])
	}
}
