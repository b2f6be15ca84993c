package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "board").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("warn 级别应只输出 1 行, 实际 %d", len(lines))
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("应输出 JSON: %v", err)
	}
	if entry["component"] != "board" || entry["time"] == nil {
		t.Fatalf("字段缺失: %v", entry)
	}
}

func TestNewLoggerDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Level: "nonsense"}, &buf)
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("非法级别应回退到 info, 实际 %s", logger.GetLevel())
	}
	if newLogger(Config{}, &buf).GetLevel() != zerolog.InfoLevel {
		t.Fatal("空级别应为 info")
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{Format: "console"}, &buf)
	logger.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("console 格式不应输出 JSON: %s", buf.String())
	}
}
