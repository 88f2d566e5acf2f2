package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nator/internal/config"
	"nator/internal/logging"
	"nator/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content := readLog(t, filepath.Join(cfg.Paths.LogDir, "nator.log"))
	if !strings.Contains(content, "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content := readLog(t, logPath)
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if strings.Contains(content, "\x1b[") {
		t.Fatalf("expected no colour codes for file output, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("message with caller")

	if content := readLog(t, logPath); !strings.Contains(content, ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerPrefixesJobAndStage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStage(services.WithJobID(context.Background(), "job-7"), "tts")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "executor")).Info("stage started", logging.String("voice", "en US"))

	content := readLog(t, logPath)
	for _, fragment := range []string{"executor: [job-7/tts] stage started", `voice="en US"`} {
		if !strings.Contains(content, fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := context.Background()
	ctx = services.WithJobID(ctx, "job-123")
	ctx = services.WithStage(ctx, "rendering")
	ctx = services.WithRequestID(ctx, "req-xyz")

	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	want := map[string]string{
		logging.FieldJobID:         "job-123",
		logging.FieldStage:         "rendering",
		logging.FieldCorrelationID: "req-xyz",
		"level":                    "info",
		"msg":                      "contextual log",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("field %s = %v, want %q", key, record[key], value)
		}
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", record)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "kill switch present", "safety_halt", logging.String(logging.FieldErrorHint, "run nator resume"))

	var record map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if record[logging.FieldEventType] != "safety_halt" {
		t.Fatalf("unexpected event type: %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] != "run nator resume" {
		t.Fatalf("expected caller hint to win, got %v", record[logging.FieldErrorHint])
	}
	if record[logging.FieldImpact] == nil {
		t.Fatal("expected impact default")
	}
}
