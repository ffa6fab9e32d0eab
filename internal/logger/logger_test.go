package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func readEntry(t *testing.T, path string) map[string]any {
	t.Helper()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("decode log %q: %v", raw, err)
	}
	return entry
}

func TestBuildJSONEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.log")
	log, err := build("json", levelFor(false), false, []string{path})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	log.Debug("hidden")
	log.Named("coordinator").Info("rate limited", zap.Duration("wait", 60*time.Second))
	_ = log.Sync()

	entry := readEntry(t, path)
	want := map[string]string{
		"step":      "rate limited",
		"level":     "info",
		"app":       appName,
		"component": "coordinator",
		"wait":      "1m0s",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Fatalf("expected %s=%q, got %v", key, value, entry[key])
		}
	}
	if _, ok := entry["caller"]; ok {
		t.Fatalf("caller should only be logged in debug mode: %v", entry)
	}
}

func TestBuildDebugAddsCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	log, err := build("json", levelFor(true), true, []string{path})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	log.Debug("local score")
	_ = log.Sync()

	entry := readEntry(t, path)
	if entry["level"] != "debug" {
		t.Fatalf("unexpected level %v", entry["level"])
	}
	if caller, _ := entry["caller"].(string); caller == "" {
		t.Fatalf("expected caller in debug mode: %v", entry)
	}
}

func TestLevelAndEncoder(t *testing.T) {
	if levelFor(false) != zapcore.InfoLevel || levelFor(true) != zapcore.DebugLevel {
		t.Fatalf("unexpected levels")
	}
	if encoderName(true) != "json" || encoderName(false) != "console" {
		t.Fatalf("unexpected encoders")
	}
}
