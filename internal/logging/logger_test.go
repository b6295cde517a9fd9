package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONWithSessionFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "rentchatd.log")
	logger, err := New(path, "work", Options{Quiet: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("connected")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1 (debug filtered): %q", len(lines), data)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "connected" || entry["session"] != "work" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Error("entry has no ts field")
	}
	if _, ok := entry["pid"]; !ok {
		t.Error("entry has no pid field")
	}
}

func TestNewDebugLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rentchatd.log")
	logger, err := New(path, "main", Options{Debug: true, Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("frame dropped")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "frame dropped") {
		t.Errorf("debug entry missing: %q", data)
	}
}

func TestNewRotatesLargeLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rentchatd.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0600); err != nil {
		t.Fatal(err)
	}

	logger, err := New(path, "main", Options{Quiet: true, MaxSize: 32})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("fresh")
	_ = logger.Sync()

	old, err := os.ReadFile(path + ".1")
	if err != nil || len(old) != 64 {
		t.Errorf("rotated file = %d bytes, %v", len(old), err)
	}
	cur, _ := os.ReadFile(path)
	if !strings.Contains(string(cur), "fresh") || strings.Contains(string(cur), "xxx") {
		t.Errorf("current log = %q", cur)
	}
}

func TestNewKeepsSmallLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rentchatd.log")
	if err := os.WriteFile(path, []byte("{}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := New(path, "main", Options{Quiet: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Errorf("small log rotated: %v", err)
	}
}
