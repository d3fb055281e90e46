package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONWithFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tgfd.log")

	logger, err := New(path, "tgfd", "main")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if entry["msg"] != "hello" || entry["instance"] != "main" || entry["component"] != "tgfd" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["pid"]; !ok {
		t.Error("entry missing pid")
	}
}
