package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestOpen_File tests that component loggers write prefixed lines to the file.
func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stockbook.log")

	out := Open(Config{File: path, MaxSizeMB: 1, MaxBackups: 1})
	out.Logger("sync").Printf("pushed %d rows", 3)
	if err := out.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	line := string(data)
	if !strings.HasPrefix(line, "[sync] ") {
		t.Errorf("expected [sync] prefix, got %q", line)
	}
	if !strings.Contains(line, "pushed 3 rows") {
		t.Errorf("expected message in log, got %q", line)
	}
}

// TestOpen_Discard tests that no destination discards output.
func TestOpen_Discard(t *testing.T) {
	out := Open(Config{})
	if out.Writer() != io.Discard {
		t.Error("expected io.Discard without file or stderr")
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close without file failed: %v", err)
	}
}
